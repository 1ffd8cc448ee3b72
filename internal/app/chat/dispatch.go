package chat

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"groupchat/internal/app/store"
	"groupchat/internal/pkg/errs"
	"groupchat/internal/pkg/req"
)

const (
	// operationTimeout bounds the store work of one inbound operation.
	operationTimeout = 10 * time.Second

	defaultPageSize = 10
	maxPageSize     = 100

	minChannelName = 2
	maxChannelName = 32
	minContent     = 1
	maxContent     = 5000
)

type opResult struct {
	data    any
	hasMore *bool
}

type opHandler func(ctx context.Context, c *Connection, payload json.RawMessage) (opResult, error)

func (m *Manager) routes() map[string]opHandler {
	return map[string]opHandler{
		OpChannelCreate: m.handleChannelCreate,
		OpChannelJoin:   m.handleChannelJoin,
		OpChannelList:   m.handleChannelList,
		OpChannelSearch: m.handleChannelSearch,
		OpMessageSend:   m.handleMessageSend,
		OpMessageList:   m.handleMessageList,
		OpMessageAck:    m.handleMessageAck,
		OpMessageTyping: m.handleMessageTyping,
		OpUserGet:       m.handleUserGet,
		OpUserReach:     m.handleUserReach,
		OpUserSearch:    m.handleUserSearch,
	}
}

// Handle processes one inbound frame from c and queues exactly one response to it.
// The response is also returned.
func (m *Manager) Handle(ctx context.Context, c *Connection, frame []byte) Response {
	start := time.Now()

	var in Inbound
	if err := json.Unmarshal(frame, &in); err != nil {
		c.logger.Warn().Err(err).Msg("Connection sent invalid JSON frame")
		res := Response{
			Type:   frameResponse,
			Status: StatusError,
			Errors: []errs.FieldError{{Field: "frame", Message: "must be a JSON object"}},
		}
		m.reply(c, res)
		return res
	}

	res := Response{Type: frameResponse, ID: in.ID, Status: StatusOK}

	result, err := m.dispatch(ctx, c, in)
	if err != nil {
		res.Status = StatusError
		customErr := toCustomError(err)
		if customErr.Code == errs.ErrInvalidParams {
			res.Errors = customErr.Fields
		}
		m.logOpError(c, in.Op, customErr)
	} else {
		res.Data = result.data
		res.HasMore = result.hasMore
	}

	opLabel := in.Op
	if _, known := m.ops[opLabel]; !known {
		opLabel = "unknown"
	}
	m.metrics.Operation(opLabel, res.Status, time.Since(start).Seconds())

	m.reply(c, res)
	return res
}

func (m *Manager) dispatch(ctx context.Context, c *Connection, in Inbound) (opResult, error) {
	if !c.limiter.Allow() {
		return opResult{}, errs.NewError(errs.ErrRateLimitExceeded)
	}

	handler, ok := m.ops[in.Op]
	if !ok {
		return opResult{}, errs.NewError(errs.ErrUnknownOperation)
	}

	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	return handler(ctx, c, in.Payload)
}

func (m *Manager) reply(c *Connection, res Response) {
	frame, err := json.Marshal(res)
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to marshal response")
		return
	}
	c.enqueue(frame)
}

// logOpError records the real failure kind. The client only ever sees a bare ERROR.
func (m *Manager) logOpError(c *Connection, op string, customErr *errs.CustomError) {
	switch customErr.Code {
	case errs.ErrInvalidParams, errs.ErrUnknownOperation:
		c.logger.Debug().Str("op", op).Interface("fields", customErr.Fields).Msg("Rejected invalid operation")
	case errs.ErrConflict, errs.ErrNotAuthorized, errs.ErrNotFound, errs.ErrRateLimitExceeded:
		c.logger.Info().Str("op", op).Err(customErr).Msg("Operation refused")
	default:
		c.logger.Error().Str("op", op).Err(customErr).Msg("Operation failed")
	}
}

// decode binds payload into dst and applies rules.
func decode(payload json.RawMessage, dst any, rules func(v *req.Validator)) error {
	if err := req.DecodePayload(payload, dst); err != nil {
		return err
	}

	var v req.Validator
	rules(&v)
	if err := v.Err(); err != nil {
		return err
	}
	return nil
}

// pageSize applies the default and checks the bounds.
func pageSize(v *req.Validator, size *int) int {
	if size == nil {
		return defaultPageSize
	}
	v.Range(*size, 1, maxPageSize, "size")
	return *size
}

// parseMessageID checks that s is a positive decimal message id.
func parseMessageID(v *req.Validator, s, field string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	v.Check(err == nil && id > 0, field, "must be a positive integer string")
	return id
}

func withMore(data any, hasMore bool) opResult {
	return opResult{data: data, hasMore: &hasMore}
}

// --- channels ---

func (m *Manager) handleChannelCreate(ctx context.Context, c *Connection, payload json.RawMessage) (opResult, error) {
	var p struct {
		Name string `json:"name"`
	}
	if err := decode(payload, &p, func(v *req.Validator) {
		v.Length(p.Name, minChannelName, maxChannelName, "name")
	}); err != nil {
		return opResult{}, err
	}

	ch, err := m.channels.CreatePublic(ctx, c, p.Name)
	if err != nil {
		return opResult{}, err
	}
	return opResult{data: ch}, nil
}

func (m *Manager) handleChannelJoin(ctx context.Context, c *Connection, payload json.RawMessage) (opResult, error) {
	var p struct {
		ChannelID string `json:"channelId"`
	}
	if err := decode(payload, &p, func(v *req.Validator) {
		v.UUID(p.ChannelID, "channelId")
	}); err != nil {
		return opResult{}, err
	}

	ch, err := m.channels.Join(ctx, c, p.ChannelID)
	if err != nil {
		return opResult{}, err
	}
	return opResult{data: ch}, nil
}

func (m *Manager) handleChannelList(ctx context.Context, c *Connection, payload json.RawMessage) (opResult, error) {
	var p struct {
		Size    *int   `json:"size"`
		OrderBy string `json:"orderBy"`
	}
	var q store.ListChannelsQuery
	if err := decode(payload, &p, func(v *req.Validator) {
		q.Size = pageSize(v, p.Size)
		q.OrderBy = store.OrderNameAsc
		if p.OrderBy != "" {
			v.OneOf(p.OrderBy, "orderBy", string(store.OrderNameAsc))
		}
	}); err != nil {
		return opResult{}, err
	}

	page, err := m.channels.List(ctx, c.UserID, q)
	if err != nil {
		return opResult{}, err
	}
	return withMore(page.Data, page.HasMore), nil
}

func (m *Manager) handleChannelSearch(ctx context.Context, c *Connection, payload json.RawMessage) (opResult, error) {
	var p struct {
		Q    string `json:"q"`
		Size *int   `json:"size"`
	}
	var q store.SearchQuery
	if err := decode(payload, &p, func(v *req.Validator) {
		q.Prefix = p.Q
		q.Size = pageSize(v, p.Size)
	}); err != nil {
		return opResult{}, err
	}

	channels, err := m.channels.Search(ctx, c.UserID, q)
	if err != nil {
		return opResult{}, err
	}
	return opResult{data: channels}, nil
}

// --- messages ---

func (m *Manager) handleMessageSend(ctx context.Context, c *Connection, payload json.RawMessage) (opResult, error) {
	var p struct {
		ChannelID string `json:"channelId"`
		Content   string `json:"content"`
	}
	if err := decode(payload, &p, func(v *req.Validator) {
		v.UUID(p.ChannelID, "channelId")
		v.Length(p.Content, minContent, maxContent, "content")
	}); err != nil {
		return opResult{}, err
	}

	msg, err := m.messages.Send(ctx, c, p.ChannelID, p.Content)
	if err != nil {
		return opResult{}, err
	}
	return opResult{data: struct {
		ID int64 `json:"id,string"`
	}{msg.ID}}, nil
}

func (m *Manager) handleMessageList(ctx context.Context, c *Connection, payload json.RawMessage) (opResult, error) {
	var p struct {
		ChannelID string `json:"channelId"`
		After     string `json:"after"`
		Size      *int   `json:"size"`
		OrderBy   string `json:"orderBy"`
	}
	var q store.ListMessagesQuery
	if err := decode(payload, &p, func(v *req.Validator) {
		v.UUID(p.ChannelID, "channelId")
		q.ChannelID = p.ChannelID
		q.Size = pageSize(v, p.Size)
		q.OrderBy = store.OrderIDAsc
		if p.OrderBy != "" {
			v.OneOf(p.OrderBy, "orderBy", string(store.OrderIDAsc), string(store.OrderIDDesc))
			q.OrderBy = store.Order(p.OrderBy)
		}
		if p.After != "" {
			after := parseMessageID(v, p.After, "after")
			q.After = &after
		}
	}); err != nil {
		return opResult{}, err
	}

	page, err := m.messages.List(ctx, c.UserID, q)
	if err != nil {
		return opResult{}, err
	}
	return withMore(page.Data, page.HasMore), nil
}

func (m *Manager) handleMessageAck(ctx context.Context, c *Connection, payload json.RawMessage) (opResult, error) {
	var p struct {
		ChannelID string `json:"channelId"`
		MessageID string `json:"messageId"`
	}
	var messageID int64
	if err := decode(payload, &p, func(v *req.Validator) {
		v.UUID(p.ChannelID, "channelId")
		messageID = parseMessageID(v, p.MessageID, "messageId")
	}); err != nil {
		return opResult{}, err
	}

	if err := m.messages.Ack(ctx, c.UserID, p.ChannelID, messageID); err != nil {
		return opResult{}, err
	}

	// The remaining count lets the client refresh its badge without listing channels.
	unread, err := m.messages.UnreadCount(ctx, c.UserID, p.ChannelID)
	if errs.HasCode(err, errs.ErrNotAuthorized) {
		return opResult{}, nil
	}
	if err != nil {
		return opResult{}, err
	}
	return opResult{data: struct {
		UnreadCount int `json:"unreadCount"`
	}{unread}}, nil
}

func (m *Manager) handleMessageTyping(ctx context.Context, c *Connection, payload json.RawMessage) (opResult, error) {
	var p struct {
		ChannelID string `json:"channelId"`
		IsTyping  *bool  `json:"isTyping"`
	}
	if err := decode(payload, &p, func(v *req.Validator) {
		v.UUID(p.ChannelID, "channelId")
		v.Check(p.IsTyping != nil, "isTyping", "is required")
	}); err != nil {
		return opResult{}, err
	}

	return opResult{}, m.typing.Signal(ctx, c, p.ChannelID, *p.IsTyping)
}

// --- users ---

func (m *Manager) handleUserGet(ctx context.Context, c *Connection, payload json.RawMessage) (opResult, error) {
	var p struct {
		UserID string `json:"userId"`
	}
	if err := decode(payload, &p, func(v *req.Validator) {
		v.UUID(p.UserID, "userId")
	}); err != nil {
		return opResult{}, err
	}

	u, err := m.users.Get(ctx, c, p.UserID)
	if err != nil {
		return opResult{}, err
	}
	return opResult{data: u}, nil
}

func (m *Manager) handleUserReach(ctx context.Context, c *Connection, payload json.RawMessage) (opResult, error) {
	var p struct {
		UserIDs []string `json:"userIds"`
	}
	if err := decode(payload, &p, func(v *req.Validator) {
		v.Check(len(p.UserIDs) == 1, "userIds", "must contain exactly 1 item")
		for i, id := range p.UserIDs {
			v.UUID(id, "userIds."+strconv.Itoa(i))
		}
	}); err != nil {
		return opResult{}, err
	}

	ch, err := m.channels.CreatePrivate(ctx, c, p.UserIDs)
	if err != nil {
		return opResult{}, err
	}
	return opResult{data: ch}, nil
}

func (m *Manager) handleUserSearch(ctx context.Context, c *Connection, payload json.RawMessage) (opResult, error) {
	var p struct {
		Q    string `json:"q"`
		Size *int   `json:"size"`
	}
	var q store.SearchQuery
	if err := decode(payload, &p, func(v *req.Validator) {
		q.Prefix = p.Q
		q.Size = pageSize(v, p.Size)
	}); err != nil {
		return opResult{}, err
	}

	users, err := m.users.Search(ctx, c.UserID, q)
	if err != nil {
		return opResult{}, err
	}
	return opResult{data: users}, nil
}
