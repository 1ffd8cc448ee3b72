package chat

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"groupchat/internal/app/store"
	"groupchat/internal/pkg/errs"
	"groupchat/internal/pkg/logx"
)

// Messages coordinates message persistence, fan-out, read offsets and pagination.
type Messages struct {
	store    store.MessageStore
	members  store.ChannelStore
	registry *Registry
	logger   zerolog.Logger
}

// NewMessages builds the message coordinator.
func NewMessages(st store.MessageStore, members store.ChannelStore, registry *Registry) *Messages {
	return &Messages{
		store:    st,
		members:  members,
		registry: registry,
		logger:   logx.Component("Messages"),
	}
}

// Send persists a message from the acting user and fans it out to the channel room, except to
// the originating connection. The store rejects non-members and advances the sender's read
// offset in the same transaction.
func (s *Messages) Send(ctx context.Context, origin *Connection, channelID, content string) (store.Message, error) {
	msg, err := s.store.InsertMessage(ctx, store.NewMessage{
		ChannelID: channelID,
		From:      origin.UserID,
		Content:   content,
	})
	if err != nil {
		return store.Message{}, err
	}

	s.registry.Multicast(channelRoom(channelID), EventMessageSent, msg, origin)
	return msg, nil
}

// List pages through a channel's messages. The user must be a member.
func (s *Messages) List(ctx context.Context, userID string, q store.ListMessagesQuery) (store.Page[store.Message], error) {
	if err := s.requireMember(ctx, userID, q.ChannelID); err != nil {
		return store.Page[store.Message]{}, err
	}
	return s.store.ListMessages(ctx, q)
}

// Ack advances the user's read offset to messageID if it is ahead of the stored offset.
// Older or repeated acks, and acks for channels the user does not belong to, change nothing.
func (s *Messages) Ack(ctx context.Context, userID, channelID string, messageID int64) error {
	moved, err := s.store.AdvanceReadOffsetIfGreater(ctx, userID, channelID, messageID)
	if err != nil {
		return err
	}
	if moved {
		s.logger.Debug().Str("user_id", userID).Str("channel_id", channelID).Int64("message_id", messageID).Msg("Read offset advanced")
	}
	return nil
}

// UnreadCount returns how many messages in the channel are newer than the user's read offset.
func (s *Messages) UnreadCount(ctx context.Context, userID, channelID string) (int, error) {
	if err := s.requireMember(ctx, userID, channelID); err != nil {
		return 0, err
	}
	return s.store.CountUnread(ctx, userID, channelID)
}

func (s *Messages) requireMember(ctx context.Context, userID, channelID string) error {
	ok, err := s.members.IsMember(ctx, userID, channelID)
	if err != nil {
		return err
	}
	if !ok {
		return errs.Wrap(errs.ErrNotAuthorized, fmt.Errorf("user %s is not a member of channel %s", userID, channelID))
	}
	return nil
}
