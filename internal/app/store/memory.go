package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"groupchat/internal/app/user"
)

var _ Store = (*Memory)(nil)

type memUser struct {
	user     user.User
	lastPing time.Time
}

type memChannel struct {
	id   string
	name *string
	typ  ChannelType
}

// Memory is a process-local Store. A single mutex makes every operation atomic, which is
// also what makes SetUserOnline a test-and-set and AdvanceReadOffsetIfGreater a compare-and-set.
type Memory struct {
	mu sync.Mutex

	now func() time.Time

	users     map[string]*memUser
	usernames map[string]string // username -> user id

	channels     map[string]*memChannel
	channelNames map[string]string // public channel name -> channel id

	// members maps channel id -> user id -> read offset (0 when nothing acked yet).
	members map[string]map[string]int64
	// joined maps user id -> set of channel ids.
	joined map[string]map[string]struct{}

	messages      map[string][]Message // channel id -> messages in id order
	nextMessageID int64

	generalID string
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithClock overrides the time source used for last-seen bookkeeping.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// NewMemory returns an empty store seeded with the General channel.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		now:          time.Now,
		users:        make(map[string]*memUser),
		usernames:    make(map[string]string),
		channels:     make(map[string]*memChannel),
		channelNames: make(map[string]string),
		members:      make(map[string]map[string]int64),
		joined:       make(map[string]map[string]struct{}),
		messages:     make(map[string][]Message),
	}
	for _, opt := range opts {
		opt(m)
	}

	name := GeneralChannelName
	m.generalID = m.addChannelLocked(&name, ChannelPublic)

	return m
}

// Close is a no-op.
func (m *Memory) Close() {}

// GeneralChannelID returns the id of the seeded General channel.
func (m *Memory) GeneralChannelID() string { return m.generalID }

// --- users ---

func (m *Memory) FindUser(_ context.Context, userID string) (user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return user.User{}, fmt.Errorf("find user %s: %w", userID, ErrNotFound)
	}
	return u.user, nil
}

func (m *Memory) CreateUser(_ context.Context, username string) (user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.usernames[username]; taken {
		return user.User{}, fmt.Errorf("create user %q: %w", username, ErrConflict)
	}

	u := &memUser{
		user:     user.User{ID: uuid.NewString(), Username: username},
		lastPing: m.now(),
	}
	m.users[u.user.ID] = u
	m.usernames[username] = u.user.ID
	m.addMemberLocked(u.user.ID, m.generalID)

	return u.user, nil
}

func (m *Memory) SearchUsers(_ context.Context, userID string, q SearchQuery) ([]user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	excluded := map[string]struct{}{userID: {}}
	for channelID := range m.joined[userID] {
		if m.channels[channelID].typ != ChannelPrivate {
			continue
		}
		for memberID := range m.members[channelID] {
			excluded[memberID] = struct{}{}
		}
	}

	prefix := strings.ToLower(q.Prefix)
	result := []user.User{}
	for id, u := range m.users {
		if _, skip := excluded[id]; skip {
			continue
		}
		if strings.HasPrefix(strings.ToLower(u.user.Username), prefix) {
			result = append(result, user.User{ID: u.user.ID, Username: u.user.Username})
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Username < result[j].Username })
	if len(result) > q.Size {
		result = result[:q.Size]
	}
	return result, nil
}

// --- presence ---

func (m *Memory) SetUserOnline(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return false, fmt.Errorf("set user online %s: %w", userID, ErrNotFound)
	}
	wasOnline := u.user.IsOnline
	u.user.IsOnline = true
	u.lastPing = m.now()
	return wasOnline, nil
}

func (m *Memory) SetUserOffline(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return false, fmt.Errorf("set user offline %s: %w", userID, ErrNotFound)
	}
	wasOnline := u.user.IsOnline
	u.user.IsOnline = false
	return wasOnline, nil
}

func (m *Memory) TouchUsers(_ context.Context, userIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, id := range userIDs {
		if u, ok := m.users[id]; ok {
			u.lastPing = now
		}
	}
	return nil
}

func (m *Memory) SweepStaleOnlineUsers(_ context.Context, staleness time.Duration) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-staleness)
	swept := []string{}
	for id, u := range m.users {
		if u.user.IsOnline && u.lastPing.Before(cutoff) {
			u.user.IsOnline = false
			swept = append(swept, id)
		}
	}
	sort.Strings(swept)
	return swept, nil
}

// --- channels ---

func (m *Memory) IsMember(_ context.Context, userID, channelID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.members[channelID][userID]
	return ok, nil
}

func (m *Memory) CreatePublicChannel(_ context.Context, userID, name string) (Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[userID]; !ok {
		return Channel{}, fmt.Errorf("create channel: user %s: %w", userID, ErrNotFound)
	}
	if _, taken := m.channelNames[name]; taken {
		return Channel{}, fmt.Errorf("create channel %q: %w", name, ErrConflict)
	}

	id := m.addChannelLocked(&name, ChannelPublic)
	m.addMemberLocked(userID, id)
	return m.viewLocked(userID, id), nil
}

func (m *Memory) CreatePrivateChannel(_ context.Context, userID string, otherUserIDs []string) (Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	participants := append([]string{userID}, otherUserIDs...)
	seen := make(map[string]struct{}, len(participants))
	for _, id := range participants {
		if _, ok := m.users[id]; !ok {
			return Channel{}, fmt.Errorf("create private channel: user %s: %w", id, ErrNotFound)
		}
		if _, dup := seen[id]; dup {
			return Channel{}, fmt.Errorf("create private channel: duplicate member %s: %w", id, ErrConflict)
		}
		seen[id] = struct{}{}
	}

	id := m.addChannelLocked(nil, ChannelPrivate)
	for _, memberID := range participants {
		m.addMemberLocked(memberID, id)
	}
	return m.viewLocked(userID, id), nil
}

func (m *Memory) JoinChannel(_ context.Context, userID, channelID string) (Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.channels[channelID]
	if !ok || ch.typ != ChannelPublic {
		return Channel{}, fmt.Errorf("join channel %s: %w", channelID, ErrConflict)
	}
	if _, ok := m.users[userID]; !ok {
		return Channel{}, fmt.Errorf("join channel: user %s: %w", userID, ErrNotFound)
	}
	if _, member := m.members[channelID][userID]; member {
		return Channel{}, fmt.Errorf("join channel %s: %w", channelID, ErrConflict)
	}

	m.addMemberLocked(userID, channelID)
	return m.viewLocked(userID, channelID), nil
}

func (m *Memory) ListMemberships(_ context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.joined[userID]))
	for id := range m.joined[userID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Memory) ListChannels(_ context.Context, userID string, q ListChannelsQuery) (Page[Channel], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	views := make([]Channel, 0, len(m.joined[userID]))
	for id := range m.joined[userID] {
		views = append(views, m.viewLocked(userID, id))
	}
	sortByName(views)

	return pageOf(views, q.Size), nil
}

func (m *Memory) SearchChannels(_ context.Context, userID string, q SearchQuery) ([]Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := strings.ToLower(q.Prefix)
	views := []Channel{}
	for name, id := range m.channelNames {
		if _, member := m.members[id][userID]; member {
			continue
		}
		if strings.HasPrefix(strings.ToLower(name), prefix) {
			views = append(views, m.viewLocked(userID, id))
		}
	}
	sortByName(views)

	if len(views) > q.Size {
		views = views[:q.Size]
	}
	return views, nil
}

// --- messages ---

func (m *Memory) InsertMessage(_ context.Context, nm NewMessage) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	offsets, ok := m.members[nm.ChannelID]
	if !ok {
		return Message{}, fmt.Errorf("insert message: channel %s: %w", nm.ChannelID, ErrNotMember)
	}
	offset, member := offsets[nm.From]
	if !member {
		return Message{}, fmt.Errorf("insert message: channel %s: %w", nm.ChannelID, ErrNotMember)
	}

	m.nextMessageID++
	msg := Message{
		ID:        m.nextMessageID,
		ChannelID: nm.ChannelID,
		From:      nm.From,
		Content:   nm.Content,
	}
	m.messages[nm.ChannelID] = append(m.messages[nm.ChannelID], msg)

	if msg.ID > offset {
		offsets[nm.From] = msg.ID
	}
	return msg, nil
}

func (m *Memory) ListMessages(_ context.Context, q ListMessagesQuery) (Page[Message], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := m.messages[q.ChannelID]
	selected := make([]Message, 0, q.Size+1)

	if q.OrderBy == OrderIDDesc {
		for i := len(all) - 1; i >= 0 && len(selected) <= q.Size; i-- {
			if q.After == nil || all[i].ID < *q.After {
				selected = append(selected, all[i])
			}
		}
	} else {
		for i := 0; i < len(all) && len(selected) <= q.Size; i++ {
			if q.After == nil || all[i].ID > *q.After {
				selected = append(selected, all[i])
			}
		}
	}

	return pageOf(selected, q.Size), nil
}

func (m *Memory) AdvanceReadOffsetIfGreater(_ context.Context, userID, channelID string, messageID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	offset, member := m.members[channelID][userID]
	if !member || messageID <= offset {
		return false, nil
	}
	m.members[channelID][userID] = messageID
	return true, nil
}

func (m *Memory) CountUnread(_ context.Context, userID, channelID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.unreadLocked(userID, channelID), nil
}

// --- helpers; callers hold mu ---

func (m *Memory) addChannelLocked(name *string, typ ChannelType) string {
	id := uuid.NewString()
	m.channels[id] = &memChannel{id: id, name: name, typ: typ}
	m.members[id] = make(map[string]int64)
	if name != nil {
		m.channelNames[*name] = id
	}
	return id
}

func (m *Memory) addMemberLocked(userID, channelID string) {
	m.members[channelID][userID] = 0
	if m.joined[userID] == nil {
		m.joined[userID] = make(map[string]struct{})
	}
	m.joined[userID][channelID] = struct{}{}
}

func (m *Memory) unreadLocked(userID, channelID string) int {
	offset := m.members[channelID][userID]
	msgs := m.messages[channelID]
	// messages are appended in id order, so the unread ones form a suffix
	i := sort.Search(len(msgs), func(i int) bool { return msgs[i].ID > offset })
	return len(msgs) - i
}

func (m *Memory) viewLocked(viewerID, channelID string) Channel {
	ch := m.channels[channelID]
	view := Channel{
		ID:        ch.id,
		Name:      ch.name,
		Type:      ch.typ,
		Users:     []string{},
		UserCount: len(m.members[channelID]),
	}
	if ch.typ == ChannelPrivate {
		for memberID := range m.members[channelID] {
			if memberID != viewerID {
				view.Users = append(view.Users, memberID)
			}
		}
		sort.Strings(view.Users)
	}
	if _, member := m.members[channelID][viewerID]; member {
		view.UnreadCount = m.unreadLocked(viewerID, channelID)
	}
	return view
}

// sortByName orders by name with unnamed (private) channels last, then by id.
func sortByName(views []Channel) {
	sort.Slice(views, func(i, j int) bool {
		a, b := views[i].Name, views[j].Name
		switch {
		case a != nil && b != nil && *a != *b:
			return *a < *b
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return views[i].ID < views[j].ID
	})
}

func pageOf[T any](rows []T, size int) Page[T] {
	if len(rows) > size {
		return Page[T]{Data: rows[:size], HasMore: true}
	}
	return Page[T]{Data: rows, HasMore: false}
}
