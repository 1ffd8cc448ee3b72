/*
Package store defines the persistence contract consumed by the chat coordinators.

The contract is split per concern (users, presence, channels, messages) so that each coordinator
depends only on what it uses. Implementations live in this package (Memory) and in package db
(PostgresStore). Every multi-statement mutation is atomic: either all of its effects are visible
or none are.
*/
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"groupchat/internal/app/user"
)

var (
	// ErrNotFound is returned when a referenced user, channel or message does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned when a uniqueness rule is violated (channel name, membership).
	ErrConflict = errors.New("store: conflict")

	// ErrNotMember is returned when an operation requires a membership the user does not have.
	ErrNotMember = errors.New("store: not a member")
)

// ChannelType distinguishes open channels from fixed-membership direct channels.
type ChannelType string

const (
	ChannelPublic  ChannelType = "public"
	ChannelPrivate ChannelType = "private"
)

// GeneralChannelName is the well-known public channel every new user joins.
const GeneralChannelName = "General"

// Order is a sort specification in "field:direction" form.
type Order string

const (
	OrderNameAsc Order = "name:asc"
	OrderIDAsc   Order = "id:asc"
	OrderIDDesc  Order = "id:desc"
)

// Channel is a channel as seen by one viewer.
// Users lists the other members of a private channel and is always empty for public channels.
// UnreadCount is relative to the viewer's read offset.
type Channel struct {
	ID          string      `json:"id"`
	Name        *string     `json:"name"`
	Type        ChannelType `json:"type"`
	Users       []string    `json:"users"`
	UserCount   int         `json:"userCount"`
	UnreadCount int         `json:"unreadCount"`
}

// Message is a persisted chat message. IDs are strictly increasing in creation order.
type Message struct {
	ID        int64  `json:"id,string"`
	ChannelID string `json:"channelId"`
	From      string `json:"from"`
	Content   string `json:"content"`
}

// Page is one page of a cursor or size-limited listing.
type Page[T any] struct {
	Data    []T
	HasMore bool
}

// NewMessage holds the fields of a message to persist.
type NewMessage struct {
	ChannelID string
	From      string
	Content   string
}

// ListChannelsQuery selects the viewer's channels.
type ListChannelsQuery struct {
	Size    int
	OrderBy Order
}

// ListMessagesQuery selects messages of one channel. After is an exclusive cursor:
// ascending order returns ids greater than After, descending order ids less than After.
type ListMessagesQuery struct {
	ChannelID string
	After     *int64
	Size      int
	OrderBy   Order
}

// SearchQuery is a case-insensitive name prefix search.
type SearchQuery struct {
	Prefix string
	Size   int
}

// UserStore manages user records.
type UserStore interface {
	FindUser(ctx context.Context, userID string) (user.User, error)
	// CreateUser creates a user and joins it to the General channel atomically.
	CreateUser(ctx context.Context, username string) (user.User, error)
	// SearchUsers excludes the caller and users already sharing a private channel with the caller.
	SearchUsers(ctx context.Context, userID string, q SearchQuery) ([]user.User, error)
}

// PresenceStore owns the derived online flag.
type PresenceStore interface {
	// SetUserOnline marks the user online and reports whether it already was, in one atomic step.
	SetUserOnline(ctx context.Context, userID string) (wasOnline bool, err error)
	// SetUserOffline marks the user offline and reports whether it was online before.
	SetUserOffline(ctx context.Context, userID string) (wasOnline bool, err error)
	// TouchUsers refreshes the last-seen timestamp of users that hold live connections.
	TouchUsers(ctx context.Context, userIDs []string) error
	// SweepStaleOnlineUsers flips users online but unseen for longer than staleness to offline
	// and returns exactly the ids it flipped.
	SweepStaleOnlineUsers(ctx context.Context, staleness time.Duration) ([]string, error)
}

// ChannelStore manages channels and memberships.
type ChannelStore interface {
	IsMember(ctx context.Context, userID, channelID string) (bool, error)
	CreatePublicChannel(ctx context.Context, userID, name string) (Channel, error)
	CreatePrivateChannel(ctx context.Context, userID string, otherUserIDs []string) (Channel, error)
	JoinChannel(ctx context.Context, userID, channelID string) (Channel, error)
	// ListMemberships returns the ids of every channel the user belongs to.
	ListMemberships(ctx context.Context, userID string) ([]string, error)
	ListChannels(ctx context.Context, userID string, q ListChannelsQuery) (Page[Channel], error)
	// SearchChannels matches public channels the user has not joined.
	SearchChannels(ctx context.Context, userID string, q SearchQuery) ([]Channel, error)
}

// MessageStore manages messages and read offsets.
type MessageStore interface {
	// InsertMessage persists the message and advances the author's read offset to it.
	// It fails with ErrNotMember when the author does not belong to the channel.
	InsertMessage(ctx context.Context, m NewMessage) (Message, error)
	ListMessages(ctx context.Context, q ListMessagesQuery) (Page[Message], error)
	// AdvanceReadOffsetIfGreater moves the read offset forward only. It reports whether it moved.
	AdvanceReadOffsetIfGreater(ctx context.Context, userID, channelID string, messageID int64) (bool, error)
	CountUnread(ctx context.Context, userID, channelID string) (int, error)
}

// Store is the full adapter.
type Store interface {
	UserStore
	PresenceStore
	ChannelStore
	MessageStore
	Close()
}

// EscapeLike escapes LIKE wildcards with '~' so the prefix matches literally.
// Use together with ESCAPE '~'.
func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}

var likeEscaper = strings.NewReplacer("~", "~~", "%", "~%", "_", "~_")
