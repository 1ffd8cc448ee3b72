package chat

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"groupchat/internal/app/store"
	"groupchat/internal/pkg/errs"
	"groupchat/internal/pkg/logx"
)

// Typing relays ephemeral typing signals. Nothing is persisted.
type Typing struct {
	members  store.ChannelStore
	registry *Registry
	logger   zerolog.Logger
}

// NewTyping builds the typing relay.
func NewTyping(members store.ChannelStore, registry *Registry) *Typing {
	return &Typing{
		members:  members,
		registry: registry,
		logger:   logx.Component("Typing"),
	}
}

// Signal broadcasts the acting user's typing state to the channel, except to the originating
// connection. The user must be a member.
func (t *Typing) Signal(ctx context.Context, origin *Connection, channelID string, isTyping bool) error {
	ok, err := t.members.IsMember(ctx, origin.UserID, channelID)
	if err != nil {
		return err
	}
	if !ok {
		return errs.Wrap(errs.ErrNotAuthorized, fmt.Errorf("user %s is not a member of channel %s", origin.UserID, channelID))
	}

	t.registry.Multicast(channelRoom(channelID), EventMessageTyping, TypingPayload{
		UserID:    origin.UserID,
		ChannelID: channelID,
		IsTyping:  isTyping,
	}, origin)
	return nil
}

// ClearAll broadcasts isTyping=false for userID to every channel the user belongs to, so a
// dropped connection cannot leave a stuck indicator behind.
func (t *Typing) ClearAll(ctx context.Context, userID string) error {
	channelIDs, err := t.members.ListMemberships(ctx, userID)
	if err != nil {
		return err
	}

	for _, channelID := range channelIDs {
		t.registry.Multicast(channelRoom(channelID), EventMessageTyping, TypingPayload{
			UserID:    userID,
			ChannelID: channelID,
			IsTyping:  false,
		}, nil)
	}
	return nil
}
