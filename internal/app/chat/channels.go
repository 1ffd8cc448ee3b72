package chat

import (
	"context"

	"github.com/rs/zerolog"

	"groupchat/internal/app/store"
	"groupchat/internal/pkg/logx"
)

// Channels coordinates channel creation and membership.
type Channels struct {
	store    store.ChannelStore
	registry *Registry
	logger   zerolog.Logger
}

// NewChannels builds the channel coordinator.
func NewChannels(st store.ChannelStore, registry *Registry) *Channels {
	return &Channels{
		store:    st,
		registry: registry,
		logger:   logx.Component("Channels"),
	}
}

// CreatePublic creates a named public channel with the acting user as its only member.
func (s *Channels) CreatePublic(ctx context.Context, origin *Connection, name string) (store.Channel, error) {
	ch, err := s.store.CreatePublicChannel(ctx, origin.UserID, name)
	if err != nil {
		return store.Channel{}, err
	}

	s.logger.Info().Str("channel_id", ch.ID).Str("user_id", origin.UserID).Msg("Public channel created")
	s.announce(origin, EventChannelCreated, ch)
	return ch, nil
}

// Join adds the acting user to a public channel.
func (s *Channels) Join(ctx context.Context, origin *Connection, channelID string) (store.Channel, error) {
	ch, err := s.store.JoinChannel(ctx, origin.UserID, channelID)
	if err != nil {
		return store.Channel{}, err
	}

	s.logger.Info().Str("channel_id", ch.ID).Str("user_id", origin.UserID).Msg("User joined channel")
	s.announce(origin, EventChannelJoined, ch)
	return ch, nil
}

// CreatePrivate creates a private channel between the acting user and otherUserIDs.
func (s *Channels) CreatePrivate(ctx context.Context, origin *Connection, otherUserIDs []string) (store.Channel, error) {
	ch, err := s.store.CreatePrivateChannel(ctx, origin.UserID, otherUserIDs)
	if err != nil {
		return store.Channel{}, err
	}

	s.logger.Info().Str("channel_id", ch.ID).Str("user_id", origin.UserID).Msg("Private channel created")
	s.announce(origin, EventChannelCreated, ch)
	return ch, nil
}

// announce syncs the acting user's other tabs: they get the channel view, and every one of
// the user's connections joins the channel room.
func (s *Channels) announce(origin *Connection, event string, ch store.Channel) {
	s.registry.Multicast(userRoom(origin.UserID), event, ch, origin)
	s.registry.JoinAll(userRoom(origin.UserID), channelRoom(ch.ID))
}

// List returns the user's channels ordered by name.
func (s *Channels) List(ctx context.Context, userID string, q store.ListChannelsQuery) (store.Page[store.Channel], error) {
	return s.store.ListChannels(ctx, userID, q)
}

// Search matches public channels by name prefix, excluding those the user already joined.
func (s *Channels) Search(ctx context.Context, userID string, q store.SearchQuery) ([]store.Channel, error) {
	return s.store.SearchChannels(ctx, userID, q)
}
