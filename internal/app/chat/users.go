package chat

import (
	"context"

	"groupchat/internal/app/store"
	"groupchat/internal/app/user"
)

// Users serves the user directory operations.
type Users struct {
	store    store.UserStore
	presence *Presence
}

// NewUsers builds the user directory.
func NewUsers(st store.UserStore, presence *Presence) *Users {
	return &Users{store: st, presence: presence}
}

// Get returns a user and subscribes the requesting connection to the user's presence changes.
func (u *Users) Get(ctx context.Context, origin *Connection, userID string) (user.User, error) {
	found, err := u.store.FindUser(ctx, userID)
	if err != nil {
		return user.User{}, err
	}

	u.presence.Subscribe(origin, found.ID)
	return found, nil
}

// Search matches usernames by prefix. The caller and the users it already shares a private
// channel with are excluded.
func (u *Users) Search(ctx context.Context, userID string, q store.SearchQuery) ([]user.User, error) {
	return u.store.SearchUsers(ctx, userID, q)
}
