/*
Package user contains the user identity record shared by the store and the chat layer.
*/
package user

// User is the public representation of a chat participant.
// IsOnline is derived state maintained by the presence tracker; the authoritative answer to
// "is this user online" is whether at least one live connection exists for the user.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	IsOnline bool   `json:"isOnline"`
}
