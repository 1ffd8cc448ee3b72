/*
Package randx provides identifier generation and validation helpers.

Connection ids are ULIDs: unique per process lifetime and sortable by creation time, which keeps
log lines for one connection easy to follow. Entity ids (users, channels) are UUIDs.
*/
package randx

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// ConnectionID returns a new ULID string for a live connection.
func ConnectionID() string {
	return ulid.Make().String()
}

// IsValidUUID reports whether s is a UUID in canonical 36-character form.
func IsValidUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
