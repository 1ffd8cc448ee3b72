/*
Package errs provides custom error types and application-level error code constants.

These codes identify the error kinds produced by the coordination layer. Only validation
failures are described to clients in detail; every other kind is reported as a generic failure.
*/
package errs

// 1xxx: Request Handling Errors (ValidationError kind)
const (
	// ErrInvalidParams indicates that payload validation failed; field details are attached.
	ErrInvalidParams = 1001

	// ErrInvalidJSONFormat indicates that an inbound frame or payload is not valid JSON.
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates trailing data after the JSON payload.
	ErrExtraContentInBody = 1004

	// ErrRateLimitExceeded indicates that the connection or IP exceeded its request budget.
	ErrRateLimitExceeded = 1007

	// ErrUnknownOperation indicates an inbound op name that has no handler.
	ErrUnknownOperation = 1008
)

// 2xxx: Channel and Membership Errors
const (
	// ErrConflict covers duplicate channel names, duplicate memberships and unknown join targets.
	ErrConflict = 2101

	// ErrNotAuthorized indicates an operation on a channel the caller is not a member of.
	ErrNotAuthorized = 2102

	// ErrNotFound indicates that a referenced user does not exist.
	ErrNotFound = 2103
)

// 3xxx: Identity and Session Errors
const (
	// ErrUnauthenticated indicates a websocket handshake without a valid identity token.
	ErrUnauthenticated = 3001
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified internal error.
	ErrUnknown = 5000

	// ErrStoreUnavailable indicates a transient failure of the persistent store.
	ErrStoreUnavailable = 5001
)
