package chat

import (
	"errors"

	"groupchat/internal/app/store"
	"groupchat/internal/pkg/errs"
)

// toCustomError translates a store or coordinator error into its client-facing kind.
// Anything not recognized is treated as an unavailable store: the client may retry, we never do.
func toCustomError(err error) *errs.CustomError {
	var customErr *errs.CustomError
	if errors.As(err, &customErr) {
		return customErr
	}

	switch {
	case errors.Is(err, store.ErrConflict):
		return errs.Wrap(errs.ErrConflict, err)
	case errors.Is(err, store.ErrNotMember):
		return errs.Wrap(errs.ErrNotAuthorized, err)
	case errors.Is(err, store.ErrNotFound):
		return errs.Wrap(errs.ErrNotFound, err)
	}
	return errs.Wrap(errs.ErrStoreUnavailable, err)
}
