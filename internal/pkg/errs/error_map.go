/*
Package errs provides custom error types and application-level error code constants.

This file maps each error code to its CustomError template (client message and HTTP status).
*/
package errs

import "net/http"

var errorMap = map[int]CustomError{
	// 1xxx
	ErrInvalidParams:      {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrInvalidJSONFormat:  {Code: ErrInvalidJSONFormat, Message: "Unsupported request format.", Status: http.StatusBadRequest},
	ErrExtraContentInBody: {Code: ErrExtraContentInBody, Message: "Request contains unexpected data.", Status: http.StatusBadRequest},
	ErrRateLimitExceeded:  {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},
	ErrUnknownOperation:   {Code: ErrUnknownOperation, Message: "Unsupported operation.", Status: http.StatusBadRequest},

	// 2xxx
	ErrConflict:      {Code: ErrConflict, Message: "The operation could not be completed.", Status: http.StatusConflict},
	ErrNotAuthorized: {Code: ErrNotAuthorized, Message: "The operation could not be completed.", Status: http.StatusForbidden},
	ErrNotFound:      {Code: ErrNotFound, Message: "The operation could not be completed.", Status: http.StatusNotFound},

	// 3xxx
	ErrUnauthenticated: {Code: ErrUnauthenticated, Message: "Please sign in to continue.", Status: http.StatusUnauthorized},

	// 5xxx
	ErrUnknown:          {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
	ErrStoreUnavailable: {Code: ErrStoreUnavailable, Message: "Something went wrong. Please try again.", Status: http.StatusServiceUnavailable},
}
