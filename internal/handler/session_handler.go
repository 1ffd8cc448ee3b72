/*
Package handler provides HTTP handler functions for the authenticated session.

Credentials are managed by an external identity service. The server only reads the verified
identity, ends a session's live connections on logout, and in development can mint a token for
a new user so the websocket can be exercised without that service.
*/
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"groupchat/internal/app/store"
	"groupchat/internal/pkg/auth/jwt"
	"groupchat/internal/pkg/errs"
	"groupchat/internal/pkg/logx"
	"groupchat/internal/pkg/req"
	"groupchat/internal/pkg/resp"
)

const maxBodyBytes = 4096

type SignupInput struct {
	Username string `json:"username"`
}

// HandleDevSignup creates a user and returns a session token for it. Development only.
func HandleDevSignup(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			resp.RespondError(w, errs.NewError(errs.ErrInvalidJSONFormat))
			return
		}

		var input SignupInput
		if customErr := req.DecodePayload(json.RawMessage(raw), &input); customErr != nil {
			resp.RespondError(w, customErr)
			return
		}

		var v req.Validator
		v.Length(input.Username, 2, 32, "username")
		if customErr := v.Err(); customErr != nil {
			resp.RespondError(w, customErr)
			return
		}

		u, err := deps.Store.CreateUser(r.Context(), input.Username)
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				logx.Warn("signup conflict: username already exists", "username", input.Username)
				resp.RespondError(w, errs.Wrap(errs.ErrConflict, err))
				return
			}

			logx.Error(err, "failed to create user")
			resp.RespondError(w, errs.NewError(errs.ErrStoreUnavailable, err))
			return
		}

		payload := &jwt.Payload{ID: u.ID, SessionID: uuid.NewString()}
		token, err := jwt.GenerateToken(payload, deps.Config.JWTSecret, jwt.SessionExpiration)
		if err != nil {
			logx.Error(err, "failed to generate token after signup")
			resp.RespondError(w, errs.NewError(errs.ErrUnknown))
			return
		}

		logx.Info("user has signed up", "user_id", u.ID)

		resp.RespondSuccess(w, map[string]any{
			"token": token,
			"user":  u,
		})
	}
}

// HandleSelf returns the authenticated user.
func HandleSelf(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		u, err := deps.Store.FindUser(r.Context(), identity.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				resp.RespondError(w, errs.NewError(errs.ErrUnauthenticated))
				return
			}
			logx.Error(err, "self: user fetch failed", "user_id", identity.ID)
			resp.RespondError(w, errs.NewError(errs.ErrStoreUnavailable, err))
			return
		}

		resp.RespondSuccess(w, u)
	}
}

// HandleLogout closes every live connection of the caller's session.
// Revoking the token itself is up to the identity service.
func HandleLogout(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		closed := deps.Manager.DisconnectSession(identity.SessionID)
		logx.Info("user has logged out", "user_id", identity.ID, "session_id", identity.SessionID, "connections", closed)

		w.WriteHeader(http.StatusNoContent)
	}
}
