/*
Package handler provides the HTTP handler function for WebSocket connection upgrading and initialization.

This file contains HandleWebSocket, which upgrades an authenticated request and hands the
connection to the chat Manager for its whole lifecycle.
*/
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"groupchat/internal/app/chat"
	"groupchat/internal/pkg/auth/jwt"
	"groupchat/internal/pkg/errs"
	"groupchat/internal/pkg/logx"
	"groupchat/internal/pkg/resp"
)

const connectTimeout = 10 * time.Second

// HandleWebSocket creates an HTTP HandlerFunc that upgrades the request and serves the
// connection until it ends. It must run behind jwt.RequireIdentity.
func HandleWebSocket(manager *chat.Manager, upgrader websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, errs.NewError(errs.ErrUnauthenticated))
			return
		}

		logx.Info("Attempting to upgrade connection", "user_id", identity.ID, "session_id", identity.SessionID)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		client, err := manager.Connect(ctx, identity.ID, identity.SessionID, conn)
		cancel()

		if err != nil {
			logx.Error(err, "Failed to register connection", "user_id", identity.ID)
			msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			_ = conn.Close()
			return
		}

		manager.Serve(client)
	}
}
