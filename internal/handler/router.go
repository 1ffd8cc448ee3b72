/*
Package handler provides the HTTP surface of the chat server.

This file defines the main Router, applying middleware like logging, CORS and IP-based rate
limiting before delegating to the websocket endpoint and the small operational API.
*/
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"groupchat/internal/pkg/auth/jwt"
	"groupchat/internal/pkg/errs"
	"groupchat/internal/pkg/limiter"
	"groupchat/internal/pkg/logx"
	"groupchat/internal/pkg/resp"
)

const (
	SignupRate     = 0.05
	SignupBurst    = 2
	HandshakeRate  = 0.5
	HandshakeBurst = 10

	healthTimeout = 2 * time.Second
)

// Router sets up the HTTP routing table. ctx bounds the limiters' cleanup loops.
func Router(ctx context.Context, deps *AppDeps) http.Handler {
	signupLimiter := limiter.NewIPRateLimiter(ctx, rate.Limit(SignupRate), SignupBurst)
	handshakeLimiter := limiter.NewIPRateLimiter(ctx, rate.Limit(HandshakeRate), HandshakeBurst)

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	wsUpgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.IsDevelopment() {
				return true
			}

			origin := r.Header.Get("Origin")
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.IsDevelopment() {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", HandleHealth(deps))
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	r.Route("/api", func(api chi.Router) {
		if deps.Config.IsDevelopment() {
			api.With(signupLimiter.Middleware).Post("/dev/signup", HandleDevSignup(deps))
		}

		api.Group(func(authed chi.Router) {
			authed.Use(jwt.RequireIdentity(deps.Config.JWTSecret))
			authed.Get("/self", HandleSelf(deps))
			authed.Post("/logout", HandleLogout(deps))
		})
	})

	r.With(handshakeLimiter.Middleware, jwt.RequireIdentity(deps.Config.JWTSecret)).
		Get("/ws", HandleWebSocket(deps.Manager, wsUpgrader))

	return r
}

// HandleHealth reports whether the store is reachable.
func HandleHealth(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pinger, ok := deps.Store.(Pinger); ok {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			defer cancel()

			if err := pinger.Ping(ctx); err != nil {
				logx.Error(err, "Health check failed: store unreachable")
				resp.RespondError(w, errs.NewError(errs.ErrStoreUnavailable, err))
				return
			}
		}

		resp.RespondSuccess(w, map[string]string{
			"status":  "ok",
			"service": "groupchat",
		})
	}
}
