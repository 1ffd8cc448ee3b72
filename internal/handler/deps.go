package handler

import (
	"context"

	"groupchat/internal/app/chat"
	"groupchat/internal/app/store"
	"groupchat/internal/configs"
	"groupchat/internal/pkg/metrics"
)

// Pinger is implemented by stores backed by a remote database.
type Pinger interface {
	Ping(ctx context.Context) error
}

// AppDeps carries what the HTTP handlers need.
type AppDeps struct {
	Manager *chat.Manager
	Config  *configs.AppConfig
	Store   store.Store
	Metrics *metrics.Metrics
}
