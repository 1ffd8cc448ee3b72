/*
Package main is the entry point for the group chat server.

It is responsible for loading configuration, initializing the global logging system, opening the
store, starting the chat Manager and its zombie sweeper, serving HTTP, and gracefully handling
operating system interrupt signals (SIGINT, SIGTERM) to ensure a smooth server shutdown.
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"groupchat/internal/app/chat"
	"groupchat/internal/app/db"
	"groupchat/internal/app/store"
	"groupchat/internal/configs"
	"groupchat/internal/handler"
	"groupchat/internal/pkg/logx"
	"groupchat/internal/pkg/metrics"
)

func main() {
	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.IsDevelopment())
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Dur("disconnect_grace_delay", cfg.DisconnectGraceDelay).
		Dur("zombie_staleness", cfg.ZombieStaleness).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		logx.Fatal(err, "Failed to open store")
	}
	defer st.Close()

	m := metrics.New()

	// Initialize Chat Manager and its zombie sweeper
	manager := chat.NewManager(st, chat.OptionsFromConfig(cfg), m)

	sweeperCtx, stopSweeper := context.WithCancel(context.Background())
	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		manager.RunSweeper(sweeperCtx)
	}()

	// Setup HTTP server and routes
	router := handler.Router(ctx, &handler.AppDeps{
		Manager: manager,
		Config:  cfg,
		Store:   st,
		Metrics: m,
	})

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("Group chat server starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server with a timeout of 5 seconds.
	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Server forced to shutdown")
	}

	stopSweeper()
	<-sweeperDone

	if err := manager.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Manager shutdown timed out")
	}

	logx.Info("Server gracefully stopped.")
}

// openStore connects to Postgres when a DSN is configured. Without one (development only) the
// in-memory store is used and nothing survives a restart.
func openStore(ctx context.Context, cfg *configs.AppConfig) (store.Store, error) {
	if cfg.DatabaseDSN == "" {
		logx.Warn("DATABASE_URL is not set: using the in-memory store.")
		return store.NewMemory(), nil
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	pg, err := db.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return pg, nil
}
