/*
Package configs is responsible for loading and parsing the application's configuration settings.

Settings come from operating system environment variables. A .env file in the working
directory is loaded first when present; variables already set in the environment win.
*/
package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig contains all configuration parameters required for the application to run.
type AppConfig struct {
	// General Server Settings
	Environment string
	Port        int

	// Security Settings
	AllowedOrigins []string
	JWTSecret      string

	// Database Settings. An empty DSN selects the in-memory store (development only).
	DatabaseDSN string

	// Presence Settings
	DisconnectGraceDelay time.Duration
	ZombieSweepInterval  time.Duration
	ZombieStaleness      time.Duration

	// Connection Settings
	SendQueueSize int
	OpsPerSecond  float64
	OpsBurst      int
}

// IsDevelopment reports whether the process runs in the development environment.
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// LoadConfig reads and parses the application configuration from environment variables.
// It applies defaults, performs type conversions and validates the result.
func LoadConfig() (*AppConfig, error) {
	// A missing .env file is the normal case outside local development.
	_ = godotenv.Load()

	cfg := &AppConfig{}

	// --- General Server Settings ---
	cfg.Environment = os.Getenv("ENVIRONMENT")
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	port, err := envInt("PORT", 8080)
	if err != nil {
		return nil, err
	}
	if port < 1024 || port > 65535 {
		return nil, fmt.Errorf("port number %d is outside the allowed range (%d-%d)", port, 1024, 65535)
	}
	cfg.Port = port

	// --- Security Settings ---
	cfg.AllowedOrigins = []string{}
	for _, origin := range strings.Split(os.Getenv("ALLOWED_ORIGINS"), ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
		}
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		if !cfg.IsDevelopment() {
			return nil, fmt.Errorf("JWT_SECRET environment variable is required in %s environment", cfg.Environment)
		}
		cfg.JWTSecret = "your_default_insecure_secret_key_change_me"
	}

	// --- Database Settings ---
	cfg.DatabaseDSN = os.Getenv("DATABASE_URL")
	if cfg.DatabaseDSN == "" && !cfg.IsDevelopment() {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required in %s environment", cfg.Environment)
	}

	// --- Presence Settings ---
	if cfg.DisconnectGraceDelay, err = envDuration("DISCONNECT_GRACE_DELAY", 10*time.Second, true); err != nil {
		return nil, err
	}
	if cfg.ZombieSweepInterval, err = envDuration("ZOMBIE_SWEEP_INTERVAL", 60*time.Second, false); err != nil {
		return nil, err
	}
	if cfg.ZombieStaleness, err = envDuration("ZOMBIE_STALENESS", 24*time.Hour, false); err != nil {
		return nil, err
	}

	// --- Connection Settings ---
	if cfg.SendQueueSize, err = envInt("WS_SEND_QUEUE", 256); err != nil {
		return nil, err
	}
	if cfg.SendQueueSize < 1 {
		return nil, fmt.Errorf("WS_SEND_QUEUE must be positive, got %d", cfg.SendQueueSize)
	}

	opsPerSecond, err := envInt("WS_OPS_PER_SECOND", 20)
	if err != nil {
		return nil, err
	}
	cfg.OpsPerSecond = float64(opsPerSecond)

	if cfg.OpsBurst, err = envInt("WS_OPS_BURST", 40); err != nil {
		return nil, err
	}

	return cfg, nil
}

func envInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return n, nil
}

// envDuration parses a Go duration ("10s", "1h"). allowZero permits "0" (used by tests
// to disable the disconnect grace period).
func envDuration(key string, def time.Duration, allowZero bool) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	if d < 0 || (d == 0 && !allowZero) {
		return 0, fmt.Errorf("%s must be positive, got %s", key, raw)
	}
	return d, nil
}
