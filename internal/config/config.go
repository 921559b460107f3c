// Package config loads Kestrel configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Load builds the tier defaults selected by KESTREL_TIER and overlays any
// KESTREL_* environment variables on top.
func Load() (*domain.Config, error) {
	cfg := domain.DefaultConfig()
	if domain.Tier(os.Getenv("KESTREL_TIER")) == domain.TierPro {
		cfg = domain.ProConfig()
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the process cannot start with.
func Validate(cfg *domain.Config) error {
	if cfg.Engine.BaseURL == "" {
		return fmt.Errorf("%w: engine base URL is required", domain.ErrInvalidInput)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("%w: invalid port %d", domain.ErrInvalidInput, cfg.Server.Port)
	}
	if cfg.Session.HistorySize <= 0 {
		cfg.Session.HistorySize = domain.DefaultHistorySize
	}
	return nil
}

// LogLevel maps the configured level to slog. KESTREL_DEBUG=true forces debug.
func LogLevel(cfg domain.LoggingConfig) slog.Level {
	if os.Getenv("KESTREL_DEBUG") == "true" {
		return slog.LevelDebug
	}
	switch strings.ToLower(cfg.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
