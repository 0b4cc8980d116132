// Package server builds the waypoint server process from a config file.
package server

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/waypointgames/waypoint/pkg/config"
	"github.com/waypointgames/waypoint/pkg/platform"
)

// Version is set at build time.
var Version = "dev"

// NewLogger returns a slog logger writing to w in the configured format
// and level.
func NewLogger(cfg config.ServerConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level()}
	var h slog.Handler
	if cfg.LogFormat == "text" {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h).With("version", Version)
}

// LoadConfig loads and validates a server config file.
func LoadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewWithConfig loads the config at path, installs the configured logger
// as the slog default and creates the platform.
func NewWithConfig(path string, logOutput io.Writer) (*platform.Platform, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(NewLogger(cfg.Server, logOutput))

	p, err := platform.New(platform.WithConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("creating platform: %w", err)
	}
	return p, nil
}
