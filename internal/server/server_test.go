package server

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypointgames/waypoint/pkg/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "waypoint.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(config.ServerConfig{LogLevel: "warn", LogFormat: "json"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown", "game_id", "g1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "g1", rec["game_id"])
	assert.Equal(t, Version, rec["version"])
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(config.ServerConfig{LogLevel: "debug", LogFormat: "text"}, &buf)

	logger.Debug("details", "session_id", "s1")
	assert.Contains(t, buf.String(), "level=DEBUG")
	assert.Contains(t, buf.String(), "session_id=s1")
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "auth:\n  signing_key: k\n"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Address)

	_, err = LoadConfig(writeConfig(t, "server:\n  address: \":9000\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.signing_key")

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNewWithConfig(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	p, err := NewWithConfig(writeConfig(t, "auth:\n  signing_key: k\nserver:\n  log_format: text\n"), &buf)
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	assert.NotNil(t, p.Handler())
	slog.Info("configured")
	assert.Contains(t, buf.String(), "msg=configured")
}
