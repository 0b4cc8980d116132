// Package redis stores pending progress updates in a Redis hash, one field
// per session. Kiosks and venue relays use it to share a queue that
// outlives any single device.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/waypointgames/waypoint/pkg/offline"
)

// DefaultKey is the hash used when Config.Key is empty.
const DefaultKey = "waypoint:pending"

// Client is the subset of *goredis.Client the backend uses.
type Client interface {
	HSet(ctx context.Context, key string, values ...any) *goredis.IntCmd
	HGet(ctx context.Context, key, field string) *goredis.StringCmd
	HGetAll(ctx context.Context, key string) *goredis.MapStringStringCmd
	HDel(ctx context.Context, key string, fields ...string) *goredis.IntCmd
}

// Config configures the Redis backend.
type Config struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// Backend implements offline.Backend on a Redis hash.
type Backend struct {
	client Client
	key    string
}

// New returns a backend using client and the hash named key.
func New(client Client, key string) *Backend {
	if key == "" {
		key = DefaultKey
	}
	return &Backend{client: client, key: key}
}

// Dial connects to Redis, checks the connection and returns a backend
// with the client it opened. The caller closes the client.
func Dial(ctx context.Context, cfg Config) (*Backend, *goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}
	return New(client, cfg.Key), client, nil
}

// Put stores u, replacing any update for the same session.
func (b *Backend) Put(ctx context.Context, u offline.Update) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshaling update: %w", err)
	}
	if err := b.client.HSet(ctx, b.key, u.SessionID, data).Err(); err != nil {
		return fmt.Errorf("storing update for session %s: %w", u.SessionID, err)
	}
	return nil
}

// Get returns the update for sessionID.
func (b *Backend) Get(ctx context.Context, sessionID string) (offline.Update, bool, error) {
	raw, err := b.client.HGet(ctx, b.key, sessionID).Result()
	if errors.Is(err, goredis.Nil) {
		return offline.Update{}, false, nil
	}
	if err != nil {
		return offline.Update{}, false, fmt.Errorf("reading update for session %s: %w", sessionID, err)
	}
	var u offline.Update
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return offline.Update{}, false, fmt.Errorf("decoding update for session %s: %w", sessionID, err)
	}
	return u, true, nil
}

// All returns every stored update.
func (b *Backend) All(ctx context.Context) ([]offline.Update, error) {
	fields, err := b.client.HGetAll(ctx, b.key).Result()
	if err != nil {
		return nil, fmt.Errorf("reading pending updates: %w", err)
	}
	out := make([]offline.Update, 0, len(fields))
	for sessionID, raw := range fields {
		var u offline.Update
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			return nil, fmt.Errorf("decoding update for session %s: %w", sessionID, err)
		}
		out = append(out, u)
	}
	return out, nil
}

// Delete removes the update for sessionID.
func (b *Backend) Delete(ctx context.Context, sessionID string) error {
	if err := b.client.HDel(ctx, b.key, sessionID).Err(); err != nil {
		return fmt.Errorf("removing update for session %s: %w", sessionID, err)
	}
	return nil
}

// Verify interface compliance.
var (
	_ offline.Backend = (*Backend)(nil)
	_ Client          = (*goredis.Client)(nil)
)
