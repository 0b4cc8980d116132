package player

import (
	"context"
	"fmt"

	"github.com/waypointgames/waypoint/pkg/config"
	"github.com/waypointgames/waypoint/pkg/offline"
	offlineredis "github.com/waypointgames/waypoint/pkg/offline/redis"
)

// OpenBackend opens the configured offline backend. The returned close
// function releases any connection it holds.
func OpenBackend(ctx context.Context, cfg config.OfflineConfig) (offline.Backend, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case config.OfflineBackendMemory:
		return offline.NewMemoryBackend(), noop, nil
	case config.OfflineBackendFile, "":
		return offline.NewFileBackend(cfg.Path), noop, nil
	case config.OfflineBackendRedis:
		b, client, err := offlineredis.Dial(ctx, offlineredis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Key:      cfg.Redis.Key,
		})
		if err != nil {
			return nil, nil, err
		}
		return b, client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown offline backend %q", cfg.Backend)
	}
}
