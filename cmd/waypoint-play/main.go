// Package main provides waypoint-play, a headless player that plays a game
// from a script against a waypoint server, or locally against a pages
// file with -local.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/waypointgames/waypoint/internal/player"
	"github.com/waypointgames/waypoint/internal/server"
	"github.com/waypointgames/waypoint/pkg/catalog"
	"github.com/waypointgames/waypoint/pkg/client"
	"github.com/waypointgames/waypoint/pkg/config"
	"github.com/waypointgames/waypoint/pkg/connectivity"
	"github.com/waypointgames/waypoint/pkg/engine"
	"github.com/waypointgames/waypoint/pkg/offline"
	"github.com/waypointgames/waypoint/pkg/page"
	"github.com/waypointgames/waypoint/pkg/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type playOptions struct {
	configPath string
	scriptPath string
	pagesPath  string
	local      bool
	replay     bool
}

func parseFlags(args []string) (playOptions, error) {
	opts := playOptions{}
	fs := flag.NewFlagSet("waypoint-play", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "waypoint.yaml", "Path to configuration file")
	fs.StringVar(&opts.scriptPath, "script", "", "Path to the play script")
	fs.StringVar(&opts.pagesPath, "pages", "", "Pages JSON file for -local")
	fs.BoolVar(&opts.local, "local", false, "Play without a server, against -pages")
	fs.BoolVar(&opts.replay, "replay", false, "Supersede the current session and start over")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.scriptPath == "" {
		return opts, errors.New("-script is required")
	}
	if opts.local && opts.pagesPath == "" {
		return opts, errors.New("-local requires -pages")
	}
	return opts, nil
}

// result is printed to stdout when the run ends.
type result struct {
	engine.Snapshot
	Pending int `json:"pending"`
}

func run(ctx context.Context, args []string, stdout, logOutput io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	script, err := player.LoadScript(opts.scriptPath)
	if err != nil {
		return err
	}
	if opts.replay {
		script.Replay = true
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	slog.SetDefault(server.NewLogger(cfg.Server, logOutput))

	var res result
	if opts.local {
		res, err = playLocal(ctx, cfg, script, opts.pagesPath)
	} else {
		res, err = playRemote(ctx, cfg, script)
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(res); encErr != nil && err == nil {
		err = encErr
	}
	return err
}

// playLocal plays against in-memory stores seeded from a pages file.
func playLocal(ctx context.Context, cfg *config.Config, script *player.Script, pagesPath string) (result, error) {
	pages, err := loadPages(pagesPath)
	if err != nil {
		return result{}, err
	}
	cat := catalog.NewMemoryStore()
	cat.Put(pages...)

	api := engine.NewLocalSessions(session.NewMemoryStore(), "local")
	queue := offline.NewQueue(offline.NewMemoryBackend())
	writer := engine.NewProgressWriter(api, queue, connectivity.NewObserver(true))

	m := engine.New(api, cat, writer, script.Options())
	defer m.Close()
	snap, err := player.New(m, script, player.WithLocateTimeout(cfg.Geo.LocateTimeout)).Run(ctx)
	return result{Snapshot: snap}, err
}

// playRemote plays against the server, queueing progress offline while
// the server is unreachable and draining the queue when it comes back.
func playRemote(ctx context.Context, cfg *config.Config, script *player.Script) (result, error) {
	if err := cfg.ValidatePlayer(); err != nil {
		return result{}, err
	}

	backend, closeBackend, err := player.OpenBackend(ctx, cfg.Offline)
	if err != nil {
		return result{}, err
	}
	defer func() { _ = closeBackend() }()
	queue := offline.NewQueue(backend)

	httpClient := &http.Client{Timeout: cfg.Client.Timeout}
	api := client.New(cfg.Client.BaseURL, client.WithToken(cfg.Client.Token), client.WithHTTPClient(httpClient))

	observer := connectivity.NewObserver(true)
	prober := connectivity.NewProber(observer, cfg.Client.BaseURL+"/healthz", cfg.Client.ProbeInterval, httpClient)
	probeCtx, stopProbe := context.WithCancel(ctx)
	defer stopProbe()
	go prober.Run(probeCtx)

	trigger := connectivity.NewTrigger(observer, queue, api,
		connectivity.WithDrainHook(func(applied int, err error) {
			slog.Debug("drain finished", "applied", applied, "error", err)
		}))
	defer trigger.Close()

	writer := engine.NewProgressWriter(api, queue, observer,
		engine.WithTransient(client.IsTransient),
		engine.WithDrainRequest(trigger.Request))

	m := engine.New(api, api, writer, script.Options())
	defer m.Close()
	snap, playErr := player.New(m, script, player.WithLocateTimeout(cfg.Geo.LocateTimeout)).Run(ctx)

	trigger.Request()
	trigger.Wait()

	pending, err := queue.Len(ctx)
	if err != nil {
		slog.Warn("counting pending updates", "error", err)
	}
	if pending > 0 {
		slog.Warn("progress left in offline queue", "pending", pending)
	}
	return result{Snapshot: snap, Pending: pending}, playErr
}

func loadPages(path string) ([]page.Page, error) {
	// #nosec G304 -- path is from CLI args
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pages: %w", err)
	}
	var pages []page.Page
	if err := json.Unmarshal(data, &pages); err != nil {
		return nil, fmt.Errorf("parsing pages: %w", err)
	}
	return pages, nil
}
