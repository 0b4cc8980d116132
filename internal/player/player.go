// Package player plays a game headlessly: it drives the session engine
// through a game's pages with inputs taken from a script.
package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/waypointgames/waypoint/pkg/engine"
	"github.com/waypointgames/waypoint/pkg/geo"
	"github.com/waypointgames/waypoint/pkg/page"
)

// ErrStepLimit is returned when a play-through does not finish within the
// script's step limit.
var ErrStepLimit = errors.New("step limit reached")

// Player runs one script against one engine machine.
type Player struct {
	machine       *engine.Machine
	script        *Script
	locator       geo.Locator
	locateTimeout time.Duration
}

// Option configures a Player.
type Option func(*Player)

// WithLocator overrides the locator GPS pages use. By default the
// script's position is reported.
func WithLocator(l geo.Locator) Option {
	return func(p *Player) { p.locator = l }
}

// WithLocateTimeout bounds each position acquisition.
func WithLocateTimeout(d time.Duration) Option {
	return func(p *Player) { p.locateTimeout = d }
}

// New creates a player.
func New(m *engine.Machine, s *Script, opts ...Option) *Player {
	p := &Player{
		machine:       m,
		script:        s,
		locateTimeout: geo.DefaultLocateTimeout,
	}
	if s.Position != nil {
		pos := *s.Position
		p.locator = geo.LocatorFunc(func(context.Context) (geo.Position, error) {
			return geo.Position{Coordinate: pos, Timestamp: time.Now()}, nil
		})
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run resolves the session and plays until the game is completed. A
// session that is already completed is returned as is.
func (p *Player) Run(ctx context.Context) (engine.Snapshot, error) {
	snap, err := p.machine.Start(ctx)
	if err != nil {
		return snap, fmt.Errorf("starting session: %w", err)
	}
	slog.Info("session resolved", "session_id", snap.SessionID, "state", snap.State, "page_id", snap.PageID)

	for step := 0; snap.State == engine.StateActive; step++ {
		if step >= p.script.MaxSteps {
			return snap, fmt.Errorf("%w after %d pages", ErrStepLimit, step)
		}
		pg, ok := p.machine.CurrentPage()
		if !ok {
			return snap, engine.ErrNotActive
		}

		in, err := p.input(ctx, pg)
		if err != nil {
			return snap, err
		}
		out, err := page.Complete(pg, in)
		if err != nil {
			return snap, fmt.Errorf("completing page %s: %w", pg.ID, err)
		}
		if snap, err = p.machine.Apply(ctx, out); err != nil {
			return snap, fmt.Errorf("applying page %s: %w", pg.ID, err)
		}
		slog.Info("page completed",
			"page_id", pg.ID, "page_type", pg.Type, "score", snap.Score, "next_page_id", snap.PageID)
	}
	return snap, nil
}

// input returns the scripted input for pg. GPS pages without a scripted
// position take one from the locator.
func (p *Player) input(ctx context.Context, pg page.Page) (page.Input, error) {
	in := p.script.Inputs[pg.ID]
	if pg.Type != page.TypeGPSMission || in.Position != nil {
		return in, nil
	}

	pos, err := geo.Acquire(ctx, p.locator, p.locateTimeout)
	if err != nil {
		var le *geo.LocateError
		if errors.As(err, &le) {
			slog.Warn("position unavailable", "page_id", pg.ID, "code", le.Code, "message", le.Message())
		}
		return in, fmt.Errorf("locating for page %s: %w", pg.ID, err)
	}
	in.Position = &pos.Coordinate

	if cfg, err := page.DecodeConfig(pg.Type, pg.Config); err == nil {
		if gc, ok := cfg.(page.GPSMissionConfig); ok {
			g := geo.Navigate(pos.Coordinate, gc.Target)
			slog.Info("navigating",
				"page_id", pg.ID, "distance_meters", g.DistanceMeters,
				"direction", g.Direction, "eta_seconds", g.ETASeconds)
		}
	}
	return in, nil
}
