// Package platform assembles the waypoint server from configuration: it
// opens the database, picks the store backends, wires the session event
// log and watch stream, and owns their startup and shutdown.
package platform

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/waypointgames/waypoint/pkg/api"
	"github.com/waypointgames/waypoint/pkg/audit"
	auditpg "github.com/waypointgames/waypoint/pkg/audit/postgres"
	"github.com/waypointgames/waypoint/pkg/auth"
	"github.com/waypointgames/waypoint/pkg/catalog"
	catalogpg "github.com/waypointgames/waypoint/pkg/catalog/postgres"
	"github.com/waypointgames/waypoint/pkg/config"
	"github.com/waypointgames/waypoint/pkg/database/migrate"
	"github.com/waypointgames/waypoint/pkg/health"
	"github.com/waypointgames/waypoint/pkg/notify"
	"github.com/waypointgames/waypoint/pkg/session"
	sessionpg "github.com/waypointgames/waypoint/pkg/session/postgres"
)

// cleanupStore is a session backend with a retention routine.
type cleanupStore interface {
	session.Store
	StartCleanupRoutine(interval, retention time.Duration)
}

// Platform is the assembled server.
type Platform struct {
	config    *config.Config
	lifecycle *Lifecycle

	db     *sql.DB
	ownsDB bool

	sessions session.Store
	catalog  catalog.Store
	events   audit.Logger
	hub      *notify.Hub

	jwt           *auth.JWTAuthenticator
	authenticator auth.Authenticator

	health  *health.Checker
	metrics *api.Metrics
	handler http.Handler
}

// New creates a new platform instance.
func New(opts ...Option) (*Platform, error) {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}

	if options.Config == nil {
		return nil, errors.New("config is required")
	}

	p := &Platform{
		config:    options.Config,
		lifecycle: NewLifecycle(),
		health:    health.NewChecker(),
		metrics:   api.NewMetrics(),
	}

	if err := p.initializeComponents(options); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("initializing components: %w", err)
	}
	return p, nil
}

func (p *Platform) initializeComponents(opts *Options) error {
	if err := p.initDatabase(opts); err != nil {
		return err
	}
	p.initStores(opts)
	p.initEvents(opts)
	if err := p.initAuth(opts); err != nil {
		return err
	}
	p.finalizeSetup()
	return nil
}

// initDatabase opens PostgreSQL when a DSN is configured.
func (p *Platform) initDatabase(opts *Options) error {
	if opts.DB != nil {
		p.db = opts.DB
		return nil
	}
	if p.config.Database.DSN == "" {
		return nil
	}

	db, err := sql.Open("postgres", p.config.Database.DSN)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(p.config.Database.MaxOpenConns)
	p.db = db
	p.ownsDB = true
	return nil
}

// initStores picks the PostgreSQL backends when a database is available
// and the in-memory ones otherwise.
func (p *Platform) initStores(opts *Options) {
	switch {
	case opts.Sessions != nil:
		p.sessions = opts.Sessions
	case p.db != nil:
		p.sessions = sessionpg.New(p.db)
	default:
		p.sessions = session.NewMemoryStore()
	}

	switch {
	case opts.Catalog != nil:
		p.catalog = opts.Catalog
	case p.db != nil:
		p.catalog = catalogpg.New(p.db)
	default:
		p.catalog = catalog.NewMemoryStore()
	}
}

// initEvents sets up the session event log and, when enabled, the staff
// watch hub.
func (p *Platform) initEvents(opts *Options) {
	switch {
	case opts.Events != nil:
		p.events = opts.Events
	case !p.config.Audit.Enabled:
	case p.db != nil:
		p.events = auditpg.New(p.db, auditpg.Config{RetentionDays: p.config.Audit.RetentionDays})
	default:
		p.events = audit.NewMemoryLogger()
	}

	if p.config.Notify.Enabled {
		p.hub = notify.New(notify.Config{BufferSize: p.config.Notify.BufferSize})
	}
}

// initAuth builds the authenticator chain: signed tokens first, then
// static API keys.
func (p *Platform) initAuth(opts *Options) error {
	cfg := p.config.Auth
	if cfg.SigningKey != "" {
		jwtAuth, err := auth.NewJWTAuthenticator(auth.JWTConfig{
			Issuer:        cfg.Issuer,
			SigningKey:    []byte(cfg.SigningKey),
			RoleClaimPath: cfg.RoleClaimPath,
			RolePrefix:    cfg.RolePrefix,
		})
		if err != nil {
			return fmt.Errorf("creating jwt authenticator: %w", err)
		}
		p.jwt = jwtAuth
	}

	if opts.Authenticator != nil {
		p.authenticator = opts.Authenticator
		return nil
	}

	var chain []auth.Authenticator
	if p.jwt != nil {
		chain = append(chain, p.jwt)
	}
	if len(cfg.APIKeys) > 0 {
		chain = append(chain, auth.NewAPIKeyAuthenticator(cfg.APIKeys))
	}
	if len(chain) == 0 {
		return errors.New("no authenticator configured")
	}
	p.authenticator = auth.NewChainedAuthenticator(chain...)
	return nil
}

// recorders returns the sinks session events are fanned out to.
func (p *Platform) recorders() audit.Fanout {
	sinks := audit.Fanout{audit.NewSlogLogger(nil)}
	if p.events != nil {
		sinks = append(sinks, p.events)
	}
	if p.hub != nil {
		sinks = append(sinks, p.hub)
	}
	return sinks
}

// finalizeSetup builds the HTTP handler and registers lifecycle hooks.
func (p *Platform) finalizeSetup() {
	deps := api.Deps{
		Sessions: audit.NewSessionStore(p.sessions, p.recorders()),
		Catalog:  p.catalog,
		Auth:     p.authenticator,
		Events:   p.events,
		Hub:      p.hub,
		Health:   p.health,
		Metrics:  p.metrics,
	}
	p.handler = api.NewServer(deps)

	if p.db != nil {
		p.health.AddDependency("database", p.db)
		if p.config.Database.Migrate {
			p.lifecycle.OnStart("migrations", func(context.Context) error {
				return migrate.Run(p.db)
			})
		}
	}

	sessCfg := p.config.Sessions
	if cs, ok := p.sessions.(cleanupStore); ok && sessCfg.SupersededRetention > 0 {
		p.lifecycle.Append("session cleanup",
			func(context.Context) error {
				cs.StartCleanupRoutine(sessCfg.CleanupInterval, sessCfg.SupersededRetention)
				return nil
			},
			func(context.Context) error { return cs.Close() })
	}

	if pg, ok := p.events.(*auditpg.Store); ok {
		p.lifecycle.Append("event cleanup",
			func(context.Context) error {
				pg.StartCleanupRoutine(sessCfg.CleanupInterval)
				return nil
			},
			func(context.Context) error { return pg.Close() })
	}

	if p.hub != nil {
		p.lifecycle.RegisterCloser("watch hub", p.hub)
	}

	p.lifecycle.Append("readiness",
		func(context.Context) error {
			p.health.SetReady()
			return nil
		},
		func(context.Context) error {
			p.health.SetDraining()
			return nil
		})
}

// Start runs migrations, starts background routines and marks the
// server ready.
func (p *Platform) Start(ctx context.Context) error {
	return p.lifecycle.Start(ctx)
}

// Stop marks the server as draining and stops background routines.
func (p *Platform) Stop(ctx context.Context) error {
	return p.lifecycle.Stop(ctx)
}

// Handler returns the HTTP API.
func (p *Platform) Handler() http.Handler {
	return p.handler
}

// Config returns the platform configuration.
func (p *Platform) Config() *config.Config {
	return p.config
}

// Sessions returns the session store, without event recording.
func (p *Platform) Sessions() session.Store {
	return p.sessions
}

// Catalog returns the page catalog.
func (p *Platform) Catalog() catalog.Store {
	return p.catalog
}

// Events returns the session event log, or nil when audit is disabled.
func (p *Platform) Events() audit.Logger {
	return p.events
}

// Health returns the health checker.
func (p *Platform) Health() *health.Checker {
	return p.health
}

// TokenIssuer returns the JWT authenticator, or nil when no signing key
// is configured.
func (p *Platform) TokenIssuer() *auth.JWTAuthenticator {
	return p.jwt
}

// Serve runs the HTTP server on the configured address until ctx is
// cancelled, then shuts it down gracefully.
func (p *Platform) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              p.config.Server.Address,
		Handler:           p.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "address", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serving http: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), p.config.Server.ShutdownTimeout)
	defer cancel()
	if err := p.Stop(shutdownCtx); err != nil {
		slog.Warn("stopping platform", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http: %w", err)
	}
	return nil
}

// Close releases the database connection if the platform opened it.
func (p *Platform) Close() error {
	if p.ownsDB && p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database: %w", err)
		}
	}
	return nil
}
