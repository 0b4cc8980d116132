package platform

import (
	"database/sql"

	"github.com/waypointgames/waypoint/pkg/audit"
	"github.com/waypointgames/waypoint/pkg/auth"
	"github.com/waypointgames/waypoint/pkg/catalog"
	"github.com/waypointgames/waypoint/pkg/config"
	"github.com/waypointgames/waypoint/pkg/session"
)

// Options configures the platform.
type Options struct {
	// Config is the platform configuration.
	Config *config.Config

	// Database connection (optional, opened from database.dsn if not
	// provided). The platform does not close a connection it was given.
	DB *sql.DB

	// Sessions (optional, created from the database or in memory).
	Sessions session.Store

	// Catalog (optional, created from the database or in memory).
	Catalog catalog.Store

	// Events (optional, created from the database or in memory when
	// audit is enabled).
	Events audit.Logger

	// Authenticator (optional, created from auth config if not provided).
	Authenticator auth.Authenticator
}

// Option is a functional option for configuring the platform.
type Option func(*Options)

// WithConfig sets the configuration.
func WithConfig(cfg *config.Config) Option {
	return func(o *Options) {
		o.Config = cfg
	}
}

// WithDB sets the database connection.
func WithDB(db *sql.DB) Option {
	return func(o *Options) {
		o.DB = db
	}
}

// WithSessionStore sets the session store.
func WithSessionStore(store session.Store) Option {
	return func(o *Options) {
		o.Sessions = store
	}
}

// WithCatalog sets the page catalog.
func WithCatalog(store catalog.Store) Option {
	return func(o *Options) {
		o.Catalog = store
	}
}

// WithEventLogger sets the session event log.
func WithEventLogger(logger audit.Logger) Option {
	return func(o *Options) {
		o.Events = logger
	}
}

// WithAuthenticator sets the authenticator.
func WithAuthenticator(a auth.Authenticator) Option {
	return func(o *Options) {
		o.Authenticator = a
	}
}
