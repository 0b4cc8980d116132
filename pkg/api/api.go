// Package api serves the waypoint HTTP API: the page catalog, the caller's
// session for a game, progress writes, and the staff views of the session
// event log.
package api

import (
	"net/http"

	"github.com/waypointgames/waypoint/pkg/audit"
	"github.com/waypointgames/waypoint/pkg/auth"
	"github.com/waypointgames/waypoint/pkg/catalog"
	"github.com/waypointgames/waypoint/pkg/health"
	"github.com/waypointgames/waypoint/pkg/notify"
	"github.com/waypointgames/waypoint/pkg/session"
)

// Deps holds the server's collaborators. Sessions, Catalog and Auth are
// required; the rest enable optional routes.
type Deps struct {
	Sessions session.Store
	Catalog  catalog.Store
	Auth     auth.Authenticator

	// Events enables the staff event listing, and the stats route when it
	// also implements audit.MetricsQuerier.
	Events audit.Logger
	// Hub enables the websocket watch stream.
	Hub *notify.Hub
	// Health enables /healthz and /readyz.
	Health *health.Checker
	// Metrics enables request instrumentation and /metrics.
	Metrics *Metrics
}

// Server is the API's http.Handler.
type Server struct {
	mux  *http.ServeMux
	deps Deps
}

// NewServer creates a server and registers its routes.
func NewServer(deps Deps) *Server {
	s := &Server{
		mux:  http.NewServeMux(),
		deps: deps,
	}
	s.registerRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type middleware func(http.Handler) http.Handler

func chain(h http.Handler, mws ...middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// handle registers an instrumented route.
func (s *Server) handle(pattern string, h http.HandlerFunc, mws ...middleware) {
	s.mux.Handle(pattern, s.deps.Metrics.instrument(pattern, chain(h, mws...)))
}

func (s *Server) registerRoutes() {
	authed := middleware(auth.Middleware(s.deps.Auth))
	editor := middleware(auth.RequireRole(auth.RoleEditor))
	staff := middleware(auth.RequireRole(auth.RoleStaff))

	s.handle("GET /api/v1/games/{gameID}/pages", s.listPages, authed)
	s.handle("POST /api/v1/games/{gameID}/pages/batch", s.createPages, authed, editor)

	s.handle("GET /api/v1/games/{gameID}/session", s.getCurrentSession, authed)
	s.handle("POST /api/v1/games/{gameID}/sessions", s.createSession, authed)
	s.handle("PATCH /api/v1/sessions/{sessionID}/progress", s.updateProgress, authed)

	if s.deps.Events != nil {
		s.handle("GET /api/v1/games/{gameID}/events", s.listEvents, authed, staff)
		if mq, ok := s.deps.Events.(audit.MetricsQuerier); ok {
			s.handle("GET /api/v1/games/{gameID}/stats", getStats(mq), authed, staff)
		}
	}
	if s.deps.Hub != nil {
		s.handle("GET /api/v1/games/{gameID}/watch", s.watch, authed, staff)
	}

	if s.deps.Health != nil {
		s.mux.Handle("GET /healthz", s.deps.Health.LivenessHandler())
		s.mux.Handle("GET /readyz", s.deps.Health.ReadinessHandler())
	}
	if s.deps.Metrics != nil {
		s.mux.Handle("GET /metrics", s.deps.Metrics.Handler())
	}
}

// userID returns the authenticated caller. Routes using it run behind
// auth.Middleware, which guarantees a user.
func userID(r *http.Request) string {
	if uc := auth.GetUserContext(r.Context()); uc != nil {
		return uc.UserID
	}
	return ""
}
