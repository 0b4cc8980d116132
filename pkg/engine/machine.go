package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/waypointgames/waypoint/pkg/flow"
	"github.com/waypointgames/waypoint/pkg/page"
	"github.com/waypointgames/waypoint/pkg/session"
)

// Options configures a Machine.
type Options struct {
	Key session.Key

	// ForceNew replays the game: resolution skips the lookup and creates a
	// session that supersedes the current one.
	ForceNew bool
}

// Snapshot is a copy of the machine's state.
type Snapshot struct {
	State     State          `json:"state"`
	SessionID string         `json:"sessionId,omitempty"`
	PageIndex int            `json:"pageIndex"`
	PageID    string         `json:"pageId,omitempty"`
	Score     int            `json:"score"`
	Inventory []string       `json:"inventory"`
	Variables map[string]any `json:"variables"`
	Completed bool           `json:"completed"`
}

// Machine is the session state machine for one player and one game. It is
// the only mutator of the player's session state. It is safe for concurrent
// use.
type Machine struct {
	sessions SessionAPI
	catalog  Catalog
	writer   Writer
	opts     Options

	mu sync.Mutex
	// started is the resolution guard. It is set when resolution begins and
	// cleared only when resolution fails, so a session is resolved once.
	started   bool
	closed    bool
	state     State
	pages     []page.Page
	sessionID string
	index     int
	score     int
	inventory []string
	variables map[string]any
	// gen counts state changes; a failed write rolls back only the
	// generation it carried.
	gen uint64

	// writeMu is taken while mu is held, so writes leave in the order
	// their states were generated.
	writeMu sync.Mutex
}

// New creates a machine in StateUninitialized.
func New(sessions SessionAPI, catalog Catalog, writer Writer, opts Options) *Machine {
	return &Machine{
		sessions: sessions,
		catalog:  catalog,
		writer:   writer,
		opts:     opts,
		state:    StateUninitialized,
	}
}

// Start resolves the player's session: it restores the current one or
// creates a new one. Resolution runs once; later calls return the current
// snapshot without I/O. When the lookup fails the machine stays unresolved
// and no session is created. When creation fails the error is a
// *CreateError and Start may be called again.
func (m *Machine) Start(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Snapshot{}, ErrClosed
	}
	if m.started {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap, nil
	}
	m.started = true
	m.state = StateResolving
	m.mu.Unlock()

	return m.resolve(ctx)
}

func (m *Machine) resolve(ctx context.Context) (Snapshot, error) {
	key := m.opts.Key
	pages, err := m.catalog.Pages(ctx, key.GameID, key.ChapterID)
	if err != nil {
		return m.unresolved(StateUninitialized, fmt.Errorf("loading pages: %w", err))
	}
	if len(pages) == 0 {
		return m.unresolved(StateUninitialized, ErrNoPages)
	}
	pages = slices.Clone(pages)
	page.SortPages(pages)

	var s *session.Session
	if !m.opts.ForceNew {
		s, err = m.sessions.CurrentSession(ctx, key)
		if err != nil {
			return m.unresolved(StateUninitialized, fmt.Errorf("looking up session: %w", err))
		}
	}

	if s == nil {
		if err := m.transition(StateCreating); err != nil {
			return Snapshot{}, err
		}
		s, err = m.sessions.CreateSession(ctx, session.CreateParams{
			Key:         key,
			ForceNew:    m.opts.ForceNew,
			FirstPageID: pages[0].ID,
		})
		if err == nil && s == nil {
			err = errors.New("server returned no session")
		}
		if err != nil {
			return m.unresolved(StateFailed, &CreateError{Err: err})
		}
		slog.Info("session created", "session_id", s.ID, "game_id", key.GameID, "force_new", m.opts.ForceNew)
	} else if err := m.transition(StateRestoring); err != nil {
		return Snapshot{}, err
	}

	return m.restore(ctx, pages, s)
}

// transition moves to an intermediate resolution state unless the machine
// was closed meanwhile.
func (m *Machine) transition(st State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.state = st
	return nil
}

// unresolved releases the resolution guard after a failure.
func (m *Machine) unresolved(st State, err error) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Snapshot{}, ErrClosed
	}
	m.started = false
	m.state = st
	return m.snapshotLocked(), err
}

func (m *Machine) restore(ctx context.Context, pages []page.Page, s *session.Session) (Snapshot, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Snapshot{}, ErrClosed
	}

	m.pages = pages
	m.sessionID = s.ID
	m.score = s.Score
	m.inventory = slices.Clone(s.Inventory)
	m.variables = maps.Clone(s.Variables)
	if m.variables == nil {
		m.variables = map[string]any{}
	}

	if s.Status == session.StatusCompleted {
		m.index = len(pages) - 1
		m.state = StateCompleted
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap, nil
	}

	idx := page.IndexOf(pages, s.CurrentPageID)
	if idx < 0 {
		if s.CurrentPageID != "" {
			slog.Warn("session page not in game, resuming at first page",
				"session_id", s.ID, "page_id", s.CurrentPageID)
		}
		idx = 0
	}
	m.index = idx
	m.state = StateActive

	return m.settleLocked(ctx)
}

// settleLocked resolves a router page at the current position. It is
// called with m.mu held and releases it.
func (m *Machine) settleLocked(ctx context.Context) (Snapshot, error) {
	if !m.pages[m.index].IsRouter() {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap, nil
	}
	idx, done, err := m.land(m.index, m.flowContext())
	if err != nil {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap, err
	}
	prev := m.saveLocked()
	m.index = idx
	if done {
		m.state = StateCompleted
	}
	return m.persistLocked(ctx, prev)
}

// Apply applies a page outcome to the active session. The reward is applied
// first and outcome variables merged, then the next page is resolved, so
// routers see what the page just granted. Landing on router pages resolves
// them at once; the player never rests on one.
func (m *Machine) Apply(ctx context.Context, out page.Outcome) (Snapshot, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Snapshot{}, ErrClosed
	}
	if m.state != StateActive {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap, ErrNotActive
	}

	score, inventory := out.Reward.Apply(m.score, m.inventory)
	variables := maps.Clone(m.variables)
	maps.Copy(variables, out.Variables)
	fctx := flow.Context{Variables: variables, Inventory: inventory, Score: score}

	var (
		idx  int
		done bool
	)
	switch {
	case out.Ends():
		done = true
	case out.NextPageID != "":
		idx = page.IndexOf(m.pages, out.NextPageID)
		if idx < 0 {
			slog.Warn("next page not in game, advancing in order",
				"session_id", m.sessionID, "page_id", out.NextPageID)
			idx = m.index + 1
		}
	default:
		idx = m.index + 1
	}
	if !done {
		var err error
		if idx, done, err = m.land(idx, fctx); err != nil {
			snap := m.snapshotLocked()
			m.mu.Unlock()
			return snap, err
		}
	}

	prev := m.saveLocked()
	m.score, m.inventory, m.variables = score, inventory, variables
	if done {
		m.index = len(m.pages) - 1
		m.state = StateCompleted
	} else {
		m.index = idx
	}
	return m.persistLocked(ctx, prev)
}

// Reevaluate re-resolves the current page if it is a flow router. Routers
// are pure, so calling it any number of times is safe.
func (m *Machine) Reevaluate(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Snapshot{}, ErrClosed
	}
	if m.state != StateActive {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap, ErrNotActive
	}
	return m.settleLocked(ctx)
}

// land returns where a player entering idx comes to rest, resolving
// routers on the way against fctx. done reports that the game ended.
func (m *Machine) land(idx int, fctx flow.Context) (int, bool, error) {
	for hops := 0; idx < len(m.pages); hops++ {
		p := m.pages[idx]
		if !p.IsRouter() {
			return idx, false, nil
		}
		if hops >= len(m.pages) {
			return 0, false, fmt.Errorf("%w: stuck at page %s", ErrRouterLoop, p.ID)
		}

		target, ok := m.route(p, fctx)
		switch {
		case !ok:
			idx++
		case target == page.EndPageID:
			return len(m.pages) - 1, true, nil
		default:
			t := page.IndexOf(m.pages, target)
			if t < 0 {
				slog.Warn("router target not in game, advancing in order",
					"page_id", p.ID, "target_page_id", target)
				idx++
				continue
			}
			idx = t
		}
	}
	return len(m.pages) - 1, true, nil
}

func (m *Machine) route(p page.Page, fctx flow.Context) (string, bool) {
	rc, err := p.Router()
	if err != nil {
		slog.Warn("unreadable router config, advancing in order", "page_id", p.ID, "error", err)
		return "", false
	}
	return rc.Resolve(fctx)
}

func (m *Machine) flowContext() flow.Context {
	return flow.Context{Variables: m.variables, Inventory: m.inventory, Score: m.score}
}

// savedState is the part of the machine a transition changes.
type savedState struct {
	state     State
	index     int
	score     int
	inventory []string
	variables map[string]any
}

func (m *Machine) saveLocked() savedState {
	return savedState{
		state:     m.state,
		index:     m.index,
		score:     m.score,
		inventory: m.inventory,
		variables: m.variables,
	}
}

// persistLocked writes the current state. It is called with m.mu held and
// releases it once the write is ordered behind earlier writes. When the
// write fails the machine returns to prev, unless a newer transition has
// already been made on top of the failed one.
func (m *Machine) persistLocked(ctx context.Context, prev savedState) (Snapshot, error) {
	m.gen++
	gen := m.gen
	snap := m.snapshotLocked()
	id := m.sessionID
	p := session.Progress{
		PageID:    snap.PageID,
		Score:     snap.Score,
		Inventory: slices.Clone(snap.Inventory),
		Variables: maps.Clone(snap.Variables),
		Completed: snap.Completed,
	}
	m.writeMu.Lock()
	m.mu.Unlock()

	queued, err := m.writer.WriteProgress(ctx, id, p)
	m.writeMu.Unlock()
	if err != nil {
		m.mu.Lock()
		if m.gen == gen {
			m.state, m.index, m.score = prev.state, prev.index, prev.score
			m.inventory, m.variables = prev.inventory, prev.variables
			m.gen++
			snap = m.snapshotLocked()
		}
		m.mu.Unlock()
		return snap, fmt.Errorf("saving progress: %w", err)
	}
	if queued {
		slog.Debug("progress queued offline", "session_id", id, "page_id", p.PageID)
	}
	return snap, nil
}

// Snapshot returns a copy of the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// CurrentPage returns the page the player is on. ok is false before the
// session is resolved.
func (m *Machine) CurrentPage() (p page.Page, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateActive && m.state != StateCompleted {
		return page.Page{}, false
	}
	return m.pages[m.index].Clone(), true
}

// Close stops the machine. Outcomes and responses arriving afterwards are
// dropped with ErrClosed.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

func (m *Machine) snapshotLocked() Snapshot {
	s := Snapshot{
		State:     m.state,
		SessionID: m.sessionID,
		PageIndex: m.index,
		Score:     m.score,
		Inventory: slices.Clone(m.inventory),
		Variables: maps.Clone(m.variables),
		Completed: m.state == StateCompleted,
	}
	if m.index >= 0 && m.index < len(m.pages) {
		s.PageID = m.pages[m.index].ID
	}
	return s
}
