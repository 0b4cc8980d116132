// Package notify streams session events to venue staff over websockets.
// A Hub is an audit.Recorder: every event it receives is broadcast to the
// watchers of the event's game.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/waypointgames/waypoint/pkg/audit"
)

const (
	defaultWriteWait  = 10 * time.Second
	defaultPingPeriod = 30 * time.Second
	defaultBufferSize = 64

	// closeWait bounds how long a closing hub waits for a watcher's
	// close frame to be written.
	closeWait = time.Second
)

// Config configures a Hub.
type Config struct {
	// WriteWait bounds each websocket write.
	WriteWait time.Duration
	// PingPeriod is the interval between keepalive pings.
	PingPeriod time.Duration
	// BufferSize is how many events a watcher may fall behind before it
	// is disconnected.
	BufferSize int
	// CheckOrigin overrides the upgrader's origin check.
	CheckOrigin func(r *http.Request) bool
}

// Hub fans session events out to websocket watchers, grouped by game.
type Hub struct {
	cfg      Config
	upgrader websocket.Upgrader

	mu       sync.Mutex
	watchers map[string]map[*watcher]struct{}
	closed   bool
}

type watcher struct {
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	gameID string
}

func (w *watcher) stop() {
	w.once.Do(func() { close(w.done) })
}

// New creates a Hub.
func New(cfg Config) *Hub {
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = defaultWriteWait
	}
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = defaultPingPeriod
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	return &Hub{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.CheckOrigin,
		},
		watchers: make(map[string]map[*watcher]struct{}),
	}
}

// Log implements audit.Recorder. Watchers whose buffer is full are
// disconnected rather than blocking the caller.
func (h *Hub) Log(_ context.Context, e audit.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for w := range h.watchers[e.GameID] {
		select {
		case w.send <- data:
		default:
			slog.Warn("dropping slow watcher", "game_id", e.GameID)
			h.removeLocked(w)
		}
	}
	return nil
}

// Watchers returns how many watchers are connected for gameID.
func (h *Hub) Watchers(gameID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watchers[gameID])
}

// ServeWatch upgrades the request to a websocket and streams gameID's
// events to it until either side closes.
func (h *Hub) ServeWatch(w http.ResponseWriter, r *http.Request, gameID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", "game_id", gameID, "error", err)
		return
	}

	wt := &watcher{
		conn:   conn,
		send:   make(chan []byte, h.cfg.BufferSize),
		done:   make(chan struct{}),
		gameID: gameID,
	}
	if !h.add(wt) {
		h.closeConn(conn, websocket.CloseGoingAway, "server shutting down")
		return
	}

	go h.readLoop(wt)
	h.writeLoop(wt)
}

func (h *Hub) add(w *watcher) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	if h.watchers[w.gameID] == nil {
		h.watchers[w.gameID] = make(map[*watcher]struct{})
	}
	h.watchers[w.gameID][w] = struct{}{}
	return true
}

func (h *Hub) remove(w *watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(w)
}

func (h *Hub) removeLocked(w *watcher) {
	set := h.watchers[w.gameID]
	if _, ok := set[w]; !ok {
		return
	}
	delete(set, w)
	if len(set) == 0 {
		delete(h.watchers, w.gameID)
	}
	w.stop()
}

// readLoop discards client frames and stops the watcher when the peer
// goes away. Reading is needed for gorilla to process control frames.
func (h *Hub) readLoop(w *watcher) {
	defer h.remove(w)
	for {
		if _, _, err := w.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(w *watcher) {
	ticker := time.NewTicker(h.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		h.remove(w)
		h.closeConn(w.conn, websocket.CloseNormalClosure, "")
	}()

	for {
		select {
		case <-w.done:
			return
		case data := <-w.send:
			_ = w.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if err := w.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = w.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (*Hub) closeConn(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWait))
	_ = conn.Close()
}

// Close disconnects every watcher and rejects new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, set := range h.watchers {
		for w := range set {
			h.removeLocked(w)
		}
	}
	return nil
}

var _ audit.Recorder = (*Hub)(nil)
