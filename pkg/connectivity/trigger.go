package connectivity

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/waypointgames/waypoint/pkg/offline"
)

// Drainer is the part of offline.Queue the trigger drives.
type Drainer interface {
	Drain(ctx context.Context, a offline.Applier) (int, error)
}

// Trigger drains the offline queue whenever the observer goes online.
// At most one drain runs at a time; requests that arrive during a drain
// are coalesced into a single follow-up drain.
type Trigger struct {
	observer *Observer
	drainer  Drainer
	applier  offline.Applier
	onDrain  func(applied int, err error)

	ctx    context.Context
	cancel context.CancelFunc
	detach func()

	running atomic.Bool
	pending atomic.Bool
	wg      sync.WaitGroup
}

// TriggerOption configures a Trigger.
type TriggerOption func(*Trigger)

// WithDrainHook sets a function called after every drain.
func WithDrainHook(fn func(applied int, err error)) TriggerOption {
	return func(t *Trigger) { t.onDrain = fn }
}

// NewTrigger creates a trigger and subscribes it to o. If o is already
// online a drain is requested immediately, so updates left over from a
// previous run are sent.
func NewTrigger(o *Observer, d Drainer, a offline.Applier, opts ...TriggerOption) *Trigger {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Trigger{
		observer: o,
		drainer:  d,
		applier:  a,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.detach = o.Subscribe(func(online bool) {
		if online {
			t.Request()
		}
	})
	if o.Online() {
		t.Request()
	}
	return t
}

// Request asks for a drain. It never blocks: the drain runs in the
// background, and a request made while one is running schedules exactly
// one more.
func (t *Trigger) Request() {
	if t.ctx.Err() != nil {
		return
	}
	t.pending.Store(true)
	if !t.running.CompareAndSwap(false, true) {
		return
	}
	t.wg.Add(1)
	go t.loop()
}

func (t *Trigger) loop() {
	defer t.wg.Done()
	for {
		for t.pending.Swap(false) {
			t.drainOnce()
		}
		t.running.Store(false)
		// A Request between the last Swap and Store saw running and left.
		if !t.pending.Load() || !t.running.CompareAndSwap(false, true) {
			return
		}
	}
}

func (t *Trigger) drainOnce() {
	if !t.observer.Online() || t.ctx.Err() != nil {
		return
	}
	n, err := t.drainer.Drain(t.ctx, t.applier)
	switch {
	case err == nil:
		if n > 0 {
			slog.Info("offline queue drained", "applied", n)
		}
	case errors.Is(err, context.Canceled):
	default:
		slog.Warn("offline queue drain stopped", "applied", n, "error", err)
		// The next online transition retries.
		t.observer.Set(false)
	}
	if t.onDrain != nil {
		t.onDrain(n, err)
	}
}

// Wait blocks until no drain is running.
func (t *Trigger) Wait() {
	t.wg.Wait()
}

// Close unsubscribes from the observer, cancels a running drain and waits
// for it to stop.
func (t *Trigger) Close() {
	t.detach()
	t.cancel()
	t.wg.Wait()
}
