// Package connectivity tracks whether the server is reachable and drains
// the offline queue when it becomes reachable again.
//
// There is one Observer per process holding the authoritative online flag.
// The engine reads it before writing and the Trigger subscribes to it, so
// no component listens for network changes on its own.
package connectivity

import (
	"sync"
)

// Observer holds the online flag and notifies subscribers on transitions.
type Observer struct {
	mu     sync.Mutex
	online bool
	subs   map[int]func(online bool)
	nextID int
}

// NewObserver creates an observer starting in the given state.
func NewObserver(online bool) *Observer {
	return &Observer{online: online, subs: make(map[int]func(bool))}
}

// Online reports the current state.
func (o *Observer) Online() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.online
}

// Set records the current state. Subscribers are called only when the
// state changes, outside the observer's lock, in subscription order.
func (o *Observer) Set(online bool) {
	o.mu.Lock()
	if o.online == online {
		o.mu.Unlock()
		return
	}
	o.online = online
	fns := o.snapshot()
	o.mu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
}

// Subscribe registers fn for transitions and returns a function that
// removes it.
func (o *Observer) Subscribe(fn func(online bool)) (unsubscribe func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := o.nextID
	o.nextID++
	o.subs[id] = fn
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.subs, id)
	}
}

func (o *Observer) snapshot() []func(bool) {
	fns := make([]func(bool), 0, len(o.subs))
	for id := range o.nextID {
		if fn, ok := o.subs[id]; ok {
			fns = append(fns, fn)
		}
	}
	return fns
}
