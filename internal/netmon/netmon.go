// Package netmon tracks network reachability as the rest of the app
// believes it: tri-state, push-driven, with duplicate transitions
// suppressed at the source.
package netmon

import (
	"sync"
	"time"

	"github.com/pmendes/parley/internal/bus"
)

// State is the current reachability belief.
type State string

const (
	// Unknown is the initial value, before anything has reported.
	Unknown      State = "UNKNOWN"
	Connected    State = "CONNECTED"
	Disconnected State = "DISCONNECTED"
)

// Monitor is the read side consumed by the sync core.
type Monitor interface {
	Current() State
	// Subscribe registers onChange for every transition. Duplicate
	// consecutive states are suppressed upstream. The returned function
	// removes the subscription.
	Subscribe(onChange func(State)) (unsubscribe func())
}

// StateChange is the bus payload for net.changed events.
type StateChange struct {
	From State
	To   State
}

// Tracker is the canonical Monitor implementation. Transports report
// link state through Report; the tracker dedups and fans out.
type Tracker struct {
	mu    sync.Mutex
	state State
	subs  map[int]func(State)
	next  int
	bus   *bus.Bus
}

// NewTracker creates a tracker starting in Unknown.
func NewTracker(b *bus.Bus) *Tracker {
	return &Tracker{
		state: Unknown,
		subs:  make(map[int]func(State)),
		bus:   b,
	}
}

// Current returns the current reachability belief.
func (t *Tracker) Current() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Subscribe registers onChange for future transitions.
func (t *Tracker) Subscribe(onChange func(State)) func() {
	t.mu.Lock()
	id := t.next
	t.next++
	t.subs[id] = onChange
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
	}
}

// Report records a new reachability observation. A repeat of the
// current state is a no-op; a transition notifies every subscriber and
// publishes net.changed.
func (t *Tracker) Report(s State) {
	t.mu.Lock()
	if s == t.state {
		t.mu.Unlock()
		return
	}
	from := t.state
	t.state = s
	fns := make([]func(State), 0, len(t.subs))
	for _, fn := range t.subs {
		fns = append(fns, fn)
	}
	t.mu.Unlock()

	// Callbacks run outside the lock so a subscriber may call back in.
	for _, fn := range fns {
		fn(s)
	}
	if t.bus != nil {
		t.bus.Publish(bus.Event{
			Kind:      bus.KindNetChanged,
			Timestamp: time.Now(),
			Payload:   StateChange{From: from, To: s},
		})
	}
}
