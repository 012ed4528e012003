// Package netmon observes connectivity transitions reported by the
// platform reachability callback and notifies subscribers.
//
// On a disconnected → connected edge the monitor waits out a short
// debounce (to avoid flapping radios triggering storms of work), then
// fires the registered reconnect trigger exactly once. The sync engine's
// single-flight gate makes a redundant trigger harmless.
package netmon

import (
	"log"
	"sync"
	"time"

	"github.com/waveline-app/waveline/internal/domain"
)

// DefaultDebounce is how long a connection must hold before the reconnect
// trigger fires.
const DefaultDebounce = 750 * time.Millisecond

// Listener is notified on every state transition.
type Listener func(domain.NetworkState)

// Monitor tracks the current NetworkState and fans out transitions.
type Monitor struct {
	mu        sync.Mutex
	state     domain.NetworkState
	listeners []listenerEntry
	nextID    int

	debounce  time.Duration
	reconnect func()      // fired after a debounced disconnected→connected edge
	pending   *time.Timer // armed while a reconnect edge is debouncing
}

type listenerEntry struct {
	id int
	fn Listener
}

// New creates a monitor. The initial state is disconnected/unknown until
// the platform reports otherwise.
func New(debounce time.Duration) *Monitor {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Monitor{
		state:    domain.NetworkState{Connected: false, Transport: domain.TransportUnknown},
		debounce: debounce,
	}
}

// OnReconnect registers the function fired after a debounced reconnect
// edge. Typically the sync engine's drain trigger.
func (m *Monitor) OnReconnect(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconnect = fn
}

// State returns the current network state.
func (m *Monitor) State() domain.NetworkState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connected reports whether the network is currently reachable.
func (m *Monitor) Connected() bool {
	return m.State().Connected
}

// Subscribe registers a listener for every transition. Listeners run in
// registration order; a panicking listener does not block the others.
// The returned function unsubscribes.
func (m *Monitor) Subscribe(fn Listener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.listeners = append(m.listeners, listenerEntry{id: id, fn: fn})

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, e := range m.listeners {
			if e.id == id {
				m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
				return
			}
		}
	}
}

// Set replaces the network state wholesale; the platform callback calls
// this on every reachability event. No-op if the state is unchanged.
func (m *Monitor) Set(next domain.NetworkState) {
	m.mu.Lock()

	prev := m.state
	if next == prev {
		m.mu.Unlock()
		return
	}
	m.state = next
	listeners := make([]listenerEntry, len(m.listeners))
	copy(listeners, m.listeners)

	switch {
	case !prev.Connected && next.Connected:
		m.armReconnectLocked()
	case prev.Connected && !next.Connected:
		// Connection lost while debouncing: cancel the pending trigger.
		if m.pending != nil {
			m.pending.Stop()
			m.pending = nil
		}
	}
	m.mu.Unlock()

	log.Printf("[netmon] %s connected=%v", next.Transport, next.Connected)
	for _, e := range listeners {
		notify(e.fn, next)
	}
}

// armReconnectLocked schedules the reconnect trigger after the debounce.
// Caller holds m.mu.
func (m *Monitor) armReconnectLocked() {
	if m.pending != nil {
		m.pending.Stop()
	}
	m.pending = time.AfterFunc(m.debounce, func() {
		m.mu.Lock()
		m.pending = nil
		still := m.state.Connected
		fn := m.reconnect
		m.mu.Unlock()

		if still && fn != nil {
			fn()
		}
	})
}

func notify(fn Listener, state domain.NetworkState) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[netmon] listener panic: %v", r)
		}
	}()
	fn(state)
}
