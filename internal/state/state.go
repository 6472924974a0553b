package state

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/wlite/internal/bus"
)

// State represents the client's runtime state.
type State string

const (
	Booting      State = "BOOTING"
	AuthRequired State = "AUTH_REQUIRED"
	Idle         State = "IDLE"
	Syncing      State = "SYNCING"
	Ready        State = "READY"
	Degraded     State = "DEGRADED"
	Error        State = "ERROR"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Booting:      {AuthRequired, Idle, Error},
	AuthRequired: {Idle, Error},
	Idle:         {Syncing, AuthRequired, Error},
	Syncing:      {Ready, Degraded, Idle, AuthRequired, Error},
	Ready:        {Degraded, Idle, AuthRequired, Error},
	Degraded:     {Ready, Idle, AuthRequired, Error},
	Error:        {Booting},
}

// Machine tracks and enforces runtime state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	since   time.Time
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		since:   time.Now(),
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Since returns when the current state was entered.
func (m *Machine) Since() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.since
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
// Moving to the current state is a no-op.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == to {
		return nil
	}
	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.since = time.Now()
	m.bus.Emit(bus.SessionStatusChanged, StatusChange{From: from, To: to})
	return nil
}

// Polling reports whether the state implies an active sync loop.
func (s State) Polling() bool {
	return s == Syncing || s == Ready || s == Degraded
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
