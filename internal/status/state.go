package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/tello-im/tello/internal/bus"
)

// State represents an engine runtime state.
//
// Degraded means the remote log store is not acknowledging publishes:
// conversations keep being surfaced and sends keep being stored locally
// (marked failed), and the engine returns to Ready on the next successful
// publish. LocalOnly means no remote store is configured at all; sends
// confirm immediately.
type State string

const (
	Booting   State = "BOOTING"
	Ready     State = "READY"
	LocalOnly State = "LOCAL_ONLY"
	Degraded  State = "DEGRADED"
	Stopped   State = "STOPPED"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Booting:   {Ready, LocalOnly, Stopped},
	Ready:     {Degraded, Stopped},
	LocalOnly: {Stopped},
	Degraded:  {Ready, Stopped},
	Stopped:   {Booting},
}

// Machine tracks and enforces engine runtime state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns an error if the
// transition is invalid; transitioning to the current state is a no-op.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if to == m.current {
		return nil
	}
	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      bus.KindEngineStatus,
			Timestamp: time.Now(),
			Payload: StatusChange{
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
