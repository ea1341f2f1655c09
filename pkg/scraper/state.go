package scraper

import (
	"context"
	"fmt"
	"sync"

	"igleads/pkg/extract"
	"igleads/pkg/logger"
	"igleads/pkg/traversal"
)

// State is the orchestration phase
type State string

const (
	StateIdle       State = "idle"
	StateNavigating State = "navigating"
	StateExtracting State = "extracting"
	StateValidating State = "validating"
	StatePersisting State = "persisting"
)

// transitions lists the states reachable from each state. Every state can
// fall back to Idle.
var transitions = map[State][]State{
	StateIdle:       {StateNavigating},
	StateNavigating: {StateNavigating, StateExtracting},
	StateExtracting: {StateValidating, StateNavigating},
	StateValidating: {StatePersisting, StateNavigating},
	StatePersisting: {StateNavigating},
}

type machine struct {
	mu     sync.Mutex
	state  State
	logger logger.Logger
}

func newMachine(log logger.Logger) *machine {
	return &machine{state: StateIdle, logger: log}
}

func (m *machine) current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// advance moves to next, rejecting transitions the table does not allow
func (m *machine) advance(next State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if next != StateIdle && !allowed(m.state, next) {
		return fmt.Errorf("invalid state transition %s -> %s", m.state, next)
	}
	if m.state != next {
		m.logger.DebugWithFields("State changed", map[string]interface{}{
			"from": string(m.state),
			"to":   string(next),
		})
	}
	m.state = next
	return nil
}

func allowed(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// enterPhase follows the pipeline into its validating and persisting steps
func (m *machine) enterPhase(phase extract.Phase) error {
	switch phase {
	case extract.PhaseValidating:
		return m.advance(StateValidating)
	case extract.PhasePersisting:
		return m.advance(StatePersisting)
	default:
		return fmt.Errorf("unknown pipeline phase %q", phase)
	}
}

// trackedHandler enters Extracting before a profile is loaded and returns
// to Navigating once the pipeline is done with it. The steps in between
// are reported by the pipeline through enterPhase.
type trackedHandler struct {
	machine *machine
	next    traversal.ProfileHandler
}

func (h *trackedHandler) Process(ctx context.Context, req extract.Request) (*extract.Outcome, error) {
	if err := h.machine.advance(StateExtracting); err != nil {
		return nil, err
	}
	out, err := h.next.Process(ctx, req)
	if err != nil {
		return nil, err
	}
	return out, h.machine.advance(StateNavigating)
}
