package narrate

import (
	"fmt"
	"sync"
)

// RunState represents the lifecycle state of a narration run.
type RunState int

const (
	// StateIdle indicates no run has started.
	StateIdle RunState = iota
	// StateRunning indicates segments are being synthesized and played.
	StateRunning
	// StatePaused indicates playback is suspended.
	StatePaused
	// StateStopped indicates the run finished or was cancelled.
	StateStopped
)

// String returns the string representation of the state.
func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Progress is the segment count snapshot carried by a running state.
// Total is zero while the producer is still discovering segments.
type Progress struct {
	Completed int
	Total     int
}

// StateMachine guards the idle/running/paused/stopped transitions of a
// narration run. All methods are safe for concurrent use.
type StateMachine struct {
	mu          sync.RWMutex
	current     RunState
	transitions map[RunState][]RunState
	onEnter     map[RunState]func()
}

// NewStateMachine creates a state machine in the idle state.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		current: StateIdle,
		transitions: map[RunState][]RunState{
			StateIdle:    {StateRunning},
			StateRunning: {StatePaused, StateStopped},
			StatePaused:  {StateRunning, StateStopped},
			StateStopped: {StateIdle, StateRunning},
		},
		onEnter: make(map[RunState]func()),
	}
}

// Transition attempts to move to the given state, returning an error when
// the transition is not allowed from the current state.
func (sm *StateMachine) Transition(to RunState) error {
	sm.mu.Lock()
	valid := false
	for _, s := range sm.transitions[sm.current] {
		if s == to {
			valid = true
			break
		}
	}
	if !valid {
		from := sm.current
		sm.mu.Unlock()
		return fmt.Errorf("%s to %s: %w", from, to, ErrStateTransition)
	}
	sm.current = to
	enter := sm.onEnter[to]
	sm.mu.Unlock()

	if enter != nil {
		enter()
	}
	return nil
}

// Current returns the current state.
func (sm *StateMachine) Current() RunState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}

// OnEnter registers a callback invoked after entering a state.
func (sm *StateMachine) OnEnter(state RunState, fn func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.onEnter[state] = fn
}
