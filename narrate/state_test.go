package narrate

import (
	"errors"
	"testing"
)

func TestStateMachine_ValidTransitions(t *testing.T) {
	sm := NewStateMachine()

	steps := []RunState{StateRunning, StatePaused, StateRunning, StateStopped, StateIdle}
	for _, to := range steps {
		if err := sm.Transition(to); err != nil {
			t.Fatalf("Transition(%s) from %s: %v", to, sm.Current(), err)
		}
		if got := sm.Current(); got != to {
			t.Fatalf("Current() = %s, want %s", got, to)
		}
	}
}

func TestStateMachine_InvalidTransition(t *testing.T) {
	sm := NewStateMachine()

	err := sm.Transition(StatePaused)
	if !errors.Is(err, ErrStateTransition) {
		t.Fatalf("Transition(paused) from idle = %v, want ErrStateTransition", err)
	}
	if got := sm.Current(); got != StateIdle {
		t.Fatalf("state changed on rejected transition: %s", got)
	}
}

func TestStateMachine_OnEnterCallback(t *testing.T) {
	sm := NewStateMachine()

	entered := 0
	sm.OnEnter(StateRunning, func() { entered++ })

	if err := sm.Transition(StateRunning); err != nil {
		t.Fatalf("Transition(running): %v", err)
	}
	if entered != 1 {
		t.Fatalf("entered = %d, want 1", entered)
	}

	// A rejected transition must not fire the callback.
	if err := sm.Transition(StateRunning); err == nil {
		t.Fatal("running to running accepted")
	}
	if entered != 1 {
		t.Fatalf("entered = %d after rejected transition, want 1", entered)
	}
}
