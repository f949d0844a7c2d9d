package engines

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/voxbook/voxbook/narrate"
	"github.com/voxbook/voxbook/narrate/engines/mock"
)

func TestHandle_SwapShutsDownOldBackend(t *testing.T) {
	oldEng := mock.New(narrate.MockConfig{WordsPerMinute: 150}, 22050)
	newEng := mock.New(narrate.MockConfig{WordsPerMinute: 150}, 22050)
	h := NewHandle(oldEng, time.Second)

	if _, err := h.Speak(context.Background(), "before swap", narrate.SynthesisParams{Speed: 1.0}); err != nil {
		t.Fatal(err)
	}
	if err := h.Swap(newEng); err != nil {
		t.Fatalf("swap: %v", err)
	}
	if oldEng.Available() {
		t.Error("old backend still available after swap")
	}

	if _, err := h.Speak(context.Background(), "after swap", narrate.SynthesisParams{Speed: 1.0}); err != nil {
		t.Fatal(err)
	}
	if oldEng.Calls() != 1 || newEng.Calls() != 1 {
		t.Errorf("calls old=%d new=%d, want 1 each", oldEng.Calls(), newEng.Calls())
	}
}

func TestHandle_SwapTimesOutOnStuckSynthesis(t *testing.T) {
	oldEng := mock.New(narrate.MockConfig{
		GenerationDelay: 500 * time.Millisecond,
		WordsPerMinute:  150,
	}, 22050)
	h := NewHandle(oldEng, 30*time.Millisecond)

	started := make(chan struct{})
	go func() {
		close(started)
		_, _ = h.Speak(context.Background(), "slow segment", narrate.SynthesisParams{Speed: 1.0})
	}()
	<-started
	time.Sleep(10 * time.Millisecond) // let Speak register as in flight

	err := h.Swap(mock.New(narrate.MockConfig{WordsPerMinute: 150}, 22050))
	if !errors.Is(err, narrate.ErrSwapTimeout) {
		t.Fatalf("err = %v, want ErrSwapTimeout", err)
	}
	// The new backend is installed despite the timeout.
	if !h.Available() {
		t.Error("new backend not serving after timed-out swap")
	}
}
