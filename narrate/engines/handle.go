package engines

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/voxbook/voxbook/narrate"
)

// Handle wraps a Synthesizer so the backend can be swapped while the
// pipeline runs. Swap waits for in-flight Speak calls on the old backend
// to finish, bounded by a timeout; segments synthesized after the swap
// use the new backend.
type Handle struct {
	swapTimeout time.Duration

	mu      sync.RWMutex
	backend narrate.Synthesizer
	// inFlight belongs to the current backend; Swap retires it together
	// with the backend so waiting on it cannot race new calls.
	inFlight *sync.WaitGroup
}

// NewHandle wraps the initial backend.
func NewHandle(backend narrate.Synthesizer, swapTimeout time.Duration) *Handle {
	if swapTimeout <= 0 {
		swapTimeout = 5 * time.Second
	}
	return &Handle{
		backend:     backend,
		swapTimeout: swapTimeout,
		inFlight:    new(sync.WaitGroup),
	}
}

func (h *Handle) Name() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.backend.Name()
}

func (h *Handle) Available() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.backend.Available()
}

func (h *Handle) Speak(ctx context.Context, text string, params narrate.SynthesisParams) (*narrate.Audio, error) {
	h.mu.RLock()
	backend := h.backend
	wg := h.inFlight
	wg.Add(1)
	h.mu.RUnlock()
	defer wg.Done()

	return backend.Speak(ctx, text, params)
}

func (h *Handle) Shutdown() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.backend.Shutdown()
}

// Swap replaces the backend. It installs the new backend immediately,
// then waits up to the swap timeout for calls still running on the old
// one before shutting it down. On timeout the old backend is leaked to
// its in-flight calls and ErrSwapTimeout is returned; the new backend
// is installed either way.
func (h *Handle) Swap(next narrate.Synthesizer) error {
	h.mu.Lock()
	old := h.backend
	oldWG := h.inFlight
	h.backend = next
	h.inFlight = new(sync.WaitGroup)
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		oldWG.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(h.swapTimeout):
		log.Warn("engine swap proceeded with synthesis still in flight",
			"old", old.Name(), "new", next.Name())
		return narrate.ErrSwapTimeout
	}

	if err := old.Shutdown(); err != nil {
		log.Debug("old engine shutdown", "engine", old.Name(), "err", err)
	}
	log.Info("engine swapped", "old", old.Name(), "new", next.Name())
	return nil
}
