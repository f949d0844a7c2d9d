package audio

import (
	"sync"
	"time"

	"github.com/voxbook/voxbook/narrate"
)

// MockSink is an AudioSink for tests and headless runs. In Instant mode
// each write advances Elapsed by the clip's full PCM duration at once, so
// pipelines complete without waiting on wall clock. In real-time mode
// Elapsed tracks the wall clock while not paused.
type MockSink struct {
	Instant    bool
	SampleRate int
	Channels   int

	// WriteErr, when set, is returned by the next Write. For failure
	// injection in tests.
	WriteErr error

	mu       sync.Mutex
	writes   [][]byte
	elapsed  time.Duration
	playing  bool
	paused   bool
	closed   bool
	lastTick time.Time
}

// NewMockSink returns an instant-mode sink at the standard format.
func NewMockSink() *MockSink {
	return &MockSink{Instant: true, SampleRate: 22050, Channels: 1}
}

func (s *MockSink) Write(samples []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return narrate.ErrSinkClosed
	}
	if s.WriteErr != nil {
		err := s.WriteErr
		s.WriteErr = nil
		return err
	}

	s.writes = append(s.writes, samples)
	if s.Instant {
		s.elapsed += narrate.PCMDuration(samples, s.SampleRate*s.Channels)
		return nil
	}
	s.settleLocked()
	s.playing = true
	return nil
}

func (s *MockSink) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settleLocked()
	return s.elapsed
}

func (s *MockSink) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return narrate.ErrSinkClosed
	}
	s.settleLocked()
	s.paused = true
	return nil
}

func (s *MockSink) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return narrate.ErrSinkClosed
	}
	s.settleLocked()
	s.paused = false
	return nil
}

func (s *MockSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.settleLocked()
	s.closed = true
	s.playing = false
	return nil
}

// Writes returns the PCM chunks written so far, in order.
func (s *MockSink) Writes() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.writes))
	copy(out, s.writes)
	return out
}

// WriteCount returns how many chunks have been written.
func (s *MockSink) WriteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

// Paused reports whether the sink is currently paused.
func (s *MockSink) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// settleLocked folds wall-clock time since the last observation into
// elapsed when playing in real-time mode.
func (s *MockSink) settleLocked() {
	now := time.Now()
	if !s.Instant && s.playing && !s.paused && !s.lastTick.IsZero() {
		s.elapsed += now.Sub(s.lastTick)
	}
	s.lastTick = now
}
