package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/voxbook/voxbook/narrate"
	"github.com/voxbook/voxbook/narrate/audio"
	"github.com/voxbook/voxbook/narrate/engines/mock"
)

func testConfig() narrate.Config {
	cfg := narrate.DefaultConfig()
	cfg.Mock.GenerationDelay = 0
	cfg.PausePoll = 5 * time.Millisecond
	return cfg
}

func testSegments(texts ...string) []narrate.SpeechSegment {
	segs := make([]narrate.SpeechSegment, len(texts))
	for i, text := range texts {
		segs[i] = narrate.SpeechSegment{
			Index:     i,
			Text:      text,
			Speaker:   narrate.NarratorSpeaker,
			SpeakerID: narrate.UnsetSpeakerID,
		}
	}
	return segs
}

func newTestPipeline(cfg narrate.Config) (*Pipeline, *mock.Engine, *audio.MockSink) {
	engine := mock.New(cfg.Mock, cfg.SampleRate)
	sink := audio.NewMockSink()
	p := New(cfg, engine, sink, narrate.DefaultVoiceProfile())
	return p, engine, sink
}

func collectEvents(ch <-chan narrate.Event, done <-chan struct{}) []narrate.Event {
	var events []narrate.Event
	for {
		select {
		case ev := <-ch:
			events = append(events, ev)
		case <-done:
			// Drain whatever is still buffered.
			for {
				select {
				case ev := <-ch:
					events = append(events, ev)
				default:
					return events
				}
			}
		}
	}
}

func TestRun_PlaysAllSegmentsInOrder(t *testing.T) {
	p, _, sink := newTestPipeline(testConfig())

	eventCh := p.Events()
	done := make(chan struct{})
	eventsOut := make(chan []narrate.Event, 1)
	go func() { eventsOut <- collectEvents(eventCh, done) }()

	err := p.Run(context.Background(), testSegments("One.", "Two sentences here.", "Three."))
	close(done)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if got := sink.WriteCount(); got != 3 {
		t.Fatalf("sink received %d writes, want 3", got)
	}

	events := <-eventsOut
	var order []int
	for _, ev := range events {
		if msg, ok := ev.(narrate.ActiveSegmentMsg); ok && msg.Index >= 0 {
			order = append(order, msg.Index)
		}
	}
	if len(order) != 3 {
		t.Fatalf("got %d active segment events, want 3: %v", len(order), order)
	}
	for i, idx := range order {
		if idx != i {
			t.Errorf("playback order %v, want strictly increasing from 0", order)
			break
		}
	}
}

func TestRun_SkipsFailedSegment(t *testing.T) {
	p, engine, sink := newTestPipeline(testConfig())
	engine.FailOnCall(2, errors.New("backend hiccup"))

	err := p.Run(context.Background(), testSegments("First.", "Second.", "Third."))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := sink.WriteCount(); got != 2 {
		t.Errorf("sink received %d writes, want 2 after one skip", got)
	}
	if engine.Calls() != 3 {
		t.Errorf("engine called %d times, want 3", engine.Calls())
	}
}

func TestRun_EmptySegments(t *testing.T) {
	p, _, _ := newTestPipeline(testConfig())
	if err := p.Run(context.Background(), nil); !errors.Is(err, narrate.ErrNoSegments) {
		t.Errorf("got %v, want ErrNoSegments", err)
	}
}

func TestRun_RejectsConcurrentRun(t *testing.T) {
	cfg := testConfig()
	cfg.Mock.GenerationDelay = 20 * time.Millisecond
	p, _, _ := newTestPipeline(cfg)

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- p.Run(context.Background(), testSegments("A long run.", "More text."))
	}()

	// Wait for the first run to take the state machine.
	deadline := time.After(time.Second)
	for p.State() != narrate.StateRunning {
		select {
		case <-deadline:
			t.Fatal("first run never reached running state")
		case <-time.After(time.Millisecond):
		}
	}

	if err := p.Run(context.Background(), testSegments("B.")); !errors.Is(err, narrate.ErrAlreadyRunning) {
		t.Errorf("second run: got %v, want ErrAlreadyRunning", err)
	}

	p.Stop()
	if err := <-firstDone; err != nil {
		t.Errorf("first run: %v", err)
	}
}

func TestRun_RejectedWhilePaused(t *testing.T) {
	cfg := testConfig()
	cfg.Mock.GenerationDelay = 20 * time.Millisecond
	p, _, _ := newTestPipeline(cfg)

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- p.Run(context.Background(), testSegments("One.", "Two.", "Three."))
	}()

	deadline := time.After(time.Second)
	for p.State() != narrate.StateRunning {
		select {
		case <-deadline:
			t.Fatal("first run never started")
		case <-time.After(time.Millisecond):
		}
	}
	if err := p.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}

	// The paused run still owns the sink and queues; a second run must
	// not be allowed to restart on top of it.
	if err := p.Run(context.Background(), testSegments("B.")); !errors.Is(err, narrate.ErrAlreadyRunning) {
		t.Errorf("run while paused: got %v, want ErrAlreadyRunning", err)
	}

	if err := p.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if err := <-firstDone; err != nil {
		t.Errorf("first run: %v", err)
	}
}

func TestPauseResume(t *testing.T) {
	cfg := testConfig()
	cfg.Mock.GenerationDelay = 10 * time.Millisecond
	p, _, sink := newTestPipeline(cfg)

	done := make(chan error, 1)
	go func() {
		done <- p.Run(context.Background(), testSegments("One.", "Two.", "Three.", "Four."))
	}()

	deadline := time.After(time.Second)
	for p.State() != narrate.StateRunning {
		select {
		case <-deadline:
			t.Fatal("run never started")
		case <-time.After(time.Millisecond):
		}
	}

	if err := p.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if p.State() != narrate.StatePaused {
		t.Errorf("state = %v, want paused", p.State())
	}
	if !sink.Paused() {
		t.Error("sink not paused")
	}

	if err := p.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if p.State() != narrate.StateRunning {
		t.Errorf("state = %v, want running", p.State())
	}

	if err := <-done; err != nil {
		t.Errorf("run: %v", err)
	}
}

func TestStop_Idempotent(t *testing.T) {
	cfg := testConfig()
	cfg.Mock.GenerationDelay = 10 * time.Millisecond
	p, _, _ := newTestPipeline(cfg)

	// Stop before any run is a no-op.
	p.Stop()

	done := make(chan error, 1)
	go func() {
		done <- p.Run(context.Background(), testSegments("One.", "Two.", "Three."))
	}()

	deadline := time.After(time.Second)
	for p.State() != narrate.StateRunning {
		select {
		case <-deadline:
			t.Fatal("run never started")
		case <-time.After(time.Millisecond):
		}
	}

	p.Stop()
	p.Stop()

	if err := <-done; err != nil {
		t.Errorf("run after stop: %v", err)
	}
	if p.State() != narrate.StateStopped {
		t.Errorf("state = %v, want stopped", p.State())
	}
}

func TestRun_UpdatesTimelineWithActualDurations(t *testing.T) {
	p, _, _ := newTestPipeline(testConfig())

	segs := testSegments("A handful of words to read.", "Short.")
	if err := p.Run(context.Background(), segs); err != nil {
		t.Fatalf("run: %v", err)
	}

	tl := p.Timeline()
	if tl == nil {
		t.Fatal("timeline is nil after run")
	}
	if len(tl.Spans) != 2 {
		t.Fatalf("timeline has %d spans, want 2", len(tl.Spans))
	}
	for i, span := range tl.Spans {
		if span.End <= span.Start {
			t.Errorf("span %d has non-positive duration: [%v, %v)", i, span.Start, span.End)
		}
	}
}

func TestRun_EngineUnavailable(t *testing.T) {
	p, engine, _ := newTestPipeline(testConfig())
	if err := engine.Shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	err := p.Run(context.Background(), testSegments("A."))
	if !errors.Is(err, narrate.ErrEngineNotAvailable) {
		t.Errorf("got %v, want ErrEngineNotAvailable", err)
	}
}
