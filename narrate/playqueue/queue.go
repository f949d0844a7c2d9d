// Package playqueue plays pre-synthesized audio with resumable position.
// It prefers buffers produced ahead of time and falls back to on-demand
// synthesis for anything missing, so a partial lookahead never stalls
// playback.
package playqueue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/voxbook/voxbook/narrate"
	"github.com/voxbook/voxbook/narrate/prosody"
)

// Engine plays a page's segments in order.
type Engine struct {
	cfg     narrate.Config
	synth   narrate.Synthesizer
	sink    narrate.AudioSink
	mapper  *prosody.Mapper
	profile narrate.VoiceProfile
	speed   *narrate.SpeedController
	store   CheckpointStore
	workID  string

	// CheckpointEvery bounds position loss on crash. Zero disables
	// periodic saves; pause and stop still save.
	CheckpointEvery time.Duration

	state *narrate.StateMachine

	mu         sync.Mutex
	running    bool
	page       int
	lastPlayed int // last segment handed to the sink, -1 before any
	seekTo     int // pending seek target, -1 when none
	cancel     context.CancelFunc
}

// NewEngine builds a playback engine. store may be nil to disable
// checkpointing.
func NewEngine(cfg narrate.Config, synth narrate.Synthesizer, sink narrate.AudioSink, store CheckpointStore, workID string) *Engine {
	mapper := prosody.New(narrate.DefaultSpeakerVoices())
	mapper.Disabled = cfg.DisableEmotion
	return &Engine{
		cfg:             cfg,
		synth:           synth,
		sink:            sink,
		mapper:          mapper,
		profile:         narrate.DefaultVoiceProfile(),
		speed:           narrate.NewSpeedController(),
		store:           store,
		workID:          workID,
		CheckpointEvery: 10 * time.Second,
		state:           narrate.NewStateMachine(),
		lastPlayed:      -1,
		seekTo:          -1,
	}
}

// Speed returns the shared speed controller. Values snap to the nearest
// supported step and apply to segments synthesized afterwards.
func (e *Engine) Speed() *narrate.SpeedController { return e.speed }

// State returns the current playback state.
func (e *Engine) State() narrate.RunState { return e.state.Current() }

// PreSynthesize renders segments concurrently and returns the buffers in
// segment order. Failed segments are skipped; their slots are absent from
// the result, not nil placeholders.
func (e *Engine) PreSynthesize(ctx context.Context, segments []narrate.SpeechSegment, workers int) []*narrate.AudioBuffer {
	if workers < 1 {
		workers = 1
	}
	if workers > len(segments) {
		workers = len(segments)
	}

	results := make([]*narrate.AudioBuffer, len(segments))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				seg := segments[i]
				audio, err := e.synthesize(ctx, seg)
				if err != nil {
					if ctx.Err() == nil {
						log.Warn("pre-synthesis failed, skipping segment",
							"index", seg.Index, "err", err)
					}
					continue
				}
				results[i] = narrate.NewAudioBuffer(seg, audio)
			}
		}()
	}

	for i := range segments {
		select {
		case jobs <- i:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return compact(results)
		}
	}
	close(jobs)
	wg.Wait()
	return compact(results)
}

// Play runs segments in order, consuming matching ready buffers and
// synthesizing the rest on demand. It blocks until the page finishes or
// the context ends.
func (e *Engine) Play(ctx context.Context, page int, segments []narrate.SpeechSegment, ready []*narrate.AudioBuffer) error {
	if len(segments) == 0 {
		return narrate.ErrNoSegments
	}
	// The state machine alone cannot reject a second Play while paused,
	// since paused to running is also the resume edge.
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return narrate.ErrAlreadyRunning
	}
	if err := e.state.Transition(narrate.StateRunning); err != nil {
		e.mu.Unlock()
		return narrate.ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	// A seek requested before Play starts the page mid-way, which is how
	// checkpoint resume lands on the saved segment.
	e.running = true
	e.page = page
	e.lastPlayed = -1
	e.cancel = cancel
	e.mu.Unlock()
	defer cancel()

	byIndex := make(map[int]*narrate.AudioBuffer, len(ready))
	for _, buf := range ready {
		byIndex[buf.Segment.Index] = buf
	}

	lastSave := time.Now()
	for i := 0; i < len(segments); i++ {
		if target := e.takeSeek(); target >= 0 {
			i = clampIndex(target, len(segments))
		}
		if err := e.waitWhilePaused(ctx); err != nil {
			e.finish(err)
			return err
		}

		seg := segments[i]
		buf := byIndex[seg.Index]
		if buf == nil {
			audio, err := e.synthesize(ctx, seg)
			if err != nil {
				if ctx.Err() != nil {
					e.finish(ctx.Err())
					return ctx.Err()
				}
				if !narrate.IsRecoverable(err) {
					err = narrate.WrapError(err, "playqueue", "synthesize")
					e.finish(err)
					return err
				}
				log.Warn("on-demand synthesis failed, skipping segment",
					"index", seg.Index, "err", err)
				continue
			}
			buf = narrate.NewAudioBuffer(seg, audio)
		}

		e.mu.Lock()
		e.lastPlayed = seg.Index
		e.mu.Unlock()

		base := e.sink.Elapsed()
		if err := e.sink.Write(buf.Data); err != nil {
			err = narrate.WrapError(err, "playqueue", "play")
			e.finish(err)
			return err
		}
		if err := e.waitForDrain(ctx, base, buf.Length); err != nil {
			e.finish(err)
			return err
		}

		if e.CheckpointEvery > 0 && time.Since(lastSave) >= e.CheckpointEvery {
			e.saveCheckpoint(ctx)
			lastSave = time.Now()
		}
	}

	e.finish(nil)
	return nil
}

// Pause suspends playback and saves a checkpoint.
func (e *Engine) Pause(ctx context.Context) error {
	if err := e.state.Transition(narrate.StatePaused); err != nil {
		return err
	}
	if err := e.sink.Pause(); err != nil {
		return narrate.WrapError(err, "playqueue", "pause")
	}
	e.saveCheckpoint(ctx)
	return nil
}

// Resume continues after Pause.
func (e *Engine) Resume() error {
	if err := e.state.Transition(narrate.StateRunning); err != nil {
		return err
	}
	if err := e.sink.Resume(); err != nil {
		return narrate.WrapError(err, "playqueue", "resume")
	}
	return nil
}

// Stop ends playback and saves a final checkpoint. Idempotent.
func (e *Engine) Stop(ctx context.Context) {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	e.saveCheckpoint(ctx)
}

// Seek requests a jump to the given segment index within the playing
// page. The jump takes effect at the next segment boundary.
func (e *Engine) Seek(segment int) {
	e.mu.Lock()
	e.seekTo = segment
	e.mu.Unlock()
}

// Resume point for a work, if one was saved.
func (e *Engine) LoadCheckpoint(ctx context.Context) (Checkpoint, error) {
	if e.store == nil {
		return Checkpoint{}, ErrNoCheckpoint
	}
	return e.store.Load(ctx, e.workID)
}

func (e *Engine) synthesize(ctx context.Context, seg narrate.SpeechSegment) (*narrate.Audio, error) {
	base := seg.SpeakerID
	if base == narrate.UnsetSpeakerID {
		base = e.cfg.Piper.SpeakerID
	}
	params := e.mapper.ComputeParams(seg, e.profile, base)
	params.Speed = narrate.ClampSpeed(params.Speed * e.speed.Speed() / narrate.DefaultSpeed)
	return e.synth.Speak(ctx, seg.Text, params)
}

func (e *Engine) takeSeek() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	target := e.seekTo
	e.seekTo = -1
	return target
}

func (e *Engine) waitWhilePaused(ctx context.Context) error {
	for e.state.Current() == narrate.StatePaused {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.cfg.PausePoll):
		}
	}
	return nil
}

func (e *Engine) waitForDrain(ctx context.Context, base, d time.Duration) error {
	if e.sink.Elapsed()-base >= d {
		return nil
	}
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
		if e.sink.Elapsed()-base >= d {
			return nil
		}
	}
}

func (e *Engine) finish(err error) {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
	if cur := e.state.Current(); cur != narrate.StateStopped {
		if terr := e.state.Transition(narrate.StateStopped); terr != nil {
			log.Debug("stop transition rejected", "from", cur, "err", terr)
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("playback ended with error", "err", err)
	}
}

func (e *Engine) saveCheckpoint(ctx context.Context) {
	if e.store == nil {
		return
	}
	e.mu.Lock()
	page := e.page
	segment := e.lastPlayed
	e.mu.Unlock()

	cp := Checkpoint{
		Page:      page,
		Segment:   segment,
		Position:  e.sink.Elapsed(),
		Speed:     e.speed.Speed(),
		UpdatedAt: time.Now(),
	}
	if err := e.store.Save(ctx, e.workID, cp); err != nil {
		log.Warn("checkpoint save failed", "work", e.workID, "err", err)
	}
}

func compact(bufs []*narrate.AudioBuffer) []*narrate.AudioBuffer {
	out := bufs[:0]
	for _, b := range bufs {
		if b != nil {
			out = append(out, b)
		}
	}
	return out
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
