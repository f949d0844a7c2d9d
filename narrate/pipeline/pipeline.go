// Package pipeline runs chapter narration as three concurrent stages:
// segment feed, synthesis, and playback. Bounded channels between the
// stages apply backpressure so synthesis never runs unbounded ahead of
// the audio device.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/voxbook/voxbook/narrate"
	"github.com/voxbook/voxbook/narrate/prosody"
	"github.com/voxbook/voxbook/narrate/textsync"
)

// SynthFunc produces audio for one segment. The default implementation
// calls the engine directly; a cache layer can wrap it.
type SynthFunc func(ctx context.Context, seg narrate.SpeechSegment, params narrate.SynthesisParams) (*narrate.Audio, error)

// playItem pairs a segment with its synthesized audio on the way to the
// playback stage.
type playItem struct {
	seg   narrate.SpeechSegment
	audio *narrate.Audio
}

// Pipeline narrates one list of segments from start to finish. A
// Pipeline is single-use per Run; Stop ends the run and a new Run may
// follow.
type Pipeline struct {
	cfg     narrate.Config
	engine  narrate.Synthesizer
	sink    narrate.AudioSink
	mapper  *prosody.Mapper
	profile narrate.VoiceProfile

	state    *narrate.StateMachine
	events   *narrate.Broadcaster
	speed    *narrate.SpeedController
	synth    SynthFunc
	timeline *textsync.Timeline

	mu     sync.Mutex
	cancel context.CancelFunc
	doneCh chan struct{}
}

// New builds a pipeline around an engine and a sink. The voice profile
// seeds prosody computation for every segment.
func New(cfg narrate.Config, engine narrate.Synthesizer, sink narrate.AudioSink, profile narrate.VoiceProfile) *Pipeline {
	mapper := prosody.New(narrate.DefaultSpeakerVoices())
	mapper.Disabled = cfg.DisableEmotion
	p := &Pipeline{
		cfg:     cfg,
		engine:  engine,
		sink:    sink,
		mapper:  mapper,
		profile: profile,
		state:   narrate.NewStateMachine(),
		events:  narrate.NewBroadcaster(),
		speed:   narrate.NewSpeedController(),
	}
	p.synth = p.engineSynth
	return p
}

// SetSynthFunc replaces the synthesis step, typically with a caching
// wrapper. Must be called before Run.
func (p *Pipeline) SetSynthFunc(fn SynthFunc) {
	if fn != nil {
		p.synth = fn
	}
}

// State returns the current run state.
func (p *Pipeline) State() narrate.RunState {
	return p.state.Current()
}

// Events returns a subscription channel for playback events. The most
// recent event is replayed to new subscribers.
func (p *Pipeline) Events() <-chan narrate.Event {
	return p.events.Subscribe()
}

// Speed returns the shared speed controller. Changes apply to segments
// synthesized after the change.
func (p *Pipeline) Speed() *narrate.SpeedController {
	return p.speed
}

// Run narrates the segments in order and blocks until playback finishes,
// the context is cancelled, or Stop is called. Segments that fail to
// synthesize are logged and skipped; playback continues with the next
// one.
func (p *Pipeline) Run(ctx context.Context, segments []narrate.SpeechSegment) error {
	if len(segments) == 0 {
		return narrate.ErrNoSegments
	}
	if !p.engine.Available() {
		return narrate.WrapError(narrate.ErrEngineNotAvailable, "pipeline", "run")
	}
	// The state machine cannot reject a second Run on its own while the
	// first is paused, since paused to running is also the resume edge.
	p.mu.Lock()
	if p.doneCh != nil {
		p.mu.Unlock()
		return narrate.ErrAlreadyRunning
	}
	if err := p.state.Transition(narrate.StateRunning); err != nil {
		p.mu.Unlock()
		return narrate.ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel = cancel
	p.doneCh = done
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.cancel = nil
		p.doneCh = nil
		p.mu.Unlock()
	}()
	defer close(done)
	defer cancel()

	p.timeline = textsync.Build(segments, p.estimates(segments))

	segCh := make(chan narrate.SpeechSegment, p.cfg.SegmentQueueSize)
	audioCh := make(chan playItem, p.cfg.AudioQueueSize)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		p.feedStage(ctx, segments, segCh)
	}()
	go func() {
		defer wg.Done()
		p.synthStage(ctx, segCh, audioCh)
	}()

	err := p.playStage(ctx, audioCh, len(segments))
	if errors.Is(err, context.Canceled) {
		// Stop is a normal end of the run, not a failure.
		err = nil
	}

	cancel()
	wg.Wait()

	if cur := p.state.Current(); cur != narrate.StateStopped {
		if terr := p.state.Transition(narrate.StateStopped); terr != nil {
			log.Debug("final state transition rejected", "from", cur, "err", terr)
		}
	}
	p.publishState(narrate.StateStopped, err)
	return err
}

// Pause suspends playback. Synthesis keeps filling the bounded queues.
func (p *Pipeline) Pause() error {
	if err := p.state.Transition(narrate.StatePaused); err != nil {
		return err
	}
	if err := p.sink.Pause(); err != nil {
		return narrate.WrapError(err, "pipeline", "pause")
	}
	p.publishState(narrate.StatePaused, nil)
	return nil
}

// Resume continues playback from where Pause left it.
func (p *Pipeline) Resume() error {
	if err := p.state.Transition(narrate.StateRunning); err != nil {
		return err
	}
	if err := p.sink.Resume(); err != nil {
		return narrate.WrapError(err, "pipeline", "resume")
	}
	p.publishState(narrate.StateRunning, nil)
	return nil
}

// Stop ends the current run. Safe to call multiple times and from any
// goroutine; it returns once the run goroutines have exited.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	done := p.doneCh
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if done != nil {
		<-done
	}
	if err := p.sink.Stop(); err != nil {
		log.Debug("sink stop", "err", err)
	}
}

// Timeline exposes the run's segment timeline for highlight lookups.
// Nil before the first Run.
func (p *Pipeline) Timeline() *textsync.Timeline {
	return p.timeline
}

func (p *Pipeline) engineSynth(ctx context.Context, seg narrate.SpeechSegment, params narrate.SynthesisParams) (*narrate.Audio, error) {
	return p.engine.Speak(ctx, seg.Text, params)
}

// feedStage pushes segments into the bounded segment queue. Blocking on
// a full queue is the backpressure mechanism.
func (p *Pipeline) feedStage(ctx context.Context, segments []narrate.SpeechSegment, out chan<- narrate.SpeechSegment) {
	defer close(out)
	for _, seg := range segments {
		select {
		case out <- seg:
		case <-ctx.Done():
			return
		}
	}
}

// synthStage synthesizes segments in arrival order. One worker keeps
// output ordering trivially correct; the lookahead layer handles
// parallel pre-synthesis elsewhere.
func (p *Pipeline) synthStage(ctx context.Context, in <-chan narrate.SpeechSegment, out chan<- playItem) {
	defer close(out)
	for {
		var seg narrate.SpeechSegment
		var ok bool
		select {
		case seg, ok = <-in:
			if !ok {
				return
			}
		case <-ctx.Done():
			return
		}

		base := seg.SpeakerID
		if base == narrate.UnsetSpeakerID {
			base = p.cfg.Piper.SpeakerID
		}
		params := p.mapper.ComputeParams(seg, p.profile, base)
		params.Speed = narrate.ClampSpeed(params.Speed * p.speed.Speed() / narrate.DefaultSpeed)

		audio, err := p.synth(ctx, seg, params)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !narrate.IsRecoverable(err) {
				log.Error("engine failure ends synthesis", "index", seg.Index, "err", err)
				return
			}
			log.Warn("synthesis failed, skipping segment",
				"index", seg.Index, "speaker", seg.Speaker, "err", err)
			continue
		}

		select {
		case out <- playItem{seg: seg, audio: audio}:
		case <-ctx.Done():
			return
		}
	}
}

// playStage plays items in order, holding at pause and updating the
// timeline with measured durations as playback reaches each segment.
func (p *Pipeline) playStage(ctx context.Context, in <-chan playItem, total int) error {
	completed := 0
	for {
		var item playItem
		var ok bool
		select {
		case item, ok = <-in:
			if !ok {
				p.publishActive(-1, "", "", false, 0)
				log.Info("chapter narration finished", "completed", completed, "total", total)
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}

		if err := p.waitWhilePaused(ctx); err != nil {
			return err
		}

		dur := item.audio.Duration
		p.timeline.UpdateWithActualDurations(map[int]time.Duration{item.seg.Index: dur})
		p.publishActive(item.seg.Index, item.seg.Text, item.seg.Speaker, item.seg.IsDialog, dur)

		base := p.sink.Elapsed()
		if err := p.sink.Write(item.audio.Data); err != nil {
			return narrate.WrapError(err, "pipeline", "play")
		}
		if err := p.waitForPlayback(ctx, base, dur); err != nil {
			return err
		}

		completed++
		p.events.Publish(narrate.PlaybackStateMsg{
			State:     p.state.Current(),
			Position:  p.sink.Elapsed(),
			Completed: completed,
			Total:     total,
		})
	}
}

// waitWhilePaused polls the state machine until the run leaves the
// paused state or the context ends.
func (p *Pipeline) waitWhilePaused(ctx context.Context) error {
	for p.state.Current() == narrate.StatePaused {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.cfg.PausePoll):
		}
	}
	return nil
}

// waitForPlayback blocks until the sink has played d past base. Pause
// stretches the wait because Elapsed stops advancing while paused.
func (p *Pipeline) waitForPlayback(ctx context.Context, base, d time.Duration) error {
	if p.sink.Elapsed()-base >= d {
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
		if p.sink.Elapsed()-base >= d {
			return nil
		}
	}
}

func (p *Pipeline) estimates(segments []narrate.SpeechSegment) []time.Duration {
	out := make([]time.Duration, len(segments))
	for i, seg := range segments {
		wpm := p.cfg.NarrationWPM
		if seg.IsDialog {
			wpm = p.cfg.DialogWPM
		}
		out[i] = narrate.EstimateDuration(seg.Text, wpm)
	}
	return out
}

func (p *Pipeline) publishActive(index int, text, speaker string, isDialog bool, d time.Duration) {
	p.events.Publish(narrate.ActiveSegmentMsg{
		Index:    index,
		Text:     text,
		Speaker:  speaker,
		IsDialog: isDialog,
		Duration: d,
	})
}

func (p *Pipeline) publishState(state narrate.RunState, err error) {
	p.events.Publish(narrate.PlaybackStateMsg{
		State:    state,
		Position: p.sink.Elapsed(),
		Err:      err,
	})
}
