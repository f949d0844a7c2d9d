//go:build !nocgo
// +build !nocgo

package audio

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"

	"github.com/voxbook/voxbook/narrate"
)

// oto contexts are process-global; creating a second one fails on most
// backends.
var (
	otoCtx     *oto.Context
	otoCtxRate int
	otoCtxOnce sync.Once
	otoCtxErr  error
)

func sharedContext(sampleRate, channels int) (*oto.Context, error) {
	otoCtxOnce.Do(func() {
		options := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channels,
			Format:       oto.FormatSignedInt16LE,
		}
		switch runtime.GOOS {
		case "darwin":
			options.BufferSize = 100 * time.Millisecond
		case "windows":
			options.BufferSize = 80 * time.Millisecond
		default:
			options.BufferSize = 50 * time.Millisecond
		}

		ctx, ready, err := oto.NewContext(options)
		if err != nil {
			otoCtxErr = fmt.Errorf("create audio context: %w", err)
			return
		}
		select {
		case <-ready:
			otoCtx = ctx
			otoCtxRate = sampleRate
			log.Debug("audio context ready",
				"sample_rate", sampleRate, "channels", channels,
				"buffer", options.BufferSize)
		case <-time.After(5 * time.Second):
			otoCtxErr = fmt.Errorf("audio context initialization timeout")
		}
	})
	if otoCtxErr != nil {
		return nil, otoCtxErr
	}
	if otoCtxRate != sampleRate {
		return nil, fmt.Errorf("audio context already open at %d Hz, want %d", otoCtxRate, sampleRate)
	}
	return otoCtx, nil
}

// OtoSink plays 16-bit little-endian PCM through the system audio
// device. One clip plays at a time; Write waits for the previous clip to
// drain before starting the next, so callers can stream clips back to
// back without overlap.
type OtoSink struct {
	ctx        *oto.Context
	sampleRate int
	channels   int
	volume     float64

	mu      sync.Mutex
	player  *oto.Player
	reader  *trackingReader
	elapsed time.Duration // finished clips
	paused  bool
	closed  bool
}

// NewOtoSink opens the system audio device at the given format.
func NewOtoSink(sampleRate, channels int, volume float64) (*OtoSink, error) {
	ctx, err := sharedContext(sampleRate, channels)
	if err != nil {
		return nil, err
	}
	if volume <= 0 || volume > 1 {
		volume = 1.0
	}
	return &OtoSink{
		ctx:        ctx,
		sampleRate: sampleRate,
		channels:   channels,
		volume:     volume,
	}, nil
}

// Write queues one PCM clip and starts playing it. Blocks until any
// previous clip has drained.
func (s *OtoSink) Write(samples []byte) error {
	if err := s.drainCurrent(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return narrate.ErrSinkClosed
	}

	s.reader = newTrackingReader(samples)
	s.player = s.ctx.NewPlayer(s.reader)
	s.player.SetVolume(s.volume)
	if !s.paused {
		s.player.Play()
	}
	return nil
}

// Elapsed returns total playback time across all clips, excluding time
// spent paused. It is derived from bytes the device consumed, not wall
// clock.
func (s *OtoSink) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsed + s.currentPlayedLocked()
}

// Pause suspends the device. Elapsed stops advancing until Resume.
func (s *OtoSink) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return narrate.ErrSinkClosed
	}
	s.paused = true
	if s.player != nil {
		s.player.Pause()
	}
	return nil
}

// Resume continues playback after Pause.
func (s *OtoSink) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return narrate.ErrSinkClosed
	}
	s.paused = false
	if s.player != nil {
		s.player.Play()
	}
	return nil
}

// Stop ends playback and closes the sink. Subsequent writes fail with
// ErrSinkClosed.
func (s *OtoSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.player != nil {
		s.elapsed += s.currentPlayedLocked()
		if err := s.player.Close(); err != nil {
			log.Debug("player close", "err", err)
		}
		s.player = nil
		s.reader = nil
	}
	return nil
}

// drainCurrent waits until the playing clip is fully consumed, then
// folds its duration into the elapsed base.
func (s *OtoSink) drainCurrent() error {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return narrate.ErrSinkClosed
		}
		if s.player == nil {
			s.mu.Unlock()
			return nil
		}
		if s.reader.Len() == 0 && !s.player.IsPlaying() {
			s.elapsed += s.currentPlayedLocked()
			if err := s.player.Close(); err != nil {
				log.Debug("player close", "err", err)
			}
			s.player = nil
			s.reader = nil
			s.mu.Unlock()
			return nil
		}
		s.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
}

func (s *OtoSink) currentPlayedLocked() time.Duration {
	if s.reader == nil {
		return 0
	}
	bytesPerSecond := int64(s.sampleRate * s.channels * 2)
	if bytesPerSecond == 0 {
		return 0
	}
	return time.Duration(s.reader.BytesRead()) * time.Second / time.Duration(bytesPerSecond)
}
