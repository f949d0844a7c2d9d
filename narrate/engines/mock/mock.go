// Package mock provides a synthesizer that produces silent audio, for
// tests and for running the pipeline without a speech backend.
package mock

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/voxbook/voxbook/narrate"
)

// Engine implements narrate.Synthesizer with generated silence. The
// clip duration follows a words-per-minute estimate scaled by the
// requested speed, so timelines behave like real synthesis.
type Engine struct {
	delay      time.Duration
	wpm        int
	sampleRate int

	mu        sync.Mutex
	available bool
	failNext  error
	failOn    map[int]error // keyed by call number, 1-based
	calls     int
}

// New builds a mock engine from config.
func New(cfg narrate.MockConfig, sampleRate int) *Engine {
	wpm := cfg.WordsPerMinute
	if wpm <= 0 {
		wpm = 150
	}
	if sampleRate <= 0 {
		sampleRate = 22050
	}
	return &Engine{
		delay:      cfg.GenerationDelay,
		wpm:        wpm,
		sampleRate: sampleRate,
		available:  true,
		failOn:     make(map[int]error),
	}
}

func (e *Engine) Name() string { return "mock" }

func (e *Engine) Available() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.available
}

// Speak returns silence sized to the duration the text would take to
// read aloud at the configured pace.
func (e *Engine) Speak(ctx context.Context, text string, params narrate.SynthesisParams) (*narrate.Audio, error) {
	e.mu.Lock()
	e.calls++
	call := e.calls
	if err := e.failNext; err != nil {
		e.failNext = nil
		e.mu.Unlock()
		return nil, err
	}
	if err, ok := e.failOn[call]; ok {
		e.mu.Unlock()
		return nil, err
	}
	e.mu.Unlock()

	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d := e.estimate(text, params.Speed)
	samples := int(d.Seconds() * float64(e.sampleRate))
	return &narrate.Audio{
		Data:       make([]byte, samples*2),
		SampleRate: e.sampleRate,
		Channels:   1,
		Duration:   d,
	}, nil
}

func (e *Engine) Shutdown() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.available = false
	return nil
}

// FailNext makes the next Speak call return err.
func (e *Engine) FailNext(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failNext = err
}

// FailOnCall makes the n-th Speak call (1-based) return err.
func (e *Engine) FailOnCall(n int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failOn[n] = err
}

// Calls returns how many times Speak has been invoked.
func (e *Engine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func (e *Engine) estimate(text string, speed float64) time.Duration {
	words := len(strings.Fields(text))
	if words == 0 {
		words = 1
	}
	if speed <= 0 {
		speed = 1.0
	}
	secs := float64(words) / (float64(e.wpm) / 60.0) / speed
	return time.Duration(secs * float64(time.Second))
}
