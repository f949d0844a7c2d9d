// Package piper integrates the piper text-to-speech binary. Each request
// runs a fresh process; a rate limiter keeps subprocess churn bounded.
package piper

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/voxbook/voxbook/narrate"
)

// Engine implements narrate.Synthesizer over the piper CLI.
type Engine struct {
	cfg        narrate.PiperConfig
	sampleRate int
	limiter    *rate.Limiter

	checkOnce sync.Once
	okBinary  bool
}

// New builds a piper engine. Availability is probed lazily on the first
// Available call.
func New(cfg narrate.PiperConfig, sampleRate int) *Engine {
	rps := cfg.RateLimit
	if rps <= 0 {
		rps = 4
	}
	if sampleRate <= 0 {
		sampleRate = 22050
	}
	return &Engine{
		cfg:        cfg,
		sampleRate: sampleRate,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
	}
}

func (e *Engine) Name() string { return "piper" }

// Available probes the binary once and caches the result.
func (e *Engine) Available() bool {
	e.checkOnce.Do(func() {
		if e.cfg.Binary == "" || e.cfg.ModelPath == "" {
			return
		}
		cmd := exec.Command(e.cfg.Binary, "--version")
		e.okBinary = cmd.Run() == nil
		if !e.okBinary {
			log.Warn("piper binary not usable", "binary", e.cfg.Binary)
		}
	})
	return e.okBinary
}

// Speak runs one piper process for the text. Prosody parameters map to
// piper's scale flags: speed inverts into length_scale, the speaker id
// selects the voice in multi-speaker models.
func (e *Engine) Speak(ctx context.Context, text string, params narrate.SynthesisParams) (*narrate.Audio, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	args := []string{
		"--model", e.cfg.ModelPath,
		"--output-raw",
	}
	if params.Speed > 0 {
		args = append(args, "--length_scale",
			strconv.FormatFloat(1.0/params.Speed, 'f', 3, 64))
	}
	if params.SpeakerID != narrate.UnsetSpeakerID {
		args = append(args, "--speaker", strconv.Itoa(params.SpeakerID))
	}

	cmd := exec.CommandContext(ctx, e.cfg.Binary, args...)
	cmd.Stdin = bytes.NewBufferString(text + "\n")

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("piper failed: %w (stderr: %.200s)", err, stderr.String())
	}
	if len(output) == 0 {
		return nil, fmt.Errorf("%w: piper produced no audio", narrate.ErrSynthesisFailed)
	}

	return &narrate.Audio{
		Data:       output,
		SampleRate: e.sampleRate,
		Channels:   1,
		Duration:   narrate.PCMDuration(output, e.sampleRate),
	}, nil
}

func (e *Engine) Shutdown() error { return nil }
