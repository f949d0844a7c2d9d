package narrate

import (
	"context"
	"time"
)

// Synthesizer converts text to audio. Implementations must be safe to call
// concurrently for independent segments; a failed call is non-fatal to the
// caller, which logs and skips the segment.
type Synthesizer interface {
	// Name returns the engine name for logging and cache keys.
	Name() string

	// Available reports whether the engine is ready for use.
	Available() bool

	// Speak synthesizes text with the given prosody parameters. The context
	// bounds the call; backends that cannot be interrupted mid-call may run
	// to completion, in which case the caller discards the result.
	Speak(ctx context.Context, text string, params SynthesisParams) (*Audio, error)

	// Shutdown releases engine resources.
	Shutdown() error
}

// AudioSink is the audio output device. Write queues samples for playback;
// Elapsed reports wall-clock playback time since the sink was started,
// excluding paused time.
type AudioSink interface {
	Write(samples []byte) error
	Elapsed() time.Duration
	Pause() error
	Resume() error
	Stop() error
}

// ChapterSource supplies the pages of a multi-page work and, optionally,
// pre-extracted dialog spans per page. An empty dialog list means the whole
// page is narration.
type ChapterSource interface {
	Pages(ctx context.Context) ([]string, error)
	Dialogs(ctx context.Context, page int) ([]Dialog, error)
}
