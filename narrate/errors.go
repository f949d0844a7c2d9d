package narrate

import "errors"

// Common errors for the narration system.
var (
	// Engine errors
	ErrEngineNotAvailable = errors.New("synthesizer is not available")
	ErrSynthesisFailed    = errors.New("audio synthesis failed")
	ErrEngineShutdown     = errors.New("synthesizer has been shut down")
	ErrSwapTimeout        = errors.New("timed out waiting for in-flight synthesis")

	// Sink errors
	ErrSinkClosed    = errors.New("audio sink is closed")
	ErrNothingToPlay = errors.New("no audio to play")

	// Pipeline errors
	ErrAlreadyRunning   = errors.New("pipeline is already running")
	ErrNotRunning       = errors.New("pipeline is not running")
	ErrInvalidState     = errors.New("invalid state for operation")
	ErrStateTransition  = errors.New("invalid state transition")
	ErrNoSegments       = errors.New("no segments to narrate")
	ErrQueueClosed      = errors.New("segment queue is closed")
	ErrInvalidSegment   = errors.New("invalid segment index")
	ErrCheckpointFailed = errors.New("failed to persist checkpoint")

	// Input errors
	ErrEmptyText = errors.New("empty text provided")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
)

// IsRecoverable reports whether the narration run can continue after err.
// Per-segment synthesis failures are recoverable; engine and configuration
// failures are not.
func IsRecoverable(err error) bool {
	if err == nil {
		return true
	}
	switch {
	case errors.Is(err, ErrEngineNotAvailable),
		errors.Is(err, ErrEngineShutdown),
		errors.Is(err, ErrSinkClosed),
		errors.Is(err, ErrInvalidConfig):
		return false
	}
	return true
}

// NarrationError wraps an error with the component and action it came from.
type NarrationError struct {
	Err       error
	Component string // "segmenter", "pipeline", "sink", "engine", ...
	Action    string // what was being done when the error occurred
}

// Error implements the error interface.
func (e *NarrationError) Error() string {
	if e.Err == nil {
		return "narration error"
	}
	return e.Component + ": " + e.Action + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *NarrationError) Unwrap() error {
	return e.Err
}

// WrapError annotates err with component and action context.
func WrapError(err error, component, action string) *NarrationError {
	return &NarrationError{Err: err, Component: component, Action: action}
}
