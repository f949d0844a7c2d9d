package narrate

import (
	"fmt"
	"sync"
)

// Global playback speed bounds, independent of per-segment prosody.
const (
	MinSpeed     = 0.5
	MaxSpeed     = 2.0
	DefaultSpeed = 1.0
)

// DefaultSpeedSteps are the discrete speeds cycled by speed-up/down controls.
var DefaultSpeedSteps = []float64{0.5, 0.75, 1.0, 1.25, 1.5, 2.0}

// ClampSpeed bounds a speed multiplier to the playable range.
func ClampSpeed(speed float64) float64 {
	if speed < MinSpeed {
		return MinSpeed
	}
	if speed > MaxSpeed {
		return MaxSpeed
	}
	return speed
}

// SpeedController manages the user-facing global speed multiplier with
// discrete steps. Safe for concurrent use.
type SpeedController struct {
	mu    sync.RWMutex
	speed float64
	steps []float64
	index int
}

// NewSpeedController creates a controller at the default speed.
func NewSpeedController() *SpeedController {
	sc := &SpeedController{speed: DefaultSpeed, steps: DefaultSpeedSteps}
	for i, s := range sc.steps {
		if s == DefaultSpeed {
			sc.index = i
			break
		}
	}
	return sc
}

// Speed returns the current speed multiplier.
func (sc *SpeedController) Speed() float64 {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.speed
}

// SetSpeed sets the speed, snapping to the nearest discrete step.
func (sc *SpeedController) SetSpeed(speed float64) error {
	if speed < MinSpeed || speed > MaxSpeed {
		return fmt.Errorf("speed %.2f out of range [%.2f, %.2f]: %w", speed, MinSpeed, MaxSpeed, ErrInvalidConfig)
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()

	best, bestDiff := 0, MaxSpeed+1
	for i, s := range sc.steps {
		diff := s - speed
		if diff < 0 {
			diff = -diff
		}
		if diff < bestDiff {
			best, bestDiff = i, diff
		}
	}
	sc.index = best
	sc.speed = sc.steps[best]
	return nil
}

// Faster moves one step up, saturating at the top step.
func (sc *SpeedController) Faster() float64 {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.index < len(sc.steps)-1 {
		sc.index++
		sc.speed = sc.steps[sc.index]
	}
	return sc.speed
}

// Slower moves one step down, saturating at the bottom step.
func (sc *SpeedController) Slower() float64 {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.index > 0 {
		sc.index--
		sc.speed = sc.steps[sc.index]
	}
	return sc.speed
}
