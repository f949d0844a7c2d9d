// Package engines selects and manages speech synthesis backends.
package engines

import (
	"fmt"

	"github.com/voxbook/voxbook/narrate"
	"github.com/voxbook/voxbook/narrate/engines/mock"
	"github.com/voxbook/voxbook/narrate/engines/piper"
)

// New builds the synthesizer named by cfg.Engine.
func New(cfg narrate.Config) (narrate.Synthesizer, error) {
	switch cfg.Engine {
	case "mock":
		return mock.New(cfg.Mock, cfg.SampleRate), nil
	case "piper":
		return piper.New(cfg.Piper, cfg.SampleRate), nil
	default:
		return nil, fmt.Errorf("%w: unknown engine %q", narrate.ErrInvalidConfig, cfg.Engine)
	}
}

// Names lists the available engine names.
func Names() []string {
	return []string{"mock", "piper"}
}
