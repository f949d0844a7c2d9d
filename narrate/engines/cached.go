package engines

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/voxbook/voxbook/internal/cache"
	"github.com/voxbook/voxbook/narrate"
)

// Clips above this size go straight to disk so one long segment does
// not flush the memory level.
const memoryCacheLimit = 2 << 20

// Cached decorates a Synthesizer with the two-level audio cache. Hits
// skip the backend entirely; misses synthesize and backfill.
type Cached struct {
	inner      narrate.Synthesizer
	store      *cache.Manager
	sampleRate int
}

// WithCache wraps s with store. A nil store returns s unchanged.
func WithCache(s narrate.Synthesizer, store *cache.Manager, sampleRate int) narrate.Synthesizer {
	if store == nil {
		return s
	}
	return &Cached{inner: s, store: store, sampleRate: sampleRate}
}

func (c *Cached) Name() string    { return c.inner.Name() }
func (c *Cached) Available() bool { return c.inner.Available() }
func (c *Cached) Shutdown() error { return c.inner.Shutdown() }

func (c *Cached) Speak(ctx context.Context, text string, params narrate.SynthesisParams) (*narrate.Audio, error) {
	key := cache.Key(text, c.inner.Name(), params.Speed, params.Energy, params.SpeakerID)
	if data, ok := c.store.Get(key); ok {
		log.Debug("cache hit", "bytes", len(data))
		return &narrate.Audio{
			Data:       data,
			SampleRate: c.sampleRate,
			Channels:   1,
			Duration:   narrate.PCMDuration(data, c.sampleRate),
		}, nil
	}

	audio, err := c.inner.Speak(ctx, text, params)
	if err != nil {
		return nil, err
	}
	if len(audio.Data) > memoryCacheLimit {
		c.store.PutDiskOnly(key, audio.Data)
	} else {
		c.store.Put(key, audio.Data)
	}
	return audio, nil
}
