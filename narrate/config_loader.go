package narrate

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// LoadConfigFromViper loads narration configuration from Viper, falling back
// to defaults for unset keys.
func LoadConfigFromViper() (Config, error) {
	return ApplyViper(DefaultConfig())
}

// ApplyViper overlays any set Viper keys onto a base config, typically
// one already populated from environment variables.
func ApplyViper(cfg Config) (Config, error) {
	if viper.IsSet("narrate.engine") {
		cfg.Engine = viper.GetString("narrate.engine")
	}
	if viper.IsSet("narrate.sample_rate") {
		cfg.SampleRate = viper.GetInt("narrate.sample_rate")
	}
	if viper.IsSet("narrate.volume") {
		cfg.Volume = viper.GetFloat64("narrate.volume")
	}

	if viper.IsSet("narrate.segment_queue_size") {
		cfg.SegmentQueueSize = viper.GetInt("narrate.segment_queue_size")
	}
	if viper.IsSet("narrate.audio_queue_size") {
		cfg.AudioQueueSize = viper.GetInt("narrate.audio_queue_size")
	}
	if viper.IsSet("narrate.pause_poll") {
		cfg.PausePoll = viper.GetDuration("narrate.pause_poll")
	}

	if viper.IsSet("narrate.buffer_ahead") {
		cfg.BufferAhead = viper.GetInt("narrate.buffer_ahead")
	}
	if viper.IsSet("narrate.max_buffered_pages") {
		cfg.MaxBufferedPages = viper.GetInt("narrate.max_buffered_pages")
	}

	if viper.IsSet("narrate.narration_wpm") {
		cfg.NarrationWPM = viper.GetInt("narrate.narration_wpm")
	}
	if viper.IsSet("narrate.dialog_wpm") {
		cfg.DialogWPM = viper.GetInt("narrate.dialog_wpm")
	}
	if viper.IsSet("narrate.disable_emotion") {
		cfg.DisableEmotion = viper.GetBool("narrate.disable_emotion")
	}
	if viper.IsSet("narrate.swap_timeout") {
		cfg.SwapTimeout = viper.GetDuration("narrate.swap_timeout")
	}

	loadCacheConfig(&cfg.Cache)
	loadPiperConfig(&cfg.Piper)
	loadMockConfig(&cfg.Mock)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func loadCacheConfig(cfg *CacheConfig) {
	if viper.IsSet("narrate.cache.enabled") {
		cfg.Enabled = viper.GetBool("narrate.cache.enabled")
	}
	if viper.IsSet("narrate.cache.memory_capacity") {
		cfg.MemoryCapacity = viper.GetInt64("narrate.cache.memory_capacity")
	}
	if viper.IsSet("narrate.cache.disk_capacity") {
		cfg.DiskCapacity = viper.GetInt64("narrate.cache.disk_capacity")
	}
	if viper.IsSet("narrate.cache.disk_path") {
		cfg.DiskPath = viper.GetString("narrate.cache.disk_path")
	}
	if viper.IsSet("narrate.cache.compression") {
		cfg.Compression = viper.GetInt("narrate.cache.compression")
	}
	if viper.IsSet("narrate.cache.ttl_days") {
		cfg.TTLDays = viper.GetInt("narrate.cache.ttl_days")
	}
}

func loadPiperConfig(cfg *PiperConfig) {
	if viper.IsSet("narrate.piper.binary") {
		cfg.Binary = viper.GetString("narrate.piper.binary")
	}
	if viper.IsSet("narrate.piper.model_path") {
		cfg.ModelPath = viper.GetString("narrate.piper.model_path")
	}
	if viper.IsSet("narrate.piper.speaker_id") {
		cfg.SpeakerID = viper.GetInt("narrate.piper.speaker_id")
	}
	if viper.IsSet("narrate.piper.timeout") {
		cfg.Timeout = viper.GetDuration("narrate.piper.timeout")
	}
	if viper.IsSet("narrate.piper.rate_limit") {
		cfg.RateLimit = viper.GetFloat64("narrate.piper.rate_limit")
	}
}

func loadMockConfig(cfg *MockConfig) {
	if viper.IsSet("narrate.mock.generation_delay") {
		cfg.GenerationDelay = viper.GetDuration("narrate.mock.generation_delay")
	}
	if viper.IsSet("narrate.mock.words_per_minute") {
		cfg.WordsPerMinute = viper.GetInt("narrate.mock.words_per_minute")
	}
}

// EstimateDuration estimates speaking time for text at the given rate.
func EstimateDuration(text string, wordsPerMinute int) time.Duration {
	words := countWords(text)
	if words == 0 {
		words = 1
	}
	if wordsPerMinute <= 0 {
		wordsPerMinute = 150
	}
	seconds := float64(words) * 60.0 / float64(wordsPerMinute)
	return time.Duration(seconds * float64(time.Second))
}

func countWords(text string) int {
	inWord := false
	words := 0
	for _, r := range text {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			inWord = false
			continue
		}
		if !inWord {
			words++
			inWord = true
		}
	}
	return words
}
