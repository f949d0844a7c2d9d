package narrate

import (
	"fmt"
	"time"
)

// Config contains all narration configuration options.
type Config struct {
	// Engine selection
	Engine string `yaml:"engine" env:"VOXBOOK_ENGINE" envDefault:"mock"`

	// Audio settings
	SampleRate int     `yaml:"sample_rate" env:"VOXBOOK_SAMPLE_RATE" envDefault:"22050"`
	Volume     float64 `yaml:"volume" env:"VOXBOOK_VOLUME" envDefault:"1.0"`

	// Pipeline settings
	SegmentQueueSize int           `yaml:"segment_queue_size" env:"VOXBOOK_SEGMENT_QUEUE_SIZE" envDefault:"10"`
	AudioQueueSize   int           `yaml:"audio_queue_size" env:"VOXBOOK_AUDIO_QUEUE_SIZE" envDefault:"5"`
	PausePoll        time.Duration `yaml:"pause_poll" env:"VOXBOOK_PAUSE_POLL" envDefault:"50ms"`

	// Look-ahead settings
	BufferAhead      int `yaml:"buffer_ahead" env:"VOXBOOK_BUFFER_AHEAD" envDefault:"2"`
	MaxBufferedPages int `yaml:"max_buffered_pages" env:"VOXBOOK_MAX_BUFFERED_PAGES" envDefault:"5"`

	// Timing model for highlight estimation
	NarrationWPM int `yaml:"narration_wpm" env:"VOXBOOK_NARRATION_WPM" envDefault:"150"`
	DialogWPM    int `yaml:"dialog_wpm" env:"VOXBOOK_DIALOG_WPM" envDefault:"140"`

	// Prosody settings
	DisableEmotion bool `yaml:"disable_emotion" env:"VOXBOOK_DISABLE_EMOTION" envDefault:"false"`

	// Engine swap settings
	SwapTimeout time.Duration `yaml:"swap_timeout" env:"VOXBOOK_SWAP_TIMEOUT" envDefault:"5s"`

	// Cache settings
	Cache CacheConfig `yaml:"cache"`

	// Engine-specific configurations
	Piper PiperConfig `yaml:"piper"`
	Mock  MockConfig  `yaml:"mock"`
}

// CacheConfig controls the synthesized-audio cache.
type CacheConfig struct {
	Enabled        bool   `yaml:"enabled" env:"VOXBOOK_CACHE_ENABLED" envDefault:"true"`
	MemoryCapacity int64  `yaml:"memory_capacity" env:"VOXBOOK_CACHE_MEMORY_CAPACITY" envDefault:"52428800"`
	DiskCapacity   int64  `yaml:"disk_capacity" env:"VOXBOOK_CACHE_DISK_CAPACITY" envDefault:"524288000"`
	DiskPath       string `yaml:"disk_path" env:"VOXBOOK_CACHE_DISK_PATH"`
	Compression    int    `yaml:"compression" env:"VOXBOOK_CACHE_COMPRESSION" envDefault:"3"`
	TTLDays        int    `yaml:"ttl_days" env:"VOXBOOK_CACHE_TTL_DAYS" envDefault:"30"`
}

// TTL returns the cache entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLDays) * 24 * time.Hour
}

// PiperConfig contains piper subprocess engine settings.
type PiperConfig struct {
	Binary    string        `yaml:"binary" env:"VOXBOOK_PIPER_BINARY" envDefault:"piper"`
	ModelPath string        `yaml:"model_path" env:"VOXBOOK_PIPER_MODEL_PATH"`
	SpeakerID int           `yaml:"speaker_id" env:"VOXBOOK_PIPER_SPEAKER_ID" envDefault:"0"`
	Timeout   time.Duration `yaml:"timeout" env:"VOXBOOK_PIPER_TIMEOUT" envDefault:"30s"`
	RateLimit float64       `yaml:"rate_limit" env:"VOXBOOK_PIPER_RATE_LIMIT" envDefault:"4"`
}

// MockConfig contains mock engine settings for testing.
type MockConfig struct {
	GenerationDelay time.Duration `yaml:"generation_delay" env:"VOXBOOK_MOCK_GENERATION_DELAY" envDefault:"10ms"`
	WordsPerMinute  int           `yaml:"words_per_minute" env:"VOXBOOK_MOCK_WORDS_PER_MINUTE" envDefault:"150"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Engine:           "mock",
		SampleRate:       22050,
		Volume:           1.0,
		SegmentQueueSize: 10,
		AudioQueueSize:   5,
		PausePoll:        50 * time.Millisecond,
		BufferAhead:      2,
		MaxBufferedPages: 5,
		NarrationWPM:     150,
		DialogWPM:        140,
		SwapTimeout:      5 * time.Second,
		Cache: CacheConfig{
			Enabled:        true,
			MemoryCapacity: 50 * 1024 * 1024,
			DiskCapacity:   500 * 1024 * 1024,
			Compression:    3,
			TTLDays:        30,
		},
		Piper: PiperConfig{
			Binary:    "piper",
			SpeakerID: 0,
			Timeout:   30 * time.Second,
			RateLimit: 4,
		},
		Mock: MockConfig{
			GenerationDelay: 10 * time.Millisecond,
			WordsPerMinute:  150,
		},
	}
}

// Validate checks the configuration for unusable values.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate %d: %w", c.SampleRate, ErrInvalidConfig)
	}
	if c.SegmentQueueSize <= 0 || c.AudioQueueSize <= 0 {
		return fmt.Errorf("queue sizes must be positive: %w", ErrInvalidConfig)
	}
	if c.BufferAhead < 0 {
		return fmt.Errorf("buffer_ahead %d: %w", c.BufferAhead, ErrInvalidConfig)
	}
	if c.MaxBufferedPages <= 0 {
		return fmt.Errorf("max_buffered_pages %d: %w", c.MaxBufferedPages, ErrInvalidConfig)
	}
	if c.NarrationWPM <= 0 || c.DialogWPM <= 0 {
		return fmt.Errorf("words-per-minute rates must be positive: %w", ErrInvalidConfig)
	}
	if c.PausePoll <= 0 {
		return fmt.Errorf("pause_poll must be positive: %w", ErrInvalidConfig)
	}
	return nil
}
