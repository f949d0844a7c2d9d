// Package narrate provides real-time voiced narration of chapter text.
package narrate

import (
	"time"
)

// NarratorSpeaker is the sentinel speaker name for non-dialog text.
const NarratorSpeaker = "Narrator"

// UnsetSpeakerID marks a segment with no explicit voice identity.
const UnsetSpeakerID = -1

// PitchBand is a coarse pitch target for a voice.
type PitchBand int

const (
	// PitchLow targets the lower end of the voice family.
	PitchLow PitchBand = iota
	// PitchMedium is the neutral band.
	PitchMedium
	// PitchHigh targets the upper end of the voice family.
	PitchHigh
)

// String returns the string representation of the pitch band.
func (b PitchBand) String() string {
	switch b {
	case PitchLow:
		return "low"
	case PitchMedium:
		return "medium"
	case PitchHigh:
		return "high"
	default:
		return "unknown"
	}
}

// ProsodyHints carries optional textual hints extracted alongside a dialog.
// Empty fields mean "no hint".
type ProsodyHints struct {
	Speed          string // "fast", "slow"
	Stress         string // "emphasized", "subdued"
	PitchVariation string // "low", "medium", "high"; overrides emotion-derived band
}

// Dialog is a pre-extracted dialog span supplied by the chapter source.
type Dialog struct {
	Text      string
	Speaker   string
	Emotion   string
	Intensity float64
	SpeakerID int
	Hints     ProsodyHints
}

// SpeechSegment is one unit of narration: a sentence of narration or a line
// of dialog. Segments are immutable once created by the segmenter and may be
// shared across goroutines without locking.
type SpeechSegment struct {
	Index     int     // monotonic sequence number within its source text
	Text      string  // non-empty
	Speaker   string  // NarratorSpeaker for non-dialog
	Emotion   string  // emotion label, "" for neutral
	Intensity float64 // clamped to [0,1]
	IsDialog  bool
	SpeakerID int // voice identity, UnsetSpeakerID when absent
	Hints     ProsodyHints
}

// SynthesisParams are the derived prosody parameters for one segment.
// Identical inputs to the prosody mapper always yield identical params.
type SynthesisParams struct {
	Speed     float64   // clamped to [0.5, 2.0]
	Energy    float64   // clamped to [0.5, 1.5]
	Pitch     float64   // informational only; runtime pitch bending is not assumed
	Band      PitchBand // target pitch band
	Emotion   string    // emotion preset label
	SpeakerID int       // possibly an alternate speaker when the band shifts
}

// VoiceProfile describes a base voice the prosody mapper works from.
type VoiceProfile struct {
	Name       string
	BaseSpeed  float64
	BaseEnergy float64
	BasePitch  float64
	Band       PitchBand
	Family     string // voice family shared by alternate-pitch speakers
}

// DefaultVoiceProfile returns a neutral narrator profile.
func DefaultVoiceProfile() VoiceProfile {
	return VoiceProfile{
		Name:       "narrator",
		BaseSpeed:  1.0,
		BaseEnergy: 1.0,
		BasePitch:  1.0,
		Band:       PitchMedium,
		Family:     "narrator",
	}
}

// SpeakerVoice is one concrete voice identity in a family, used to map a
// target pitch band to an alternate speaker id.
type SpeakerVoice struct {
	ID     int
	Family string
	Band   PitchBand
}

// DefaultSpeakerVoices is the built-in voice directory used when an
// engine does not publish its own speaker list. IDs follow the piper
// multi-speaker model layout.
func DefaultSpeakerVoices() []SpeakerVoice {
	return []SpeakerVoice{
		{ID: 0, Family: "narrator", Band: PitchMedium},
		{ID: 1, Family: "narrator", Band: PitchHigh},
		{ID: 2, Family: "narrator", Band: PitchLow},
	}
}

// Audio is raw synthesized audio as returned by a Synthesizer.
type Audio struct {
	Data       []byte // 16-bit little-endian PCM
	SampleRate int
	Channels   int
	Duration   time.Duration
}

// PCMDuration computes the playback duration of 16-bit mono PCM data.
func PCMDuration(data []byte, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := len(data) / 2
	return time.Duration(float64(samples) / float64(sampleRate) * float64(time.Second))
}

// AudioBuffer couples synthesized audio with the segment it was produced
// from. It is exclusively owned by whichever pipeline stage currently holds
// it and is never aliased between stages.
type AudioBuffer struct {
	Segment SpeechSegment
	Data    []byte
	Rate    int
	Length  time.Duration
}

// NewAudioBuffer wraps synthesized audio for a segment, computing the
// duration from the PCM payload when the synthesizer did not report one.
func NewAudioBuffer(seg SpeechSegment, audio *Audio) *AudioBuffer {
	d := audio.Duration
	if d == 0 {
		d = PCMDuration(audio.Data, audio.SampleRate)
	}
	return &AudioBuffer{
		Segment: seg,
		Data:    audio.Data,
		Rate:    audio.SampleRate,
		Length:  d,
	}
}
