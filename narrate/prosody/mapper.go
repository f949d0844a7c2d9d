// Package prosody derives synthesis parameters from segment emotion and
// intensity. Mapping is deterministic and total: identical inputs always
// yield identical parameters and no input can fail.
package prosody

import (
	"github.com/voxbook/voxbook/narrate"
)

// Output clamp ranges. Malformed inputs (intensity beyond [0,1], hint
// stacking) can never produce unplayable parameters.
const (
	MinSpeed  = 0.5
	MaxSpeed  = 2.0
	MinEnergy = 0.5
	MaxEnergy = 1.5
)

// Mapper computes synthesis parameters for speech segments. The zero value
// is usable; Voices enables alternate-speaker selection for pitch shifts.
type Mapper struct {
	// Disabled returns the base voice profile's parameters unchanged,
	// used for accessibility and testing.
	Disabled bool

	// Voices is the directory of known speaker identities, grouped by
	// family. Empty means pitch-band shifts keep the original speaker.
	Voices []narrate.SpeakerVoice
}

// New creates a mapper over the given voice directory.
func New(voices []narrate.SpeakerVoice) *Mapper {
	return &Mapper{Voices: voices}
}

// ComputeParams derives synthesis parameters for a segment from its emotion,
// intensity and hints, relative to the base voice profile. baseSpeaker is
// the caller's current voice identity (narrate.UnsetSpeakerID when none).
func (m *Mapper) ComputeParams(seg narrate.SpeechSegment, profile narrate.VoiceProfile, baseSpeaker int) narrate.SynthesisParams {
	if m.Disabled {
		return narrate.SynthesisParams{
			Speed:     clamp(profile.BaseSpeed, MinSpeed, MaxSpeed),
			Energy:    clamp(profile.BaseEnergy, MinEnergy, MaxEnergy),
			Pitch:     profile.BasePitch,
			Band:      profile.Band,
			Emotion:   "neutral",
			SpeakerID: baseSpeaker,
		}
	}

	intensity := clamp(seg.Intensity, 0, 1)

	speed := profile.BaseSpeed * emotionSpeed(seg.Emotion, intensity)
	speed *= speedHint(seg.Hints.Speed)
	speed *= stressSpeed(seg.Hints.Stress)

	energy := profile.BaseEnergy * (0.8 + intensity*0.2)
	energy *= stressEnergy(seg.Hints.Stress)

	band := targetBand(seg.Emotion, seg.Hints.PitchVariation, profile.Band)

	speaker := baseSpeaker
	if band != m.speakerBand(baseSpeaker, profile.Band) {
		speaker = m.alternateSpeaker(baseSpeaker, band)
	}

	emotion := seg.Emotion
	if emotion == "" {
		emotion = "neutral"
	}

	return narrate.SynthesisParams{
		Speed:     clamp(speed, MinSpeed, MaxSpeed),
		Energy:    clamp(energy, MinEnergy, MaxEnergy),
		Pitch:     bandPitch(profile.BasePitch, band),
		Band:      band,
		Emotion:   emotion,
		SpeakerID: speaker,
	}
}

// emotionSpeed is the primary speed multiplier for an emotion.
func emotionSpeed(emotion string, intensity float64) float64 {
	switch emotion {
	case "anger", "fear":
		return 1 + intensity*0.2
	case "sad":
		return 1 - intensity*0.15
	default:
		return 1.0
	}
}

// speedHint is the secondary multiplier from a textual speed hint.
func speedHint(hint string) float64 {
	switch hint {
	case "fast", "quick", "rapid":
		return 1.2
	case "slow", "drawn":
		return 0.8
	default:
		return 1.0
	}
}

func stressSpeed(hint string) float64 {
	switch hint {
	case "emphasized":
		return 1.05
	case "subdued":
		return 0.95
	default:
		return 1.0
	}
}

func stressEnergy(hint string) float64 {
	switch hint {
	case "emphasized":
		return 1.2
	case "subdued":
		return 0.8
	default:
		return 1.0
	}
}

// targetBand resolves the pitch band for a segment. An explicit pitch
// variation hint takes precedence over the emotion-derived band.
func targetBand(emotion, pitchHint string, neutral narrate.PitchBand) narrate.PitchBand {
	switch pitchHint {
	case "high", "higher":
		return narrate.PitchHigh
	case "low", "lower":
		return narrate.PitchLow
	case "medium", "normal":
		return narrate.PitchMedium
	}

	switch emotion {
	case "anger", "surprise":
		return narrate.PitchHigh
	case "sad":
		return narrate.PitchLow
	default:
		return neutral
	}
}

// speakerBand returns the pitch band of a known speaker, falling back to
// the profile band when the speaker is unset or unknown.
func (m *Mapper) speakerBand(speaker int, fallback narrate.PitchBand) narrate.PitchBand {
	if speaker == narrate.UnsetSpeakerID {
		return fallback
	}
	for _, v := range m.Voices {
		if v.ID == speaker {
			return v.Band
		}
	}
	return fallback
}

// alternateSpeaker finds a speaker in the same family as base with the
// target pitch band. Runtime pitch bending is not assumed available, so a
// band shift is realized by swapping to a sibling voice; when no sibling
// matches, the original speaker is kept.
func (m *Mapper) alternateSpeaker(base int, band narrate.PitchBand) int {
	family := ""
	for _, v := range m.Voices {
		if v.ID == base {
			family = v.Family
			break
		}
	}
	if family == "" {
		return base
	}
	for _, v := range m.Voices {
		if v.Family == family && v.Band == band {
			return v.ID
		}
	}
	return base
}

// bandPitch derives the informational pitch value for a band.
func bandPitch(base float64, band narrate.PitchBand) float64 {
	switch band {
	case narrate.PitchHigh:
		return base * 1.15
	case narrate.PitchLow:
		return base * 0.85
	default:
		return base
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
