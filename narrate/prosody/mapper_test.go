package prosody

import (
	"testing"

	"github.com/voxbook/voxbook/narrate"
)

func testVoices() []narrate.SpeakerVoice {
	return []narrate.SpeakerVoice{
		{ID: 0, Family: "amy", Band: narrate.PitchMedium},
		{ID: 1, Family: "amy", Band: narrate.PitchHigh},
		{ID: 2, Family: "amy", Band: narrate.PitchLow},
		{ID: 3, Family: "joe", Band: narrate.PitchMedium},
	}
}

func TestComputeParams_EmotionSpeed(t *testing.T) {
	m := New(testVoices())
	profile := narrate.DefaultVoiceProfile()

	tests := []struct {
		name      string
		emotion   string
		intensity float64
		wantSpeed float64
	}{
		{"anger full intensity", "anger", 1.0, 1.2},
		{"fear full intensity", "fear", 1.0, 1.2},
		{"anger half intensity", "anger", 0.5, 1.1},
		{"sad full intensity", "sad", 1.0, 0.85},
		{"neutral", "", 1.0, 1.0},
		{"joy is neutral speed", "joy", 1.0, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seg := narrate.SpeechSegment{
				Text:      "hello",
				Emotion:   tt.emotion,
				Intensity: tt.intensity,
			}
			params := m.ComputeParams(seg, profile, 0)
			if !almostEqual(params.Speed, tt.wantSpeed) {
				t.Errorf("Speed = %v, want %v", params.Speed, tt.wantSpeed)
			}
		})
	}
}

func TestComputeParams_Hints(t *testing.T) {
	m := New(testVoices())
	profile := narrate.DefaultVoiceProfile()

	seg := narrate.SpeechSegment{
		Text:  "hurry",
		Hints: narrate.ProsodyHints{Speed: "fast"},
	}
	params := m.ComputeParams(seg, profile, 0)
	if !almostEqual(params.Speed, 1.2) {
		t.Errorf("fast hint: Speed = %v, want 1.2", params.Speed)
	}

	seg = narrate.SpeechSegment{
		Text:  "hurry",
		Hints: narrate.ProsodyHints{Speed: "fast", Stress: "emphasized"},
	}
	params = m.ComputeParams(seg, profile, 0)
	if !almostEqual(params.Speed, 1.2*1.05) {
		t.Errorf("fast+emphasized: Speed = %v, want %v", params.Speed, 1.2*1.05)
	}

	seg = narrate.SpeechSegment{
		Text:      "whisper",
		Intensity: 1.0,
		Hints:     narrate.ProsodyHints{Stress: "subdued"},
	}
	params = m.ComputeParams(seg, profile, 0)
	if !almostEqual(params.Energy, 1.0*0.8) {
		t.Errorf("subdued energy = %v, want 0.8", params.Energy)
	}
}

func TestComputeParams_ClampInvariant(t *testing.T) {
	m := New(testVoices())
	profile := narrate.DefaultVoiceProfile()

	// Malformed and extreme inputs must still clamp into range.
	segs := []narrate.SpeechSegment{
		{Text: "a", Emotion: "anger", Intensity: 50, Hints: narrate.ProsodyHints{Speed: "fast", Stress: "emphasized"}},
		{Text: "b", Emotion: "sad", Intensity: -3, Hints: narrate.ProsodyHints{Speed: "slow", Stress: "subdued"}},
		{Text: "c", Emotion: "fear", Intensity: 1.0},
		{Text: "d"},
	}
	fast := profile
	fast.BaseSpeed = 10
	fast.BaseEnergy = 10
	profiles := []narrate.VoiceProfile{profile, fast}

	for _, p := range profiles {
		for _, seg := range segs {
			params := m.ComputeParams(seg, p, 0)
			if params.Speed < 0.5 || params.Speed > 2.0 {
				t.Errorf("speed %v out of [0.5,2.0] for seg %q", params.Speed, seg.Text)
			}
			if params.Energy < 0.5 || params.Energy > 1.5 {
				t.Errorf("energy %v out of [0.5,1.5] for seg %q", params.Energy, seg.Text)
			}
		}
	}
}

func TestComputeParams_Deterministic(t *testing.T) {
	m := New(testVoices())
	profile := narrate.DefaultVoiceProfile()
	seg := narrate.SpeechSegment{
		Text:      "again",
		Emotion:   "surprise",
		Intensity: 0.7,
		Hints:     narrate.ProsodyHints{Stress: "emphasized"},
	}

	first := m.ComputeParams(seg, profile, 0)
	for i := 0; i < 10; i++ {
		if got := m.ComputeParams(seg, profile, 0); got != first {
			t.Fatalf("params changed between identical calls: %+v vs %+v", got, first)
		}
	}
}

func TestComputeParams_AlternateSpeaker(t *testing.T) {
	m := New(testVoices())
	profile := narrate.DefaultVoiceProfile()

	// Anger shifts the band high; speaker 0 (medium) has a high sibling 1.
	seg := narrate.SpeechSegment{Text: "now", Emotion: "anger", Intensity: 1}
	params := m.ComputeParams(seg, profile, 0)
	if params.SpeakerID != 1 {
		t.Errorf("SpeakerID = %d, want 1 (high-band sibling)", params.SpeakerID)
	}

	// Speaker 3 has no high-band sibling: keep the original id.
	params = m.ComputeParams(seg, profile, 3)
	if params.SpeakerID != 3 {
		t.Errorf("SpeakerID = %d, want 3 (no sibling available)", params.SpeakerID)
	}

	// Neutral emotion and no hint: band matches, speaker untouched.
	params = m.ComputeParams(narrate.SpeechSegment{Text: "calm"}, profile, 0)
	if params.SpeakerID != 0 {
		t.Errorf("SpeakerID = %d, want 0 (no band shift)", params.SpeakerID)
	}
}

func TestComputeParams_PitchHintOverridesEmotion(t *testing.T) {
	m := New(testVoices())
	profile := narrate.DefaultVoiceProfile()

	// Sad would go low, but the explicit hint wins.
	seg := narrate.SpeechSegment{
		Text:      "quiet dread",
		Emotion:   "sad",
		Intensity: 1,
		Hints:     narrate.ProsodyHints{PitchVariation: "high"},
	}
	params := m.ComputeParams(seg, profile, 0)
	if params.Band != narrate.PitchHigh {
		t.Errorf("Band = %v, want high", params.Band)
	}
}

func TestComputeParams_Disabled(t *testing.T) {
	m := New(testVoices())
	m.Disabled = true
	profile := narrate.DefaultVoiceProfile()

	seg := narrate.SpeechSegment{Text: "x", Emotion: "anger", Intensity: 1,
		Hints: narrate.ProsodyHints{Speed: "fast", Stress: "emphasized", PitchVariation: "high"}}
	params := m.ComputeParams(seg, profile, 2)

	if params.Speed != profile.BaseSpeed {
		t.Errorf("disabled Speed = %v, want base %v", params.Speed, profile.BaseSpeed)
	}
	if params.Energy != profile.BaseEnergy {
		t.Errorf("disabled Energy = %v, want base %v", params.Energy, profile.BaseEnergy)
	}
	if params.SpeakerID != 2 {
		t.Errorf("disabled SpeakerID = %d, want 2", params.SpeakerID)
	}
}

func almostEqual(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 1e-9
}
