package textsync

import (
	"testing"
	"time"

	"github.com/voxbook/voxbook/narrate"
)

func testSegments() []narrate.SpeechSegment {
	return []narrate.SpeechSegment{
		{Index: 0, Text: "First sentence here.", Speaker: narrate.NarratorSpeaker},
		{Index: 1, Text: "A reply.", Speaker: "Mira", IsDialog: true},
		{Index: 2, Text: "Closing words.", Speaker: narrate.NarratorSpeaker},
	}
}

func TestBuild_LaysSpansBackToBack(t *testing.T) {
	tl := Build(testSegments(), []time.Duration{
		2 * time.Second, 1 * time.Second, 3 * time.Second,
	})

	want := []struct{ start, end time.Duration }{
		{0, 2 * time.Second},
		{2 * time.Second, 3 * time.Second},
		{3 * time.Second, 6 * time.Second},
	}
	for i, w := range want {
		if tl.Spans[i].Start != w.start || tl.Spans[i].End != w.end {
			t.Errorf("span %d = [%v, %v), want [%v, %v)",
				i, tl.Spans[i].Start, tl.Spans[i].End, w.start, w.end)
		}
	}
	if tl.Total() != 6*time.Second {
		t.Errorf("total = %v, want 6s", tl.Total())
	}
}

func TestUpdateWithActualDurations(t *testing.T) {
	tl := Build(testSegments(), []time.Duration{
		2 * time.Second, 1 * time.Second, 3 * time.Second,
	})

	tl.UpdateWithActualDurations(map[int]time.Duration{
		0: 1500 * time.Millisecond,
		2: 4 * time.Second,
	})

	if tl.Spans[0].End != 1500*time.Millisecond {
		t.Errorf("span 0 end = %v, want 1.5s", tl.Spans[0].End)
	}
	// Segment 1 keeps its estimate but shifts left.
	if tl.Spans[1].Start != 1500*time.Millisecond || tl.Spans[1].End != 2500*time.Millisecond {
		t.Errorf("span 1 = [%v, %v), want [1.5s, 2.5s)", tl.Spans[1].Start, tl.Spans[1].End)
	}
	if tl.Total() != 6500*time.Millisecond {
		t.Errorf("total = %v, want 6.5s", tl.Total())
	}
}

func TestUpdateWithActualDurations_Idempotent(t *testing.T) {
	tl := Build(testSegments(), []time.Duration{time.Second, time.Second, time.Second})
	actual := map[int]time.Duration{1: 2 * time.Second}

	tl.UpdateWithActualDurations(actual)
	first := make([]SegmentSpan, len(tl.Spans))
	copy(first, tl.Spans)

	tl.UpdateWithActualDurations(actual)
	for i := range tl.Spans {
		if tl.Spans[i] != first[i] {
			t.Errorf("span %d changed on repeat update: %+v vs %+v", i, tl.Spans[i], first[i])
		}
	}
}

func TestFindCurrentSegment(t *testing.T) {
	tl := Build(testSegments(), []time.Duration{
		2 * time.Second, 1 * time.Second, 3 * time.Second,
	})

	tests := []struct {
		name string
		pos  time.Duration
		want int // expected span index, -1 for nil
	}{
		{"start", 0, 0},
		{"inside first", 1900 * time.Millisecond, 0},
		{"boundary belongs to next", 2 * time.Second, 1},
		{"inside last", 5 * time.Second, 2},
		{"past end resolves to last", 10 * time.Second, 2},
		{"negative", -time.Second, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tl.FindCurrentSegment(tt.pos)
			if tt.want == -1 {
				if got != nil {
					t.Fatalf("got span %+v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatalf("got nil, want span %d", tt.want)
			}
			if got.Index != tt.want {
				t.Errorf("got span %d, want %d", got.Index, tt.want)
			}
		})
	}
}

func TestBuildFromText_OffsetsAndDurations(t *testing.T) {
	text := `The door opened. "Who goes there?" A pause followed.`
	dialogs := []narrate.Dialog{
		{Text: `"Who goes there?"`, Speaker: "Guard", Emotion: "fear", Intensity: 0.4},
	}

	tl := BuildFromText(text, dialogs, 150, 140)
	if len(tl.Spans) != 3 {
		t.Fatalf("got %d spans, want 3", len(tl.Spans))
	}

	for i, span := range tl.Spans {
		if text[span.TextStart:span.TextEnd] != span.Text {
			t.Errorf("span %d offsets [%d:%d] select %q, want %q",
				i, span.TextStart, span.TextEnd, text[span.TextStart:span.TextEnd], span.Text)
		}
		if i > 0 && span.TextStart < tl.Spans[i-1].TextEnd {
			t.Errorf("span %d overlaps previous in text", i)
		}
		if span.End <= span.Start {
			t.Errorf("span %d has no duration", i)
		}
	}
	if !tl.Spans[1].IsDialog {
		t.Error("middle span should be the dialog")
	}
}

func TestFindCurrentSegment_EmptyTimeline(t *testing.T) {
	tl := Build(nil, nil)
	if got := tl.FindCurrentSegment(time.Second); got != nil {
		t.Errorf("got %+v, want nil", got)
	}
}

func TestBuildWordSegments_ExactPartition(t *testing.T) {
	total := 1234567 * time.Microsecond
	spans := BuildWordSegments("the quick brown fox jumps", total)
	if len(spans) != 5 {
		t.Fatalf("got %d word spans, want 5", len(spans))
	}

	if spans[0].Start != 0 {
		t.Errorf("first span starts at %v, want 0", spans[0].Start)
	}
	for i := 1; i < len(spans); i++ {
		if spans[i].Start != spans[i-1].End {
			t.Errorf("gap between span %d and %d: %v vs %v",
				i-1, i, spans[i-1].End, spans[i].Start)
		}
	}
	// The last word absorbs the rounding remainder.
	if spans[len(spans)-1].End != total {
		t.Errorf("last span ends at %v, want %v", spans[len(spans)-1].End, total)
	}
}

func TestBuildWordSegments_ProportionalToLength(t *testing.T) {
	spans := BuildWordSegments("aa aaaa", 300*time.Millisecond)
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	if spans[0].End-spans[0].Start != 100*time.Millisecond {
		t.Errorf("short word got %v, want 100ms", spans[0].End-spans[0].Start)
	}
	if spans[1].End-spans[1].Start != 200*time.Millisecond {
		t.Errorf("long word got %v, want 200ms", spans[1].End-spans[1].Start)
	}
}

func TestBuildWordSegments_CharacterOffsets(t *testing.T) {
	text := "the quick fox"
	spans := BuildWordSegments(text, time.Second)
	for i, s := range spans {
		if text[s.TextStart:s.TextEnd] != s.Word {
			t.Errorf("span %d offsets [%d:%d] select %q, want %q",
				i, s.TextStart, s.TextEnd, text[s.TextStart:s.TextEnd], s.Word)
		}
	}
}

func TestBuildWordSegments_Degenerate(t *testing.T) {
	if got := BuildWordSegments("", time.Second); got != nil {
		t.Errorf("empty text: got %v, want nil", got)
	}
	if got := BuildWordSegments("words here", 0); got != nil {
		t.Errorf("zero duration: got %v, want nil", got)
	}
}

func TestFindCurrentWord(t *testing.T) {
	spans := BuildWordSegments("one two three", 3*time.Second)

	if got := FindCurrentWord(spans, 0); got != 0 {
		t.Errorf("at 0: got %d, want 0", got)
	}
	if got := FindCurrentWord(spans, 10*time.Second); got != len(spans)-1 {
		t.Errorf("past end: got %d, want last index %d", got, len(spans)-1)
	}
	if got := FindCurrentWord(nil, time.Second); got != -1 {
		t.Errorf("empty spans: got %d, want -1", got)
	}
	if got := FindCurrentWord(spans, -time.Second); got != -1 {
		t.Errorf("negative pos: got %d, want -1", got)
	}
}
