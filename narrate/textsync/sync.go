// Package textsync maps playback positions back to text. It builds a
// timeline of segment spans from duration estimates, refines the spans as
// real synthesized durations arrive, and partitions each segment into word
// spans for fine-grained highlighting.
package textsync

import (
	"strings"
	"time"
	"unicode"

	"github.com/voxbook/voxbook/narrate"
	"github.com/voxbook/voxbook/narrate/segmenter"
)

// SegmentSpan is one segment's slot on the playback timeline. TextStart
// and TextEnd are byte offsets into the source text; both are zero when
// the timeline was built without the source (see Build).
type SegmentSpan struct {
	Index     int
	Text      string
	Speaker   string
	IsDialog  bool
	TextStart int
	TextEnd   int
	Start     time.Duration
	End       time.Duration
}

// WordSpan is one word's slot inside a segment's span. TextStart and
// TextEnd are byte offsets into the segment's text.
type WordSpan struct {
	Word      string
	TextStart int
	TextEnd   int
	Start     time.Duration
	End       time.Duration
}

// Timeline holds the segment spans for one chapter in index order.
type Timeline struct {
	Spans []SegmentSpan
}

// Build lays out segments back to back using the provided duration
// estimates. Estimates shorter than zero count as zero. The two slices
// are matched by position; extra estimates are ignored and missing ones
// default to zero.
func Build(segments []narrate.SpeechSegment, estimates []time.Duration) *Timeline {
	tl := &Timeline{Spans: make([]SegmentSpan, 0, len(segments))}
	var at time.Duration
	for i, seg := range segments {
		var d time.Duration
		if i < len(estimates) && estimates[i] > 0 {
			d = estimates[i]
		}
		tl.Spans = append(tl.Spans, SegmentSpan{
			Index:    seg.Index,
			Text:     seg.Text,
			Speaker:  seg.Speaker,
			IsDialog: seg.IsDialog,
			Start:    at,
			End:      at + d,
		})
		at += d
	}
	return tl
}

// BuildFromText segments the text, estimates each span's duration from
// the words-per-minute rates, and records where each span sits in the
// source so callers can highlight by character range.
func BuildFromText(text string, dialogs []narrate.Dialog, narrationWPM, dialogWPM int) *Timeline {
	segments := segmenter.Segment(text, dialogs)
	estimates := make([]time.Duration, len(segments))
	for i, seg := range segments {
		wpm := narrationWPM
		if seg.IsDialog {
			wpm = dialogWPM
		}
		estimates[i] = narrate.EstimateDuration(seg.Text, wpm)
	}
	tl := Build(segments, estimates)
	annotateOffsets(tl, text)
	return tl
}

// annotateOffsets locates each span's text in the source, scanning
// forward so repeated sentences resolve in order. Spans that cannot be
// located keep zero offsets.
func annotateOffsets(tl *Timeline, text string) {
	cursor := 0
	for i := range tl.Spans {
		rel := strings.Index(text[cursor:], tl.Spans[i].Text)
		if rel < 0 {
			continue
		}
		start := cursor + rel
		tl.Spans[i].TextStart = start
		tl.Spans[i].TextEnd = start + len(tl.Spans[i].Text)
		cursor = tl.Spans[i].TextEnd
	}
}

// UpdateWithActualDurations replaces span durations with the measured
// ones and re-lays the timeline from zero. Entries with a non-positive
// duration keep their current length. Calling it again with the same
// durations is a no-op.
func (tl *Timeline) UpdateWithActualDurations(actual map[int]time.Duration) {
	var at time.Duration
	for i := range tl.Spans {
		d := tl.Spans[i].End - tl.Spans[i].Start
		if a, ok := actual[tl.Spans[i].Index]; ok && a > 0 {
			d = a
		}
		tl.Spans[i].Start = at
		tl.Spans[i].End = at + d
		at += d
	}
}

// Total returns the length of the whole timeline.
func (tl *Timeline) Total() time.Duration {
	if len(tl.Spans) == 0 {
		return 0
	}
	return tl.Spans[len(tl.Spans)-1].End
}

// FindCurrentSegment returns the span covering pos. A span covers
// [Start, End). Positions past the end of the timeline resolve to the
// last span whose start is at or before the position, so the final
// segment stays highlighted while its audio drains. Returns nil for an
// empty timeline or a negative position.
func (tl *Timeline) FindCurrentSegment(pos time.Duration) *SegmentSpan {
	if len(tl.Spans) == 0 || pos < 0 {
		return nil
	}
	for i := range tl.Spans {
		if pos >= tl.Spans[i].Start && pos < tl.Spans[i].End {
			return &tl.Spans[i]
		}
	}
	// Past the end. Walk back to the last span that started by pos.
	for i := len(tl.Spans) - 1; i >= 0; i-- {
		if tl.Spans[i].Start <= pos {
			return &tl.Spans[i]
		}
	}
	return nil
}

// BuildWordSegments partitions a segment's duration across its words in
// proportion to word length in runes. The last word absorbs the rounding
// remainder so the spans exactly tile [0, total].
func BuildWordSegments(text string, total time.Duration) []WordSpan {
	words := splitWords(text)
	if len(words) == 0 || total <= 0 {
		return nil
	}

	runeTotal := 0
	for _, w := range words {
		runeTotal += len([]rune(w.word))
	}

	spans := make([]WordSpan, 0, len(words))
	var at time.Duration
	for i, w := range words {
		var d time.Duration
		if i == len(words)-1 {
			d = total - at
		} else {
			d = time.Duration(float64(total) * float64(len([]rune(w.word))) / float64(runeTotal))
		}
		spans = append(spans, WordSpan{
			Word:      w.word,
			TextStart: w.start,
			TextEnd:   w.end,
			Start:     at,
			End:       at + d,
		})
		at += d
	}
	return spans
}

type wordPos struct {
	word       string
	start, end int // byte offsets in the segment text
}

func splitWords(text string) []wordPos {
	var out []wordPos
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				out = append(out, wordPos{word: text[start:i], start: start, end: i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, wordPos{word: text[start:], start: start, end: len(text)})
	}
	return out
}

// FindCurrentWord returns the index of the word span covering pos, or the
// last index when pos runs past the end. Returns -1 when spans is empty
// or pos is negative.
func FindCurrentWord(spans []WordSpan, pos time.Duration) int {
	if len(spans) == 0 || pos < 0 {
		return -1
	}
	for i := range spans {
		if pos >= spans[i].Start && pos < spans[i].End {
			return i
		}
	}
	return len(spans) - 1
}
