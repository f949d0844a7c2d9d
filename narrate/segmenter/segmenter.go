// Package segmenter splits chapter text into ordered speech segments,
// interleaving narration sentences with known dialog spans.
package segmenter

import (
	"strings"
	"unicode"

	"github.com/charmbracelet/log"

	"github.com/voxbook/voxbook/narrate"
)

// Segment splits text into an ordered list of speech segments. Dialogs are
// matched against the text in input order: narration before each dialog is
// emitted as sentence segments, then the dialog itself with its speaker and
// emotion, then the cursor advances past the match. A dialog whose literal
// text cannot be found at or after the cursor is skipped without moving the
// cursor, so later dialogs still match in order. Trailing text becomes final
// narration segments. Segment indexes are strictly increasing.
func Segment(text string, dialogs []narrate.Dialog) []narrate.SpeechSegment {
	var out []narrate.SpeechSegment
	if strings.TrimSpace(text) == "" {
		return out
	}

	next := 0
	emitNarration := func(chunk string) {
		for _, sentence := range SplitSentences(chunk) {
			out = append(out, narrate.SpeechSegment{
				Index:     next,
				Text:      sentence,
				Speaker:   narrate.NarratorSpeaker,
				SpeakerID: narrate.UnsetSpeakerID,
			})
			next++
		}
	}

	cursor := 0
	for _, d := range dialogs {
		if d.Text == "" {
			continue
		}
		rel := strings.Index(text[cursor:], d.Text)
		if rel < 0 {
			// Encoding mismatch or truncation in the extracted dialog.
			// Leave the cursor alone so later dialogs keep their order.
			log.Warn("dialog text not found in source, skipping",
				"speaker", d.Speaker, "preview", preview(d.Text))
			continue
		}
		at := cursor + rel

		emitNarration(text[cursor:at])

		out = append(out, narrate.SpeechSegment{
			Index:     next,
			Text:      d.Text,
			Speaker:   d.Speaker,
			Emotion:   d.Emotion,
			Intensity: clamp01(d.Intensity),
			IsDialog:  true,
			SpeakerID: d.SpeakerID,
			Hints:     d.Hints,
		})
		next++

		cursor = at + len(d.Text)
	}

	emitNarration(text[cursor:])
	return out
}

// SplitSentences splits text on sentence-terminal punctuation followed by
// whitespace. Blank fragments are dropped; text without any terminal
// punctuation comes back as a single sentence.
func SplitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0

	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) {
			continue
		}
		// Swallow runs like "?!" or "..." and a closing quote or bracket.
		end := i + 1
		for end < len(runes) && isTerminal(runes[end]) {
			end++
		}
		if end < len(runes) && isClosing(runes[end]) {
			end++
		}
		if end < len(runes) && !unicode.IsSpace(runes[end]) {
			// Mid-token punctuation, e.g. a decimal point or file name.
			i = end - 1
			continue
		}

		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			sentences = append(sentences, s)
		}
		for end < len(runes) && unicode.IsSpace(runes[end]) {
			end++
		}
		start = end
		i = end - 1
	}

	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isClosing(r rune) bool {
	return r == '"' || r == '\'' || r == ')' || r == ']' || r == '”'
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func preview(s string) string {
	const n = 24
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
