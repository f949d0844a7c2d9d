package narrate

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// FileSource reads a work from a plain text or markdown file. Pages are
// separated by horizontal rule lines ("---" alone on a line); a file
// without any rules is a single page. Double-quoted spans are surfaced
// as dialogs so quoted speech gets the dialog voice treatment.
type FileSource struct {
	path string

	pages []string // populated on first Pages call
}

// NewFileSource wraps a file path. The file is read lazily.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Pages reads and splits the file.
func (s *FileSource) Pages(_ context.Context) ([]string, error) {
	if s.pages != nil {
		return s.pages, nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read source file: %w", err)
	}

	var pages []string
	var current []string
	for _, line := range strings.Split(string(data), "\n") {
		if isPageBreak(line) {
			if page := strings.TrimSpace(strings.Join(current, "\n")); page != "" {
				pages = append(pages, page)
			}
			current = current[:0]
			continue
		}
		current = append(current, line)
	}
	if page := strings.TrimSpace(strings.Join(current, "\n")); page != "" {
		pages = append(pages, page)
	}

	s.pages = pages
	return pages, nil
}

// Dialogs extracts double-quoted spans from one page. Plain files carry
// no speaker attribution, so every span belongs to a generic character
// voice with neutral emotion.
func (s *FileSource) Dialogs(ctx context.Context, page int) ([]Dialog, error) {
	pages, err := s.Pages(ctx)
	if err != nil {
		return nil, err
	}
	if page < 0 || page >= len(pages) {
		return nil, fmt.Errorf("page %d out of range [0, %d)", page, len(pages))
	}

	var dialogs []Dialog
	text := pages[page]
	for start := 0; ; {
		open := strings.IndexRune(text[start:], '"')
		if open < 0 {
			break
		}
		open += start
		end := strings.IndexRune(text[open+1:], '"')
		if end < 0 {
			break
		}
		end += open + 1

		span := text[open : end+1]
		if len(strings.TrimSpace(strings.Trim(span, `"`))) > 0 {
			dialogs = append(dialogs, Dialog{
				Text:      span,
				Speaker:   "Character",
				Emotion:   "neutral",
				SpeakerID: UnsetSpeakerID,
			})
		}
		start = end + 1
	}
	return dialogs, nil
}

func isPageBreak(line string) bool {
	trimmed := strings.TrimSpace(line)
	if len(trimmed) < 3 {
		return false
	}
	for _, r := range trimmed {
		if r != '-' {
			return false
		}
	}
	return true
}
