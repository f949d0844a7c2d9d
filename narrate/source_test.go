package narrate

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeSource(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "work.md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFileSource_SplitsPagesOnRules(t *testing.T) {
	src := NewFileSource(writeSource(t, "Page one text.\n\n---\n\nPage two text.\n---\nPage three."))

	pages, err := src.Pages(context.Background())
	if err != nil {
		t.Fatalf("pages: %v", err)
	}
	if len(pages) != 3 {
		t.Fatalf("got %d pages, want 3: %q", len(pages), pages)
	}
	if pages[0] != "Page one text." || pages[2] != "Page three." {
		t.Errorf("unexpected page content: %q", pages)
	}
}

func TestFileSource_SinglePageWithoutRules(t *testing.T) {
	src := NewFileSource(writeSource(t, "Just one page.\nWith two lines."))

	pages, err := src.Pages(context.Background())
	if err != nil {
		t.Fatalf("pages: %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("got %d pages, want 1", len(pages))
	}
}

func TestFileSource_ExtractsQuotedDialogs(t *testing.T) {
	src := NewFileSource(writeSource(t, `He paused. "We go at dawn." She nodded. "Agreed."`))

	dialogs, err := src.Dialogs(context.Background(), 0)
	if err != nil {
		t.Fatalf("dialogs: %v", err)
	}
	if len(dialogs) != 2 {
		t.Fatalf("got %d dialogs, want 2: %+v", len(dialogs), dialogs)
	}
	if dialogs[0].Text != `"We go at dawn."` {
		t.Errorf("dialog 0 = %q", dialogs[0].Text)
	}
	if dialogs[1].Text != `"Agreed."` {
		t.Errorf("dialog 1 = %q", dialogs[1].Text)
	}
	for i, d := range dialogs {
		if d.Speaker == "" {
			t.Errorf("dialog %d has empty speaker", i)
		}
	}
}

func TestFileSource_DialogsPageOutOfRange(t *testing.T) {
	src := NewFileSource(writeSource(t, "One page."))
	if _, err := src.Dialogs(context.Background(), 5); err == nil {
		t.Error("expected error for out-of-range page")
	}
}

func TestFileSource_MissingFile(t *testing.T) {
	src := NewFileSource("/nonexistent/work.md")
	if _, err := src.Pages(context.Background()); err == nil {
		t.Error("expected error for missing file")
	}
}
