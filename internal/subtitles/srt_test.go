package subtitles

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseSkipsMalformedBlocks(t *testing.T) {
	content := "\ufeff1\n00:00:00,000 --> 00:00:01,000\nfirst\n\n" +
		"garbage block\n\n" +
		"2\nnot a timing line\ntext\n\n" +
		"3\r\n00:00:02,000 --> 00:00:03,500\r\nsecond\r\nline two\r\n"
	cues, err := Parse(strings.NewReader(content))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(cues) != 2 {
		t.Fatalf("expected 2 cues, got %d: %+v", len(cues), cues)
	}
	if cues[1].Index != 3 || cues[1].Text != "second\nline two" || cues[1].End != 3.5 {
		t.Fatalf("unexpected second cue: %+v", cues[1])
	}
}

func TestBounds(t *testing.T) {
	first, last := Bounds([]Cue{{Start: 4, End: 5}, {Start: 1, End: 2}, {Start: 6, End: 9}})
	if first != 1 || last != 9 {
		t.Fatalf("Bounds = %v, %v", first, last)
	}
	if first, last := Bounds(nil); first != 0 || last != 0 {
		t.Fatalf("empty Bounds = %v, %v", first, last)
	}
}

func TestValidateFileReportsIssues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.srt")
	content := "2\n00:00:05,000 --> 00:00:04,000\nbackwards\n\n" +
		"3\n00:01:00,000 --> 00:02:00,000\nlate\n\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	issues := ValidateFile(path, 30)
	joined := strings.Join(issues, ";")
	for _, want := range []string{"non_contiguous_index", "inverted_timing", "cues_past_end"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected %s in %v", want, issues)
		}
	}
}

func TestValidateFileMissing(t *testing.T) {
	issues := ValidateFile(filepath.Join(t.TempDir(), "nope.srt"), 0)
	if len(issues) != 1 || !strings.HasPrefix(issues[0], "read_error") {
		t.Fatalf("issues = %v", issues)
	}
}
