package subtitles

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Extension is the file extension of written caption files.
const Extension = ".srt"

// Write serializes cues as SubRip in the order given. Index lines are
// renumbered from 1 so the output stays contiguous.
func Write(w io.Writer, cues []Cue) error {
	bw := bufio.NewWriter(w)
	for i, cue := range cues {
		if _, err := fmt.Fprintf(bw, "%d\n%s --> %s\n%s\n\n",
			i+1,
			FormatTimestamp(cue.Start),
			FormatTimestamp(cue.End),
			cueBody(cue.Text),
		); err != nil {
			return fmt.Errorf("write cue %d: %w", i+1, err)
		}
	}
	return bw.Flush()
}

// WriteFile writes cues to path, replacing any existing file. A failed write
// may leave a partial file behind; callers decide whether to remove it.
func WriteFile(path string, cues []Cue) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create srt: %w", err)
	}
	if err := Write(file, cues); err != nil {
		_ = file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close srt: %w", err)
	}
	return nil
}

// cueBody drops blank lines so multi-line text cannot terminate the cue early.
func cueBody(text string) string {
	text = strings.ReplaceAll(strings.TrimSpace(text), "\r\n", "\n")
	if !strings.Contains(text, "\n") {
		return text
	}
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
