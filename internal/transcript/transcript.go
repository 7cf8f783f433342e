package transcript

import "strings"

// Word is one recognized word with engine-reported timing in seconds.
// Text keeps whatever leading spacing the engine encoded.
type Word struct {
	Text  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Segment is one engine-defined grouping of transcribed speech.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	Words []Word  `json:"words,omitempty"`
}

// FlattenWords concatenates every segment's words into a single time-ordered stream.
func FlattenWords(segments []Segment) []Word {
	total := 0
	for _, seg := range segments {
		total += len(seg.Words)
	}
	if total == 0 {
		return nil
	}
	out := make([]Word, 0, total)
	for _, seg := range segments {
		out = append(out, seg.Words...)
	}
	return out
}

// PlainText joins trimmed segment text with single spaces.
func PlainText(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// Duration returns the end time of the last segment, or zero when empty.
func Duration(segments []Segment) float64 {
	var last float64
	for _, seg := range segments {
		if seg.End > last {
			last = seg.End
		}
	}
	return last
}
