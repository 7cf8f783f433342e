package subtitles

import (
	"strings"
	"unicode/utf8"

	"ccgen/internal/transcript"
)

// Default chunking thresholds.
const (
	DefaultMaxChars       = 42
	DefaultMaxWords       = 8
	DefaultPauseThreshold = 0.5
)

// Cue is one caption display unit. Index is 1-based and contiguous in emission order.
type Cue struct {
	Index int     `json:"index"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Options tunes the chunking thresholds.
type Options struct {
	MaxChars       int
	MaxWords       int
	PauseThreshold float64
}

// DefaultOptions returns the readability thresholds used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		MaxChars:       DefaultMaxChars,
		MaxWords:       DefaultMaxWords,
		PauseThreshold: DefaultPauseThreshold,
	}
}

func (o Options) normalized() Options {
	if o.MaxChars <= 0 {
		o.MaxChars = DefaultMaxChars
	}
	if o.MaxWords <= 0 {
		o.MaxWords = DefaultMaxWords
	}
	if o.PauseThreshold <= 0 {
		o.PauseThreshold = DefaultPauseThreshold
	}
	return o
}

// Segmenter converts engine segments into caption cues.
type Segmenter struct {
	opts Options
}

// NewSegmenter builds a segmenter; zero-valued thresholds fall back to defaults.
func NewSegmenter(opts Options) *Segmenter {
	return &Segmenter{opts: opts.normalized()}
}

// Options reports the effective thresholds.
func (s *Segmenter) Options() Options {
	return s.opts
}

// Cues chunks the word stream of all segments into cues. When no segment
// carries word timing, each segment becomes one cue with its own bounds.
func (s *Segmenter) Cues(segments []transcript.Segment) []Cue {
	words := transcript.FlattenWords(segments)
	if len(words) == 0 {
		return cuesFromSegments(segments)
	}
	return s.CuesFromWords(words)
}

// CuesFromWords chunks a flat, time-ordered word stream into cues.
func (s *Segmenter) CuesFromWords(words []transcript.Word) []Cue {
	chunks := s.chunk(words)
	cues := make([]Cue, 0, len(chunks))
	for _, chunk := range chunks {
		text := strings.TrimSpace(joinWords(chunk))
		if text == "" {
			continue
		}
		cues = append(cues, Cue{
			Index: len(cues) + 1,
			Start: chunk[0].Start,
			End:   chunk[len(chunk)-1].End,
			Text:  text,
		})
	}
	return cues
}

// chunk groups words so that every input word lands in exactly one chunk, in order.
func (s *Segmenter) chunk(words []transcript.Word) [][]transcript.Word {
	if len(words) == 0 {
		return nil
	}
	var (
		chunks  [][]transcript.Word
		current []transcript.Word
		text    strings.Builder
	)
	for i, word := range words {
		current = append(current, word)
		text.WriteString(word.Text)

		if s.shouldBreak(words, i, text.String(), len(current)) {
			chunks = append(chunks, current)
			current = nil
			text.Reset()
		}
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

func (s *Segmenter) shouldBreak(words []transcript.Word, i int, buffered string, count int) bool {
	word := words[i]
	if i+1 < len(words) && words[i+1].Start-word.End > s.opts.PauseThreshold {
		return true
	}
	if endsSentence(word.Text) {
		return true
	}
	if utf8.RuneCountInString(strings.TrimSpace(buffered)) > s.opts.MaxChars {
		return true
	}
	return count >= s.opts.MaxWords
}

func endsSentence(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	switch trimmed[len(trimmed)-1] {
	case '.', '?', '!':
		return true
	}
	return false
}

func joinWords(words []transcript.Word) string {
	var b strings.Builder
	for _, w := range words {
		b.WriteString(w.Text)
	}
	return b.String()
}

func cuesFromSegments(segments []transcript.Segment) []Cue {
	if len(segments) == 0 {
		return nil
	}
	cues := make([]Cue, 0, len(segments))
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		cues = append(cues, Cue{
			Index: len(cues) + 1,
			Start: seg.Start,
			End:   seg.End,
			Text:  text,
		})
	}
	return cues
}
