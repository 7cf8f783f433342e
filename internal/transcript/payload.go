package transcript

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// Payload mirrors the JSON document whisper-style engines write next to their output.
type Payload struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Segments []Segment `json:"segments"`
}

// Decode parses an engine JSON payload from r.
func Decode(r io.Reader) (Payload, error) {
	var payload Payload
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return Payload{}, fmt.Errorf("parse transcript json: %w", err)
	}
	for i := range payload.Segments {
		payload.Segments[i].Words = dropUntimedWords(payload.Segments[i].Words)
	}
	return payload, nil
}

// LoadFile reads and decodes an engine JSON payload from disk.
func LoadFile(path string) (Payload, error) {
	if strings.TrimSpace(path) == "" {
		return Payload{}, os.ErrNotExist
	}
	file, err := os.Open(path)
	if err != nil {
		return Payload{}, err
	}
	defer file.Close()
	return Decode(file)
}

// dropUntimedWords removes words the aligner could not place (end before start).
func dropUntimedWords(words []Word) []Word {
	if len(words) == 0 {
		return words
	}
	out := words[:0]
	for _, w := range words {
		if w.End < w.Start || w.Start < 0 {
			continue
		}
		out = append(out, w)
	}
	return out
}
