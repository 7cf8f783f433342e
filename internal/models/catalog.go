package models

import (
	"fmt"
	"path"
	"strings"
)

// DefaultKey is the model used when a request names none.
const DefaultKey = "large-v3-turbo"

// Model describes one downloadable whisper model.
type Model struct {
	Key         string `json:"key"`
	RepoID      string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MinRAM      string `json:"min_ram"`
	Speed       string `json:"speed"`
	Accuracy    string `json:"accuracy"`
	// SizeBytes is an approximate download size used for hints and free-space checks.
	SizeBytes int64 `json:"size_bytes"`
}

const (
	mib = int64(1) << 20
	gib = int64(1) << 30
)

var catalog = []Model{
	{
		Key:         "tiny",
		RepoID:      "mlx-community/whisper-tiny",
		Name:        "Whisper Tiny",
		Description: "Fastest model, low accuracy. Best for quick tests.",
		MinRAM:      "1GB",
		Speed:       "Ultra",
		Accuracy:    "Low",
		SizeBytes:   75 * mib,
	},
	{
		Key:         "base",
		RepoID:      "mlx-community/whisper-base",
		Name:        "Whisper Base",
		Description: "Balanced speed and accuracy for simple audio.",
		MinRAM:      "1.5GB",
		Speed:       "Very Fast",
		Accuracy:    "Fair",
		SizeBytes:   145 * mib,
	},
	{
		Key:         "small",
		RepoID:      "mlx-community/whisper-small",
		Name:        "Whisper Small",
		Description: "Great balance for most everyday content.",
		MinRAM:      "3GB",
		Speed:       "Fast",
		Accuracy:    "Good",
		SizeBytes:   480 * mib,
	},
	{
		Key:         "distil-large-v3",
		RepoID:      "mlx-community/distil-whisper-large-v3",
		Name:        "Distil-Large-v3",
		Description: "Compressed large model. High quality with extreme speed.",
		MinRAM:      "6GB",
		Speed:       "Very Fast",
		Accuracy:    "High",
		SizeBytes:   1536 * mib,
	},
	{
		Key:         "large-v3-turbo",
		RepoID:      "mlx-community/whisper-large-v3-turbo",
		Name:        "Whisper Large-v3-Turbo",
		Description: "Optimized version of Large-v3. Recommended for M2 Air.",
		MinRAM:      "6GB",
		Speed:       "Fast",
		Accuracy:    "High",
		SizeBytes:   1638 * mib,
	},
	{
		Key:         "large-v3-turbo-4bit",
		RepoID:      "mlx-community/whisper-large-v3-turbo-4bit",
		Name:        "Whisper Large-v3-Turbo (4-bit)",
		Description: "Memory efficient version. Best for heavy loads on M2 Air.",
		MinRAM:      "4GB",
		Speed:       "Fast",
		Accuracy:    "High",
		SizeBytes:   470 * mib,
	},
}

// Catalog returns the known models in display order.
func Catalog() []Model {
	out := make([]Model, len(catalog))
	copy(out, catalog)
	return out
}

// Keys returns the catalog keys in display order.
func Keys() []string {
	keys := make([]string, len(catalog))
	for i, m := range catalog {
		keys[i] = m.Key
	}
	return keys
}

// Lookup finds a catalog model by key.
func Lookup(key string) (Model, bool) {
	key = strings.TrimSpace(key)
	for _, m := range catalog {
		if m.Key == key {
			return m, true
		}
	}
	return Model{}, false
}

// Resolve accepts a catalog key or a Hugging Face repo id ("owner/name").
// Repo ids outside the catalog resolve to an ad-hoc model keyed by folder name.
func Resolve(ref string) (Model, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		ref = DefaultKey
	}
	if m, ok := Lookup(ref); ok {
		return m, nil
	}
	for _, m := range catalog {
		if m.RepoID == ref {
			return m, nil
		}
	}
	owner, name, ok := strings.Cut(ref, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") || strings.Contains(ref, "..") {
		return Model{}, fmt.Errorf("%w: %q", ErrUnknownModel, ref)
	}
	return Model{Key: name, RepoID: ref, Name: ref}, nil
}

// FolderName is the local directory name for the model.
func (m Model) FolderName() string {
	return path.Base(m.RepoID)
}

// SizeHint renders the approximate download size for log lines.
func (m Model) SizeHint() string {
	switch {
	case m.SizeBytes <= 0:
		return "unknown size"
	case m.SizeBytes >= gib:
		return fmt.Sprintf("~%.1fGB", float64(m.SizeBytes)/float64(gib))
	default:
		return fmt.Sprintf("~%dMB", m.SizeBytes/mib)
	}
}
