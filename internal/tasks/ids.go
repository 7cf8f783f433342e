package tasks

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ccgen/internal/textutil"
)

// NewID builds an opaque task id from a display name and submission time.
// The random suffix keeps rapid submissions of the same name within one
// second from colliding.
func NewID(name string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%d_%s", textutil.SanitizeToken(name), now.Unix(), suffix)
}
