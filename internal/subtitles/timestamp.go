package subtitles

import (
	"fmt"
	"math"
)

// FormatTimestamp renders seconds as HH:MM:SS,mmm. Milliseconds are truncated,
// and the hour field grows past two digits when needed.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	// A relative epsilon absorbs binary representation error
	// (1.001*1000 = 1000.9999999999999) but stays far below a real
	// sub-millisecond remainder.
	ms := seconds * 1000
	totalMillis := int64(math.Floor(ms + ms*1e-12))
	hours := totalMillis / 3_600_000
	totalMillis %= 3_600_000
	minutes := totalMillis / 60_000
	totalMillis %= 60_000
	secs := totalMillis / 1_000
	millis := totalMillis % 1_000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}
