package logging

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// consoleTimeLayout carries milliseconds so records can be lined up against
// the second-resolution task log clock.
const consoleTimeLayout = "2006-01-02 15:04:05.000"

const fieldIndent = "      "

func consoleTime(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.In(time.Local).Format(consoleTimeLayout)
}

// plainValue renders header parts (component, task id, stage) without quoting.
func plainValue(v slog.Value) string {
	v = v.Resolve()
	if v.Kind() == slog.KindAny {
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	}
	return v.String()
}

// fieldValue renders one detail line. Each field owns its line, so only empty
// strings are quoted; multi-line values (panic stacks, engine stderr) are
// indented under the label.
func fieldValue(v slog.Value) string {
	v = v.Resolve()
	var s string
	switch v.Kind() {
	case slog.KindString:
		s = v.String()
	case slog.KindFloat64:
		// Audio offsets and ratios; millisecond precision is all that matters.
		s = strconv.FormatFloat(v.Float64(), 'f', 3, 64)
	case slog.KindDuration:
		s = v.Duration().Round(time.Millisecond).String()
	case slog.KindTime:
		s = consoleTime(v.Time())
	default:
		s = plainValue(v)
	}
	if s == "" {
		return `""`
	}
	s = strings.TrimRight(s, "\n")
	if strings.Contains(s, "\n") {
		return "\n" + fieldIndent + strings.ReplaceAll(s, "\n", "\n"+fieldIndent)
	}
	return s
}
