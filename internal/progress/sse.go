package progress

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// SSEWriter encodes events as text/event-stream frames and flushes each one.
type SSEWriter struct {
	w       io.Writer
	flusher http.Flusher
}

// NewSSEWriter wraps w. Flushing happens only when w implements http.Flusher.
func NewSSEWriter(w io.Writer) *SSEWriter {
	flusher, _ := w.(http.Flusher)
	return &SSEWriter{w: w, flusher: flusher}
}

// Emit writes one event frame. It satisfies EmitFunc.
func (s *SSEWriter) Emit(evt Event) error {
	var data string
	switch evt.Kind {
	case EventLog:
		data = evt.Line
	case EventProgress:
		data = strconv.Itoa(evt.Progress)
	default:
		return fmt.Errorf("unknown event kind %q", evt.Kind)
	}
	var b strings.Builder
	b.WriteString("event: ")
	b.WriteString(string(evt.Kind))
	b.WriteByte('\n')
	// Multi-line payloads need one data field per line.
	for _, line := range strings.Split(data, "\n") {
		b.WriteString("data: ")
		b.WriteString(strings.TrimSuffix(line, "\r"))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	if _, err := io.WriteString(s.w, b.String()); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

// SetHeaders prepares an HTTP response for an event stream.
func SetHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}
