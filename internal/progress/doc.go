// Package progress streams one task's log lines and progress value to an
// observer until the task reaches a terminal marker.
//
// Stream wakes on registry change notifications and on a fallback ticker.
// Each wake emits unseen log lines in order followed by the current progress,
// then ends the stream if the newest log line carries "Done!" or "ERROR".
// SSEWriter renders events in the text/event-stream wire format.
package progress
