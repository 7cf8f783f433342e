// Package logging assembles the slog loggers used by ccgen.
//
// It owns the console and JSON handlers, level parsing and output routing, and
// the standard field keys (component, task_id, stage, model) that the runner,
// server and CLI attach to every record. NewNop gives tests and optional
// wiring a logger that discards everything.
package logging
