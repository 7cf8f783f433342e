// Package tasks is the in-memory job registry shared by the task runner and
// progress observers.
//
// Each task has exactly one writer (the runner goroutine that created it) and
// any number of readers. Records live in a concurrency-safe map and every
// record guards its fields with its own lock, so unrelated tasks never
// contend. Readers always receive copies and see some prefix of the eventual
// log list. Mutations close a per-record change channel, which lets
// observers wait for the next update instead of polling. Records are never
// removed; state lasts until the process exits.
package tasks
