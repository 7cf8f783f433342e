// Package runner executes transcription and model-download tasks in the
// background.
//
// Submit registers a task with the registry and returns its id immediately.
// A bounded pool of goroutines then drives the task through its stages
// (initializing, resolving_model, loading, transcribing, writing,
// cleaning_up), recording log lines and progress as it goes. Every failure is
// caught at the task boundary and turned into an "ERROR:" log line, progress
// -1 and the error status; model download and source cleanup failures only
// produce warnings.
//
// Cancellation is cooperative: the runner's context is checked between
// stages, so a task that is mid-inference finishes that call first.
package runner
