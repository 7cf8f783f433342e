// Package models owns the whisper model catalog and the local model store.
//
// A model lives in models_dir/<last element of its repo id> and counts as
// downloaded when that directory exists and is non-empty. Downloads go
// through a Downloader (the Hugging Face CLI by default), are serialized per
// model with a file lock so concurrent tasks and processes fetch each model
// once, and are recorded in a small SQLite index for listing.
package models
