// Package main hosts the ccgen CLI.
//
// `ccgen serve` runs the HTTP service; `ccgen transcribe` runs a single file
// through the same runner in-process and renders its progress; `ccgen models`
// lists, pre-fetches and removes speech models; `ccgen config` and
// `ccgen status` help set up a machine. Commands share one lazily loaded
// configuration and build their services through newApp.
package main
