// Package config loads, normalizes, and validates ccgen configuration.
//
// It supplies defaults, expands user paths (including tilde shortcuts), reads
// TOML files, and honours environment overrides such as CCGEN_API_BIND and
// HF_TOKEN. Every knob the server, runner and CLI need lives on Config so the
// rest of the module never reads the environment directly.
package config
