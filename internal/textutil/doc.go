// Package textutil sanitizes user-supplied names for safe filesystem and
// identifier use. Uploaded filenames are NFC-normalized so names sent by
// macOS clients (NFD) map to the same on-disk path.
package textutil
