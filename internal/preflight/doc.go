// Package preflight runs environment checks before ccgen does work that is
// expensive to fail halfway: directory access for uploads, models and logs,
// free disk space ahead of a model download, and external binaries.
package preflight
