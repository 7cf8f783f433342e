package models

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"ccgen/internal/fileutil"
	"ccgen/internal/logging"
	"ccgen/internal/preflight"
)

// ErrBusy is returned when a model is locked by an in-flight download.
var ErrBusy = errors.New("model download in progress")

const lockRetryDelay = 250 * time.Millisecond

// Store manages model directories under one root.
type Store struct {
	dir        string
	downloader Downloader
	index      *Index
	minFree    uint64
	logger     *slog.Logger
	now        func() time.Time
}

// StoreOption customizes a Store.
type StoreOption func(*Store)

// WithIndex records completed downloads in idx.
func WithIndex(idx *Index) StoreOption {
	return func(s *Store) { s.index = idx }
}

// WithMinFreeBytes overrides the per-model size hint for the free-space check.
func WithMinFreeBytes(n uint64) StoreOption {
	return func(s *Store) { s.minFree = n }
}

// NewStore builds a store rooted at dir.
func NewStore(dir string, downloader Downloader, logger *slog.Logger, opts ...StoreOption) *Store {
	s := &Store{
		dir:        dir,
		downloader: downloader,
		logger:     logging.NewComponentLogger(logger, "models"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the models root directory.
func (s *Store) Dir() string { return s.dir }

// LocalDir returns where m is (or would be) stored.
func (s *Store) LocalDir(m Model) string {
	return filepath.Join(s.dir, m.FolderName())
}

// IsDownloaded reports whether m's directory exists and is non-empty.
func (s *Store) IsDownloaded(m Model) bool {
	entries, err := os.ReadDir(s.LocalDir(m))
	if err != nil {
		return false
	}
	for _, e := range entries {
		// The downloader's own cache directory alone does not make a model.
		if e.Name() != ".cache" {
			return true
		}
	}
	return false
}

// Status is a catalog entry plus its local state.
type Status struct {
	Model
	Downloaded bool    `json:"downloaded"`
	LocalDir   string  `json:"local_dir"`
	Record     *Record `json:"record,omitempty"`
}

// List reports every catalog model with its download state.
func (s *Store) List(ctx context.Context) ([]Status, error) {
	records := map[string]Record{}
	if s.index != nil {
		list, err := s.index.List(ctx)
		if err != nil {
			return nil, err
		}
		for _, rec := range list {
			records[rec.Key] = rec
		}
	}
	out := make([]Status, 0, len(catalog))
	for _, m := range Catalog() {
		st := Status{Model: m, Downloaded: s.IsDownloaded(m), LocalDir: s.LocalDir(m)}
		if rec, ok := records[m.Key]; ok && st.Downloaded {
			st.Record = &rec
		}
		out = append(out, st)
	}
	return out, nil
}

// DownloadResult describes the outcome of Download.
type DownloadResult struct {
	Dir            string
	Bytes          int64
	AlreadyPresent bool
}

// Download fetches m unless it is already present. Concurrent callers for the
// same model (in this or another process) wait on a file lock, and whoever
// arrives second finds the files in place.
func (s *Store) Download(ctx context.Context, m Model) (DownloadResult, error) {
	if s.downloader == nil {
		return DownloadResult{}, errors.New("no downloader configured")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return DownloadResult{}, fmt.Errorf("create models dir: %w", err)
	}

	lock := s.lockFor(m)
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return DownloadResult{}, fmt.Errorf("lock model %s: %w", m.Key, err)
	}
	if !locked {
		return DownloadResult{}, fmt.Errorf("lock model %s: %w", m.Key, ErrBusy)
	}
	defer func() { _ = lock.Unlock() }()

	dir := s.LocalDir(m)
	if s.IsDownloaded(m) {
		return DownloadResult{Dir: dir, AlreadyPresent: true}, nil
	}

	need := s.minFree
	if need == 0 && m.SizeBytes > 0 {
		need = uint64(m.SizeBytes)
	}
	if need > 0 {
		if err := preflight.EnsureFreeSpace(s.dir, need); err != nil {
			return DownloadResult{}, err
		}
	}

	start := s.now()
	s.logger.Info("model download started",
		logging.String(logging.FieldModel, m.RepoID),
		logging.String("dir", dir),
		logging.String("size_hint", m.SizeHint()),
	)
	if err := s.downloader.Download(ctx, m.RepoID, dir); err != nil {
		return DownloadResult{}, err
	}
	if !s.IsDownloaded(m) {
		return DownloadResult{}, fmt.Errorf("download %s: no files written to %s", m.RepoID, dir)
	}

	size, err := fileutil.DirSize(dir)
	if err != nil {
		s.logger.Debug("model size scan failed", logging.Error(err))
	}
	if s.index != nil {
		rec := Record{Key: m.Key, RepoID: m.RepoID, Dir: dir, Bytes: size, DownloadedAt: s.now()}
		if err := s.index.Put(ctx, rec); err != nil {
			logging.WarnWithContext(s.logger, "model index update failed", "model_index_write",
				logging.String(logging.FieldModel, m.Key),
				logging.Error(err),
				logging.String(logging.FieldImpact, "model listing will omit download metadata"),
			)
		}
	}
	s.logger.Info("model download complete",
		logging.String(logging.FieldModel, m.RepoID),
		logging.Int64("bytes", size),
		logging.Duration("elapsed", s.now().Sub(start)),
	)
	return DownloadResult{Dir: dir, Bytes: size}, nil
}

// Delete removes the local files for ref (a key or repo id) and its index row.
func (s *Store) Delete(ctx context.Context, ref string) error {
	m, err := Resolve(ref)
	if err != nil {
		return err
	}
	dir := s.LocalDir(m)
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotDownloaded, m.Key)
		}
		return fmt.Errorf("stat model dir: %w", err)
	}

	lock := s.lockFor(m)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock model %s: %w", m.Key, err)
	}
	if !locked {
		return fmt.Errorf("delete %s: %w", m.Key, ErrBusy)
	}
	defer func() { _ = lock.Unlock() }()

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove model dir: %w", err)
	}
	if s.index != nil {
		if err := s.index.Remove(ctx, m.Key); err != nil {
			return fmt.Errorf("update model index: %w", err)
		}
	}
	s.logger.Info("model deleted", logging.String(logging.FieldModel, m.Key), logging.String("dir", dir))
	return nil
}

func (s *Store) lockFor(m Model) *flock.Flock {
	return flock.New(filepath.Join(s.dir, "."+m.FolderName()+".lock"))
}
