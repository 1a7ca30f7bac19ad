package snapshot

import (
	"log/slog"
	"time"

	"github.com/mdragan85/venuepoll/internal/model"
)

// Reader tracks a Store's version token across calls so a caller can
// cheaply detect "has this changed since I last looked" without re-parsing
// on every poll cycle. On parse failure it retains the previous in-memory
// view and logs a warning — it never returns an error to the caller and
// never crashes the poll loop.
type Reader struct {
	store   *Store
	logger  *slog.Logger
	mtime   time.Time
	current model.Snapshot
	loaded  bool
}

// NewReader wraps store with sticky last-good-snapshot semantics.
func NewReader(store *Store, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{store: store, logger: logger}
}

// Poll checks whether the underlying file's version token has advanced and,
// if so, reloads it. It returns the current (possibly stale-but-valid) view
// and whether a reload actually occurred this call.
func (r *Reader) Poll() (model.Snapshot, bool) {
	mtime, err := r.store.ModTime()
	if err != nil {
		r.logger.Warn("snapshot mtime check failed", "path", r.store.Path(), "error", err)
		return r.current, false
	}
	if mtime.IsZero() || !mtime.After(r.mtime) {
		return r.current, false
	}

	snap, err := r.store.Load()
	if err != nil {
		r.logger.Warn("snapshot parse failed, retaining previous view", "path", r.store.Path(), "error", err)
		return r.current, false
	}

	r.mtime = mtime
	r.current = snap
	r.loaded = true
	return r.current, true
}

// Current returns the last successfully loaded snapshot without checking
// for updates.
func (r *Reader) Current() (model.Snapshot, bool) {
	return r.current, r.loaded
}
