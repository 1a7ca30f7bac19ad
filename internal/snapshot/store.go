// Package snapshot implements SnapshotStore: the atomic publish/read path
// for a venue's active-set file at
// "<venue_dir>/state/active_instruments.snapshot.json".
//
// Grounded on original_source/collectors/discovery_service.py's
// _atomic_write_json/_load_snapshot_instruments (temp-file-then-rename,
// best-effort read falling back to the prior in-memory view).
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mdragan85/venuepoll/internal/model"
)

const fileName = "active_instruments.snapshot.json"

// Store publishes and reads one venue's active-set snapshot.
type Store struct {
	path string
}

// New returns a Store rooted at "<venueDir>/state/active_instruments.snapshot.json".
func New(venueDir string) *Store {
	return &Store{path: filepath.Join(venueDir, "state", fileName)}
}

// Path returns the target snapshot file path.
func (s *Store) Path() string {
	return s.path
}

// Publish atomically replaces the snapshot file: serialize to a sibling
// temp file in the same directory, flush + sync, then rename over the
// target. Readers observe either the prior payload or the new one, never a
// partial write.
func (s *Store) Publish(snap model.Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("snapshot: mkdir: %w", err)
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("snapshot: marshal: %w", err)
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("snapshot: create temp file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("snapshot: write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("snapshot: fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("snapshot: close temp file: %w", err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("snapshot: rename into place: %w", err)
	}
	return nil
}

// ModTime returns the target file's last modification time, used by readers
// as a cheap version token to decide whether to reparse. A missing file
// reports the zero time with no error.
func (s *Store) ModTime() (time.Time, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("snapshot: stat: %w", err)
	}
	return info.ModTime(), nil
}

// Load parses the current snapshot file. On a missing "instruments" key it
// returns an empty ActiveSet with no error (a no-op reload with a single
// warning is the caller's responsibility, per spec §8).
func (s *Store) Load() (model.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("snapshot: read: %w", err)
	}

	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return model.Snapshot{}, fmt.Errorf("snapshot: unmarshal: %w", err)
	}
	if snap.Instruments == nil {
		snap.Instruments = model.ActiveSet{}
	}
	return snap, nil
}

// LoadInstrumentKeys is a lightweight read used by Discovery to decide
// whether a freshly discovered set differs from what was last published,
// without needing the full Instrument payload.
func LoadInstrumentKeys(s *Store) (map[string]struct{}, error) {
	snap, err := s.Load()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]struct{}{}, nil
		}
		return nil, err
	}
	return snap.Instruments.Keys(), nil
}
