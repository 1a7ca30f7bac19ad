package snapshot

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mdragan85/venuepoll/internal/model"
)

func TestPublishThenLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	snap := model.Snapshot{
		AsofTSUTC: "2026-07-30T00:00:00Z",
		Venue:     "kalshi",
		Count:     1,
		Instruments: model.ActiveSet{
			"kalshi:FOO-BAR": model.Instrument{Venue: "kalshi", PollKey: "FOO-BAR", Expiration: 1000},
		},
	}

	if err := s.Publish(snap); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Venue != snap.Venue || got.Count != snap.Count {
		t.Errorf("Load() = %+v, want %+v", got, snap)
	}
	if len(got.Instruments) != 1 {
		t.Fatalf("got %d instruments, want 1", len(got.Instruments))
	}

	if _, err := os.Stat(s.path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("expected temp file to be gone after publish, stat err = %v", err)
	}
}

func TestPublish_RepeatedPublishDoesNotMoveModTimeBackward(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	snap := model.Snapshot{Venue: "kalshi", Instruments: model.ActiveSet{}}

	if err := s.Publish(snap); err != nil {
		t.Fatalf("Publish 1: %v", err)
	}
	first, err := s.ModTime()
	if err != nil {
		t.Fatalf("ModTime 1: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	if err := s.Publish(snap); err != nil {
		t.Fatalf("Publish 2: %v", err)
	}
	second, err := s.ModTime()
	if err != nil {
		t.Fatalf("ModTime 2: %v", err)
	}

	if !second.After(first) && !second.Equal(first) {
		t.Errorf("second publish mtime %v should not precede first %v", second, first)
	}
}

func TestModTime_MissingFile(t *testing.T) {
	s := New(t.TempDir())
	mt, err := s.ModTime()
	if err != nil {
		t.Fatalf("ModTime: %v", err)
	}
	if !mt.IsZero() {
		t.Errorf("ModTime() on missing file = %v, want zero time", mt)
	}
}

func TestModTime_AdvancesAcrossPublishes(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	snap := model.Snapshot{Venue: "kalshi", Instruments: model.ActiveSet{}}

	if err := s.Publish(snap); err != nil {
		t.Fatalf("Publish 1: %v", err)
	}
	first, err := s.ModTime()
	if err != nil {
		t.Fatalf("ModTime 1: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	snap.Count = 1
	if err := s.Publish(snap); err != nil {
		t.Fatalf("Publish 2: %v", err)
	}
	second, err := s.ModTime()
	if err != nil {
		t.Fatalf("ModTime 2: %v", err)
	}

	if !second.After(first) {
		t.Errorf("second mtime %v should be after first %v", second, first)
	}
}

func TestLoad_MissingInstrumentsKeyIsEmptySet(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	path := s.Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	raw, _ := json.Marshal(map[string]any{
		"asof_ts_utc": "2026-07-30T00:00:00Z",
		"venue":       "kalshi",
		"count":       0,
	})
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Instruments == nil {
		t.Error("Load() left Instruments nil, want empty non-nil ActiveSet")
	}
	if len(got.Instruments) != 0 {
		t.Errorf("got %d instruments, want 0", len(got.Instruments))
	}
}

func TestLoadInstrumentKeys_NoSnapshotYetIsEmptyNotError(t *testing.T) {
	s := New(t.TempDir())
	keys, err := LoadInstrumentKeys(s)
	if err != nil {
		t.Fatalf("LoadInstrumentKeys: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("got %d keys, want 0", len(keys))
	}
}

func TestLoadInstrumentKeys_ReflectsPublishedSet(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	snap := model.Snapshot{
		Venue: "kalshi",
		Instruments: model.ActiveSet{
			"kalshi:A": model.Instrument{Venue: "kalshi", PollKey: "A", Expiration: 1},
			"kalshi:B": model.Instrument{Venue: "kalshi", PollKey: "B", Expiration: 1},
		},
	}
	if err := s.Publish(snap); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	keys, err := LoadInstrumentKeys(s)
	if err != nil {
		t.Fatalf("LoadInstrumentKeys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("got %d keys, want 2", len(keys))
	}
	if _, ok := keys["kalshi:A"]; !ok {
		t.Error("missing kalshi:A")
	}
}
