package snapshot

import (
	"os"
	"testing"
	"time"

	"github.com/mdragan85/venuepoll/internal/model"
)

func TestReader_PollDetectsNewPublish(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)
	r := NewReader(store, nil)

	if _, changed := r.Poll(); changed {
		t.Fatal("Poll() on empty store reported a change")
	}

	snap := model.Snapshot{Venue: "kalshi", Instruments: model.ActiveSet{
		"kalshi:A": model.Instrument{Venue: "kalshi", PollKey: "A", Expiration: 1},
	}}
	if err := store.Publish(snap); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	got, changed := r.Poll()
	if !changed {
		t.Fatal("Poll() did not detect the publish")
	}
	if len(got.Instruments) != 1 {
		t.Errorf("got %d instruments, want 1", len(got.Instruments))
	}

	if _, changed := r.Poll(); changed {
		t.Error("second Poll() with no new publish reported a change")
	}
}

func TestReader_RetainsPreviousViewOnCorruptFile(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)
	r := NewReader(store, nil)

	snap := model.Snapshot{Venue: "kalshi", Instruments: model.ActiveSet{
		"kalshi:A": model.Instrument{Venue: "kalshi", PollKey: "A", Expiration: 1},
	}}
	if err := store.Publish(snap); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if _, changed := r.Poll(); !changed {
		t.Fatal("expected first Poll() to load snapshot")
	}

	time.Sleep(5 * time.Millisecond)
	if err := os.WriteFile(store.Path(), []byte("{not valid json"), 0o644); err != nil {
		t.Fatalf("corrupt snapshot file: %v", err)
	}

	got, changed := r.Poll()
	if changed {
		t.Error("Poll() on corrupt file should not report a successful change")
	}
	if len(got.Instruments) != 1 {
		t.Errorf("expected previous view retained with 1 instrument, got %d", len(got.Instruments))
	}
}
