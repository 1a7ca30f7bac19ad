package record

import (
	"testing"
	"time"

	"github.com/mdragan85/venuepoll/internal/model"
)

func TestDedupKey_DeterministicForSameInput(t *testing.T) {
	a := DedupKey("orderbook", "kalshi", "kalshi:FOO", 1000)
	b := DedupKey("orderbook", "kalshi", "kalshi:FOO", 1000)
	if a != b {
		t.Errorf("DedupKey not deterministic: %q != %q", a, b)
	}
}

func TestDedupKey_DiffersOnAnyFieldChange(t *testing.T) {
	base := DedupKey("orderbook", "kalshi", "kalshi:FOO", 1000)
	variants := []string{
		DedupKey("market", "kalshi", "kalshi:FOO", 1000),
		DedupKey("orderbook", "polymarket", "kalshi:FOO", 1000),
		DedupKey("orderbook", "kalshi", "kalshi:BAR", 1000),
		DedupKey("orderbook", "kalshi", "kalshi:FOO", 1001),
	}
	for _, v := range variants {
		if v == base {
			t.Errorf("expected distinct dedup key, got collision: %q", v)
		}
	}
}

func TestBuildOrderbook_EnforcesWriteBoundaryInvariants(t *testing.T) {
	inst := model.Instrument{Venue: "other-venue-in-wire", PollKey: "FOO-BAR", MarketID: "FOO"}
	normalized := map[string]any{
		"bids":         []any{map[string]any{"price": 0.5, "size": 10}},
		"instrument_id": "tampered:should-be-ignored",
	}
	captured := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	rec := BuildOrderbook("kalshi", inst, normalized, captured, "2026-07-30T12:00:00Z", "1")

	if rec.Venue != "kalshi" {
		t.Errorf("Venue = %q, want kalshi (derived, not from normalizer)", rec.Venue)
	}
	if rec.InstrumentID != "kalshi:FOO-BAR" {
		t.Errorf("InstrumentID = %q, want kalshi:FOO-BAR", rec.InstrumentID)
	}
	if rec.RecordType != "orderbook" {
		t.Errorf("RecordType = %q, want orderbook", rec.RecordType)
	}
	if rec.TSMs != captured.UnixMilli() {
		t.Errorf("TSMs = %d, want %d (fallback to capture time)", rec.TSMs, captured.UnixMilli())
	}
	if rec.DedupKey == "" {
		t.Error("DedupKey not populated")
	}
}

func TestBuildOrderbook_UsesNormalizerTimestampWhenPresent(t *testing.T) {
	inst := model.Instrument{PollKey: "FOO"}
	normalized := map[string]any{"ts_ms": float64(123456)}
	rec := BuildOrderbook("kalshi", inst, normalized, time.Now(), "", "1")
	if rec.TSMs != 123456 {
		t.Errorf("TSMs = %d, want 123456", rec.TSMs)
	}
}

func TestBuildOrderbook_NilNormalizedProducesEmptyOrderbook(t *testing.T) {
	inst := model.Instrument{PollKey: "FOO"}
	rec := BuildOrderbook("kalshi", inst, nil, time.Now(), "", "1")
	if rec.Orderbook == nil {
		t.Error("Orderbook should be an empty non-nil map, not nil")
	}
}

func TestTruncateMessage(t *testing.T) {
	short := "boom"
	if got := TruncateMessage(short); got != short {
		t.Errorf("TruncateMessage(short) = %q, want unchanged", got)
	}

	long := make([]byte, maxErrorMessageLen+50)
	for i := range long {
		long[i] = 'x'
	}
	got := TruncateMessage(string(long))
	if len(got) <= maxErrorMessageLen {
		t.Errorf("truncated message too short: %d bytes", len(got))
	}
}
