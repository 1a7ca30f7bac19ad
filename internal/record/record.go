// Package record defines the JSONL envelope types written by Discovery and
// Poller, and the at-least-once-safe dedup key consumers use to collapse
// duplicate deliveries.
//
// Grounded on spec §3/§4.3.1 (envelope shapes, write-boundary invariants)
// and the teacher's internal/model dependence on google/uuid as a wire-safe
// identifier type; dedup keys are built with uuid.NewSHA1 rather than
// google/uuid's random v4 constructor so the same logical event always
// produces the same key even if written twice (at-least-once delivery, per
// spec §1 Non-goals).
package record

import (
	"fmt"

	"github.com/google/uuid"
)

// dedupNamespace roots every deterministic dedup UUID. Any fixed value
// works; it only needs to be stable across process restarts.
var dedupNamespace = uuid.MustParse("5d6d1f5a-6e6e-4b9a-9f0a-9b6e7f8c9d10")

// DedupKey returns a deterministic identifier for one logical event: the
// same (venue, instrumentID, tsMs, kind) tuple always yields the same key,
// so a consumer reading the same record twice (at-least-once delivery) can
// collapse it to one.
func DedupKey(kind, venue, instrumentID string, tsMs int64) string {
	name := fmt.Sprintf("%s|%s|%s|%d", kind, venue, instrumentID, tsMs)
	return uuid.NewSHA1(dedupNamespace, []byte(name)).String()
}

// Orderbook is the envelope for one poll cycle's captured order book.
type Orderbook struct {
	RecordType    string         `json:"record_type"`
	SchemaVersion string         `json:"schema_version"`
	DedupKey      string         `json:"dedup_key"`
	Venue         string         `json:"venue"`
	InstrumentID  string         `json:"instrument_id"`
	PollKey       string         `json:"poll_key"`
	MarketID      string         `json:"market_id,omitempty"`
	Slug          string         `json:"slug,omitempty"`
	Underlying    string         `json:"underlying,omitempty"`
	TSMs          int64          `json:"ts_ms"`
	OBTSMs        int64          `json:"ob_ts_ms,omitempty"`
	SnapshotAsof  string         `json:"snapshot_asof,omitempty"`
	Orderbook     map[string]any `json:"orderbook"`
}

// Market is the envelope for one discovered instrument, written to the
// markets sink each time Discovery observes it.
type Market struct {
	RecordType    string         `json:"record_type"`
	SchemaVersion string         `json:"schema_version"`
	DedupKey      string         `json:"dedup_key"`
	Venue         string         `json:"venue"`
	InstrumentID  string         `json:"instrument_id"`
	PollKey       string         `json:"poll_key"`
	Expiration    int64          `json:"expiration"`
	Slug          string         `json:"slug,omitempty"`
	Underlying    string         `json:"underlying,omitempty"`
	Title         string         `json:"title,omitempty"`
	Outcome       string         `json:"outcome,omitempty"`
	Rule          string         `json:"rule,omitempty"`
	Cadence       string         `json:"cadence,omitempty"`
	Raw           map[string]any `json:"raw,omitempty"`
}

// PollStats is the periodic per-venue telemetry envelope.
type PollStats struct {
	RecordType        string   `json:"record_type"`
	Venue             string   `json:"venue"`
	TSMs              int64    `json:"ts_ms"`
	CycleCount        int      `json:"cycle_count"`
	ActiveCount       int      `json:"active_count"`
	EligibleCount     int      `json:"eligible_count"`
	Submitted         int      `json:"submitted"`
	Succeeded         int      `json:"succeeded"`
	Failed            int      `json:"failed"`
	HTTP429           int      `json:"http_429"`
	HTTP4xx           int      `json:"http_4xx"`
	HTTP5xx           int      `json:"http_5xx"`
	Timeouts          int      `json:"timeouts"`
	OtherErrors       int      `json:"other_errors"`
	// Nil when the latency ring buffer is empty (no fetch has completed
	// yet), serialized as JSON null rather than 0.
	LatencyP50Ms      *float64 `json:"latency_p50_ms"`
	LatencyP95Ms      *float64 `json:"latency_p95_ms"`
	InflightCap       int      `json:"inflight_cap"`
	MaxWorkers        int      `json:"max_workers"`
	CooldownRemaining int64    `json:"cooldown_remaining_ms"`
}

// PollError is a sampled failure record, emitted every Nth consecutive
// failure for a given instrument rather than on every failure.
type PollError struct {
	RecordType         string `json:"record_type"`
	Venue              string `json:"venue"`
	InstrumentID       string `json:"instrument_id"`
	PollKey            string `json:"poll_key"`
	TSMs               int64  `json:"ts_ms"`
	ConsecutiveFailure int    `json:"consecutive_failure"`
	StatusCode         int    `json:"status_code,omitempty"`
	LatencyMs          int64  `json:"latency_ms"`
	ErrorType          string `json:"error_type"`
	ErrorMessage       string `json:"error_message"`
}

const maxErrorMessageLen = 500

// TruncateMessage cuts an error message longer than maxErrorMessageLen
// bytes down to that length and appends a "...(truncated)" marker, so a
// single pathological error body cannot blow up a log line.
func TruncateMessage(msg string) string {
	if len(msg) <= maxErrorMessageLen {
		return msg
	}
	return msg[:maxErrorMessageLen] + "...(truncated)"
}
