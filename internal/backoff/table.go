// Package backoff implements BackoffTable: per-instrument exponential
// backoff and sparse failure logging.
//
// Grounded on original_source/collectors/market_logger.py's _apply_backoff
// (exponential backoff capped at 60s) and _maybe_log_failure (console log
// throttled to the 1st/3rd/5th consecutive failure or a 60s quiet window).
package backoff

import (
	"math"
	"time"
)

const (
	// maxBackoff is the hard cap spec §4.3 step 5 puts on per-instrument
	// backoff, regardless of how many consecutive failures have piled up.
	maxBackoff = 60 * time.Second
	// logQuietWindow is how long must elapse since the last log line for
	// this instrument before a failure is logged again outside the sparse
	// 1st/3rd/5th window.
	logQuietWindow = 60 * time.Second
)

// entry is one instrument's backoff and sparse-logging state. All fields are
// mutated only on the loop-owner goroutine, per spec's single-threaded
// state model.
type entry struct {
	consecutiveFailures int
	nextEligibleAt      time.Time // monotonic
	lastLogAt           time.Time // monotonic
}

// Table tracks backoff state for every instrument currently known to a
// PollLoop, keyed by instrument_id.
type Table struct {
	entries map[string]*entry
}

// NewTable returns an empty BackoffTable.
func NewTable() *Table {
	return &Table{entries: make(map[string]*entry)}
}

// Eligible reports whether instrumentID may be polled at nowMono. An
// instrument with no recorded backoff state is always eligible.
func (t *Table) Eligible(instrumentID string, nowMono time.Time) bool {
	e, ok := t.entries[instrumentID]
	if !ok {
		return true
	}
	return !nowMono.Before(e.nextEligibleAt)
}

// RecordSuccess clears an instrument's failure streak so its next failure
// starts the exponential sequence over.
func (t *Table) RecordSuccess(instrumentID string) {
	delete(t.entries, instrumentID)
}

// RecordFailure increments the instrument's consecutive-failure count,
// computes the next backoff window, and reports the backoff duration
// applied and whether this failure should be logged (per the sparse
// 1st/3rd/5th-or-60s-quiet rule).
func (t *Table) RecordFailure(instrumentID string, nowMono time.Time) (applied time.Duration, shouldLog bool) {
	e, ok := t.entries[instrumentID]
	if !ok {
		e = &entry{}
		t.entries[instrumentID] = e
	}
	e.consecutiveFailures++

	applied = backoffFor(e.consecutiveFailures)
	e.nextEligibleAt = nowMono.Add(applied)

	n := e.consecutiveFailures
	shouldLog = n == 1 || n == 3 || n == 5 || nowMono.Sub(e.lastLogAt) > logQuietWindow
	if shouldLog {
		e.lastLogAt = nowMono
	}
	return applied, shouldLog
}

// ConsecutiveFailures returns the current failure streak length for an
// instrument, or 0 if it has none recorded.
func (t *Table) ConsecutiveFailures(instrumentID string) int {
	e, ok := t.entries[instrumentID]
	if !ok {
		return 0
	}
	return e.consecutiveFailures
}

// Purge removes backoff state for any instrument_id not present in live —
// called after Discovery reload so a retired instrument's state doesn't
// linger forever.
func (t *Table) Purge(live map[string]struct{}) {
	for id := range t.entries {
		if _, ok := live[id]; !ok {
			delete(t.entries, id)
		}
	}
}

// backoffFor computes min(60s, 2^min(consecutiveFailures, 6) seconds), the
// formula named in spec §4.3 step 5.
func backoffFor(consecutiveFailures int) time.Duration {
	exp := consecutiveFailures
	if exp > 6 {
		exp = 6
	}
	seconds := math.Pow(2, float64(exp))
	d := time.Duration(seconds) * time.Second
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}
