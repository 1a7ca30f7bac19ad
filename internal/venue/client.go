// Package venue defines the capability boundary between the polling core
// and venue-specific collaborators: the HTTP client that talks to a
// prediction-market exchange, and the function that normalizes its raw
// order-book payloads. Core depends only on these two interfaces; concrete
// venue implementations (see httpvenue) are injected at construction.
package venue

import (
	"context"

	"github.com/mdragan85/venuepoll/internal/model"
)

// Client is the capability a venue must expose to be discoverable and
// pollable. Implementations may be slow and must surface non-2xx responses
// as errors with a recoverable status code (see ExtractStatusCode).
type Client interface {
	// Discover enumerates tradable instruments at the venue. May be slow.
	Discover(ctx context.Context) ([]model.Instrument, error)

	// GetOrderbook fetches the current order-book state for pollKey. Must
	// return an error with a recoverable status code on non-2xx responses.
	GetOrderbook(ctx context.Context, pollKey string) (RawOrderbook, error)
}

// Pinger is an optional capability: venues that can report their own
// availability implement it so cmd/discovery can log a startup warning
// without ever blocking on it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RawOrderbook is the untyped payload returned by a venue's order-book
// fetch, prior to normalization. Keys are venue-specific; the only fields
// the core write boundary ever reads (when no normalizer reshapes the
// payload) are "ts_ms", and "timestamp" or "ob_ts_ms" for ob_ts_ms — see
// record.BuildOrderbook.
type RawOrderbook map[string]any

// Normalizer reshapes a raw order-book capture into the record that gets
// written to the order-book sink. full tells the normalizer whether to
// include full book depth (configuration knob full_orderbook) or a
// top-of-book summary only. A nil return means "write the raw capture
// unnormalized" — the poller never drops data because a normalizer
// declines to shape it.
type Normalizer func(raw RawCapture, full bool) map[string]any

// RawCapture is what the poller hands to a Normalizer: the raw venue
// payload plus the instrument metadata and capture-time context needed to
// build a join-safe record.
type RawCapture struct {
	Timestamp    string // capture time, RFC3339
	SnapshotAsof string // discovery snapshot asof, if known
	Venue        string
	PollKey      string
	InstrumentID string
	MarketID     string
	Slug         string
	Underlying   string
	Orderbook    RawOrderbook
}
