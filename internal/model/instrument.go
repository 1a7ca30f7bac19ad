package model

import (
	"encoding/json"
	"fmt"
)

// Instrument is the canonical identity of one order-book stream at a venue.
type Instrument struct {
	Venue      string `json:"venue"`
	PollKey    string `json:"poll_key"`
	MarketID   string `json:"market_id"`
	Slug       string `json:"slug,omitempty"`
	Underlying string `json:"underlying,omitempty"`
	Title      string `json:"title,omitempty"`
	Outcome    string `json:"outcome,omitempty"`
	Rule       string `json:"rule,omitempty"`
	Cadence    string `json:"cadence,omitempty"`
	Expiration int64  `json:"expiration"` // epoch-ms, strictly positive
}

// instrumentFields has Instrument's fields but none of its methods, so
// embedding it does not pull Instrument's MarshalJSON/UnmarshalJSON into
// instrumentWire (which would recurse forever).
type instrumentFields Instrument

// instrumentWire mirrors Instrument but carries the derived instrument_id
// explicitly, matching the on-disk snapshot schema (§6).
type instrumentWire struct {
	instrumentFields
	InstrumentID string `json:"instrument_id"`
}

// MarshalJSON stamps the derived instrument_id alongside the stored fields.
func (i Instrument) MarshalJSON() ([]byte, error) {
	return json.Marshal(instrumentWire{instrumentFields: instrumentFields(i), InstrumentID: i.InstrumentID()})
}

// UnmarshalJSON ignores the wire instrument_id; it is always recomputed
// from Venue+PollKey rather than trusted from disk.
func (i *Instrument) UnmarshalJSON(data []byte) error {
	var w instrumentWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*i = Instrument(w.instrumentFields)
	return nil
}

// InstrumentID returns venue + ":" + poll_key, the cross-component identity.
// It is always derived, never stored separately, so it can never drift from
// its inputs.
func (i Instrument) InstrumentID() string {
	return CanonicalID(i.Venue, i.PollKey)
}

// CanonicalID builds the canonical instrument_id for a venue/poll_key pair.
func CanonicalID(venue, pollKey string) string {
	return fmt.Sprintf("%s:%s", venue, pollKey)
}

// Valid reports whether the instrument carries the minimum fields required
// to be polled: a non-empty poll key and a strictly positive expiration.
func (i Instrument) Valid() bool {
	return i.PollKey != "" && i.Expiration > 0
}
