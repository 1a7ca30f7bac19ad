package record

import (
	"time"

	"github.com/mdragan85/venuepoll/internal/model"
)

// BuildOrderbook enforces the §4.3.1 write-boundary invariants regardless of
// what the normalizer produced: venue and instrument_id are always derived
// from the instrument and venue the poller is currently working, never
// trusted from normalizer output, and ts_ms is backfilled from captureTime
// if the normalizer didn't set one.
func BuildOrderbook(venue string, inst model.Instrument, normalized map[string]any, captureTime time.Time, snapshotAsof, schemaVersion string) Orderbook {
	if normalized == nil {
		normalized = map[string]any{}
	}

	rec := Orderbook{
		RecordType:    "orderbook",
		SchemaVersion: schemaVersion,
		Venue:         venue,
		InstrumentID:  model.CanonicalID(venue, inst.PollKey),
		PollKey:       inst.PollKey,
		MarketID:      inst.MarketID,
		Slug:          inst.Slug,
		Underlying:    inst.Underlying,
		TSMs:          captureTime.UTC().UnixMilli(),
		SnapshotAsof:  snapshotAsof,
		Orderbook:     normalized,
	}

	if ts, ok := extractTSMs("ts_ms", normalized); ok {
		rec.TSMs = ts
	}
	if ob, ok := extractTSMs("timestamp", normalized); ok {
		rec.OBTSMs = ob
	} else if ob, ok := extractTSMs("ob_ts_ms", normalized); ok {
		rec.OBTSMs = ob
	}

	rec.DedupKey = DedupKey(rec.RecordType, rec.Venue, rec.InstrumentID, rec.TSMs)
	return rec
}

// extractTSMs pulls an epoch-ms integer out of a normalizer-produced map,
// accepting either a numeric field or an ISO-8601 string (treated as UTC if
// it carries no offset), per §4.3.1's "naive timestamps are UTC" rule.
func extractTSMs(field string, m map[string]any) (int64, bool) {
	v, ok := m[field]
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return int64(t), true
	case int64:
		return t, true
	case int:
		return int64(t), true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			parsed, err = time.Parse(time.RFC3339Nano, t+"Z")
			if err != nil {
				return 0, false
			}
		}
		return parsed.UTC().UnixMilli(), true
	default:
		return 0, false
	}
}

// BuildMarket constructs the markets-sink envelope for one discovered
// instrument.
func BuildMarket(venue string, inst model.Instrument, raw map[string]any, schemaVersion string, nowMs int64) Market {
	id := model.CanonicalID(venue, inst.PollKey)
	return Market{
		RecordType:    "market",
		SchemaVersion: schemaVersion,
		DedupKey:      DedupKey("market", venue, id, nowMs),
		Venue:         venue,
		InstrumentID:  id,
		PollKey:       inst.PollKey,
		Expiration:    inst.Expiration,
		Slug:          inst.Slug,
		Underlying:    inst.Underlying,
		Title:         inst.Title,
		Outcome:       inst.Outcome,
		Rule:          inst.Rule,
		Cadence:       inst.Cadence,
		Raw:           raw,
	}
}
