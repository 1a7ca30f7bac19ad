// Package model defines the shared data types published between the
// Discovery and Poller services.
//
// Conventions:
//   - instrument_id is always venue + ":" + poll_key and never set any
//     other way; see Instrument.CanonicalID.
//   - expiration is epoch-ms UTC; a snapshot's asof_ts_utc is an RFC3339
//     UTC string.
//   - Instrument is a value type; callers copy it rather than share pointers
//     across goroutine boundaries.
package model
