package poll

import (
	"time"

	"github.com/mdragan85/venuepoll/internal/record"
	"github.com/mdragan85/venuepoll/internal/venue"
)

// writeOrderbook normalizes a successful fetch (if a normalizer is
// configured) and writes the resulting record, applying the §4.3.1
// write-boundary invariants regardless of what the normalizer produced.
func (p *PollLoop) writeOrderbook(res fetchOutcome, nowWall time.Time) {
	if p.obSink == nil {
		return
	}

	var normalized map[string]any
	if p.normalizer != nil {
		capture := venue.RawCapture{
			Timestamp:    nowWall.Format(time.RFC3339Nano),
			Venue:        p.venue,
			PollKey:      res.inst.PollKey,
			InstrumentID: res.inst.InstrumentID(),
			MarketID:     res.inst.MarketID,
			Slug:         res.inst.Slug,
			Underlying:   res.inst.Underlying,
			Orderbook:    res.raw,
		}
		normalized = p.normalizer(capture, p.cfg.FullOrderbook)
	}
	if normalized == nil {
		normalized = map[string]any(res.raw)
	}

	rec := record.BuildOrderbook(p.venue, res.inst, normalized, nowWall, "", p.cfg.SchemaVersionOrderbook)
	if err := p.obSink.Write(rec); err != nil {
		p.logger.Error("write orderbook record failed", "instrument_id", rec.InstrumentID, "error", err)
	}
}

// writeSampledError writes one poll-error record every
// cfg.ErrorSampleEvery-th consecutive failure for this instrument. A value
// of 0 disables sampled error records entirely.
func (p *PollLoop) writeSampledError(res fetchOutcome, nowWall time.Time) {
	if p.errSink == nil || p.cfg.ErrorSampleEvery <= 0 {
		return
	}
	n := p.backoffTbl.ConsecutiveFailures(res.inst.InstrumentID())
	if n%p.cfg.ErrorSampleEvery != 0 {
		return
	}

	errType := "unknown"
	if res.err != nil {
		errType = venue.Classify(res.err, res.status).String()
	}
	msg := ""
	if res.err != nil {
		msg = res.err.Error()
	}

	rec := record.PollError{
		RecordType:         "poll_error",
		Venue:              p.venue,
		InstrumentID:       res.inst.InstrumentID(),
		PollKey:            res.inst.PollKey,
		TSMs:               nowWall.UnixMilli(),
		ConsecutiveFailure: n,
		StatusCode:         res.status,
		LatencyMs:          res.latencyMs,
		ErrorType:          errType,
		ErrorMessage:       record.TruncateMessage(msg),
	}
	if err := p.errSink.Write(rec); err != nil {
		p.logger.Error("write poll error record failed", "instrument_id", rec.InstrumentID, "error", err)
	}
}

// emitStatsIfDue writes a poll-stats record once stats_interval has
// elapsed since the last emission.
func (p *PollLoop) emitStatsIfDue(nowMono time.Time, cnt *counters, inflightCap int) {
	if p.statsSink == nil {
		return
	}
	if nowMono.Sub(p.statsLastAt) < p.cfg.StatsInterval {
		return
	}
	p.statsLastAt = nowMono

	var p50Ptr, p95Ptr *float64
	if p50, p95, ok := p.latencies.Percentiles(); ok {
		p50Ptr, p95Ptr = &p50, &p95
	}
	cooldownRemaining := p.cooldownUntil.Sub(nowMono)
	if cooldownRemaining < 0 {
		cooldownRemaining = 0
	}

	rec := record.PollStats{
		RecordType:        "poll_stats",
		Venue:             p.venue,
		TSMs:              time.Now().UTC().UnixMilli(),
		CycleCount:        p.cycleCount,
		ActiveCount:       len(p.active),
		EligibleCount:     cnt.submitted,
		Submitted:         cnt.submitted,
		Succeeded:         cnt.successes,
		Failed:            cnt.failures,
		HTTP429:           cnt.http429,
		HTTP4xx:           cnt.http4xx,
		HTTP5xx:           cnt.http5xx,
		Timeouts:          cnt.timeouts,
		OtherErrors:       cnt.otherErrs,
		LatencyP50Ms:      p50Ptr,
		LatencyP95Ms:      p95Ptr,
		InflightCap:       inflightCap,
		MaxWorkers:        p.cfg.MaxWorkers,
		CooldownRemaining: cooldownRemaining.Milliseconds(),
	}
	if err := p.statsSink.Write(rec); err != nil {
		p.logger.Error("write poll stats record failed", "error", err)
	}
}
