// Package poll implements PollLoop, the per-venue cycle that selects
// eligible instruments, fetches their order books under a bounded worker
// pool, and writes order-book/poll-stats/poll-error records.
//
// Grounded on original_source/collectors/market_logger.py (eligibility
// selection, backoff application, counters, sparse failure logging, global
// cooldown heuristic) for algorithmic shape, and on the teacher's
// internal/poller.Poller (Start/Stop/run ticker shape, bounded-concurrency
// fan-out) for idiomatic Go structure. The worker pool itself uses
// golang.org/x/sync/semaphore rather than the teacher's bare channel
// semaphore, since the rest of the module already depends on x/sync for
// orchestrator-level errgroup supervision.
package poll

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/mdragan85/venuepoll/internal/aimd"
	"github.com/mdragan85/venuepoll/internal/backoff"
	"github.com/mdragan85/venuepoll/internal/model"
	"github.com/mdragan85/venuepoll/internal/record"
	"github.com/mdragan85/venuepoll/internal/sink"
	"github.com/mdragan85/venuepoll/internal/snapshot"
	"github.com/mdragan85/venuepoll/internal/venue"
)

// Clock abstracts monotonic and wall time so tests can control both
// independently of wall-clock jumps. Production code uses realClock.
type Clock interface {
	Mono() time.Time
	Wall() time.Time
}

type realClock struct{}

func (realClock) Mono() time.Time { return time.Now() }
func (realClock) Wall() time.Time { return time.Now().UTC() }

// PollLoop is the per-venue polling cycle described in spec §4.3.
type PollLoop struct {
	venue      string
	client     venue.Client
	normalizer venue.Normalizer
	reader     *snapshot.Reader

	obSink    *sink.RotatingSink
	statsSink *sink.RotatingSink
	errSink   *sink.RotatingSink

	sinkFactories   *SinkFactories
	currentSinkDate string

	cfg    Config
	logger *slog.Logger
	clock  Clock

	backoffTbl *backoff.Table
	aimdCtrl   *aimd.Controller
	latencies  *latencyRing

	active        model.ActiveSet
	cooldownUntil time.Time // monotonic
	statsLastAt   time.Time // monotonic
	cycleCount    int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Sinks bundles the three JSONL writers a PollLoop emits to. errSink may be
// nil, in which case sampled error records are skipped entirely. Use these
// for a fixed, never-rotating set of sinks (tests); production callers
// should prefer WithSinkFactories so date partitions roll over at UTC
// midnight per the original's _rollover_if_needed.
type Sinks struct {
	Orderbook *sink.RotatingSink
	Stats     *sink.RotatingSink
	Errors    *sink.RotatingSink
}

// SinkFactories opens a fresh date-partitioned sink for each of the three
// JSONL streams. Errors may be nil to disable sampled error records.
// PollLoop calls these on its first cycle and again whenever the UTC date
// changes mid-run, closing the previous day's sinks once the new ones are
// open.
type SinkFactories struct {
	Orderbook func(dateUTC string) (*sink.RotatingSink, error)
	Stats     func(dateUTC string) (*sink.RotatingSink, error)
	Errors    func(dateUTC string) (*sink.RotatingSink, error)
}

// Option configures a PollLoop at construction time.
type Option func(*PollLoop)

// WithSinkFactories makes the loop open and rotate its own date-partitioned
// sinks, superseding any fixed Sinks passed to New.
func WithSinkFactories(f SinkFactories) Option {
	return func(p *PollLoop) { p.sinkFactories = &f }
}

// New constructs a PollLoop for one venue. normalizer may be nil, in which
// case the unnormalized raw capture is written as-is.
func New(venueName string, client venue.Client, normalizer venue.Normalizer, reader *snapshot.Reader, sinks Sinks, cfg Config, logger *slog.Logger, opts ...Option) *PollLoop {
	if logger == nil {
		logger = slog.Default()
	}
	now := time.Now()
	p := &PollLoop{
		venue:       venueName,
		client:      client,
		normalizer:  normalizer,
		reader:      reader,
		obSink:      sinks.Orderbook,
		statsSink:   sinks.Stats,
		errSink:     sinks.Errors,
		cfg:         cfg,
		logger:      logger.With("venue", venueName),
		clock:       realClock{},
		backoffTbl:  backoff.NewTable(),
		aimdCtrl:    aimd.New(aimdParams(cfg), cfg.AimdStartInflight, now),
		latencies:   newLatencyRing(),
		active:      model.ActiveSet{},
		statsLastAt: now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func aimdParams(cfg Config) aimd.Params {
	return aimd.Params{
		Ceiling:           cfg.AimdCeiling,
		MaxWorkers:        cfg.MaxWorkers,
		ConfiguredMax:     cfg.MaxInflight,
		StableWindow:      cfg.AimdStableWindow,
		MinAdjustInterval: cfg.AimdMinAdjust,
		P95HighMs:         cfg.AimdP95HighMs,
		P95LowMs:          cfg.AimdP95LowMs,
		FailRateHigh:      cfg.AimdFailRateHigh,
	}
}

// Start begins the polling loop in a background goroutine.
func (p *PollLoop) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go p.run()
	p.logger.Info("poll loop started", "interval", p.cfg.PollInterval, "max_workers", p.cfg.MaxWorkers)
}

// Stop cancels the loop and waits for the in-flight cycle to finish.
func (p *PollLoop) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.logger.Info("poll loop stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *PollLoop) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	p.RunCycle(p.ctx)
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.RunCycle(p.ctx)
		}
	}
}

// RunCycle executes exactly one poll cycle: reload, select, fetch, route
// results, emit telemetry, adjust AIMD. It is safe to call directly in
// tests without going through Start/Stop.
func (p *PollLoop) RunCycle(ctx context.Context) {
	p.cycleCount++
	nowMono := p.clock.Mono()
	nowWall := p.clock.Wall()

	if err := p.rolloverSinksIfNeeded(nowWall); err != nil {
		p.logger.Error("rolling over date-partitioned sinks failed", "error", err)
		return
	}

	p.reload(nowWall)

	if nowMono.Before(p.cooldownUntil) {
		p.logger.Debug("venue in cooldown, skipping cycle", "remaining", p.cooldownUntil.Sub(nowMono))
		return
	}

	cap := p.inflightCap()
	eligible := selectEligible(p.active, func(id string) bool { return p.backoffTbl.Eligible(id, nowMono) }, cap)

	results := p.fetchAll(ctx, eligible)

	cnt := &counters{}
	var http429 int
	for _, res := range results {
		p.latencies.Push(res.latencyMs)
		if res.ok {
			cnt.recordSuccess()
			p.backoffTbl.RecordSuccess(res.inst.InstrumentID())
			p.writeOrderbook(res, nowWall)
			continue
		}

		kind := venue.Classify(res.err, res.status)
		cnt.recordFailure(kind)
		if kind == venue.RateLimited {
			http429++
		}

		applied, shouldLog := p.backoffTbl.RecordFailure(res.inst.InstrumentID(), nowMono)
		if kind == venue.RateLimited {
			cooldown := nowMono.Add(p.cfg.RateLimitCooldown)
			if cooldown.After(p.cooldownUntil) {
				p.cooldownUntil = cooldown
			}
		}
		if shouldLog {
			p.logger.Warn("get_orderbook failed",
				"instrument_id", res.inst.InstrumentID(),
				"consecutive_failures", p.backoffTbl.ConsecutiveFailures(res.inst.InstrumentID()),
				"backoff", applied,
				"status", res.status,
				"latency_ms", res.latencyMs,
				"error", res.err,
			)
		}
		p.writeSampledError(res, nowWall)
	}

	p.emitStatsIfDue(nowMono, cnt, cap)

	if p.cfg.AimdEnabled {
		p50, p95, hasP95 := p.latencies.Percentiles()
		_ = p50
		p.aimdCtrl.Adjust(aimd.CycleSignals{
			Submitted: cnt.submitted,
			Failures:  cnt.failures,
			HTTP429:   http429,
			P95Ms:     p95,
			HasP95:    hasP95,
			NowMono:   nowMono,
		})
	}

	// Global cooldown heuristic (spec §4.3 step 8).
	if cnt.failures >= maxInt(3, len(p.active)/2) {
		candidate := nowMono.Add(10 * time.Second)
		if candidate.After(p.cooldownUntil) {
			p.cooldownUntil = candidate
		}
	}
}

func (p *PollLoop) inflightCap() int {
	cap := p.cfg.MaxWorkers
	if p.cfg.AimdEnabled {
		if c := p.aimdCtrl.InflightCap(); c < cap {
			cap = c
		}
	}
	if p.cfg.MaxInflight > 0 && p.cfg.MaxInflight < cap {
		cap = p.cfg.MaxInflight
	}
	return cap
}

// reload applies a fresh snapshot if the reader has one, merging with
// sticky-expiration semantics and purging retired backoff state.
func (p *PollLoop) reload(nowWall time.Time) {
	snap, changed := p.reader.Poll()
	if !changed {
		// Still apply expiration sweep even without a fresh snapshot.
		p.active = mergeActive(p.active, p.active, nowWall.UnixMilli())
		return
	}
	prev := p.active
	p.active = mergeActive(prev, snap.Instruments, nowWall.UnixMilli())
	p.backoffTbl.Purge(p.active.Keys())

	var added, removed []string
	for id := range p.active {
		if _, ok := prev[id]; !ok {
			added = append(added, id)
		}
	}
	for id := range prev {
		if _, ok := p.active[id]; !ok {
			removed = append(removed, id)
		}
	}
	if len(added) > 0 || len(removed) > 0 {
		p.logger.Info("active set changed", "added", len(added), "removed", len(removed),
			"added_sample", added[:min(len(added), 10)], "removed_sample", removed[:min(len(removed), 10)])
	}
}

// rolloverSinksIfNeeded opens today's date-partitioned sinks on first use
// and whenever UTC midnight has passed since the last cycle. The new day's
// sinks are opened first and the previous day's are closed only after all
// of them opened, so a failed open leaves the old sinks in place. A no-op
// when the loop was built with fixed Sinks instead of SinkFactories.
func (p *PollLoop) rolloverSinksIfNeeded(nowWall time.Time) error {
	if p.sinkFactories == nil {
		return nil
	}
	date := nowWall.Format("2006-01-02")
	if p.currentSinkDate == date {
		return nil
	}

	obSink, err := p.sinkFactories.Orderbook(date)
	if err != nil {
		return fmt.Errorf("poll: open orderbook sink for %s: %w", date, err)
	}
	statsSink, err := p.sinkFactories.Stats(date)
	if err != nil {
		_ = obSink.Close()
		return fmt.Errorf("poll: open poll_stats sink for %s: %w", date, err)
	}
	var errSink *sink.RotatingSink
	if p.sinkFactories.Errors != nil {
		errSink, err = p.sinkFactories.Errors(date)
		if err != nil {
			_ = obSink.Close()
			_ = statsSink.Close()
			return fmt.Errorf("poll: open poll_errors sink for %s: %w", date, err)
		}
	}

	if p.obSink != nil {
		_ = p.obSink.Close()
	}
	if p.statsSink != nil {
		_ = p.statsSink.Close()
	}
	if p.errSink != nil {
		_ = p.errSink.Close()
	}

	p.obSink, p.statsSink, p.errSink = obSink, statsSink, errSink
	p.currentSinkDate = date
	return nil
}

// Close closes whatever sinks the loop currently holds open. Safe to call
// after Stop.
func (p *PollLoop) Close() error {
	var firstErr error
	for _, s := range []*sink.RotatingSink{p.obSink, p.statsSink, p.errSink} {
		if s == nil {
			continue
		}
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
