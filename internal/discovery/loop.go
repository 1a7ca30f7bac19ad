// Package discovery implements DiscoveryLoop: the periodic enumeration of
// a venue's tradable instruments, change-only snapshot publishing, and
// per-instrument market record logging.
//
// Grounded on original_source/collectors/discovery_service.py's
// DiscoveryService.run_once/run_forever (change-only publish to avoid
// gratuitous file churn, fail-fast canonicalization of poll_key) and the
// teacher's internal/poller.Poller for the Start/Stop/ticker Go shape.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mdragan85/venuepoll/internal/model"
	"github.com/mdragan85/venuepoll/internal/record"
	"github.com/mdragan85/venuepoll/internal/sink"
	"github.com/mdragan85/venuepoll/internal/snapshot"
	"github.com/mdragan85/venuepoll/internal/venue"
)

// Config controls one venue's discovery cadence and record stamping.
type Config struct {
	DiscoverInterval    time.Duration
	SchemaVersionMarket string
}

// DefaultConfig returns the teacher-style sane default.
func DefaultConfig() Config {
	return Config{
		DiscoverInterval:    5 * time.Minute,
		SchemaVersionMarket: "1",
	}
}

// MarketsSinkFactory opens a fresh markets RotatingSink rooted at today's
// UTC date partition. DiscoveryLoop only calls it when membership actually
// changed, matching the original's "avoid creating a new jsonl unless
// changed" behavior, and calls it again whenever UTC midnight rolls over
// mid-run so each day's markets land in their own partition directory.
type MarketsSinkFactory func(dateUTC string) (*sink.RotatingSink, error)

// DiscoveryLoop is the periodic enumerate-canonicalize-diff-publish cycle
// described in spec §4.2.
type DiscoveryLoop struct {
	venueName string
	client    venue.Client
	store     *snapshot.Store
	newSink   MarketsSinkFactory
	cfg       Config
	logger    *slog.Logger
	clock     func() time.Time

	currentSink     *sink.RotatingSink
	currentSinkDate string

	wake <-chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a DiscoveryLoop at construction time.
type Option func(*DiscoveryLoop)

// WithWakeChannel makes the loop run an extra cycle immediately whenever
// the channel receives, without waiting out the rest of discover_interval.
// Intended for a venue's push-based lifecycle listener (see
// httpvenue.Client.WatchLifecycle) to shorten discovery's reaction time to
// new or delisted markets.
func WithWakeChannel(ch <-chan struct{}) Option {
	return func(d *DiscoveryLoop) { d.wake = ch }
}

// New constructs a DiscoveryLoop for one venue.
func New(venueName string, client venue.Client, store *snapshot.Store, newSink MarketsSinkFactory, cfg Config, logger *slog.Logger, opts ...Option) *DiscoveryLoop {
	if logger == nil {
		logger = slog.Default()
	}
	d := &DiscoveryLoop{
		venueName: venueName,
		client:    client,
		store:     store,
		newSink:   newSink,
		cfg:       cfg,
		logger:    logger.With("venue", venueName),
		clock:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start begins the discovery loop in a background goroutine.
func (d *DiscoveryLoop) Start(ctx context.Context) {
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.wg.Add(1)
	go d.run()
	d.logger.Info("discovery loop started", "interval", d.cfg.DiscoverInterval)
}

// Stop cancels the loop and waits for the in-flight cycle to finish,
// closing any open markets sink.
func (d *DiscoveryLoop) Stop(ctx context.Context) error {
	if d.cancel != nil {
		d.cancel()
	}
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		if d.currentSink != nil {
			_ = d.currentSink.Close()
		}
		d.logger.Info("discovery loop stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *DiscoveryLoop) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.DiscoverInterval)
	defer ticker.Stop()

	d.RunOnce(d.ctx)
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.RunOnce(d.ctx)
		case <-d.wake:
			d.logger.Debug("lifecycle event woke discovery early")
			d.RunOnce(d.ctx)
		}
	}
}

// RunOnce executes exactly one discovery cycle: discover, canonicalize,
// diff against the published snapshot, and publish only on membership
// change. A venue failing here is logged and never propagated — one bad
// venue must never kill the loop.
func (d *DiscoveryLoop) RunOnce(ctx context.Context) {
	instruments, err := d.client.Discover(ctx)
	if err != nil {
		d.logger.Warn("discover failed", "error", err)
		return
	}

	active := make(model.ActiveSet, len(instruments))
	nowWall := d.clock()
	for _, inst := range instruments {
		if inst.PollKey == "" {
			d.logger.Warn("dropping discovered instrument with no poll_key", "market_id", inst.MarketID, "slug", inst.Slug)
			continue
		}
		inst.Venue = d.venueName
		active[model.CanonicalID(d.venueName, inst.PollKey)] = inst
	}

	prevKeys, err := snapshot.LoadInstrumentKeys(d.store)
	if err != nil {
		d.logger.Warn("reading previous snapshot keys failed, treating as empty", "error", err)
		prevKeys = map[string]struct{}{}
	}

	added, removed := diffKeys(prevKeys, active.Keys())
	if len(added) == 0 && len(removed) == 0 {
		d.logger.Debug("no membership change, skipping publish", "count", len(active))
		return
	}

	if err := d.writeMarketRecords(active, nowWall); err != nil {
		d.logger.Error("writing market records failed", "error", err)
		return
	}

	snap := model.Snapshot{
		AsofTSUTC:   nowWall.Format(time.RFC3339),
		Venue:       d.venueName,
		Count:       len(active),
		Instruments: active,
	}
	if err := d.store.Publish(snap); err != nil {
		d.logger.Error("publishing snapshot failed", "error", err)
		return
	}

	d.logger.Info("snapshot published",
		"count", len(active),
		"added", len(added),
		"removed", len(removed),
	)
}

// writeMarketRecords appends one market record per discovered instrument to
// today's UTC markets partition, rolling over to a fresh sink if the date
// has changed since the last write (spec §8 partitioning, supplemented
// with the original's per-run markets writer lifecycle).
func (d *DiscoveryLoop) writeMarketRecords(active model.ActiveSet, nowWall time.Time) error {
	date := nowWall.Format("2006-01-02")
	if d.currentSink == nil || d.currentSinkDate != date {
		if d.currentSink != nil {
			_ = d.currentSink.Close()
		}
		s, err := d.newSink(date)
		if err != nil {
			return fmt.Errorf("discovery: open markets sink for %s: %w", date, err)
		}
		d.currentSink = s
		d.currentSinkDate = date
	}

	for _, inst := range active {
		rec := record.BuildMarket(d.venueName, inst, nil, d.cfg.SchemaVersionMarket, nowWall.UnixMilli())
		if err := d.currentSink.Write(rec); err != nil {
			return fmt.Errorf("discovery: write market record: %w", err)
		}
	}
	return nil
}

// diffKeys returns the keys present in next but not prev (added) and
// present in prev but not next (removed).
func diffKeys(prev, next map[string]struct{}) (added, removed []string) {
	for k := range next {
		if _, ok := prev[k]; !ok {
			added = append(added, k)
		}
	}
	for k := range prev {
		if _, ok := next[k]; !ok {
			removed = append(removed, k)
		}
	}
	return added, removed
}
