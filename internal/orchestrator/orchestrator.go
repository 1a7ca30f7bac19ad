// Package orchestrator wires together the per-venue Discovery and Poll
// loops into one supervised process lifecycle, with deterministic
// per-venue startup ordering and cooperative, bounded-time shutdown.
//
// Grounded on the teacher's cmd/gatherer/main.go (component Start/Stop in
// dependency order, signal-driven context cancellation, deferred shutdown
// with its own timeout) generalized from one hardcoded pipeline into a
// list of per-venue components. golang.org/x/sync/errgroup replaces the
// teacher's ad hoc goroutine-plus-defer shutdown so a failure closing one
// venue's sink doesn't stop the others from being closed too.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Loop is the lifecycle interface both discovery.DiscoveryLoop and
// poll.PollLoop satisfy.
type Loop interface {
	Start(ctx context.Context)
	Stop(ctx context.Context) error
}

// Closer is satisfied by anything that must be flushed and closed at
// shutdown, such as a sink.RotatingSink.
type Closer interface {
	Close() error
}

// noopLoop fills the unused half of a Venue in a single-role process
// (cmd/discovery has no poll loop, cmd/poller has no discovery loop) so
// Orchestrator can still drive both halves uniformly.
type noopLoop struct{}

func (noopLoop) Start(ctx context.Context)      {}
func (noopLoop) Stop(ctx context.Context) error { return nil }

// NoopLoop returns a Loop that does nothing, for the role a single-purpose
// process doesn't run.
func NoopLoop() Loop { return noopLoop{} }

// Venue bundles one venue's discovery and poll loops plus the sinks opened
// on its behalf, so the orchestrator can start, stop, and close them as a
// unit.
type Venue struct {
	Name      string
	Discovery Loop
	Poll      Loop
	Closers   []Closer
}

// Orchestrator starts a fixed list of venues in a deterministic order and
// tears every one of them down on shutdown regardless of per-venue errors.
type Orchestrator struct {
	venues        []Venue
	logger        *slog.Logger
	shutdownGrace time.Duration
}

// New returns an Orchestrator over venues, started in the order given (so
// operators get reproducible startup logs across restarts). Shutdown stops
// all venues concurrently, in no fixed order.
func New(venues []Venue, logger *slog.Logger, shutdownGrace time.Duration) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if shutdownGrace <= 0 {
		shutdownGrace = 30 * time.Second
	}
	return &Orchestrator{venues: venues, logger: logger, shutdownGrace: shutdownGrace}
}

// Run starts every venue's loops, blocks until ctx is canceled, then tears
// everything down within the configured grace period. It returns the first
// shutdown error encountered, if any, after attempting to stop and close
// every venue.
func (o *Orchestrator) Run(ctx context.Context) error {
	for _, v := range o.venues {
		v.Discovery.Start(ctx)
		v.Poll.Start(ctx)
		o.logger.Info("venue started", "venue", v.Name)
	}

	<-ctx.Done()
	o.logger.Info("shutdown signal received, stopping venues")

	return o.shutdown()
}

// shutdown stops and closes every venue concurrently, bounded by
// shutdownGrace, and returns the first error encountered.
func (o *Orchestrator) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), o.shutdownGrace)
	defer cancel()

	g, gctx := errgroup.WithContext(shutdownCtx)
	for _, v := range o.venues {
		v := v
		g.Go(func() error {
			var firstErr error
			if err := v.Poll.Stop(gctx); err != nil {
				firstErr = fmt.Errorf("venue %s: stop poll loop: %w", v.Name, err)
			}
			if err := v.Discovery.Stop(gctx); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("venue %s: stop discovery loop: %w", v.Name, err)
			}
			for _, c := range v.Closers {
				if err := c.Close(); err != nil && firstErr == nil {
					firstErr = fmt.Errorf("venue %s: close sink: %w", v.Name, err)
				}
			}
			o.logger.Info("venue stopped", "venue", v.Name)
			return firstErr
		})
	}

	return g.Wait()
}
