// Command discovery runs DiscoveryLoop for every configured venue: periodic
// instrument enumeration, change-only snapshot publishing, and market
// record logging.
//
// Grounded on the teacher's cmd/gatherer/main.go shape (config load, signal
// handling, component Start/Stop, bounded shutdown) split into its own
// smaller process per SPEC_FULL.md's two-entrypoint process wiring.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mdragan85/venuepoll/internal/config"
	"github.com/mdragan85/venuepoll/internal/discovery"
	"github.com/mdragan85/venuepoll/internal/orchestrator"
	"github.com/mdragan85/venuepoll/internal/sink"
	"github.com/mdragan85/venuepoll/internal/snapshot"
	"github.com/mdragan85/venuepoll/internal/venue"
	"github.com/mdragan85/venuepoll/internal/venue/httpvenue"
	"github.com/mdragan85/venuepoll/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/discovery.local.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	logger.Info("starting discovery",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	venues, err := buildVenues(cfg, logger)
	if err != nil {
		logger.Error("failed to build venues", "error", err)
		os.Exit(1)
	}

	orch := orchestrator.New(venues, logger, cfg.ShutdownGrace)
	if err := orch.Run(ctx); err != nil {
		logger.Error("shutdown completed with errors", "error", err)
		os.Exit(1)
	}

	logger.Info("discovery stopped")
}

func buildVenues(cfg *config.Config, logger *slog.Logger) ([]orchestrator.Venue, error) {
	venues := make([]orchestrator.Venue, 0, len(cfg.Venues))

	for name, vc := range cfg.Venues {
		venueDir := filepath.Join(cfg.OutputDir, name)

		client, err := newVenueClient(name, vc, logger)
		if err != nil {
			return nil, err
		}

		if pinger, ok := client.(venue.Pinger); ok {
			pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := pinger.Ping(pingCtx); err != nil {
				logger.Warn("venue ping failed at startup, continuing anyway", "venue", name, "error", err)
			}
			pingCancel()
		}

		store := snapshot.New(venueDir)
		sinkCfg := sink.Config{
			RotateInterval: time.Duration(cfg.Sink.RotateMinutes) * time.Minute,
			FlushInterval:  time.Duration(cfg.Sink.FlushIntervalSeconds) * time.Second,
		}
		marketsSinkFactory := func(dateUTC string) (*sink.RotatingSink, error) {
			return sink.Open(filepath.Join(venueDir, "markets", "date="+dateUTC), "markets", sinkCfg)
		}

		dcfg := discovery.Config{
			DiscoverInterval:    vc.DiscoverInterval,
			SchemaVersionMarket: vc.SchemaVersionMarkets,
		}

		var discoveryOpts []discovery.Option
		if vc.LifecycleWSURL != "" {
			if hc, ok := client.(*httpvenue.Client); ok {
				events, err := hc.WatchLifecycle(context.Background(), vc.LifecycleWSURL)
				if err != nil {
					logger.Warn("lifecycle listener not started", "venue", name, "error", err)
				} else {
					discoveryOpts = append(discoveryOpts, discovery.WithWakeChannel(lifecycleWakeChannel(events)))
				}
			}
		}

		loop := discovery.New(name, client, store, marketsSinkFactory, dcfg, logger, discoveryOpts...)

		venues = append(venues, orchestrator.Venue{
			Name:      name,
			Discovery: loop,
			Poll:      orchestrator.NoopLoop(),
		})
	}

	return venues, nil
}

// lifecycleWakeChannel collapses a stream of lifecycle events into the
// bare wake-up signal discovery.WithWakeChannel expects, coalescing bursts
// of events into a single pending wake rather than queuing one per event.
func lifecycleWakeChannel(events <-chan httpvenue.LifecycleEvent) <-chan struct{} {
	wake := make(chan struct{}, 1)
	go func() {
		defer close(wake)
		for range events {
			select {
			case wake <- struct{}{}:
			default:
			}
		}
	}()
	return wake
}

// newVenueClient builds the reference Kalshi-shaped HTTP venue client.
// Other venues would add their own DiscoverParser/OrderbookPath pair and
// register it here by name; only the Kalshi shape is implemented in this
// codebase (see DESIGN.md).
func newVenueClient(name string, vc config.VenueConfig, logger *slog.Logger) (venue.Client, error) {
	opts := []httpvenue.Option{
		httpvenue.WithLogger(logger.With("venue", name)),
		httpvenue.WithTimeout(vc.OrderbookTimeout),
	}
	if vc.PingPath != "" {
		opts = append(opts, httpvenue.WithPingPath(vc.PingPath))
	}
	if vc.SignerKeyPath != "" {
		keyPEM, err := os.ReadFile(vc.SignerKeyPath)
		if err != nil {
			return nil, err
		}
		privKey, err := httpvenue.LoadRSAPrivateKey(keyPEM)
		if err != nil {
			return nil, err
		}
		opts = append(opts, httpvenue.WithSigner(httpvenue.NewRSAPSSSigner(vc.SignerKeyID, privKey)))
	}

	return httpvenue.New(vc.BaseURL, httpvenue.KalshiDiscoverPath, httpvenue.KalshiOrderbookPath, httpvenue.KalshiDiscoverParser, opts...), nil
}
