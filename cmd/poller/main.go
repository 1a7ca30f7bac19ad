// Command poller runs PollLoop for every configured venue: snapshot
// reload, eligibility selection, bounded concurrent order-book fetch, and
// order-book/stats/error record emission.
//
// Grounded on the teacher's cmd/gatherer/main.go shape (config load,
// signal handling, component Start/Stop, bounded shutdown) split into its
// own smaller process per SPEC_FULL.md's two-entrypoint process wiring.
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
	"github.com/mdragan85/venuepoll/internal/orchestrator"
	"github.com/mdragan85/venuepoll/internal/poll"
	"github.com/mdragan85/venuepoll/internal/sink"
	"github.com/mdragan85/venuepoll/internal/snapshot"
	"github.com/mdragan85/venuepoll/internal/venue"
	"github.com/mdragan85/venuepoll/internal/venue/httpvenue"
	"github.com/mdragan85/venuepoll/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/poller.local.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	logger.Info("starting poller",
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

	logger.Info("poller stopped")
}

func buildVenues(cfg *config.Config, logger *slog.Logger) ([]orchestrator.Venue, error) {
	venues := make([]orchestrator.Venue, 0, len(cfg.Venues))

	for name, vc := range cfg.Venues {
		venueDir := filepath.Join(cfg.OutputDir, name)

		client, err := newVenueClient(name, vc, logger)
		if err != nil {
			return nil, err
		}

		store := snapshot.New(venueDir)
		reader := snapshot.NewReader(store, logger)

		sinkCfg := sink.Config{
			RotateInterval: time.Duration(cfg.Sink.RotateMinutes) * time.Minute,
			FlushInterval:  time.Duration(cfg.Sink.FlushIntervalSeconds) * time.Second,
		}
		factories := poll.SinkFactories{
			Orderbook: func(dateUTC string) (*sink.RotatingSink, error) {
				return sink.Open(filepath.Join(venueDir, "orderbooks", "date="+dateUTC), "orderbooks", sinkCfg)
			},
			Stats: func(dateUTC string) (*sink.RotatingSink, error) {
				return sink.Open(filepath.Join(venueDir, "poll_stats", "date="+dateUTC), "poll_stats", sinkCfg)
			},
		}
		if vc.PollErrorSampleEvery > 0 {
			factories.Errors = func(dateUTC string) (*sink.RotatingSink, error) {
				return sink.Open(filepath.Join(venueDir, "poll_errors", "date="+dateUTC), "poll_errors", sinkCfg)
			}
		}

		loop := poll.New(name, client, nil, reader, poll.Sinks{}, pollConfig(vc), logger, poll.WithSinkFactories(factories))

		venues = append(venues, orchestrator.Venue{
			Name:      name,
			Discovery: orchestrator.NoopLoop(),
			Poll:      loop,
			Closers:   []orchestrator.Closer{loop},
		})
	}

	return venues, nil
}

func pollConfig(vc config.VenueConfig) poll.Config {
	return poll.Config{
		PollInterval:     vc.PollInterval,
		MaxWorkers:       vc.PollMaxWorkers,
		MaxInflight:      vc.PollMaxInflight,
		OrderbookTimeout: vc.OrderbookTimeout,

		RateLimitCooldown: time.Duration(vc.RateLimitCooldownSeconds) * time.Second,
		StatsInterval:     time.Duration(vc.PollStatsIntervalSeconds) * time.Second,
		ErrorSampleEvery:  vc.PollErrorSampleEvery,
		FullOrderbook:     vc.FullOrderbook,

		AimdEnabled:       vc.AimdEnabled,
		AimdStartInflight: vc.AimdStartInflight,
		AimdCeiling:       vc.AimdCeiling,
		AimdStableWindow:  time.Duration(vc.AimdStableWindowSeconds) * time.Second,
		AimdMinAdjust:     time.Duration(vc.AimdMinAdjustIntervalSeconds) * time.Second,
		AimdP95HighMs:     vc.AimdP95HighMs,
		AimdP95LowMs:      vc.AimdP95LowMs,
		AimdFailRateHigh:  vc.AimdFailRateHigh,

		SchemaVersionOrderbook: vc.SchemaVersionOrderbook,
	}
}

// newVenueClient builds the reference Kalshi-shaped HTTP venue client. See
// cmd/discovery's copy of this function for the rationale; kept separate
// because each process constructs the client independently and neither
// needs to depend on the other.
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
