// Package config loads and validates the YAML configuration tree for a
// Discovery or Poller process, following the teacher's staged
// Load/LoadWithDefaults/LoadAndValidate pattern (kalshi/internal/config's
// loader.go, the only copy of this loader in the pack — the top-level
// internal/config carried defaults.go/validate.go but no loader, so this
// file restores it generalized to the new config tree).
package config

import "time"

// Config is the root configuration for either process. At least one venue,
// each with a base_url, is required; everything else (OutputDir included)
// has a sane default applied by applyDefaults.
type Config struct {
	OutputDir     string                 `yaml:"output_dir"`
	ShutdownGrace time.Duration          `yaml:"shutdown_grace"`
	Sink          SinkConfig             `yaml:"sink"`
	Venues        map[string]VenueConfig `yaml:"venues"`
}

// SinkConfig holds the RotatingSink knobs shared by every sink this
// process opens (spec §6: rotate_minutes, flush_interval_seconds).
type SinkConfig struct {
	RotateMinutes        int `yaml:"rotate_minutes"`
	FlushIntervalSeconds int `yaml:"flush_interval_seconds"`
}

// VenueConfig holds one venue's poll/discovery/AIMD tunables — every knob
// enumerated in spec §6 as "poll_max_workers[venue]" etc. is a field here.
type VenueConfig struct {
	BaseURL       string `yaml:"base_url"`
	PingPath      string `yaml:"ping_path"`
	SignerKeyID   string `yaml:"signer_key_id"`
	SignerKeyPath string `yaml:"signer_key_path"` // PEM private key path; empty disables request signing

	// LifecycleWSURL, if set, is dialed for push-based market lifecycle
	// events that wake discovery early. Empty disables the listener.
	LifecycleWSURL string `yaml:"lifecycle_ws_url"`

	PollInterval     time.Duration `yaml:"poll_interval"`
	DiscoverInterval time.Duration `yaml:"discover_interval"`
	FullOrderbook    bool          `yaml:"full_orderbook"`

	PollMaxWorkers           int           `yaml:"poll_max_workers"`
	PollMaxInflight          int           `yaml:"poll_max_inflight"`
	OrderbookTimeout         time.Duration `yaml:"orderbook_timeout"`
	RateLimitCooldownSeconds int           `yaml:"rate_limit_cooldown_seconds"`
	PollStatsIntervalSeconds int           `yaml:"poll_stats_interval_seconds"`
	PollErrorSampleEvery     int           `yaml:"poll_error_sample_every"`

	AimdEnabled                  bool    `yaml:"aimd_enabled"`
	AimdStartInflight            int     `yaml:"aimd_start_inflight"`
	AimdCeiling                  int     `yaml:"aimd_ceiling"`
	AimdStableWindowSeconds      int     `yaml:"aimd_stable_window_seconds"`
	AimdMinAdjustIntervalSeconds int     `yaml:"aimd_min_adjust_interval_seconds"`
	AimdP95HighMs                float64 `yaml:"aimd_p95_high_ms"`
	AimdP95LowMs                 float64 `yaml:"aimd_p95_low_ms"`
	AimdFailRateHigh             float64 `yaml:"aimd_fail_rate_high"`

	SchemaVersionOrderbook string `yaml:"schema_version_orderbook"`
	SchemaVersionMarkets   string `yaml:"schema_version_markets"`
}
