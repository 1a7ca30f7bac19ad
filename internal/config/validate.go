package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are sane.
// Call after applyDefaults (LoadAndValidate does this for you).
func (c *Config) Validate() error {
	if c.OutputDir == "" {
		return errors.New("output_dir is required")
	}
	if len(c.Venues) == 0 {
		return errors.New("at least one venue must be configured")
	}

	for name, v := range c.Venues {
		v.clampInflight()
		if err := v.validate(name); err != nil {
			return err
		}
		c.Venues[name] = v
	}

	return nil
}

// clampInflight reconciles poll_max_inflight against poll_max_workers the
// way original_source/collectors/market_logger.py's _venue_limits does:
// inflight is the real throttle, so it can never exceed the worker count,
// and both are floored at 1 rather than left at a meaningless zero.
func (v *VenueConfig) clampInflight() {
	if v.PollMaxWorkers < 1 {
		v.PollMaxWorkers = 1
	}
	if v.PollMaxInflight > v.PollMaxWorkers {
		v.PollMaxInflight = v.PollMaxWorkers
	}
	if v.PollMaxInflight < 1 {
		v.PollMaxInflight = 1
	}
}

func (v *VenueConfig) validate(name string) error {
	if v.BaseURL == "" {
		return fmt.Errorf("venues.%s.base_url is required", name)
	}
	if v.AimdCeiling < 1 {
		return fmt.Errorf("venues.%s.aimd_ceiling must be >= 1", name)
	}
	if v.AimdStartInflight < 1 {
		return fmt.Errorf("venues.%s.aimd_start_inflight must be >= 1", name)
	}
	if v.AimdFailRateHigh <= 0 || v.AimdFailRateHigh > 1 {
		return fmt.Errorf("venues.%s.aimd_fail_rate_high must be in (0, 1]", name)
	}
	if v.AimdP95LowMs > 0 && v.AimdP95HighMs > 0 && v.AimdP95LowMs >= v.AimdP95HighMs {
		return fmt.Errorf("venues.%s.aimd_p95_low_ms must be less than aimd_p95_high_ms", name)
	}
	return nil
}
