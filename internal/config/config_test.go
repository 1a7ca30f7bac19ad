package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTempFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoad_Basic(t *testing.T) {
	yaml := `
output_dir: /data
venues:
  kalshi:
    poll_interval: 15s
    discover_interval: 5m
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OutputDir != "/data" {
		t.Errorf("OutputDir = %q, want /data", cfg.OutputDir)
	}
	v, ok := cfg.Venues["kalshi"]
	if !ok {
		t.Fatal("expected kalshi venue")
	}
	if v.PollInterval.String() != "15s" {
		t.Errorf("PollInterval = %v, want 15s", v.PollInterval)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected error for nonexistent file")
	}
	if !strings.Contains(err.Error(), "read config file") {
		t.Errorf("error should mention 'read config file', got %v", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTempFile(t, "output_dir: [\n  unterminated")
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
	if !strings.Contains(err.Error(), "parse config yaml") {
		t.Errorf("error should mention 'parse config yaml', got %v", err)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_OUTPUT_DIR", "/env/data")
	path := writeTempFile(t, "output_dir: ${TEST_OUTPUT_DIR}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OutputDir != "/env/data" {
		t.Errorf("OutputDir = %q, want /env/data", cfg.OutputDir)
	}
}

func TestLoadWithDefaults_FillsUnsetVenueKnobs(t *testing.T) {
	yaml := `
output_dir: /data
venues:
  kalshi: {}
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults: %v", err)
	}
	v := cfg.Venues["kalshi"]
	if v.PollMaxWorkers != DefaultPollMaxWorkers {
		t.Errorf("PollMaxWorkers = %d, want default %d", v.PollMaxWorkers, DefaultPollMaxWorkers)
	}
	if v.AimdCeiling != DefaultAimdCeiling {
		t.Errorf("AimdCeiling = %d, want default %d", v.AimdCeiling, DefaultAimdCeiling)
	}
	if v.SchemaVersionOrderbook != DefaultSchemaVersionOrderbook {
		t.Errorf("SchemaVersionOrderbook = %q, want default %q", v.SchemaVersionOrderbook, DefaultSchemaVersionOrderbook)
	}
}

func TestLoadWithDefaults_PreservesExplicitValues(t *testing.T) {
	yaml := `
output_dir: /data
venues:
  kalshi:
    poll_max_workers: 5
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults: %v", err)
	}
	if got := cfg.Venues["kalshi"].PollMaxWorkers; got != 5 {
		t.Errorf("PollMaxWorkers = %d, want explicit 5 preserved", got)
	}
}

func TestLoadAndValidate_RejectsNoVenues(t *testing.T) {
	path := writeTempFile(t, "output_dir: /data\n")
	_, err := LoadAndValidate(path)
	if err == nil {
		t.Fatal("expected validation error with no venues configured")
	}
}

func TestLoadAndValidate_Succeeds(t *testing.T) {
	yaml := `
output_dir: /data
venues:
  kalshi:
    base_url: https://api.example.com
`
	path := writeTempFile(t, yaml)
	cfg, err := LoadAndValidate(path)
	if err != nil {
		t.Fatalf("LoadAndValidate: %v", err)
	}
	if cfg.Venues["kalshi"].PollMaxWorkers != DefaultPollMaxWorkers {
		t.Error("expected defaults applied before validation")
	}
}

func TestLoadAndValidate_RejectsMissingBaseURL(t *testing.T) {
	yaml := `
output_dir: /data
venues:
  kalshi: {}
`
	path := writeTempFile(t, yaml)
	if _, err := LoadAndValidate(path); err == nil {
		t.Fatal("expected validation error for missing base_url")
	}
}

func TestValidate_ClampsInflightToWorkersAndFloorsBothAtOne(t *testing.T) {
	cfg := &Config{
		OutputDir: "/data",
		Venues: map[string]VenueConfig{
			"kalshi": {
				BaseURL:           "https://api.example.com",
				PollMaxWorkers:    5,
				PollMaxInflight:   50,
				AimdCeiling:       1,
				AimdStartInflight: 1,
				AimdFailRateHigh:  0.5,
			},
			"other": {
				BaseURL:           "https://api.example.com",
				PollMaxWorkers:    0,
				PollMaxInflight:   0,
				AimdCeiling:       1,
				AimdStartInflight: 1,
				AimdFailRateHigh:  0.5,
			},
		},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got := cfg.Venues["kalshi"].PollMaxInflight; got != 5 {
		t.Errorf("kalshi PollMaxInflight = %d, want clamped to PollMaxWorkers (5)", got)
	}
	if got := cfg.Venues["other"].PollMaxWorkers; got != 1 {
		t.Errorf("other PollMaxWorkers = %d, want floored to 1", got)
	}
	if got := cfg.Venues["other"].PollMaxInflight; got != 1 {
		t.Errorf("other PollMaxInflight = %d, want floored to 1", got)
	}
}

func TestValidate_RejectsBadFailRate(t *testing.T) {
	cfg := &Config{
		OutputDir: "/data",
		Venues: map[string]VenueConfig{
			"kalshi": {BaseURL: "https://api.example.com", PollMaxWorkers: 1, PollMaxInflight: 1, AimdCeiling: 1, AimdStartInflight: 1, AimdFailRateHigh: 1.5},
		},
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for fail_rate_high > 1")
	}
}
