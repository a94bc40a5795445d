// Package config holds the environment-sourced run configuration.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/BartekS5/LDM/internal/source"
)

// Config is parsed from the environment (populated from .env by main).
// Flags on the migrate command override individual fields after parsing.
type Config struct {
	DataDirectory       string            `env:"DATA_DIRECTORY"`
	BatchSize           int               `env:"BATCH_SIZE" envDefault:"100"`
	ConcurrencyLimit    int               `env:"CONCURRENCY_LIMIT" envDefault:"10"`
	SkipMissingRequired bool              `env:"SKIP_MISSING_REQUIRED"`
	UseTransactions     bool              `env:"USE_TRANSACTIONS" envDefault:"true"`
	IncrementalSince    string            `env:"INCREMENTAL_SINCE_DATE"`
	IncrementalFields   []string          `env:"INCREMENTAL_FIELDS" envSeparator:","`
	MigratorsOnly       []string          `env:"MIGRATORS_ONLY" envSeparator:","`
	CollectUpsertStats  bool              `env:"COLLECT_UPSERT_STATS"`
	CreatedBy           string            `env:"CREATED_BY" envDefault:"migration"`
	UpdatedBy           string            `env:"UPDATED_BY" envDefault:"migration"`
	DBConnString        string            `env:"DB_CONNECTION_STRING"`
	LogFile             string            `env:"LOG_FILE"`
	FileOverrides       map[string]string `env:"FILE_OVERRIDES" envSeparator:"," envKeyValSeparator:"="`
	MissingDate         string            `env:"MISSING_DATE_POLICY" envDefault:"include"`
	InvalidDate         string            `env:"INVALID_DATE_POLICY" envDefault:"warn-skip"`
	DryRun              bool              `env:"DRY_RUN"`
}

// MissingDatePolicy resolves the policy for records with no window date
// field.
func (c *Config) MissingDatePolicy() source.Policy { return source.ParsePolicy(c.MissingDate) }

// InvalidDatePolicy resolves the policy for unparseable or suspicious
// window dates.
func (c *Config) InvalidDatePolicy() source.Policy { return source.ParsePolicy(c.InvalidDate) }

// Load parses the process environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return cfg, nil
}

// Incremental reports whether incremental mode is enabled, i.e. a since
// date was configured.
func (c *Config) Incremental() bool { return c.IncrementalSince != "" }

// SinceDate parses the incremental cutoff. Only valid when Incremental().
func (c *Config) SinceDate() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, c.IncrementalSince)
	if err != nil {
		// Date-only form is accepted too.
		t, err = time.Parse("2006-01-02", c.IncrementalSince)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid INCREMENTAL_SINCE_DATE %q: %w", c.IncrementalSince, err)
	}
	return t, nil
}

// Filename resolves a model's export filename, honoring per-model
// overrides.
func (c *Config) Filename(model, fallback string) string {
	if f, ok := c.FileOverrides[model]; ok {
		return f
	}
	return fallback
}

// WantsModel applies the MIGRATORS_ONLY filter; an empty filter runs all.
func (c *Config) WantsModel(model string) bool {
	if len(c.MigratorsOnly) == 0 {
		return true
	}
	for _, m := range c.MigratorsOnly {
		if m == model {
			return true
		}
	}
	return false
}
