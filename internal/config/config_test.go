package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BartekS5/LDM/internal/source"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 10, cfg.ConcurrencyLimit)
	assert.True(t, cfg.UseTransactions)
	assert.Equal(t, "migration", cfg.CreatedBy)
	assert.Equal(t, "migration", cfg.UpdatedBy)
	assert.False(t, cfg.Incremental())
	assert.Equal(t, source.PolicyInclude, cfg.MissingDatePolicy())
	assert.Equal(t, source.PolicyWarnSkip, cfg.InvalidDatePolicy())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("DATA_DIRECTORY", "/data/exports")
	t.Setenv("BATCH_SIZE", "250")
	t.Setenv("CONCURRENCY_LIMIT", "4")
	t.Setenv("USE_TRANSACTIONS", "false")
	t.Setenv("MIGRATORS_ONLY", "Challenge,Phase")
	t.Setenv("INCREMENTAL_FIELDS", "name,status")
	t.Setenv("FILE_OVERRIDES", "Challenge=alt-challenges.jsonl,Phase=alt-phases.json")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/data/exports", cfg.DataDirectory)
	assert.Equal(t, 250, cfg.BatchSize)
	assert.Equal(t, 4, cfg.ConcurrencyLimit)
	assert.False(t, cfg.UseTransactions)
	assert.Equal(t, []string{"Challenge", "Phase"}, cfg.MigratorsOnly)
	assert.Equal(t, []string{"name", "status"}, cfg.IncrementalFields)
	assert.Equal(t, "alt-challenges.jsonl", cfg.FileOverrides["Challenge"])
	assert.Equal(t, "alt-phases.json", cfg.FileOverrides["Phase"])
}

func TestSinceDate(t *testing.T) {
	cfg := &Config{IncrementalSince: "2025-01-01T00:00:00Z"}
	got, err := cfg.SinceDate()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), got)
	assert.True(t, cfg.Incremental())

	cfg = &Config{IncrementalSince: "2025-01-01"}
	got, err = cfg.SinceDate()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), got)

	cfg = &Config{IncrementalSince: "yesterday"}
	_, err = cfg.SinceDate()
	assert.ErrorContains(t, err, "INCREMENTAL_SINCE_DATE")
}

func TestWantsModel(t *testing.T) {
	cfg := &Config{}
	assert.True(t, cfg.WantsModel("Challenge"), "empty filter runs everything")

	cfg.MigratorsOnly = []string{"Phase"}
	assert.True(t, cfg.WantsModel("Phase"))
	assert.False(t, cfg.WantsModel("Challenge"))
}

func TestFilenameOverrides(t *testing.T) {
	cfg := &Config{FileOverrides: map[string]string{"Challenge": "special.jsonl"}}
	assert.Equal(t, "special.jsonl", cfg.Filename("Challenge", "challenges.jsonl"))
	assert.Equal(t, "phases.json", cfg.Filename("Phase", "phases.json"))
}
