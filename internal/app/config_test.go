package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equities-daily/internal/schema"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, k := range []string{"DATA_DIR", "UNIVERSE_FILE", "PROVIDER", "STOOQ_URL", "FETCH_TIMEOUT", "FETCH_BACKOFF",
		"FETCH_MAX_RETRIES", "WORKERS", "BAD_ROW_POLICY", "LOG_LEVEL", "LOG_FORMAT", "RUN_HOUR", "RUN_MINUTE",
		"USER_AGENT", "SEGMENT_COMPRESSION"} {
		t.Setenv(k, "")
	}
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "storage/raw/equities_daily", cfg.DataDir)
	assert.Equal(t, "config/equities_universe.yaml", cfg.UniverseFile)
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 1500*time.Millisecond, cfg.FetchBackoff)
	assert.Equal(t, 4, cfg.FetchMaxRetries)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, schema.RejectRow, cfg.RowPolicy())
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("FETCH_TIMEOUT", "10")
	t.Setenv("FETCH_BACKOFF", "250ms")
	t.Setenv("WORKERS", "8")
	t.Setenv("BAD_ROW_POLICY", "REJECT_BATCH")
	t.Setenv("LOG_FORMAT", "json")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.FetchBackoff)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, schema.RejectBatch, cfg.RowPolicy())
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := map[string]string{
		"WORKERS":           "0",
		"FETCH_MAX_RETRIES": "many",
		"FETCH_TIMEOUT":     "soon",
		"RUN_HOUR":          "24",
		"PROVIDER":          "polygon",
		"BAD_ROW_POLICY":    "drop",
		"STOOQ_URL":         "not a url",
	}
	for key, val := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}
