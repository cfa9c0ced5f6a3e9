package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"equities-daily/internal/provider/stooq"
	"equities-daily/internal/schema"
)

var validate = validator.New()

// Config holds application configuration from env
type Config struct {
	DataDir         string        `validate:"required"`
	UniverseFile    string        `validate:"required"`
	Provider        string        `validate:"oneof=stooq"`
	StooqURL        string        `validate:"required,url"`
	FetchTimeout    time.Duration `validate:"gt=0"`
	FetchMaxRetries int           `validate:"gte=1,lte=20"`
	FetchBackoff    time.Duration `validate:"gte=0"`
	UserAgent       string        `validate:"required"`
	Workers         int           `validate:"gte=1,lte=64"`
	BadRowPolicy    string        `validate:"oneof=reject_row reject_batch"`
	Compression     string        `validate:"oneof=zstd snappy none"`
	LogLevel        string        `validate:"oneof=debug info warn warning error"` // debug | info | warn | error
	LogFormat       string        `validate:"oneof=text json"`
	MetricsFile     string        // node-exporter textfile; empty disables
	RunHour         int           `validate:"gte=0,lte=23"`
	RunMinute       int           `validate:"gte=0,lte=59"`
}

// LoadConfig reads config from environment and validates it.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		DataDir:      getEnv("DATA_DIR", "storage/raw/equities_daily"),
		UniverseFile: getEnv("UNIVERSE_FILE", "config/equities_universe.yaml"),
		Provider:     strings.ToLower(getEnv("PROVIDER", "stooq")),
		StooqURL:     getEnv("STOOQ_URL", stooq.DefaultBaseURL),
		UserAgent:    getEnv("USER_AGENT", stooq.DefaultUserAgent),
		BadRowPolicy: strings.ToLower(getEnv("BAD_ROW_POLICY", "reject_row")),
		Compression:  strings.ToLower(getEnv("SEGMENT_COMPRESSION", "zstd")),
		LogLevel:     strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:    strings.ToLower(getEnv("LOG_FORMAT", "text")),
		MetricsFile:  os.Getenv("METRICS_FILE"),
	}

	var err error
	if cfg.FetchTimeout, err = getDuration("FETCH_TIMEOUT", stooq.DefaultTimeout); err != nil {
		return nil, err
	}
	if cfg.FetchBackoff, err = getDuration("FETCH_BACKOFF", stooq.DefaultBackoffBase); err != nil {
		return nil, err
	}
	if cfg.FetchMaxRetries, err = getInt("FETCH_MAX_RETRIES", stooq.DefaultMaxRetries); err != nil {
		return nil, err
	}
	if cfg.Workers, err = getInt("WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.RunHour, err = getInt("RUN_HOUR", 22); err != nil {
		return nil, err
	}
	if cfg.RunMinute, err = getInt("RUN_MINUTE", 30); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// RowPolicy returns the parsed BAD_ROW_POLICY.
func (c *Config) RowPolicy() schema.RowPolicy {
	p, _ := schema.ParseRowPolicy(c.BadRowPolicy)
	return p
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer", key, s)
	}
	return v, nil
}

// getDuration accepts Go durations ("1.5s") or plain seconds ("30").
func getDuration(key string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a duration", key, s)
	}
	return d, nil
}
