package app

import (
	"log/slog"
	"os"

	"equities-daily/internal/crawl"
	"equities-daily/internal/provider"
	"equities-daily/internal/saver"
	"equities-daily/internal/slogx"
	"equities-daily/internal/store"
	"equities-daily/internal/universe"
)

// Universe is the symbol list of one process plus its provider map.
type Universe struct {
	Symbols []string
	Map     universe.SymbolMap
}

// ProvideConfig loads config from environment (for Wire).
func ProvideConfig() (*Config, error) {
	return LoadConfig()
}

// ProvideLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as the slog default (for Wire).
func ProvideLogger(cfg *Config) *slog.Logger {
	l := slogx.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(l)
	return l
}

// ProvideUniverse loads the universe file (for Wire). Taking the logger
// orders it after logging is configured.
func ProvideUniverse(cfg *Config, _ *slog.Logger) (*Universe, error) {
	symbols, m, err := LoadSymbols(cfg)
	if err != nil {
		return nil, err
	}
	return &Universe{Symbols: symbols, Map: m}, nil
}

// ProvideSymbolMap exposes the provider map as the runner's Mapper (for Wire).
func ProvideSymbolMap(u *Universe) crawl.Mapper {
	return u.Map
}

// ProvideFetcher creates the configured Fetcher (for Wire).
// Caller must call Close() when shutting down.
func ProvideFetcher(cfg *Config, logger *slog.Logger) (provider.Fetcher, error) {
	return CreateFetcher(cfg, logger)
}

// ProvideSegmentSaver creates the segment codec (for Wire).
func ProvideSegmentSaver(cfg *Config) (saver.SegmentSaver, error) {
	return CreateSegmentSaver(cfg)
}

// ProvideStore opens the partition store under DATA_DIR (for Wire).
func ProvideStore(cfg *Config, s saver.SegmentSaver, logger *slog.Logger) (*store.Store, error) {
	return store.New(cfg.DataDir, store.WithSaver(s), store.WithLogger(logger))
}

// ProvideRunner creates the ingestion runner (for Wire).
func ProvideRunner(cfg *Config, f provider.Fetcher, m crawl.Mapper, st *store.Store) *crawl.Runner {
	return crawl.NewRunner(f, m, st, crawl.Options{
		Workers:   cfg.Workers,
		Policy:    cfg.RowPolicy(),
		ReportDir: cfg.DataDir,
		LogLevel:  cfg.LogLevel,
		LogFormat: cfg.LogFormat,
	})
}
