package app

import (
	"fmt"
	"log/slog"
	"strings"

	"equities-daily/internal/provider"
	"equities-daily/internal/provider/stooq"
	"equities-daily/internal/saver"
	"equities-daily/internal/universe"
)

// CreateFetcher creates the Fetcher from config (currently Stooq only)
func CreateFetcher(cfg *Config, logger *slog.Logger) (provider.Fetcher, error) {
	switch strings.ToLower(cfg.Provider) {
	case "stooq":
		return stooq.NewClient(stooq.Options{
			BaseURL:     cfg.StooqURL,
			Timeout:     cfg.FetchTimeout,
			MaxRetries:  cfg.FetchMaxRetries,
			BackoffBase: cfg.FetchBackoff,
			UserAgent:   cfg.UserAgent,
			Logger:      logger,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported data provider: %s. Options: stooq", cfg.Provider)
	}
}

// CreateSegmentSaver creates the segment codec with the configured compression.
func CreateSegmentSaver(cfg *Config) (saver.SegmentSaver, error) {
	s, err := saver.NewSegmentSaver("parquet")
	if err != nil {
		return nil, err
	}
	if ps, ok := s.(saver.ParquetSaver); ok {
		ps.Compression = saver.ParseCompressionType(cfg.Compression)
		s = ps
	}
	return s, nil
}

// LoadSymbols returns the symbols of the universe file and the symbol map of
// the configured provider. Invalid entries are logged and kept; the run
// fails them one by one at the mapping stage.
func LoadSymbols(cfg *Config) ([]string, universe.SymbolMap, error) {
	u, err := universe.Load(cfg.UniverseFile)
	if err != nil {
		return nil, universe.SymbolMap{}, err
	}
	symbols, invalid := u.Symbols()
	if len(invalid) > 0 {
		slog.Warn("invalid universe entries", "file", cfg.UniverseFile, "symbols", strings.Join(invalid, ", "))
	}
	m := u.SymbolMap(cfg.Provider)
	slog.Info("universe loaded", "file", cfg.UniverseFile, "symbols", len(symbols), "mapped", m.Len(), "provider", cfg.Provider)
	return symbols, m, nil
}
