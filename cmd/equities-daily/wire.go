//go:build wireinject
// +build wireinject

package main

import (
	"equities-daily/internal/app"

	"github.com/google/wire"
)

// InitializeApp builds App via Wire.
// Caller must call a.Fetcher.Close() when done.
func InitializeApp() (*App, error) {
	wire.Build(
		app.ProvideConfig,
		app.ProvideLogger,
		app.ProvideUniverse,
		app.ProvideSymbolMap,
		app.ProvideFetcher,
		app.ProvideSegmentSaver,
		app.ProvideStore,
		app.ProvideRunner,
		wire.Struct(new(App), "Config", "Universe", "Fetcher", "Runner"),
	)
	return nil, nil
}
