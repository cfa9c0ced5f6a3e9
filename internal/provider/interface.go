package provider

import "context"

// DataProvider is the abstraction used by the application when accessing a data source.
// Implementations are responsible for their own resource cleanup.
type DataProvider interface {
	GetName() string
	Close() error
}

// Fetcher downloads the raw daily history of one symbol.
// FetchDaily takes the provider-specific symbol (e.g. "qqqm.us" for Stooq) and
// returns the provider's tabular text unchanged. Source is the tag stored on
// every record the text normalizes to.
type Fetcher interface {
	DataProvider
	Source() string
	FetchDaily(ctx context.Context, providerSymbol string) (string, error)
}
