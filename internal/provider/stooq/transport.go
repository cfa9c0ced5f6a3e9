package stooq

import (
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// baseTransportConfig returns the HTTP transport shared by Stooq clients.
// One small CSV per symbol, so a short idle pool is enough. Headers may take
// as long as the whole attempt is allowed to.
func baseTransportConfig(timeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ResponseHeaderTimeout: timeout,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          16,
		MaxIdleConnsPerHost:   8,
	}
}

// newRestyClient creates a resty client configured for Stooq requests.
// Retries are handled by Client, never by resty.
func newRestyClient(timeout time.Duration, userAgent string) *resty.Client {
	return resty.New().
		SetTransport(baseTransportConfig(timeout)).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "text/csv,text/plain,*/*")
}
