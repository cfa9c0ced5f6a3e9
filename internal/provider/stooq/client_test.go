package stooq

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equities-daily/internal/errors"
)

const okBody = "Date,Open,High,Low,Close,Volume\n2024-01-02,1,2,0.5,1.5,100\n"

// recordSleeps records requested waits without sleeping.
type recordSleeps struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordSleeps) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	return ctx.Err()
}

func newTestClient(url string, retries int, s *recordSleeps) *Client {
	return NewClient(Options{
		BaseURL:     url,
		Timeout:     2 * time.Second,
		MaxRetries:  retries,
		BackoffBase: 100 * time.Millisecond,
		Sleep:       s.sleep,
	})
}

func TestFetchDaily_OK(t *testing.T) {
	var gotUA, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotQuery = r.URL.RawQuery
		w.Write([]byte(okBody))
	}))
	defer srv.Close()

	s := &recordSleeps{}
	body, err := newTestClient(srv.URL, 3, s).FetchDaily(context.Background(), "qqqm.us")
	require.NoError(t, err)
	assert.Equal(t, okBody, body)
	assert.Equal(t, DefaultUserAgent, gotUA)
	assert.Equal(t, "i=d&s=qqqm.us", gotQuery)
	assert.Empty(t, s.waits)
}

func TestFetchDaily_RetryExhaustion(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := &recordSleeps{}
	_, err := newTestClient(srv.URL, 3, s).FetchDaily(context.Background(), "spy.us")

	var fe *errors.FetchExhaustedError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 3, fe.Attempts)
	assert.Equal(t, "spy.us", fe.Symbol)
	assert.Contains(t, fe.Err.Error(), "status 503")
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond}, s.waits)
	assert.Equal(t, errors.KindFetchExhausted, errors.KindOf(err))
}

func TestFetchDaily_BadHeaderIsRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.Write([]byte("No data"))
			return
		}
		w.Write([]byte(okBody))
	}))
	defer srv.Close()

	s := &recordSleeps{}
	body, err := newTestClient(srv.URL, 4, s).FetchDaily(context.Background(), "spy.us")
	require.NoError(t, err)
	assert.Equal(t, okBody, body)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, s.waits)
}

func TestFetchDaily_HeaderOnlyFailureKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>blocked</html>"))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 2, &recordSleeps{}).FetchDaily(context.Background(), "spy.us")
	assert.Equal(t, errors.KindFetchExhausted, errors.KindOf(err))
}

func TestFetchDaily_CanceledBetweenAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := NewClient(Options{
		BaseURL:    srv.URL,
		MaxRetries: 5,
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		},
	})

	_, err := c.FetchDaily(ctx, "spy.us")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, errors.KindCanceled, errors.KindOf(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchDaily_PerAttemptTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	s := &recordSleeps{}
	c := NewClient(Options{BaseURL: srv.URL, Timeout: 50 * time.Millisecond, MaxRetries: 2, Sleep: s.sleep})
	_, err := c.FetchDaily(context.Background(), "spy.us")

	var fe *errors.FetchExhaustedError
	require.ErrorAs(t, err, &fe)
	assert.Len(t, s.waits, 2)
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(Options{})
	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.Equal(t, DefaultMaxRetries, c.retries)
	assert.Equal(t, DefaultTimeout, c.timeout)
	assert.Equal(t, Source, c.Source())
	assert.NoError(t, c.Close())
}
