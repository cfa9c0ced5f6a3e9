package crawl

import (
	"fmt"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"

	"equities-daily/internal/errors"
)

// SymbolResult describes a symbol whose partition was updated.
type SymbolResult struct {
	Symbol         string `json:"symbol"`
	ProviderSymbol string `json:"provider_symbol"`
	Fetched        int    `json:"fetched"`  // rows accepted from the provider
	Rejected       int    `json:"rejected"` // rows dropped by the row policy
	Rows           int    `json:"rows"`     // rows of the merged partition
	NewRows        int    `json:"new_rows"`
	LastDate       string `json:"last_date,omitempty"`
	Segment        string `json:"segment,omitempty"`
}

// SymbolFailure describes a symbol whose run failed.
type SymbolFailure struct {
	Symbol    string       `json:"symbol"`
	Stage     errors.Stage `json:"stage,omitempty"`
	Kind      errors.Kind  `json:"kind"`
	Retryable bool         `json:"retryable"`
	Reason    string       `json:"reason"`
	Err       error        `json:"-"`
}

// Summary is the outcome of one ingestion run.
type Summary struct {
	RunID     string          `json:"run_id"`
	Started   time.Time       `json:"started"`
	Finished  time.Time       `json:"finished"`
	Succeeded []SymbolResult  `json:"succeeded"`
	Failed    []SymbolFailure `json:"failed"`
	FetchP50  time.Duration   `json:"fetch_p50_ns"`
	FetchP95  time.Duration   `json:"fetch_p95_ns"`

	latency *ddsketch.DDSketch
	samples int
}

// relativeAccuracy of the fetch latency quantiles.
const relativeAccuracy = 0.01

func newSummary(runID string, started time.Time) *Summary {
	s := &Summary{RunID: runID, Started: started}
	// only fails for an accuracy outside (0,1)
	s.latency, _ = ddsketch.NewDefaultDDSketch(relativeAccuracy)
	return s
}

func (s *Summary) add(r JobResult) {
	if r.Ok {
		s.Succeeded = append(s.Succeeded, r.Result)
	} else {
		s.Failed = append(s.Failed, r.Failure)
	}
	if r.FetchLatency > 0 && s.latency != nil {
		if s.latency.Add(r.FetchLatency.Seconds()) == nil {
			s.samples++
		}
	}
}

func (s *Summary) finish(at time.Time) {
	s.Finished = at
	s.FetchP50 = s.quantile(0.50)
	s.FetchP95 = s.quantile(0.95)
}

func (s *Summary) quantile(q float64) time.Duration {
	if s.latency == nil || s.samples == 0 {
		return 0
	}
	v, err := s.latency.GetValueAtQuantile(q)
	if err != nil {
		return 0
	}
	return time.Duration(v * float64(time.Second))
}

// OK reports whether every symbol succeeded.
func (s *Summary) OK() bool { return len(s.Failed) == 0 }

// TotalRows sums the partition sizes of succeeded symbols.
func (s *Summary) TotalRows() int {
	var n int
	for _, r := range s.Succeeded {
		n += r.Rows
	}
	return n
}

// NewRows sums the rows added by this run.
func (s *Summary) NewRows() int {
	var n int
	for _, r := range s.Succeeded {
		n += r.NewRows
	}
	return n
}

// String renders a one-line outcome for CLI output.
func (s *Summary) String() string {
	return fmt.Sprintf("run %s: %d ok, %d failed, %d rows (%d new)", s.RunID, len(s.Succeeded), len(s.Failed), s.TotalRows(), s.NewRows())
}
