package crawl

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"equities-daily/internal/errors"
	"equities-daily/internal/merge"
	"equities-daily/internal/metrics"
	"equities-daily/internal/model"
	"equities-daily/internal/provider"
	"equities-daily/internal/schema"
	"equities-daily/internal/slogx"
	"equities-daily/internal/store"
)

// Job is one ingestion unit: the whole daily history of one canonical symbol.
type Job struct {
	Symbol string
}

// Mapper resolves a canonical symbol to the provider's identifier.
type Mapper interface {
	ToProvider(canonical string) (string, error)
}

// Partitions is the part of the partition store a run needs.
type Partitions interface {
	Update(ctx context.Context, symbol string, fn func(existing model.Partition) (model.Partition, error)) (store.UpdateResult, error)
}

// Options configures a Runner.
type Options struct {
	Workers   int
	Policy    schema.RowPolicy
	Columns   schema.ColumnMap // nil: Stooq layout
	ReportDir string           // run report and progress file; "" disables both
	Heartbeat time.Duration    // 0: 30s
	LogOutput io.Writer        // worker log lines; nil: stderr
	LogLevel  string           // debug|info|warn|error; "": info
	LogFormat string           // text|json; "": text
	Now       func() time.Time
}

// Runner executes ingestion runs. One Runner may serve many runs but not
// concurrently.
type Runner struct {
	fetcher provider.Fetcher
	mapper  Mapper
	parts   Partitions
	opts    Options
}

// NewRunner creates a Runner.
func NewRunner(f provider.Fetcher, m Mapper, p Partitions, opts Options) *Runner {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 30 * time.Second
	}
	if opts.LogOutput == nil {
		opts.LogOutput = os.Stderr
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Runner{fetcher: f, mapper: m, parts: p, opts: opts}
}

// JobResult is sent by workers for fan-in
type JobResult struct {
	Ok      bool
	Result  SymbolResult
	Failure SymbolFailure
	// FetchLatency is zero when the symbol failed before fetching.
	FetchLatency time.Duration
}

// Run ingests every symbol. A symbol's failure never stops the others; it
// is recorded in the Summary. Canceling ctx stops workers from taking new
// symbols, the remaining ones are reported as canceled.
func (r *Runner) Run(ctx context.Context, symbols []string) *Summary {
	sum := newSummary(uuid.NewString(), r.opts.Now().UTC())
	slog.Info("run start", "run_id", sum.RunID, "symbols", len(symbols), "workers", r.opts.Workers, "source", r.fetcher.Source())

	logs := make(chan string, 2048)
	logger := slogx.NewChanLogger(logs, r.opts.LogLevel, r.opts.LogFormat).With("run_id", sum.RunID)
	var logWg sync.WaitGroup
	logWg.Add(1)
	go func() {
		defer logWg.Done()
		runLogWriter(logs, r.opts.LogOutput)
	}()

	var progress chan ProgressUpdate
	var progWg sync.WaitGroup
	if r.opts.ReportDir != "" {
		progress = make(chan ProgressUpdate, 256)
		progWg.Add(1)
		go func() {
			defer progWg.Done()
			RunProgressWriter(ProgressPath(r.opts.ReportDir), progress)
		}()
	}

	pending := make(chan Job, len(symbols))
	for _, s := range symbols {
		pending <- Job{Symbol: s}
	}
	close(pending)

	results := make(chan JobResult, len(symbols)+64)
	var mu sync.Mutex
	var resWg sync.WaitGroup
	resWg.Add(1)
	go func() {
		defer resWg.Done()
		runJobResultCollector(results, &mu, sum, progress)
	}()

	hbCtx, stopHeartbeat := context.WithCancel(context.Background())
	go runHeartbeat(hbCtx, r.opts.Heartbeat, len(symbols), &mu, sum, logger)

	var g errgroup.Group
	for i := 0; i < r.opts.Workers; i++ {
		g.Go(func() error {
			for job := range pending {
				if err := ctx.Err(); err != nil {
					results <- failed(job.Symbol, errors.StageCanceled, err)
					continue
				}
				results <- r.ingest(ctx, job, logger)
			}
			return nil
		})
	}
	g.Wait()
	close(results)
	resWg.Wait()
	stopHeartbeat()

	sum.finish(r.opts.Now().UTC())
	metrics.LastRunTimestamp.Set(float64(sum.Finished.Unix()))
	if sum.OK() {
		metrics.LastRunSuccess.Set(1)
	} else {
		metrics.LastRunSuccess.Set(0)
	}

	logger.Info("summary", "success", len(sum.Succeeded), "failed", len(sum.Failed), "rows", sum.TotalRows(), "new_rows", sum.NewRows(),
		"fetch_p50", sum.FetchP50, "fetch_p95", sum.FetchP95)
	if len(sum.Failed) > 0 {
		logger.Info("summary failed", "count", len(sum.Failed), "reasons", joinFailedReasons(sum.Failed))
	}

	if progress != nil {
		close(progress)
		progWg.Wait()
	}
	close(logs)
	logWg.Wait()

	if r.opts.ReportDir != "" {
		if err := writeRunReport(r.opts.ReportDir, sum); err != nil {
			slog.Warn("could not write run report", "error", err)
		}
	}
	slog.Info("run done", "run_id", sum.RunID, "success", len(sum.Succeeded), "failed", len(sum.Failed), "took", sum.Finished.Sub(sum.Started))
	return sum
}

// ingest runs mapping -> fetch -> normalize -> load/merge/write for one symbol.
func (r *Runner) ingest(ctx context.Context, job Job, logger *slog.Logger) JobResult {
	sym := job.Symbol

	psym, err := r.mapper.ToProvider(sym)
	if err != nil {
		logger.Error("ingest fail", "symbol", sym, "stage", errors.StageMapping, "reason", err)
		return failed(sym, errors.StageMapping, err)
	}

	start := time.Now()
	raw, err := r.fetcher.FetchDaily(ctx, psym)
	latency := time.Since(start)
	if err != nil {
		logger.Error("ingest fail", "symbol", sym, "stage", errors.StageFetch, "reason", err)
		res := failed(sym, errors.StageFetch, err)
		res.FetchLatency = latency
		return res
	}
	ingestedAt := r.opts.Now()

	norm, err := schema.Normalize(raw, sym, r.fetcher.Source(), ingestedAt, schema.Options{Columns: r.opts.Columns, Policy: r.opts.Policy})
	if err != nil {
		logger.Error("ingest fail", "symbol", sym, "stage", errors.StageNormalize, "reason", err)
		res := failed(sym, errors.StageNormalize, err)
		res.FetchLatency = latency
		return res
	}
	for _, re := range norm.Rejected {
		logger.Warn("row rejected", "symbol", sym, "row", re.Row, "reason", re.Err)
	}

	var mergeErr error
	upd, err := r.parts.Update(ctx, sym, func(existing model.Partition) (model.Partition, error) {
		merged, err := merge.Merge(existing, norm.Records)
		mergeErr = err
		return merged, err
	})
	if err != nil {
		stage := errors.StageStore
		if mergeErr != nil {
			stage = errors.StageMerge
		}
		logger.Error("ingest fail", "symbol", sym, "stage", stage, "reason", err)
		res := failed(sym, stage, err)
		res.FetchLatency = latency
		return res
	}

	out := SymbolResult{
		Symbol:         sym,
		ProviderSymbol: psym,
		Fetched:        len(norm.Records),
		Rejected:       len(norm.Rejected),
		Rows:           upd.After,
		NewRows:        upd.NewRows(),
		Segment:        upd.Segment.Path,
	}
	if last, ok := upd.Merged.LastDate(); ok {
		out.LastDate = last.Format(model.DateLayout)
	}
	logger.Info("ingest ok", "symbol", sym, "provider_symbol", psym, "fetched", out.Fetched, "rows", out.Rows, "new_rows", out.NewRows, "last_date", out.LastDate)
	return JobResult{Ok: true, Result: out, FetchLatency: latency}
}

func failed(symbol string, stage errors.Stage, err error) JobResult {
	err = errors.AtStage(symbol, stage, err)
	return JobResult{Failure: SymbolFailure{
		Symbol:    symbol,
		Stage:     stage,
		Kind:      errors.KindOf(err),
		Retryable: errors.IsRetryable(err),
		Reason:    err.Error(),
		Err:       err,
	}}
}

func runJobResultCollector(results <-chan JobResult, mu *sync.Mutex, sum *Summary, progress chan<- ProgressUpdate) {
	for r := range results {
		mu.Lock()
		sum.add(r)
		mu.Unlock()

		if r.Ok {
			metrics.SymbolsProcessed.WithLabelValues("ok", "").Inc()
			metrics.RowsWritten.Add(float64(r.Result.Rows))
			metrics.RowsRejected.Add(float64(r.Result.Rejected))
			if progress != nil {
				select {
				case progress <- ProgressUpdate{Symbol: r.Result.Symbol, LastDate: r.Result.LastDate, Rows: r.Result.Rows}:
				default:
					slog.Warn("progress channel full, skip update", "symbol", r.Result.Symbol)
				}
			}
		} else {
			metrics.SymbolsProcessed.WithLabelValues("failed", string(r.Failure.Kind)).Inc()
		}
	}
}
