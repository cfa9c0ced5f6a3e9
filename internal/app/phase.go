package app

import (
	"context"
	"log/slog"
	"time"

	"equities-daily/internal/crawl"
	"equities-daily/internal/metrics"
)

// RunOnce runs one ingestion over symbols and exports metrics.
func RunOnce(ctx context.Context, cfg *Config, runner *crawl.Runner, symbols []string) *crawl.Summary {
	sum := runner.Run(ctx, symbols)
	if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
		slog.Warn("could not write metrics textfile", "path", cfg.MetricsFile, "error", err)
	}
	return sum
}

// RunFlow orchestrates the daily loop: run → done → wait → run, until ctx is done.
// The run in progress when ctx is canceled stops taking new symbols and
// finishes the ones already started.
func RunFlow(ctx context.Context, cfg *Config, runner *crawl.Runner, symbols []string) {
	for {
		sum := RunOnce(ctx, cfg, runner, symbols)
		slog.Info("done, wait until next run", "ok", sum.OK())
		if ctx.Err() != nil {
			slog.Info("graceful shutdown")
			return
		}

		nextRun := nextRunTime(time.Now(), cfg.RunHour, cfg.RunMinute)
		waitDur := time.Until(nextRun)
		slog.Info("timer waiting", "hours", waitDur.Hours(), "until", nextRun.Format("2006-01-02 15:04"))
		timer := time.NewTimer(waitDur)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			slog.Info("received signal, stopping", "restart_at", nextRun.Format("2006-01-02 15:04"))
			return
		}
	}
}

// nextRunTime returns the next hour:min UTC strictly after now.
func nextRunTime(now time.Time, hour, min int) time.Time {
	now = now.UTC()
	targetToday := time.Date(now.Year(), now.Month(), now.Day(), hour, min, 0, 0, time.UTC)
	if now.Before(targetToday) {
		return targetToday
	}
	tomorrow := now.AddDate(0, 0, 1)
	return time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), hour, min, 0, 0, time.UTC)
}
