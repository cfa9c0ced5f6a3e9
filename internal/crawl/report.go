package crawl

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const (
	successReport = ".lastrun.success.json"
	failedReport  = ".lastrun.failed.json"
)

// writeRunReport writes the succeeded and failed symbols of sum under dir.
// A report with no entries removes the stale file of the previous run.
func writeRunReport(dir string, sum *Summary) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if err := writeReportFile(filepath.Join(dir, successReport), sum.Succeeded, len(sum.Succeeded)); err != nil {
		return err
	}
	return writeReportFile(filepath.Join(dir, failedReport), sum.Failed, len(sum.Failed))
}

func writeReportFile(path string, v any, n int) error {
	if n == 0 {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return err
	}
	slog.Info("report wrote", "path", path, "count", n)
	return nil
}

func joinFailedReasons(failedList []SymbolFailure) string {
	if len(failedList) == 0 {
		return ""
	}
	var b strings.Builder
	for i, f := range failedList {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(f.Symbol)
		b.WriteString(": ")
		b.WriteString(string(f.Kind))
		if i >= 4 && len(failedList) > 6 {
			b.WriteString(fmt.Sprintf(" (+%d more)", len(failedList)-5))
			break
		}
	}
	return b.String()
}
