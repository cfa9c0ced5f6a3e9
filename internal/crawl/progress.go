package crawl

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
)

// ProgressUpdate is sent when a symbol's partition was updated
type ProgressUpdate struct {
	Symbol   string
	LastDate string
	Rows     int
}

// Progress is the persisted state of one symbol.
type Progress struct {
	LastDate string `json:"last_date"`
	Rows     int    `json:"rows"`
}

// ProgressPath returns path to .progress.json under dir.
func ProgressPath(dir string) string {
	return filepath.Join(dir, ".progress.json")
}

// LoadProgress reads the progress file. A missing or unreadable file is empty.
func LoadProgress(path string) map[string]Progress {
	data, err := os.ReadFile(path)
	if err != nil {
		return make(map[string]Progress)
	}
	var m map[string]Progress
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return make(map[string]Progress)
	}
	return m
}

// RunProgressWriter receives updates and persists to file (run as goroutine)
func RunProgressWriter(path string, updates <-chan ProgressUpdate) {
	m := LoadProgress(path)
	for u := range updates {
		m[u.Symbol] = Progress{LastDate: u.LastDate, Rows: u.Rows}
		data, err := json.MarshalIndent(m, "", "  ")
		if err != nil {
			slog.Warn("progress marshal error", "error", err)
			continue
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			slog.Warn("progress write error", "error", err)
		}
	}
}
