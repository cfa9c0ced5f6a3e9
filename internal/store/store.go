// Package store keeps append-only, per-symbol partitions on the local
// filesystem.
//
// Layout: {root}/symbol={SYMBOL}/part-{YYYYMMDDTHHMMSS}.{nanos}-{id}.parquet
//
// Segments are never rewritten or deleted. A partition's logical content is
// the union of its segments reconciled with the keep-latest rule, so a crash
// between writing a segment and the next run never loses committed rows.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"equities-daily/internal/errors"
	"equities-daily/internal/merge"
	"equities-daily/internal/model"
	"equities-daily/internal/saver"
)

const (
	partitionPrefix = "symbol="
	segmentPrefix   = "part-"
	tempPrefix      = ".part-"
	tempSuffix      = ".tmp"
)

// SegmentInfo describes one committed segment.
type SegmentInfo struct {
	Symbol string
	Path   string
	Rows   int
}

// UpdateResult is returned by Update.
type UpdateResult struct {
	Before  int // rows before the update
	After   int // rows of the merged partition
	Segment SegmentInfo
	Merged  model.Partition
}

// NewRows is the net number of keys added by the update.
func (r UpdateResult) NewRows() int { return r.After - r.Before }

// Store is a partition store rooted at one directory. Safe for concurrent use.
type Store struct {
	root   string
	saver  saver.SegmentSaver
	now    func() time.Time
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*symbolLock
}

// symbolLock is dropped from Store.locks once no Update holds or waits on it.
type symbolLock struct {
	mu   sync.Mutex
	refs int
}

// Option configures a Store.
type Option func(*Store)

// WithSaver sets the segment codec. Default parquet/zstd.
func WithSaver(s saver.SegmentSaver) Option { return func(st *Store) { st.saver = s } }

// WithClock sets the clock used for segment names.
func WithClock(now func() time.Time) Option { return func(st *Store) { st.now = now } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(st *Store) { st.logger = l } }

// New creates a Store rooted at root, creating the directory if needed.
func New(root string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("store: empty root")
	}
	s := &Store{
		root:   root,
		saver:  saver.ParquetSaver{Compression: saver.CompressionZstd},
		now:    time.Now,
		logger: slog.Default(),
		locks:  make(map[string]*symbolLock),
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With("component", "store")
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, &errors.StorageIOError{Op: "mkdir", Path: root, Err: err}
	}
	return s, nil
}

// Root returns the store root directory.
func (s *Store) Root() string { return s.root }

// Dir returns the partition directory of symbol.
func (s *Store) Dir(symbol string) string {
	return filepath.Join(s.root, partitionPrefix+symbol)
}

// Segments lists the committed segment files of symbol in name order, which
// is also creation order. A missing partition has no segments.
func (s *Store) Segments(symbol string) ([]string, error) {
	dir := s.Dir(symbol)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &errors.StorageIOError{Symbol: symbol, Op: "list", Path: dir, Err: err}
	}
	ext := "." + s.saver.Extension()
	var paths []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, segmentPrefix) || !strings.HasSuffix(name, ext) {
			continue // temp files and foreign files are invisible
		}
		paths = append(paths, filepath.Join(dir, name))
	}
	sort.Strings(paths)
	return paths, nil
}

// Symbols lists every symbol that has a partition directory.
func (s *Store) Symbols() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, &errors.StorageIOError{Op: "list", Path: s.root, Err: err}
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), partitionPrefix) {
			out = append(out, strings.TrimPrefix(e.Name(), partitionPrefix))
		}
	}
	sort.Strings(out)
	return out, nil
}

// Load returns the logical partition of symbol: every segment unioned,
// reconciled with keep-latest and sorted by date. A symbol never written
// loads as an empty partition.
func (s *Store) Load(ctx context.Context, symbol string) (model.Partition, error) {
	p := model.Partition{Symbol: symbol}
	if err := ctx.Err(); err != nil {
		return p, err
	}
	paths, err := s.Segments(symbol)
	if err != nil {
		return p, err
	}
	var all []model.CanonicalRecord
	for _, path := range paths {
		records, err := s.saver.Load(path)
		if err != nil {
			return p, &errors.StorageIOError{Symbol: symbol, Op: "load", Path: path, Err: err}
		}
		all = append(all, records...)
	}
	if len(all) == 0 {
		return p, nil
	}
	p.Records = merge.Collapse(all)
	return p, nil
}

// AppendSegment writes p as a new segment. The file is written under a
// temporary name, synced and then renamed, so readers see either nothing or
// the whole segment. An empty partition writes nothing.
func (s *Store) AppendSegment(p model.Partition) (SegmentInfo, error) {
	info := SegmentInfo{Symbol: p.Symbol}
	if p.Symbol == "" {
		return info, &errors.StorageIOError{Op: "write", Err: errors.New("partition has no symbol")}
	}
	if p.Empty() {
		return info, nil
	}

	dir := s.Dir(p.Symbol)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return info, &errors.StorageIOError{Symbol: p.Symbol, Op: "mkdir", Path: dir, Err: err}
	}

	name := s.segmentName()
	final := filepath.Join(dir, name)
	tmp, err := os.CreateTemp(dir, tempPrefix+"*"+tempSuffix)
	if err != nil {
		return info, &errors.StorageIOError{Symbol: p.Symbol, Op: "write", Path: dir, Err: err}
	}
	tmpPath := tmp.Name()
	fail := func(op string, err error) (SegmentInfo, error) {
		tmp.Close()
		os.Remove(tmpPath)
		return info, &errors.StorageIOError{Symbol: p.Symbol, Op: op, Path: tmpPath, Err: err}
	}

	if err := s.saver.Save(p.Records, tmp); err != nil {
		return fail("write", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("sync", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return info, &errors.StorageIOError{Symbol: p.Symbol, Op: "close", Path: tmpPath, Err: err}
	}
	if err := os.Rename(tmpPath, final); err != nil {
		os.Remove(tmpPath)
		return info, &errors.StorageIOError{Symbol: p.Symbol, Op: "rename", Path: final, Err: err}
	}
	syncDir(dir)

	info.Path = final
	info.Rows = p.Len()
	s.logger.Debug("segment written", "symbol", p.Symbol, "path", final, "rows", info.Rows)
	return info, nil
}

// Update runs the read-merge-write critical section for symbol. fn receives
// the current partition and returns the partition to persist. Calls for the
// same symbol are serialized; different symbols proceed in parallel.
// ctx is honored before the load only: a started write always completes.
func (s *Store) Update(ctx context.Context, symbol string, fn func(existing model.Partition) (model.Partition, error)) (UpdateResult, error) {
	var res UpdateResult
	unlock := s.lock(symbol)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return res, err
	}
	existing, err := s.Load(ctx, symbol)
	if err != nil {
		return res, err
	}
	res.Before = existing.Len()

	merged, err := fn(existing)
	if err != nil {
		return res, err
	}
	if merged.Symbol != symbol {
		return res, &errors.MergeInvariantError{Symbol: symbol, Reason: "update returned partition for " + merged.Symbol}
	}
	res.Merged = merged
	res.After = merged.Len()

	seg, err := s.AppendSegment(merged)
	if err != nil {
		return res, err
	}
	res.Segment = seg
	return res, nil
}

func (s *Store) lock(symbol string) func() {
	s.mu.Lock()
	l, ok := s.locks[symbol]
	if !ok {
		l = &symbolLock{}
		s.locks[symbol] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, symbol)
		}
		s.mu.Unlock()
	}
}

// lockCount returns the number of symbols with a live lock entry.
func (s *Store) lockCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}

// segmentName is unique within a process and sorts by creation time.
func (s *Store) segmentName() string {
	t := s.now().UTC()
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s%s.%09d-%s.%s", segmentPrefix, t.Format("20060102T150405"), t.Nanosecond(), id, s.saver.Extension())
}

// syncDir makes the rename durable where the platform supports it.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	d.Sync()
	d.Close()
}
