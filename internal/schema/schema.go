// Package schema turns provider CSV into canonical records and enforces the
// column, type and uniqueness invariants of a partition.
package schema

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/guregu/null/v6"

	"equities-daily/internal/errors"
	"equities-daily/internal/model"
)

// Canonical column names.
const (
	ColDate     = "date"
	ColOpen     = "open"
	ColHigh     = "high"
	ColLow      = "low"
	ColClose    = "close"
	ColAdjClose = "adj_close"
	ColVolume   = "volume"
)

// headerOrder is the semantic order the provider header must follow.
var headerOrder = []string{ColDate, ColOpen, ColHigh, ColLow, ColClose, ColVolume}

// ColumnMap maps a lower-cased provider header to a canonical column.
type ColumnMap map[string]string

// StooqColumns is the Stooq daily CSV layout.
var StooqColumns = ColumnMap{
	"date":      ColDate,
	"open":      ColOpen,
	"high":      ColHigh,
	"low":       ColLow,
	"close":     ColClose,
	"volume":    ColVolume,
	"adj close": ColAdjClose,
	"adj_close": ColAdjClose,
}

// RowPolicy decides what a row that cannot be coerced does to its batch.
type RowPolicy int

const (
	// RejectRow drops the row and reports it in Result.Rejected.
	RejectRow RowPolicy = iota
	// RejectBatch fails the whole batch on the first bad row.
	RejectBatch
)

func (p RowPolicy) String() string {
	if p == RejectBatch {
		return "reject_batch"
	}
	return "reject_row"
}

// ParseRowPolicy accepts reject_row | reject_batch.
func ParseRowPolicy(s string) (RowPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reject_row", "row":
		return RejectRow, nil
	case "reject_batch", "batch":
		return RejectBatch, nil
	default:
		return RejectRow, fmt.Errorf("unknown row policy %q (use: reject_row, reject_batch)", s)
	}
}

// Options configures Normalize. The zero value uses Stooq columns and RejectRow.
type Options struct {
	Columns ColumnMap
	Policy  RowPolicy
}

// RowError is a data row dropped under RejectRow.
type RowError struct {
	Row int // 1-based data row (header excluded)
	Err error
}

// Result is the outcome of Normalize.
type Result struct {
	Records  []model.CanonicalRecord
	Rejected []RowError
}

// CheckHeader verifies that the first line of raw carries the expected
// date, open, high, low, close, volume columns in that order.
func CheckHeader(raw string, cols ColumnMap) error {
	line := strings.TrimPrefix(raw, "\ufeff")
	if i := strings.IndexAny(line, "\r\n"); i >= 0 {
		line = line[:i]
	}
	header, err := csv.NewReader(strings.NewReader(line)).Read()
	if err != nil {
		return &errors.SchemaError{Reason: fmt.Sprintf("unreadable header: %v", err)}
	}
	_, err = headerIndex(header, cols)
	return err
}

// headerIndex resolves canonical column -> field position.
func headerIndex(header []string, cols ColumnMap) (map[string]int, error) {
	if cols == nil {
		cols = StooqColumns
	}
	idx := make(map[string]int, len(header))
	var ordered []string
	for i, h := range header {
		name, ok := cols[strings.ToLower(strings.TrimSpace(h))]
		if !ok {
			continue
		}
		if _, dup := idx[name]; dup {
			return nil, &errors.SchemaError{Field: name, Reason: "column appears twice in header"}
		}
		idx[name] = i
		if name != ColAdjClose {
			ordered = append(ordered, name)
		}
	}
	if len(ordered) != len(headerOrder) {
		return nil, &errors.SchemaError{Reason: fmt.Sprintf("unexpected header %q, want %s", strings.Join(header, ","), strings.Join(headerOrder, ","))}
	}
	for i, name := range headerOrder {
		if ordered[i] != name {
			return nil, &errors.SchemaError{Reason: fmt.Sprintf("unexpected header %q, want %s", strings.Join(header, ","), strings.Join(headerOrder, ","))}
		}
	}
	return idx, nil
}

// Normalize parses raw provider text into canonical records for symbol and
// validates the batch. Rows that cannot be coerced follow opts.Policy.
func Normalize(raw, symbol, source string, ingestedAt time.Time, opts Options) (Result, error) {
	var res Result
	if strings.TrimSpace(symbol) == "" {
		return res, &errors.SchemaError{Field: "symbol", Reason: "canonical symbol is empty"}
	}
	if strings.TrimSpace(source) == "" {
		return res, &errors.SchemaError{Symbol: symbol, Field: "source", Reason: "source is empty"}
	}

	r := csv.NewReader(strings.NewReader(strings.TrimPrefix(raw, "\ufeff")))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return res, &errors.SchemaError{Symbol: symbol, Reason: "empty input"}
	}
	if err != nil {
		return res, &errors.SchemaError{Symbol: symbol, Reason: fmt.Sprintf("read header: %v", err)}
	}
	idx, err := headerIndex(header, opts.Columns)
	if err != nil {
		var se *errors.SchemaError
		if errors.As(err, &se) {
			se.Symbol = symbol
		}
		return res, err
	}

	ingestedAt = ingestedAt.UTC().Truncate(time.Microsecond)
	for row := 1; ; row++ {
		fields, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{}, &errors.SchemaError{Symbol: symbol, Row: row, Reason: err.Error()}
		}
		rec, err := parseRow(fields, idx, symbol, source, ingestedAt, row)
		if err != nil {
			if opts.Policy == RejectBatch {
				return Result{}, err
			}
			res.Rejected = append(res.Rejected, RowError{Row: row, Err: err})
			continue
		}
		res.Records = append(res.Records, rec)
	}

	if err := Validate(res.Records); err != nil {
		return res, err
	}
	return res, nil
}

func parseRow(fields []string, idx map[string]int, symbol, source string, ingestedAt time.Time, row int) (model.CanonicalRecord, error) {
	get := func(col string) (string, bool) {
		i, ok := idx[col]
		if !ok || i >= len(fields) {
			return "", false
		}
		return strings.TrimSpace(fields[i]), true
	}
	rowErr := func(col, reason string) error {
		return &errors.SchemaError{Symbol: symbol, Row: row, Field: col, Reason: reason}
	}

	rec := model.CanonicalRecord{Symbol: symbol, Source: source, IngestedAt: ingestedAt}

	ds, ok := get(ColDate)
	if !ok || ds == "" {
		return rec, rowErr(ColDate, "missing value")
	}
	d, err := ParseDay(ds)
	if err != nil {
		return rec, rowErr(ColDate, err.Error())
	}
	rec.Date = d

	for _, f := range []struct {
		col string
		dst *float64
	}{
		{ColOpen, &rec.Open},
		{ColHigh, &rec.High},
		{ColLow, &rec.Low},
		{ColClose, &rec.Close},
		{ColVolume, &rec.Volume},
	} {
		s, ok := get(f.col)
		if !ok || s == "" {
			return rec, rowErr(f.col, "missing value")
		}
		v, err := parseFloat(s)
		if err != nil {
			return rec, rowErr(f.col, err.Error())
		}
		*f.dst = v
	}

	if s, ok := get(ColAdjClose); ok && s != "" {
		v, err := parseFloat(s)
		if err != nil {
			return rec, rowErr(ColAdjClose, err.Error())
		}
		rec.AdjClose = null.FloatFrom(v)
	}
	return rec, nil
}

func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not finite: %q", s)
	}
	return v, nil
}

var dayLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"20060102",
}

// ParseDay parses a provider date and keeps only the wall-clock calendar day.
// Time of day and zone offset are dropped.
func ParseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dayLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return model.Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
