package schema

import (
	"fmt"
	"math"
	"strings"
	"time"

	"equities-daily/internal/errors"
	"equities-daily/internal/model"
)

// maxReportedKeys caps the keys listed in a DuplicateKeyError.
const maxReportedKeys = 5

// Validate checks field invariants of every record and that no two records
// share (symbol, date, source). All records must belong to one symbol.
func Validate(records []model.CanonicalRecord) error {
	if len(records) == 0 {
		return nil
	}
	symbol := records[0].Symbol
	seen := make(map[model.RecordKey]struct{}, len(records))
	var dups []string
	for i, r := range records {
		if err := checkRecord(r, i+1); err != nil {
			return err
		}
		if r.Symbol != symbol {
			return &errors.SchemaError{Symbol: symbol, Row: i + 1, Field: "symbol", Reason: fmt.Sprintf("mixed symbols %q and %q", symbol, r.Symbol)}
		}
		k := r.Key()
		if _, ok := seen[k]; ok {
			if len(dups) < maxReportedKeys {
				dups = append(dups, k.String())
			}
			continue
		}
		seen[k] = struct{}{}
	}
	if len(dups) > 0 {
		return &errors.DuplicateKeyError{Keys: dups}
	}
	return nil
}

// Enforce re-types records into canonical shape: dates become calendar days
// and ingestion timestamps UTC at microsecond precision, the resolution kept
// on disk. It returns a copy and fails on field-level violations. Uniqueness
// is left to the caller.
func Enforce(records []model.CanonicalRecord) ([]model.CanonicalRecord, error) {
	out := make([]model.CanonicalRecord, len(records))
	for i, r := range records {
		r.Symbol = strings.TrimSpace(r.Symbol)
		r.Source = strings.TrimSpace(r.Source)
		r.Date = model.Day(r.Date)
		r.IngestedAt = r.IngestedAt.UTC().Truncate(time.Microsecond)
		if err := checkRecord(r, i+1); err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

func checkRecord(r model.CanonicalRecord, row int) error {
	fail := func(field, reason string) error {
		return &errors.SchemaError{Symbol: r.Symbol, Row: row, Field: field, Reason: reason}
	}
	switch {
	case r.Symbol == "":
		return fail("symbol", "empty")
	case r.Source == "":
		return fail("source", "empty")
	case r.Date.IsZero():
		return fail(ColDate, "zero date")
	case !model.IsDay(r.Date):
		return fail(ColDate, "has a time of day: "+r.Date.String())
	case r.IngestedAt.IsZero():
		return fail("ingested_at", "zero timestamp")
	}
	for _, f := range []struct {
		name string
		v    float64
	}{
		{ColOpen, r.Open}, {ColHigh, r.High}, {ColLow, r.Low}, {ColClose, r.Close}, {ColVolume, r.Volume},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fail(f.name, "not finite")
		}
	}
	if r.AdjClose.Valid && (math.IsNaN(r.AdjClose.Float64) || math.IsInf(r.AdjClose.Float64, 0)) {
		return fail(ColAdjClose, "not finite")
	}
	return nil
}
