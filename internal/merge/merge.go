// Package merge reconciles a stored partition with newly fetched records.
//
// The conflict rule is keep-latest: for one (symbol, date, source) the row
// with the latest IngestedAt wins, older observations are dropped. Different
// sources for the same day coexist. Merging records already stored (same
// IngestedAt) is a no-op.
package merge

import (
	"sort"

	"equities-daily/internal/errors"
	"equities-daily/internal/model"
	"equities-daily/internal/schema"
)

// Merge combines existing and incoming into one sorted, deduplicated,
// schema-valid partition. incoming is coerced to the stored form (UTC
// midnight dates, microsecond ingestion times) before keys are compared; a
// row that cannot be coerced is returned as a schema error.
func Merge(existing model.Partition, incoming []model.CanonicalRecord) (model.Partition, error) {
	incoming, err := schema.Enforce(incoming)
	if err != nil {
		return model.Partition{}, err
	}

	symbol := existing.Symbol
	if symbol == "" && len(incoming) > 0 {
		symbol = incoming[0].Symbol
	}
	for _, r := range incoming {
		if r.Symbol != symbol {
			return model.Partition{}, &errors.MergeInvariantError{Symbol: symbol, Reason: "incoming record for symbol " + r.Symbol}
		}
	}

	var working []model.CanonicalRecord
	if existing.Empty() {
		// nothing to reconcile, only order
		working = make([]model.CanonicalRecord, len(incoming))
		copy(working, incoming)
		sort.SliceStable(working, func(i, j int) bool {
			if !working[i].Date.Equal(working[j].Date) {
				return working[i].Date.Before(working[j].Date)
			}
			return working[i].Source < working[j].Source
		})
	} else {
		working = make([]model.CanonicalRecord, 0, len(existing.Records)+len(incoming))
		working = append(working, existing.Records...)
		working = append(working, incoming...)
		working = Collapse(working)
	}

	out, err := schema.Enforce(working)
	if err != nil {
		return model.Partition{}, &errors.MergeInvariantError{Symbol: symbol, Reason: "merged rows fail schema", Err: err}
	}
	if err := schema.Validate(out); err != nil {
		return model.Partition{}, &errors.MergeInvariantError{Symbol: symbol, Reason: "duplicates remain after collapse", Err: err}
	}
	return model.Partition{Symbol: symbol, Records: out}, nil
}

// Collapse orders records by (date, source, ingestedAt), keeps the latest
// ingested row per (symbol, date, source) and returns the survivors sorted by
// date, then source. Among equal IngestedAt the later input position wins.
// The input slice is reordered in place.
func Collapse(records []model.CanonicalRecord) []model.CanonicalRecord {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		return a.IngestedAt.Before(b.IngestedAt)
	})

	out := make([]model.CanonicalRecord, 0, len(records))
	for i, r := range records {
		if i+1 < len(records) && sameKey(records[i+1], r) {
			continue // superseded by a later observation
		}
		out = append(out, r)
	}
	return out
}

func sameKey(a, b model.CanonicalRecord) bool {
	return a.Symbol == b.Symbol && a.Source == b.Source && a.Date.Equal(b.Date)
}
