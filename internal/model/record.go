package model

import (
	"time"

	"github.com/guregu/null/v6"
)

// DateLayout is the canonical day format used in logs, reports and file names.
const DateLayout = "2006-01-02"

// CanonicalRecord is one daily bar for one symbol from one provider.
// Dùng chung cho schema, merge, store và report.
type CanonicalRecord struct {
	Date       time.Time // calendar day, 00:00 UTC
	Symbol     string
	Open       float64
	High       float64
	Low        float64
	Close      float64
	AdjClose   null.Float // null when the provider does not publish it
	Volume     float64
	Source     string
	IngestedAt time.Time
}

// RecordKey identifies a row inside a partition.
type RecordKey struct {
	Symbol string
	Date   time.Time
	Source string
}

// Key returns the (symbol, date, source) uniqueness key.
func (r CanonicalRecord) Key() RecordKey {
	return RecordKey{Symbol: r.Symbol, Date: r.Date, Source: r.Source}
}

func (k RecordKey) String() string {
	return k.Symbol + "/" + k.Date.Format(DateLayout) + "/" + k.Source
}

// Day strips time of day and zone from t, keeping the wall-clock calendar day.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// IsDay reports whether t is already a normalized calendar day.
func IsDay(t time.Time) bool {
	return t.Location() == time.UTC && t.Equal(Day(t))
}
