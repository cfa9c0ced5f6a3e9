package model

import "time"

// Partition is the ordered set of records stored for exactly one symbol.
type Partition struct {
	Symbol  string
	Records []CanonicalRecord
}

// Empty reports whether the symbol has never been ingested.
func (p Partition) Empty() bool { return len(p.Records) == 0 }

// Len returns the number of rows.
func (p Partition) Len() int { return len(p.Records) }

// LastDate returns the most recent date; records must be sorted.
func (p Partition) LastDate() (time.Time, bool) {
	if len(p.Records) == 0 {
		return time.Time{}, false
	}
	return p.Records[len(p.Records)-1].Date, true
}

// FirstDate returns the oldest date; records must be sorted.
func (p Partition) FirstDate() (time.Time, bool) {
	if len(p.Records) == 0 {
		return time.Time{}, false
	}
	return p.Records[0].Date, true
}
