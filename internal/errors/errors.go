// Package errors defines the error taxonomy of an ingestion run.
//
// Every failure is scoped to one symbol and one stage. Typed errors carry the
// details needed by the run report; Kind classifies them for the summary and
// for deciding whether a rerun can help.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// New is a convenience wrapper for errors.New
var New = errors.New

// Kind names an error class in reports.
type Kind string

const (
	KindFetchExhausted Kind = "fetch_exhausted"
	KindSchema         Kind = "schema"
	KindDuplicateKey   Kind = "duplicate_key"
	KindStorageIO      Kind = "storage_io"
	KindMergeInvariant Kind = "merge_invariant"
	KindMissingMapping Kind = "missing_mapping"
	KindCanceled       Kind = "canceled"
	KindUnknown        Kind = "unknown"
)

// Stage names the step of a symbol's ingestion that failed.
type Stage string

const (
	StageMapping   Stage = "mapping"
	StageFetch     Stage = "fetch"
	StageNormalize Stage = "normalize"
	StageMerge     Stage = "merge"
	StageStore     Stage = "store"
	StageCanceled  Stage = "canceled" // skipped after the run was canceled
)

// ============================================================================
// Typed errors
// ============================================================================

// FetchExhaustedError is returned when every fetch attempt for a symbol failed.
type FetchExhaustedError struct {
	Symbol   string
	Attempts int
	Err      error // last attempt's cause
}

func (e *FetchExhaustedError) Error() string {
	return fmt.Sprintf("fetch %s: exhausted %d attempts: %v", e.Symbol, e.Attempts, e.Err)
}

func (e *FetchExhaustedError) Unwrap() error { return e.Err }

// SchemaError reports a malformed batch or row.
type SchemaError struct {
	Symbol string
	Row    int // 1-based data row, 0 when not row specific
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	var b strings.Builder
	b.WriteString("schema")
	if e.Symbol != "" {
		b.WriteString(" ")
		b.WriteString(e.Symbol)
	}
	if e.Row > 0 {
		fmt.Fprintf(&b, " row %d", e.Row)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " field %q", e.Field)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	return b.String()
}

// DuplicateKeyError reports rows sharing (symbol, date, source) in one batch.
type DuplicateKeyError struct {
	Keys []string // first few offending keys, "SYM/2024-01-02/stooq"
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate rows for (symbol,date,source): %s", strings.Join(e.Keys, ", "))
}

// StorageIOError wraps a filesystem failure of the partition store.
type StorageIOError struct {
	Symbol string
	Op     string // load, list, write, rename, mkdir
	Path   string
	Err    error
}

func (e *StorageIOError) Error() string {
	return fmt.Sprintf("storage %s %s (%s): %v", e.Op, e.Symbol, e.Path, e.Err)
}

func (e *StorageIOError) Unwrap() error { return e.Err }

// MergeInvariantError means the merge engine produced an inconsistent
// partition. It indicates a bug, never bad input, and is not retried.
type MergeInvariantError struct {
	Symbol string
	Reason string
	Err    error
}

func (e *MergeInvariantError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("merge invariant violated for %s: %s: %v", e.Symbol, e.Reason, e.Err)
	}
	return fmt.Sprintf("merge invariant violated for %s: %s", e.Symbol, e.Reason)
}

func (e *MergeInvariantError) Unwrap() error { return e.Err }

// MissingMappingError is returned when a canonical symbol has no provider id.
type MissingMappingError struct {
	Symbol   string
	Provider string
}

func (e *MissingMappingError) Error() string {
	return fmt.Sprintf("missing %s mapping for symbol: %s", e.Provider, e.Symbol)
}

// StageError attributes an error to a symbol and stage.
type StageError struct {
	Symbol string
	Stage  Stage
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s [%s]: %v", e.Symbol, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// AtStage wraps err with symbol and stage. Nil stays nil.
func AtStage(symbol string, stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Symbol: symbol, Stage: stage, Err: err}
}

// ============================================================================
// Classification
// ============================================================================

// KindOf classifies err. The most specific typed error in the chain wins.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var (
		fe *FetchExhaustedError
		de *DuplicateKeyError
		se *SchemaError
		ie *StorageIOError
		me *MergeInvariantError
		mm *MissingMappingError
	)
	switch {
	case As(err, &me):
		return KindMergeInvariant
	case As(err, &mm):
		return KindMissingMapping
	case As(err, &de):
		return KindDuplicateKey
	case As(err, &se):
		return KindSchema
	case As(err, &fe):
		return KindFetchExhausted
	case As(err, &ie):
		return KindStorageIO
	case Is(err, context.Canceled), Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindUnknown
	}
}

// StageOf returns the stage recorded on err, or "" if none.
func StageOf(err error) Stage {
	var st *StageError
	if As(err, &st) {
		return st.Stage
	}
	return ""
}

// IsRetryable reports whether rerunning the ingestion later may succeed.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindFetchExhausted, KindStorageIO, KindCanceled:
		return true
	default:
		return false
	}
}
