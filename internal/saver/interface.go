package saver

import (
	"fmt"
	"io"
	"strings"

	"equities-daily/internal/model"
)

// SegmentSaver là abstraction cho encode/decode một segment của partition.
// Store chỉ phụ thuộc interface; file tạm, fsync và rename do store lo.
type SegmentSaver interface {
	// Save encodes records into w. The records must belong to one symbol.
	Save(records []model.CanonicalRecord, w io.Writer) error
	// Load decodes every record of the segment at path.
	Load(path string) ([]model.CanonicalRecord, error)
	Extension() string
}

// NewSegmentSaver creates an implementation by format. Only parquet is
// supported; segments of other formats would be invisible to Load.
func NewSegmentSaver(format string) (SegmentSaver, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "parquet":
		return ParquetSaver{Compression: CompressionZstd}, nil
	default:
		return nil, fmt.Errorf("saver: unsupported segment format %q (use: parquet)", format)
	}
}
