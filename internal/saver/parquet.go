package saver

import (
	"fmt"
	"io"
	"time"

	"github.com/guregu/null/v6"
	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"equities-daily/internal/model"
)

// CompressionType selects the parquet page codec.
type CompressionType int

const (
	CompressionZstd CompressionType = iota
	CompressionSnappy
	CompressionNone
)

// ParseCompressionType parses zstd | snappy | none. Unknown values fall back to zstd.
func ParseCompressionType(s string) CompressionType {
	switch s {
	case "snappy":
		return CompressionSnappy
	case "none":
		return CompressionNone
	default:
		return CompressionZstd
	}
}

func (c CompressionType) codec() compress.Codec {
	switch c {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionNone:
		return &parquet.Uncompressed
	default:
		return &parquet.Zstd
	}
}

// SegmentRow is the on-disk layout of one record.
type SegmentRow struct {
	Date       int32    `parquet:"date,date"`
	Symbol     string   `parquet:"symbol,dict"`
	Open       float64  `parquet:"open"`
	High       float64  `parquet:"high"`
	Low        float64  `parquet:"low"`
	Close      float64  `parquet:"close"`
	AdjClose   *float64 `parquet:"adj_close,optional"`
	Volume     float64  `parquet:"volume"`
	Source     string   `parquet:"source,dict"`
	IngestedAt int64    `parquet:"ingested_at,timestamp(microsecond)"`
}

const secondsPerDay = 24 * 60 * 60

// RecordToRow converts a CanonicalRecord to a SegmentRow.
func RecordToRow(r model.CanonicalRecord) SegmentRow {
	return SegmentRow{
		Date:       int32(model.Day(r.Date).Unix() / secondsPerDay),
		Symbol:     r.Symbol,
		Open:       r.Open,
		High:       r.High,
		Low:        r.Low,
		Close:      r.Close,
		AdjClose:   r.AdjClose.Ptr(),
		Volume:     r.Volume,
		Source:     r.Source,
		IngestedAt: r.IngestedAt.UnixMicro(),
	}
}

// RowToRecord converts a SegmentRow to a CanonicalRecord.
func RowToRecord(row SegmentRow) model.CanonicalRecord {
	return model.CanonicalRecord{
		Date:       time.Unix(int64(row.Date)*secondsPerDay, 0).UTC(),
		Symbol:     row.Symbol,
		Open:       row.Open,
		High:       row.High,
		Low:        row.Low,
		Close:      row.Close,
		AdjClose:   null.FloatFromPtr(row.AdjClose),
		Volume:     row.Volume,
		Source:     row.Source,
		IngestedAt: time.UnixMicro(row.IngestedAt).UTC(),
	}
}

// ParquetSaver lưu segment dưới dạng Parquet.
type ParquetSaver struct {
	Compression CompressionType
}

func (ParquetSaver) Extension() string { return "parquet" }

func (s ParquetSaver) Save(records []model.CanonicalRecord, w io.Writer) error {
	rows := make([]SegmentRow, len(records))
	for i, r := range records {
		rows[i] = RecordToRow(r)
	}

	pw := parquet.NewGenericWriter[SegmentRow](w, parquet.Compression(s.Compression.codec()))
	if _, err := pw.Write(rows); err != nil {
		pw.Close()
		return fmt.Errorf("write rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

func (ParquetSaver) Load(path string) ([]model.CanonicalRecord, error) {
	rows, err := parquet.ReadFile[SegmentRow](path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	records := make([]model.CanonicalRecord, len(rows))
	for i, row := range rows {
		records[i] = RowToRecord(row)
	}
	return records, nil
}
