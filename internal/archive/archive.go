// Package archive writes expired sensor readings to Parquet files before the
// retention sweep deletes them from the store.
package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/xtxerr/croft/internal/model"
)

// ErrWriterClosed is returned when writing to a closed writer.
var ErrWriterClosed = errors.New("archive writer is closed")

// =============================================================================
// Options
// =============================================================================

// Options configures the Parquet output.
type Options struct {
	// Compression algorithm.
	Compression CompressionType
}

// CompressionType represents a Parquet compression algorithm.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZstd
	CompressionGzip
)

// DefaultOptions returns default archive options.
func DefaultOptions() Options {
	return Options{Compression: CompressionZstd}
}

// ParseCompressionType parses a compression type string.
func ParseCompressionType(s string) CompressionType {
	switch s {
	case "snappy":
		return CompressionSnappy
	case "zstd":
		return CompressionZstd
	case "gzip":
		return CompressionGzip
	case "none", "":
		return CompressionNone
	default:
		return CompressionZstd
	}
}

func getCompression(ct CompressionType) compress.Codec {
	switch ct {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// =============================================================================
// Row Format
// =============================================================================

// ReadingRow is the Parquet representation of a sensor reading.
type ReadingRow struct {
	ID           int64   `parquet:"id"`
	TimestampMs  int64   `parquet:"timestamp_ms"`
	FieldID      string  `parquet:"field_id,zstd"`
	SensorType   string  `parquet:"sensor_type,zstd"`
	ReadingValue float64 `parquet:"reading_value"`
	Unit         string  `parquet:"unit,zstd"`
}

// ReadingToRow converts a reading to its Parquet row.
func ReadingToRow(r *model.SensorReading) ReadingRow {
	return ReadingRow{
		ID:           r.ID,
		TimestampMs:  r.Timestamp.UnixMilli(),
		FieldID:      r.FieldID,
		SensorType:   r.SensorType,
		ReadingValue: r.ReadingValue,
		Unit:         r.Unit,
	}
}

// RowToReading converts a Parquet row back to a reading.
func RowToReading(row *ReadingRow) model.SensorReading {
	return model.SensorReading{
		ID:           row.ID,
		Timestamp:    time.UnixMilli(row.TimestampMs).UTC(),
		FieldID:      row.FieldID,
		SensorType:   row.SensorType,
		ReadingValue: row.ReadingValue,
		Unit:         row.Unit,
	}
}

// =============================================================================
// Writer
// =============================================================================

// Writer writes readings to a Parquet file.
type Writer struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	writer   *parquet.GenericWriter[ReadingRow]
	rowCount int64
	closed   bool
}

// NewWriter creates a Parquet writer at the given path, creating parent
// directories as needed.
func NewWriter(path string, opts Options) (*Writer, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	writer := parquet.NewGenericWriter[ReadingRow](f,
		parquet.Compression(getCompression(opts.Compression)))

	return &Writer{
		path:   path,
		file:   f,
		writer: writer,
	}, nil
}

// Write appends readings to the file.
func (w *Writer) Write(readings []model.SensorReading) error {
	if len(readings) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}

	rows := make([]ReadingRow, len(readings))
	for i := range readings {
		rows[i] = ReadingToRow(&readings[i])
	}

	n, err := w.writer.Write(rows)
	if err != nil {
		return fmt.Errorf("write rows: %w", err)
	}

	w.rowCount += int64(n)
	return nil
}

// Close flushes and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close writer: %w", err)
	}
	return w.file.Close()
}

// RowCount returns the number of rows written.
func (w *Writer) RowCount() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rowCount
}

// Path returns the file path.
func (w *Writer) Path() string {
	return w.path
}

// =============================================================================
// Reader
// =============================================================================

// Reader reads readings back from a Parquet file.
type Reader struct {
	file   *os.File
	reader *parquet.GenericReader[ReadingRow]
	path   string
}

// NewReader opens a Parquet archive file.
func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	reader := parquet.NewGenericReader[ReadingRow](f, parquet.ReadBufferSize(1024*1024))

	return &Reader{
		file:   f,
		reader: reader,
		path:   path,
	}, nil
}

// ReadAll reads every reading in the file.
func (r *Reader) ReadAll() ([]model.SensorReading, error) {
	numRows := r.reader.NumRows()
	rows := make([]ReadingRow, numRows)

	n, err := r.reader.Read(rows)
	// Reading the final row group reports EOF alongside the rows.
	if err != nil && err != io.EOF {
		return nil, err
	}

	readings := make([]model.SensorReading, n)
	for i := 0; i < n; i++ {
		readings[i] = RowToReading(&rows[i])
	}
	return readings, nil
}

// NumRows returns the total number of rows in the file.
func (r *Reader) NumRows() int64 {
	return r.reader.NumRows()
}

// Close closes the reader.
func (r *Reader) Close() error {
	if err := r.reader.Close(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// Path returns the file path.
func (r *Reader) Path() string {
	return r.path
}
