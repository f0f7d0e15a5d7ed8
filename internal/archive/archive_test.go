package archive

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/xtxerr/croft/internal/model"
)

// =============================================================================
// Test Helpers
// =============================================================================

func generateTestReadings(count int) []model.SensorReading {
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	readings := make([]model.SensorReading, count)
	for i := 0; i < count; i++ {
		readings[i] = model.SensorReading{
			ID:           int64(i + 1),
			Timestamp:    base.Add(time.Duration(i) * time.Minute),
			FieldID:      "field-A",
			SensorType:   "temperature",
			ReadingValue: 20.0 + float64(i),
			Unit:         "celsius",
		}
	}
	return readings
}

// =============================================================================
// Round Trip
// =============================================================================

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive", "readings.parquet")

	w, err := NewWriter(path, DefaultOptions())
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}

	want := generateTestReadings(25)
	if err := w.Write(want); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if got := w.RowCount(); got != 25 {
		t.Errorf("RowCount() = %d, want 25", got)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	defer r.Close()

	if got := r.NumRows(); got != 25 {
		t.Errorf("NumRows() = %d, want 25", got)
	}

	got, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("ReadAll() returned %d readings, want %d", len(got), len(want))
	}

	for i := range want {
		if got[i].ID != want[i].ID {
			t.Errorf("reading %d: ID = %d, want %d", i, got[i].ID, want[i].ID)
		}
		if !got[i].Timestamp.Equal(want[i].Timestamp) {
			t.Errorf("reading %d: Timestamp = %v, want %v", i, got[i].Timestamp, want[i].Timestamp)
		}
		if got[i].FieldID != want[i].FieldID {
			t.Errorf("reading %d: FieldID = %q, want %q", i, got[i].FieldID, want[i].FieldID)
		}
		if got[i].ReadingValue != want[i].ReadingValue {
			t.Errorf("reading %d: ReadingValue = %v, want %v", i, got[i].ReadingValue, want[i].ReadingValue)
		}
	}
}

func TestWriteAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readings.parquet")

	w, err := NewWriter(path, DefaultOptions())
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	err = w.Write(generateTestReadings(1))
	if !errors.Is(err, ErrWriterClosed) {
		t.Errorf("Write() after Close() error = %v, want ErrWriterClosed", err)
	}

	// Closing twice is harmless.
	if err := w.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestWriteEmptyBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readings.parquet")

	w, err := NewWriter(path, DefaultOptions())
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}
	defer w.Close()

	if err := w.Write(nil); err != nil {
		t.Errorf("Write(nil) error = %v", err)
	}
	if got := w.RowCount(); got != 0 {
		t.Errorf("RowCount() = %d, want 0", got)
	}
}

// =============================================================================
// Compression
// =============================================================================

func TestParseCompressionType(t *testing.T) {
	tests := []struct {
		input string
		want  CompressionType
	}{
		{"snappy", CompressionSnappy},
		{"zstd", CompressionZstd},
		{"gzip", CompressionGzip},
		{"none", CompressionNone},
		{"", CompressionNone},
		{"bogus", CompressionZstd},
	}

	for _, tt := range tests {
		if got := ParseCompressionType(tt.input); got != tt.want {
			t.Errorf("ParseCompressionType(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestRoundTripAllCompressions(t *testing.T) {
	for _, ct := range []CompressionType{CompressionNone, CompressionSnappy, CompressionZstd, CompressionGzip} {
		path := filepath.Join(t.TempDir(), "readings.parquet")

		w, err := NewWriter(path, Options{Compression: ct})
		if err != nil {
			t.Fatalf("compression %v: NewWriter() error = %v", ct, err)
		}
		if err := w.Write(generateTestReadings(10)); err != nil {
			t.Fatalf("compression %v: Write() error = %v", ct, err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("compression %v: Close() error = %v", ct, err)
		}

		r, err := NewReader(path)
		if err != nil {
			t.Fatalf("compression %v: NewReader() error = %v", ct, err)
		}
		got, err := r.ReadAll()
		r.Close()
		if err != nil {
			t.Fatalf("compression %v: ReadAll() error = %v", ct, err)
		}
		if len(got) != 10 {
			t.Errorf("compression %v: read %d readings, want 10", ct, len(got))
		}
	}
}
