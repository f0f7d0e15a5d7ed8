package retention

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xtxerr/croft/internal/archive"
	"github.com/xtxerr/croft/internal/model"
	"github.com/xtxerr/croft/internal/store"
)

// =============================================================================
// Test Helpers
// =============================================================================

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()

	cfg := store.DefaultConfig()
	cfg.Path = "" // in-memory

	st, err := store.New(cfg)
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// seedAges inserts one reading per age, timed relative to now.
func seedAges(t *testing.T, st *store.Store, ages ...time.Duration) {
	t.Helper()

	now := time.Now().UTC()
	inputs := make([]model.ReadingInput, len(ages))
	for i, age := range ages {
		inputs[i] = model.ReadingInput{
			Timestamp:    now.Add(-age),
			FieldID:      "field-1",
			SensorType:   "temperature",
			ReadingValue: float64(i),
			Unit:         "celsius",
		}
	}
	if _, err := st.InsertReadings(context.Background(), inputs); err != nil {
		t.Fatalf("InsertReadings() error = %v", err)
	}
}

// =============================================================================
// Sweep
// =============================================================================

func TestSweep(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	// Two expired readings, two inside the window.
	seedAges(t, st,
		120*24*time.Hour,
		91*24*time.Hour,
		89*24*time.Hour,
		time.Hour,
	)

	sw := New(st, Config{MaxAge: 90 * 24 * time.Hour})

	result, err := sw.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if result.ReadingsDeleted != 2 {
		t.Errorf("ReadingsDeleted = %d, want 2", result.ReadingsDeleted)
	}
	if result.ArchivePath != "" {
		t.Errorf("ArchivePath = %q, want empty (archiving disabled)", result.ArchivePath)
	}

	count, err := st.CountReadings(ctx)
	if err != nil {
		t.Fatalf("CountReadings() error = %v", err)
	}
	if count != 2 {
		t.Errorf("remaining readings = %d, want 2", count)
	}

	stats := sw.Stats()
	if stats.RunsTotal != 1 {
		t.Errorf("Stats().RunsTotal = %d, want 1", stats.RunsTotal)
	}
	if stats.ReadingsDeleted != 2 {
		t.Errorf("Stats().ReadingsDeleted = %d, want 2", stats.ReadingsDeleted)
	}
}

func TestSweepNothingExpired(t *testing.T) {
	st := setupTestStore(t)

	seedAges(t, st, time.Hour, 24*time.Hour)

	sw := New(st, Config{MaxAge: 90 * 24 * time.Hour})

	result, err := sw.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if result.ReadingsDeleted != 0 {
		t.Errorf("ReadingsDeleted = %d, want 0", result.ReadingsDeleted)
	}
}

func TestSweepWithArchive(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	seedAges(t, st,
		100*24*time.Hour,
		95*24*time.Hour,
		time.Hour,
	)

	dir := t.TempDir()
	sw := New(st, Config{
		MaxAge:         90 * 24 * time.Hour,
		ArchiveEnabled: true,
		ArchiveDir:     dir,
	})

	result, err := sw.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if result.ReadingsDeleted != 2 {
		t.Errorf("ReadingsDeleted = %d, want 2", result.ReadingsDeleted)
	}
	if result.ReadingsArchived != 2 {
		t.Errorf("ReadingsArchived = %d, want 2", result.ReadingsArchived)
	}
	if result.ArchivePath == "" {
		t.Fatal("ArchivePath is empty, want a Parquet file path")
	}
	if filepath.Dir(result.ArchivePath) != dir {
		t.Errorf("ArchivePath dir = %q, want %q", filepath.Dir(result.ArchivePath), dir)
	}
	if !strings.HasSuffix(result.ArchivePath, ".parquet") {
		t.Errorf("ArchivePath = %q, want .parquet suffix", result.ArchivePath)
	}

	// Archived rows read back intact.
	r, err := archive.NewReader(result.ArchivePath)
	if err != nil {
		t.Fatalf("archive.NewReader() error = %v", err)
	}
	defer r.Close()

	archived, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(archived) != 2 {
		t.Fatalf("archive holds %d readings, want 2", len(archived))
	}
	for _, reading := range archived {
		if reading.FieldID != "field-1" {
			t.Errorf("archived FieldID = %q, want %q", reading.FieldID, "field-1")
		}
	}
}

func TestSweepArchiveSkippedWhenEmpty(t *testing.T) {
	st := setupTestStore(t)

	seedAges(t, st, time.Hour)

	dir := t.TempDir()
	sw := New(st, Config{
		MaxAge:         90 * 24 * time.Hour,
		ArchiveEnabled: true,
		ArchiveDir:     dir,
	})

	result, err := sw.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if result.ArchivePath != "" {
		t.Errorf("ArchivePath = %q, want empty when nothing expired", result.ArchivePath)
	}

	// No stray files.
	matches, err := filepath.Glob(filepath.Join(dir, "*.parquet"))
	if err != nil {
		t.Fatalf("Glob() error = %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("archive dir holds %d files, want 0", len(matches))
	}
}

// =============================================================================
// DryRun
// =============================================================================

func TestDryRun(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	seedAges(t, st,
		120*24*time.Hour,
		91*24*time.Hour,
		time.Hour,
	)

	sw := New(st, Config{MaxAge: 90 * 24 * time.Hour})

	count, cutoff, err := sw.DryRun(ctx)
	if err != nil {
		t.Fatalf("DryRun() error = %v", err)
	}
	if count != 2 {
		t.Errorf("DryRun() count = %d, want 2", count)
	}
	if cutoff.IsZero() {
		t.Error("DryRun() cutoff is zero")
	}

	// Nothing deleted.
	total, err := st.CountReadings(ctx)
	if err != nil {
		t.Fatalf("CountReadings() error = %v", err)
	}
	if total != 3 {
		t.Errorf("readings after DryRun = %d, want 3", total)
	}

	stats := sw.Stats()
	if stats.RunsTotal != 0 {
		t.Errorf("Stats().RunsTotal = %d, want 0 after DryRun", stats.RunsTotal)
	}
}
