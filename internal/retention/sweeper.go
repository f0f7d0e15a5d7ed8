// Package retention deletes sensor readings past their retention age,
// optionally archiving them to Parquet first.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/xtxerr/croft/config"
	"github.com/xtxerr/croft/internal/archive"
	"github.com/xtxerr/croft/internal/logging"
	"github.com/xtxerr/croft/internal/store"
)

// Config configures the retention sweeper.
type Config struct {
	// MaxAge is the age beyond which readings are deleted.
	MaxAge time.Duration

	// ArchiveEnabled writes expired readings to a Parquet file before deletion.
	ArchiveEnabled bool

	// ArchiveDir is where archive files are written.
	ArchiveDir string

	// ArchiveCompression selects the Parquet compression codec.
	ArchiveCompression archive.CompressionType
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() Config {
	return Config{
		MaxAge:             config.DefaultRetentionMaxAge,
		ArchiveEnabled:     false,
		ArchiveDir:         "archive",
		ArchiveCompression: archive.CompressionZstd,
	}
}

// Stats holds cumulative sweeper statistics.
type Stats struct {
	RunsTotal        int64
	ReadingsDeleted  int64
	ReadingsArchived int64
	LastRunTime      time.Time
	LastCutoff       time.Time
	Errors           int64
}

// SweepResult holds the result of a single sweep.
type SweepResult struct {
	Cutoff           time.Time
	ReadingsDeleted  int64
	ReadingsArchived int64
	ArchivePath      string
	Elapsed          time.Duration
}

// Sweeper deletes readings older than the configured age.
type Sweeper struct {
	mu     sync.Mutex
	store  *store.Store
	config Config
	logger *slog.Logger
	stats  Stats
}

// New creates a retention sweeper.
func New(st *store.Store, cfg Config) *Sweeper {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = config.DefaultRetentionMaxAge
	}
	if cfg.ArchiveDir == "" {
		cfg.ArchiveDir = "archive"
	}

	return &Sweeper{
		store:  st,
		config: cfg,
		logger: logging.Component("retention"),
	}
}

// Sweep deletes all readings older than MaxAge, archiving them first when
// archiving is enabled. Only one sweep runs at a time.
func (s *Sweeper) Sweep(ctx context.Context) (*SweepResult, error) {
	cutoff := time.Now().UTC().Add(-s.config.MaxAge)
	return s.SweepBefore(ctx, cutoff)
}

// SweepBefore deletes all readings strictly older than the given cutoff.
func (s *Sweeper) SweepBefore(ctx context.Context, cutoff time.Time) (*SweepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	result := &SweepResult{Cutoff: cutoff}

	if s.config.ArchiveEnabled {
		path, rows, err := s.archiveExpired(ctx, cutoff)
		if err != nil {
			s.stats.Errors++
			return nil, fmt.Errorf("archive expired readings: %w", err)
		}
		result.ArchivePath = path
		result.ReadingsArchived = rows
	}

	deleted, err := s.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.stats.Errors++
		return nil, fmt.Errorf("delete expired readings: %w", err)
	}

	result.ReadingsDeleted = deleted
	result.Elapsed = time.Since(start)

	s.stats.RunsTotal++
	s.stats.ReadingsDeleted += deleted
	s.stats.ReadingsArchived += result.ReadingsArchived
	s.stats.LastRunTime = start.UTC()
	s.stats.LastCutoff = cutoff

	s.logger.Info("retention sweep complete",
		"cutoff", cutoff.Format(time.RFC3339),
		"deleted", deleted,
		"archived", result.ReadingsArchived,
		"elapsed", result.Elapsed,
	)

	return result, nil
}

// DryRun reports how many readings a sweep would delete, without deleting.
func (s *Sweeper) DryRun(ctx context.Context) (int64, time.Time, error) {
	cutoff := time.Now().UTC().Add(-s.config.MaxAge)

	count, err := s.store.CountOlderThan(ctx, cutoff)
	if err != nil {
		return 0, cutoff, fmt.Errorf("count expired readings: %w", err)
	}
	return count, cutoff, nil
}

// archiveExpired writes expired readings to a timestamped Parquet file.
// Returns an empty path when nothing is expired.
func (s *Sweeper) archiveExpired(ctx context.Context, cutoff time.Time) (string, int64, error) {
	readings, err := s.store.ReadingsOlderThan(ctx, cutoff)
	if err != nil {
		return "", 0, err
	}
	if len(readings) == 0 {
		return "", 0, nil
	}

	name := fmt.Sprintf("readings-%s.parquet", time.Now().UTC().Format("20060102T150405Z"))
	path := filepath.Join(s.config.ArchiveDir, name)

	w, err := archive.NewWriter(path, archive.Options{Compression: s.config.ArchiveCompression})
	if err != nil {
		return "", 0, err
	}

	if err := w.Write(readings); err != nil {
		w.Close()
		return "", 0, err
	}
	if err := w.Close(); err != nil {
		return "", 0, err
	}

	return path, w.RowCount(), nil
}

// Stats returns a snapshot of cumulative statistics.
func (s *Sweeper) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
