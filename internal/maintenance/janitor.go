// Package maintenance runs periodic housekeeping next to the HTTP server.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/voicememo/usecase"
)

// Defaults for the janitor loop
const (
	DefaultInterval     = 30 * time.Minute
	DefaultInitialDelay = 1 * time.Minute
	DefaultScratchAge   = 1 * time.Hour
	runTimeout          = 5 * time.Minute
)

// Reconciler compares the voice store with the archive
type Reconciler interface {
	Reconcile(ctx context.Context, prune bool) (*usecase.Report, error)
}

// Config configures the janitor
type Config struct {
	// Interval between runs. Zero disables the janitor.
	Interval     time.Duration
	InitialDelay time.Duration
	// UploadDir is swept of files older than ScratchMaxAge
	UploadDir     string
	ScratchMaxAge time.Duration
}

// Janitor reports store/archive inconsistencies and sweeps scratch files
// left behind by crashed runs
type Janitor struct {
	reconciler Reconciler
	config     Config
	now        func() time.Time
	logger     *zap.Logger
}

// NewJanitor creates a new janitor
func NewJanitor(reconciler Reconciler, config Config, logger *zap.Logger) *Janitor {
	if config.InitialDelay <= 0 {
		config.InitialDelay = DefaultInitialDelay
	}
	if config.ScratchMaxAge <= 0 {
		config.ScratchMaxAge = DefaultScratchAge
	}
	return &Janitor{
		reconciler: reconciler,
		config:     config,
		now:        time.Now,
		logger:     logger,
	}
}

// Run loops until ctx is done. It returns nil on cancellation.
func (j *Janitor) Run(ctx context.Context) error {
	if j.config.Interval <= 0 {
		j.logger.Info("Janitor disabled")
		return nil
	}

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	// Run initial pass shortly after startup
	initialTimer := time.NewTimer(j.config.InitialDelay)
	defer initialTimer.Stop()

	j.logger.Info("Janitor started", zap.Duration("interval", j.config.Interval))
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("Janitor stopped")
			return nil
		case <-initialTimer.C:
			j.RunOnce(ctx)
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single reconcile report and scratch sweep
func (j *Janitor) RunOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	if j.reconciler != nil {
		report, err := j.reconciler.Reconcile(ctx, false)
		if err != nil {
			j.logger.Error("Reconciliation failed", zap.Error(err))
		} else if !report.Consistent() {
			j.logger.Warn("Store and archive disagree",
				zap.Strings("orphanRows", report.OrphanRows),
				zap.Strings("orphanFiles", report.OrphanFiles))
		}
	}

	if j.config.UploadDir != "" {
		removed, err := j.SweepScratch()
		if err != nil {
			j.logger.Error("Scratch sweep failed", zap.Error(err))
		}
		if removed > 0 {
			j.logger.Info("Removed stale scratch files", zap.Int("count", removed))
		}
	}
}

// SweepScratch deletes regular files in the upload directory older than
// ScratchMaxAge and returns how many were removed
func (j *Janitor) SweepScratch() (int, error) {
	entries, err := os.ReadDir(j.config.UploadDir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read upload directory: %w", err)
	}

	cutoff := j.now().Add(-j.config.ScratchMaxAge)
	removed := 0
	var errs []error
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(j.config.UploadDir, entry.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
