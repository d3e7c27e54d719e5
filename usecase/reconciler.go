package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/voicememo/domain/repositories"
)

// DefaultOrphanGrace keeps recently archived files out of pruning so an
// in-flight ingestion is never raced
const DefaultOrphanGrace = 10 * time.Minute

// Report is the outcome of one reconciliation
type Report struct {
	Rows  int `json:"rows"`
	Files int `json:"files"`
	// OrphanRows are store references with no archived audio
	OrphanRows []string `json:"orphan_rows"`
	// OrphanFiles are archived names no record refers to
	OrphanFiles []string `json:"orphan_files"`
	// Pruned is the subset of OrphanFiles deleted by this run
	Pruned []string `json:"pruned"`
}

// Consistent reports whether store and archive agree
func (r *Report) Consistent() bool {
	return len(r.OrphanRows) == 0 && len(r.OrphanFiles) == 0
}

// Reconciler compares the voice store with the audio archive
type Reconciler struct {
	store   repositories.VoiceRecordRepository
	archive repositories.AudioArchive
	grace   time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// NewReconciler creates a reconciler. A negative grace uses DefaultOrphanGrace.
func NewReconciler(store repositories.VoiceRecordRepository, archive repositories.AudioArchive, grace time.Duration, logger *zap.Logger) *Reconciler {
	if grace < 0 {
		grace = DefaultOrphanGrace
	}
	return &Reconciler{
		store:   store,
		archive: archive,
		grace:   grace,
		now:     time.Now,
		logger:  logger,
	}
}

// Reconcile lists both sides and reports the differences. Orphan rows are
// only reported. With prune, orphan files older than the grace period are
// deleted.
func (r *Reconciler) Reconcile(ctx context.Context, prune bool) (*Report, error) {
	refs, err := r.store.ListAudioReferences(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list stored references: %w", err)
	}
	files, err := r.archive.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list archive: %w", err)
	}

	report := &Report{
		Rows:        len(refs),
		Files:       len(files),
		OrphanRows:  []string{},
		OrphanFiles: []string{},
		Pruned:      []string{},
	}

	archived := make(map[string]struct{}, len(files))
	for _, f := range files {
		archived[f.Name] = struct{}{}
	}
	referenced := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		referenced[ref] = struct{}{}
		if _, ok := archived[ref]; !ok {
			report.OrphanRows = append(report.OrphanRows, ref)
			r.logger.Warn("Voice record has no archived audio", zap.String("fileName", ref))
		}
	}

	cutoff := r.now().Add(-r.grace)
	for _, f := range files {
		if _, ok := referenced[f.Name]; ok {
			continue
		}
		report.OrphanFiles = append(report.OrphanFiles, f.Name)
		if !prune || f.ModifiedAt.After(cutoff) {
			continue
		}
		if err := r.archive.Delete(ctx, f.Name); err != nil {
			r.logger.Error("Failed to prune orphan audio", zap.String("fileName", f.Name), zap.Error(err))
			continue
		}
		report.Pruned = append(report.Pruned, f.Name)
	}

	r.logger.Info("Reconciliation completed",
		zap.Int("rows", report.Rows),
		zap.Int("files", report.Files),
		zap.Int("orphanRows", len(report.OrphanRows)),
		zap.Int("orphanFiles", len(report.OrphanFiles)),
		zap.Int("pruned", len(report.Pruned)))

	return report, nil
}
