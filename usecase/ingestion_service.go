package usecase

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/satriahrh/voicememo/domain"
	"github.com/satriahrh/voicememo/domain/entities"
	"github.com/satriahrh/voicememo/domain/repositories"
	"github.com/satriahrh/voicememo/internal/pipeline"
)

// IngestionService stores a spoken recording as a searchable voice record
type IngestionService struct {
	audio   *audioProcessor
	store   repositories.VoiceRecordRepository
	archive repositories.AudioArchive
	runner  *pipeline.Runner
	logger  *zap.Logger
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(
	normalizer repositories.AudioNormalizer,
	stt repositories.SpeechToText,
	embedder repositories.Embedder,
	store repositories.VoiceRecordRepository,
	archive repositories.AudioArchive,
	runner *pipeline.Runner,
	logger *zap.Logger,
) *IngestionService {
	return &IngestionService{
		audio: &audioProcessor{
			normalizer:   normalizer,
			speechToText: stt,
			embedder:     embedder,
			dimension:    store.Dimension(),
			logger:       logger,
		},
		store:   store,
		archive: archive,
		runner:  runner,
		logger:  logger,
	}
}

// Ingest runs normalize, transcribe, embed, store and archive over the file
// at uploadPath. The upload and every intermediate file are removed before
// Ingest returns, whatever the outcome. The run is returned even on failure.
func (s *IngestionService) Ingest(ctx context.Context, uploadPath string) (*entities.IngestResult, *pipeline.Run, error) {
	scratch := pipeline.NewScratch(s.logger)
	scratch.Track(uploadPath)
	defer scratch.Release()

	state := &audioState{uploadPath: uploadPath}
	var record entities.VoiceRecord

	steps := s.audio.steps(state, scratch)
	steps = append(steps,
		pipeline.Step{
			ID:     StepStore,
			Target: pipeline.StateStored,
			Kind:   domain.KindStoreWrite,
			Execute: func(ctx context.Context) error {
				record = entities.VoiceRecord{
					Transcription:  state.transcription,
					Embedding:      state.embedding,
					AudioReference: entities.NewAudioReference(filepath.Ext(state.normalizedPath)),
				}
				id, err := s.store.Insert(ctx, &record)
				if err != nil {
					return err
				}
				record.ID = id
				return nil
			},
		},
		pipeline.Step{
			ID:     StepArchive,
			Target: pipeline.StateArchived,
			Kind:   domain.KindArchive,
			Execute: func(ctx context.Context) error {
				if err := s.archive.Put(ctx, record.AudioReference, state.normalizedPath); err != nil {
					// the row is kept; the reconciler reports it as an orphan
					return domain.E(domain.KindArchive, string(StepArchive),
						fmt.Errorf("record %d stored but audio %s not archived: %w", record.ID, record.AudioReference, err))
				}
				return nil
			},
		},
	)

	run, err := s.runner.Execute(ctx, pipeline.Definition{
		ID:      "ingest",
		Initial: pipeline.StateUploaded,
		Steps:   steps,
	})
	if err != nil {
		if domain.IsKind(err, domain.KindArchive) {
			s.logger.Error("Orphan voice record",
				zap.Int64("id", record.ID),
				zap.String("fileName", record.AudioReference),
				zap.Error(err))
		}
		return nil, run, err
	}

	s.logger.Info("Voice record ingested",
		zap.String("runID", run.ID),
		zap.Int64("id", record.ID),
		zap.String("fileName", record.AudioReference))

	return &entities.IngestResult{
		ID:                 record.ID,
		Transcription:      record.Transcription,
		EmbeddingDimension: len(record.Embedding),
	}, run, nil
}
