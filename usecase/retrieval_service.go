package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/satriahrh/voicememo/domain"
	"github.com/satriahrh/voicememo/domain/entities"
	"github.com/satriahrh/voicememo/domain/repositories"
	"github.com/satriahrh/voicememo/internal/pipeline"
)

// RetrievalService finds stored recordings whose meaning is closest to a
// spoken query
type RetrievalService struct {
	audio   *audioProcessor
	store   repositories.VoiceRecordRepository
	options repositories.SearchOptions
	runner  *pipeline.Runner
	logger  *zap.Logger
}

// NewRetrievalService creates a new retrieval service. Zero options fall
// back to repositories.DefaultSearchOptions.
func NewRetrievalService(
	normalizer repositories.AudioNormalizer,
	stt repositories.SpeechToText,
	embedder repositories.Embedder,
	store repositories.VoiceRecordRepository,
	options repositories.SearchOptions,
	runner *pipeline.Runner,
	logger *zap.Logger,
) *RetrievalService {
	if options == (repositories.SearchOptions{}) {
		options = repositories.DefaultSearchOptions()
	}
	if options.Limit <= 0 {
		options.Limit = repositories.DefaultSearchLimit
	}
	return &RetrievalService{
		audio: &audioProcessor{
			normalizer:   normalizer,
			speechToText: stt,
			embedder:     embedder,
			dimension:    store.Dimension(),
			logger:       logger,
		},
		store:   store,
		options: options,
		runner:  runner,
		logger:  logger,
	}
}

// Search runs normalize, transcribe, embed and search over the file at
// uploadPath. Nothing is written to the store or the archive. An empty
// result list is a success.
func (s *RetrievalService) Search(ctx context.Context, uploadPath string) (*entities.SearchResult, *pipeline.Run, error) {
	scratch := pipeline.NewScratch(s.logger)
	scratch.Track(uploadPath)
	defer scratch.Release()

	state := &audioState{uploadPath: uploadPath}
	var matches []entities.Match

	steps := append(s.audio.steps(state, scratch), pipeline.Step{
		ID:     StepSearch,
		Target: pipeline.StateSearched,
		Kind:   domain.KindStoreRead,
		Execute: func(ctx context.Context) error {
			found, err := s.store.Search(ctx, state.embedding, s.options)
			if err != nil {
				return err
			}
			matches = found
			return nil
		},
	})

	run, err := s.runner.Execute(ctx, pipeline.Definition{
		ID:      "search",
		Initial: pipeline.StateUploaded,
		Final:   pipeline.StateDone,
		Steps:   steps,
	})
	if err != nil {
		return nil, run, err
	}

	if matches == nil {
		matches = []entities.Match{}
	}

	s.logger.Info("Voice search completed",
		zap.String("runID", run.ID),
		zap.String("query", state.transcription),
		zap.Int("results", len(matches)))

	return &entities.SearchResult{
		Query:   state.transcription,
		Results: matches,
	}, run, nil
}
