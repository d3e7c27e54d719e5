package usecase

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/voicememo/domain"
	"github.com/satriahrh/voicememo/domain/repositories"
	"github.com/satriahrh/voicememo/internal/pipeline"
)

// Step IDs shared by the ingestion and retrieval pipelines
const (
	StepNormalize  pipeline.StepID = "normalize"
	StepTranscribe pipeline.StepID = "transcribe"
	StepEmbed      pipeline.StepID = "embed"
	StepStore      pipeline.StepID = "store"
	StepArchive    pipeline.StepID = "archive"
	StepSearch     pipeline.StepID = "search"
)

// audioProcessor turns an upload into a transcript and its embedding
type audioProcessor struct {
	normalizer   repositories.AudioNormalizer
	speechToText repositories.SpeechToText
	embedder     repositories.Embedder
	dimension    int
	logger       *zap.Logger
}

// audioState is the working data of one run
type audioState struct {
	uploadPath     string
	normalizedPath string
	transcription  string
	embedding      []float32
}

// steps returns normalize, transcribe and embed. Every file produced is
// tracked in scratch.
func (p *audioProcessor) steps(state *audioState, scratch *pipeline.Scratch) []pipeline.Step {
	return []pipeline.Step{
		{
			ID:     StepNormalize,
			Target: pipeline.StateNormalized,
			Kind:   domain.KindConversion,
			Execute: func(ctx context.Context) error {
				out, err := p.normalizer.Normalize(ctx, state.uploadPath)
				if err != nil {
					return err
				}
				scratch.Track(out)
				state.normalizedPath = out
				return nil
			},
		},
		{
			ID:     StepTranscribe,
			Target: pipeline.StateTranscribed,
			Kind:   domain.KindTranscription,
			Execute: func(ctx context.Context) error {
				text, err := p.speechToText.Transcribe(ctx, state.normalizedPath)
				if err != nil {
					return err
				}
				text = strings.TrimSpace(text)
				if text == "" {
					return domain.E(domain.KindValidation, string(StepTranscribe), domain.ErrNoSpeech)
				}
				state.transcription = text
				p.logger.Info("Transcription completed", zap.String("text", text))
				return nil
			},
		},
		{
			ID:     StepEmbed,
			Target: pipeline.StateEmbedded,
			Kind:   domain.KindEmbedding,
			Execute: func(ctx context.Context) error {
				vec, err := p.embedder.Embed(ctx, state.transcription)
				if err != nil {
					return err
				}
				if len(vec) != p.dimension {
					return fmt.Errorf("%w: store expects %d, embedder returned %d",
						domain.ErrDimensionMismatch, p.dimension, len(vec))
				}
				state.embedding = vec
				return nil
			},
		},
	}
}
