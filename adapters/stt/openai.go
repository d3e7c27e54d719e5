package stt

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/satriahrh/voicememo/domain"
	"github.com/satriahrh/voicememo/domain/repositories"
)

const defaultWhisperModel = "whisper-1"

// OpenAIConfig holds configuration for the Whisper adapter
type OpenAIConfig struct {
	APIKey  string // Required: OpenAI API key
	BaseURL string // Optional: OpenAI-compatible endpoint
	Model   string // Optional: transcription model (default: "whisper-1")
}

// ValidateOpenAIConfig validates the OpenAIConfig
func ValidateOpenAIConfig(config OpenAIConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("OpenAI API key is required")
	}
	return nil
}

// OpenAISpeechToText transcribes audio files with the OpenAI transcription API
type OpenAISpeechToText struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

var _ repositories.SpeechToText = (*OpenAISpeechToText)(nil)

// NewOpenAISpeechToText creates a Whisper transcriber
func NewOpenAISpeechToText(config OpenAIConfig, logger *zap.Logger) (*OpenAISpeechToText, error) {
	if err := ValidateOpenAIConfig(config); err != nil {
		return nil, err
	}

	model := config.Model
	if model == "" {
		model = defaultWhisperModel
		logger.Info("Using default transcription model", zap.String("model", model))
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	client := openai.NewClient(opts...)

	return &OpenAISpeechToText{
		client: &client,
		model:  model,
		logger: logger,
	}, nil
}

// Transcribe implements repositories.SpeechToText
func (o *OpenAISpeechToText) Transcribe(ctx context.Context, audioPath string) (string, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("failed to open audio: %w", err)
	}
	defer file.Close()

	resp, err := o.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  file,
		Model: openai.AudioModel(o.model),
	})
	if err != nil {
		return "", domain.E(domain.KindTranscription, "transcribe", fmt.Errorf("openai transcription: %w", err))
	}

	transcription := strings.TrimSpace(resp.Text)
	if transcription == "" {
		return "", domain.E(domain.KindValidation, "transcribe", domain.ErrNoSpeech)
	}

	o.logger.Info("Transcription completed",
		zap.String("provider", "openai"),
		zap.String("model", o.model),
		zap.String("text", transcription))

	return transcription, nil
}
