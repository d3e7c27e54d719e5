package stt

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/satriahrh/voicememo/domain"
	"github.com/satriahrh/voicememo/domain/repositories"
)

// MockSpeechToText is a placeholder implementation for speech recognition
type MockSpeechToText struct {
	logger *zap.Logger
}

// NewMockSpeechToText creates a new mock speech-to-text service
func NewMockSpeechToText(logger *zap.Logger) repositories.SpeechToText {
	return &MockSpeechToText{
		logger: logger,
	}
}

// Transcribe implements repositories.SpeechToText
func (s *MockSpeechToText) Transcribe(ctx context.Context, audioPath string) (string, error) {
	info, err := os.Stat(audioPath)
	if err != nil {
		return "", domain.E(domain.KindTranscription, "transcribe", fmt.Errorf("mock transcription: %w", err))
	}

	s.logger.Info("Processing speech-to-text", zap.Int64("audioSize", info.Size()))

	// Mock transcription based on audio size
	switch {
	case info.Size() == 0:
		return "", domain.E(domain.KindValidation, "transcribe", domain.ErrNoSpeech)
	case info.Size() > 100000:
		return "Remind me to call the plumber about the leaking kitchen sink tomorrow morning.", nil
	case info.Size() > 40000:
		return "Turn on the kitchen light.", nil
	case info.Size() > 10000:
		return "Add oat milk and coffee beans to the shopping list.", nil
	default:
		return "Hello there.", nil
	}
}
