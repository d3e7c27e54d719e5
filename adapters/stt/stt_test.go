package stt

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/voicememo/domain"
	"github.com/satriahrh/voicememo/domain/repositories"
)

var (
	_ repositories.SpeechToText = &GoogleSpeechToText{}
	_ repositories.SpeechToText = &OpenAISpeechToText{}
)

func TestNewOpenAISpeechToText(t *testing.T) {
	logger := zaptest.NewLogger(t)

	if _, err := NewOpenAISpeechToText(OpenAIConfig{}, logger); err == nil {
		t.Error("Expected error when API key is not set")
	}

	s, err := NewOpenAISpeechToText(OpenAIConfig{APIKey: "test-api-key"}, logger)
	if err != nil {
		t.Fatalf("Failed to create OpenAISpeechToText: %v", err)
	}
	if s.model != defaultWhisperModel {
		t.Errorf("Expected default model %q, got %q", defaultWhisperModel, s.model)
	}
}

func TestGetAudioEncoding(t *testing.T) {
	enc, err := getAudioEncoding("MP3")
	if err != nil || enc != speechpb.RecognitionConfig_MP3 {
		t.Errorf("Expected MP3 encoding, got %v (%v)", enc, err)
	}
	if _, err := getAudioEncoding("AAC"); err == nil {
		t.Error("Expected error for unsupported encoding")
	}
}

func TestJoinResults(t *testing.T) {
	results := []*speechpb.SpeechRecognitionResult{
		{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: " Turn on the "}, {Transcript: "ignored"}}},
		{},
		{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "kitchen light."}}},
	}
	if got := joinResults(results); got != "Turn on the kitchen light." {
		t.Errorf("Unexpected transcript %q", got)
	}
	if got := joinResults(nil); got != "" {
		t.Errorf("Expected empty transcript, got %q", got)
	}
}

func TestMockSpeechToText(t *testing.T) {
	s := NewMockSpeechToText(zaptest.NewLogger(t))
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.mp3")
	if err := os.WriteFile(empty, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Transcribe(context.Background(), empty); !domain.IsKind(err, domain.KindValidation) {
		t.Errorf("Expected ValidationError for silent audio, got %v", err)
	}

	clip := filepath.Join(dir, "clip.mp3")
	if err := os.WriteFile(clip, make([]byte, 50000), 0o600); err != nil {
		t.Fatal(err)
	}
	text, err := s.Transcribe(context.Background(), clip)
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "Turn on the kitchen light." {
		t.Errorf("Unexpected transcript %q", text)
	}

	if _, err := s.Transcribe(context.Background(), filepath.Join(dir, "missing.mp3")); !domain.IsKind(err, domain.KindTranscription) {
		t.Errorf("Expected TranscriptionServiceError for missing file, got %v", err)
	}
}
