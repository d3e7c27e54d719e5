package stt

import (
	"context"
	"fmt"
	"os"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"

	"github.com/satriahrh/voicememo/domain"
	"github.com/satriahrh/voicememo/domain/repositories"
)

const (
	defaultGoogleLanguage = "en-US"
	defaultGoogleEncoding = "MP3"
	// MP3 recognition requires an explicit sample rate
	defaultGoogleSampleRate = 44100
)

// GoogleSpeechToText implements SpeechToText for Google Cloud
type GoogleSpeechToText struct {
	client *speech.Client
	config repositories.AudioConfig
	logger *zap.Logger
}

var _ repositories.SpeechToText = (*GoogleSpeechToText)(nil)

// NewGoogleSpeechToText creates a Google Cloud Speech client using
// application default credentials
func NewGoogleSpeechToText(ctx context.Context, config repositories.AudioConfig, logger *zap.Logger) (*GoogleSpeechToText, error) {
	if config.Language == "" {
		config.Language = defaultGoogleLanguage
	}
	if config.Encoding == "" {
		config.Encoding = defaultGoogleEncoding
	}
	if config.SampleRate == 0 {
		config.SampleRate = defaultGoogleSampleRate
	}
	if _, err := getAudioEncoding(config.Encoding); err != nil {
		return nil, err
	}

	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}

	return &GoogleSpeechToText{
		client: client,
		config: config,
		logger: logger,
	}, nil
}

// Transcribe converts a canonical audio file to text using Google Cloud Speech-to-Text
func (g *GoogleSpeechToText) Transcribe(ctx context.Context, audioPath string) (string, error) {
	audioData, err := os.ReadFile(audioPath)
	if err != nil {
		return "", fmt.Errorf("failed to read audio: %w", err)
	}

	encoding, _ := getAudioEncoding(g.config.Encoding)
	resp, err := g.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   encoding,
			SampleRateHertz:            int32(g.config.SampleRate),
			LanguageCode:               g.config.Language,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audioData},
		},
	})
	if err != nil {
		return "", domain.E(domain.KindTranscription, "transcribe", fmt.Errorf("google recognize: %w", err))
	}

	transcription := joinResults(resp.GetResults())
	if transcription == "" {
		return "", domain.E(domain.KindValidation, "transcribe", domain.ErrNoSpeech)
	}

	g.logger.Info("Transcription completed",
		zap.String("provider", "google"),
		zap.Int("audioSize", len(audioData)),
		zap.String("text", transcription))

	return transcription, nil
}

// Close releases the underlying gRPC connection
func (g *GoogleSpeechToText) Close() error {
	return g.client.Close()
}

// joinResults takes the best alternative of every result
func joinResults(results []*speechpb.SpeechRecognitionResult) string {
	parts := make([]string, 0, len(results))
	for _, result := range results {
		if len(result.GetAlternatives()) == 0 {
			continue
		}
		if text := strings.TrimSpace(result.GetAlternatives()[0].GetTranscript()); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// getAudioEncoding converts string encoding to Google Speech API enum
func getAudioEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch encoding {
	case "MP3":
		return speechpb.RecognitionConfig_MP3, nil
	case "WAV", "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC, nil
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}
