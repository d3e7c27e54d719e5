package repositories

import "context"

// SpeechToText abstracts speech recognition services
type SpeechToText interface {
	// Transcribe converts a canonical audio file to text
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// AudioConfig represents audio configuration for speech recognition
type AudioConfig struct {
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
	Language   string `json:"language"`
}
