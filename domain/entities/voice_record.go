package entities

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AudioReferencePrefix starts every generated audio reference
const AudioReferencePrefix = "voice-"

// NewAudioReference returns a unique archive name with the given extension
func NewAudioReference(ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return AudioReferencePrefix + uuid.New().String() + ext
}

// VoiceRecord is a stored recording: its transcript, its embedding and the
// archived canonical audio it was produced from
type VoiceRecord struct {
	ID             int64     `json:"id" db:"id"`
	Transcription  string    `json:"transcription" db:"transcription"`
	Embedding      []float32 `json:"-" db:"vec"`
	AudioReference string    `json:"file_name" db:"file_name"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// Match is a search hit. Similarity is always on the higher-is-closer scale.
type Match struct {
	ID             int64     `json:"id"`
	Transcription  string    `json:"transcription"`
	AudioReference string    `json:"file_name"`
	CreatedAt      time.Time `json:"created_at"`
	Similarity     float64   `json:"similarity"`
}

// Validate checks a record before insertion against the store dimension
func (r *VoiceRecord) Validate(dimension int) error {
	if strings.TrimSpace(r.Transcription) == "" {
		return errors.New("transcription is required")
	}
	if r.AudioReference == "" {
		return errors.New("audio reference is required")
	}
	if len(r.Embedding) == 0 {
		return errors.New("embedding is required")
	}
	if dimension > 0 && len(r.Embedding) != dimension {
		return fmt.Errorf("embedding has %d components, store expects %d", len(r.Embedding), dimension)
	}
	return nil
}

// IngestResult is returned by a successful ingestion run
type IngestResult struct {
	ID                 int64  `json:"id"`
	Transcription      string `json:"transcription"`
	EmbeddingDimension int    `json:"embedding_dimension"`
}

// SearchResult is returned by a successful retrieval run
type SearchResult struct {
	Query   string  `json:"query"`
	Results []Match `json:"results"`
}
