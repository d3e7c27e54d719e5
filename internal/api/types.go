package api

import "github.com/satriahrh/voicememo/domain/entities"

// StoreResponse represents the response payload for a stored recording
type StoreResponse struct {
	Success            bool   `json:"success"`
	ID                 int64  `json:"id"`
	Transcription      string `json:"transcription"`
	EmbeddingDimension int    `json:"embedding_dimension"`
}

// SearchResponse represents the response payload for a voice search
type SearchResponse struct {
	Success bool             `json:"success"`
	Query   string           `json:"query"`
	Results []entities.Match `json:"results"`
}

// HealthResponse represents the health check payload
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// ErrorResponse represents an error response. Stack carries the pipeline
// trace of the failed run.
type ErrorResponse struct {
	Error string `json:"error"`
	Stack string `json:"stack"`
}
