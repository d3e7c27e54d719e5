package repositories

import (
	"context"

	"github.com/satriahrh/voicememo/domain/entities"
)

// Default search bounds
const (
	DefaultSearchLimit   = 5
	DefaultMinSimilarity = 0.3
)

// SearchOptions bounds a similarity query
type SearchOptions struct {
	Limit         int
	MinSimilarity float64
}

// DefaultSearchOptions returns k=5, minSimilarity=0.3
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{Limit: DefaultSearchLimit, MinSimilarity: DefaultMinSimilarity}
}

// VoiceRecordRepository defines data access methods for voice records
type VoiceRecordRepository interface {
	// Insert persists a record atomically and returns the assigned ID
	Insert(ctx context.Context, record *entities.VoiceRecord) (int64, error)
	// Search ranks stored records by similarity to query, highest first,
	// dropping anything below opts.MinSimilarity and keeping at most opts.Limit
	Search(ctx context.Context, query []float32, opts SearchOptions) ([]entities.Match, error)
	// ListAudioReferences returns the audio reference of every record
	ListAudioReferences(ctx context.Context) ([]string, error)
	// Dimension is the embedding length the store accepts
	Dimension() int
}
