// Package memory keeps voice records in an in-process chromem-go collection.
// It backs development runs and pipeline tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/satriahrh/voicememo/domain"
	"github.com/satriahrh/voicememo/domain/entities"
	"github.com/satriahrh/voicememo/domain/repositories"
)

const collectionName = "voice"

// Metadata keys on each chromem document
const (
	metaFileName  = "file_name"
	metaCreatedAt = "created_at"
)

// VoiceRepository is an in-process VoiceRecordRepository.
//
// chromem scores cosine similarity, higher is closer, so scores are used as
// they are. For unit-norm embeddings that equals the inner product.
type VoiceRepository struct {
	collection *chromem.Collection
	dimension  int
	logger     *zap.Logger

	mu     sync.Mutex
	nextID int64
	refs   map[string]int64
	order  []string
}

var _ repositories.VoiceRecordRepository = (*VoiceRepository)(nil)

// NewVoiceRepository creates an empty store accepting vectors of dimension
func NewVoiceRepository(dimension int, logger *zap.Logger) (*VoiceRepository, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dimension)
	}

	db := chromem.NewDB()
	// embeddings are always supplied, so no embedding func
	collection, err := db.CreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	return &VoiceRepository{
		collection: collection,
		dimension:  dimension,
		logger:     logger,
		refs:       make(map[string]int64),
	}, nil
}

// Insert implements repositories.VoiceRecordRepository
func (r *VoiceRepository) Insert(ctx context.Context, record *entities.VoiceRecord) (int64, error) {
	if record == nil {
		return 0, domain.E(domain.KindStoreWrite, "insert", fmt.Errorf("record cannot be nil"))
	}
	if err := record.Validate(r.dimension); err != nil {
		return 0, domain.E(domain.KindStoreWrite, "insert", err)
	}

	// the lock covers the uniqueness check and the add, making the insert atomic
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.refs[record.AudioReference]; exists {
		return 0, domain.E(domain.KindStoreWrite, "insert",
			fmt.Errorf("audio reference %q already stored", record.AudioReference))
	}

	id := r.nextID + 1
	createdAt := time.Now().UTC()

	embedding := make([]float32, len(record.Embedding))
	copy(embedding, record.Embedding)

	doc := chromem.Document{
		ID:        strconv.FormatInt(id, 10),
		Content:   record.Transcription,
		Embedding: embedding,
		Metadata: map[string]string{
			metaFileName:  record.AudioReference,
			metaCreatedAt: createdAt.Format(time.RFC3339Nano),
		},
	}
	if err := r.collection.AddDocument(ctx, doc); err != nil {
		return 0, domain.E(domain.KindStoreWrite, "insert", fmt.Errorf("add document: %w", err))
	}

	r.nextID = id
	r.refs[record.AudioReference] = id
	r.order = append(r.order, record.AudioReference)

	record.ID = id
	record.CreatedAt = createdAt

	r.logger.Debug("Voice record inserted",
		zap.Int64("id", id),
		zap.String("fileName", record.AudioReference))

	return id, nil
}

// Search implements repositories.VoiceRecordRepository
func (r *VoiceRepository) Search(ctx context.Context, query []float32, opts repositories.SearchOptions) ([]entities.Match, error) {
	if opts.Limit <= 0 {
		return nil, domain.E(domain.KindValidation, "search", domain.ErrInvalidLimit)
	}
	if len(query) != r.dimension {
		return nil, domain.E(domain.KindStoreRead, "search",
			fmt.Errorf("%w: expected %d, got %d", domain.ErrDimensionMismatch, r.dimension, len(query)))
	}

	// chromem requires nResults <= number of documents
	n := r.collection.Count()
	if n == 0 {
		return []entities.Match{}, nil
	}
	if n > opts.Limit {
		n = opts.Limit
	}

	results, err := r.collection.QueryEmbedding(ctx, query, n, nil, nil)
	if err != nil {
		return nil, domain.E(domain.KindStoreRead, "search", fmt.Errorf("chromem query: %w", err))
	}

	matches := make([]entities.Match, 0, len(results))
	for _, result := range results {
		similarity := float64(result.Similarity)
		if similarity < opts.MinSimilarity {
			continue
		}
		id, err := strconv.ParseInt(result.ID, 10, 64)
		if err != nil {
			return nil, domain.E(domain.KindStoreRead, "search", fmt.Errorf("corrupt document id %q: %w", result.ID, err))
		}
		createdAt, _ := time.Parse(time.RFC3339Nano, result.Metadata[metaCreatedAt])
		matches = append(matches, entities.Match{
			ID:             id,
			Transcription:  result.Content,
			AudioReference: result.Metadata[metaFileName],
			CreatedAt:      createdAt,
			Similarity:     similarity,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	return matches, nil
}

// ListAudioReferences implements repositories.VoiceRecordRepository
func (r *VoiceRepository) ListAudioReferences(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	refs := make([]string, len(r.order))
	copy(refs, r.order)
	return refs, nil
}

// Dimension implements repositories.VoiceRecordRepository
func (r *VoiceRepository) Dimension() int {
	return r.dimension
}
