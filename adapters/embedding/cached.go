package embedding

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"

	"github.com/satriahrh/voicememo/domain/repositories"
)

// Cached memoizes embeddings by exact text. Repeated spoken queries skip the provider.
type Cached struct {
	next   repositories.Embedder
	cache  *ristretto.Cache
	logger *zap.Logger
}

var _ repositories.Embedder = (*Cached)(nil)

// NewCached wraps next with a cache holding up to maxItems vectors
func NewCached(next repositories.Embedder, maxItems int64, logger *zap.Logger) (*Cached, error) {
	if maxItems <= 0 {
		return nil, fmt.Errorf("cache size must be positive, got %d", maxItems)
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        maxItems * 10,
		MaxCost:            maxItems,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return &Cached{
		next:   next,
		cache:  cache,
		logger: logger,
	}, nil
}

// Embed implements repositories.Embedder
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		if vec, ok := v.([]float32); ok {
			c.logger.Debug("Embedding cache hit", zap.Int("textLength", len(text)))
			return append([]float32(nil), vec...), nil
		}
	}

	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, append([]float32(nil), vec...), 1)
	return vec, nil
}

// Dimension implements repositories.Embedder
func (c *Cached) Dimension() int {
	return c.next.Dimension()
}

// Wait blocks until buffered cache writes are applied
func (c *Cached) Wait() {
	c.cache.Wait()
}

// Close stops the cache goroutines
func (c *Cached) Close() {
	c.cache.Close()
}
