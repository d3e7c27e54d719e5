package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/satriahrh/voicememo/domain"
	"github.com/satriahrh/voicememo/domain/repositories"
)

// Mock embeds text as a normalized hashed bag of words, so texts sharing
// words score close together. It needs no network access.
type Mock struct {
	dim int
}

var _ repositories.Embedder = (*Mock)(nil)

// NewMock creates a mock embedder of the given dimension
func NewMock(dimension int) *Mock {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Mock{dim: dimension}
}

// Embed implements repositories.Embedder
func (m *Mock) Embed(ctx context.Context, text string) ([]float32, error) {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return nil, domain.E(domain.KindValidation, "embed", domain.ErrEmptyText)
	}

	vec := make([]float32, m.dim)
	for _, token := range tokens {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[h.Sum32()%uint32(m.dim)]++
	}
	return normalize(vec), nil
}

// Dimension implements repositories.Embedder
func (m *Mock) Dimension() int {
	return m.dim
}

// tokenize lowercases, splits on non-letters and folds simple plurals
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if len(f) > 3 && strings.HasSuffix(f, "s") && !strings.HasSuffix(f, "ss") {
			f = strings.TrimSuffix(f, "s")
		}
		tokens = append(tokens, f)
	}
	return tokens
}
