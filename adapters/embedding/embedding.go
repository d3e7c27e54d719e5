// Package embedding provides text embedding providers: OpenAI, Gemini, a
// deterministic mock, and a caching decorator.
package embedding

import (
	"fmt"
	"math"

	"github.com/satriahrh/voicememo/domain"
)

// DefaultDimension matches text-embedding-3-small
const DefaultDimension = 1536

// checkDimension rejects vectors of the wrong length
func checkDimension(vec []float32, want int) error {
	if len(vec) != want {
		return domain.E(domain.KindEmbedding, "embed",
			fmt.Errorf("%w: expected %d, got %d", domain.ErrDimensionMismatch, want, len(vec)))
	}
	return nil
}

// normalize scales vec to unit length in place. Zero vectors are left alone.
func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

func float64sToFloat32s(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
