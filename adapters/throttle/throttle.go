// Package throttle rate-limits calls to external speech and embedding providers.
package throttle

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/satriahrh/voicememo/domain/repositories"
)

// NewLimiter returns a limiter allowing rps calls per second with a burst of
// the same size. A non-positive rps disables limiting.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// SpeechToText waits for the limiter before each transcription
type SpeechToText struct {
	next    repositories.SpeechToText
	limiter *rate.Limiter
}

// NewSpeechToText wraps next with limiter
func NewSpeechToText(next repositories.SpeechToText, limiter *rate.Limiter) *SpeechToText {
	return &SpeechToText{next: next, limiter: limiter}
}

// Transcribe implements repositories.SpeechToText
func (s *SpeechToText) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("transcription rate limit: %w", err)
	}
	return s.next.Transcribe(ctx, audioPath)
}

// Embedder waits for the limiter before each embedding call
type Embedder struct {
	next    repositories.Embedder
	limiter *rate.Limiter
}

// NewEmbedder wraps next with limiter
func NewEmbedder(next repositories.Embedder, limiter *rate.Limiter) *Embedder {
	return &Embedder{next: next, limiter: limiter}
}

// Embed implements repositories.Embedder
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embedding rate limit: %w", err)
	}
	return e.next.Embed(ctx, text)
}

// Dimension implements repositories.Embedder
func (e *Embedder) Dimension() int {
	return e.next.Dimension()
}
