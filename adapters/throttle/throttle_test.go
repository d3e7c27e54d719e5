package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type echoSTT struct{ calls int }

func (e *echoSTT) Transcribe(ctx context.Context, audioPath string) (string, error) {
	e.calls++
	return "transcript of " + audioPath, nil
}

type fixedEmbedder struct{}

func (fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (fixedEmbedder) Dimension() int { return 2 }

func TestNewLimiter(t *testing.T) {
	assert.Equal(t, rate.Inf, NewLimiter(0).Limit())
	assert.Equal(t, rate.Limit(0.5), NewLimiter(0.5).Limit())
	assert.Equal(t, 1, NewLimiter(0.5).Burst())
	assert.Equal(t, 4, NewLimiter(4).Burst())
}

func TestSpeechToText_PassesThrough(t *testing.T) {
	next := &echoSTT{}
	s := NewSpeechToText(next, NewLimiter(0))

	text, err := s.Transcribe(context.Background(), "a.mp3")
	require.NoError(t, err)
	assert.Equal(t, "transcript of a.mp3", text)
	assert.Equal(t, 1, next.calls)
}

func TestSpeechToText_HonoursContext(t *testing.T) {
	next := &echoSTT{}
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	s := NewSpeechToText(next, limiter)

	_, err := s.Transcribe(context.Background(), "a.mp3")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = s.Transcribe(ctx, "b.mp3")
	assert.Error(t, err)
	assert.Equal(t, 1, next.calls, "provider must not be called when the limiter refuses")
}

func TestEmbedder(t *testing.T) {
	e := NewEmbedder(fixedEmbedder{}, NewLimiter(10))
	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, vec)
	assert.Equal(t, 2, e.Dimension())
}
