package embedding

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/voicememo/domain"
	"github.com/satriahrh/voicememo/domain/repositories"
)

const defaultGeminiModel = "gemini-embedding-001"

// GeminiConfig holds configuration for the Gemini embedder
type GeminiConfig struct {
	APIKey    string // Required: Google AI API key
	Model     string // Optional (default: gemini-embedding-001)
	Dimension int    // Optional (default: 1536)
}

// Gemini implements repositories.Embedder with the Gemini embedding API.
// Vectors are L2-normalized since truncated Gemini embeddings are not.
type Gemini struct {
	client *genai.Client
	model  string
	dim    int
	logger *zap.Logger
}

var _ repositories.Embedder = (*Gemini)(nil)

// NewGemini creates a Gemini embedder
func NewGemini(ctx context.Context, config GeminiConfig, logger *zap.Logger) (*Gemini, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Google AI API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := config.Model
	if model == "" {
		model = defaultGeminiModel
		logger.Info("Using default embedding model", zap.String("model", model))
	}
	dim := config.Dimension
	if dim == 0 {
		dim = DefaultDimension
	}

	return &Gemini{
		client: client,
		model:  model,
		dim:    dim,
		logger: logger,
	}, nil
}

// Embed implements repositories.Embedder
func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.E(domain.KindValidation, "embed", domain.ErrEmptyText)
	}

	resp, err := g.client.Models.EmbedContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		&genai.EmbedContentConfig{
			TaskType:             "SEMANTIC_SIMILARITY",
			OutputDimensionality: genai.Ptr(int32(g.dim)),
		})
	if err != nil {
		return nil, domain.E(domain.KindEmbedding, "embed", fmt.Errorf("gemini embed: %w", err))
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, domain.E(domain.KindEmbedding, "embed", fmt.Errorf("gemini embed: empty response"))
	}

	vec := normalize(append([]float32(nil), resp.Embeddings[0].Values...))
	if err := checkDimension(vec, g.dim); err != nil {
		return nil, err
	}
	return vec, nil
}

// Dimension implements repositories.Embedder
func (g *Gemini) Dimension() int {
	return g.dim
}
