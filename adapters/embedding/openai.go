package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/satriahrh/voicememo/domain"
	"github.com/satriahrh/voicememo/domain/repositories"
)

// OpenAI embedding models.
const (
	ModelOpenAI3Small = "text-embedding-3-small"
	ModelOpenAI3Large = "text-embedding-3-large"
	ModelOpenAIAda002 = "text-embedding-ada-002"
)

// OpenAIConfig holds configuration for the OpenAI embedder
type OpenAIConfig struct {
	APIKey    string // Required
	BaseURL   string // Optional: OpenAI-compatible endpoint
	Model     string // Optional (default: text-embedding-3-small)
	Dimension int    // Optional (default: 1536)
}

// OpenAI implements repositories.Embedder using the OpenAI embeddings API
type OpenAI struct {
	client *openai.Client
	model  string
	dim    int
	logger *zap.Logger
}

var _ repositories.Embedder = (*OpenAI)(nil)

// NewOpenAI creates an OpenAI embedder
func NewOpenAI(config OpenAIConfig, logger *zap.Logger) (*OpenAI, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if config.Dimension < 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", config.Dimension)
	}

	model := config.Model
	if model == "" {
		model = ModelOpenAI3Small
	}
	dim := config.Dimension
	if dim == 0 {
		dim = DefaultDimension
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	client := openai.NewClient(opts...)

	return &OpenAI{
		client: &client,
		model:  model,
		dim:    dim,
		logger: logger,
	}, nil
}

// Embed returns the embedding for a single text
func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.E(domain.KindValidation, "embed", domain.ErrEmptyText)
	}

	params := openai.EmbeddingNewParams{
		Model:          o.model,
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{text}},
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	// Only the text-embedding-3 family accepts a custom dimension
	if strings.HasPrefix(o.model, "text-embedding-3") {
		params.Dimensions = openai.Int(int64(o.dim))
	}

	resp, err := o.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, domain.E(domain.KindEmbedding, "embed", fmt.Errorf("openai embeddings: %w", err))
	}
	if len(resp.Data) == 0 {
		return nil, domain.E(domain.KindEmbedding, "embed", fmt.Errorf("openai embeddings: empty response"))
	}

	vec := normalize(float64sToFloat32s(resp.Data[0].Embedding))
	if err := checkDimension(vec, o.dim); err != nil {
		return nil, err
	}

	o.logger.Debug("Embedding generated", zap.String("model", o.model), zap.Int("dimension", len(vec)))
	return vec, nil
}

// Dimension returns the configured vector dimensionality
func (o *OpenAI) Dimension() int {
	return o.dim
}

// Model returns the OpenAI model identifier
func (o *OpenAI) Model() string {
	return o.model
}
