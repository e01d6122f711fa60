package embedding

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"cyberchat-go/internal/config"
	"cyberchat-go/pkg/log"
)

type genaiClient struct {
	client *genai.Client
	model  string
	dims   int32
}

// NewGenAIClient creates a Gemini embedding client.
func NewGenAIClient(cfg config.EmbeddingConfig) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini embedding requires an api key")
	}
	model := cfg.Model
	if model == "" || strings.HasPrefix(model, "text-embedding-3") {
		model = "gemini-embedding-001"
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &genaiClient{client: client, model: model, dims: int32(cfg.Dimensions)}, nil
}

func (c *genaiClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	req := &genai.EmbedContentConfig{TaskType: "RETRIEVAL_QUERY"}
	if c.dims > 0 {
		req.OutputDimensionality = &c.dims
	}
	result, err := c.client.Models.EmbedContent(ctx, c.model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, req)
	if err != nil {
		log.Errorf("[EmbeddingClient] genai embed failed: %v", err)
		return nil, fmt.Errorf("%w: genai embed: %w", ErrEmbeddingFailure, err)
	}
	if len(result.Embeddings) == 0 || len(result.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("%w: received empty embedding from genai", ErrEmbeddingFailure)
	}
	return result.Embeddings[0].Values, nil
}
