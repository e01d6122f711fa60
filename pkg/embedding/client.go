// Package embedding turns text into vectors through a remote embedding API.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cyberchat-go/internal/config"
	"cyberchat-go/pkg/log"
)

var (
	// ErrEmbeddingFailure wraps every transport or provider error raised while embedding.
	ErrEmbeddingFailure = errors.New("embedding failure")
	// ErrEmptyInput is returned, without calling the API, for empty or whitespace-only text.
	ErrEmptyInput = errors.New("embedding input is empty")
)

// Client defines the interface for an embedding client.
type Client interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// NewClient builds the client selected by cfg.Provider.
func NewClient(cfg config.EmbeddingConfig) (Client, error) {
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAICompatibleClient(cfg), nil
	case "gemini":
		return NewGenAIClient(cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

type openAICompatibleClient struct {
	cfg    config.EmbeddingConfig
	client *http.Client
}

// NewOpenAICompatibleClient creates a client for any API exposing POST {base_url}/embeddings.
func NewOpenAICompatibleClient(cfg config.EmbeddingConfig) Client {
	return &openAICompatibleClient{
		cfg:    cfg,
		client: &http.Client{Timeout: config.Seconds(cfg.TimeoutSeconds, 15*time.Second)},
	}
}

type embeddingRequest struct {
	Model      string `json:"model"`
	Input      string `json:"input"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// CreateEmbedding calls the OpenAI-compatible API to get the vector for a given text.
func (c *openAICompatibleClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	log.Infof("[EmbeddingClient] calling embedding API, model: %s, input_len: %d", c.cfg.Model, len(text))

	reqBytes, err := json.Marshal(embeddingRequest{
		Model:      c.cfg.Model,
		Input:      text,
		Dimensions: c.cfg.Dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %w", ErrEmbeddingFailure, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.BaseURL, "/")+"/embeddings", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", ErrEmbeddingFailure, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		log.Errorf("[EmbeddingClient] embedding API call failed: %v", err)
		return nil, fmt.Errorf("%w: call embedding api: %w", ErrEmbeddingFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.Errorf("[EmbeddingClient] embedding API returned %s", resp.Status)
		return nil, fmt.Errorf("%w: embedding api returned %s: %s", ErrEmbeddingFailure, resp.Status, strings.TrimSpace(string(body)))
	}

	var embeddingResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embeddingResp); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", ErrEmbeddingFailure, err)
	}
	if embeddingResp.Error != nil {
		return nil, fmt.Errorf("%w: %s", ErrEmbeddingFailure, embeddingResp.Error.Message)
	}
	if len(embeddingResp.Data) == 0 || len(embeddingResp.Data[0].Embedding) == 0 {
		log.Warnf("[EmbeddingClient] embedding API returned an empty vector")
		return nil, fmt.Errorf("%w: received empty embedding from api", ErrEmbeddingFailure)
	}

	log.Infof("[EmbeddingClient] received embedding, dims: %d", len(embeddingResp.Data[0].Embedding))
	return embeddingResp.Data[0].Embedding, nil
}
