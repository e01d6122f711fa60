package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cyberchat-go/internal/config"
	"cyberchat-go/pkg/log"
)

// openAIProvider speaks the OpenAI chat completions streaming format.
// Groq, DeepSeek and other compatible APIs only differ by base URL.
type openAIProvider struct {
	name   string
	cfg    config.ProviderConfig
	gen    *GenerationParams
	client *http.Client
}

// NewOpenAIProvider creates an OpenAI-compatible provider.
func NewOpenAIProvider(name string, cfg config.ProviderConfig, timeout time.Duration) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	return &openAIProvider{
		name:   name,
		cfg:    cfg,
		gen:    defaultGeneration(cfg.Generation),
		client: newHTTPClient(timeout),
	}
}

type openAIChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

type openAIChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *openAIProvider) Name() string  { return p.name }
func (p *openAIProvider) Model() string { return p.cfg.Model }

func (p *openAIProvider) StreamCompletion(ctx context.Context, messages []Message, gen *GenerationParams) (Stream, error) {
	reqBody := openAIChatRequest{
		Model:    p.cfg.Model,
		Messages: messages,
		Stream:   true,
	}
	if g := pick(gen, p.gen); g != nil {
		reqBody.Temperature = g.Temperature
		reqBody.TopP = g.TopP
		reqBody.MaxTokens = g.MaxTokens
	}

	log.Infof("[LLM:%s] opening stream, model: %s, messages: %d", p.name, p.cfg.Model, len(messages))
	body, err := openStream(ctx, p.client, strings.TrimRight(p.cfg.BaseURL, "/")+"/chat/completions", map[string]string{
		"Authorization": "Bearer " + p.cfg.APIKey,
		"Accept":        "text/event-stream",
	}, reqBody)
	if err != nil {
		return nil, err
	}
	return newSSEStream(body, decodeOpenAIChunk), nil
}

func decodeOpenAIChunk(payload []byte) (string, bool, error) {
	var chunk openAIChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return "", false, nil
	}
	if chunk.Error != nil {
		return "", false, fmt.Errorf("provider error: %s", chunk.Error.Message)
	}
	if len(chunk.Choices) == 0 {
		return "", false, nil
	}
	return chunk.Choices[0].Delta.Content, false, nil
}
