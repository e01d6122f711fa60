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

// ollamaProvider speaks Ollama's newline-delimited JSON chat stream.
type ollamaProvider struct {
	name   string
	cfg    config.ProviderConfig
	gen    *GenerationParams
	client *http.Client
}

// NewOllamaProvider creates a provider for a local or remote Ollama server.
func NewOllamaProvider(name string, cfg config.ProviderConfig, timeout time.Duration) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://127.0.0.1:11434"
	}
	return &ollamaProvider{
		name:   name,
		cfg:    cfg,
		gen:    defaultGeneration(cfg.Generation),
		client: newHTTPClient(timeout),
	}
}

type ollamaChatRequest struct {
	Model    string                 `json:"model"`
	Messages []Message              `json:"messages"`
	Stream   bool                   `json:"stream"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

type ollamaChunk struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

func (p *ollamaProvider) Name() string  { return p.name }
func (p *ollamaProvider) Model() string { return p.cfg.Model }

func (p *ollamaProvider) StreamCompletion(ctx context.Context, messages []Message, gen *GenerationParams) (Stream, error) {
	reqBody := ollamaChatRequest{
		Model:    p.cfg.Model,
		Messages: messages,
		Stream:   true,
	}
	if g := pick(gen, p.gen); g != nil {
		reqBody.Options = map[string]interface{}{}
		if g.Temperature != nil {
			reqBody.Options["temperature"] = *g.Temperature
		}
		if g.TopP != nil {
			reqBody.Options["top_p"] = *g.TopP
		}
		if g.MaxTokens != nil {
			reqBody.Options["num_predict"] = *g.MaxTokens
		}
	}

	log.Infof("[LLM:%s] opening stream, model: %s, messages: %d", p.name, p.cfg.Model, len(messages))
	body, err := openStream(ctx, p.client, strings.TrimRight(p.cfg.BaseURL, "/")+"/api/chat", nil, reqBody)
	if err != nil {
		return nil, err
	}
	return newNDJSONStream(body, decodeOllamaChunk), nil
}

func decodeOllamaChunk(payload []byte) (string, bool, error) {
	var chunk ollamaChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return "", false, nil
	}
	if chunk.Error != "" {
		return "", false, fmt.Errorf("provider error: %s", chunk.Error)
	}
	return chunk.Message.Content, chunk.Done, nil
}
