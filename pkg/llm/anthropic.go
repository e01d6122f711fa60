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

const (
	anthropicVersion          = "2023-06-01"
	anthropicDefaultMaxTokens = 1024
)

// anthropicProvider speaks the Anthropic Messages streaming format.
// System messages are lifted into the top-level system field.
type anthropicProvider struct {
	name   string
	cfg    config.ProviderConfig
	gen    *GenerationParams
	client *http.Client
}

// NewAnthropicProvider creates an Anthropic Messages API provider.
func NewAnthropicProvider(name string, cfg config.ProviderConfig, timeout time.Duration) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com/v1"
	}
	return &anthropicProvider{
		name:   name,
		cfg:    cfg,
		gen:    defaultGeneration(cfg.Generation),
		client: newHTTPClient(timeout),
	}
}

type anthropicRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	Stream      bool      `json:"stream"`
}

type anthropicEvent struct {
	Type  string `json:"type"`
	Delta *struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"delta,omitempty"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *anthropicProvider) Name() string  { return p.name }
func (p *anthropicProvider) Model() string { return p.cfg.Model }

func (p *anthropicProvider) StreamCompletion(ctx context.Context, messages []Message, gen *GenerationParams) (Stream, error) {
	reqBody := anthropicRequest{
		Model:     p.cfg.Model,
		MaxTokens: anthropicDefaultMaxTokens,
		Stream:    true,
	}
	var system []string
	for _, m := range messages {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		reqBody.Messages = append(reqBody.Messages, m)
	}
	reqBody.System = strings.Join(system, "\n\n")
	if g := pick(gen, p.gen); g != nil {
		reqBody.Temperature = g.Temperature
		reqBody.TopP = g.TopP
		if g.MaxTokens != nil {
			reqBody.MaxTokens = *g.MaxTokens
		}
	}

	log.Infof("[LLM:%s] opening stream, model: %s, messages: %d", p.name, p.cfg.Model, len(reqBody.Messages))
	body, err := openStream(ctx, p.client, strings.TrimRight(p.cfg.BaseURL, "/")+"/messages", map[string]string{
		"x-api-key":         p.cfg.APIKey,
		"anthropic-version": anthropicVersion,
		"Accept":            "text/event-stream",
	}, reqBody)
	if err != nil {
		return nil, err
	}
	return newSSEStream(body, decodeAnthropicEvent), nil
}

func decodeAnthropicEvent(payload []byte) (string, bool, error) {
	var evt anthropicEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return "", false, nil
	}
	switch {
	case evt.Error != nil:
		return "", false, fmt.Errorf("provider error: %s", evt.Error.Message)
	case evt.Type == "message_stop":
		return "", true, nil
	case evt.Type == "content_block_delta" && evt.Delta != nil:
		return evt.Delta.Text, false, nil
	default:
		return "", false, nil
	}
}
