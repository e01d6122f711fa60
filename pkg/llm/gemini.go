package llm

import (
	"context"
	"fmt"
	"io"
	"iter"
	"strings"
	"sync"

	"google.golang.org/genai"

	"cyberchat-go/internal/config"
	"cyberchat-go/pkg/log"
)

// geminiProvider streams through the Gemini API SDK.
type geminiProvider struct {
	name string
	cfg  config.ProviderConfig
	gen  *GenerationParams

	mu     sync.Mutex
	client *genai.Client
}

// NewGeminiProvider creates a Gemini provider. The SDK client is created on first use.
func NewGeminiProvider(name string, cfg config.ProviderConfig) Provider {
	return &geminiProvider{name: name, cfg: cfg, gen: defaultGeneration(cfg.Generation)}
}

func (p *geminiProvider) Name() string  { return p.name }
func (p *geminiProvider) Model() string { return p.cfg.Model }

func (p *geminiProvider) sdk(ctx context.Context) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}
	if p.cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini provider %q has no api key", ErrCompletionFailure, p.name)
	}
	cc := &genai.ClientConfig{APIKey: p.cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if p.cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: p.cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("%w: create genai client: %w", ErrCompletionFailure, err)
	}
	p.client = client
	return client, nil
}

func (p *geminiProvider) StreamCompletion(ctx context.Context, messages []Message, gen *GenerationParams) (Stream, error) {
	client, err := p.sdk(ctx)
	if err != nil {
		return nil, err
	}

	contents, system := toGeminiContents(messages)
	gc := &genai.GenerateContentConfig{}
	if system != "" {
		gc.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if g := pick(gen, p.gen); g != nil {
		if g.Temperature != nil {
			t := float32(*g.Temperature)
			gc.Temperature = &t
		}
		if g.TopP != nil {
			tp := float32(*g.TopP)
			gc.TopP = &tp
		}
		if g.MaxTokens != nil {
			gc.MaxOutputTokens = int32(*g.MaxTokens)
		}
	}

	log.Infof("[LLM:%s] opening stream, model: %s, messages: %d", p.name, p.cfg.Model, len(contents))
	next, stop := iter.Pull2(client.Models.GenerateContentStream(ctx, p.cfg.Model, contents, gc))
	return &geminiStream{next: next, stop: stop}, nil
}

// toGeminiContents maps chat roles onto Gemini contents. System messages become the system instruction.
func toGeminiContents(messages []Message) ([]*genai.Content, string) {
	var (
		contents []*genai.Content
		system   []string
	)
	for _, m := range messages {
		switch m.Role {
		case "system":
			system = append(system, m.Content)
		case "assistant":
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return contents, strings.Join(system, "\n\n")
}

type geminiStream struct {
	next func() (*genai.GenerateContentResponse, error, bool)
	stop func()
}

func (s *geminiStream) Recv() (string, error) {
	for {
		resp, err, ok := s.next()
		if !ok {
			return "", io.EOF
		}
		if err != nil {
			return "", err
		}
		if resp == nil {
			continue
		}
		if text := resp.Text(); text != "" {
			return text, nil
		}
	}
}

func (s *geminiStream) Close() error {
	s.stop()
	return nil
}
