package llm

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"cyberchat-go/internal/config"
	"cyberchat-go/pkg/log"
)

// ErrUnknownProvider is returned by Registry.Get for a name that was not configured.
var ErrUnknownProvider = errors.New("unknown llm provider")

// Registry holds the configured providers, keyed by configuration name.
type Registry struct {
	active    string
	providers map[string]Provider
}

// NewRegistry builds one Provider per configured entry. Entries without a type are skipped.
func NewRegistry(cfg config.LLMConfig) (*Registry, error) {
	timeout := config.Seconds(cfg.TimeoutSeconds, 2*time.Minute)
	r := &Registry{active: cfg.Active, providers: make(map[string]Provider)}

	for name, pc := range cfg.Providers {
		if pc.Type == "" {
			continue
		}
		var p Provider
		switch pc.Type {
		case "openai":
			p = NewOpenAIProvider(name, pc, timeout)
		case "anthropic":
			p = NewAnthropicProvider(name, pc, timeout)
		case "ollama":
			p = NewOllamaProvider(name, pc, timeout)
		case "gemini":
			p = NewGeminiProvider(name, pc)
		default:
			return nil, fmt.Errorf("provider %q: unsupported type %q", name, pc.Type)
		}
		r.providers[name] = p
		log.Infof("[LLM] registered provider %s (type: %s, model: %s)", name, pc.Type, pc.Model)
	}

	if _, ok := r.providers[r.active]; !ok {
		return nil, fmt.Errorf("%w: active provider %q is not configured", ErrUnknownProvider, r.active)
	}
	return r, nil
}

// NewStaticRegistry wraps already-built providers. The first one is active.
func NewStaticRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	for i, p := range providers {
		if i == 0 {
			r.active = p.Name()
		}
		r.providers[p.Name()] = p
	}
	return r
}

// Get returns the named provider. An empty name selects the active provider.
func (r *Registry) Get(name string) (Provider, error) {
	if name == "" {
		name = r.active
	}
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

// Active is the default provider name.
func (r *Registry) Active() string { return r.active }

// Names lists the configured provider names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
