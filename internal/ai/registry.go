package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

type ProviderFactory func(ctx context.Context, model string) (Provider, error)

// Registry maps provider names to factories. main resolves one provider at
// startup and injects it; nothing looks providers up per request.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ProviderFactory)}
}

func (r *Registry) Register(name string, f ProviderFactory) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

func (r *Registry) Get(ctx context.Context, name string, model string) (Provider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown ai provider: %s", name)
	}
	return f(ctx, model)
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Endpoints carries the connection settings of every built-in provider.
type Endpoints struct {
	AnthropicBaseURL  string
	AnthropicAPIKey   string
	OpenRouterBaseURL string
	OpenRouterAPIKey  string
	OpenRouterSiteURL string
	OpenRouterAppName string
	OllamaBaseURL     string
}

// RegisterBuiltins registers the anthropic, openrouter and ollama providers.
func RegisterBuiltins(r *Registry, e Endpoints) {
	r.Register("anthropic", func(ctx context.Context, model string) (Provider, error) {
		_ = ctx
		if strings.TrimSpace(e.AnthropicAPIKey) == "" {
			return nil, fmt.Errorf("anthropic: api key is required")
		}
		return NewAnthropicProvider(e.AnthropicBaseURL, e.AnthropicAPIKey, model), nil
	})
	r.Register("openrouter", func(ctx context.Context, model string) (Provider, error) {
		_ = ctx
		if strings.TrimSpace(e.OpenRouterAPIKey) == "" {
			return nil, fmt.Errorf("openrouter: api key is required")
		}
		return NewOpenRouterProvider(e.OpenRouterBaseURL, e.OpenRouterAPIKey, model, e.OpenRouterSiteURL, e.OpenRouterAppName), nil
	})
	r.Register("ollama", func(ctx context.Context, model string) (Provider, error) {
		_ = ctx
		return NewOllamaProvider(e.OllamaBaseURL, model), nil
	})
}
