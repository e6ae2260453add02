package ai

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// ProviderFactory builds a provider from the gateway settings.
type ProviderFactory func(opts Options) (Provider, error)

// Options are the settings shared by all gateway providers.
type Options struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ProviderFactory)}
}

// DefaultRegistry knows the REST client ("gemini") and the SDK client ("genai").
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("gemini", func(o Options) (Provider, error) {
		return NewGeminiProvider(o.BaseURL, o.APIKey, o.Model, o.Timeout), nil
	})
	r.Register("genai", func(o Options) (Provider, error) {
		return NewGenAIProvider(o.BaseURL, o.APIKey, o.Model, o.Timeout), nil
	})
	return r
}

func (r *Registry) Register(name string, f ProviderFactory) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

func (r *Registry) Get(name string, opts Options) (Provider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown ai provider: %s (have %s)", name, strings.Join(r.Names(), ", "))
	}
	return f(opts)
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for n := range r.factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
