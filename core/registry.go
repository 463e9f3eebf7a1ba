package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ProviderRegistry is the default Registry implementation, keyed by provider
// slug. Registration is immutable once a slug is taken.
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{providers: make(map[string]Provider)}
}

func (r *ProviderRegistry) Register(provider Provider) error {
	if provider == nil {
		return fmt.Errorf("core: provider is nil")
	}
	slug := strings.TrimSpace(provider.Slug())
	if slug == "" {
		return fmt.Errorf("core: provider slug is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[slug]; exists {
		return fmt.Errorf("core: provider already registered: %s", slug)
	}
	r.providers[slug] = provider
	return nil
}

func (r *ProviderRegistry) Get(slug string) (Provider, bool) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, false
	}
	r.mu.RLock()
	provider, ok := r.providers[slug]
	r.mu.RUnlock()
	return provider, ok
}

func (r *ProviderRegistry) List() []Provider {
	r.mu.RLock()
	keys := make([]string, 0, len(r.providers))
	for slug := range r.providers {
		keys = append(keys, slug)
	}
	sort.Strings(keys)
	providers := make([]Provider, 0, len(keys))
	for _, slug := range keys {
		providers = append(providers, r.providers[slug])
	}
	r.mu.RUnlock()
	return providers
}

var _ Registry = (*ProviderRegistry)(nil)
