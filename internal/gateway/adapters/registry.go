package adapters

import (
	"fmt"
	"sort"
	"strings"

	"github.com/smallbiznis/panelbilling/internal/gateway/domain"
)

// DefaultProvider is used when GATEWAY_PROVIDER is empty.
const DefaultProvider = "stripe"

// Registry holds one adapter factory per payment provider.
type Registry struct {
	factories map[string]domain.AdapterFactory
}

// NewRegistry indexes factories by lower-cased provider name. Two factories
// claiming the same provider is a wiring bug and fails fast.
func NewRegistry(factories ...domain.AdapterFactory) (*Registry, error) {
	registry := &Registry{factories: make(map[string]domain.AdapterFactory, len(factories))}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		provider := normalizeProvider(factory.Provider())
		if provider == "" {
			return nil, fmt.Errorf("%w: factory without provider name", domain.ErrInvalidConfig)
		}
		if _, dup := registry.factories[provider]; dup {
			return nil, fmt.Errorf("%w: provider %s registered twice", domain.ErrInvalidConfig, provider)
		}
		registry.factories[provider] = factory
	}
	return registry, nil
}

// Providers lists the registered provider names in order.
func (r *Registry) Providers() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.factories))
	for provider := range r.factories {
		out = append(out, provider)
	}
	sort.Strings(out)
	return out
}

// NewAdapter builds the gateway for provider, falling back to DefaultProvider.
func (r *Registry) NewAdapter(provider string, cfg domain.AdapterConfig) (domain.Gateway, error) {
	provider = normalizeProvider(provider)
	if provider == "" {
		provider = DefaultProvider
	}
	if r == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrProviderNotFound, provider)
	}
	factory, ok := r.factories[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s (supported: %s)",
			domain.ErrProviderNotFound, provider, strings.Join(r.Providers(), ", "))
	}
	return factory.NewAdapter(cfg)
}

func normalizeProvider(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
