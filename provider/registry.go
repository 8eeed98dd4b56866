// Package provider defines the static catalog of LLM providers and models,
// including per-token pricing and API key formats.
package provider

import (
	"regexp"
	"sort"
	"strings"
)

// ModelSpec describes a single model offered by a provider.
// Prices are credits per 1M tokens. Premium rates apply to long-context
// calls when defined (zero means the model has no premium tier).
type ModelSpec struct {
	ID                 string
	DisplayName        string
	InputPer1M         float64
	OutputPer1M        float64
	PremiumInputPer1M  float64
	PremiumOutputPer1M float64
	ContextWindow      int
	Free               bool
}

// ProviderSpec describes a provider and its ordered model list.
// The first model in Models is the provider's default.
type ProviderSpec struct {
	ID          string
	DisplayName string
	BaseURL     string
	KeyPrefix   string
	keyPattern  *regexp.Regexp
	Models      []ModelSpec
}

// Registry is an immutable catalog of providers, loaded at process start.
type Registry struct {
	providers map[string]*ProviderSpec
	ordered   []*ProviderSpec
}

// NewRegistry builds a registry from the given specs.
func NewRegistry(specs []*ProviderSpec) *Registry {
	r := &Registry{providers: make(map[string]*ProviderSpec, len(specs))}
	for _, spec := range specs {
		r.providers[spec.ID] = spec
		r.ordered = append(r.ordered, spec)
	}
	return r
}

// Default returns the built-in provider catalog.
func Default() *Registry {
	return NewRegistry(defaultProviders())
}

// ListProviders returns all providers in registration order.
func (r *Registry) ListProviders() []*ProviderSpec {
	out := make([]*ProviderSpec, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Get returns the provider spec for the given id.
func (r *Registry) Get(providerID string) (*ProviderSpec, bool) {
	p, ok := r.providers[providerID]
	return p, ok
}

// ModelsFor returns the ordered model list for a provider, or nil if unknown.
func (r *Registry) ModelsFor(providerID string) []ModelSpec {
	p, ok := r.providers[providerID]
	if !ok {
		return nil
	}
	out := make([]ModelSpec, len(p.Models))
	copy(out, p.Models)
	return out
}

// FindModel looks up a specific model under a provider.
func (r *Registry) FindModel(providerID, modelID string) (ModelSpec, bool) {
	p, ok := r.providers[providerID]
	if !ok {
		return ModelSpec{}, false
	}
	for _, m := range p.Models {
		if m.ID == modelID {
			return m, true
		}
	}
	return ModelSpec{}, false
}

// DefaultModel returns the provider's first (default) model.
func (r *Registry) DefaultModel(providerID string) (ModelSpec, bool) {
	p, ok := r.providers[providerID]
	if !ok || len(p.Models) == 0 {
		return ModelSpec{}, false
	}
	return p.Models[0], true
}

// ValidateKeyFormat reports whether key matches the provider's key format.
// Unknown providers always fail validation.
func (r *Registry) ValidateKeyFormat(providerID, key string) bool {
	p, ok := r.providers[providerID]
	if !ok {
		return false
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return false
	}
	if p.keyPattern != nil {
		return p.keyPattern.MatchString(key)
	}
	if p.KeyPrefix != "" {
		return strings.HasPrefix(key, p.KeyPrefix)
	}
	return true
}

// DetectProviderFromKeyPrefix guesses the owning provider from a key prefix.
// When several providers share a prefix the longest prefix wins. Returns ""
// if no provider claims the key.
func (r *Registry) DetectProviderFromKeyPrefix(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}

	// Sort candidates by prefix length so "sk-or-" beats "sk-".
	candidates := make([]*ProviderSpec, 0, len(r.ordered))
	for _, p := range r.ordered {
		if p.KeyPrefix != "" && strings.HasPrefix(key, p.KeyPrefix) {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return len(candidates[i].KeyPrefix) > len(candidates[j].KeyPrefix)
	})

	// Prefer a candidate whose full pattern also matches.
	for _, p := range candidates {
		if p.keyPattern == nil || p.keyPattern.MatchString(key) {
			return p.ID
		}
	}
	return candidates[0].ID
}
