package llm

import (
	"context"
	"fmt"
	"strings"

	"PaperTriage/internal/config"
	"PaperTriage/internal/ports"
)

// NoProvider selects fallback-only operation explicitly.
const NoProvider = "none"

// Unavailable is the model used when nothing is configured. It never calls out.
type Unavailable struct {
	name string
}

var _ ports.LanguageModel = Unavailable{}

// NewUnavailable names the missing provider for diagnostics.
func NewUnavailable(name string) Unavailable {
	if name == "" {
		name = NoProvider
	}
	return Unavailable{name: name}
}

func (u Unavailable) Name() string    { return u.name }
func (u Unavailable) Available() bool { return false }

// Complete always fails with ErrProviderUnavailable.
func (u Unavailable) Complete(context.Context, string) (string, error) {
	return "", fmt.Errorf("%w: %s", ErrProviderUnavailable, u.name)
}

// Registry resolves models by provider name.
type Registry struct {
	models      map[string]ports.LanguageModel
	defaultName string
}

var _ ports.ModelResolver = (*Registry)(nil)

// NewRegistry registers models under their Name.
func NewRegistry(defaultName string, models ...ports.LanguageModel) *Registry {
	r := &Registry{models: map[string]ports.LanguageModel{}, defaultName: normalizeName(defaultName)}
	for _, m := range models {
		r.models[normalizeName(m.Name())] = m
	}
	return r
}

// NewRegistryFromConfig builds one ChatClient per configured provider.
func NewRegistryFromConfig(cfg config.LLMConfig) *Registry {
	models := make([]ports.LanguageModel, 0, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		models = append(models, NewChatClient(normalizeName(name), pc, cfg.Timeout))
	}
	return NewRegistry(cfg.DefaultProvider, models...)
}

// Resolve returns the named model; an empty name means the default. Unknown
// names and "none" resolve to an Unavailable model.
func (r *Registry) Resolve(name string) ports.LanguageModel {
	name = normalizeName(name)
	if name == "" {
		name = r.defaultName
	}
	if name == "" || name == NoProvider {
		return NewUnavailable(NoProvider)
	}
	if m, ok := r.models[name]; ok {
		return m
	}
	return NewUnavailable(name)
}

// Availability lists registered providers with whether each can be called.
func (r *Registry) Availability() map[string]bool {
	out := make(map[string]bool, len(r.models))
	for name, m := range r.models {
		out[name] = m.Available()
	}
	return out
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
