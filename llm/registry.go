package llm

import (
	"fmt"
	"os"
	"sync"
	"time"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderDeepSeek  = "deepseek"
	ProviderOllama    = "ollama"
)

// AdapterFactory constructs a ProviderAdapter for one provider id. The
// credential is an opaque string passed through from the host's settings:
// an API key for hosted vendors, a host URL for Ollama.
type AdapterFactory func(credential, modelID string) (ProviderAdapter, error)

// Registry manages the set of known providers and creates adapters for them.
// Selection happens by provider id only; call sites never inspect adapter
// types.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]ProviderDescriptor
	factories   map[string]AdapterFactory
	order       []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		descriptors: make(map[string]ProviderDescriptor),
		factories:   make(map[string]AdapterFactory),
	}
}

// Register adds a provider descriptor and its adapter factory.
// Registering an id twice replaces the previous entry.
func (r *Registry) Register(desc ProviderDescriptor, factory AdapterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.descriptors[desc.ID]; !exists {
		r.order = append(r.order, desc.ID)
	}
	r.descriptors[desc.ID] = desc
	r.factories[desc.ID] = factory
}

// Descriptors returns all registered providers in registration order.
func (r *Registry) Descriptors() []ProviderDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	descs := make([]ProviderDescriptor, 0, len(r.order))
	for _, id := range r.order {
		descs = append(descs, r.descriptors[id])
	}
	return descs
}

// Descriptor returns the descriptor for a provider id.
func (r *Registry) Descriptor(id string) (ProviderDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	desc, ok := r.descriptors[id]
	return desc, ok
}

// CreateProvider constructs an adapter for the given provider id. The model
// id falls back to the provider's default when empty. Returns nil (no error)
// for unknown provider ids so hosts can treat an unconfigured selection as
// "no active provider" rather than a failure.
func (r *Registry) CreateProvider(id, credential, modelID string) (ProviderAdapter, error) {
	r.mu.RLock()
	desc, known := r.descriptors[id]
	factory := r.factories[id]
	r.mu.RUnlock()

	if !known || factory == nil {
		return nil, nil
	}
	if modelID == "" {
		modelID = desc.DefaultModelID
	}
	adapter, err := factory(credential, modelID)
	if err != nil {
		return nil, fmt.Errorf("create provider %s: %w", id, err)
	}
	return adapter, nil
}

// CredentialFromEnv resolves a credential for a provider from the
// environment when the host did not supply one.
func CredentialFromEnv(id string) string {
	switch id {
	case ProviderAnthropic:
		return os.Getenv("ANTHROPIC_API_KEY")
	case ProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	case ProviderDeepSeek:
		return os.Getenv("DEEPSEEK_API_KEY")
	case ProviderOllama:
		return os.Getenv("OLLAMA_HOST")
	default:
		return ""
	}
}

// DefaultDescriptors returns the built-in provider catalog. Hosts may amend
// rate limits per deployment; these are conservative vendor defaults.
func DefaultDescriptors() []ProviderDescriptor {
	minute := time.Minute
	return []ProviderDescriptor{
		{
			ID:          ProviderAnthropic,
			DisplayName: "Anthropic",
			Models: []ModelDescriptor{
				{ID: "claude-sonnet-4-20250514", DisplayName: "Claude Sonnet 4"},
				{ID: "claude-haiku-4-5", DisplayName: "Claude Haiku 4.5", RPMOverride: 100},
			},
			DefaultModelID: "claude-sonnet-4-20250514",
			RateLimit:      RateLimit{RPM: 50, Window: minute},
		},
		{
			ID:          ProviderOpenAI,
			DisplayName: "OpenAI",
			Models: []ModelDescriptor{
				{ID: "gpt-4o", DisplayName: "GPT-4o"},
				{ID: "gpt-4o-mini", DisplayName: "GPT-4o mini", RPMOverride: 200},
			},
			DefaultModelID: "gpt-4o",
			RateLimit:      RateLimit{RPM: 60, Window: minute},
		},
		{
			ID:          ProviderDeepSeek,
			DisplayName: "DeepSeek",
			Models: []ModelDescriptor{
				{ID: "deepseek-chat", DisplayName: "DeepSeek Chat"},
				{ID: "deepseek-reasoner", DisplayName: "DeepSeek Reasoner"},
			},
			DefaultModelID: "deepseek-chat",
			RateLimit:      RateLimit{RPM: 30, Window: minute},
		},
		{
			ID:          ProviderOllama,
			DisplayName: "Ollama (local)",
			Models: []ModelDescriptor{
				{ID: "llama3.1", DisplayName: "Llama 3.1"},
				{ID: "qwen2.5", DisplayName: "Qwen 2.5"},
			},
			DefaultModelID: "llama3.1",
			// Local backends have no vendor ceiling; the budget only
			// throttles runaway tool loops.
			RateLimit: RateLimit{RPM: 600, Window: minute},
		},
	}
}
