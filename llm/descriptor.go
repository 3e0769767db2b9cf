package llm

import (
	"time"
)

// RateLimit is a provider's requests-per-minute budget over a sliding window.
type RateLimit struct {
	RPM    int
	Window time.Duration
}

// ModelDescriptor describes one model offered by a provider.
// RPMOverride, when non-zero, replaces the provider-level RPM for this model.
type ModelDescriptor struct {
	ID          string
	DisplayName string
	RPMOverride int
}

// ProviderDescriptor describes one selectable LLM backend.
type ProviderDescriptor struct {
	ID             string
	DisplayName    string
	Models         []ModelDescriptor
	DefaultModelID string
	RateLimit      RateLimit
}

// EffectiveRPM returns the requests-per-minute budget for the given model:
// the model's override when set, otherwise the provider-level RPM.
func (d ProviderDescriptor) EffectiveRPM(modelID string) int {
	for _, m := range d.Models {
		if m.ID == modelID && m.RPMOverride > 0 {
			return m.RPMOverride
		}
	}
	return d.RateLimit.RPM
}

// Model returns the descriptor for the given model id, falling back to the
// provider's default model when the id is unknown or empty.
func (d ProviderDescriptor) Model(modelID string) ModelDescriptor {
	for _, m := range d.Models {
		if m.ID == modelID {
			return m
		}
	}
	for _, m := range d.Models {
		if m.ID == d.DefaultModelID {
			return m
		}
	}
	return ModelDescriptor{ID: modelID}
}
