// Package compat validates combinations of runtime stack resources against
// a declarative compatibility matrix. The validator is pure: it performs no
// I/O, holds no mutable state, and reports verdicts instead of errors.
package compat

import (
	"sort"
)

// IntentModeSpec describes what an intent mode needs from the rest of the
// stack.
type IntentModeSpec struct {
	// RequiresEmbedding is true when the mode cannot run without an
	// embedding model.
	RequiresEmbedding bool `json:"requires_embedding"`

	// MinModelSize is the smallest acceptable model size in billions of
	// parameters, 0 for no floor.
	MinModelSize int `json:"min_model_size"`
}

// Matrix is the declarative compatibility table for the runtime stack.
// A Matrix is immutable after construction; build a new one (or Clone and
// modify before first use) instead of mutating a shared instance.
type Matrix struct {
	// KernelRuntimes maps each kernel to the runtimes it supports.
	KernelRuntimes map[string][]string `json:"kernel_runtimes,omitempty"`

	// RuntimeProviders maps each runtime to the providers it can host.
	RuntimeProviders map[string][]string `json:"runtime_providers,omitempty"`

	// ProviderModels maps each provider to the models it serves.
	ProviderModels map[string][]string `json:"provider_models,omitempty"`

	// EmbeddingProviders maps each embedding model to the providers that
	// can serve it.
	EmbeddingProviders map[string][]string `json:"embedding_providers,omitempty"`

	// IntentModes maps each intent mode to its requirements.
	IntentModes map[string]IntentModeSpec `json:"intent_modes,omitempty"`
}

// DefaultMatrix returns the built-in compatibility table. Deployments can
// override individual dimensions through configuration; dimensions left
// empty keep these defaults.
func DefaultMatrix() *Matrix {
	return &Matrix{
		KernelRuntimes: map[string][]string{
			"unified": {"native", "container"},
			"modular": {"native", "container", "remote"},
			"legacy":  {"native"},
		},
		RuntimeProviders: map[string][]string{
			"native":    {"openai", "anthropic", "ollama"},
			"container": {"openai", "anthropic", "ollama", "vllm"},
			"remote":    {"openai", "anthropic"},
		},
		ProviderModels: map[string][]string{
			"openai":    {"gpt-4o", "gpt-4o-mini", "o3-mini"},
			"anthropic": {"claude-3-5-sonnet", "claude-3-5-haiku"},
			"ollama":    {"llama3.1-8b", "llama3.1-70b", "mistral-7b", "qwen2.5-14b"},
			"vllm":      {"llama3.1-8b", "llama3.1-70b"},
		},
		EmbeddingProviders: map[string][]string{
			"nomic-embed-text":       {"ollama"},
			"all-minilm":             {"ollama"},
			"text-embedding-3-small": {"openai"},
			"voyage-3-lite":          {"anthropic"},
		},
		IntentModes: map[string]IntentModeSpec{
			"simple":   {RequiresEmbedding: false, MinModelSize: 0},
			"auto":     {RequiresEmbedding: false, MinModelSize: 7},
			"expert":   {RequiresEmbedding: true, MinModelSize: 8},
			"research": {RequiresEmbedding: true, MinModelSize: 70},
		},
	}
}

// Clone returns a deep copy of the matrix.
func (m *Matrix) Clone() *Matrix {
	c := &Matrix{
		KernelRuntimes:     cloneListMap(m.KernelRuntimes),
		RuntimeProviders:   cloneListMap(m.RuntimeProviders),
		ProviderModels:     cloneListMap(m.ProviderModels),
		EmbeddingProviders: cloneListMap(m.EmbeddingProviders),
		IntentModes:        make(map[string]IntentModeSpec, len(m.IntentModes)),
	}
	for k, v := range m.IntentModes {
		c.IntentModes[k] = v
	}
	return c
}

// Merge returns a copy of the matrix with every non-empty dimension of the
// override replacing the corresponding dimension wholesale. Used when a
// deployment config customizes part of the table.
func (m *Matrix) Merge(override *Matrix) *Matrix {
	merged := m.Clone()
	if override == nil {
		return merged
	}
	if len(override.KernelRuntimes) > 0 {
		merged.KernelRuntimes = cloneListMap(override.KernelRuntimes)
	}
	if len(override.RuntimeProviders) > 0 {
		merged.RuntimeProviders = cloneListMap(override.RuntimeProviders)
	}
	if len(override.ProviderModels) > 0 {
		merged.ProviderModels = cloneListMap(override.ProviderModels)
	}
	if len(override.EmbeddingProviders) > 0 {
		merged.EmbeddingProviders = cloneListMap(override.EmbeddingProviders)
	}
	if len(override.IntentModes) > 0 {
		merged.IntentModes = make(map[string]IntentModeSpec, len(override.IntentModes))
		for k, v := range override.IntentModes {
			merged.IntentModes[k] = v
		}
	}
	return merged
}

// Kernels returns the known kernels in sorted order.
func (m *Matrix) Kernels() []string { return sortedKeys(m.KernelRuntimes) }

// Runtimes returns the known runtimes in sorted order.
func (m *Matrix) Runtimes() []string { return sortedKeys(m.RuntimeProviders) }

// Providers returns the known providers in sorted order.
func (m *Matrix) Providers() []string { return sortedKeys(m.ProviderModels) }

func cloneListMap(src map[string][]string) map[string][]string {
	dst := make(map[string][]string, len(src))
	for k, v := range src {
		dst[k] = append([]string(nil), v...)
	}
	return dst
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
