package compat

import (
	"fmt"
	"sort"
	"strings"
)

// Dimension names one axis of the compatibility matrix. Full-stack issues
// are tagged with the dimension that produced them so callers can map
// findings back to the resource that caused them.
type Dimension string

const (
	// DimensionKernelRuntime covers kernel/runtime pairing.
	DimensionKernelRuntime Dimension = "kernel_runtime"

	// DimensionRuntimeProvider covers runtime/provider pairing.
	DimensionRuntimeProvider Dimension = "runtime_provider"

	// DimensionProviderModel covers provider/model pairing.
	DimensionProviderModel Dimension = "provider_model"

	// DimensionEmbedding covers embedding model availability.
	DimensionEmbedding Dimension = "embedding"

	// DimensionIntentMode covers intent mode requirements.
	DimensionIntentMode Dimension = "intent_mode"
)

// Result is a single-dimension verdict.
type Result struct {
	// Compatible is true when the pairing is allowed.
	Compatible bool `json:"compatible"`

	// Message explains an incompatible verdict. Empty when compatible.
	Message string `json:"message,omitempty"`
}

// Issue is one failed check from a full-stack validation.
type Issue struct {
	// Dimension is the axis that failed.
	Dimension Dimension `json:"dimension"`

	// Message explains the failure.
	Message string `json:"message"`
}

// StackConfig is a full runtime stack selection to validate.
type StackConfig struct {
	Kernel         string `json:"kernel"`
	Runtime        string `json:"runtime"`
	Provider       string `json:"provider"`
	Model          string `json:"model"`
	EmbeddingModel string `json:"embedding_model"`
	IntentMode     string `json:"intent_mode"`
}

// Validator checks stack selections against a compatibility matrix.
// The zero value is not usable; construct with NewValidator. Validators
// never return errors: an unknown value is an incompatible verdict, not a
// fault.
type Validator struct {
	matrix *Matrix
}

// NewValidator creates a validator over the given matrix. A nil matrix
// selects the built-in default table.
func NewValidator(matrix *Matrix) *Validator {
	if matrix == nil {
		matrix = DefaultMatrix()
	}
	return &Validator{matrix: matrix}
}

// Matrix returns the table the validator checks against.
func (v *Validator) Matrix() *Matrix {
	return v.matrix
}

// ValidateKernelRuntime checks that the kernel supports the runtime.
func (v *Validator) ValidateKernelRuntime(kernel, runtime string) Result {
	return checkMembership(v.matrix.KernelRuntimes, kernel, runtime,
		"kernel", `kernel %q does not support runtime %q`)
}

// ValidateRuntimeProvider checks that the runtime can host the provider.
func (v *Validator) ValidateRuntimeProvider(runtime, provider string) Result {
	return checkMembership(v.matrix.RuntimeProviders, runtime, provider,
		"runtime", `runtime %q does not support provider %q`)
}

// ValidateProviderModel checks that the provider serves the model.
func (v *Validator) ValidateProviderModel(provider, model string) Result {
	return checkMembership(v.matrix.ProviderModels, provider, model,
		"provider", `provider %q does not serve model %q`)
}

// ValidateEmbeddingModel checks that the embedding model is available
// through the provider.
func (v *Validator) ValidateEmbeddingModel(embeddingModel, provider string) Result {
	return checkMembership(v.matrix.EmbeddingProviders, embeddingModel, provider,
		"embedding model", `embedding model %q is not available through provider %q`)
}

// ValidateIntentMode checks the intent mode's requirements. modelSize is
// the selected model's size in billions of parameters, 0 when unknown;
// an unknown size skips the minimum-size floor rather than failing it.
func (v *Validator) ValidateIntentMode(mode string, modelSize int, hasEmbedding bool) Result {
	spec, ok := v.matrix.IntentModes[mode]
	if !ok {
		return Result{Message: fmt.Sprintf("unknown intent mode %q", mode)}
	}
	if spec.RequiresEmbedding && !hasEmbedding {
		return Result{Message: fmt.Sprintf("intent mode %q requires an embedding model", mode)}
	}
	if spec.MinModelSize > 0 && modelSize > 0 && modelSize < spec.MinModelSize {
		return Result{Message: fmt.Sprintf(
			"intent mode %q requires a model of at least %dB parameters (selected model is %dB)",
			mode, spec.MinModelSize, modelSize)}
	}
	return Result{Compatible: true}
}

// ValidateStack runs every dimension check against the stack and returns
// all failures. Checks never short-circuit: a stack with three problems
// reports three issues. The embedding check is skipped only when no
// embedding model is selected.
func (v *Validator) ValidateStack(stack StackConfig) []Issue {
	var issues []Issue

	add := func(dim Dimension, r Result) {
		if !r.Compatible {
			issues = append(issues, Issue{Dimension: dim, Message: r.Message})
		}
	}

	add(DimensionKernelRuntime, v.ValidateKernelRuntime(stack.Kernel, stack.Runtime))
	add(DimensionRuntimeProvider, v.ValidateRuntimeProvider(stack.Runtime, stack.Provider))
	add(DimensionProviderModel, v.ValidateProviderModel(stack.Provider, stack.Model))
	if stack.EmbeddingModel != "" {
		add(DimensionEmbedding, v.ValidateEmbeddingModel(stack.EmbeddingModel, stack.Provider))
	}
	add(DimensionIntentMode, v.ValidateIntentMode(
		stack.IntentMode, ParseModelSize(stack.Model), stack.EmbeddingModel != ""))

	return issues
}

// ValidateFullStack is ValidateStack flattened to a verdict and message
// list: compatible iff no issues.
func (v *Validator) ValidateFullStack(kernel, runtime, provider, model, embeddingModel, intentMode string) (bool, []string) {
	issues := v.ValidateStack(StackConfig{
		Kernel:         kernel,
		Runtime:        runtime,
		Provider:       provider,
		Model:          model,
		EmbeddingModel: embeddingModel,
		IntentMode:     intentMode,
	})
	if len(issues) == 0 {
		return true, nil
	}
	messages := make([]string, len(issues))
	for i, issue := range issues {
		messages[i] = issue.Message
	}
	return false, messages
}

// ParseModelSize extracts a model's parameter count in billions from its
// name, e.g. "llama3.1-70b" yields 70. Returns 0 when the name carries no
// recognizable size suffix (hosted models like "gpt-4o" do not advertise
// parameter counts).
func ParseModelSize(model string) int {
	tokens := strings.FieldsFunc(strings.ToLower(model), func(r rune) bool {
		return r == '-' || r == '_' || r == '.' || r == ':' || r == '/' || r == ' '
	})
	for i := len(tokens) - 1; i >= 0; i-- {
		tok := tokens[i]
		if len(tok) < 2 || tok[len(tok)-1] != 'b' {
			continue
		}
		digits := tok[:len(tok)-1]
		// Keep only the trailing digit run so "8x7b" reads as 7.
		start := len(digits)
		for start > 0 && digits[start-1] >= '0' && digits[start-1] <= '9' {
			start--
		}
		if start == len(digits) {
			continue
		}
		size := 0
		for _, c := range digits[start:] {
			size = size*10 + int(c-'0')
		}
		return size
	}
	return 0
}

// checkMembership is the shared shape of the pairing checks: the key must
// be known to the dimension, and the member must be in the key's list.
func checkMembership(dim map[string][]string, key, member, keyKind, mismatchFormat string) Result {
	allowed, ok := dim[key]
	if !ok {
		return Result{Message: fmt.Sprintf("unknown %s %q", keyKind, key)}
	}
	for _, m := range allowed {
		if m == member {
			return Result{Compatible: true}
		}
	}
	options := append([]string(nil), allowed...)
	sort.Strings(options)
	return Result{Message: fmt.Sprintf(mismatchFormat, key, member) +
		fmt.Sprintf(" (compatible: %s)", strings.Join(options, ", "))}
}
