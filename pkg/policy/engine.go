package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"

	"github.com/openswitchboard/switchboard/pkg/controlplane"
	"github.com/openswitchboard/switchboard/pkg/telemetry"
)

// Engine reviews change batches against the loaded policies. It implements
// the control plane's PolicyGate. The gate is advisory: the control plane
// turns evaluation faults into plan warnings, so the engine reports them as
// classified unavailable errors rather than swallowing them.
type Engine struct {
	mu          sync.RWMutex
	policies    map[string]*Policy
	builtins    []Policy
	environment string
	logger      zerolog.Logger
	metrics     *telemetry.Metrics
}

// NewEngine creates a policy engine with the built-in policies loaded.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*Policy),
		builtins: Builtins(),
		logger:   logger.With().Str("component", "policy").Logger(),
	}
	if err := e.Replace(nil); err != nil {
		return nil, err
	}
	e.logger.Info().Int("count", len(e.builtins)).Msg("Built-in policies loaded")
	return e, nil
}

// WithEnvironment sets the environment name policies see in their input.
// Returns the engine for chaining.
func (e *Engine) WithEnvironment(env string) *Engine {
	e.environment = env
	return e
}

// WithMetrics attaches a metrics recorder. Returns the engine for chaining.
func (e *Engine) WithMetrics(m *telemetry.Metrics) *Engine {
	e.metrics = m
	return e
}

// EvaluateChanges reviews a plan request against every enabled policy and
// returns all findings. Policies are evaluated in name order so verdicts
// come back deterministically.
func (e *Engine) EvaluateChanges(ctx context.Context, req *controlplane.PlanRequest) ([]controlplane.PolicyVerdict, error) {
	start := time.Now()
	input := &Input{
		Changes: req.Changes,
		Context: &Context{
			User:        req.TriggeredBy,
			Environment: e.environment,
			Operation:   string(controlplane.OperationPlan),
			DryRun:      req.DryRun,
			Timestamp:   time.Now().UTC(),
			Metadata:    req.Metadata,
		},
	}

	e.mu.RLock()
	enabled := make([]*Policy, 0, len(e.policies))
	for _, p := range e.policies {
		if p.Enabled {
			enabled = append(enabled, p)
		}
	}
	e.mu.RUnlock()
	sort.Slice(enabled, func(i, j int) bool { return enabled[i].Name < enabled[j].Name })

	var verdicts []controlplane.PolicyVerdict
	for _, p := range enabled {
		found, err := e.evaluatePolicy(ctx, p, input)
		if err != nil {
			e.logger.Error().Err(err).
				Str("policy", p.Name).
				Msg("Policy evaluation failed")
			return nil, controlplane.NewUnavailableError("policy "+p.Name+" evaluation failed", err).
				WithCode(controlplane.ErrCodePolicyFailed)
		}
		verdicts = append(verdicts, found...)
	}

	for _, v := range verdicts {
		e.metrics.RecordPolicyVerdict(v.Policy, v.Severity)
	}

	e.logger.Debug().
		Int("policies", len(enabled)).
		Int("verdicts", len(verdicts)).
		Dur("duration", time.Since(start)).
		Msg("Change batch reviewed")

	return verdicts, nil
}

// evaluatePolicy runs one policy's deny set over the input.
func (e *Engine) evaluatePolicy(ctx context.Context, p *Policy, input *Input) ([]controlplane.PolicyVerdict, error) {
	query := fmt.Sprintf("data.%s.deny", packageName(p.Rego))

	r := rego.New(
		rego.Module(p.Name, p.Rego),
		rego.Query(query),
		rego.Input(input),
	)

	results, err := r.Eval(ctx)
	if err != nil {
		return nil, fmt.Errorf("rego evaluation: %w", err)
	}

	var verdicts []controlplane.PolicyVerdict
	for _, result := range results {
		for _, expr := range result.Expressions {
			denySet, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, d := range denySet {
				verdicts = append(verdicts, verdictFrom(p, d))
			}
		}
	}
	return verdicts, nil
}

// verdictFrom converts one deny result into a verdict. String results use
// the policy's default severity; map results carry their own.
func verdictFrom(p *Policy, result interface{}) controlplane.PolicyVerdict {
	verdict := controlplane.PolicyVerdict{
		Policy:   p.Name,
		Severity: string(p.Severity),
	}
	switch v := result.(type) {
	case string:
		verdict.Message = v
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			verdict.Message = msg
		}
		if sev, ok := v["severity"].(string); ok {
			verdict.Severity = sev
		}
		if res, ok := v["resource"].(string); ok {
			verdict.Resource = res
		}
	default:
		verdict.Message = fmt.Sprintf("%v", result)
	}
	return verdict
}

// packageName extracts the package name from Rego code.
func packageName(code string) string {
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			parts := strings.Fields(trimmed)
			if len(parts) >= 2 {
				return parts[1]
			}
		}
	}
	return "switchboard.policies"
}

// LoadPolicies loads policy files from the given paths and swaps them in,
// keeping the built-ins. A loaded policy with a built-in's name replaces it.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	loader := NewLoader(e.logger)
	policies, err := loader.Load(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}
	if err := e.Replace(policies); err != nil {
		return err
	}
	e.logger.Info().
		Int("count", len(policies)).
		Int("sources", len(paths)).
		Msg("Policies loaded")
	return nil
}

// Replace rebuilds the policy set from the built-ins plus the given
// policies. The swap is all-or-nothing: a policy that fails to compile
// leaves the previous set in place, so a bad edit cannot wipe the gate.
// Used by the loader's watch callback on file changes.
func (e *Engine) Replace(policies []Policy) error {
	next := make(map[string]*Policy, len(e.builtins)+len(policies))
	for i := range e.builtins {
		if err := compileCheck(&e.builtins[i]); err != nil {
			return fmt.Errorf("failed to compile built-in policy %s: %w", e.builtins[i].Name, err)
		}
		next[e.builtins[i].Name] = &e.builtins[i]
	}
	for i := range policies {
		if err := compileCheck(&policies[i]); err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
		next[policies[i].Name] = &policies[i]
	}

	e.mu.Lock()
	e.policies = next
	e.mu.Unlock()
	return nil
}

// compileCheck verifies a policy's Rego parses as a module.
func compileCheck(policy *Policy) error {
	if _, err := ast.ParseModule(policy.Name, policy.Rego); err != nil {
		return fmt.Errorf("failed to parse policy: %w", err)
	}
	return nil
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	p, exists := e.policies[name]
	if !exists {
		return nil, fmt.Errorf("policy not found: %s", name)
	}
	return p, nil
}

// ListPolicies returns all loaded policies sorted by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, p := range e.policies {
		policies = append(policies, *p)
	}
	sort.Slice(policies, func(i, j int) bool { return policies[i].Name < policies[j].Name })
	return policies
}

// EnablePolicy enables a policy by name.
func (e *Engine) EnablePolicy(name string) error {
	return e.setEnabled(name, true)
}

// DisablePolicy disables a policy by name. Disabled policies stay loaded
// and can be re-enabled without reloading.
func (e *Engine) DisablePolicy(name string) error {
	return e.setEnabled(name, false)
}

func (e *Engine) setEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, exists := e.policies[name]
	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}
	p.Enabled = enabled
	e.logger.Info().Str("policy", name).Bool("enabled", enabled).Msg("Policy toggled")
	return nil
}
