package config

import (
	"context"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/openswitchboard/switchboard/pkg/compat"
)

// Built-in schema names.
const (
	// SchemaSettings validates a full deployment settings document.
	SchemaSettings = "settings"

	// SchemaStack validates managed configuration values for the runtime
	// stack, as stored and as seeded through defaults.
	SchemaStack = "stack"

	// SchemaMatrix validates a compatibility matrix override.
	SchemaMatrix = "matrix"
)

// SchemaRegistry manages CUE schemas for validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}
	sr.registerBuiltInSchemas()
	return sr
}

// Context returns the CUE context schemas are compiled in. Values unified
// against registry schemas must come from this context.
func (sr *SchemaRegistry) Context() *cue.Context {
	return sr.ctx
}

func (sr *SchemaRegistry) registerBuiltInSchemas() {
	// Compile errors in built-ins are programming errors, not runtime
	// conditions.
	for name, schema := range map[string]string{
		SchemaSettings: builtinSettingsSchema,
		SchemaStack:    builtinStackSchema,
		SchemaMatrix:   builtinMatrixSchema,
	} {
		if err := sr.RegisterSchema(name, schema); err != nil {
			panic(fmt.Sprintf("built-in schema %s: %v", name, err))
		}
	}
}

// RegisterSchema registers a CUE schema with the given name. When the
// schema source declares a definition, the definition becomes the schema
// value; otherwise the whole compiled source does.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	sr.schemas[name] = schemaValue(val)
	return nil
}

// schemaValue picks the value data gets unified against: the first
// definition in the compiled source, or the source itself when it declares
// none.
func schemaValue(val cue.Value) cue.Value {
	iter, err := val.Fields(cue.Definitions(true), cue.Optional(true))
	if err != nil {
		return val
	}
	for iter.Next() {
		if iter.Selector().IsDefinition() {
			return iter.Value()
		}
	}
	return val
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateAgainstSchema validates data against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// ValidateValue validates a CUE value against a named schema. The value
// must come from this registry's context.
func (sr *SchemaRegistry) ValidateValue(val cue.Value, schemaName string) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	unified := schema.Unify(val)
	return unified.Validate(cue.Concrete(true))
}

// ListSchemas returns all registered schema names.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	return names
}

// ValidateStackValues validates managed configuration values against the
// stack schema.
func (sr *SchemaRegistry) ValidateStackValues(ctx context.Context, values map[string]interface{}) error {
	return sr.ValidateAgainstSchema(ctx, SchemaStack, values)
}

// ValidateMatrixOverride validates a compatibility matrix override against
// the matrix schema.
func (sr *SchemaRegistry) ValidateMatrixOverride(ctx context.Context, override *compat.Matrix) error {
	return sr.ValidateAgainstSchema(ctx, SchemaMatrix, override)
}

// Built-in schema definitions

const builtinSettingsSchema = `
// Deployment settings for a switchboard daemon.
#Settings: {
	// environment is the deployment environment.
	environment?: "development" | "staging" | "production"

	// server configures the HTTP API listener.
	server?: {
		listen_addr?:      string & !=""
		mode?:             "debug" | "release" | "test"
		read_timeout?:     string
		write_timeout?:    string
		shutdown_timeout?: string
		trusted_proxies?: [...string]
	}

	// store configures where managed configuration values live.
	store?: {
		path?:  string & !=""
		watch?: bool
	}

	// audit configures audit log retention.
	audit?: {
		max_entries?:    int & >=0
		retention_days?: int & >=0
	}

	// runtime lists the services the control plane supervises.
	runtime?: {
		services?: [...string & !=""]
	}

	// telemetry configures logging, tracing and metrics.
	telemetry?: {
		service_name?: string
		logging?: {
			level?:  "trace" | "debug" | "info" | "warn" | "error" | "fatal"
			format?: "console" | "json"
			output?: string
			caller?: bool
		}
		tracing?: {
			enabled?:       bool
			exporter?:      "otlp" | "stdout" | "none"
			endpoint?:      string
			sampling_rate?: number & >=0 & <=1
			insecure?:      bool
		}
		metrics?: {
			enabled?:   bool
			namespace?: string
		}
	}

	// policy configures the change review gate.
	policy?: {
		enabled?: bool
		paths?: [...string & !=""]
		watch?: bool
	}

	// matrix overrides dimensions of the compatibility table.
	matrix?: {
		kernel_runtimes?: {[string]: [...string]}
		runtime_providers?: {[string]: [...string]}
		provider_models?: {[string]: [...string]}
		embedding_providers?: {[string]: [...string]}
		intent_modes?: {[string]: {
			requires_embedding?: bool
			min_model_size?:     int & >=0
		}}
	}

	// defaults seed an empty store with managed values on first start.
	defaults?: {
		decision_strategy?: string & !=""
		intent_mode?:       string & !=""
		kernel?:            string & !=""
		runtime?:           string & !=""
		provider?:          string & !=""
		model?:             string & !=""
		embedding_model?:   string
		...
	}
}
`

const builtinStackSchema = `
// Managed configuration values for the runtime stack.
#Stack: {
	decision_strategy?: string & !=""
	intent_mode?:       string & !=""
	kernel?:            string & !=""
	runtime?:           string & !=""
	provider?:          string & !=""
	model?:             string & !=""
	embedding_model?:   string
	...
}
`

const builtinMatrixSchema = `
// Compatibility matrix override.
#Matrix: {
	kernel_runtimes?: {[string]: [...string]}
	runtime_providers?: {[string]: [...string]}
	provider_models?: {[string]: [...string]}
	embedding_providers?: {[string]: [...string]}
	intent_modes?: {[string]: {
		requires_embedding?: bool
		min_model_size?:     int & >=0
	}}
}
`
