// Package config parses and validates switchboard deployment settings
// written in CUE.
//
// # Overview
//
// A switchboard daemon boots from a settings document that describes the
// HTTP listener, the managed configuration store, audit retention, the
// supervised service inventory, telemetry, the policy gate and optional
// compatibility matrix overrides. This package turns CUE sources into a
// validated Settings value; everything the sources leave out keeps the
// values from DefaultSettings.
//
// # Features
//
//   - CUE parsing from files, directories, and inline content
//   - Schema validation with built-in schemas for settings, managed stack
//     values, and matrix overrides
//   - Defaults for omitted fields and SWITCHBOARD_* environment overrides
//   - Error reporting with file locations and line numbers
//   - Unification of multiple sources into one document
//
// # Usage Example
//
//	parser := config.NewParser()
//
//	settings, err := parser.Load(ctx, "/etc/switchboard/switchboard.cue")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	matrix := settings.EffectiveMatrix()
//	telemetryCfg := settings.TelemetryConfig()
//
// Parse keeps every problem instead of stopping at the first one:
//
//	parsed, err := parser.Parse(ctx, sources)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, e := range parsed.Errors {
//	    fmt.Println(e.String())
//	}
//
// # Settings Structure
//
// A typical settings document:
//
//	environment: "production"
//
//	server: {
//	    listen_addr: ":8080"
//	    mode:        "release"
//	}
//
//	store: {
//	    path:  "/var/lib/switchboard/switchboard.yaml"
//	    watch: true
//	}
//
//	policy: {
//	    enabled: true
//	    paths: ["/etc/switchboard/policies"]
//	    watch: true
//	}
//
//	matrix: {
//	    provider_models: {
//	        ollama: ["llama3.1-8b", "llama3.1-70b"]
//	    }
//	}
//
//	defaults: {
//	    decision_strategy: "balanced"
//	    provider:          "ollama"
//	    model:             "llama3.1-8b"
//	}
//
// The defaults block seeds an empty store on first start and merges per
// key with the built-in seed values, so a partial block still produces a
// complete stack.
//
// # Environment Overrides
//
// After file defaults, SWITCHBOARD_* variables override individual
// settings (listen address, store path, log level and format, tracing
// endpoint, policy paths, environment). Overrides run through the same
// validation as file values.
//
// # Schema Validation
//
// Built-in schemas enforce configuration correctness:
//
//   - settings: validates a full deployment document, rejecting unknown
//     fields and out-of-range values
//   - stack: validates managed configuration values such as seeded
//     defaults
//   - matrix: validates a compatibility matrix override
//
// Custom schemas can be registered for deployment-specific validation.
//
// # Error Handling
//
// Parsing and validation errors carry location information:
//
//	ValidationError{
//	    File: "switchboard.cue",
//	    Line: 12,
//	    Column: 5,
//	    Path: "server.mode",
//	    Message: "2 errors in empty disjunction ...",
//	    Severity: "error",
//	}
//
// # Thread Safety
//
// Parser and SchemaRegistry are safe for concurrent use. Settings values
// are plain data; treat them as immutable once parsed.
package config
