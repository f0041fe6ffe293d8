// Package policy provides Open Policy Agent (OPA) change review for the
// switchboard control plane.
//
// The engine sits behind the control plane's plan operation as its policy
// gate: every change batch is handed to the loaded Rego policies before it
// is staged, and the verdicts either block the plan (error, critical) or
// annotate it (info, warning). Plans submitted with force skip the gate.
//
// # Architecture
//
// The package has three parts:
//
//  1. Engine - Compiles policies and evaluates change batches
//  2. Loader - Loads .rego files from disk and watches them for changes
//  3. Built-in Policies - Pre-defined guardrails for common mistakes
//
// # Usage
//
// Creating an engine and attaching it to the control plane:
//
//	engine, err := policy.NewEngine(logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	engine.WithEnvironment("production")
//	service.WithPolicyGate(engine)
//
// Loading custom policies next to the built-ins:
//
//	err = engine.LoadPolicies(ctx, []string{"/etc/switchboard/policies"})
//
// # Built-in Policies
//
// The following policies are loaded by default:
//
//  1. change-safety - Blocks deletions of kernel, runtime, provider or model
//  2. restart-budget - Warns about repeated or production backend restarts
//  3. actor-attribution - Warns when triggered_by is missing
//  4. batch-budget - Warns about oversized change batches
//
// # Custom Policies
//
// Policies see the whole batch under input.changes and the request context
// under input.context, and emit findings through a deny set:
//
//	# description: pins the provider during the model freeze
//	# severity: error
//	package custom.policies.freeze
//
//	import rego.v1
//
//	deny contains violation if {
//	    some change in input.changes
//	    change.resource_type == "provider"
//	    violation := {
//	        "message": "Provider changes are frozen until the migration completes",
//	        "severity": "error",
//	        "resource": change.resource_id,
//	    }
//	}
//
// A finding's severity overrides the policy default; string findings use
// the default. Severity "error" and "critical" block the plan, everything
// else lands in the plan's warnings.
//
// # Hot Reload
//
// The loader can watch policy paths and swap the set atomically on change;
// a file that no longer compiles keeps the previous set in place:
//
//	loader := policy.NewLoader(logger)
//	err = loader.Watch(ctx, paths, engine.Replace)
package policy
