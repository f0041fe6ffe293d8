package policy

import (
	"time"
)

// Builtins returns the built-in change-review policies. They are loaded at
// engine construction and can be disabled individually by name.
func Builtins() []Policy {
	return []Policy{
		changeSafetyPolicy(),
		restartBudgetPolicy(),
		actorAttributionPolicy(),
		batchBudgetPolicy(),
	}
}

// changeSafetyPolicy blocks changes that would leave the stack without a
// required dimension.
func changeSafetyPolicy() Policy {
	return Policy{
		Name:        "change-safety",
		Description: "Blocks deletions that would leave the stack without a kernel, runtime, provider or model",
		Severity:    SeverityCritical,
		Enabled:     true,
		Tags:        []string{"safety", "stack"},
		Source:      "builtin",
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package switchboard.policies.safety

import rego.v1

# Dimensions the stack cannot run without
protected_types := ["kernel", "runtime", "provider"]

deny contains violation if {
	some change in input.changes
	change.action == "delete"
	change.resource_type in protected_types
	violation := {
		"message": sprintf("Cannot delete %s: the stack always needs one", [change.resource_type]),
		"severity": "critical",
		"resource": change.resource_id,
	}
}

deny contains violation if {
	some change in input.changes
	change.action == "delete"
	change.resource_type == "config"
	change.resource_id == "model"
	violation := {
		"message": "Cannot delete the active model; switch to another model instead",
		"severity": "critical",
		"resource": change.resource_id,
	}
}`,
	}
}

// restartBudgetPolicy warns when a plan spends more restarts than it should.
func restartBudgetPolicy() Policy {
	return Policy{
		Name:        "restart-budget",
		Description: "Warns when a plan restarts the backend repeatedly or in production",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"restarts", "availability"},
		Source:      "builtin",
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package switchboard.policies.restarts

import rego.v1

restart_types := ["kernel", "runtime"]

restart_changes := [c |
	some c in input.changes
	c.resource_type in restart_types
]

deny contains violation if {
	count(restart_changes) > 1
	violation := {
		"message": sprintf("Plan carries %d restart-requiring changes; batch kernel and runtime swaps deliberately", [count(restart_changes)]),
		"severity": "warning",
	}
}

deny contains violation if {
	input.context.environment == "production"
	count(restart_changes) > 0
	not input.context.dry_run
	violation := {
		"message": "Restarting the backend in production interrupts in-flight workflows",
		"severity": "warning",
	}
}`,
	}
}

// actorAttributionPolicy nudges callers to identify themselves.
func actorAttributionPolicy() Policy {
	return Policy{
		Name:        "actor-attribution",
		Description: "Warns when changes do not identify who triggered them",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"audit", "attribution"},
		Source:      "builtin",
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package switchboard.policies.actor

import rego.v1

deny contains violation if {
	not input.context.user
	violation := {
		"message": "Changes should identify who triggered them (set triggered_by)",
		"severity": "warning",
	}
}

deny contains violation if {
	input.context.user == ""
	violation := {
		"message": "Changes should identify who triggered them (set triggered_by)",
		"severity": "warning",
	}
}`,
	}
}

// batchBudgetPolicy warns about change batches too large to review sensibly.
func batchBudgetPolicy() Policy {
	return Policy{
		Name:        "batch-budget",
		Description: "Warns when a single plan carries more changes than a reviewer can reason about",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"batch", "review"},
		Source:      "builtin",
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package switchboard.policies.batch

import rego.v1

max_batch_size := 10

deny contains violation if {
	count(input.changes) > max_batch_size
	violation := {
		"message": sprintf("Plan carries %d changes; split batches above %d for reviewability", [count(input.changes), max_batch_size]),
		"severity": "warning",
	}
}`,
	}
}
