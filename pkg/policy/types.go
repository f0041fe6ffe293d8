package policy

import (
	"fmt"
	"time"

	"github.com/openswitchboard/switchboard/pkg/controlplane"
)

// Severity represents the severity level of a policy finding.
type Severity string

const (
	// SeverityInfo is for informational findings.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that should be reviewed but do not
	// block a plan.
	SeverityWarning Severity = "warning"

	// SeverityError is for findings that block a plan.
	SeverityError Severity = "error"

	// SeverityCritical is for findings that block a plan and demand
	// immediate attention.
	SeverityCritical Severity = "critical"
)

// Validate checks if the severity is valid.
func (s Severity) Validate() error {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return nil
	default:
		return fmt.Errorf("invalid severity: %s", s)
	}
}

// Policy represents a change-review policy with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code. Rules emit findings through a
	// "deny" set; each finding carries its own message and severity.
	Rego string `json:"rego"`

	// Severity is the default severity for findings that do not state one.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Source is where the policy came from: "builtin" or a file path.
	Source string `json:"source,omitempty"`

	// CreatedAt is when the policy was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the policy was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// Input is the document handed to every policy evaluation. Policies see the
// whole change batch at once so cross-change rules (restart budgets, batch
// limits) can count.
type Input struct {
	// Changes is the batch under review.
	Changes []controlplane.ResourceChange `json:"changes"`

	// Context describes who is asking and under what circumstances.
	Context *Context `json:"context"`
}

// Context provides evaluation context for policies.
type Context struct {
	// User is the actor submitting the changes.
	User string `json:"user,omitempty"`

	// Environment is the deployment environment (e.g. "production").
	Environment string `json:"environment,omitempty"`

	// Operation is the control-plane operation under review.
	Operation string `json:"operation"`

	// DryRun indicates the changes are being previewed, not staged.
	DryRun bool `json:"dry_run"`

	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`

	// Metadata carries the request's caller-supplied metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}
