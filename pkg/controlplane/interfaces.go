package controlplane

import (
	"context"
)

// ConfigManager is the collaborator that owns the managed runtime's
// configuration values. The control plane reads and writes through it and
// never touches the underlying storage directly.
type ConfigManager interface {
	// Config returns the full current configuration as a flat key/value map.
	Config(ctx context.Context) (map[string]interface{}, error)

	// UpdateConfig applies the given key/value updates atomically.
	// A nil value removes the key.
	UpdateConfig(ctx context.Context, updates map[string]interface{}) error
}

// RuntimeController is the collaborator that supervises the managed
// services. The control plane only observes; starting and stopping
// processes is the controller's business.
type RuntimeController interface {
	// ServicesStatus reports the health of every managed service.
	ServicesStatus(ctx context.Context) (map[string]ServiceHealth, error)
}

// AuditLog records control-plane operations. Implementations must be safe
// for concurrent use and must return copies from all read methods.
type AuditLog interface {
	// Log records an entry, assigning and returning its operation ID.
	// The entry's Timestamp is set to now when zero.
	Log(entry AuditEntry) string

	// Entries returns entries matching the filter, newest first, at most
	// limit when limit > 0.
	Entries(filter AuditFilter, limit int) []AuditEntry

	// Query returns all entries matching the filter, newest first.
	Query(filter AuditFilter) []AuditEntry

	// RecentFailures returns the most recent failure entries, newest first.
	RecentFailures(limit int) []AuditEntry

	// Operation returns the entry with the given operation ID, nil when the
	// ID is unknown or has been evicted.
	Operation(operationID string) *AuditEntry

	// ClearOlderThan removes entries older than the given number of days
	// and returns how many were removed.
	ClearOlderThan(days int) int

	// Len returns the current number of retained entries.
	Len() int
}

// WorkflowDriver exposes the workflow lifecycle operations the control
// plane dispatches to. Implemented by the workflow service.
type WorkflowDriver interface {
	// Execute runs one lifecycle operation. Business refusals (forbidden
	// transitions, malformed IDs) come back as responses, not errors.
	Execute(ctx context.Context, req WorkflowOperationRequest) (*WorkflowOperationResponse, error)

	// UpdateStatus moves a workflow to the given status through the state
	// machine, creating the record when needed. Used by the workflow
	// executor to report start, completion and failure.
	UpdateStatus(ctx context.Context, workflowID string, to WorkflowStatus, actor string) (*WorkflowOperationResponse, error)

	// Status returns the workflow's current status, creating the record
	// when the ID is unknown.
	Status(workflowID string) WorkflowStatus

	// LatestStatus returns the status of the most recently updated
	// workflow, idle when none exist.
	LatestStatus() WorkflowStatus
}

// PolicyVerdict is one finding from the policy gate.
type PolicyVerdict struct {
	// Policy names the policy that produced the finding.
	Policy string `json:"policy"`

	// Message is the finding text.
	Message string `json:"message"`

	// Severity is "info", "warning", "error" or "critical".
	Severity string `json:"severity"`

	// Resource is the resource ID the finding concerns, when applicable.
	Resource string `json:"resource,omitempty"`
}

// Blocking returns true when the verdict should fail a plan.
func (v PolicyVerdict) Blocking() bool {
	return v.Severity == "error" || v.Severity == "critical"
}

// PolicyGate reviews change batches before they are staged. A nil gate
// means no policy review.
type PolicyGate interface {
	// EvaluateChanges reviews a plan request and returns all findings.
	EvaluateChanges(ctx context.Context, req *PlanRequest) ([]PolicyVerdict, error)
}
