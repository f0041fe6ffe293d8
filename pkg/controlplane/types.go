package controlplane

import (
	"time"
)

// ResourceChange represents a single requested change to a runtime resource.
// Changes are immutable once submitted; the control plane never mutates the
// request it was given.
type ResourceChange struct {
	// ResourceType is the kind of resource this change targets.
	ResourceType ResourceType `json:"resource_type"`

	// ResourceID identifies the resource instance (e.g. a config key, a
	// workflow id, or the stack dimension name).
	ResourceID string `json:"resource_id"`

	// Action is what to do with the resource.
	Action ChangeAction `json:"action"`

	// CurrentValue is the caller's view of the value before the change.
	// Informational only; the control plane reads the authoritative current
	// value from the config manager.
	CurrentValue interface{} `json:"current_value,omitempty"`

	// NewValue is the desired value. Opaque to the control plane except for
	// stack dimensions, where it must be a string.
	NewValue interface{} `json:"new_value,omitempty"`

	// Metadata carries caller-supplied context for auditing.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// AppliedChange is a ResourceChange after planning: the change plus its
// classification and outcome.
type AppliedChange struct {
	ResourceChange

	// ApplyMode is how the change takes effect.
	ApplyMode ApplyMode `json:"apply_mode"`

	// ReasonCode is the machine-readable outcome for this change.
	ReasonCode ReasonCode `json:"reason_code"`

	// Message is the human-readable explanation, set for rejections.
	Message string `json:"message,omitempty"`

	// Timestamp is when the change was classified.
	Timestamp time.Time `json:"timestamp"`
}

// CompatibilityReport summarizes cross-resource validation of a plan.
type CompatibilityReport struct {
	// Compatible is true when no issues were found.
	Compatible bool `json:"compatible"`

	// Issues are blocking problems. A plan with issues is invalid.
	Issues []string `json:"issues"`

	// Warnings are advisory findings that do not block the plan.
	Warnings []string `json:"warnings"`

	// AffectedServices lists services whose behavior the plan touches.
	AffectedServices []string `json:"affected_services"`
}

// Plan is a validated, staged batch of changes awaiting apply.
// Plans live in memory keyed by execution ticket until consumed; there is
// no expiry, so an unapplied plan survives until process exit.
type Plan struct {
	// ExecutionTicket is the generated UUID that uniquely identifies this
	// plan. Apply consumes it exactly once.
	ExecutionTicket string `json:"execution_ticket"`

	// Request is the originating plan request.
	Request PlanRequest `json:"request"`

	// Changes holds every submitted change with its classification.
	Changes []AppliedChange `json:"changes"`

	// HotSwapChanges lists resource IDs that apply without a restart.
	HotSwapChanges []string `json:"hot_swap_changes"`

	// RestartRequiredServices lists services that must restart before the
	// plan takes full effect.
	RestartRequiredServices []string `json:"restart_required_services"`

	// RejectedChanges lists rejection messages, one per rejected change,
	// formatted "resource_id: message".
	RejectedChanges []string `json:"rejected_changes"`

	// Compatibility is the cross-resource validation result.
	Compatibility CompatibilityReport `json:"compatibility"`

	// Valid is true when the plan has no rejections and no compatibility
	// issues. Only valid plans can be applied.
	Valid bool `json:"valid"`

	// CreatedAt is when the plan was staged.
	CreatedAt time.Time `json:"created_at"`
}

// PlanRequest is a batch of changes to validate and stage.
type PlanRequest struct {
	// Changes are the requested changes, processed in submission order.
	Changes []ResourceChange `json:"changes" binding:"required"`

	// DryRun validates and classifies without staging a plan.
	DryRun bool `json:"dry_run,omitempty"`

	// Force skips the policy gate's blocking verdicts. Compatibility
	// validation is never skipped.
	Force bool `json:"force,omitempty"`

	// TriggeredBy identifies the actor for auditing.
	TriggeredBy string `json:"triggered_by,omitempty"`

	// Metadata carries caller context. The reserved key "operation_id"
	// names the logical operation for concurrency control.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// PlanResponse reports the outcome of planning a change batch.
type PlanResponse struct {
	// ExecutionTicket identifies the staged plan. Present on dry runs too,
	// but a dry-run ticket is never staged and cannot be applied.
	ExecutionTicket string `json:"execution_ticket"`

	// Valid is true when every change passed and the projected stack is
	// compatible.
	Valid bool `json:"valid"`

	// ReasonCode is the machine-readable plan outcome.
	ReasonCode ReasonCode `json:"reason_code"`

	// Message is the human-readable plan outcome.
	Message string `json:"message"`

	// PlannedChanges holds every submitted change with its classification.
	PlannedChanges []AppliedChange `json:"planned_changes"`

	// HotSwapChanges lists resource IDs that apply without a restart.
	HotSwapChanges []string `json:"hot_swap_changes"`

	// RestartRequiredServices lists services that must restart.
	RestartRequiredServices []string `json:"restart_required_services"`

	// RejectedChanges lists rejection messages ("resource_id: message").
	RejectedChanges []string `json:"rejected_changes"`

	// Compatibility is the cross-resource validation result.
	Compatibility CompatibilityReport `json:"compatibility"`

	// DryRun echoes the request's dry-run flag.
	DryRun bool `json:"dry_run,omitempty"`

	// Timestamp is when planning finished.
	Timestamp time.Time `json:"timestamp"`
}

// ApplyRequest executes a previously staged plan.
type ApplyRequest struct {
	// ExecutionTicket is the ticket returned by a non-dry-run plan.
	ExecutionTicket string `json:"execution_ticket" binding:"required"`

	// ConfirmRestart acknowledges that the plan's restart-required services
	// will need a restart. Plans with pending restarts are refused without it.
	ConfirmRestart bool `json:"confirm_restart,omitempty"`

	// TriggeredBy identifies the actor for auditing.
	TriggeredBy string `json:"triggered_by,omitempty"`

	// Metadata carries caller context for auditing.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ApplyResponse reports the outcome of applying a staged plan.
type ApplyResponse struct {
	// ExecutionTicket is the ticket that was applied (or refused).
	ExecutionTicket string `json:"execution_ticket"`

	// ApplyMode is the aggregate outcome across all changes.
	ApplyMode ApplyMode `json:"apply_mode"`

	// ReasonCode is the machine-readable apply outcome.
	ReasonCode ReasonCode `json:"reason_code"`

	// Message is the human-readable apply outcome.
	Message string `json:"message"`

	// AppliedChanges lists resource IDs that were applied, in order.
	AppliedChanges []string `json:"applied_changes"`

	// FailedChanges describes failures and rollback outcomes as text.
	FailedChanges []string `json:"failed_changes"`

	// RestartRequiredServices lists services still awaiting a restart.
	RestartRequiredServices []string `json:"restart_required_services,omitempty"`

	// Timestamp is when the apply finished.
	Timestamp time.Time `json:"timestamp"`
}

// RuntimeInfo describes the active execution runtime.
type RuntimeInfo struct {
	// Name is the configured runtime.
	Name string `json:"name"`

	// Status is the backend service status as reported by the runtime
	// controller, "unknown" when the controller has no record.
	Status string `json:"status"`
}

// ProviderInfo describes the active model provider.
type ProviderInfo struct {
	// Name is the configured provider.
	Name string `json:"name"`

	// Model is the model currently served through the provider.
	Model string `json:"model"`
}

// ServiceHealth is a runtime controller's view of one managed service.
type ServiceHealth struct {
	// Status is the service state (e.g. "running", "stopped", "degraded").
	Status string `json:"status"`

	// Message is optional detail about the state.
	Message string `json:"message,omitempty"`
}

// SystemState is a point-in-time snapshot of the configured stack and the
// services running it. Snapshots are computed on demand and never cached.
type SystemState struct {
	// Timestamp is when the snapshot was taken.
	Timestamp time.Time `json:"timestamp"`

	// DecisionStrategy is the active decision strategy.
	DecisionStrategy string `json:"decision_strategy"`

	// IntentMode is the active intent classification mode.
	IntentMode string `json:"intent_mode"`

	// Kernel is the active execution kernel.
	Kernel string `json:"kernel"`

	// Runtime describes the active execution runtime.
	Runtime RuntimeInfo `json:"runtime"`

	// Provider describes the active model provider.
	Provider ProviderInfo `json:"provider"`

	// EmbeddingModel is the active embedding model, empty when none.
	EmbeddingModel string `json:"embedding_model"`

	// WorkflowStatus is the status of the most recently updated workflow,
	// idle when no workflow exists.
	WorkflowStatus WorkflowStatus `json:"workflow_status"`

	// ActiveOperations is the number of in-flight control-plane operations.
	ActiveOperations int `json:"active_operations"`

	// Health maps managed service names to their reported health.
	Health map[string]ServiceHealth `json:"health"`
}

// AuditEntry records one control-plane operation.
type AuditEntry struct {
	// OperationID is the generated UUID for this entry.
	OperationID string `json:"operation_id"`

	// Timestamp is when the entry was recorded.
	Timestamp time.Time `json:"timestamp"`

	// TriggeredBy identifies the actor.
	TriggeredBy string `json:"triggered_by,omitempty"`

	// OperationType is the operation that was performed.
	OperationType OperationType `json:"operation_type"`

	// ResourceType is the resource kind involved, when applicable.
	ResourceType ResourceType `json:"resource_type,omitempty"`

	// ResourceID is the resource instance involved, when applicable.
	ResourceID string `json:"resource_id,omitempty"`

	// Params captures operation parameters worth keeping.
	Params map[string]interface{} `json:"params,omitempty"`

	// Result is the recorded outcome.
	Result AuditResult `json:"result"`

	// ReasonCode is the outcome code the operation reported.
	ReasonCode ReasonCode `json:"reason_code,omitempty"`

	// DurationMS is how long the operation took, in milliseconds.
	DurationMS int64 `json:"duration_ms"`

	// ErrorMessage holds the fault text for failure entries.
	ErrorMessage string `json:"error_message,omitempty"`
}

// AuditFilter selects audit entries. Zero-valued fields match everything;
// set fields are combined conjunctively.
type AuditFilter struct {
	// OperationType restricts to one operation type.
	OperationType OperationType `json:"operation_type,omitempty"`

	// ResourceType restricts to one resource type.
	ResourceType ResourceType `json:"resource_type,omitempty"`

	// TriggeredBy restricts to one actor.
	TriggeredBy string `json:"triggered_by,omitempty"`

	// Result restricts to one outcome.
	Result AuditResult `json:"result,omitempty"`
}

// Workflow is the control plane's record of one workflow instance.
// Records are created lazily on first reference and never deleted.
type Workflow struct {
	// ID is the workflow UUID.
	ID string `json:"id"`

	// Status is the current lifecycle state.
	Status WorkflowStatus `json:"status"`

	// CreatedAt is when the record was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the record last changed.
	UpdatedAt time.Time `json:"updated_at"`

	// PausedAt is when the workflow was last paused.
	PausedAt *time.Time `json:"paused_at,omitempty"`

	// PausedBy is who paused the workflow.
	PausedBy string `json:"paused_by,omitempty"`

	// ResumedAt is when the workflow was last resumed.
	ResumedAt *time.Time `json:"resumed_at,omitempty"`

	// CancelledAt is when the workflow was cancelled.
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`

	// RetriedAt is when the workflow was last retried.
	RetriedAt *time.Time `json:"retried_at,omitempty"`

	// RetryFromStep is the step a retry was asked to resume from.
	RetryFromStep string `json:"retry_from_step,omitempty"`
}

// WorkflowOperationRequest asks for one lifecycle operation on a workflow.
type WorkflowOperationRequest struct {
	// WorkflowID is the target workflow UUID.
	WorkflowID string `json:"workflow_id" binding:"required"`

	// Operation is the lifecycle operation. Filled by the transport layer
	// on operation-specific routes.
	Operation OperationType `json:"operation,omitempty"`

	// StepID optionally names the step a retry should resume from.
	StepID string `json:"step_id,omitempty"`

	// TriggeredBy identifies the actor for auditing.
	TriggeredBy string `json:"triggered_by,omitempty"`

	// Metadata carries caller context for auditing.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// WorkflowOperationResponse reports the outcome of a workflow operation.
// Refused operations are responses too: the status echoes the unchanged
// state and the reason code says why.
type WorkflowOperationResponse struct {
	// WorkflowID is the workflow the operation targeted. For unparseable
	// IDs this is a synthetic UUID; the original value is in the message.
	WorkflowID string `json:"workflow_id"`

	// Operation is the operation that was requested.
	Operation OperationType `json:"operation"`

	// Status is the workflow status after the operation.
	Status WorkflowStatus `json:"status"`

	// ReasonCode is the machine-readable outcome.
	ReasonCode ReasonCode `json:"reason_code"`

	// Message is the human-readable outcome.
	Message string `json:"message,omitempty"`

	// Metadata echoes operation-specific detail (step_id, dry_run).
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// Timestamp is when the operation finished.
	Timestamp time.Time `json:"timestamp"`
}
