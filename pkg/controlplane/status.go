package controlplane

import (
	"encoding/json"
	"fmt"
)

// ResourceType identifies the kind of runtime resource a change targets.
type ResourceType string

const (
	// ResourceDecisionStrategy selects how the runtime routes decisions.
	ResourceDecisionStrategy ResourceType = "decision_strategy"

	// ResourceIntentMode selects the intent classification mode.
	ResourceIntentMode ResourceType = "intent_mode"

	// ResourceKernel selects the execution kernel. Kernel swaps always
	// require a backend restart.
	ResourceKernel ResourceType = "kernel"

	// ResourceRuntime selects the execution runtime. Runtime swaps always
	// require a backend restart.
	ResourceRuntime ResourceType = "runtime"

	// ResourceProvider selects the active model provider.
	ResourceProvider ResourceType = "provider"

	// ResourceEmbeddingModel selects the embedding model.
	ResourceEmbeddingModel ResourceType = "embedding_model"

	// ResourceWorkflow targets a workflow instance (pause, cancel, retry).
	ResourceWorkflow ResourceType = "workflow"

	// ResourceConfig targets an arbitrary configuration key.
	ResourceConfig ResourceType = "config"
)

// RequiresRestart returns true if changes to this resource type can only
// take effect after a backend restart.
func (r ResourceType) RequiresRestart() bool {
	return r == ResourceKernel || r == ResourceRuntime
}

// Validate checks if the resource type is valid.
func (r ResourceType) Validate() error {
	switch r {
	case ResourceDecisionStrategy, ResourceIntentMode, ResourceKernel,
		ResourceRuntime, ResourceProvider, ResourceEmbeddingModel,
		ResourceWorkflow, ResourceConfig:
		return nil
	default:
		return fmt.Errorf("invalid resource type: %s", r)
	}
}

// ChangeAction describes what a change does to its target resource.
type ChangeAction string

const (
	// ActionUpdate modifies an existing resource value.
	ActionUpdate ChangeAction = "update"

	// ActionCreate introduces a new resource value.
	ActionCreate ChangeAction = "create"

	// ActionDelete removes a resource value.
	ActionDelete ChangeAction = "delete"

	// ActionRestart restarts the target resource without changing its value.
	ActionRestart ChangeAction = "restart"
)

// RequiresValue returns true if the action needs a new value to be present.
func (a ChangeAction) RequiresValue() bool {
	return a == ActionUpdate || a == ActionCreate
}

// Validate checks if the change action is valid.
func (a ChangeAction) Validate() error {
	switch a {
	case ActionUpdate, ActionCreate, ActionDelete, ActionRestart:
		return nil
	default:
		return fmt.Errorf("invalid change action: %s", a)
	}
}

// ApplyMode classifies how a change (or a whole plan) takes effect.
type ApplyMode string

const (
	// ApplyModeHotSwap means the change takes effect immediately without
	// restarting any service.
	ApplyModeHotSwap ApplyMode = "hot_swap"

	// ApplyModeRestartRequired means the change is staged but only takes
	// effect after the affected services restart.
	ApplyModeRestartRequired ApplyMode = "restart_required"

	// ApplyModeRejected means the change was refused and nothing was applied.
	ApplyModeRejected ApplyMode = "rejected"
)

// Validate checks if the apply mode is valid.
func (m ApplyMode) Validate() error {
	switch m {
	case ApplyModeHotSwap, ApplyModeRestartRequired, ApplyModeRejected:
		return nil
	default:
		return fmt.Errorf("invalid apply mode: %s", m)
	}
}

// ReasonCode is the closed vocabulary of machine-readable outcome codes.
// Every response and audit entry carries one. Business failures are expressed
// through these codes on response objects, never through returned errors.
type ReasonCode string

const (
	// ReasonSuccessHotSwap indicates all changes applied (or planned) without
	// requiring a restart.
	ReasonSuccessHotSwap ReasonCode = "success_hot_swap"

	// ReasonSuccessRestartPending indicates a valid outcome that is waiting
	// on a service restart to take full effect.
	ReasonSuccessRestartPending ReasonCode = "success_restart_pending"

	// ReasonOperationCompleted indicates a workflow operation succeeded.
	ReasonOperationCompleted ReasonCode = "operation_completed"

	// ReasonOperationCancelled indicates a workflow was cancelled.
	ReasonOperationCancelled ReasonCode = "operation_cancelled"

	// ReasonInvalidConfiguration indicates structural validation failed or a
	// plan/ticket was unusable.
	ReasonInvalidConfiguration ReasonCode = "invalid_configuration"

	// ReasonIncompatibleCombination indicates the projected stack failed
	// compatibility validation.
	ReasonIncompatibleCombination ReasonCode = "incompatible_combination"

	// ReasonDependencyMissing indicates a required resource is absent.
	ReasonDependencyMissing ReasonCode = "dependency_missing"

	// ReasonServiceUnavailable indicates a collaborator could not be reached.
	ReasonServiceUnavailable ReasonCode = "service_unavailable"

	// ReasonForbiddenTransition indicates a workflow operation requested a
	// transition the state machine does not allow.
	ReasonForbiddenTransition ReasonCode = "forbidden_transition"

	// ReasonInvalidState indicates the system is in a state that cannot
	// serve the request.
	ReasonInvalidState ReasonCode = "invalid_state"

	// ReasonKernelRuntimeMismatch indicates the kernel does not support the
	// selected runtime.
	ReasonKernelRuntimeMismatch ReasonCode = "kernel_runtime_mismatch"

	// ReasonProviderModelMismatch indicates the provider does not serve the
	// selected model.
	ReasonProviderModelMismatch ReasonCode = "provider_model_mismatch"

	// ReasonEmbeddingIncompatible indicates the embedding model is not
	// available through the selected provider.
	ReasonEmbeddingIncompatible ReasonCode = "embedding_incompatible"

	// ReasonIntentModeConflict indicates the intent mode's requirements are
	// not met by the selected stack.
	ReasonIntentModeConflict ReasonCode = "intent_mode_conflict"

	// ReasonOperationInProgress indicates another operation holds the same
	// logical operation token.
	ReasonOperationInProgress ReasonCode = "operation_in_progress"

	// ReasonOperationFailed indicates an apply aborted mid-flight and was
	// rolled back best-effort.
	ReasonOperationFailed ReasonCode = "operation_failed"
)

// IsSuccess returns true for codes that represent a successful outcome.
func (c ReasonCode) IsSuccess() bool {
	return c == ReasonSuccessHotSwap || c == ReasonSuccessRestartPending ||
		c == ReasonOperationCompleted || c == ReasonOperationCancelled
}

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	// WorkflowStatusIdle indicates the workflow exists but is not executing.
	WorkflowStatusIdle WorkflowStatus = "idle"

	// WorkflowStatusRunning indicates the workflow is executing.
	WorkflowStatusRunning WorkflowStatus = "running"

	// WorkflowStatusPaused indicates execution is suspended and resumable.
	WorkflowStatusPaused WorkflowStatus = "paused"

	// WorkflowStatusCompleted indicates the workflow finished successfully.
	WorkflowStatusCompleted WorkflowStatus = "completed"

	// WorkflowStatusFailed indicates the workflow stopped on an error.
	WorkflowStatusFailed WorkflowStatus = "failed"

	// WorkflowStatusCancelled indicates the workflow was cancelled.
	WorkflowStatusCancelled WorkflowStatus = "cancelled"
)

// IsTerminal returns true if the status represents a settled outcome.
// Terminal states can still transition (retry, reset) but mark the end of
// an execution attempt.
func (s WorkflowStatus) IsTerminal() bool {
	return s == WorkflowStatusCompleted || s == WorkflowStatusFailed ||
		s == WorkflowStatusCancelled
}

// IsActive returns true if the workflow is executing or suspended.
func (s WorkflowStatus) IsActive() bool {
	return s == WorkflowStatusRunning || s == WorkflowStatusPaused
}

// Validate checks if the workflow status is valid.
func (s WorkflowStatus) Validate() error {
	switch s {
	case WorkflowStatusIdle, WorkflowStatusRunning, WorkflowStatusPaused,
		WorkflowStatusCompleted, WorkflowStatusFailed, WorkflowStatusCancelled:
		return nil
	default:
		return fmt.Errorf("invalid workflow status: %s", s)
	}
}

// OperationType identifies a control-plane operation for auditing and
// workflow dispatch.
type OperationType string

const (
	// OperationPlan validates and stages a batch of changes.
	OperationPlan OperationType = "plan"

	// OperationApply executes a previously staged plan.
	OperationApply OperationType = "apply"

	// OperationPause suspends a running workflow.
	OperationPause OperationType = "pause"

	// OperationResume continues a paused workflow.
	OperationResume OperationType = "resume"

	// OperationCancel aborts a workflow.
	OperationCancel OperationType = "cancel"

	// OperationRetry restarts a failed or cancelled workflow.
	OperationRetry OperationType = "retry"

	// OperationDryRun previews a workflow operation without mutating state.
	OperationDryRun OperationType = "dry_run"
)

// IsWorkflowOperation returns true for operations that target a workflow
// instance rather than the configuration plane.
func (o OperationType) IsWorkflowOperation() bool {
	switch o {
	case OperationPause, OperationResume, OperationCancel,
		OperationRetry, OperationDryRun:
		return true
	default:
		return false
	}
}

// Validate checks if the operation type is valid.
func (o OperationType) Validate() error {
	switch o {
	case OperationPlan, OperationApply, OperationPause, OperationResume,
		OperationCancel, OperationRetry, OperationDryRun:
		return nil
	default:
		return fmt.Errorf("invalid operation type: %s", o)
	}
}

// AuditResult represents the recorded outcome of an audited operation.
type AuditResult string

const (
	// AuditResultSuccess indicates the operation completed as requested.
	AuditResultSuccess AuditResult = "success"

	// AuditResultFailure indicates the operation hit an unexpected fault.
	AuditResultFailure AuditResult = "failure"

	// AuditResultCancelled indicates the operation was cancelled.
	AuditResultCancelled AuditResult = "cancelled"

	// AuditResultPartial indicates some but not all changes took effect.
	AuditResultPartial AuditResult = "partial"

	// AuditResultRejected indicates the operation was refused by validation.
	AuditResultRejected AuditResult = "rejected"
)

// Validate checks if the audit result is valid.
func (r AuditResult) Validate() error {
	switch r {
	case AuditResultSuccess, AuditResultFailure, AuditResultCancelled,
		AuditResultPartial, AuditResultRejected:
		return nil
	default:
		return fmt.Errorf("invalid audit result: %s", r)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s WorkflowStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *WorkflowStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = WorkflowStatus(str)
	return s.Validate()
}
