// Package controlplane implements the configuration control plane for the
// local AI runtime: staged plan/apply of configuration changes, compatibility
// checking of the resulting stack, and dispatch of workflow lifecycle
// operations.
//
// # Plan/apply lifecycle
//
// Changes are never applied directly. A caller first submits a batch of
// ResourceChange values to PlanChanges, which validates each change, checks
// the projected stack against the compatibility matrix, runs the policy gate,
// and stages the resulting Plan under a fresh execution ticket. ApplyChanges
// then redeems the ticket and applies the staged changes sequentially,
// snapshotting prior values so a mid-batch failure can roll back in reverse
// order.
//
// Tickets are consumed exactly once: a successful or failed apply removes the
// staged plan, and redeeming an unknown ticket is an idempotent rejection
// that mutates nothing. The one exception is a plan that requires a service
// restart: applying it without confirm_restart returns a pending response
// and leaves the ticket staged so the caller can confirm and retry.
//
// Changes to the kernel or runtime always require a restart of the backend
// service; every other resource type hot-swaps.
//
// # Collaborators
//
// The service orchestrates but owns no infrastructure. Configuration values
// live behind ConfigManager, service health behind RuntimeController,
// workflow state behind WorkflowDriver, the audit trail behind AuditLog, and
// change review behind PolicyGate. Implementations live in their own
// packages and are wired together at startup:
//
//	svc := controlplane.NewService(cfgMgr, runtimeCtl, auditLog, workflows, validator, logger).
//		WithPolicyGate(gate).
//		WithMetrics(metrics)
//
//	resp, err := svc.PlanChanges(ctx, controlplane.PlanRequest{
//		Changes: []controlplane.ResourceChange{{
//			ResourceType: controlplane.ResourceProvider,
//			ResourceID:   "openai",
//			Action:       controlplane.ActionUpdate,
//			NewValue:     "openai",
//		}},
//		TriggeredBy: "operator",
//	})
//
// Business outcomes (rejected changes, incompatible stacks, forbidden
// workflow transitions) travel as responses carrying a ReasonCode, never as
// errors. Errors are reserved for collaborator faults and carry the
// ControlError classification from this package.
package controlplane
