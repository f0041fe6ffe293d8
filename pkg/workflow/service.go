package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"github.com/rs/zerolog"

	"github.com/openswitchboard/switchboard/pkg/controlplane"
	"github.com/openswitchboard/switchboard/pkg/telemetry"
)

// TransitionError is the typed error for call sites that want forbidden
// transitions raised instead of returned as refusal responses.
type TransitionError struct {
	// WorkflowID is the workflow the operation targeted.
	WorkflowID string

	// From is the status the workflow was in.
	From controlplane.WorkflowStatus

	// To is the status the operation asked for.
	To controlplane.WorkflowStatus

	// Allowed lists the statuses reachable from From.
	Allowed []controlplane.WorkflowStatus
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition %s -> %s is not allowed for workflow %s (allowed: %s)",
		e.From, e.To, e.WorkflowID, formatStatuses(e.Allowed))
}

// record pairs a workflow with its state machine instance. The mutex
// serializes operations on this workflow only; unrelated workflows never
// contend with each other.
type record struct {
	mu  sync.Mutex
	wf  controlplane.Workflow
	fsm *fsm.FSM
}

// Service manages workflow records and executes lifecycle operations
// against the state machine. It implements controlplane.WorkflowDriver.
//
// Records are created lazily when an unknown workflow ID is first
// referenced and are never deleted.
type Service struct {
	machine  *Machine
	auditLog controlplane.AuditLog
	logger   zerolog.Logger
	metrics  *telemetry.Metrics
	tracer   *telemetry.Tracer

	mu        sync.RWMutex
	workflows map[string]*record
}

// NewService creates a workflow service writing to the given audit log.
func NewService(auditLog controlplane.AuditLog, logger zerolog.Logger) *Service {
	return &Service{
		machine:   NewMachine(),
		auditLog:  auditLog,
		logger:    logger.With().Str("component", "workflow").Logger(),
		workflows: make(map[string]*record),
	}
}

// WithMetrics attaches a metrics recorder. Returns the service for chaining.
func (s *Service) WithMetrics(m *telemetry.Metrics) *Service {
	s.metrics = m
	return s
}

// WithTracer attaches a tracer. Returns the service for chaining.
func (s *Service) WithTracer(t *telemetry.Tracer) *Service {
	s.tracer = t
	return s
}

// Machine returns the transition table the service enforces.
func (s *Service) Machine() *Machine {
	return s.machine
}

// Pause suspends a running workflow.
func (s *Service) Pause(ctx context.Context, req controlplane.WorkflowOperationRequest) (*controlplane.WorkflowOperationResponse, error) {
	req.Operation = controlplane.OperationPause
	return s.Execute(ctx, req)
}

// Resume continues a paused workflow.
func (s *Service) Resume(ctx context.Context, req controlplane.WorkflowOperationRequest) (*controlplane.WorkflowOperationResponse, error) {
	req.Operation = controlplane.OperationResume
	return s.Execute(ctx, req)
}

// Cancel aborts a running or paused workflow.
func (s *Service) Cancel(ctx context.Context, req controlplane.WorkflowOperationRequest) (*controlplane.WorkflowOperationResponse, error) {
	req.Operation = controlplane.OperationCancel
	return s.Execute(ctx, req)
}

// Retry restarts a failed or cancelled workflow, optionally from a step.
func (s *Service) Retry(ctx context.Context, req controlplane.WorkflowOperationRequest) (*controlplane.WorkflowOperationResponse, error) {
	req.Operation = controlplane.OperationRetry
	return s.Execute(ctx, req)
}

// DryRun previews an operation without checking or changing anything.
func (s *Service) DryRun(ctx context.Context, req controlplane.WorkflowOperationRequest) (*controlplane.WorkflowOperationResponse, error) {
	req.Operation = controlplane.OperationDryRun
	return s.Execute(ctx, req)
}

// Execute runs one lifecycle operation. Refusals (bad IDs, forbidden
// transitions) are responses, never errors; the returned error is reserved
// for unexpected faults.
func (s *Service) Execute(ctx context.Context, req controlplane.WorkflowOperationRequest) (*controlplane.WorkflowOperationResponse, error) {
	if err := req.Operation.Validate(); err != nil {
		return nil, controlplane.NewValidationError("unknown workflow operation", err).
			WithCode(controlplane.ErrCodeValidation)
	}
	if !req.Operation.IsWorkflowOperation() {
		return nil, controlplane.NewValidationError(
			fmt.Sprintf("operation %q does not target a workflow", req.Operation), nil).
			WithCode(controlplane.ErrCodeValidation)
	}
	return s.run(ctx, req)
}

// ExecuteStrict is Execute for call sites that want forbidden transitions
// as typed errors. The refusal response is still returned alongside the
// *TransitionError so callers can render it.
func (s *Service) ExecuteStrict(ctx context.Context, req controlplane.WorkflowOperationRequest) (*controlplane.WorkflowOperationResponse, error) {
	resp, err := s.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.ReasonCode == controlplane.ReasonForbiddenTransition {
		current := resp.Status
		return resp, &TransitionError{
			WorkflowID: resp.WorkflowID,
			From:       current,
			To:         targetStatus(req.Operation),
			Allowed:    s.machine.AllowedTransitions(current),
		}
	}
	return resp, nil
}

// UpdateStatus is the workflow executor's status report: it moves a
// workflow through the machine without an operator operation attached.
// Transitions the machine forbids are refused the same way operator
// operations are, but status reports are not audited.
func (s *Service) UpdateStatus(ctx context.Context, workflowID string, to controlplane.WorkflowStatus, actor string) (*controlplane.WorkflowOperationResponse, error) {
	if err := to.Validate(); err != nil {
		return nil, controlplane.NewValidationError("unknown workflow status", err).
			WithCode(controlplane.ErrCodeValidation)
	}

	if _, err := uuid.Parse(workflowID); err != nil {
		return s.invalidIDResponse(workflowID, "", time.Now().UTC()), nil
	}

	rec := s.getOrCreate(workflowID)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	now := time.Now().UTC()
	current := rec.wf.Status
	if !s.machine.IsValidTransition(current, to) {
		return &controlplane.WorkflowOperationResponse{
			WorkflowID: workflowID,
			Status:     current,
			ReasonCode: controlplane.ReasonForbiddenTransition,
			Message: fmt.Sprintf("cannot move workflow from %q to %q (allowed: %s)",
				current, to, formatStatuses(s.machine.AllowedTransitions(current))),
			Timestamp: now,
		}, nil
	}

	if err := s.fire(ctx, rec, current, to); err != nil {
		return nil, err
	}
	rec.wf.Status = to
	rec.wf.UpdatedAt = now

	s.logger.Debug().
		Str("workflow_id", workflowID).
		Str("from", string(current)).
		Str("to", string(to)).
		Str("actor", actor).
		Msg("Workflow status updated")

	return &controlplane.WorkflowOperationResponse{
		WorkflowID: workflowID,
		Status:     to,
		ReasonCode: controlplane.ReasonOperationCompleted,
		Timestamp:  now,
	}, nil
}

// Get returns a copy of the workflow record, creating it when the ID is
// unknown.
func (s *Service) Get(workflowID string) controlplane.Workflow {
	rec := s.getOrCreate(workflowID)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.wf
}

// Status returns the workflow's current status, creating the record when
// the ID is unknown.
func (s *Service) Status(workflowID string) controlplane.WorkflowStatus {
	return s.Get(workflowID).Status
}

// LatestStatus returns the status of the most recently updated workflow,
// idle when no workflows exist.
func (s *Service) LatestStatus() controlplane.WorkflowStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := controlplane.WorkflowStatusIdle
	var latestAt time.Time
	for _, rec := range s.workflows {
		rec.mu.Lock()
		if rec.wf.UpdatedAt.After(latestAt) {
			latestAt = rec.wf.UpdatedAt
			latest = rec.wf.Status
		}
		rec.mu.Unlock()
	}
	return latest
}

// run is the shared operation template: parse the ID, fetch or create the
// record, check the transition (except dry runs), mutate, audit.
func (s *Service) run(ctx context.Context, req controlplane.WorkflowOperationRequest) (*controlplane.WorkflowOperationResponse, error) {
	start := time.Now()
	op := req.Operation
	ctx, span := s.tracer.StartWorkflowSpan(ctx, req.WorkflowID, string(op))
	defer span.End()

	if _, err := uuid.Parse(req.WorkflowID); err != nil {
		resp := s.invalidIDResponse(req.WorkflowID, op, time.Now().UTC())
		s.audit(req, resp, controlplane.AuditResultFailure, start,
			fmt.Sprintf("invalid workflow id %q", req.WorkflowID))
		s.observe(op, "rejected")
		return resp, nil
	}

	rec := s.getOrCreate(req.WorkflowID)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	now := time.Now().UTC()
	current := rec.wf.Status

	if op == controlplane.OperationDryRun {
		resp := &controlplane.WorkflowOperationResponse{
			WorkflowID: req.WorkflowID,
			Operation:  op,
			Status:     current,
			ReasonCode: controlplane.ReasonOperationCompleted,
			Message:    fmt.Sprintf("dry run: workflow is %s, nothing changed", current),
			Metadata:   map[string]interface{}{"dry_run": true},
			Timestamp:  now,
		}
		if req.StepID != "" {
			resp.Metadata["step_id"] = req.StepID
		}
		s.audit(req, resp, controlplane.AuditResultSuccess, start, "")
		s.observe(op, "success")
		return resp, nil
	}

	target := targetStatus(op)
	if !s.machine.IsValidTransition(current, target) {
		allowed := s.machine.AllowedTransitions(current)
		resp := &controlplane.WorkflowOperationResponse{
			WorkflowID: req.WorkflowID,
			Operation:  op,
			Status:     current,
			ReasonCode: controlplane.ReasonForbiddenTransition,
			Message: fmt.Sprintf("cannot %s workflow in status %q (allowed transitions: %s)",
				op, current, formatStatuses(allowed)),
			Timestamp: now,
		}
		s.audit(req, resp, controlplane.AuditResultFailure, start, resp.Message)
		s.observe(op, "forbidden")
		return resp, nil
	}

	if err := s.fire(ctx, rec, current, target); err != nil {
		s.audit(req, &controlplane.WorkflowOperationResponse{
			WorkflowID: req.WorkflowID,
			Operation:  op,
			Status:     current,
			ReasonCode: controlplane.ReasonInvalidState,
		}, controlplane.AuditResultFailure, start, err.Error())
		s.observe(op, "error")
		return nil, err
	}

	rec.wf.Status = target
	rec.wf.UpdatedAt = now
	actor := req.TriggeredBy
	switch op {
	case controlplane.OperationPause:
		rec.wf.PausedAt = &now
		rec.wf.PausedBy = actor
	case controlplane.OperationResume:
		rec.wf.ResumedAt = &now
	case controlplane.OperationCancel:
		rec.wf.CancelledAt = &now
	case controlplane.OperationRetry:
		rec.wf.RetriedAt = &now
		rec.wf.RetryFromStep = req.StepID
	}

	reason := controlplane.ReasonOperationCompleted
	if op == controlplane.OperationCancel {
		reason = controlplane.ReasonOperationCancelled
	}

	resp := &controlplane.WorkflowOperationResponse{
		WorkflowID: req.WorkflowID,
		Operation:  op,
		Status:     target,
		ReasonCode: reason,
		Message:    fmt.Sprintf("workflow %s: %s -> %s", op, current, target),
		Timestamp:  now,
	}
	if req.StepID != "" {
		resp.Metadata = map[string]interface{}{"step_id": req.StepID}
	}

	s.audit(req, resp, controlplane.AuditResultSuccess, start, "")
	s.observe(op, "success")

	s.logger.Info().
		Str("workflow_id", req.WorkflowID).
		Str("operation", string(op)).
		Str("from", string(current)).
		Str("to", string(target)).
		Str("triggered_by", actor).
		Msg("Workflow operation applied")

	return resp, nil
}

func (s *Service) invalidIDResponse(workflowID string, op controlplane.OperationType, now time.Time) *controlplane.WorkflowOperationResponse {
	return &controlplane.WorkflowOperationResponse{
		WorkflowID: uuid.NewString(),
		Operation:  op,
		Status:     controlplane.WorkflowStatusIdle,
		ReasonCode: controlplane.ReasonInvalidConfiguration,
		Message:    fmt.Sprintf("workflow id %q is not a valid UUID", workflowID),
		Timestamp:  now,
	}
}

// fire drives the record's FSM along a transition the table already
// approved. An FSM refusal here means the record and its FSM disagree,
// which is a bug, not a business outcome.
func (s *Service) fire(ctx context.Context, rec *record, from, to controlplane.WorkflowStatus) error {
	event, ok := s.machine.EventFor(from, to)
	if !ok {
		return controlplane.NewInternalError(
			fmt.Sprintf("no event for transition %s -> %s", from, to), nil).
			WithCode(controlplane.ErrCodeInternal)
	}
	if err := rec.fsm.Event(ctx, event); err != nil {
		return controlplane.NewInternalError("state machine rejected an approved transition", err).
			WithCode(controlplane.ErrCodeInternal).
			WithResource(rec.wf.ID)
	}
	return nil
}

func (s *Service) getOrCreate(workflowID string) *record {
	s.mu.RLock()
	rec, ok := s.workflows[workflowID]
	s.mu.RUnlock()
	if ok {
		return rec
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok = s.workflows[workflowID]; ok {
		return rec
	}

	now := time.Now().UTC()
	rec = &record{
		wf: controlplane.Workflow{
			ID:        workflowID,
			Status:    controlplane.WorkflowStatusIdle,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	rec.fsm = s.machine.NewInstance(controlplane.WorkflowStatusIdle, fsm.Callbacks{
		"enter_state": func(_ context.Context, e *fsm.Event) {
			s.logger.Debug().
				Str("workflow_id", workflowID).
				Str("event", e.Event).
				Str("from", e.Src).
				Str("to", e.Dst).
				Msg("Workflow transition")
		},
	})
	s.workflows[workflowID] = rec

	s.logger.Debug().Str("workflow_id", workflowID).Msg("Workflow record created")
	return rec
}

func (s *Service) audit(req controlplane.WorkflowOperationRequest, resp *controlplane.WorkflowOperationResponse, result controlplane.AuditResult, start time.Time, errMsg string) {
	if s.auditLog == nil {
		return
	}
	params := make(map[string]interface{}, len(req.Metadata)+1)
	for k, v := range req.Metadata {
		params[k] = v
	}
	if req.StepID != "" {
		params["step_id"] = req.StepID
	}
	if len(params) == 0 {
		params = nil
	}
	s.auditLog.Log(controlplane.AuditEntry{
		TriggeredBy:   req.TriggeredBy,
		OperationType: req.Operation,
		ResourceType:  controlplane.ResourceWorkflow,
		ResourceID:    req.WorkflowID,
		Params:        params,
		Result:        result,
		ReasonCode:    resp.ReasonCode,
		DurationMS:    time.Since(start).Milliseconds(),
		ErrorMessage:  errMsg,
	})
}

func (s *Service) observe(op controlplane.OperationType, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordWorkflowOperation(string(op), outcome)
	}
}

func targetStatus(op controlplane.OperationType) controlplane.WorkflowStatus {
	switch op {
	case controlplane.OperationPause:
		return controlplane.WorkflowStatusPaused
	case controlplane.OperationResume:
		return controlplane.WorkflowStatusRunning
	case controlplane.OperationCancel:
		return controlplane.WorkflowStatusCancelled
	case controlplane.OperationRetry:
		return controlplane.WorkflowStatusRunning
	default:
		return controlplane.WorkflowStatusIdle
	}
}
