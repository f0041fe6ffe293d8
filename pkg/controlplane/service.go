package controlplane

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openswitchboard/switchboard/pkg/compat"
	"github.com/openswitchboard/switchboard/pkg/telemetry"
)

// restartImpact lists the services restarted by a kernel or runtime change.
var restartImpact = []string{"backend"}

// Configuration keys the stack dimension resource types map onto.
const (
	keyDecisionStrategy = "decision_strategy"
	keyIntentMode       = "intent_mode"
	keyKernel           = "kernel"
	keyRuntime          = "runtime"
	keyProvider         = "provider"
	keyModel            = "model"
	keyEmbeddingModel   = "embedding_model"
)

// Service is the control plane orchestrator. It validates and stages change
// plans, applies them against the collaborators, and assembles system state
// snapshots. All methods are safe for concurrent use.
type Service struct {
	config    ConfigManager
	runtime   RuntimeController
	auditLog  AuditLog
	workflows WorkflowDriver
	validator *compat.Validator
	policy    PolicyGate
	logger    zerolog.Logger
	metrics   *telemetry.Metrics
	tracer    *telemetry.Tracer

	guard *OperationGuard

	mu     sync.Mutex
	staged map[string]*Plan
}

// NewService creates a control plane service over the given collaborators.
// A nil validator falls back to the default compatibility matrix.
func NewService(
	config ConfigManager,
	runtime RuntimeController,
	auditLog AuditLog,
	workflows WorkflowDriver,
	validator *compat.Validator,
	logger zerolog.Logger,
) *Service {
	if validator == nil {
		validator = compat.NewValidator(nil)
	}
	return &Service{
		config:    config,
		runtime:   runtime,
		auditLog:  auditLog,
		workflows: workflows,
		validator: validator,
		logger:    logger.With().Str("component", "controlplane").Logger(),
		guard:     NewOperationGuard(),
		staged:    make(map[string]*Plan),
	}
}

// WithPolicyGate attaches a policy gate. Returns the service for chaining.
func (s *Service) WithPolicyGate(gate PolicyGate) *Service {
	s.policy = gate
	return s
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

// Guard exposes the operation guard, primarily so state snapshots and tests
// can observe in-flight operations.
func (s *Service) Guard() *OperationGuard {
	return s.guard
}

// StagedPlan returns a copy of the staged plan for a ticket, nil when the
// ticket is unknown. The staged plan itself is never handed out.
func (s *Service) StagedPlan(ticket string) *Plan {
	s.mu.Lock()
	defer s.mu.Unlock()
	plan, ok := s.staged[ticket]
	if !ok {
		return nil
	}
	cp := *plan
	return &cp
}

// PlanChanges validates a batch of configuration changes, checks the
// projected stack against the compatibility matrix and the policy gate, and
// stages the plan under a fresh execution ticket. Dry runs validate
// identically but stage nothing.
//
// Rejections are responses, not errors; an error indicates a collaborator
// fault and nothing was staged.
func (s *Service) PlanChanges(ctx context.Context, req PlanRequest) (*PlanResponse, error) {
	start := time.Now()
	ticket := uuid.NewString()
	ctx, span := s.tracer.StartPlanSpan(ctx, ticket, len(req.Changes), req.DryRun)
	defer span.End()

	token := ticket
	if v, ok := req.Metadata["operation_id"].(string); ok && v != "" {
		token = v
	}
	if !s.guard.Begin(token) {
		resp := &PlanResponse{
			ExecutionTicket: ticket,
			Valid:           false,
			ReasonCode:      ReasonOperationInProgress,
			Message:         fmt.Sprintf("operation %q is already in progress", token),
			DryRun:          req.DryRun,
			Timestamp:       time.Now().UTC(),
		}
		s.auditPlan(req, ticket, resp.ReasonCode, AuditResultRejected, start, resp.Message)
		s.observe("plan", "in_progress", start)
		return resp, nil
	}
	defer s.guard.End(token)

	now := time.Now().UTC()
	report := &CompatibilityReport{
		Compatible:       true,
		Issues:           []string{},
		Warnings:         []string{},
		AffectedServices: []string{},
	}
	planned := make([]AppliedChange, 0, len(req.Changes))
	rejected := make([]string, 0)
	structuralFailure := false

	for _, change := range req.Changes {
		if msg := ValidateChange(change); msg != "" {
			rejected = append(rejected, change.ResourceID+": "+msg)
			report.Issues = append(report.Issues, msg)
			structuralFailure = true
			continue
		}
		planned = append(planned, classifyChange(change, now))
	}

	// The projected stack is only meaningful when every change parsed; a
	// structurally broken batch is already invalid.
	if !structuralFailure {
		stack, err := s.projectStack(ctx, planned)
		if err != nil {
			s.auditPlan(req, ticket, ReasonServiceUnavailable, AuditResultFailure, start, err.Error())
			s.observe("plan", "error", start)
			return nil, err
		}
		for _, issue := range s.validator.ValidateStack(stack) {
			report.Issues = append(report.Issues, issue.Message)
			s.metrics.RecordCompatibilityIssue(string(issue.Dimension))
			if composite, ok := downgradeChange(planned, issue); ok {
				rejected = append(rejected, composite)
			}
		}
	}

	if s.policy != nil && !req.Force {
		verdicts, err := s.policy.EvaluateChanges(ctx, &req)
		if err != nil {
			// The gate is advisory. A broken policy bundle must not block
			// configuration changes, so evaluation faults surface as warnings.
			s.logger.Warn().Err(err).
				Str("execution_ticket", ticket).
				Msg("Policy evaluation unavailable")
			report.Warnings = append(report.Warnings, "policy review unavailable: "+err.Error())
		}
		for _, v := range verdicts {
			line := fmt.Sprintf("policy %s: %s", v.Policy, v.Message)
			if v.Blocking() {
				report.Issues = append(report.Issues, line)
			} else {
				report.Warnings = append(report.Warnings, line)
			}
		}
	}

	hotSwap := make([]string, 0, len(planned))
	restartServices := make([]string, 0)
	for _, change := range planned {
		switch change.ApplyMode {
		case ApplyModeHotSwap:
			hotSwap = append(hotSwap, change.ResourceID)
		case ApplyModeRestartRequired:
			restartServices = mergeServices(restartServices, restartImpact)
		}
	}
	report.AffectedServices = mergeServices(report.AffectedServices, restartServices)
	report.Compatible = len(report.Issues) == 0

	valid := len(rejected) == 0 && report.Compatible
	reason := ReasonInvalidConfiguration
	message := "Plan rejected; see compatibility issues"
	switch {
	case valid && len(restartServices) > 0:
		reason = ReasonSuccessRestartPending
		message = fmt.Sprintf("Plan is valid; applying requires a restart of: %s", strings.Join(restartServices, ", "))
	case valid:
		reason = ReasonSuccessHotSwap
		message = "Plan is valid; all changes hot-swap"
	}

	plan := &Plan{
		ExecutionTicket:         ticket,
		Request:                 req,
		Changes:                 planned,
		HotSwapChanges:          hotSwap,
		RestartRequiredServices: restartServices,
		RejectedChanges:         rejected,
		Compatibility:           *report,
		Valid:                   valid,
		CreatedAt:               now,
	}
	if !req.DryRun {
		s.mu.Lock()
		s.staged[ticket] = plan
		s.mu.Unlock()
	}

	auditResult := AuditResultSuccess
	if !valid {
		auditResult = AuditResultRejected
	}
	s.auditPlan(req, ticket, reason, auditResult, start, "")
	s.observe("plan", planOutcome(valid, req.DryRun), start)
	span.SetAttributes(telemetry.AttrReasonCode.String(string(reason)))

	s.logger.Info().
		Str("execution_ticket", ticket).
		Int("changes", len(req.Changes)).
		Int("rejected", len(rejected)).
		Bool("valid", valid).
		Bool("dry_run", req.DryRun).
		Str("reason_code", string(reason)).
		Msg("Plan computed")

	return &PlanResponse{
		ExecutionTicket:         ticket,
		Valid:                   valid,
		ReasonCode:              reason,
		Message:                 message,
		PlannedChanges:          planned,
		HotSwapChanges:          hotSwap,
		RestartRequiredServices: restartServices,
		RejectedChanges:         rejected,
		Compatibility:           *report,
		DryRun:                  req.DryRun,
		Timestamp:               now,
	}, nil
}

// ApplyChanges redeems an execution ticket and applies its staged plan.
// Outcomes short of a collaborator fault are responses: unknown tickets,
// invalid plans and unconfirmed restarts reject without mutating anything.
func (s *Service) ApplyChanges(ctx context.Context, req ApplyRequest) (*ApplyResponse, error) {
	start := time.Now()
	ctx, span := s.tracer.StartApplySpan(ctx, req.ExecutionTicket, req.ConfirmRestart)
	defer span.End()

	// The guard refuses empty tokens, which would misreport a blank ticket
	// as contention.
	if req.ExecutionTicket == "" {
		resp := s.applyRejection(req, ApplyModeRejected, ReasonInvalidConfiguration,
			"Invalid or expired execution ticket")
		s.auditApply(req, resp.ReasonCode, AuditResultRejected, start, resp.Message, nil)
		s.observe("apply", "unknown_ticket", start)
		return resp, nil
	}

	if !s.guard.Begin(req.ExecutionTicket) {
		resp := s.applyRejection(req, ApplyModeRejected, ReasonOperationInProgress,
			fmt.Sprintf("operation %q is already in progress", req.ExecutionTicket))
		s.auditApply(req, resp.ReasonCode, AuditResultRejected, start, resp.Message, nil)
		s.observe("apply", "in_progress", start)
		return resp, nil
	}
	defer s.guard.End(req.ExecutionTicket)

	plan := s.lookupPlan(req.ExecutionTicket)
	if plan == nil {
		resp := s.applyRejection(req, ApplyModeRejected, ReasonInvalidConfiguration,
			"Invalid or expired execution ticket")
		s.auditApply(req, resp.ReasonCode, AuditResultRejected, start, resp.Message, nil)
		s.observe("apply", "unknown_ticket", start)
		return resp, nil
	}

	if !plan.Valid {
		s.consumePlan(req.ExecutionTicket)
		resp := s.applyRejection(req, ApplyModeRejected, ReasonInvalidConfiguration,
			"Cannot apply invalid plan")
		s.auditApply(req, resp.ReasonCode, AuditResultRejected, start, resp.Message, nil)
		s.observe("apply", "invalid_plan", start)
		return resp, nil
	}

	if len(plan.RestartRequiredServices) > 0 && !req.ConfirmRestart {
		resp := &ApplyResponse{
			ExecutionTicket: req.ExecutionTicket,
			ApplyMode:       ApplyModeRestartRequired,
			ReasonCode:      ReasonSuccessRestartPending,
			Message: fmt.Sprintf("Restart of %s required; re-submit with confirm_restart=true",
				strings.Join(plan.RestartRequiredServices, ", ")),
			RestartRequiredServices: plan.RestartRequiredServices,
			Timestamp:               time.Now().UTC(),
		}
		s.auditApply(req, resp.ReasonCode, AuditResultSuccess, start, "", nil)
		s.observe("apply", "restart_pending", start)
		return resp, nil
	}

	applied, failed := s.applyPlan(ctx, plan)
	s.consumePlan(req.ExecutionTicket)

	mode := ApplyModeHotSwap
	reason := ReasonSuccessHotSwap
	message := fmt.Sprintf("Applied %d change(s)", len(applied))
	result := AuditResultSuccess
	switch {
	case len(failed) > 0:
		mode = ApplyModeRejected
		reason = ReasonOperationFailed
		message = fmt.Sprintf("Apply failed after %d change(s); rolled back", len(applied))
		result = AuditResultFailure
		if len(applied) > 0 {
			result = AuditResultPartial
		}
	case len(plan.RestartRequiredServices) > 0:
		mode = ApplyModeRestartRequired
		reason = ReasonSuccessRestartPending
		message = fmt.Sprintf("Applied %d change(s); restarting: %s",
			len(applied), strings.Join(plan.RestartRequiredServices, ", "))
	}

	s.auditApply(req, reason, result, start, "", map[string]interface{}{
		"applied": len(applied),
		"failed":  len(failed),
	})
	s.observe("apply", string(mode), start)
	span.SetAttributes(
		telemetry.AttrApplyMode.String(string(mode)),
		telemetry.AttrReasonCode.String(string(reason)),
	)

	s.logger.Info().
		Str("execution_ticket", req.ExecutionTicket).
		Str("apply_mode", string(mode)).
		Int("applied", len(applied)).
		Int("failed", len(failed)).
		Msg("Plan applied")

	return &ApplyResponse{
		ExecutionTicket:         req.ExecutionTicket,
		ApplyMode:               mode,
		ReasonCode:              reason,
		Message:                 message,
		AppliedChanges:          applied,
		FailedChanges:           failed,
		RestartRequiredServices: plan.RestartRequiredServices,
		Timestamp:               time.Now().UTC(),
	}, nil
}

// State assembles a point-in-time snapshot of the system. Nothing is cached;
// every call reads the collaborators.
func (s *Service) State(ctx context.Context) (*SystemState, error) {
	cfg, err := s.config.Config(ctx)
	if err != nil {
		return nil, NewUnavailableError("configuration store unavailable", err).
			WithCode(ErrCodeConfigUnavailable).
			WithOperation("state")
	}
	health, err := s.runtime.ServicesStatus(ctx)
	if err != nil {
		return nil, NewUnavailableError("runtime controller unavailable", err).
			WithCode(ErrCodeRuntimeUnavailable).
			WithOperation("state")
	}

	runtimeStatus := "unknown"
	if h, ok := health["backend"]; ok {
		runtimeStatus = h.Status
	}

	return &SystemState{
		Timestamp:        time.Now().UTC(),
		DecisionStrategy: configString(cfg, keyDecisionStrategy),
		IntentMode:       configString(cfg, keyIntentMode),
		Kernel:           configString(cfg, keyKernel),
		Runtime: RuntimeInfo{
			Name:   configString(cfg, keyRuntime),
			Status: runtimeStatus,
		},
		Provider: ProviderInfo{
			Name:  configString(cfg, keyProvider),
			Model: configString(cfg, keyModel),
		},
		EmbeddingModel:   configString(cfg, keyEmbeddingModel),
		WorkflowStatus:   s.workflows.LatestStatus(),
		ActiveOperations: s.guard.Active(),
		Health:           health,
	}, nil
}

// projectStack overlays the planned changes on the current configuration to
// produce the stack the plan would leave behind.
func (s *Service) projectStack(ctx context.Context, planned []AppliedChange) (compat.StackConfig, error) {
	cfg, err := s.config.Config(ctx)
	if err != nil {
		return compat.StackConfig{}, NewUnavailableError("configuration store unavailable", err).
			WithCode(ErrCodeConfigUnavailable).
			WithOperation(string(OperationPlan))
	}

	changes := make([]ResourceChange, 0, len(planned))
	for _, change := range planned {
		changes = append(changes, change.ResourceChange)
	}
	return OverlayStack(cfg, changes), nil
}

// OverlayStack projects the stack that would result from applying the
// changes over the given configuration values. Pure; the control plane
// uses it during planning and the CLI uses it for offline validation.
func OverlayStack(cfg map[string]interface{}, changes []ResourceChange) compat.StackConfig {
	stack := compat.StackConfig{
		Kernel:         configString(cfg, keyKernel),
		Runtime:        configString(cfg, keyRuntime),
		Provider:       configString(cfg, keyProvider),
		Model:          configString(cfg, keyModel),
		EmbeddingModel: configString(cfg, keyEmbeddingModel),
		IntentMode:     configString(cfg, keyIntentMode),
	}

	for _, change := range changes {
		if change.Action == ActionRestart {
			continue
		}
		value := ""
		if change.Action != ActionDelete {
			value = valueString(change.NewValue)
		}
		switch change.ResourceType {
		case ResourceKernel:
			stack.Kernel = value
		case ResourceRuntime:
			stack.Runtime = value
		case ResourceProvider:
			stack.Provider = value
			if m, ok := change.NewValue.(map[string]interface{}); ok {
				if model, ok := m["model"].(string); ok && model != "" {
					stack.Model = model
				}
			}
		case ResourceEmbeddingModel:
			stack.EmbeddingModel = value
		case ResourceIntentMode:
			stack.IntentMode = value
		case ResourceConfig:
			if change.ResourceID == keyModel {
				stack.Model = value
			}
		}
	}
	return stack
}

// applyPlan runs the staged changes in order, snapshotting prior values.
// The first failure stops the loop and rolls back in reverse order;
// rollback outcomes are reported as text, never as errors.
func (s *Service) applyPlan(ctx context.Context, plan *Plan) (applied []string, failed []string) {
	applied = make([]string, 0, len(plan.Changes))
	span := telemetry.SpanFromContext(ctx)

	type snapshot struct {
		change   AppliedChange
		previous interface{}
	}
	snapshots := make([]snapshot, 0, len(plan.Changes))

	var failedChange *AppliedChange
	for i := range plan.Changes {
		change := plan.Changes[i]
		previous, err := s.applyChange(ctx, change, plan.Request.TriggeredBy)
		if err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", change.ResourceID, err))
			failedChange = &plan.Changes[i]
			break
		}
		snapshots = append(snapshots, snapshot{change: change, previous: previous})
		applied = append(applied, change.ResourceID)
		s.recordChange(change)
		telemetry.AddEvent(span, "change.applied",
			telemetry.AttrResourceType.String(string(change.ResourceType)),
			telemetry.AttrResourceID.String(change.ResourceID),
			telemetry.AttrChangeAction.String(string(change.Action)))
	}

	if failedChange == nil {
		return applied, nil
	}

	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if err := s.rollbackChange(ctx, snap.change, snap.previous, plan.Request.TriggeredBy); err != nil {
			failed = append(failed, fmt.Sprintf("rollback %s: %v", snap.change.ResourceID, err))
			s.logger.Error().
				Err(err).
				Str("resource_id", snap.change.ResourceID).
				Str("execution_ticket", plan.ExecutionTicket).
				Msg("Rollback failed")
			continue
		}
		failed = append(failed, fmt.Sprintf("rollback %s: restored previous value", snap.change.ResourceID))
	}
	return applied, failed
}

func (s *Service) lookupPlan(ticket string) *Plan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.staged[ticket]
}

func (s *Service) consumePlan(ticket string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.staged, ticket)
}

func (s *Service) applyRejection(req ApplyRequest, mode ApplyMode, reason ReasonCode, message string) *ApplyResponse {
	return &ApplyResponse{
		ExecutionTicket: req.ExecutionTicket,
		ApplyMode:       mode,
		ReasonCode:      reason,
		Message:         message,
		Timestamp:       time.Now().UTC(),
	}
}

func (s *Service) auditPlan(req PlanRequest, ticket string, reason ReasonCode, result AuditResult, start time.Time, errMsg string) {
	if s.auditLog == nil {
		return
	}
	params := map[string]interface{}{"changes": len(req.Changes)}
	if req.DryRun {
		params["dry_run"] = true
	}
	if req.Force {
		params["force"] = true
	}
	s.auditLog.Log(AuditEntry{
		TriggeredBy:   req.TriggeredBy,
		OperationType: OperationPlan,
		ResourceID:    ticket,
		Params:        params,
		Result:        result,
		ReasonCode:    reason,
		DurationMS:    time.Since(start).Milliseconds(),
		ErrorMessage:  errMsg,
	})
}

func (s *Service) auditApply(req ApplyRequest, reason ReasonCode, result AuditResult, start time.Time, errMsg string, extra map[string]interface{}) {
	if s.auditLog == nil {
		return
	}
	params := make(map[string]interface{}, len(extra)+1)
	for k, v := range extra {
		params[k] = v
	}
	if req.ConfirmRestart {
		params["confirm_restart"] = true
	}
	if len(params) == 0 {
		params = nil
	}
	s.auditLog.Log(AuditEntry{
		TriggeredBy:   req.TriggeredBy,
		OperationType: OperationApply,
		ResourceID:    req.ExecutionTicket,
		Params:        params,
		Result:        result,
		ReasonCode:    reason,
		DurationMS:    time.Since(start).Milliseconds(),
		ErrorMessage:  errMsg,
	})
}

func (s *Service) observe(operation, outcome string, start time.Time) {
	s.metrics.RecordOperation(operation, outcome, time.Since(start))
	s.metrics.SetActiveOperations(float64(s.guard.Active()))
	if s.auditLog != nil {
		s.metrics.SetAuditEntries(float64(s.auditLog.Len()))
	}
}

func (s *Service) recordChange(change AppliedChange) {
	s.metrics.RecordChange(string(change.ResourceType), string(change.ApplyMode))
}

// ValidateChange checks a submitted change structurally. It returns an empty
// string when the change is well formed. The same checks run during
// planning; exposing them lets callers validate change batches offline.
func ValidateChange(change ResourceChange) string {
	if err := change.ResourceType.Validate(); err != nil {
		return fmt.Sprintf("unknown resource_type %q", change.ResourceType)
	}
	if change.ResourceID == "" {
		return fmt.Sprintf("resource_id is required for %s changes", change.ResourceType)
	}
	if err := change.Action.Validate(); err != nil {
		return fmt.Sprintf("unknown action %q", change.Action)
	}
	if change.Action.RequiresValue() && change.NewValue == nil {
		return fmt.Sprintf("new_value is required for action %q on %q", change.Action, change.ResourceID)
	}
	return ""
}

// classifyChange assigns the apply mode a change will use: kernel and
// runtime changes restart the backend, everything else hot-swaps.
func classifyChange(change ResourceChange, now time.Time) AppliedChange {
	mode := ApplyModeHotSwap
	reason := ReasonSuccessHotSwap
	message := "change hot-swaps"
	if change.ResourceType.RequiresRestart() {
		mode = ApplyModeRestartRequired
		reason = ReasonSuccessRestartPending
		message = fmt.Sprintf("change restarts: %s", strings.Join(restartImpact, ", "))
	}
	return AppliedChange{
		ResourceChange: change,
		ApplyMode:      mode,
		ReasonCode:     reason,
		Message:        message,
		Timestamp:      now,
	}
}

// downgradeChange marks the planned change responsible for a compatibility
// issue as rejected, tagging it with the dimension-specific reason code. It
// returns the composite rejection line and whether a change matched; issues
// caused by pre-existing configuration match nothing and stay plan-level.
func downgradeChange(planned []AppliedChange, issue compat.Issue) (string, bool) {
	reason, candidates := dimensionRejection(issue.Dimension)
	for i := range planned {
		change := &planned[i]
		if change.ApplyMode == ApplyModeRejected {
			continue
		}
		if !matchesCandidates(change, candidates) {
			continue
		}
		change.ApplyMode = ApplyModeRejected
		change.ReasonCode = reason
		change.Message = issue.Message
		return change.ResourceID + ": " + issue.Message, true
	}
	return "", false
}

// dimensionRejection maps a compatibility dimension to its rejection reason
// and the resource types that can carry it, in blame order.
func dimensionRejection(dim compat.Dimension) (ReasonCode, []ResourceType) {
	switch dim {
	case compat.DimensionKernelRuntime:
		return ReasonKernelRuntimeMismatch, []ResourceType{ResourceKernel, ResourceRuntime}
	case compat.DimensionRuntimeProvider:
		return ReasonIncompatibleCombination, []ResourceType{ResourceRuntime, ResourceProvider}
	case compat.DimensionProviderModel:
		return ReasonProviderModelMismatch, []ResourceType{ResourceProvider, ResourceConfig}
	case compat.DimensionEmbedding:
		return ReasonEmbeddingIncompatible, []ResourceType{ResourceEmbeddingModel}
	case compat.DimensionIntentMode:
		return ReasonIntentModeConflict, []ResourceType{ResourceIntentMode}
	default:
		return ReasonIncompatibleCombination, nil
	}
}

func matchesCandidates(change *AppliedChange, candidates []ResourceType) bool {
	for _, rt := range candidates {
		if change.ResourceType != rt {
			continue
		}
		// Only the model key of a config change participates in
		// provider/model compatibility.
		if rt == ResourceConfig && change.ResourceID != keyModel {
			continue
		}
		return true
	}
	return false
}

func planOutcome(valid, dryRun bool) string {
	switch {
	case dryRun:
		return "dry_run"
	case valid:
		return "valid"
	default:
		return "rejected"
	}
}

// mergeServices appends the missing members of add to base, keeping the
// result sorted and free of duplicates.
func mergeServices(base, add []string) []string {
	seen := make(map[string]struct{}, len(base)+len(add))
	merged := make([]string, 0, len(base)+len(add))
	for _, lists := range [][]string{base, add} {
		for _, svc := range lists {
			if _, ok := seen[svc]; ok {
				continue
			}
			seen[svc] = struct{}{}
			merged = append(merged, svc)
		}
	}
	sort.Strings(merged)
	return merged
}

// configString extracts a string-valued key from the configuration map,
// empty when absent or not a string.
func configString(cfg map[string]interface{}, key string) string {
	if v, ok := cfg[key].(string); ok {
		return v
	}
	return ""
}

// valueString renders a change value for stack projection. Maps contribute
// their "name" member; anything else non-string projects empty and is caught
// by the membership checks.
func valueString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case map[string]interface{}:
		if name, ok := val["name"].(string); ok {
			return name
		}
	}
	return ""
}
