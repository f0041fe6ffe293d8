package controlplane

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// mockConfigManager is a map-backed ConfigManager with fault injection.
type mockConfigManager struct {
	mu      sync.Mutex
	values  map[string]interface{}
	failGet bool
	failKey string
	updates int
}

func newMockConfig(values map[string]interface{}) *mockConfigManager {
	cp := make(map[string]interface{}, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return &mockConfigManager{values: cp}
}

func (m *mockConfigManager) Config(ctx context.Context) (map[string]interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return nil, errors.New("store offline")
	}
	out := make(map[string]interface{}, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out, nil
}

func (m *mockConfigManager) UpdateConfig(ctx context.Context, updates map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range updates {
		if k == m.failKey {
			return errors.New("write rejected")
		}
	}
	for k, v := range updates {
		if v == nil {
			delete(m.values, k)
			continue
		}
		m.values[k] = v
	}
	m.updates++
	return nil
}

func (m *mockConfigManager) get(key string) interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key]
}

func (m *mockConfigManager) updateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updates
}

// mockRuntimeController reports a fixed health map.
type mockRuntimeController struct {
	health map[string]ServiceHealth
	err    error
}

func (m *mockRuntimeController) ServicesStatus(ctx context.Context) (map[string]ServiceHealth, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.health, nil
}

// mockAuditLog records entries for assertions.
type mockAuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (m *mockAuditLog) Log(entry AuditEntry) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.OperationID = uuid.NewString()
	m.entries = append(m.entries, entry)
	return entry.OperationID
}

func (m *mockAuditLog) Entries(filter AuditFilter, limit int) []AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AuditEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

func (m *mockAuditLog) Query(filter AuditFilter) []AuditEntry { return m.Entries(filter, 0) }

func (m *mockAuditLog) RecentFailures(limit int) []AuditEntry { return nil }

func (m *mockAuditLog) Operation(id string) *AuditEntry { return nil }

func (m *mockAuditLog) ClearOlderThan(days int) int { return 0 }

func (m *mockAuditLog) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *mockAuditLog) last() *AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) == 0 {
		return nil
	}
	e := m.entries[len(m.entries)-1]
	return &e
}

// mockWorkflowDriver records the operations routed to it.
type mockWorkflowDriver struct {
	mu       sync.Mutex
	status   WorkflowStatus
	latest   WorkflowStatus
	executed []WorkflowOperationRequest
	updated  []WorkflowStatus
	refuse   bool
}

func (m *mockWorkflowDriver) Execute(ctx context.Context, req WorkflowOperationRequest) (*WorkflowOperationResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executed = append(m.executed, req)
	if m.refuse {
		return &WorkflowOperationResponse{
			WorkflowID: req.WorkflowID,
			Operation:  req.Operation,
			Status:     m.status,
			ReasonCode: ReasonForbiddenTransition,
			Message:    "transition not allowed",
		}, nil
	}
	return &WorkflowOperationResponse{
		WorkflowID: req.WorkflowID,
		Operation:  req.Operation,
		Status:     m.status,
		ReasonCode: ReasonOperationCompleted,
	}, nil
}

func (m *mockWorkflowDriver) UpdateStatus(ctx context.Context, workflowID string, to WorkflowStatus, actor string) (*WorkflowOperationResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updated = append(m.updated, to)
	return &WorkflowOperationResponse{
		WorkflowID: workflowID,
		Status:     to,
		ReasonCode: ReasonOperationCompleted,
	}, nil
}

func (m *mockWorkflowDriver) Status(workflowID string) WorkflowStatus { return m.status }

func (m *mockWorkflowDriver) LatestStatus() WorkflowStatus { return m.latest }

// mockPolicyGate returns canned verdicts and counts invocations.
type mockPolicyGate struct {
	mu       sync.Mutex
	verdicts []PolicyVerdict
	err      error
	calls    int
}

func (m *mockPolicyGate) EvaluateChanges(ctx context.Context, req *PlanRequest) ([]PolicyVerdict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.verdicts, m.err
}

func (m *mockPolicyGate) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// baseConfig is a stack the default compatibility matrix accepts.
func baseConfig() map[string]interface{} {
	return map[string]interface{}{
		"decision_strategy": "balanced",
		"intent_mode":       "simple",
		"kernel":            "unified",
		"runtime":           "native",
		"provider":          "ollama",
		"model":             "llama3.1-8b",
		"embedding_model":   "nomic-embed-text",
	}
}

type harness struct {
	svc    *Service
	config *mockConfigManager
	audit  *mockAuditLog
	driver *mockWorkflowDriver
}

func newHarness() *harness {
	cfg := newMockConfig(baseConfig())
	audit := &mockAuditLog{}
	driver := &mockWorkflowDriver{status: WorkflowStatusRunning, latest: WorkflowStatusIdle}
	runtime := &mockRuntimeController{
		health: map[string]ServiceHealth{"backend": {Status: "healthy"}},
	}
	return &harness{
		svc:    NewService(cfg, runtime, audit, driver, nil, zerolog.Nop()),
		config: cfg,
		audit:  audit,
		driver: driver,
	}
}

func planOne(t *testing.T, h *harness, change ResourceChange) *PlanResponse {
	t.Helper()
	resp, err := h.svc.PlanChanges(context.Background(), PlanRequest{
		Changes:     []ResourceChange{change},
		TriggeredBy: "test",
	})
	if err != nil {
		t.Fatalf("PlanChanges returned error: %v", err)
	}
	return resp
}

func TestService_PlanHotSwapChange(t *testing.T) {
	h := newHarness()

	resp := planOne(t, h, ResourceChange{
		ResourceType: ResourceIntentMode,
		ResourceID:   "intent_mode",
		Action:       ActionUpdate,
		NewValue:     "expert",
	})

	if !resp.Valid {
		t.Fatalf("Expected valid plan, got issues %v", resp.Compatibility.Issues)
	}
	if resp.ReasonCode != ReasonSuccessHotSwap {
		t.Errorf("Expected reason success_hot_swap, got %s", resp.ReasonCode)
	}
	if _, err := uuid.Parse(resp.ExecutionTicket); err != nil {
		t.Errorf("Expected UUID execution ticket, got %q", resp.ExecutionTicket)
	}
	if len(resp.HotSwapChanges) != 1 || resp.HotSwapChanges[0] != "intent_mode" {
		t.Errorf("Expected hot_swap_changes [intent_mode], got %v", resp.HotSwapChanges)
	}
	if len(resp.RestartRequiredServices) != 0 {
		t.Errorf("Expected no restart services, got %v", resp.RestartRequiredServices)
	}
	if h.svc.StagedPlan(resp.ExecutionTicket) == nil {
		t.Error("Expected plan to be staged")
	}
	if h.config.updateCount() != 0 {
		t.Error("Expected planning to not touch configuration")
	}
}

func TestService_PlanKernelChangeRequiresRestart(t *testing.T) {
	h := newHarness()

	resp := planOne(t, h, ResourceChange{
		ResourceType: ResourceKernel,
		ResourceID:   "kernel",
		Action:       ActionUpdate,
		NewValue:     "modular",
	})

	if !resp.Valid {
		t.Fatalf("Expected valid plan, got issues %v", resp.Compatibility.Issues)
	}
	if resp.ReasonCode != ReasonSuccessRestartPending {
		t.Errorf("Expected reason success_restart_pending, got %s", resp.ReasonCode)
	}
	if len(resp.RestartRequiredServices) != 1 || resp.RestartRequiredServices[0] != "backend" {
		t.Errorf("Expected restart services [backend], got %v", resp.RestartRequiredServices)
	}
	if len(resp.PlannedChanges) != 1 || resp.PlannedChanges[0].ApplyMode != ApplyModeRestartRequired {
		t.Errorf("Expected planned change with restart_required mode, got %+v", resp.PlannedChanges)
	}
	if len(resp.Compatibility.AffectedServices) != 1 || resp.Compatibility.AffectedServices[0] != "backend" {
		t.Errorf("Expected affected services [backend], got %v", resp.Compatibility.AffectedServices)
	}
}

func TestService_PlanStructuralRejection(t *testing.T) {
	h := newHarness()

	resp, err := h.svc.PlanChanges(context.Background(), PlanRequest{
		Changes: []ResourceChange{
			{ResourceType: "gpu", ResourceID: "gpu0", Action: ActionUpdate, NewValue: "on"},
			{ResourceType: ResourceIntentMode, ResourceID: "intent_mode", Action: ActionUpdate, NewValue: "expert"},
		},
		TriggeredBy: "test",
	})
	if err != nil {
		t.Fatalf("PlanChanges returned error: %v", err)
	}

	if resp.Valid {
		t.Error("Expected invalid plan")
	}
	if resp.ReasonCode != ReasonInvalidConfiguration {
		t.Errorf("Expected reason invalid_configuration, got %s", resp.ReasonCode)
	}
	if len(resp.RejectedChanges) != 1 {
		t.Fatalf("Expected 1 rejected change, got %v", resp.RejectedChanges)
	}
	if !strings.HasPrefix(resp.RejectedChanges[0], "gpu0: ") {
		t.Errorf("Expected composite 'resource_id: message' form, got %q", resp.RejectedChanges[0])
	}
	if len(resp.PlannedChanges) != 1 || resp.PlannedChanges[0].ResourceType != ResourceIntentMode {
		t.Errorf("Expected only the valid change planned, got %+v", resp.PlannedChanges)
	}
	if resp.Compatibility.Compatible {
		t.Error("Expected report incompatible when issues are present")
	}
}

func TestService_PlanMissingNewValueRejected(t *testing.T) {
	h := newHarness()

	resp := planOne(t, h, ResourceChange{
		ResourceType: ResourceProvider,
		ResourceID:   "provider",
		Action:       ActionUpdate,
	})

	if resp.Valid {
		t.Error("Expected invalid plan")
	}
	if len(resp.RejectedChanges) != 1 || !strings.Contains(resp.RejectedChanges[0], "new_value is required") {
		t.Errorf("Expected new_value rejection, got %v", resp.RejectedChanges)
	}
}

func TestService_PlanKernelRuntimeMismatchDowngradesChange(t *testing.T) {
	h := newHarness()

	// The unified kernel does not allow the remote runtime, and the remote
	// runtime does not host the ollama provider: two issues, one change.
	resp := planOne(t, h, ResourceChange{
		ResourceType: ResourceRuntime,
		ResourceID:   "runtime",
		Action:       ActionUpdate,
		NewValue:     "remote",
	})

	if resp.Valid {
		t.Error("Expected invalid plan")
	}
	if len(resp.Compatibility.Issues) != 2 {
		t.Fatalf("Expected 2 issues, got %v", resp.Compatibility.Issues)
	}
	if len(resp.PlannedChanges) != 1 {
		t.Fatalf("Expected 1 planned change, got %d", len(resp.PlannedChanges))
	}
	change := resp.PlannedChanges[0]
	if change.ApplyMode != ApplyModeRejected {
		t.Errorf("Expected change downgraded to rejected, got %s", change.ApplyMode)
	}
	if change.ReasonCode != ReasonKernelRuntimeMismatch {
		t.Errorf("Expected reason kernel_runtime_mismatch, got %s", change.ReasonCode)
	}
	if len(resp.RejectedChanges) != 1 {
		t.Errorf("Expected 1 composite rejection, got %v", resp.RejectedChanges)
	}
	if len(resp.HotSwapChanges) != 0 {
		t.Errorf("Expected no hot swap changes for a rejected change, got %v", resp.HotSwapChanges)
	}
}

func TestService_PlanProviderModelMismatch(t *testing.T) {
	h := newHarness()

	resp := planOne(t, h, ResourceChange{
		ResourceType: ResourceConfig,
		ResourceID:   "model",
		Action:       ActionUpdate,
		NewValue:     "gpt-4o",
	})

	if resp.Valid {
		t.Error("Expected invalid plan")
	}
	if len(resp.PlannedChanges) != 1 || resp.PlannedChanges[0].ReasonCode != ReasonProviderModelMismatch {
		t.Errorf("Expected reason provider_model_mismatch, got %+v", resp.PlannedChanges)
	}
}

func TestService_PlanEmbeddingIncompatible(t *testing.T) {
	h := newHarness()

	resp := planOne(t, h, ResourceChange{
		ResourceType: ResourceEmbeddingModel,
		ResourceID:   "embedding_model",
		Action:       ActionUpdate,
		NewValue:     "text-embedding-3-small",
	})

	if resp.Valid {
		t.Error("Expected invalid plan")
	}
	if len(resp.PlannedChanges) != 1 || resp.PlannedChanges[0].ReasonCode != ReasonEmbeddingIncompatible {
		t.Errorf("Expected reason embedding_incompatible, got %+v", resp.PlannedChanges)
	}
}

func TestService_PlanIntentModeConflict(t *testing.T) {
	h := newHarness()

	// research demands a 70B model; the current model is 8B.
	resp := planOne(t, h, ResourceChange{
		ResourceType: ResourceIntentMode,
		ResourceID:   "intent_mode",
		Action:       ActionUpdate,
		NewValue:     "research",
	})

	if resp.Valid {
		t.Error("Expected invalid plan")
	}
	if len(resp.PlannedChanges) != 1 || resp.PlannedChanges[0].ReasonCode != ReasonIntentModeConflict {
		t.Errorf("Expected reason intent_mode_conflict, got %+v", resp.PlannedChanges)
	}
}

func TestService_PlanDryRunStagesNothing(t *testing.T) {
	h := newHarness()

	resp, err := h.svc.PlanChanges(context.Background(), PlanRequest{
		Changes: []ResourceChange{{
			ResourceType: ResourceIntentMode,
			ResourceID:   "intent_mode",
			Action:       ActionUpdate,
			NewValue:     "expert",
		}},
		DryRun:      true,
		TriggeredBy: "test",
	})
	if err != nil {
		t.Fatalf("PlanChanges returned error: %v", err)
	}

	if !resp.Valid {
		t.Fatalf("Expected valid dry run, got issues %v", resp.Compatibility.Issues)
	}
	if !resp.DryRun {
		t.Error("Expected dry_run echoed in response")
	}
	if h.svc.StagedPlan(resp.ExecutionTicket) != nil {
		t.Error("Expected dry run to stage nothing")
	}

	apply, err := h.svc.ApplyChanges(context.Background(), ApplyRequest{
		ExecutionTicket: resp.ExecutionTicket,
		TriggeredBy:     "test",
	})
	if err != nil {
		t.Fatalf("ApplyChanges returned error: %v", err)
	}
	if apply.Message != "Invalid or expired execution ticket" {
		t.Errorf("Expected dry run ticket to be unredeemable, got %q", apply.Message)
	}
}

func TestService_PlanOperationGuardContention(t *testing.T) {
	h := newHarness()

	if !h.svc.Guard().Begin("batch-7") {
		t.Fatal("Failed to seed guard token")
	}
	defer h.svc.Guard().End("batch-7")

	resp, err := h.svc.PlanChanges(context.Background(), PlanRequest{
		Changes: []ResourceChange{{
			ResourceType: ResourceIntentMode,
			ResourceID:   "intent_mode",
			Action:       ActionUpdate,
			NewValue:     "expert",
		}},
		Metadata:    map[string]interface{}{"operation_id": "batch-7"},
		TriggeredBy: "test",
	})
	if err != nil {
		t.Fatalf("PlanChanges returned error: %v", err)
	}
	if resp.Valid {
		t.Error("Expected contended plan to be invalid")
	}
	if resp.ReasonCode != ReasonOperationInProgress {
		t.Errorf("Expected reason operation_in_progress, got %s", resp.ReasonCode)
	}

	// A plan without the contested operation_id proceeds under its own ticket.
	other := planOne(t, h, ResourceChange{
		ResourceType: ResourceIntentMode,
		ResourceID:   "intent_mode",
		Action:       ActionUpdate,
		NewValue:     "expert",
	})
	if !other.Valid {
		t.Errorf("Expected independent plan to succeed, got %s", other.ReasonCode)
	}
}

func TestService_PlanPolicyGate(t *testing.T) {
	h := newHarness()
	gate := &mockPolicyGate{verdicts: []PolicyVerdict{
		{Policy: "change-safety", Message: "kernel changes need a maintenance window", Severity: "error"},
		{Policy: "restart-budget", Message: "one restart this hour already", Severity: "warning"},
	}}
	h.svc.WithPolicyGate(gate)

	resp := planOne(t, h, ResourceChange{
		ResourceType: ResourceIntentMode,
		ResourceID:   "intent_mode",
		Action:       ActionUpdate,
		NewValue:     "expert",
	})

	if resp.Valid {
		t.Error("Expected blocking verdict to fail the plan")
	}
	if len(resp.Compatibility.Issues) != 1 || !strings.Contains(resp.Compatibility.Issues[0], "change-safety") {
		t.Errorf("Expected policy issue, got %v", resp.Compatibility.Issues)
	}
	if len(resp.Compatibility.Warnings) != 1 || !strings.Contains(resp.Compatibility.Warnings[0], "restart-budget") {
		t.Errorf("Expected policy warning, got %v", resp.Compatibility.Warnings)
	}

	// force bypasses the gate entirely.
	before := gate.callCount()
	forced, err := h.svc.PlanChanges(context.Background(), PlanRequest{
		Changes: []ResourceChange{{
			ResourceType: ResourceIntentMode,
			ResourceID:   "intent_mode",
			Action:       ActionUpdate,
			NewValue:     "expert",
		}},
		Force:       true,
		TriggeredBy: "test",
	})
	if err != nil {
		t.Fatalf("PlanChanges returned error: %v", err)
	}
	if !forced.Valid {
		t.Errorf("Expected forced plan to be valid, got %s", forced.ReasonCode)
	}
	if gate.callCount() != before {
		t.Error("Expected force to skip policy evaluation")
	}
}

func TestService_PlanPolicyGateUnavailable(t *testing.T) {
	h := newHarness()
	h.svc.WithPolicyGate(&mockPolicyGate{err: errors.New("rego compile failed")})

	resp := planOne(t, h, ResourceChange{
		ResourceType: ResourceIntentMode,
		ResourceID:   "intent_mode",
		Action:       ActionUpdate,
		NewValue:     "expert",
	})

	if !resp.Valid {
		t.Errorf("Expected plan to proceed when the gate is unavailable, got %s", resp.ReasonCode)
	}
	found := false
	for _, w := range resp.Compatibility.Warnings {
		if strings.Contains(w, "policy review unavailable") {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected a policy unavailability warning, got %v", resp.Compatibility.Warnings)
	}
}

func TestService_ApplyHotSwap(t *testing.T) {
	h := newHarness()

	plan := planOne(t, h, ResourceChange{
		ResourceType: ResourceIntentMode,
		ResourceID:   "intent_mode",
		Action:       ActionUpdate,
		NewValue:     "expert",
	})

	resp, err := h.svc.ApplyChanges(context.Background(), ApplyRequest{
		ExecutionTicket: plan.ExecutionTicket,
		TriggeredBy:     "test",
	})
	if err != nil {
		t.Fatalf("ApplyChanges returned error: %v", err)
	}
	if resp.ApplyMode != ApplyModeHotSwap {
		t.Errorf("Expected apply_mode hot_swap, got %s", resp.ApplyMode)
	}
	if resp.ReasonCode != ReasonSuccessHotSwap {
		t.Errorf("Expected reason success_hot_swap, got %s", resp.ReasonCode)
	}
	if len(resp.AppliedChanges) != 1 || resp.AppliedChanges[0] != "intent_mode" {
		t.Errorf("Expected applied [intent_mode], got %v", resp.AppliedChanges)
	}
	if got := h.config.get("intent_mode"); got != "expert" {
		t.Errorf("Expected intent_mode expert in configuration, got %v", got)
	}

	entry := h.audit.last()
	if entry == nil {
		t.Fatal("Expected an audit entry")
	}
	if entry.OperationType != OperationApply || entry.Result != AuditResultSuccess {
		t.Errorf("Expected apply success audit entry, got %+v", entry)
	}

	again, err := h.svc.ApplyChanges(context.Background(), ApplyRequest{
		ExecutionTicket: plan.ExecutionTicket,
		TriggeredBy:     "test",
	})
	if err != nil {
		t.Fatalf("ApplyChanges returned error: %v", err)
	}
	if again.Message != "Invalid or expired execution ticket" {
		t.Errorf("Expected consumed ticket to be unredeemable, got %q", again.Message)
	}
}

func TestService_ApplyUnknownTicket(t *testing.T) {
	h := newHarness()

	resp, err := h.svc.ApplyChanges(context.Background(), ApplyRequest{
		ExecutionTicket: uuid.NewString(),
		TriggeredBy:     "test",
	})
	if err != nil {
		t.Fatalf("ApplyChanges returned error: %v", err)
	}
	if resp.ApplyMode != ApplyModeRejected {
		t.Errorf("Expected apply_mode rejected, got %s", resp.ApplyMode)
	}
	if resp.ReasonCode != ReasonInvalidConfiguration {
		t.Errorf("Expected reason invalid_configuration, got %s", resp.ReasonCode)
	}
	if resp.Message != "Invalid or expired execution ticket" {
		t.Errorf("Unexpected message %q", resp.Message)
	}
	if h.config.updateCount() != 0 {
		t.Error("Expected unknown ticket apply to mutate nothing")
	}

	entry := h.audit.last()
	if entry == nil || entry.Result != AuditResultRejected {
		t.Errorf("Expected rejected audit entry, got %+v", entry)
	}
}

func TestService_ApplyEmptyTicket(t *testing.T) {
	h := newHarness()

	resp, err := h.svc.ApplyChanges(context.Background(), ApplyRequest{TriggeredBy: "test"})
	if err != nil {
		t.Fatalf("ApplyChanges returned error: %v", err)
	}
	if resp.ReasonCode != ReasonInvalidConfiguration {
		t.Errorf("Expected reason invalid_configuration, got %s", resp.ReasonCode)
	}
	if resp.Message != "Invalid or expired execution ticket" {
		t.Errorf("Unexpected message %q", resp.Message)
	}
}

func TestService_ApplyInvalidPlanConsumesTicket(t *testing.T) {
	h := newHarness()

	plan := planOne(t, h, ResourceChange{
		ResourceType: ResourceRuntime,
		ResourceID:   "runtime",
		Action:       ActionUpdate,
		NewValue:     "remote",
	})
	if plan.Valid {
		t.Fatal("Expected invalid plan fixture")
	}

	resp, err := h.svc.ApplyChanges(context.Background(), ApplyRequest{
		ExecutionTicket: plan.ExecutionTicket,
		TriggeredBy:     "test",
	})
	if err != nil {
		t.Fatalf("ApplyChanges returned error: %v", err)
	}
	if resp.Message != "Cannot apply invalid plan" {
		t.Errorf("Unexpected message %q", resp.Message)
	}
	if h.config.updateCount() != 0 {
		t.Error("Expected invalid plan apply to mutate nothing")
	}

	again, err := h.svc.ApplyChanges(context.Background(), ApplyRequest{
		ExecutionTicket: plan.ExecutionTicket,
		TriggeredBy:     "test",
	})
	if err != nil {
		t.Fatalf("ApplyChanges returned error: %v", err)
	}
	if again.Message != "Invalid or expired execution ticket" {
		t.Errorf("Expected ticket consumed on first redemption, got %q", again.Message)
	}
}

func TestService_ApplyRestartRequiresConfirmation(t *testing.T) {
	h := newHarness()

	plan := planOne(t, h, ResourceChange{
		ResourceType: ResourceKernel,
		ResourceID:   "kernel",
		Action:       ActionUpdate,
		NewValue:     "modular",
	})

	pending, err := h.svc.ApplyChanges(context.Background(), ApplyRequest{
		ExecutionTicket: plan.ExecutionTicket,
		TriggeredBy:     "test",
	})
	if err != nil {
		t.Fatalf("ApplyChanges returned error: %v", err)
	}
	if pending.ApplyMode != ApplyModeRestartRequired {
		t.Errorf("Expected apply_mode restart_required, got %s", pending.ApplyMode)
	}
	if pending.ReasonCode != ReasonSuccessRestartPending {
		t.Errorf("Expected reason success_restart_pending, got %s", pending.ReasonCode)
	}
	if !strings.Contains(pending.Message, "confirm_restart") {
		t.Errorf("Expected message to mention confirm_restart, got %q", pending.Message)
	}
	if h.config.get("kernel") != "unified" {
		t.Error("Expected kernel untouched without confirmation")
	}
	if h.svc.StagedPlan(plan.ExecutionTicket) == nil {
		t.Error("Expected ticket to remain staged pending confirmation")
	}

	confirmed, err := h.svc.ApplyChanges(context.Background(), ApplyRequest{
		ExecutionTicket: plan.ExecutionTicket,
		ConfirmRestart:  true,
		TriggeredBy:     "test",
	})
	if err != nil {
		t.Fatalf("ApplyChanges returned error: %v", err)
	}
	if confirmed.ApplyMode != ApplyModeRestartRequired {
		t.Errorf("Expected apply_mode restart_required, got %s", confirmed.ApplyMode)
	}
	if len(confirmed.RestartRequiredServices) != 1 || confirmed.RestartRequiredServices[0] != "backend" {
		t.Errorf("Expected restart services [backend], got %v", confirmed.RestartRequiredServices)
	}
	if h.config.get("kernel") != "modular" {
		t.Errorf("Expected kernel modular after confirmed apply, got %v", h.config.get("kernel"))
	}
	if h.svc.StagedPlan(plan.ExecutionTicket) != nil {
		t.Error("Expected ticket consumed after confirmed apply")
	}
}

func TestService_ApplyRollbackOnFailure(t *testing.T) {
	h := newHarness()
	h.config.failKey = "model"

	resp, err := h.svc.PlanChanges(context.Background(), PlanRequest{
		Changes: []ResourceChange{
			{ResourceType: ResourceDecisionStrategy, ResourceID: "decision_strategy", Action: ActionUpdate, NewValue: "fast"},
			{ResourceType: ResourceConfig, ResourceID: "model", Action: ActionUpdate, NewValue: "mistral-7b"},
		},
		TriggeredBy: "test",
	})
	if err != nil {
		t.Fatalf("PlanChanges returned error: %v", err)
	}
	if !resp.Valid {
		t.Fatalf("Expected valid plan, got issues %v", resp.Compatibility.Issues)
	}

	apply, err := h.svc.ApplyChanges(context.Background(), ApplyRequest{
		ExecutionTicket: resp.ExecutionTicket,
		TriggeredBy:     "test",
	})
	if err != nil {
		t.Fatalf("ApplyChanges returned error: %v", err)
	}
	if apply.ApplyMode != ApplyModeRejected {
		t.Errorf("Expected apply_mode rejected, got %s", apply.ApplyMode)
	}
	if apply.ReasonCode != ReasonOperationFailed {
		t.Errorf("Expected reason operation_failed, got %s", apply.ReasonCode)
	}
	if len(apply.AppliedChanges) != 1 || apply.AppliedChanges[0] != "decision_strategy" {
		t.Errorf("Expected applied [decision_strategy], got %v", apply.AppliedChanges)
	}
	if len(apply.FailedChanges) != 2 {
		t.Fatalf("Expected failure plus rollback outcome, got %v", apply.FailedChanges)
	}
	if !strings.HasPrefix(apply.FailedChanges[0], "model: ") {
		t.Errorf("Expected failing change first, got %q", apply.FailedChanges[0])
	}
	if !strings.Contains(apply.FailedChanges[1], "rollback decision_strategy") {
		t.Errorf("Expected rollback outcome recorded, got %q", apply.FailedChanges[1])
	}
	if h.config.get("decision_strategy") != "balanced" {
		t.Errorf("Expected decision_strategy rolled back to balanced, got %v", h.config.get("decision_strategy"))
	}

	entry := h.audit.last()
	if entry == nil || entry.Result != AuditResultPartial {
		t.Errorf("Expected partial audit result, got %+v", entry)
	}
}

func TestService_ApplyDeleteRemovesKey(t *testing.T) {
	h := newHarness()

	plan := planOne(t, h, ResourceChange{
		ResourceType: ResourceEmbeddingModel,
		ResourceID:   "embedding_model",
		Action:       ActionDelete,
	})
	if !plan.Valid {
		t.Fatalf("Expected valid plan, got issues %v", plan.Compatibility.Issues)
	}

	if _, err := h.svc.ApplyChanges(context.Background(), ApplyRequest{
		ExecutionTicket: plan.ExecutionTicket,
		TriggeredBy:     "test",
	}); err != nil {
		t.Fatalf("ApplyChanges returned error: %v", err)
	}
	if got := h.config.get("embedding_model"); got != nil {
		t.Errorf("Expected embedding_model removed, got %v", got)
	}
}

func TestService_ApplyWorkflowDeleteCancels(t *testing.T) {
	h := newHarness()
	workflowID := uuid.NewString()

	plan := planOne(t, h, ResourceChange{
		ResourceType: ResourceWorkflow,
		ResourceID:   workflowID,
		Action:       ActionDelete,
	})
	if !plan.Valid {
		t.Fatalf("Expected valid plan, got issues %v", plan.Compatibility.Issues)
	}

	if _, err := h.svc.ApplyChanges(context.Background(), ApplyRequest{
		ExecutionTicket: plan.ExecutionTicket,
		TriggeredBy:     "operator",
	}); err != nil {
		t.Fatalf("ApplyChanges returned error: %v", err)
	}

	if len(h.driver.executed) != 1 {
		t.Fatalf("Expected 1 workflow operation, got %d", len(h.driver.executed))
	}
	got := h.driver.executed[0]
	if got.Operation != OperationCancel {
		t.Errorf("Expected delete to route to cancel, got %s", got.Operation)
	}
	if got.WorkflowID != workflowID {
		t.Errorf("Expected workflow %s, got %s", workflowID, got.WorkflowID)
	}
	if got.TriggeredBy != "operator" {
		t.Errorf("Expected triggered_by operator, got %q", got.TriggeredBy)
	}
}

func TestService_ApplyWorkflowRestartRetries(t *testing.T) {
	h := newHarness()
	workflowID := uuid.NewString()

	plan := planOne(t, h, ResourceChange{
		ResourceType: ResourceWorkflow,
		ResourceID:   workflowID,
		Action:       ActionRestart,
	})
	if !plan.Valid {
		t.Fatalf("Expected valid plan, got issues %v", plan.Compatibility.Issues)
	}

	if _, err := h.svc.ApplyChanges(context.Background(), ApplyRequest{
		ExecutionTicket: plan.ExecutionTicket,
		TriggeredBy:     "operator",
	}); err != nil {
		t.Fatalf("ApplyChanges returned error: %v", err)
	}

	if len(h.driver.executed) != 1 || h.driver.executed[0].Operation != OperationRetry {
		t.Errorf("Expected restart to route to retry, got %+v", h.driver.executed)
	}
}

func TestService_ApplyWorkflowUpdateReportsStatus(t *testing.T) {
	h := newHarness()
	workflowID := uuid.NewString()

	plan := planOne(t, h, ResourceChange{
		ResourceType: ResourceWorkflow,
		ResourceID:   workflowID,
		Action:       ActionUpdate,
		NewValue:     "running",
	})
	if !plan.Valid {
		t.Fatalf("Expected valid plan, got issues %v", plan.Compatibility.Issues)
	}

	if _, err := h.svc.ApplyChanges(context.Background(), ApplyRequest{
		ExecutionTicket: plan.ExecutionTicket,
		TriggeredBy:     "operator",
	}); err != nil {
		t.Fatalf("ApplyChanges returned error: %v", err)
	}

	if len(h.driver.updated) != 1 || h.driver.updated[0] != WorkflowStatusRunning {
		t.Errorf("Expected status report running, got %v", h.driver.updated)
	}
}

func TestService_ApplyWorkflowRefusalFailsChange(t *testing.T) {
	h := newHarness()
	h.driver.refuse = true
	workflowID := uuid.NewString()

	plan := planOne(t, h, ResourceChange{
		ResourceType: ResourceWorkflow,
		ResourceID:   workflowID,
		Action:       ActionDelete,
	})

	resp, err := h.svc.ApplyChanges(context.Background(), ApplyRequest{
		ExecutionTicket: plan.ExecutionTicket,
		TriggeredBy:     "operator",
	})
	if err != nil {
		t.Fatalf("ApplyChanges returned error: %v", err)
	}
	if resp.ApplyMode != ApplyModeRejected {
		t.Errorf("Expected apply_mode rejected, got %s", resp.ApplyMode)
	}
	if len(resp.FailedChanges) == 0 || !strings.Contains(resp.FailedChanges[0], "transition not allowed") {
		t.Errorf("Expected driver refusal in failed changes, got %v", resp.FailedChanges)
	}
}

func TestService_State(t *testing.T) {
	h := newHarness()
	h.driver.latest = WorkflowStatusRunning

	state, err := h.svc.State(context.Background())
	if err != nil {
		t.Fatalf("State returned error: %v", err)
	}
	if state.Kernel != "unified" {
		t.Errorf("Expected kernel unified, got %q", state.Kernel)
	}
	if state.Runtime.Name != "native" || state.Runtime.Status != "healthy" {
		t.Errorf("Unexpected runtime info %+v", state.Runtime)
	}
	if state.Provider.Name != "ollama" || state.Provider.Model != "llama3.1-8b" {
		t.Errorf("Unexpected provider info %+v", state.Provider)
	}
	if state.EmbeddingModel != "nomic-embed-text" {
		t.Errorf("Expected embedding_model nomic-embed-text, got %q", state.EmbeddingModel)
	}
	if state.WorkflowStatus != WorkflowStatusRunning {
		t.Errorf("Expected workflow_status running, got %s", state.WorkflowStatus)
	}
	if state.ActiveOperations != 0 {
		t.Errorf("Expected 0 active operations, got %d", state.ActiveOperations)
	}
	if state.Health["backend"].Status != "healthy" {
		t.Errorf("Expected backend healthy, got %+v", state.Health)
	}
}

func TestService_StateConfigUnavailable(t *testing.T) {
	h := newHarness()
	h.config.failGet = true

	_, err := h.svc.State(context.Background())
	if err == nil {
		t.Fatal("Expected error when configuration store is down")
	}
	if !IsUnavailable(err) {
		t.Errorf("Expected unavailable error, got %v", err)
	}
}

func TestService_PlanAuditEntries(t *testing.T) {
	h := newHarness()

	valid := planOne(t, h, ResourceChange{
		ResourceType: ResourceIntentMode,
		ResourceID:   "intent_mode",
		Action:       ActionUpdate,
		NewValue:     "expert",
	})
	entry := h.audit.last()
	if entry == nil {
		t.Fatal("Expected an audit entry")
	}
	if entry.OperationType != OperationPlan || entry.Result != AuditResultSuccess {
		t.Errorf("Expected plan success entry, got %+v", entry)
	}
	if entry.ResourceID != valid.ExecutionTicket {
		t.Errorf("Expected entry keyed by ticket, got %q", entry.ResourceID)
	}

	planOne(t, h, ResourceChange{
		ResourceType: ResourceRuntime,
		ResourceID:   "runtime",
		Action:       ActionUpdate,
		NewValue:     "remote",
	})
	entry = h.audit.last()
	if entry == nil || entry.Result != AuditResultRejected {
		t.Errorf("Expected rejected audit entry for invalid plan, got %+v", entry)
	}
}
