package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openswitchboard/switchboard/pkg/audit"
	"github.com/openswitchboard/switchboard/pkg/controlplane"
	"github.com/openswitchboard/switchboard/pkg/runtime"
	"github.com/openswitchboard/switchboard/pkg/workflow"
)

// memConfig is a map-backed ConfigManager for handler tests.
type memConfig struct {
	mu     sync.Mutex
	values map[string]interface{}
}

func newMemConfig(values map[string]interface{}) *memConfig {
	cp := make(map[string]interface{}, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return &memConfig{values: cp}
}

func (m *memConfig) Config(ctx context.Context) (map[string]interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]interface{}, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out, nil
}

func (m *memConfig) UpdateConfig(ctx context.Context, updates map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range updates {
		if v == nil {
			delete(m.values, k)
			continue
		}
		m.values[k] = v
	}
	return nil
}

func (m *memConfig) get(key string) interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key]
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

type testServer struct {
	handler   http.Handler
	config    *memConfig
	workflows *workflow.Service
	trail     *audit.Trail
	handlers  *Handlers
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := newMemConfig(baseConfig())
	trail := audit.NewTrail(100, zerolog.Nop())
	workflows := workflow.NewService(trail, zerolog.Nop())
	controller := runtime.NewStaticController([]string{"backend"}, zerolog.Nop())
	service := controlplane.NewService(cfg, controller, trail, workflows, nil, zerolog.Nop())
	handlers := NewHandlers(service, workflows, trail, zerolog.Nop())

	srv, err := NewServer(Config{ListenAddr: ":0", Mode: "test"}, handlers, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewServer returned error: %v", err)
	}
	return &testServer{
		handler:   srv.Handler(),
		config:    cfg,
		workflows: workflows,
		trail:     trail,
		handlers:  handlers,
	}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
}

func TestServer_PlanEndpoint(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/v1/plan",
		`{"changes":[{"resource_type":"intent_mode","resource_id":"intent_mode","action":"update","new_value":"expert"}],"triggered_by":"test"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp controlplane.PlanResponse
	decodeJSON(t, w, &resp)
	if !resp.Valid {
		t.Errorf("Expected valid plan, got reason %s", resp.ReasonCode)
	}
	if resp.ExecutionTicket == "" {
		t.Error("Expected an execution ticket")
	}
}

func TestServer_PlanEndpointInvalidPlanIsOK(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/v1/plan",
		`{"changes":[{"resource_type":"intent_mode","resource_id":"intent_mode","action":"update","new_value":"telepathy"}]}`)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 for a rejected plan, got %d", w.Code)
	}
	var resp controlplane.PlanResponse
	decodeJSON(t, w, &resp)
	if resp.Valid {
		t.Error("Expected the plan to be rejected")
	}
}

func TestServer_PlanEndpointBadRequests(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "missing changes", body: `{"dry_run":true}`},
		{name: "malformed json", body: `{"changes":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, "/v1/plan", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestServer_ApplyEndpoint(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/v1/plan",
		`{"changes":[{"resource_type":"intent_mode","resource_id":"intent_mode","action":"update","new_value":"expert"}]}`)
	var plan controlplane.PlanResponse
	decodeJSON(t, w, &plan)

	w = ts.do(t, http.MethodPost, "/v1/apply",
		`{"execution_ticket":"`+plan.ExecutionTicket+`","triggered_by":"test"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp controlplane.ApplyResponse
	decodeJSON(t, w, &resp)
	if resp.ApplyMode != controlplane.ApplyModeHotSwap {
		t.Errorf("Expected apply_mode hot_swap, got %s", resp.ApplyMode)
	}
	if got := ts.config.get("intent_mode"); got != "expert" {
		t.Errorf("Expected intent_mode expert in configuration, got %v", got)
	}
}

func TestServer_ApplyUnknownTicket(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/v1/apply",
		`{"execution_ticket":"`+uuid.NewString()+`"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 for a rejected apply, got %d", w.Code)
	}
	var resp controlplane.ApplyResponse
	decodeJSON(t, w, &resp)
	if resp.ApplyMode != controlplane.ApplyModeRejected {
		t.Errorf("Expected apply_mode rejected, got %s", resp.ApplyMode)
	}
	if !strings.Contains(resp.Message, "Invalid or expired execution ticket") {
		t.Errorf("Expected invalid ticket message, got %q", resp.Message)
	}
}

func TestServer_ApplyMissingTicket(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/v1/apply", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without execution_ticket, got %d", w.Code)
	}
}

func TestServer_StateEndpoint(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/v1/state", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var body map[string]json.RawMessage
	decodeJSON(t, w, &body)
	raw, ok := body["system_state"]
	if !ok {
		t.Fatalf("Expected system_state in body, got %s", w.Body.String())
	}
	var state controlplane.SystemState
	if err := json.Unmarshal(raw, &state); err != nil {
		t.Fatalf("Failed to decode system state: %v", err)
	}
	if state.IntentMode != "simple" {
		t.Errorf("Expected intent_mode simple, got %s", state.IntentMode)
	}
	if state.Health["backend"].Status != runtime.StatusRunning {
		t.Errorf("Expected backend running, got %+v", state.Health)
	}
}

func TestServer_AuditEndpoint(t *testing.T) {
	ts := newTestServer(t)

	for i := 0; i < 3; i++ {
		ts.do(t, http.MethodPost, "/v1/plan",
			`{"changes":[{"resource_type":"intent_mode","resource_id":"intent_mode","action":"update","new_value":"expert"}],"dry_run":true}`)
	}

	w := ts.do(t, http.MethodGet, "/v1/audit?page_size=2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var page AuditPage
	decodeJSON(t, w, &page)
	if page.TotalCount != 3 {
		t.Errorf("Expected total_count 3, got %d", page.TotalCount)
	}
	if len(page.Entries) != 2 {
		t.Errorf("Expected 2 entries on page 1, got %d", len(page.Entries))
	}
	if page.Page != 1 || page.PageSize != 2 {
		t.Errorf("Expected page 1 size 2, got page %d size %d", page.Page, page.PageSize)
	}

	w = ts.do(t, http.MethodGet, "/v1/audit?page_size=2&page=2", "")
	page = AuditPage{}
	decodeJSON(t, w, &page)
	if len(page.Entries) != 1 {
		t.Errorf("Expected 1 entry on page 2, got %d", len(page.Entries))
	}

	// Out-of-range pages are empty, not errors.
	w = ts.do(t, http.MethodGet, "/v1/audit?page=50", "")
	page = AuditPage{}
	decodeJSON(t, w, &page)
	if len(page.Entries) != 0 {
		t.Errorf("Expected empty page, got %d entries", len(page.Entries))
	}
}

func TestServer_AuditEndpointClampsPageSize(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/v1/audit?page_size=500&page=0", "")
	var page AuditPage
	decodeJSON(t, w, &page)
	if page.PageSize != maxPageSize {
		t.Errorf("Expected page_size clamped to %d, got %d", maxPageSize, page.PageSize)
	}
	if page.Page != 1 {
		t.Errorf("Expected page clamped to 1, got %d", page.Page)
	}

	w = ts.do(t, http.MethodGet, "/v1/audit?page_size=0", "")
	page = AuditPage{}
	decodeJSON(t, w, &page)
	if page.PageSize != 1 {
		t.Errorf("Expected page_size raised to 1, got %d", page.PageSize)
	}
}

func TestServer_AuditEndpointFilters(t *testing.T) {
	ts := newTestServer(t)

	ts.do(t, http.MethodPost, "/v1/plan",
		`{"changes":[{"resource_type":"intent_mode","resource_id":"intent_mode","action":"update","new_value":"expert"}],"dry_run":true,"triggered_by":"alice"}`)
	id := uuid.NewString()
	ts.do(t, http.MethodPost, "/v1/operations/dry-run",
		`{"workflow_id":"`+id+`","triggered_by":"bob"}`)

	w := ts.do(t, http.MethodGet, "/v1/audit?operation_type=plan", "")
	var page AuditPage
	decodeJSON(t, w, &page)
	if page.TotalCount != 1 {
		t.Fatalf("Expected 1 plan entry, got %d", page.TotalCount)
	}
	if page.Entries[0].TriggeredBy != "alice" {
		t.Errorf("Expected alice's entry, got %s", page.Entries[0].TriggeredBy)
	}

	w = ts.do(t, http.MethodGet, "/v1/audit?triggered_by=bob", "")
	page = AuditPage{}
	decodeJSON(t, w, &page)
	if page.TotalCount != 1 {
		t.Errorf("Expected 1 entry for bob, got %d", page.TotalCount)
	}
}

func TestServer_WorkflowOperationRoutes(t *testing.T) {
	ts := newTestServer(t)

	id := uuid.NewString()
	if _, err := ts.workflows.UpdateStatus(context.Background(), id, controlplane.WorkflowStatusRunning, "test"); err != nil {
		t.Fatalf("UpdateStatus returned error: %v", err)
	}

	w := ts.do(t, http.MethodPost, "/v1/operations/pause",
		`{"workflow_id":"`+id+`","triggered_by":"test"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp controlplane.WorkflowOperationResponse
	decodeJSON(t, w, &resp)
	if resp.Status != controlplane.WorkflowStatusPaused {
		t.Errorf("Expected paused, got %s", resp.Status)
	}
	if resp.Operation != controlplane.OperationPause {
		t.Errorf("Expected operation pause, got %s", resp.Operation)
	}
}

func TestServer_WorkflowOperationForbiddenIsOK(t *testing.T) {
	ts := newTestServer(t)

	// Pausing an idle workflow is refused, but refusals are responses.
	w := ts.do(t, http.MethodPost, "/v1/operations/pause",
		`{"workflow_id":"`+uuid.NewString()+`"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var resp controlplane.WorkflowOperationResponse
	decodeJSON(t, w, &resp)
	if resp.ReasonCode != controlplane.ReasonForbiddenTransition {
		t.Errorf("Expected forbidden_transition, got %s", resp.ReasonCode)
	}
}

func TestServer_WorkflowDryRunRoute(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/v1/operations/dry-run",
		`{"workflow_id":"`+uuid.NewString()+`"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var resp controlplane.WorkflowOperationResponse
	decodeJSON(t, w, &resp)
	if resp.Operation != controlplane.OperationDryRun {
		t.Errorf("Expected operation dry_run, got %s", resp.Operation)
	}
}

func TestServer_OperationsGeneric(t *testing.T) {
	ts := newTestServer(t)

	id := uuid.NewString()
	w := ts.do(t, http.MethodPost, "/v1/operations",
		`{"workflow_id":"`+id+`","operation":"dry_run"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestServer_OperationsGenericForbiddenIs400(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/v1/operations",
		`{"workflow_id":"`+uuid.NewString()+`","operation":"pause"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for a forbidden transition, got %d", w.Code)
	}
	var body map[string]json.RawMessage
	decodeJSON(t, w, &body)
	if _, ok := body["error"]; !ok {
		t.Error("Expected an error body")
	}
	if _, ok := body["response"]; !ok {
		t.Error("Expected the refusal response to ride along")
	}
}

func TestServer_OperationsGenericMissingOperation(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/v1/operations",
		`{"workflow_id":"`+uuid.NewString()+`"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without operation, got %d", w.Code)
	}
}

func TestServer_WorkflowGet(t *testing.T) {
	ts := newTestServer(t)

	id := uuid.NewString()
	w := ts.do(t, http.MethodGet, "/v1/workflows/"+id, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var wf controlplane.Workflow
	decodeJSON(t, w, &wf)
	if wf.ID != id {
		t.Errorf("Expected workflow %s, got %s", id, wf.ID)
	}
	if wf.Status != controlplane.WorkflowStatusIdle {
		t.Errorf("Expected idle, got %s", wf.Status)
	}
}

func TestServer_WorkflowGetRejectsGarbageID(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/v1/workflows/not-a-uuid", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestServer_Healthz(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	ts.handlers.WithHealthChecker(func(ctx context.Context) error {
		return errors.New("store file missing")
	})
	w = ts.do(t, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 with a failing checker, got %d", w.Code)
	}
}
