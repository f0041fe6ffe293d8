package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openswitchboard/switchboard/pkg/controlplane"
	"github.com/openswitchboard/switchboard/pkg/workflow"
)

// Audit pagination bounds.
const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// HealthChecker probes a collaborator for the health endpoint.
type HealthChecker func(ctx context.Context) error

// Handlers holds the endpoint implementations over the control plane
// services.
type Handlers struct {
	service   *controlplane.Service
	workflows *workflow.Service
	audit     controlplane.AuditLog
	health    HealthChecker
	logger    zerolog.Logger
}

// NewHandlers creates the endpoint set.
func NewHandlers(service *controlplane.Service, workflows *workflow.Service, audit controlplane.AuditLog, logger zerolog.Logger) *Handlers {
	return &Handlers{
		service:   service,
		workflows: workflows,
		audit:     audit,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// WithHealthChecker attaches a collaborator probe to the health endpoint.
// Returns the handlers for chaining.
func (h *Handlers) WithHealthChecker(check HealthChecker) *Handlers {
	h.health = check
	return h
}

// Plan handles POST /v1/plan. Invalid plans are 200 responses; only
// malformed bodies and collaborator faults map to error statuses.
func (h *Handlers) Plan(c *gin.Context) {
	var req controlplane.PlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, controlplane.NewValidationError("invalid plan request", err).
			WithCode(controlplane.ErrCodeValidation))
		return
	}

	resp, err := h.service.PlanChanges(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Apply handles POST /v1/apply. Logical refusals (unknown ticket, missing
// restart confirmation) are 200 responses.
func (h *Handlers) Apply(c *gin.Context) {
	var req controlplane.ApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, controlplane.NewValidationError("invalid apply request", err).
			WithCode(controlplane.ErrCodeValidation))
		return
	}

	resp, err := h.service.ApplyChanges(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// State handles GET /v1/state.
func (h *Handlers) State(c *gin.Context) {
	state, err := h.service.State(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"system_state": state})
}

// AuditPage is the paginated audit response.
type AuditPage struct {
	Entries    []controlplane.AuditEntry `json:"entries"`
	TotalCount int                       `json:"total_count"`
	Page       int                       `json:"page"`
	PageSize   int                       `json:"page_size"`
}

// Audit handles GET /v1/audit. Entries are newest first; out-of-range
// pages return an empty page, not an error.
func (h *Handlers) Audit(c *gin.Context) {
	filter := controlplane.AuditFilter{
		OperationType: controlplane.OperationType(c.Query("operation_type")),
		ResourceType:  controlplane.ResourceType(c.Query("resource_type")),
		TriggeredBy:   c.Query("triggered_by"),
		Result:        controlplane.AuditResult(c.Query("result")),
	}

	page := queryInt(c, "page", 1)
	if page < 1 {
		page = 1
	}
	pageSize := queryInt(c, "page_size", defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	matched := h.audit.Query(filter)
	total := len(matched)

	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	entries := matched[start:end]
	if entries == nil {
		entries = []controlplane.AuditEntry{}
	}

	c.JSON(http.StatusOK, AuditPage{
		Entries:    entries,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	})
}

// WorkflowOperation builds the handler for one operation-specific route.
// Refusals, forbidden transitions included, are 200 responses.
func (h *Handlers) WorkflowOperation(op controlplane.OperationType) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req controlplane.WorkflowOperationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			h.writeError(c, controlplane.NewValidationError("invalid workflow operation request", err).
				WithCode(controlplane.ErrCodeValidation))
			return
		}
		req.Operation = op

		resp, err := h.workflows.Execute(c.Request.Context(), req)
		if err != nil {
			h.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// Operations handles POST /v1/operations, the generic dispatcher. Unlike
// the operation-specific routes, a forbidden transition maps to 400; the
// refusal response rides along so callers can render it.
func (h *Handlers) Operations(c *gin.Context) {
	var req controlplane.WorkflowOperationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, controlplane.NewValidationError("invalid operation request", err).
			WithCode(controlplane.ErrCodeValidation))
		return
	}
	if req.Operation == "" {
		h.writeError(c, controlplane.NewValidationError("operation is required", nil).
			WithCode(controlplane.ErrCodeValidation))
		return
	}

	resp, err := h.workflows.ExecuteStrict(c.Request.Context(), req)
	if err != nil {
		var te *workflow.TransitionError
		if errors.As(err, &te) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{
					"class":   string(controlplane.ErrorClassValidation),
					"message": te.Error(),
					"code":    controlplane.ErrCodeValidation,
				},
				"response": resp,
			})
			return
		}
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// WorkflowGet handles GET /v1/workflows/:id. The ID must be a UUID;
// unknown IDs return the lazily created idle record.
func (h *Handlers) WorkflowGet(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		h.writeError(c, controlplane.NewValidationError("workflow id must be a UUID", err).
			WithCode(controlplane.ErrCodeValidation).
			WithResource(id))
		return
	}
	c.JSON(http.StatusOK, h.workflows.Get(id))
}

// Healthz handles GET /healthz. With a health checker attached, a probe
// failure reports 503.
func (h *Handlers) Healthz(c *gin.Context) {
	if h.health != nil {
		if err := h.health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"detail": err.Error(),
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// writeError renders a classified error. Validation maps to 400, conflict
// to 409, unavailable to 503, everything else to 500.
func (h *Handlers) writeError(c *gin.Context, err error) {
	var ce *controlplane.ControlError
	if !errors.As(err, &ce) {
		ce = controlplane.NewInternalError("unexpected error", err).
			WithCode(controlplane.ErrCodeInternal)
	}

	status := http.StatusInternalServerError
	switch ce.Class {
	case controlplane.ErrorClassValidation:
		status = http.StatusBadRequest
	case controlplane.ErrorClassConflict:
		status = http.StatusConflict
	case controlplane.ErrorClassUnavailable:
		status = http.StatusServiceUnavailable
	}
	switch ce.Code {
	case controlplane.ErrCodeTicketNotFound, controlplane.ErrCodeWorkflowNotFound:
		status = http.StatusNotFound
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": ce})
}

// queryInt parses an integer query parameter, falling back to the default
// on absence or garbage.
func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
