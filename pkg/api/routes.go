package api

import (
	"github.com/gin-gonic/gin"

	"github.com/openswitchboard/switchboard/pkg/controlplane"
	"github.com/openswitchboard/switchboard/pkg/telemetry"
)

// registerRoutes wires the endpoint set onto the router. Health and
// metrics stay unversioned; everything else lives under /v1.
func registerRoutes(engine *gin.Engine, h *Handlers, metrics *telemetry.Metrics) {
	engine.GET("/healthz", h.Healthz)
	engine.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := engine.Group("/v1")
	{
		v1.POST("/plan", h.Plan)
		v1.POST("/apply", h.Apply)
		v1.GET("/state", h.State)
		v1.GET("/audit", h.Audit)

		v1.POST("/operations", h.Operations)
		v1.POST("/operations/pause", h.WorkflowOperation(controlplane.OperationPause))
		v1.POST("/operations/resume", h.WorkflowOperation(controlplane.OperationResume))
		v1.POST("/operations/cancel", h.WorkflowOperation(controlplane.OperationCancel))
		v1.POST("/operations/retry", h.WorkflowOperation(controlplane.OperationRetry))
		v1.POST("/operations/dry-run", h.WorkflowOperation(controlplane.OperationDryRun))

		v1.GET("/workflows/:id", h.WorkflowGet)
	}
}
