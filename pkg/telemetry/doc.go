// Package telemetry provides observability instrumentation for switchboard.
//
// The telemetry package integrates structured logging (zerolog), distributed
// tracing (OpenTelemetry) and metrics (Prometheus) into a single bundle that
// is initialized once at startup and handed to the components that need it.
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceName = "switchboard"
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
// # Structured Logging
//
// The logger provides component-specific logging with control-plane field
// helpers:
//
//	logger := tel.Logger.NewComponentLogger("controlplane")
//	logger = logger.WithTicket(ticket).WithResource("provider", "openai")
//	logger.Info("Plan staged")
//	logger.WithError(err).Error("Apply failed")
//
// Log levels: trace, debug, info, warn, error, fatal
//
// # Distributed Tracing
//
// Tracing covers the plan/apply pipeline and workflow operations:
//
//	ctx, span := tel.Tracer.StartPlanSpan(ctx, ticket, len(changes), dryRun)
//	defer span.End()
//
//	if err != nil {
//	    telemetry.RecordError(span, err)
//	}
//
// Supported exporters: OTLP (production), stdout (development), none.
// Span helpers are safe to call on a nil Tracer, so components can treat
// tracing as strictly optional.
//
// # Metrics
//
// Prometheus metrics track operations, applied changes, workflow
// transitions, policy verdicts and compatibility issues:
//
//	tel.Metrics.RecordOperation("plan", "valid", duration)
//	tel.Metrics.RecordChange("provider", "hot_swap")
//	tel.Metrics.RecordWorkflowOperation("pause", "success")
//
// The metrics registry is exposed through Metrics.Handler, mounted at
// /metrics by the API server. A disabled Metrics instance records nothing
// and every recording method is nil-safe.
package telemetry
