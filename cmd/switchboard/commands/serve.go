package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/openswitchboard/switchboard/pkg/api"
	"github.com/openswitchboard/switchboard/pkg/audit"
	"github.com/openswitchboard/switchboard/pkg/compat"
	"github.com/openswitchboard/switchboard/pkg/config"
	"github.com/openswitchboard/switchboard/pkg/controlplane"
	"github.com/openswitchboard/switchboard/pkg/policy"
	"github.com/openswitchboard/switchboard/pkg/runtime"
	"github.com/openswitchboard/switchboard/pkg/stores"
	"github.com/openswitchboard/switchboard/pkg/telemetry"
	"github.com/openswitchboard/switchboard/pkg/workflow"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the control plane server",
		Long: `Start the control plane HTTP server.

Settings come from the --config sources (CUE files or directories),
environment overrides, and built-in defaults, in that order of
precedence. The server exposes plan/apply, system state, the audit
trail and workflow operations under /v1, plus /healthz and /metrics.`,
		Example: `  # Serve with built-in defaults
  switchboard serve

  # Serve with a settings file
  switchboard serve --config settings.cue

  # Serve with a settings directory and a policy bundle
  switchboard serve --config ./conf`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
	return cmd
}

func runServe(ctx context.Context) error {
	parser := config.NewParser()
	settings, err := parser.Load(ctx, configSources...)
	if err != nil {
		return err
	}

	telCfg := settings.TelemetryConfig()
	if err := telCfg.Validate(); err != nil {
		return fmt.Errorf("invalid telemetry settings: %w", err)
	}

	appLogger, err := telemetry.NewLogger(telCfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	logger := appLogger.Zerolog()

	metrics, err := telemetry.NewMetrics(telCfg.Metrics)
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}
	tracer, err := telemetry.NewTracer(telCfg.Tracing, telCfg.ServiceName, telCfg.ServiceVersion, telCfg.Environment)
	if err != nil {
		return fmt.Errorf("failed to create tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Tracer shutdown failed")
		}
	}()

	store, err := stores.NewFileStore(stores.Config{
		Path:  settings.Store.Path,
		Watch: settings.Store.Watch,
		Seed:  settings.Defaults,
	}, logger)
	if err != nil {
		return err
	}
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer store.Close()

	controller := runtime.NewStaticController(settings.Runtime.Services, logger)
	trail := audit.NewTrail(settings.Audit.MaxEntries, logger)
	workflows := workflow.NewService(trail, logger).WithMetrics(metrics)
	validator := compat.NewValidator(settings.EffectiveMatrix())

	service := controlplane.NewService(store, controller, trail, workflows, validator, logger).
		WithMetrics(metrics).
		WithTracer(tracer)

	if settings.Policy.Enabled {
		engine, err := policy.NewEngine(logger)
		if err != nil {
			return fmt.Errorf("failed to create policy engine: %w", err)
		}
		engine.WithEnvironment(settings.Environment).WithMetrics(metrics)
		if len(settings.Policy.Paths) > 0 {
			if err := engine.LoadPolicies(ctx, settings.Policy.Paths); err != nil {
				return err
			}
			if settings.Policy.Watch {
				loader := policy.NewLoader(logger)
				if err := loader.Watch(ctx, settings.Policy.Paths, engine.Replace); err != nil {
					return fmt.Errorf("failed to watch policy paths: %w", err)
				}
				defer loader.Close()
			}
		}
		service.WithPolicyGate(engine)
	}

	if settings.Audit.RetentionDays > 0 {
		go retentionSweep(ctx, trail, settings.Audit.RetentionDays, logger)
	}

	handlers := api.NewHandlers(service, workflows, trail, logger).
		WithHealthChecker(store.HealthCheck)

	srv, err := api.NewServer(api.Config{
		ListenAddr:      settings.Server.ListenAddr,
		Mode:            settings.Server.Mode,
		ReadTimeout:     settings.Server.ReadTimeout.Std(),
		WriteTimeout:    settings.Server.WriteTimeout.Std(),
		ShutdownTimeout: settings.Server.ShutdownTimeout.Std(),
		TrustedProxies:  settings.Server.TrustedProxies,
	}, handlers, metrics, logger)
	if err != nil {
		return err
	}

	logger.Info().
		Str("listen_addr", settings.Server.ListenAddr).
		Str("environment", settings.Environment).
		Str("store_path", settings.Store.Path).
		Bool("policy_enabled", settings.Policy.Enabled).
		Msg("Control plane starting")

	return srv.Run(ctx)
}

// retentionSweep drops audit entries past the retention window once an
// hour until the context ends.
func retentionSweep(ctx context.Context, trail *audit.Trail, days int, logger zerolog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := trail.ClearOlderThan(days); removed > 0 {
				logger.Info().
					Int("removed", removed).
					Int("retention_days", days).
					Msg("Audit retention sweep")
			}
		}
	}
}
