package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/openswitchboard/switchboard/pkg/compat"
	"github.com/openswitchboard/switchboard/pkg/telemetry"
)

// Settings is the full deployment configuration for a switchboard daemon,
// decoded from one or more CUE sources. Fields left out of the sources keep
// the values from DefaultSettings.
type Settings struct {
	// Environment is the deployment environment. It feeds both telemetry
	// resource attributes and policy evaluation context.
	Environment string `json:"environment" validate:"omitempty,oneof=development staging production"`

	// Server configures the HTTP API listener.
	Server ServerSettings `json:"server"`

	// Store configures where managed configuration values live.
	Store StoreSettings `json:"store"`

	// Audit configures audit log retention.
	Audit AuditSettings `json:"audit"`

	// Runtime configures the managed service inventory.
	Runtime RuntimeSettings `json:"runtime"`

	// Telemetry configures logging, tracing and metrics.
	Telemetry TelemetrySettings `json:"telemetry"`

	// Policy configures the change review gate.
	Policy PolicySettings `json:"policy"`

	// Matrix overrides dimensions of the built-in compatibility table.
	// Dimensions left empty keep the defaults.
	Matrix *compat.Matrix `json:"matrix,omitempty"`

	// Defaults are the managed configuration values used to seed an empty
	// store on first start.
	Defaults map[string]interface{} `json:"defaults,omitempty"`
}

// ServerSettings configures the HTTP API listener.
type ServerSettings struct {
	// ListenAddr is the host:port the API binds to.
	ListenAddr string `json:"listen_addr" validate:"required"`

	// Mode is the gin run mode (debug, release, test).
	Mode string `json:"mode" validate:"omitempty,oneof=debug release test"`

	// ReadTimeout bounds how long reading a request may take.
	ReadTimeout Duration `json:"read_timeout"`

	// WriteTimeout bounds how long writing a response may take.
	WriteTimeout Duration `json:"write_timeout"`

	// ShutdownTimeout bounds graceful shutdown on SIGTERM.
	ShutdownTimeout Duration `json:"shutdown_timeout"`

	// TrustedProxies lists proxy addresses the server trusts for client IP
	// derivation. Empty disables proxy trust entirely.
	TrustedProxies []string `json:"trusted_proxies,omitempty"`
}

// StoreSettings configures the managed configuration store.
type StoreSettings struct {
	// Path is the file the store persists managed values to.
	Path string `json:"path" validate:"required"`

	// Watch reloads the store when the file changes on disk outside the
	// daemon, so out-of-band edits show up in state snapshots.
	Watch bool `json:"watch"`
}

// AuditSettings configures audit log retention.
type AuditSettings struct {
	// MaxEntries caps how many entries are retained in memory. Zero means
	// the built-in default.
	MaxEntries int `json:"max_entries" validate:"min=0"`

	// RetentionDays is how many days of entries maintenance sweeps keep.
	// Zero disables age-based eviction.
	RetentionDays int `json:"retention_days" validate:"min=0"`
}

// RuntimeSettings configures the managed service inventory.
type RuntimeSettings struct {
	// Services lists the services the control plane supervises. Restart
	// requirements and health snapshots are scoped to these names.
	Services []string `json:"services" validate:"omitempty,dive,required"`
}

// TelemetrySettings configures observability. It is the file-facing shape;
// TelemetryConfig converts it to the telemetry package's configuration.
type TelemetrySettings struct {
	// ServiceName overrides the service name reported in telemetry.
	ServiceName string `json:"service_name,omitempty"`

	// Logging configures structured logging.
	Logging LoggingSettings `json:"logging"`

	// Tracing configures distributed tracing.
	Tracing TracingSettings `json:"tracing"`

	// Metrics configures Prometheus metrics.
	Metrics MetricsSettings `json:"metrics"`
}

// LoggingSettings configures structured logging.
type LoggingSettings struct {
	// Level is the minimum log level (trace, debug, info, warn, error, fatal).
	Level string `json:"level" validate:"omitempty,oneof=trace debug info warn error fatal"`

	// Format is the log format (console, json).
	Format string `json:"format" validate:"omitempty,oneof=console json"`

	// Output is where logs go (stdout, stderr, or a file path).
	Output string `json:"output,omitempty"`

	// Caller adds file:line caller information to log lines.
	Caller bool `json:"caller"`
}

// TracingSettings configures distributed tracing.
type TracingSettings struct {
	// Enabled turns tracing on.
	Enabled bool `json:"enabled"`

	// Exporter is the span exporter (otlp, stdout, none).
	Exporter string `json:"exporter" validate:"omitempty,oneof=otlp stdout none"`

	// Endpoint is the OTLP collector endpoint, e.g. "localhost:4317".
	Endpoint string `json:"endpoint,omitempty"`

	// SamplingRate is the trace sampling ratio between 0 and 1.
	SamplingRate float64 `json:"sampling_rate" validate:"gte=0,lte=1"`

	// Insecure disables TLS on the exporter connection.
	Insecure bool `json:"insecure"`
}

// MetricsSettings configures Prometheus metrics.
type MetricsSettings struct {
	// Enabled turns metric collection on.
	Enabled bool `json:"enabled"`

	// Namespace is the metric name prefix.
	Namespace string `json:"namespace,omitempty"`
}

// PolicySettings configures the change review gate.
type PolicySettings struct {
	// Enabled turns policy review of plans on.
	Enabled bool `json:"enabled"`

	// Paths lists files or directories of Rego policies loaded alongside
	// the built-ins.
	Paths []string `json:"paths,omitempty"`

	// Watch reloads policies when files under Paths change.
	Watch bool `json:"watch"`
}

// ParsedSettings is the outcome of parsing CUE sources. Parse reports
// problems here instead of failing, so callers can surface every error from
// a bad configuration at once.
type ParsedSettings struct {
	// Settings is the decoded configuration. Nil when the sources could not
	// be decoded at all.
	Settings *Settings `json:"settings,omitempty"`

	// SourceFiles are the CUE files that were parsed.
	SourceFiles []string `json:"source_files"`

	// ParsedAt is when the configuration was parsed.
	ParsedAt time.Time `json:"parsed_at"`

	// Errors lists validation errors found during parsing.
	Errors []ValidationError `json:"errors,omitempty"`
}

// Valid reports whether parsing produced usable settings with no errors.
func (ps *ParsedSettings) Valid() bool {
	return ps.Settings != nil && len(ps.Errors) == 0
}

// Err collapses the error list into a single error, nil when the settings
// are valid.
func (ps *ParsedSettings) Err() error {
	if ps.Valid() {
		return nil
	}
	if len(ps.Errors) == 0 {
		return fmt.Errorf("configuration could not be decoded")
	}
	msgs := make([]string, len(ps.Errors))
	for i, e := range ps.Errors {
		msgs[i] = e.String()
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// ValidationError represents a validation error with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the configuration path to the error (e.g. "server.listen_addr").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`

	// Severity is the error severity (error, warning, info).
	Severity string `json:"severity" validate:"required,oneof=error warning info"`
}

// String renders the error with whatever location information it carries.
func (e ValidationError) String() string {
	var b strings.Builder
	if e.File != "" {
		fmt.Fprintf(&b, "%s:%d:%d: ", e.File, e.Line, e.Column)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, "%s: ", e.Path)
	}
	b.WriteString(e.Message)
	return b.String()
}

// Duration is a time.Duration that decodes from CUE and JSON strings like
// "30s" as well as plain nanosecond numbers.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String returns the duration in time.Duration notation.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalJSON encodes the duration as a string like "30s".
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON decodes either a duration string or a nanosecond number.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		*d = Duration(time.Duration(v))
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration type %T", raw)
	}
	return nil
}

// DefaultSettings returns the configuration a daemon runs with when the
// sources leave everything out.
func DefaultSettings() *Settings {
	return &Settings{
		Environment: "development",
		Server: ServerSettings{
			ListenAddr:      ":8080",
			Mode:            "release",
			ReadTimeout:     Duration(15 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Store: StoreSettings{
			Path:  "switchboard.yaml",
			Watch: true,
		},
		Audit: AuditSettings{
			MaxEntries:    10000,
			RetentionDays: 30,
		},
		Runtime: RuntimeSettings{
			Services: []string{"backend"},
		},
		Telemetry: TelemetrySettings{
			ServiceName: "switchboard",
			Logging: LoggingSettings{
				Level:  "info",
				Format: "console",
				Output: "stdout",
			},
			Tracing: TracingSettings{
				Enabled:      false,
				Exporter:     "stdout",
				SamplingRate: 1.0,
				Insecure:     true,
			},
			Metrics: MetricsSettings{
				Enabled:   true,
				Namespace: "switchboard",
			},
		},
		Policy: PolicySettings{
			Enabled: true,
		},
		Defaults: map[string]interface{}{
			"decision_strategy": "balanced",
			"intent_mode":       "simple",
			"kernel":            "unified",
			"runtime":           "native",
			"provider":          "ollama",
			"model":             "llama3.1-8b",
			"embedding_model":   "nomic-embed-text",
		},
	}
}

// EffectiveMatrix returns the compatibility table the daemon should run
// with: the built-in table with any configured overrides applied.
func (s *Settings) EffectiveMatrix() *compat.Matrix {
	return compat.DefaultMatrix().Merge(s.Matrix)
}

// TelemetryConfig converts the file-facing telemetry settings into the
// telemetry package's configuration.
func (s *Settings) TelemetryConfig() *telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.Environment = s.Environment
	if s.Telemetry.ServiceName != "" {
		cfg.ServiceName = s.Telemetry.ServiceName
	}
	if s.Telemetry.Logging.Level != "" {
		cfg.Logging.Level = s.Telemetry.Logging.Level
	}
	if s.Telemetry.Logging.Format != "" {
		cfg.Logging.Format = s.Telemetry.Logging.Format
	}
	if s.Telemetry.Logging.Output != "" {
		cfg.Logging.Output = s.Telemetry.Logging.Output
	}
	cfg.Logging.EnableCaller = s.Telemetry.Logging.Caller
	cfg.Tracing.Enabled = s.Telemetry.Tracing.Enabled
	if s.Telemetry.Tracing.Exporter != "" {
		cfg.Tracing.Exporter = s.Telemetry.Tracing.Exporter
	}
	cfg.Tracing.Endpoint = s.Telemetry.Tracing.Endpoint
	cfg.Tracing.SamplingRate = s.Telemetry.Tracing.SamplingRate
	cfg.Tracing.Insecure = s.Telemetry.Tracing.Insecure
	cfg.Metrics.Enabled = s.Telemetry.Metrics.Enabled
	if s.Telemetry.Metrics.Namespace != "" {
		cfg.Metrics.Namespace = s.Telemetry.Metrics.Namespace
	}
	return cfg
}
