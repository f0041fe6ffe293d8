package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func TestParser_ParseInline_Defaults(t *testing.T) {
	parser := NewParser()

	parsed, err := parser.ParseInline(context.Background(), `environment: "staging"`)
	if err != nil {
		t.Fatalf("ParseInline failed: %v", err)
	}
	if !parsed.Valid() {
		t.Fatalf("Expected valid settings, got errors: %v", parsed.Errors)
	}

	s := parsed.Settings
	if s.Environment != "staging" {
		t.Errorf("Expected environment staging, got %s", s.Environment)
	}
	if s.Server.ListenAddr != ":8080" {
		t.Errorf("Expected default listen addr :8080, got %s", s.Server.ListenAddr)
	}
	if s.Server.ReadTimeout.Std() != 15*time.Second {
		t.Errorf("Expected default read timeout 15s, got %s", s.Server.ReadTimeout)
	}
	if !s.Store.Watch {
		t.Error("Expected store watch to default to true")
	}
	if !s.Policy.Enabled {
		t.Error("Expected policy to default to enabled")
	}
	if s.Audit.MaxEntries != 10000 {
		t.Errorf("Expected default max entries 10000, got %d", s.Audit.MaxEntries)
	}
	if s.Telemetry.Tracing.SamplingRate != 1.0 {
		t.Errorf("Expected default sampling rate 1.0, got %f", s.Telemetry.Tracing.SamplingRate)
	}
	if len(s.Runtime.Services) != 1 || s.Runtime.Services[0] != "backend" {
		t.Errorf("Expected default services [backend], got %v", s.Runtime.Services)
	}
	if s.Defaults["decision_strategy"] != "balanced" {
		t.Errorf("Expected seeded decision_strategy balanced, got %v", s.Defaults["decision_strategy"])
	}
	if s.Defaults["model"] != "llama3.1-8b" {
		t.Errorf("Expected seeded model llama3.1-8b, got %v", s.Defaults["model"])
	}
}

func TestParser_ParseInline_FullDocument(t *testing.T) {
	parser := NewParser()

	content := `
environment: "production"

server: {
	listen_addr:  ":9090"
	mode:         "release"
	read_timeout: "5s"
}

store: {
	path:  "/var/lib/switchboard/switchboard.yaml"
	watch: false
}

audit: {
	max_entries:    50
	retention_days: 0
}

runtime: {
	services: ["backend", "indexer"]
}

telemetry: {
	logging: {
		level:  "debug"
		format: "json"
	}
	tracing: {
		enabled:       true
		exporter:      "otlp"
		endpoint:      "collector:4317"
		sampling_rate: 0.25
		insecure:      false
	}
	metrics: {
		enabled: false
	}
}

policy: {
	enabled: false
	paths: ["/etc/switchboard/policies"]
	watch: true
}

matrix: {
	provider_models: {
		ollama: ["llama3.1-70b"]
	}
}

defaults: {
	model: "llama3.1-70b"
}
`

	parsed, err := parser.ParseInline(context.Background(), content)
	if err != nil {
		t.Fatalf("ParseInline failed: %v", err)
	}
	if !parsed.Valid() {
		t.Fatalf("Expected valid settings, got errors: %v", parsed.Errors)
	}

	s := parsed.Settings
	if s.Server.ListenAddr != ":9090" {
		t.Errorf("Expected listen addr :9090, got %s", s.Server.ListenAddr)
	}
	if s.Server.ReadTimeout.Std() != 5*time.Second {
		t.Errorf("Expected read timeout 5s, got %s", s.Server.ReadTimeout)
	}
	if s.Server.WriteTimeout.Std() != 30*time.Second {
		t.Errorf("Expected write timeout to keep default 30s, got %s", s.Server.WriteTimeout)
	}
	if s.Store.Watch {
		t.Error("Expected explicit store watch false to survive defaulting")
	}
	if s.Audit.MaxEntries != 50 {
		t.Errorf("Expected max entries 50, got %d", s.Audit.MaxEntries)
	}
	if s.Audit.RetentionDays != 0 {
		t.Errorf("Expected explicit retention 0 to survive defaulting, got %d", s.Audit.RetentionDays)
	}
	if len(s.Runtime.Services) != 2 {
		t.Fatalf("Expected 2 services, got %v", s.Runtime.Services)
	}
	if s.Telemetry.Logging.Level != "debug" || s.Telemetry.Logging.Format != "json" {
		t.Errorf("Unexpected logging settings: %+v", s.Telemetry.Logging)
	}
	if !s.Telemetry.Tracing.Enabled || s.Telemetry.Tracing.Endpoint != "collector:4317" {
		t.Errorf("Unexpected tracing settings: %+v", s.Telemetry.Tracing)
	}
	if s.Telemetry.Tracing.SamplingRate != 0.25 {
		t.Errorf("Expected sampling rate 0.25, got %f", s.Telemetry.Tracing.SamplingRate)
	}
	if s.Telemetry.Tracing.Insecure {
		t.Error("Expected explicit insecure false to survive defaulting")
	}
	if s.Telemetry.Metrics.Enabled {
		t.Error("Expected explicit metrics enabled false to survive defaulting")
	}
	if s.Policy.Enabled {
		t.Error("Expected explicit policy enabled false to survive defaulting")
	}
	if !s.Policy.Watch {
		t.Error("Expected policy watch true")
	}
	if s.Matrix == nil || len(s.Matrix.ProviderModels["ollama"]) != 1 {
		t.Errorf("Expected matrix override with one ollama model, got %+v", s.Matrix)
	}

	// A partial defaults block merges with the built-in seeds.
	if s.Defaults["model"] != "llama3.1-70b" {
		t.Errorf("Expected overridden seed model llama3.1-70b, got %v", s.Defaults["model"])
	}
	if s.Defaults["kernel"] != "unified" {
		t.Errorf("Expected merged seed kernel unified, got %v", s.Defaults["kernel"])
	}
}

func TestParser_ParseInline_UnknownField(t *testing.T) {
	parser := NewParser()

	parsed, err := parser.ParseInline(context.Background(), `servre: {listen_addr: ":9090"}`)
	if err != nil {
		t.Fatalf("ParseInline failed: %v", err)
	}
	if parsed.Valid() {
		t.Fatal("Expected unknown top-level field to be rejected")
	}
	if len(parsed.Errors) == 0 {
		t.Fatal("Expected validation errors")
	}
}

func TestParser_ParseInline_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad server mode", `server: {mode: "turbo"}`},
		{"bad environment", `environment: "qa"`},
		{"bad log level", `telemetry: logging: level: "verbose"`},
		{"negative retention", `audit: {retention_days: -1}`},
		{"sampling rate above one", `telemetry: tracing: sampling_rate: 1.5`},
		{"empty store path", `store: {path: ""}`},
		{"empty seed value", `defaults: {kernel: ""}`},
	}

	parser := NewParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := parser.ParseInline(context.Background(), tt.content)
			if err != nil {
				t.Fatalf("ParseInline failed: %v", err)
			}
			if parsed.Valid() {
				t.Fatal("Expected settings to be rejected")
			}
		})
	}
}

func TestParser_ParseInline_SyntaxError(t *testing.T) {
	parser := NewParser()

	parsed, err := parser.ParseInline(context.Background(), `server: {`)
	if err != nil {
		t.Fatalf("ParseInline failed: %v", err)
	}
	if parsed.Valid() {
		t.Fatal("Expected syntax error to be reported")
	}
	if len(parsed.Errors) == 0 {
		t.Fatal("Expected at least one error")
	}
	if parsed.Errors[0].Severity != "error" {
		t.Errorf("Expected error severity, got %s", parsed.Errors[0].Severity)
	}
}

func TestParser_Parse_File(t *testing.T) {
	parser := NewParser()
	dir := t.TempDir()
	path := writeSource(t, dir, "switchboard.cue", `
environment: "staging"
server: listen_addr: ":9191"
`)

	parsed, err := parser.Parse(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !parsed.Valid() {
		t.Fatalf("Expected valid settings, got errors: %v", parsed.Errors)
	}
	if len(parsed.SourceFiles) != 1 || parsed.SourceFiles[0] != path {
		t.Errorf("Expected source files [%s], got %v", path, parsed.SourceFiles)
	}
	if parsed.Settings.Server.ListenAddr != ":9191" {
		t.Errorf("Expected listen addr :9191, got %s", parsed.Settings.Server.ListenAddr)
	}
}

func TestParser_Parse_FileSyntaxErrorCarriesPosition(t *testing.T) {
	parser := NewParser()
	dir := t.TempDir()
	path := writeSource(t, dir, "broken.cue", "server: {\n  listen_addr: :\n}\n")

	parsed, err := parser.Parse(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if parsed.Valid() {
		t.Fatal("Expected broken file to be rejected")
	}
	found := false
	for _, e := range parsed.Errors {
		if e.File == path && e.Line > 0 {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected an error carrying file position, got %v", parsed.Errors)
	}
}

func TestParser_Parse_Directory(t *testing.T) {
	parser := NewParser()
	dir := t.TempDir()
	writeSource(t, dir, "server.cue", `
package switchboard

server: listen_addr: ":9292"
`)
	writeSource(t, dir, "store.cue", `
package switchboard

store: path: "/tmp/switchboard.yaml"
`)

	parsed, err := parser.Parse(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !parsed.Valid() {
		t.Fatalf("Expected valid settings, got errors: %v", parsed.Errors)
	}
	if parsed.Settings.Server.ListenAddr != ":9292" {
		t.Errorf("Expected listen addr :9292, got %s", parsed.Settings.Server.ListenAddr)
	}
	if parsed.Settings.Store.Path != "/tmp/switchboard.yaml" {
		t.Errorf("Expected store path from second file, got %s", parsed.Settings.Store.Path)
	}
	if len(parsed.SourceFiles) != 2 {
		t.Errorf("Expected 2 source files, got %v", parsed.SourceFiles)
	}
}

func TestParser_Parse_MultipleSourcesUnify(t *testing.T) {
	parser := NewParser()
	dir := t.TempDir()
	a := writeSource(t, dir, "a.cue", `server: listen_addr: ":9393"`)
	b := writeSource(t, dir, "b.cue", `environment: "staging"`)

	parsed, err := parser.Parse(context.Background(), []string{a, b})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !parsed.Valid() {
		t.Fatalf("Expected valid settings, got errors: %v", parsed.Errors)
	}
	if parsed.Settings.Server.ListenAddr != ":9393" {
		t.Errorf("Expected listen addr from first source, got %s", parsed.Settings.Server.ListenAddr)
	}
	if parsed.Settings.Environment != "staging" {
		t.Errorf("Expected environment from second source, got %s", parsed.Settings.Environment)
	}
}

func TestParser_Parse_ConflictingSources(t *testing.T) {
	parser := NewParser()
	dir := t.TempDir()
	a := writeSource(t, dir, "a.cue", `environment: "production"`)
	b := writeSource(t, dir, "b.cue", `environment: "staging"`)

	parsed, err := parser.Parse(context.Background(), []string{a, b})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if parsed.Valid() {
		t.Fatal("Expected conflicting sources to be rejected")
	}
}

func TestParser_Parse_MissingSource(t *testing.T) {
	parser := NewParser()

	_, err := parser.Parse(context.Background(), []string{"/nonexistent/switchboard.cue"})
	if err == nil {
		t.Fatal("Expected error for missing source")
	}
}

func TestParser_Parse_NoSources(t *testing.T) {
	parser := NewParser()

	_, err := parser.Parse(context.Background(), nil)
	if err == nil {
		t.Fatal("Expected error for empty source list")
	}
}

func TestParser_Load_Success(t *testing.T) {
	parser := NewParser()
	dir := t.TempDir()
	path := writeSource(t, dir, "switchboard.cue", `server: listen_addr: ":9494"`)

	settings, err := parser.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.Server.ListenAddr != ":9494" {
		t.Errorf("Expected listen addr :9494, got %s", settings.Server.ListenAddr)
	}
}

func TestParser_Load_InvalidSettings(t *testing.T) {
	parser := NewParser()
	dir := t.TempDir()
	path := writeSource(t, dir, "switchboard.cue", `server: {mode: "turbo"}`)

	_, err := parser.Load(context.Background(), path)
	if err == nil {
		t.Fatal("Expected error for invalid settings")
	}
	if !strings.Contains(err.Error(), "invalid configuration") {
		t.Errorf("Expected invalid configuration error, got: %v", err)
	}
}

func TestParser_Load_NoSourcesUsesDefaults(t *testing.T) {
	parser := NewParser()

	settings, err := parser.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.Server.ListenAddr != ":8080" {
		t.Errorf("Expected default listen addr, got %s", settings.Server.ListenAddr)
	}
	if !settings.Policy.Enabled {
		t.Error("Expected policy enabled by default")
	}
}

func TestParser_EnvOverrides(t *testing.T) {
	t.Setenv(EnvListenAddr, ":7070")
	t.Setenv(EnvEnvironment, "production")
	t.Setenv(EnvPolicyPaths, "/etc/switchboard/policies:/opt/policies")

	parser := NewParser()
	parsed, err := parser.ParseInline(context.Background(), `store: path: "/tmp/sb.yaml"`)
	if err != nil {
		t.Fatalf("ParseInline failed: %v", err)
	}
	if !parsed.Valid() {
		t.Fatalf("Expected valid settings, got errors: %v", parsed.Errors)
	}

	s := parsed.Settings
	if s.Server.ListenAddr != ":7070" {
		t.Errorf("Expected env listen addr :7070, got %s", s.Server.ListenAddr)
	}
	if s.Environment != "production" {
		t.Errorf("Expected env environment production, got %s", s.Environment)
	}
	if len(s.Policy.Paths) != 2 || s.Policy.Paths[0] != "/etc/switchboard/policies" {
		t.Errorf("Expected policy paths from env, got %v", s.Policy.Paths)
	}
	if s.Store.Path != "/tmp/sb.yaml" {
		t.Errorf("Expected file store path to survive, got %s", s.Store.Path)
	}
}

func TestParser_EnvOverrideInvalidValue(t *testing.T) {
	t.Setenv(EnvServerMode, "turbo")

	parser := NewParser()
	parsed, err := parser.ParseInline(context.Background(), `environment: "staging"`)
	if err != nil {
		t.Fatalf("ParseInline failed: %v", err)
	}
	if parsed.Valid() {
		t.Fatal("Expected env-injected mode to fail validation")
	}

	found := false
	for _, e := range parsed.Errors {
		if e.Path == "server.mode" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected an error at server.mode, got %v", parsed.Errors)
	}
}

func TestSettings_EffectiveMatrix(t *testing.T) {
	parser := NewParser()
	parsed, err := parser.ParseInline(context.Background(), `
matrix: provider_models: ollama: ["llama3.1-70b"]
`)
	if err != nil {
		t.Fatalf("ParseInline failed: %v", err)
	}
	if !parsed.Valid() {
		t.Fatalf("Expected valid settings, got errors: %v", parsed.Errors)
	}

	matrix := parsed.Settings.EffectiveMatrix()
	models := matrix.ProviderModels["ollama"]
	if len(models) != 1 || models[0] != "llama3.1-70b" {
		t.Errorf("Expected overridden ollama models, got %v", models)
	}
	if len(matrix.KernelRuntimes["unified"]) == 0 {
		t.Error("Expected untouched dimensions to keep defaults")
	}
}

func TestSettings_TelemetryConfig(t *testing.T) {
	parser := NewParser()
	parsed, err := parser.ParseInline(context.Background(), `
environment: "production"
telemetry: {
	service_name: "switchboard-edge"
	logging: {
		level:  "warn"
		format: "json"
	}
	tracing: {
		enabled:  true
		exporter: "otlp"
		endpoint: "collector:4317"
		insecure: false
	}
	metrics: namespace: "edge"
}
`)
	if err != nil {
		t.Fatalf("ParseInline failed: %v", err)
	}
	if !parsed.Valid() {
		t.Fatalf("Expected valid settings, got errors: %v", parsed.Errors)
	}

	cfg := parsed.Settings.TelemetryConfig()
	if cfg.ServiceName != "switchboard-edge" {
		t.Errorf("Expected service name switchboard-edge, got %s", cfg.ServiceName)
	}
	if cfg.Environment != "production" {
		t.Errorf("Expected environment production, got %s", cfg.Environment)
	}
	if cfg.Logging.Level != "warn" || cfg.Logging.Format != "json" {
		t.Errorf("Unexpected logging config: %+v", cfg.Logging)
	}
	if !cfg.Tracing.Enabled || cfg.Tracing.Endpoint != "collector:4317" {
		t.Errorf("Unexpected tracing config: %+v", cfg.Tracing)
	}
	if cfg.Tracing.Insecure {
		t.Error("Expected insecure false to map through")
	}
	if cfg.Metrics.Namespace != "edge" {
		t.Errorf("Expected metrics namespace edge, got %s", cfg.Metrics.Namespace)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected mapped config to validate, got: %v", err)
	}
}

func TestDuration_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"seconds", `"30s"`, 30 * time.Second, false},
		{"composite", `"1m30s"`, 90 * time.Second, false},
		{"nanosecond number", `1500000000`, 1500 * time.Millisecond, false},
		{"garbage string", `"soon"`, 0, true},
		{"wrong type", `true`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration
			err := d.UnmarshalJSON([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("UnmarshalJSON failed: %v", err)
			}
			if d.Std() != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, d.Std())
			}
		})
	}
}

func TestValidationError_String(t *testing.T) {
	e := ValidationError{File: "switchboard.cue", Line: 3, Column: 7, Message: "conflicting values"}
	if got := e.String(); got != "switchboard.cue:3:7: conflicting values" {
		t.Errorf("Unexpected rendering: %s", got)
	}

	e = ValidationError{Path: "server.mode", Message: "bad mode"}
	if got := e.String(); got != "server.mode: bad mode" {
		t.Errorf("Unexpected rendering: %s", got)
	}
}
