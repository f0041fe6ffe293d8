package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"cuelang.org/go/cue"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"github.com/go-playground/validator/v10"
)

// Environment variables that override parsed settings. Overrides apply
// after file defaults, so a container can adjust a baked-in configuration
// without editing it.
const (
	EnvEnvironment     = "SWITCHBOARD_ENVIRONMENT"
	EnvListenAddr      = "SWITCHBOARD_LISTEN_ADDR"
	EnvServerMode      = "SWITCHBOARD_SERVER_MODE"
	EnvStorePath       = "SWITCHBOARD_STORE_PATH"
	EnvLogLevel        = "SWITCHBOARD_LOG_LEVEL"
	EnvLogFormat       = "SWITCHBOARD_LOG_FORMAT"
	EnvTracingEndpoint = "SWITCHBOARD_TRACING_ENDPOINT"
	EnvPolicyPaths     = "SWITCHBOARD_POLICY_PATHS"
)

// Parser parses and validates switchboard deployment settings written in
// CUE.
type Parser struct {
	ctx       *cue.Context
	registry  *SchemaRegistry
	validator *validator.Validate
}

// NewParser creates a new settings parser. The parser shares a CUE context
// with its schema registry so parsed documents can be checked against the
// built-in schemas.
func NewParser() *Parser {
	registry := NewSchemaRegistry()
	return &Parser{
		ctx:       registry.Context(),
		registry:  registry,
		validator: newValidator(),
	}
}

// newValidator builds a validator that reports json tag names instead of
// Go field names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Parse parses settings from the given sources. Files are compiled
// individually; directories are loaded as CUE packages. All sources unify
// into one document. Problems with the configuration come back inside
// ParsedSettings; the error return is reserved for unusable sources.
func (p *Parser) Parse(ctx context.Context, sources []string) (*ParsedSettings, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("no sources provided")
	}

	var doc cue.Value
	var sourceFiles []string
	var parseErrors []ValidationError

	for _, source := range sources {
		info, err := os.Stat(source)
		if err != nil {
			return nil, fmt.Errorf("failed to stat source %s: %w", source, err)
		}

		if info.IsDir() {
			val, files, errs := p.loadDirectory(source)
			if len(errs) > 0 {
				parseErrors = append(parseErrors, errs...)
			}
			if val.Exists() {
				if doc.Exists() {
					doc = doc.Unify(val)
				} else {
					doc = val
				}
			}
			sourceFiles = append(sourceFiles, files...)
		} else {
			val, errs := p.loadFile(source)
			if len(errs) > 0 {
				parseErrors = append(parseErrors, errs...)
			}
			if val.Exists() {
				if doc.Exists() {
					doc = doc.Unify(val)
				} else {
					doc = val
				}
			}
			sourceFiles = append(sourceFiles, source)
		}
	}

	if len(parseErrors) > 0 {
		return &ParsedSettings{
			SourceFiles: sourceFiles,
			ParsedAt:    time.Now(),
			Errors:      parseErrors,
		}, nil
	}

	if err := doc.Err(); err != nil {
		return &ParsedSettings{
			SourceFiles: sourceFiles,
			ParsedAt:    time.Now(),
			Errors:      convertCUEErrors(err),
		}, nil
	}

	return p.extractSettings(ctx, doc, sourceFiles)
}

// ParseInline parses settings from inline CUE content.
func (p *Parser) ParseInline(ctx context.Context, content string) (*ParsedSettings, error) {
	val := p.ctx.CompileString(content)
	if err := val.Err(); err != nil {
		return &ParsedSettings{
			SourceFiles: []string{"inline"},
			ParsedAt:    time.Now(),
			Errors:      convertCUEErrors(err),
		}, nil
	}

	return p.extractSettings(ctx, val, []string{"inline"})
}

// Load parses the sources and returns usable settings or a single error
// describing everything wrong with them. Sources may be empty, in which
// case the defaults are returned as-is with environment overrides applied.
func (p *Parser) Load(ctx context.Context, sources ...string) (*Settings, error) {
	if len(sources) == 0 {
		settings := DefaultSettings()
		applyEnvOverrides(settings)
		if err := p.validator.Struct(settings); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return settings, nil
	}

	parsed, err := p.Parse(ctx, sources)
	if err != nil {
		return nil, err
	}
	if !parsed.Valid() {
		return nil, parsed.Err()
	}
	return parsed.Settings, nil
}

// GetSchemaRegistry returns the schema registry.
func (p *Parser) GetSchemaRegistry() *SchemaRegistry {
	return p.registry
}

// loadDirectory loads a directory as a CUE package.
func (p *Parser) loadDirectory(dir string) (cue.Value, []string, []ValidationError) {
	buildInstances := load.Instances([]string{dir}, nil)
	if len(buildInstances) == 0 {
		return cue.Value{}, nil, []ValidationError{{
			File:     dir,
			Message:  "no CUE files found",
			Severity: "error",
		}}
	}

	inst := buildInstances[0]
	if inst.Err != nil {
		return cue.Value{}, nil, convertCUEErrors(inst.Err)
	}

	val := p.ctx.BuildInstance(inst)
	if err := val.Err(); err != nil {
		return cue.Value{}, nil, convertCUEErrors(err)
	}

	var files []string
	for _, file := range inst.Files {
		if file.Filename != "" {
			files = append(files, file.Filename)
		}
	}

	return val, files, nil
}

// loadFile loads a single CUE file.
func (p *Parser) loadFile(path string) (cue.Value, []ValidationError) {
	content, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, []ValidationError{{
			File:     path,
			Message:  fmt.Sprintf("failed to read file: %v", err),
			Severity: "error",
		}}
	}

	val := p.ctx.CompileString(string(content), cue.Filename(path))
	if err := val.Err(); err != nil {
		return cue.Value{}, convertCUEErrors(err)
	}

	return val, nil
}

// extractSettings validates the document against the settings schema and
// decodes it over the defaults.
func (p *Parser) extractSettings(ctx context.Context, doc cue.Value, sourceFiles []string) (*ParsedSettings, error) {
	parsed := &ParsedSettings{
		SourceFiles: sourceFiles,
		ParsedAt:    time.Now(),
	}

	if err := p.registry.ValidateValue(doc, SchemaSettings); err != nil {
		parsed.Errors = append(parsed.Errors, convertCUEErrors(err)...)
		return parsed, nil
	}

	settings := &Settings{}
	if err := doc.Decode(settings); err != nil {
		parsed.Errors = append(parsed.Errors, ValidationError{
			Message:  fmt.Sprintf("failed to decode settings: %v", err),
			Severity: "error",
		})
		return parsed, nil
	}

	applyDefaults(settings, doc)
	applyEnvOverrides(settings)
	parsed.Settings = settings

	if err := p.validator.Struct(settings); err != nil {
		parsed.Errors = append(parsed.Errors, structErrors(err)...)
	}

	if len(settings.Defaults) > 0 {
		if err := p.registry.ValidateStackValues(ctx, settings.Defaults); err != nil {
			parsed.Errors = append(parsed.Errors, ValidationError{
				Path:     "defaults",
				Message:  err.Error(),
				Severity: "error",
			})
		}
	}

	return parsed, nil
}

// applyDefaults fills everything the document leaves out with the values
// from DefaultSettings. Fields where zero is a meaningful setting (flags
// that default to on, retention limits, the seed values) are only
// defaulted when the document really omits them.
func applyDefaults(s *Settings, doc cue.Value) {
	def := DefaultSettings()
	present := func(path string) bool {
		return doc.LookupPath(cue.ParsePath(path)).Exists()
	}

	if s.Environment == "" {
		s.Environment = def.Environment
	}

	if s.Server.ListenAddr == "" {
		s.Server.ListenAddr = def.Server.ListenAddr
	}
	if s.Server.Mode == "" {
		s.Server.Mode = def.Server.Mode
	}
	if !present("server.read_timeout") {
		s.Server.ReadTimeout = def.Server.ReadTimeout
	}
	if !present("server.write_timeout") {
		s.Server.WriteTimeout = def.Server.WriteTimeout
	}
	if !present("server.shutdown_timeout") {
		s.Server.ShutdownTimeout = def.Server.ShutdownTimeout
	}

	if s.Store.Path == "" {
		s.Store.Path = def.Store.Path
	}
	if !present("store.watch") {
		s.Store.Watch = def.Store.Watch
	}

	if !present("audit.max_entries") {
		s.Audit.MaxEntries = def.Audit.MaxEntries
	}
	if !present("audit.retention_days") {
		s.Audit.RetentionDays = def.Audit.RetentionDays
	}

	if !present("runtime.services") {
		s.Runtime.Services = def.Runtime.Services
	}

	if s.Telemetry.ServiceName == "" {
		s.Telemetry.ServiceName = def.Telemetry.ServiceName
	}
	if s.Telemetry.Logging.Level == "" {
		s.Telemetry.Logging.Level = def.Telemetry.Logging.Level
	}
	if s.Telemetry.Logging.Format == "" {
		s.Telemetry.Logging.Format = def.Telemetry.Logging.Format
	}
	if s.Telemetry.Logging.Output == "" {
		s.Telemetry.Logging.Output = def.Telemetry.Logging.Output
	}
	if s.Telemetry.Tracing.Exporter == "" {
		s.Telemetry.Tracing.Exporter = def.Telemetry.Tracing.Exporter
	}
	if !present("telemetry.tracing.sampling_rate") {
		s.Telemetry.Tracing.SamplingRate = def.Telemetry.Tracing.SamplingRate
	}
	if !present("telemetry.tracing.insecure") {
		s.Telemetry.Tracing.Insecure = def.Telemetry.Tracing.Insecure
	}
	if !present("telemetry.metrics.enabled") {
		s.Telemetry.Metrics.Enabled = def.Telemetry.Metrics.Enabled
	}
	if s.Telemetry.Metrics.Namespace == "" {
		s.Telemetry.Metrics.Namespace = def.Telemetry.Metrics.Namespace
	}

	if !present("policy.enabled") {
		s.Policy.Enabled = def.Policy.Enabled
	}

	// Seed values merge per key so a partial defaults block still seeds a
	// complete stack.
	if s.Defaults == nil {
		s.Defaults = def.Defaults
	} else {
		for k, v := range def.Defaults {
			if _, ok := s.Defaults[k]; !ok {
				s.Defaults[k] = v
			}
		}
	}
}

// applyEnvOverrides applies SWITCHBOARD_* environment variables on top of
// the parsed settings.
func applyEnvOverrides(s *Settings) {
	if v := os.Getenv(EnvEnvironment); v != "" {
		s.Environment = v
	}
	if v := os.Getenv(EnvListenAddr); v != "" {
		s.Server.ListenAddr = v
	}
	if v := os.Getenv(EnvServerMode); v != "" {
		s.Server.Mode = v
	}
	if v := os.Getenv(EnvStorePath); v != "" {
		s.Store.Path = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		s.Telemetry.Logging.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		s.Telemetry.Logging.Format = v
	}
	if v := os.Getenv(EnvTracingEndpoint); v != "" {
		s.Telemetry.Tracing.Endpoint = v
	}
	if v := os.Getenv(EnvPolicyPaths); v != "" {
		s.Policy.Paths = filepath.SplitList(v)
	}
}

// structErrors converts validator errors to ValidationError entries.
func structErrors(err error) []ValidationError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []ValidationError{{Message: err.Error(), Severity: "error"}}
	}

	out := make([]ValidationError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, ValidationError{
			Path:     fieldPath(fe.Namespace()),
			Message:  fmt.Sprintf("invalid value %v: fails '%s' constraint", fe.Value(), fe.Tag()),
			Severity: "error",
		})
	}
	return out
}

// fieldPath strips the root struct name from a validator namespace, so
// "Settings.server.listen_addr" reports as "server.listen_addr".
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

// convertCUEErrors converts CUE errors to ValidationError slice.
func convertCUEErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	errs := cueerrors.Errors(err)
	for _, e := range errs {
		pos := cueerrors.Positions(e)
		var file string
		var line, column int

		if len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}

		validationErrors = append(validationErrors, ValidationError{
			File:     file,
			Line:     line,
			Column:   column,
			Message:  cueerrors.Details(e, nil),
			Severity: "error",
		})
	}

	return validationErrors
}
