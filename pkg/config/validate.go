package config

import (
	"fmt"
	"net"
	"strings"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the field (e.g. "compile.opt_level").
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects every field error found in a configuration.
type ValidationError struct {
	Errors []FieldError
}

func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Emit forms accepted by compile.emit.
var EmitForms = []string{"ir", "llvm", "asm"}

// Validate returns a ValidationError listing every invalid field, or nil.
func Validate(cfg *Config) error {
	var errs []FieldError
	add := func(field, format string, args ...any) {
		errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("log.level", "must be one of debug, info, warn, error (got %q)", cfg.Log.Level)
	}
	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		add("log.format", "must be text or json (got %q)", cfg.Log.Format)
	}

	if cfg.Compile.OptLevel < 0 || cfg.Compile.OptLevel > 2 {
		add("compile.opt_level", "must be between 0 and 2 (got %d)", cfg.Compile.OptLevel)
	}
	if !contains(EmitForms, cfg.Compile.Emit) {
		add("compile.emit", "must be one of %s (got %q)", strings.Join(EmitForms, ", "), cfg.Compile.Emit)
	}
	if strings.TrimSpace(cfg.Compile.ModuleName) == "" {
		add("compile.module_name", "must not be empty")
	}
	if cfg.Compile.MaxExponent < 0 {
		add("compile.max_exponent", "must not be negative (got %d)", cfg.Compile.MaxExponent)
	}
	switch cfg.Compile.Target {
	case "", "linux", "darwin":
	default:
		add("compile.target", "unsupported target %q (want linux or darwin)", cfg.Compile.Target)
	}
	switch cfg.Compile.Arch {
	case "", "amd64", "arm64":
	default:
		add("compile.arch", "unsupported architecture %q (want amd64 or arm64)", cfg.Compile.Arch)
	}

	if cfg.Run.MaxSteps <= 0 {
		add("run.max_steps", "must be positive (got %d)", cfg.Run.MaxSteps)
	}

	if cfg.Cache.Enabled && cfg.Cache.Path == "" {
		add("cache.path", "required when the cache is enabled")
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Namespace == "" {
			add("metrics.namespace", "required when metrics are enabled")
		}
		if _, _, err := net.SplitHostPort(cfg.Metrics.ListenAddress); err != nil {
			add("metrics.listen_address", "invalid address %q: %v", cfg.Metrics.ListenAddress, err)
		}
	}

	if cfg.Watch.Debounce < 0 {
		add("watch.debounce", "must not be negative (got %s)", cfg.Watch.Debounce)
	}
	for _, ext := range cfg.Watch.Extensions {
		if !strings.HasPrefix(ext, ".") {
			add("watch.extensions", "extension %q must start with a dot", ext)
		}
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
