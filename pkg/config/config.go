// Package config provides configuration management for gsmc.
//
// Configuration is read from a YAML file (gsmc.yaml by default), completed
// with defaults and then overridden by environment variables of the form
// GSMC_SECTION_FIELD, e.g. GSMC_COMPILE_OPT_LEVEL or GSMC_LOG_LEVEL.
// Values are applied in this order, later overriding earlier:
//
//  1. Default values (defaults.go)
//  2. Values from the YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
package config

import "time"

// Config is the root configuration structure for gsmc.
type Config struct {
	// Log configures the slog-based logger.
	Log LogConfig `yaml:"log"`

	// Compile holds code generation and optimization settings.
	Compile CompileConfig `yaml:"compile"`

	// Run bounds programs executed by "gsmc run".
	Run RunConfig `yaml:"run"`

	// Cache configures the on-disk artifact cache.
	Cache CacheConfig `yaml:"cache"`

	// Metrics configures Prometheus metrics.
	Metrics MetricsConfig `yaml:"metrics"`

	// Watch configures "gsmc watch".
	Watch WatchConfig `yaml:"watch"`
}

type LogConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: "warn"
	Level string `yaml:"level"`

	// Format is "text" or "json".
	// Default: "text"
	Format string `yaml:"format"`

	// File additionally writes logs to this path when set.
	File string `yaml:"file"`
}

type CompileConfig struct {
	// OptLevel selects the optimizer passes, 0 through 2.
	// Default: 1
	OptLevel int `yaml:"opt_level"`

	// Emit is the output form: "ir", "llvm" or "asm".
	// Default: "llvm"
	Emit string `yaml:"emit"`

	// ModuleName names the generated module.
	// Default: "calc.expr"
	ModuleName string `yaml:"module_name"`

	// MaxExponent bounds the literal exponent of "^", which is unrolled.
	// Default: 64
	MaxExponent int `yaml:"max_exponent"`

	// ResultVar names the variable whose final value is the program's
	// result. When set, opt_level 2 removes variables it does not depend on.
	ResultVar string `yaml:"result_var"`

	// Target is the operating system "gsmc build" links for. Empty means
	// the host.
	Target string `yaml:"target"`

	// Arch is the instruction set of emit "asm": "amd64" or "arm64". Empty
	// means the host. "gsmc build" always uses the host.
	Arch string `yaml:"arch"`

	// CC is the C compiler driver used to link executables.
	// Default: "cc"
	CC string `yaml:"cc"`

	// Profile is a block profile written by "gsmc run --profile" used to
	// lay out hot blocks first.
	Profile string `yaml:"profile"`
}

type RunConfig struct {
	// MaxSteps bounds the instructions "gsmc run" executes.
	// Default: 10000000
	MaxSteps int `yaml:"max_steps"`
}

type CacheConfig struct {
	Enabled bool `yaml:"enabled"`

	// Path is the SQLite database file.
	// Default: ".gsmc/cache.db"
	Path string `yaml:"path"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`

	// Default: "gsmc"
	Namespace string `yaml:"namespace"`

	// Default: "compiler"
	Subsystem string `yaml:"subsystem"`

	// ListenAddress serves /metrics while "gsmc watch" runs.
	// Default: "127.0.0.1:9464"
	ListenAddress string `yaml:"listen_address"`
}

type WatchConfig struct {
	// Debounce coalesces bursts of file events.
	// Default: 200ms
	Debounce time.Duration `yaml:"debounce"`

	// Extensions lists the file suffixes that trigger a rebuild.
	// Default: [".gsm"]
	Extensions []string `yaml:"extensions"`
}
