package config

import "time"

// Default values for configuration fields.
const (
	DefaultLogLevel  = "warn"
	DefaultLogFormat = "text"

	DefaultOptLevel    = 1
	DefaultEmit        = "llvm"
	DefaultModuleName  = "calc.expr"
	DefaultMaxExponent = 64
	DefaultCC          = "cc"

	DefaultMaxSteps = 10_000_000

	DefaultCacheEnabled = false
	DefaultCachePath    = ".gsmc/cache.db"

	DefaultMetricsEnabled       = false
	DefaultMetricsNamespace     = "gsmc"
	DefaultMetricsSubsystem     = "compiler"
	DefaultMetricsListenAddress = "127.0.0.1:9464"

	DefaultWatchDebounce = 200 * time.Millisecond

	// DefaultFile is the configuration file the CLI looks for.
	DefaultFile = "gsmc.yaml"
)

// DefaultExtensions are the source suffixes watched by default.
var DefaultExtensions = []string{".gsm"}

// Default returns a configuration with every field at its default.
func Default() *Config {
	cfg := &Config{
		Compile: CompileConfig{OptLevel: DefaultOptLevel, MaxExponent: DefaultMaxExponent},
		Cache:   CacheConfig{Enabled: DefaultCacheEnabled},
		Metrics: MetricsConfig{Enabled: DefaultMetricsEnabled},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults. Fields whose
// zero value is meaningful (opt_level 0, max_exponent 0, disabled cache) are
// left alone; LoadConfig decodes on top of Default() to give those their
// defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	if cfg.Compile.Emit == "" {
		cfg.Compile.Emit = DefaultEmit
	}
	if cfg.Compile.ModuleName == "" {
		cfg.Compile.ModuleName = DefaultModuleName
	}
	if cfg.Compile.CC == "" {
		cfg.Compile.CC = DefaultCC
	}

	if cfg.Run.MaxSteps == 0 {
		cfg.Run.MaxSteps = DefaultMaxSteps
	}

	if cfg.Cache.Path == "" {
		cfg.Cache.Path = DefaultCachePath
	}

	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Subsystem == "" {
		cfg.Metrics.Subsystem = DefaultMetricsSubsystem
	}
	if cfg.Metrics.ListenAddress == "" {
		cfg.Metrics.ListenAddress = DefaultMetricsListenAddress
	}

	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = DefaultWatchDebounce
	}
	if len(cfg.Watch.Extensions) == 0 {
		cfg.Watch.Extensions = append([]string(nil), DefaultExtensions...)
	}
}
