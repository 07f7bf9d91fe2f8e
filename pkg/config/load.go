package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix starts every environment override.
const EnvPrefix = "GSMC_"

// LoadConfig loads configuration from a YAML file at the specified path.
// Keys missing from the file keep their defaults. The result is validated.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables always take
// precedence over file-based configuration.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// Load is what the CLI uses: path may be empty, and a missing file at the
// default location is not an error. Environment overrides always apply.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err == nil {
		return cfg, nil
	}
	if explicit || !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	cfg = Default()
	applyEnvOverrides(cfg)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies GSMC_SECTION_FIELD variables.
func applyEnvOverrides(cfg *Config) {
	str := func(name string, dst *string) {
		if val := os.Getenv(EnvPrefix + name); val != "" {
			*dst = val
		}
	}
	num := func(name string, dst *int) {
		if val := os.Getenv(EnvPrefix + name); val != "" {
			if i, err := strconv.Atoi(val); err == nil {
				*dst = i
			}
		}
	}
	flag := func(name string, dst *bool) {
		if val := os.Getenv(EnvPrefix + name); val != "" {
			if b, err := strconv.ParseBool(val); err == nil {
				*dst = b
			}
		}
	}

	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	str("LOG_FILE", &cfg.Log.File)

	num("COMPILE_OPT_LEVEL", &cfg.Compile.OptLevel)
	str("COMPILE_EMIT", &cfg.Compile.Emit)
	str("COMPILE_MODULE_NAME", &cfg.Compile.ModuleName)
	num("COMPILE_MAX_EXPONENT", &cfg.Compile.MaxExponent)
	str("COMPILE_RESULT_VAR", &cfg.Compile.ResultVar)
	str("COMPILE_TARGET", &cfg.Compile.Target)
	str("COMPILE_ARCH", &cfg.Compile.Arch)
	str("COMPILE_CC", &cfg.Compile.CC)
	str("COMPILE_PROFILE", &cfg.Compile.Profile)

	num("RUN_MAX_STEPS", &cfg.Run.MaxSteps)

	flag("CACHE_ENABLED", &cfg.Cache.Enabled)
	str("CACHE_PATH", &cfg.Cache.Path)

	flag("METRICS_ENABLED", &cfg.Metrics.Enabled)
	str("METRICS_NAMESPACE", &cfg.Metrics.Namespace)
	str("METRICS_SUBSYSTEM", &cfg.Metrics.Subsystem)
	str("METRICS_LISTEN_ADDRESS", &cfg.Metrics.ListenAddress)

	if val := os.Getenv(EnvPrefix + "WATCH_DEBOUNCE"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Watch.Debounce = d
		}
	}
	if val := os.Getenv(EnvPrefix + "WATCH_EXTENSIONS"); val != "" {
		var exts []string
		for _, ext := range strings.Split(val, ",") {
			if ext = strings.TrimSpace(ext); ext != "" {
				exts = append(exts, ext)
			}
		}
		cfg.Watch.Extensions = exts
	}
}
