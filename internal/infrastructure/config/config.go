package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all jsrealm configuration.
type Config struct {
	Logging LogConfig     `yaml:"logging" toml:"logging" json:"logging"`
	Sandbox SandboxConfig `yaml:"sandbox" toml:"sandbox" json:"sandbox"`
	Pool    PoolConfig    `yaml:"pool" toml:"pool" json:"pool"`
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics" json:"metrics"`
	Tracing TracingConfig `yaml:"tracing" toml:"tracing" json:"tracing"`
	Limit   LimitConfig   `yaml:"limit" toml:"limit" json:"limit"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"JSREALM_LOG_LEVEL" default:"info" yaml:"level" toml:"level" json:"level"`
	Development bool   `envconfig:"JSREALM_LOG_DEV" default:"false" yaml:"development" toml:"development" json:"development"`
}

// SandboxConfig holds the options applied to every root context.
type SandboxConfig struct {
	SloppyGlobals       bool     `envconfig:"JSREALM_SLOPPY_GLOBALS" default:"false" yaml:"sloppy_globals" toml:"sloppy_globals" json:"sloppy_globals"`
	ConfigurableGlobals bool     `envconfig:"JSREALM_CONFIGURABLE_GLOBALS" default:"false" yaml:"configurable_globals" toml:"configurable_globals" json:"configurable_globals"`
	EndowmentWrites     string   `envconfig:"JSREALM_ENDOWMENT_WRITES" default:"explicit" yaml:"endowment_writes" toml:"endowment_writes" json:"endowment_writes"`
	MaxCallStackSize    int      `envconfig:"JSREALM_MAX_CALL_STACK" default:"1024" yaml:"max_call_stack" toml:"max_call_stack" json:"max_call_stack"`
	Shims               []string `envconfig:"JSREALM_SHIMS" yaml:"shims" toml:"shims" json:"shims"`
}

// PoolConfig holds intrinsics pool configuration. Size 0 disables the pool.
type PoolConfig struct {
	Size           int      `envconfig:"JSREALM_POOL_SIZE" default:"0" yaml:"size" toml:"size" json:"size"`
	AcquireTimeout Duration `envconfig:"JSREALM_POOL_TIMEOUT" default:"5s" yaml:"acquire_timeout" toml:"acquire_timeout" json:"acquire_timeout"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool `envconfig:"JSREALM_METRICS" default:"false" yaml:"enabled" toml:"enabled" json:"enabled"`
}

// TracingConfig holds evaluation tracing configuration. Spans are written
// to the log at debug level, or warn when an evaluation fails.
type TracingConfig struct {
	Enabled bool `envconfig:"JSREALM_TRACE" default:"false" yaml:"enabled" toml:"enabled" json:"enabled"`
}

// LimitConfig bounds the evaluation rate across a manager's contexts.
// PerSecond 0 disables the limit.
type LimitConfig struct {
	PerSecond float64 `envconfig:"JSREALM_RATE_LIMIT" default:"0" yaml:"per_second" toml:"per_second" json:"per_second"`
	Burst     int     `envconfig:"JSREALM_RATE_BURST" default:"1" yaml:"burst" toml:"burst" json:"burst"`
}

// Duration is a time.Duration read from strings such as "250ms" in the
// environment and in profile files.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Sandbox: SandboxConfig{
			EndowmentWrites:  "explicit",
			MaxCallStackSize: 1024,
		},
		Pool: PoolConfig{
			AcquireTimeout: Duration(5 * time.Second),
		},
		Limit: LimitConfig{
			Burst: 1,
		},
	}
}
