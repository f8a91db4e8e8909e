// Package config provides configuration management for dap-inferiors.
//
// Configuration controls:
//   - Adapter settings: install path, start timeout, readiness convention
//   - Debugger defaults: the system gdb path and the bare name resolved via PATH
//   - Session settings: timeout for custom request round trips
//   - Presentation: the address the MCP process view listens on
//   - Logging: level and encoding
//
// Values come from defaults, an optional config file (YAML, JSON or TOML) and
// DAP_INFERIORS_* environment variables, in increasing order of precedence.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides,
// e.g. DAP_INFERIORS_ADAPTER_INSTALL_PATH.
const EnvPrefix = "DAP_INFERIORS"

// ReadinessMode selects which stdout marker signals that the adapter is ready.
type ReadinessMode string

const (
	// ReadinessSocketPath waits for a SOCKET_PATH=<path> line and connects to that unix socket.
	ReadinessSocketPath ReadinessMode = "socket-path"
	// ReadinessReadyLine waits for a fixed literal line and connects to a pre-agreed TCP endpoint.
	ReadinessReadyLine ReadinessMode = "ready-line"
)

// RunScriptRelPath is the adapter launcher script inside the install path.
const RunScriptRelPath = "bin/run_debug_adapter"

// Config holds the server configuration
type Config struct {
	Adapter  AdapterConfig  `mapstructure:"adapter"`
	Debugger DebuggerConfig `mapstructure:"debugger"`
	Session  SessionConfig  `mapstructure:"session"`
	MCP      MCPConfig      `mapstructure:"mcp"`
	Log      LogConfig      `mapstructure:"log"`
}

// AdapterConfig describes how the debug adapter is started and reached
type AdapterConfig struct {
	// InstallPath is the adapter installation directory
	InstallPath string `mapstructure:"install_path"`
	// RunScript overrides <InstallPath>/bin/run_debug_adapter
	RunScript           string          `mapstructure:"run_script"`
	StartTimeoutSeconds int             `mapstructure:"start_timeout_seconds"`
	DialTimeoutSeconds  int             `mapstructure:"dial_timeout_seconds"`
	Readiness           ReadinessConfig `mapstructure:"readiness"`
}

// ReadinessConfig holds the readiness convention of the adapter in use
type ReadinessConfig struct {
	Mode         ReadinessMode `mapstructure:"mode"`
	ReadyLiteral string        `mapstructure:"ready_literal"`
	// Endpoint is the fixed TCP address used with ReadinessReadyLine
	Endpoint string `mapstructure:"endpoint"`
}

// DebuggerConfig holds native debugger defaults
type DebuggerConfig struct {
	DefaultPath string `mapstructure:"default_path"`
	BareName    string `mapstructure:"bare_name"`
}

// SessionConfig holds per-session settings
type SessionConfig struct {
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// MCPConfig holds the process view server settings
type MCPConfig struct {
	// Listen is the HTTP address of the MCP server; empty disables it
	Listen string `mapstructure:"listen"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Adapter: AdapterConfig{
			StartTimeoutSeconds: 10,
			DialTimeoutSeconds:  5,
			Readiness: ReadinessConfig{
				Mode:         ReadinessSocketPath,
				ReadyLiteral: "DAP server ready",
				Endpoint:     "127.0.0.1:4711",
			},
		},
		Debugger: DebuggerConfig{
			DefaultPath: "/usr/bin/gdb",
			BareName:    "gdb",
		},
		Session: SessionConfig{
			RequestTimeoutSeconds: 30,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// SetDefaults registers every default on v so that env overrides apply to all keys
func SetDefaults(v *viper.Viper) {
	defaults := DefaultConfig()

	v.SetDefault("adapter.install_path", defaults.Adapter.InstallPath)
	v.SetDefault("adapter.run_script", defaults.Adapter.RunScript)
	v.SetDefault("adapter.start_timeout_seconds", defaults.Adapter.StartTimeoutSeconds)
	v.SetDefault("adapter.dial_timeout_seconds", defaults.Adapter.DialTimeoutSeconds)
	v.SetDefault("adapter.readiness.mode", string(defaults.Adapter.Readiness.Mode))
	v.SetDefault("adapter.readiness.ready_literal", defaults.Adapter.Readiness.ReadyLiteral)
	v.SetDefault("adapter.readiness.endpoint", defaults.Adapter.Readiness.Endpoint)

	v.SetDefault("debugger.default_path", defaults.Debugger.DefaultPath)
	v.SetDefault("debugger.bare_name", defaults.Debugger.BareName)

	v.SetDefault("session.request_timeout_seconds", defaults.Session.RequestTimeoutSeconds)

	v.SetDefault("mcp.listen", defaults.MCP.Listen)

	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.json", defaults.Log.JSON)
}

// NewViper returns a viper instance with defaults and environment overrides wired
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig loads configuration from an optional file plus environment
func LoadConfig(path string) (*Config, error) {
	v := NewViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that have no usable fallback
func (c *Config) Validate() error {
	switch c.Adapter.Readiness.Mode {
	case ReadinessSocketPath:
	case ReadinessReadyLine:
		if c.Adapter.Readiness.ReadyLiteral == "" {
			return fmt.Errorf("adapter.readiness.ready_literal is required in %s mode", ReadinessReadyLine)
		}
		if c.Adapter.Readiness.Endpoint == "" {
			return fmt.Errorf("adapter.readiness.endpoint is required in %s mode", ReadinessReadyLine)
		}
	default:
		return fmt.Errorf("unknown adapter.readiness.mode %q (want %s or %s)",
			c.Adapter.Readiness.Mode, ReadinessSocketPath, ReadinessReadyLine)
	}
	if c.Adapter.StartTimeoutSeconds <= 0 {
		return fmt.Errorf("adapter.start_timeout_seconds must be positive, got %d", c.Adapter.StartTimeoutSeconds)
	}
	if c.Debugger.BareName == "" {
		return fmt.Errorf("debugger.bare_name must not be empty")
	}
	return nil
}

// RunScriptPath returns the adapter launcher script to execute
func (c *Config) RunScriptPath() string {
	if c.Adapter.RunScript != "" {
		return c.Adapter.RunScript
	}
	if c.Adapter.InstallPath == "" {
		return ""
	}
	return filepath.Join(c.Adapter.InstallPath, RunScriptRelPath)
}

// StartTimeout returns the readiness timeout
func (c *Config) StartTimeout() time.Duration {
	return time.Duration(c.Adapter.StartTimeoutSeconds) * time.Second
}

// DialTimeout returns the window for connecting to the adapter after readiness
func (c *Config) DialTimeout() time.Duration {
	return time.Duration(c.Adapter.DialTimeoutSeconds) * time.Second
}

// RequestTimeout returns the timeout applied to custom request round trips
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Session.RequestTimeoutSeconds) * time.Second
}
