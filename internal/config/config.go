// Package config provides configuration management for the dbgpd server.
//
// Configuration controls:
//   - The IDE endpoint the debugger engine dials and the IDE key it presents
//   - The Delve binary and flags used to run the debug target
//   - Which launch.json configuration (or explicit program) is debugged
//   - How deep target variables are expanded
//
// Values are layered: defaults, then a YAML or JSON-with-comments file, then
// DBGP_* environment variables. Command line flags are applied by the caller.
package config

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/ctagard/dbgpd/internal/errors"
)

// Config holds the server configuration
type Config struct {
	IDE IDEConfig `json:"ide" yaml:"ide"`

	// Language is the language tag announced in the init packet.
	Language string `json:"language" yaml:"language" env:"DBGP_LANGUAGE"`
	LogLevel string `json:"logLevel" yaml:"logLevel" env:"DBGP_LOG_LEVEL"`

	// MCP serves the status and breakpoint tools on stdio.
	MCP bool `json:"mcp" yaml:"mcp" env:"DBGP_MCP"`

	Adapter   AdapterConfig   `json:"adapter" yaml:"adapter"`
	Launch    LaunchConfig    `json:"launch" yaml:"launch"`
	Variables VariablesConfig `json:"variables" yaml:"variables"`
}

// IDEConfig locates the IDE listening for debugger connections.
type IDEConfig struct {
	Host string `json:"host" yaml:"host" env:"DBGP_IDE_HOST"`
	Port int    `json:"port" yaml:"port" env:"DBGP_IDE_PORT"`
	Key  string `json:"key" yaml:"key" env:"DBGP_IDEKEY"`
}

// AdapterConfig holds Delve-specific configuration
type AdapterConfig struct {
	Path           string `json:"path" yaml:"path" env:"DBGP_DLV_PATH"`
	BuildFlags     string `json:"buildFlags" yaml:"buildFlags" env:"DBGP_DLV_BUILD_FLAGS"`
	ConnectRetries int    `json:"connectRetries" yaml:"connectRetries"`
}

// LaunchConfig selects the program to debug. Program takes precedence over a
// launch.json configuration.
type LaunchConfig struct {
	ConfigPath string   `json:"configPath" yaml:"configPath" env:"DBGP_LAUNCH_CONFIG"`
	Name       string   `json:"name" yaml:"name" env:"DBGP_LAUNCH_NAME"`
	Program    string   `json:"program" yaml:"program" env:"DBGP_PROGRAM"`
	Args       []string `json:"args" yaml:"args"`
	Cwd        string   `json:"cwd" yaml:"cwd"`
}

// VariablesConfig limits variable expansion.
type VariablesConfig struct {
	MaxDepth int `json:"maxDepth" yaml:"maxDepth" env:"DBGP_MAX_DEPTH"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		IDE: IDEConfig{
			Host: "127.0.0.1",
			Port: 9003,
			Key:  "dbgpd",
		},
		Language: "PHP",
		LogLevel: "info",
		Adapter: AdapterConfig{
			Path:           "dlv",
			ConnectRetries: 20,
		},
		Variables: VariablesConfig{
			MaxDepth: 2,
		},
	}
}

// LoadConfig loads configuration from an optional file and the environment.
// Files ending in .yaml or .yml are read as YAML, anything else as JSON with
// comments.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(data, cfg)
		default:
			err = json.Unmarshal(jsonc.ToJSON(data), cfg)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := envdecode.Decode(cfg); err != nil && !stderrors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	return cfg, nil
}

// Validate checks the values the engine cannot run without.
func (c *Config) Validate() error {
	if c.IDE.Host == "" {
		return errors.ConfigInvalid("ide.host", "must not be empty")
	}
	if c.IDE.Port <= 0 || c.IDE.Port > 65535 {
		return errors.ConfigInvalid("ide.port", fmt.Sprintf("%d is not a valid port", c.IDE.Port))
	}
	if c.IDE.Key == "" {
		return errors.ConfigInvalid("ide.key", "must not be empty")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return errors.ConfigInvalid("logLevel", err.Error())
	}
	if c.Variables.MaxDepth < 0 {
		return errors.ConfigInvalid("variables.maxDepth", "must not be negative")
	}
	return nil
}

// Address returns the IDE address in host:port form.
func (c *Config) Address() string {
	return net.JoinHostPort(c.IDE.Host, strconv.Itoa(c.IDE.Port))
}

// ParseLevel maps a log level name to its slog level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", name)
	}
	return level, nil
}
