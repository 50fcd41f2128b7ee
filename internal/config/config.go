package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/dslh/mcp-toolbox/internal/paths"
	"github.com/dslh/mcp-toolbox/internal/toolid"
)

// ErrInvalid marks every configuration failure: unreadable syntax, unset
// environment variables and validation problems.
var ErrInvalid = errors.New("invalid config")

// Transport kinds supported for downstream servers.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
	TransportHTTP  = "http"
)

// ServerConfig describes how to reach a single downstream MCP server
type ServerConfig struct {
	Command    string            `json:"command,omitempty" yaml:"command,omitempty"`
	Args       []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env        map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	Transport  string            `json:"transport,omitempty" yaml:"transport,omitempty"`
	URL        string            `json:"url,omitempty" yaml:"url,omitempty"`
	ToolFilter []string          `json:"toolFilter,omitempty" yaml:"toolFilter,omitempty"`
	Timeout    Duration          `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// ToolboxConfig is a named group of downstream servers opened together
type ToolboxConfig struct {
	Description       string                    `json:"description,omitempty" yaml:"description,omitempty"`
	RequireAllServers bool                      `json:"requireAllServers,omitempty" yaml:"requireAllServers,omitempty"`
	Servers           OrderedMap[ServerConfig] `json:"servers" yaml:"servers"`
}

// Config represents the full toolbox configuration
type Config struct {
	Toolboxes OrderedMap[ToolboxConfig] `json:"toolboxes" yaml:"toolboxes"`
}

// Format identifies the syntax of a configuration document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks a format from the file extension. Anything that is
// not YAML is read as JSON with comments.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// TransportKind returns the configured transport, defaulting to stdio.
func (s ServerConfig) TransportKind() string {
	if s.Transport == "" {
		return TransportStdio
	}
	return strings.ToLower(s.Transport)
}

// ShouldIncludeTool reports whether a downstream tool passes the server's
// allow-list. An empty filter allows every tool.
func (s ServerConfig) ShouldIncludeTool(name string) bool {
	if len(s.ToolFilter) == 0 {
		return true
	}
	for _, allowed := range s.ToolFilter {
		if strings.TrimSpace(allowed) == name {
			return true
		}
	}
	return false
}

// ConnectTimeout returns the server's own timeout or fallback when unset.
func (s ServerConfig) ConnectTimeout(fallback time.Duration) time.Duration {
	if s.Timeout > 0 {
		return time.Duration(s.Timeout)
	}
	return fallback
}

// LoadConfig loads, expands and validates the configuration file at configPath
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config, err := Parse(data, FormatFromPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", configPath, err)
	}

	return config, nil
}

// LoadDefaultConfig loads the configuration from the default location
func LoadDefaultConfig() (*Config, error) {
	configPath, err := paths.GetConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadConfig(configPath)
}

// Parse decodes a configuration document, expands environment variables and
// validates the result.
func Parse(data []byte, format Format) (*Config, error) {
	var config Config
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("%w: failed to parse config YAML: %w", ErrInvalid, err)
		}
	default:
		if err := json.Unmarshal(jsonc.ToJSON(data), &config); err != nil {
			return nil, fmt.Errorf("%w: failed to parse config JSON: %w", ErrInvalid, err)
		}
	}

	if err := expandEnvVars(&config); err != nil {
		return nil, fmt.Errorf("%w: failed to expand environment variables: %w", ErrInvalid, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// expandEnvVars performs ${VAR} expansion on the launch fields of every server
func expandEnvVars(config *Config) error {
	for toolboxName, toolbox := range config.Toolboxes.All() {
		for serverName, server := range toolbox.Servers.All() {
			where := fmt.Sprintf("server %s/%s", toolboxName, serverName)

			expanded, err := expandString(server.Command)
			if err != nil {
				return fmt.Errorf("error expanding command for %s: %w", where, err)
			}
			server.Command = expanded

			expanded, err = expandString(server.URL)
			if err != nil {
				return fmt.Errorf("error expanding url for %s: %w", where, err)
			}
			server.URL = expanded

			for i, arg := range server.Args {
				expanded, err := expandString(arg)
				if err != nil {
					return fmt.Errorf("error expanding arg %d for %s: %w", i, where, err)
				}
				server.Args[i] = expanded
			}

			for key, value := range server.Env {
				expanded, err := expandString(value)
				if err != nil {
					return fmt.Errorf("error expanding env var %s for %s: %w", key, where, err)
				}
				server.Env[key] = expanded
			}

			toolbox.Servers.Set(serverName, server)
		}
	}

	return nil
}

// envVarPattern matches ${VAR_NAME} and ${VAR_NAME:-default}
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandString expands environment variable references in a string. A
// variable that is unset and has no default is an error.
func expandString(s string) (string, error) {
	var missing []string
	out := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		name, hasDefault, fallback := parts[1], parts[2] != "", parts[3]

		value, ok := os.LookupEnv(name)
		switch {
		case value != "":
			return value
		case hasDefault:
			return fallback
		case !ok:
			missing = append(missing, name)
		}
		return ""
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("environment variable %s is not set", strings.Join(missing, ", "))
	}
	return out, nil
}

// Validate checks the configuration for basic validity
func (c *Config) Validate() error {
	for toolboxName, toolbox := range c.Toolboxes.All() {
		if err := validateName("toolbox", toolboxName); err != nil {
			return err
		}

		for serverName, server := range toolbox.Servers.All() {
			if err := validateName("server", serverName); err != nil {
				return fmt.Errorf("%w (toolbox %s)", err, toolboxName)
			}

			where := toolboxName + "/" + serverName
			switch server.TransportKind() {
			case TransportStdio:
				if strings.TrimSpace(server.Command) == "" {
					return fmt.Errorf("%w: server %s has empty command", ErrInvalid, where)
				}
			case TransportSSE, TransportHTTP:
				if strings.TrimSpace(server.URL) == "" {
					return fmt.Errorf("%w: server %s uses %s transport but has no url", ErrInvalid, where, server.TransportKind())
				}
			default:
				return fmt.Errorf("%w: server %s has unknown transport %q", ErrInvalid, where, server.Transport)
			}

			if server.Timeout < 0 {
				return fmt.Errorf("%w: server %s has negative timeout", ErrInvalid, where)
			}
		}
	}

	return nil
}

func validateName(kind, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: %s name cannot be empty", ErrInvalid, kind)
	}
	if strings.Contains(name, toolid.Delimiter) {
		return fmt.Errorf("%w: %s name %q contains reserved sequence %q", ErrInvalid, kind, name, toolid.Delimiter)
	}
	return nil
}

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration time.Duration

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	return d.parse(s)
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d *Duration) parse(s string) error {
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) String() string {
	return time.Duration(d).String()
}
