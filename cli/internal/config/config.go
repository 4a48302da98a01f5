package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BDNK1/wizflow/cli/internal/security"
	"github.com/BDNK1/wizflow/runtime"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// FileName is the project file looked up in the project directory.
const FileName = "wizard-config.yaml"

// WizardConfig represents the wizard-config.yaml structure
type WizardConfig struct {
	Name       string         `yaml:"name"`                // Optional: defaults to directory name
	Runtime    RuntimeConfig  `yaml:"runtime"`             // Optional: runtime configuration
	Store      PluginConfig   `yaml:"store"`               // Optional: defaults to the memory store
	Lookup     *PluginConfig  `yaml:"lookup,omitempty"`    // Optional: remote reference data
	Committer  *PluginConfig  `yaml:"committer,omitempty"` // Optional: defaults to the store when it commits
	Properties map[string]any `yaml:"properties"`          // Optional: seed answers for every new session
}

// RuntimeConfig represents runtime configuration
type RuntimeConfig struct {
	Port        string  `yaml:"port" default:"8080" validate:"required,numeric"`
	LogLevel    string  `yaml:"log_level" default:"info" validate:"oneof=debug info warn error"`
	JourneysDir string  `yaml:"journeys_dir"` // Optional: empty uses the embedded journeys
	SessionTTL  string  `yaml:"session_ttl" default:"24h"`
	RateLimit   float64 `yaml:"rate_limit" default:"0" validate:"gte=0"`
	RateBurst   int     `yaml:"rate_burst" default:"10" validate:"gte=1"`
}

// PluginConfig selects a plugin by type and carries its raw config
type PluginConfig struct {
	Type   string         `yaml:"type" validate:"required"`
	Config map[string]any `yaml:"config,omitempty"`
}

// EnvOverrides are process-level settings that win over the project file.
type EnvOverrides struct {
	Port     string `env:"WIZFLOW_PORT"`
	Config   string `env:"WIZFLOW_CONFIG"`
	LogLevel string `env:"WIZFLOW_LOG_LEVEL"`
}

// ParseEnv reads EnvOverrides from the environment.
func ParseEnv() (EnvOverrides, error) {
	var o EnvOverrides
	if err := env.Parse(&o); err != nil {
		return o, fmt.Errorf("parse env: %w", err)
	}
	return o, nil
}

// Path returns the project file location, honouring WIZFLOW_CONFIG.
func (o EnvOverrides) Path(projectDir string) string {
	if o.Config != "" {
		if filepath.IsAbs(o.Config) {
			return o.Config
		}
		return filepath.Join(projectDir, o.Config)
	}
	return filepath.Join(projectDir, FileName)
}

// Load reads and parses wizard-config.yaml from the given directory. A
// missing file yields the defaults.
func Load(projectDir string, overrides EnvOverrides) (*WizardConfig, error) {
	configPath := overrides.Path(projectDir)

	// Security: a relative config path must stay within the project directory
	if !filepath.IsAbs(overrides.Config) {
		if err := security.ValidatePathWithinBoundary(projectDir, configPath); err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}
	}

	var config WizardConfig
	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err) && overrides.Config == "":
		// defaults only
	case err != nil:
		return nil, fmt.Errorf("failed to read %s from %q: %w", FileName, configPath, err)
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", FileName, err)
		}
	}

	if err := config.resolveEnv(); err != nil {
		return nil, err
	}

	if overrides.Port != "" {
		config.Runtime.Port = overrides.Port
	}
	if overrides.LogLevel != "" {
		config.Runtime.LogLevel = overrides.LogLevel
	}

	config.ApplyDefaults(projectDir)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	if config.Runtime.JourneysDir != "" {
		dir, err := security.ResolveWithin(projectDir, config.Runtime.JourneysDir)
		if err != nil {
			return nil, fmt.Errorf("invalid journeys_dir: %w", err)
		}
		config.Runtime.JourneysDir = dir
	}

	return &config, nil
}

// resolveEnv substitutes ${VAR} and ${VAR:default} in every plugin config
// and in the runtime settings that are commonly deployment-specific.
func (c *WizardConfig) resolveEnv() error {
	for _, p := range []*PluginConfig{&c.Store, c.Lookup, c.Committer} {
		if p == nil || p.Config == nil {
			continue
		}
		resolved, err := ResolveMap(p.Config)
		if err != nil {
			return fmt.Errorf("%s config: %w", p.Type, err)
		}
		p.Config = resolved
	}

	for _, field := range []*string{&c.Runtime.Port, &c.Runtime.LogLevel, &c.Runtime.JourneysDir} {
		v, err := ResolveValue(*field)
		if err != nil {
			return fmt.Errorf("runtime config: %w", err)
		}
		*field = fmt.Sprint(v)
	}
	return nil
}

// Validate checks the config against its validate tags
func (c *WizardConfig) Validate() error {
	if err := runtime.Validator().Struct(c); err != nil {
		return fmt.Errorf("invalid %s: %w", FileName, err)
	}
	return nil
}

// ApplyDefaults fills in missing optional fields with defaults
func (c *WizardConfig) ApplyDefaults(projectDir string) {
	if c.Name == "" {
		c.Name = getDirectoryName(projectDir)
	}

	// creasty/defaults only fills zero values, so explicit settings survive.
	_ = runtime.ApplyDefaults(&c.Runtime)

	if c.Store.Type == "" {
		c.Store.Type = "memory"
	}
	if c.Store.Config == nil {
		c.Store.Config = map[string]any{}
	}
	if _, ok := c.Store.Config["session_ttl"]; !ok {
		c.Store.Config["session_ttl"] = c.Runtime.SessionTTL
	}
}

// getDirectoryName extracts the last component of a path
func getDirectoryName(path string) string {
	if path == "." {
		cwd, err := os.Getwd()
		if err != nil {
			return "wizflow-app"
		}
		path = cwd
	}

	return filepath.Base(path)
}
