package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models orderline.yml.
type Config struct {
	Hub struct {
		BaseURL      string            `yaml:"base_url"`
		ClientID     string            `yaml:"client_id"`
		ClientSecret string            `yaml:"client_secret"`
		// Projects maps product locator keys to hub project identifiers.
		// Env vars ORDERLINE_HUB_PROJECT_<KEY> take precedence.
		Projects map[string]string `yaml:"projects"`
	} `yaml:"hub"`
	Notifiers []NotifierConfig `yaml:"notifiers"`
}

type NotifierConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

const projectEnvPrefix = "ORDERLINE_HUB_PROJECT_"

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "orderline.yml")
}

// Load reads and validates config from the workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; run ol config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns a default config when the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a config with hub defaults and no project locators.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Hub.BaseURL) == "" {
		return fmt.Errorf("config.hub.base_url is required")
	}
	for key, id := range c.Hub.Projects {
		if key == "" {
			return fmt.Errorf("config.hub.projects contains an empty key")
		}
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("config.hub.projects.%s is empty", key)
		}
	}
	for i, n := range c.Notifiers {
		if strings.TrimSpace(n.URL) == "" {
			return fmt.Errorf("notifier %d has no url", i)
		}
	}
	return nil
}

// ProjectLocator resolves a product's hub project id: env first, then the
// projects table. Empty string means the locator is unset.
func (c *Config) ProjectLocator(key string) string {
	envKey := projectEnvPrefix + strings.ToUpper(key)
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		return v
	}
	if c == nil || c.Hub.Projects == nil {
		return ""
	}
	return strings.TrimSpace(c.Hub.Projects[key])
}

// ProjectEnvVar names the env var that overrides a product locator, for
// error messages.
func ProjectEnvVar(key string) string {
	return projectEnvPrefix + strings.ToUpper(key)
}

// GenerateDefault returns the default config YAML for ol config init.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `hub:
  base_url: https://hub.example.com/api
  client_id: ""
  client_secret: ""

  # Product locator keys map to hub project ids. Each may also come from
  # ORDERLINE_HUB_PROJECT_<KEY> in the environment.
  projects:
    # federal_runsheets: "1001"
    # state_runsheets: "1002"
    # federal_abstracts: "1003"
    # state_abstracts: "1004"

notifiers: []
`
