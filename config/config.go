// Package config loads agent configuration from YAML. A user-level file under
// ~/.parley is read first and a project-level .parley/config.yaml merged over
// it, so checked-in project settings win over personal defaults.
package config

import (
	"io"
	"os"
	"path/filepath"

	"github.com/averau/parley/errors"
	"gopkg.in/yaml.v3"
)

// DirName is the per-project and per-user dot directory.
const DirName = ".parley"

// FilesystemAccess restricts what the filesystem tools may touch. Patterns
// are doublestar globs matched against the path a tool is asked to use.
type FilesystemAccess struct {
	Hidden   []string `yaml:"hidden"`
	ReadOnly []string `yaml:"read_only"`
}

// MCPServer describes a Model Context Protocol server to spawn as a
// subprocess and expose tools from.
type MCPServer struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// Toolset is a named selection of tools a run exposes to the model. MCP
// tools are referenced as "<server>__<tool>".
type Toolset struct {
	Name  string   `yaml:"name"`
	Tools []string `yaml:"tools"`
}

// Config is the closed configuration schema. Unknown keys in a config file
// are rejected at load time rather than silently ignored.
type Config struct {
	Provider             string           `yaml:"provider"`
	Model                string           `yaml:"model"`
	Account              string           `yaml:"account"`
	BaseURL              string           `yaml:"base_url"`
	Region               string           `yaml:"region"`
	Temperature          *float64         `yaml:"temperature"`
	MaxTokens            int              `yaml:"max_tokens"`
	MaxIterations        int              `yaml:"max_iterations"`
	Mode                 string           `yaml:"mode"`
	Toolsets             []Toolset        `yaml:"toolsets"`
	AdditionalMCPServers []MCPServer      `yaml:"additional_mcp_servers"`
	AllowedCommands      []string         `yaml:"allowed_commands"`
	FilesystemAccess     FilesystemAccess `yaml:"filesystem_access"`
}

// Default returns the built-in configuration: dry-run provider, the default
// toolset, and the agent's own dot directory hidden from filesystem tools.
func Default() *Config {
	return &Config{
		Provider:      "dryrun",
		Mode:          "assistant",
		MaxIterations: 5,
		Toolsets: []Toolset{{
			Name:  "default",
			Tools: []string{"read_file", "write_file", "list_dir", "execute_command"},
		}},
		FilesystemAccess: FilesystemAccess{
			Hidden: []string{DirName, DirName + "/**"},
		},
	}
}

// Load builds the effective configuration: defaults, then the user-level
// file, then the project-level file. Missing files are fine; malformed or
// unknown keys are not.
func Load() (*Config, error) {
	cfg := Default()

	if home, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(home, DirName, "config.yaml")
		if _, err := os.Stat(userPath); err == nil {
			if err := loadFromFile(userPath, cfg); err != nil {
				return nil, errors.Wrapf(err, "load user config")
			}
		}
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "get working directory")
	}
	projectPath := filepath.Join(wd, DirName, "config.yaml")
	if _, err := os.Stat(projectPath); err == nil {
		if err := loadFromFile(projectPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "load project config")
		}
	}

	return cfg, nil
}

// loadFromFile merges one YAML file into cfg. Fields present in the file
// replace the current values; absent fields keep them.
func loadFromFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return errors.Wrapf(err, "parse %s", path)
	}
	return nil
}

// Save writes the configuration to path, creating the directory if needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create config directory")
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrapf(err, "encode config")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}

// GetToolset finds a toolset by name. An empty or unknown name falls back to
// the "default" toolset, which must exist.
func (c *Config) GetToolset(name string) (*Toolset, error) {
	if name == "" {
		name = "default"
	}
	for i := range c.Toolsets {
		if c.Toolsets[i].Name == name {
			return &c.Toolsets[i], nil
		}
	}
	if name == "default" {
		return nil, errors.New("mandatory 'default' toolset not found in configuration")
	}
	return c.GetToolset("default")
}
