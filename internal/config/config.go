// Package config loads the coordinator's YAML configuration with
// environment-variable expansion and resolves it against defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration shape. Zero values mean "use the
// default".
type Config struct {
	// ProxyPort is the stable port the proxy listens on. 0 lets the OS
	// assign one.
	ProxyPort int `yaml:"proxy_port"`

	// ControlPort enables the loopback status HTTP endpoint when > 0.
	ControlPort int `yaml:"control_port"`

	// Browser is the preferred kind (chrome, edge, chromium, brave,
	// firefox). Empty means auto-pick.
	Browser string `yaml:"browser"`

	// ExecutablePath overrides browser auto-detection.
	ExecutablePath string `yaml:"executable_path"`

	// Headless runs launched browsers without UI. Defaults to true.
	Headless *bool `yaml:"headless"`

	// NoSandbox forces --no-sandbox (otherwise applied only as root or
	// under CI).
	NoSandbox bool `yaml:"no_sandbox"`

	// Workspace is the project root keying the editor IPC socket path.
	// Defaults to the working directory.
	Workspace string `yaml:"workspace"`

	// DisableEditor skips editor-host detection entirely.
	DisableEditor bool `yaml:"disable_editor"`
}

// Resolved is a Config with every default applied.
type Resolved struct {
	ProxyPort      int
	ControlPort    int
	Browser        string
	ExecutablePath string
	Headless       bool
	NoSandbox      bool
	Workspace      string
	DisableEditor  bool
}

// Load reads a YAML config file, expanding $VAR references before
// unmarshalling.
func Load(path string) (Config, error) {
	var c Config
	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("config: read %s: %w", path, err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses YAML config bytes with env expansion.
func LoadFromBytes(data []byte) (Config, error) {
	var c Config
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &c); err != nil {
		return c, fmt.Errorf("config: parse: %w", err)
	}
	return c, nil
}

// LoadDefault loads BROWSERPILOT_CONFIG if set, otherwise the
// conventional per-user config file when present, otherwise an empty
// config.
func LoadDefault() (Config, error) {
	if path := os.Getenv("BROWSERPILOT_CONFIG"); path != "" {
		return Load(path)
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return Config{}, nil
	}
	path := filepath.Join(dir, "browserpilot", "config.yaml")
	if _, err := os.Stat(path); err != nil {
		return Config{}, nil
	}
	return Load(path)
}

// Resolve applies defaults and environment overrides.
func (c Config) Resolve() *Resolved {
	r := &Resolved{
		ProxyPort:      c.ProxyPort,
		ControlPort:    c.ControlPort,
		Browser:        c.Browser,
		ExecutablePath: c.ExecutablePath,
		Headless:       true,
		NoSandbox:      c.NoSandbox,
		Workspace:      c.Workspace,
		DisableEditor:  c.DisableEditor,
	}
	if c.Headless != nil {
		r.Headless = *c.Headless
	}
	if r.Workspace == "" {
		if wd, err := os.Getwd(); err == nil {
			r.Workspace = wd
		}
	}
	if port, ok := envInt("BROWSERPILOT_PROXY_PORT"); ok {
		r.ProxyPort = port
	}
	if port, ok := envInt("BROWSERPILOT_CONTROL_PORT"); ok {
		r.ControlPort = port
	}
	return r
}

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
