package shell

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Profile is the client's YAML configuration: where to connect and how
// the shell should behave. It is configuration, distinct from the JSON
// session state file the shell writes at runtime; CLI flags override
// profile values.
type Profile struct {
	ServerURL     string            `yaml:"server_url"`
	DefaultFormat string            `yaml:"default_format"`
	Prompt        string            `yaml:"prompt"`
	HistorySize   int               `yaml:"history_size"`
	HistoryFile   string            `yaml:"history_file"`
	SessionFile   string            `yaml:"session_file"`
	Aliases       map[string]string `yaml:"aliases"`
}

// DefaultProfilePath returns $XDG_CONFIG_HOME/conch/profile.yaml,
// falling back to ~/.config/conch/profile.yaml.
func DefaultProfilePath() string {
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, "conch", "profile.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "conch", "profile.yaml")
}

// DefaultStatePath returns the default location for a state file such
// as history or session, under $XDG_STATE_HOME or ~/.local/state.
func DefaultStatePath(name string) string {
	if stateHome := os.Getenv("XDG_STATE_HOME"); stateHome != "" {
		return filepath.Join(stateHome, "conch", name)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "conch-"+name)
	}
	return filepath.Join(home, ".local", "state", "conch", name)
}

// LoadProfile reads a YAML profile. A missing file returns an empty
// profile; a malformed one is an error worth telling the user about.
func LoadProfile(path string) (*Profile, error) {
	if path == "" {
		path = DefaultProfilePath()
	}

	profile := &Profile{}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return profile, nil
		}
		return nil, fmt.Errorf("read profile: %w", err)
	}
	if err := yaml.Unmarshal(data, profile); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}
	return profile, nil
}

// Save writes the profile as YAML with owner-only permissions.
func (p *Profile) Save(path string) error {
	if path == "" {
		path = DefaultProfilePath()
	}

	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create profile directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	return nil
}

// Options converts the profile into shell options.
func (p *Profile) Options() Options {
	return Options{
		Prompt:      p.Prompt,
		HistoryFile: p.HistoryFile,
		HistorySize: p.HistorySize,
		SessionFile: p.SessionFile,
		Aliases:     p.Aliases,
	}
}
