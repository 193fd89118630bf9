// Package config locates and reads the per-host user configuration file.
//
// The file is the first existing of:
//
//	$XDG_CONFIG_HOME/snek/<host>.yml
//	$XDG_CONFIG_HOME/snek.yml
//
// where XDG_CONFIG_HOME defaults to $HOME/.config and the host is taken from
// SNIC_RESOURCE, then GITHUB_WORKFLOW, then the machine's hostname.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// AppName names the configuration directory and files.
const AppName = "snek"

// Config is the user configuration.
type Config struct {
	// Registry is the SQLite run registry.
	Registry string `yaml:"registry" json:"registry"`
	// Snakemake is the workflow engine executable.
	Snakemake string `yaml:"snakemake" json:"snakemake"`
	// NProc is the default number of MPI processes passed to runs.
	NProc int `yaml:"nproc" json:"nproc"`
	// SolversDir holds extra CUE solver descriptions.
	SolversDir string `yaml:"solvers_dir,omitempty" json:"solvers_dir,omitempty"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`
	// Compiler entries are handed to the workflow engine as --config.
	Compiler map[string]string `yaml:"compiler,omitempty" json:"compiler,omitempty"`
}

// Env is the process environment seen by this package.
type Env struct {
	Getenv   func(string) string
	Hostname func() (string, error)
}

// OSEnv returns the real environment.
func OSEnv() Env {
	return Env{Getenv: os.Getenv, Hostname: os.Hostname}
}

// Host returns the name used for the host specific configuration file.
func (e Env) Host() string {
	for _, key := range []string{"SNIC_RESOURCE", "GITHUB_WORKFLOW"} {
		if v := e.Getenv(key); v != "" {
			return v
		}
	}
	if e.Hostname != nil {
		if h, err := e.Hostname(); err == nil && h != "" {
			return h
		}
	}
	return "localhost"
}

// ConfigHome returns $XDG_CONFIG_HOME, or $HOME/.config.
func (e Env) ConfigHome() string {
	if v := e.Getenv("XDG_CONFIG_HOME"); v != "" {
		return v
	}
	return filepath.Join(e.Getenv("HOME"), ".config")
}

// DataHome returns $XDG_DATA_HOME, or $HOME/.local/share.
func (e Env) DataHome() string {
	if v := e.Getenv("XDG_DATA_HOME"); v != "" {
		return v
	}
	return filepath.Join(e.Getenv("HOME"), ".local", "share")
}

// Debug reports whether SNEK_DEBUG is set.
func (e Env) Debug() bool {
	return e.Getenv("SNEK_DEBUG") != ""
}

// Candidates lists the configuration files in lookup order.
func (e Env) Candidates() []string {
	home := e.ConfigHome()
	return []string{
		filepath.Join(home, AppName, e.Host()+".yml"),
		filepath.Join(home, AppName+".yml"),
	}
}

// Default returns the configuration used when no file exists.
func Default(env Env) Config {
	return Config{
		Registry:  filepath.Join(env.DataHome(), AppName, "registry.db"),
		Snakemake: "snakemake",
		NProc:     1,
		LogLevel:  "info",
	}
}

// Find returns the first existing candidate.
func Find(env Env) (string, bool) {
	for _, path := range env.Candidates() {
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

// Load reads path on top of the defaults. Unknown keys are rejected.
func Load(env Env, path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg := Default(env)
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Resolve loads the first existing configuration file, or the defaults.
// The returned path is empty when no file was found.
func Resolve(env Env) (Config, string, error) {
	path, ok := Find(env)
	if !ok {
		return Default(env), "", nil
	}
	cfg, err := Load(env, path)
	return cfg, path, err
}

// Ensure writes the default configuration to $XDG_CONFIG_HOME/snek.yml
// unless a configuration file already exists. It returns the path of the
// file in effect and whether it was created.
func Ensure(env Env) (string, bool, error) {
	if path, ok := Find(env); ok {
		slog.Info("found configuration file", "path", path)
		return path, false, nil
	}

	path := env.Candidates()[1]
	slog.Info("no user config file found, writing defaults", "path", path)
	data, err := yaml.Marshal(Default(env))
	if err != nil {
		return "", false, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", false, fmt.Errorf("ensure config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", false, fmt.Errorf("ensure config: %w", err)
	}
	return path, true, nil
}

// Validate checks field values.
func (c Config) Validate() error {
	if c.NProc < 0 {
		return fmt.Errorf("nproc must be positive, got %d", c.NProc)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a log_level value to a slog level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log_level %q", s)
}
