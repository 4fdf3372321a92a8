// Copyright 2026 The Chronik Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Production is for production deployments (CI runners, shared
	// operations hosts).
	Production Environment = "production"
)

// Config is the master configuration for Chronik.
type Config struct {
	// Environment identifies the deployment type.
	Environment Environment `yaml:"environment"`

	// Ledger configures the git-backed ledger.
	Ledger LedgerConfig `yaml:"ledger"`

	// Bus configures the in-process event bus.
	Bus BusConfig `yaml:"bus"`

	// Git configures subprocess behavior.
	Git GitConfig `yaml:"git"`

	// Per-environment overrides, applied after the base config.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Ledger *LedgerConfig `yaml:"ledger,omitempty"`
	Bus    *BusConfig    `yaml:"bus,omitempty"`
	Git    *GitConfig    `yaml:"git,omitempty"`
}

// LedgerConfig configures where ledger data lives.
type LedgerConfig struct {
	// Branch is the dedicated ledger branch name.
	// Default: chronik/ledger
	Branch string `yaml:"branch"`

	// Remote is the remote used for push/pull synchronization.
	// Default: origin
	Remote string `yaml:"remote"`

	// Dir is the secondary checkout directory. Relative paths are
	// resolved against the repository root. Default: .chronik
	Dir string `yaml:"dir"`
}

// BusConfig configures the in-process event bus.
type BusConfig struct {
	// ReplayBuffer is the number of recent events retained for
	// subscriber catch-up. Default: 1000
	ReplayBuffer int `yaml:"replay_buffer"`

	// SubscriberQueue is the per-subscriber channel capacity. A
	// subscriber that falls this far behind is disconnected.
	// Default: 100
	SubscriberQueue int `yaml:"subscriber_queue"`

	// HeartbeatSeconds is the idle interval after which subscribers
	// receive a heartbeat event. Default: 30
	HeartbeatSeconds int `yaml:"heartbeat_seconds"`
}

// GitConfig configures git subprocess behavior.
type GitConfig struct {
	// LocalTimeoutSeconds bounds local git invocations. Default: 30
	LocalTimeoutSeconds int `yaml:"local_timeout_seconds"`

	// NetworkTimeoutSeconds bounds fetch/push/pull. Default: 120
	NetworkTimeoutSeconds int `yaml:"network_timeout_seconds"`
}

// LocalTimeout returns the local subprocess timeout as a Duration.
func (g GitConfig) LocalTimeout() time.Duration {
	return time.Duration(g.LocalTimeoutSeconds) * time.Second
}

// NetworkTimeout returns the network subprocess timeout as a Duration.
func (g GitConfig) NetworkTimeout() time.Duration {
	return time.Duration(g.NetworkTimeoutSeconds) * time.Second
}

// HeartbeatInterval returns the heartbeat interval as a Duration.
func (b BusConfig) HeartbeatInterval() time.Duration {
	return time.Duration(b.HeartbeatSeconds) * time.Second
}

// Default returns the default configuration. These defaults make
// Chronik fully usable with no config file at all: a missing
// CHRONIK_CONFIG is not an error, unlike a named file that fails to
// parse.
func Default() *Config {
	return &Config{
		Environment: Development,
		Ledger: LedgerConfig{
			Branch: "chronik/ledger",
			Remote: "origin",
			Dir:    ".chronik",
		},
		Bus: BusConfig{
			ReplayBuffer:     1000,
			SubscriberQueue:  100,
			HeartbeatSeconds: 30,
		},
		Git: GitConfig{
			LocalTimeoutSeconds:   30,
			NetworkTimeoutSeconds: 120,
		},
	}
}

// Load loads configuration from the CHRONIK_CONFIG environment
// variable. When the variable is unset the built-in defaults are
// returned; when it names a file that cannot be read or parsed, that
// is an error rather than a silent fallback.
func Load() (*Config, error) {
	configPath := os.Getenv("CHRONIK_CONFIG")
	if configPath == "" {
		return Default(), nil
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables
// do not override config values. The only expansion performed is
// ${HOME} and similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.Ledger.Dir = expandVars(cfg.Ledger.Dir, map[string]string{
		"HOME": os.Getenv("HOME"),
	})

	return cfg, nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if overrides.Ledger != nil {
		if overrides.Ledger.Branch != "" {
			c.Ledger.Branch = overrides.Ledger.Branch
		}
		if overrides.Ledger.Remote != "" {
			c.Ledger.Remote = overrides.Ledger.Remote
		}
		if overrides.Ledger.Dir != "" {
			c.Ledger.Dir = overrides.Ledger.Dir
		}
	}

	if overrides.Bus != nil {
		if overrides.Bus.ReplayBuffer != 0 {
			c.Bus.ReplayBuffer = overrides.Bus.ReplayBuffer
		}
		if overrides.Bus.SubscriberQueue != 0 {
			c.Bus.SubscriberQueue = overrides.Bus.SubscriberQueue
		}
		if overrides.Bus.HeartbeatSeconds != 0 {
			c.Bus.HeartbeatSeconds = overrides.Bus.HeartbeatSeconds
		}
	}

	if overrides.Git != nil {
		if overrides.Git.LocalTimeoutSeconds != 0 {
			c.Git.LocalTimeoutSeconds = overrides.Git.LocalTimeoutSeconds
		}
		if overrides.Git.NetworkTimeoutSeconds != 0 {
			c.Git.NetworkTimeoutSeconds = overrides.Git.NetworkTimeoutSeconds
		}
	}
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if c.Ledger.Branch == "" {
		errs = append(errs, fmt.Errorf("ledger.branch is required"))
	}
	if c.Ledger.Dir == "" {
		errs = append(errs, fmt.Errorf("ledger.dir is required"))
	}
	if c.Bus.ReplayBuffer <= 0 {
		errs = append(errs, fmt.Errorf("bus.replay_buffer must be positive"))
	}
	if c.Bus.SubscriberQueue <= 0 {
		errs = append(errs, fmt.Errorf("bus.subscriber_queue must be positive"))
	}
	if c.Bus.HeartbeatSeconds <= 0 {
		errs = append(errs, fmt.Errorf("bus.heartbeat_seconds must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
