// Package config loads environment options from YAML files with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"vessel.services/vessel/env"
)

const envPrefix = "VESSEL"

// Config is the serializable form of env.Options plus runtime toggles.
type Config struct {
	Name         string `yaml:"name"`
	Workers      int    `yaml:"workers"`
	MailboxSize  int64  `yaml:"mailbox_size"`
	Reductions   int    `yaml:"reductions"`
	MaxProcesses int64  `yaml:"max_processes"`
	Trace        bool   `yaml:"trace"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Name:       "vessel",
		Reductions: env.DefaultReductions,
	}
}

// Load reads the YAML file, applies VESSEL_* environment variable
// overrides and validates the result.
func Load(path string) (Config, error) {
	c := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return c, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	c.applyEnv()

	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(envPrefix + "_NAME"); v != "" {
		c.Name = v
	}
	if v, ok := lookupInt(envPrefix + "_WORKERS"); ok {
		c.Workers = int(v)
	}
	if v, ok := lookupInt(envPrefix + "_MAILBOX_SIZE"); ok {
		c.MailboxSize = v
	}
	if v, ok := lookupInt(envPrefix + "_REDUCTIONS"); ok {
		c.Reductions = int(v)
	}
	if v, ok := lookupInt(envPrefix + "_MAX_PROCESSES"); ok {
		c.MaxProcesses = v
	}
	if v := os.Getenv(envPrefix + "_TRACE"); v != "" {
		c.Trace = v == "1" || v == "true"
	}
}

// Validate checks the configuration for impossible values.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("config: name must not be empty")
	}
	if c.Workers < 0 {
		return fmt.Errorf("config: workers must not be negative")
	}
	if c.MailboxSize < 0 {
		return fmt.Errorf("config: mailbox_size must not be negative")
	}
	if c.Reductions < 0 {
		return fmt.Errorf("config: reductions must not be negative")
	}
	if c.MaxProcesses < 0 {
		return fmt.Errorf("config: max_processes must not be negative")
	}
	return nil
}

// Options converts the configuration into environment options.
func (c Config) Options() env.Options {
	return env.Options{
		Workers:      c.Workers,
		MailboxSize:  c.MailboxSize,
		Reductions:   c.Reductions,
		MaxProcesses: c.MaxProcesses,
	}
}

func lookupInt(key string) (int64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
