package kprocessor

import (
	"errors"
	"fmt"
	"os"

	"github.com/birdayz/kstreams-state/kserde"
	"gopkg.in/yaml.v3"
)

// DefaultStateDir is used when Config.StateDir is empty.
const DefaultStateDir = "/tmp/kstreams"

var (
	ErrNoChangeLogger = errors.New("no change logger configured")
)

// Config holds the application-level settings stores depend on.
type Config struct {
	ApplicationID string `yaml:"application_id"`
	StateDir      string `yaml:"state_dir"`

	// Names of registered kserde codecs. Resolved into DefaultKeySerde and
	// DefaultValueSerde by LoadConfig.
	DefaultKeySerdeName   string `yaml:"default_key_serde"`
	DefaultValueSerdeName string `yaml:"default_value_serde"`

	// Default codecs as kserde.Serde[T] values. Set directly when building a
	// Config in code.
	DefaultKeySerde   any `yaml:"-"`
	DefaultValueSerde any `yaml:"-"`
}

// LoadConfig reads a YAML config file and resolves named default codecs.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML config content.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.resolveSerdes(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks required fields.
func (c Config) Validate() error {
	if c.ApplicationID == "" {
		return errors.New("config: application_id is required")
	}
	return nil
}

func (c *Config) resolveSerdes() error {
	if c.DefaultKeySerdeName != "" {
		s, err := kserde.Lookup(c.DefaultKeySerdeName)
		if err != nil {
			return fmt.Errorf("config: default_key_serde: %w", err)
		}
		c.DefaultKeySerde = s
	}
	if c.DefaultValueSerdeName != "" {
		s, err := kserde.Lookup(c.DefaultValueSerdeName)
		if err != nil {
			return fmt.Errorf("config: default_value_serde: %w", err)
		}
		c.DefaultValueSerde = s
	}
	return nil
}

func (c Config) stateDirOrDefault() string {
	if c.StateDir == "" {
		return DefaultStateDir
	}
	return c.StateDir
}
