package system

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/roasbeef/actorcore/internal/actor"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned for configurations that fail validation.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds configuration parameters for the System.
type Config struct {
	// Workers is the number of scheduler worker goroutines.
	Workers int `yaml:"workers"`

	// Throughput is the default number of messages an actor processes
	// per resume.
	Throughput int `yaml:"throughput"`

	// LogDeadLetters logs every message reaching the dead letter actor.
	LogDeadLetters bool `yaml:"log_dead_letters"`

	// ShutdownTimeout bounds Shutdown when the caller's context has no
	// deadline.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// LogLevel is the level of the console log, used by the CLI.
	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns a default configuration for the System.
func DefaultConfig() Config {
	return Config{
		Workers:         runtime.NumCPU(),
		Throughput:      actor.DefaultThroughput,
		LogDeadLetters:  true,
		ShutdownTimeout: 5 * time.Second,
		LogLevel:        "info",
	}
}

// Validate checks the configuration for values the system cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Workers <= 0:
		return fmt.Errorf("%w: workers must be positive, got %d",
			ErrInvalidConfig, c.Workers)

	case c.Throughput <= 0:
		return fmt.Errorf("%w: throughput must be positive, got %d",
			ErrInvalidConfig, c.Throughput)

	case c.ShutdownTimeout < 0:
		return fmt.Errorf("%w: negative shutdown timeout %v",
			ErrInvalidConfig, c.ShutdownTimeout)
	}

	return nil
}

// LoadConfig reads a YAML configuration file. Fields missing from the file
// keep their default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("unable to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("unable to parse config %s: %w", path,
			err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}
