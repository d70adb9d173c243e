// Package config holds configuration types and YAML loading for priomq.
// The Config structure never shrinks: fields are only added, never renamed
// or removed.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration with YAML support for strings like "30s"
// and "10m". Plain integers are taken as nanoseconds.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var asInt int64
	if err := node.Decode(&asInt); err == nil {
		*d = Duration(asInt)
		return nil
	}

	var asString string
	if err := node.Decode(&asString); err != nil {
		return fmt.Errorf("invalid duration value %q", node.Value)
	}
	parsed, err := time.ParseDuration(asString)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", asString, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the root configuration for a priomq client.
type Config struct {
	Queue   QueueConfig   `yaml:"queue"`
	Retry   RetryConfig   `yaml:"retry"`
	Breaker BreakerConfig `yaml:"circuit_breaker"`
}

// QueueConfig sets limits and timers for the priority queue.
type QueueConfig struct {
	// Capacity is the maximum number of tracked entries.
	Capacity int `yaml:"capacity"`
	// DefaultTTL is the expiration applied to entries enqueued without an
	// explicit time-to-live.
	DefaultTTL Duration `yaml:"default_ttl"`
	// SweepInterval is how often the expiration sweeper runs.
	SweepInterval Duration `yaml:"sweep_interval"`
	// PollInterval is how long a consumer run loop sleeps between polls of
	// an empty queue.
	PollInterval Duration `yaml:"poll_interval"`
}

// BackoffStrategy selects the retry delay shape.
type BackoffStrategy string

const (
	BackoffExponential BackoffStrategy = "exponential"
	BackoffLinear      BackoffStrategy = "linear"
	BackoffFixed       BackoffStrategy = "fixed"
)

// RetryConfig sets the retry policy for failed operations.
type RetryConfig struct {
	MaxAttempts     int             `yaml:"max_attempts"`
	InitialInterval Duration        `yaml:"initial_interval"`
	MaxInterval     Duration        `yaml:"max_interval"`
	Multiplier      float64         `yaml:"multiplier"`
	Strategy        BackoffStrategy `yaml:"strategy"`
	Jitter          bool            `yaml:"jitter"`
}

// BreakerConfig sets per-dependency circuit breaker thresholds.
type BreakerConfig struct {
	FailureThreshold int      `yaml:"failure_threshold"`
	OpenTimeout      Duration `yaml:"open_timeout"`
	SuccessThreshold int      `yaml:"success_threshold"`
	HalfOpenRequests int      `yaml:"half_open_requests"`
}

// Default returns a Config populated with safe, sensible defaults.
// It is the canonical source of truth for default values.
func Default() *Config {
	return &Config{
		Queue: QueueConfig{
			Capacity:      1000,
			DefaultTTL:    Duration(time.Hour),
			SweepInterval: Duration(60 * time.Second),
			PollInterval:  Duration(100 * time.Millisecond),
		},
		Retry: RetryConfig{
			MaxAttempts:     3,
			InitialInterval: Duration(time.Second),
			MaxInterval:     Duration(30 * time.Second),
			Multiplier:      2.0,
			Strategy:        BackoffExponential,
			Jitter:          true,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			OpenTimeout:      Duration(30 * time.Second),
			SuccessThreshold: 1,
			HalfOpenRequests: 1,
		},
	}
}

// Load reads a YAML config file at path and overlays it on top of
// Default(). If the file does not exist the default config is returned
// without error, so a client can run with no config file at all.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the config values are consistent and within
// acceptable ranges. It returns the first error found.
func (c *Config) Validate() error {
	if c.Queue.Capacity < 1 {
		return errors.New("queue.capacity must be at least 1")
	}
	if c.Queue.DefaultTTL <= 0 {
		return errors.New("queue.default_ttl must be positive")
	}
	if c.Queue.SweepInterval <= 0 {
		return errors.New("queue.sweep_interval must be positive")
	}
	if c.Queue.PollInterval <= 0 {
		return errors.New("queue.poll_interval must be positive")
	}
	if c.Retry.MaxAttempts < 0 {
		return errors.New("retry.max_attempts must be >= 0")
	}
	if c.Retry.InitialInterval <= 0 {
		return errors.New("retry.initial_interval must be positive")
	}
	if c.Retry.MaxInterval < c.Retry.InitialInterval {
		return errors.New("retry.max_interval must not be smaller than retry.initial_interval")
	}
	if c.Retry.Strategy == BackoffExponential && c.Retry.Multiplier <= 1.0 {
		return errors.New("retry.multiplier must be greater than 1.0 for exponential backoff")
	}
	switch c.Retry.Strategy {
	case BackoffExponential, BackoffLinear, BackoffFixed:
		// valid
	default:
		return errors.New(`retry.strategy must be one of "exponential", "linear", "fixed"`)
	}
	if c.Breaker.FailureThreshold < 1 {
		return errors.New("circuit_breaker.failure_threshold must be at least 1")
	}
	if c.Breaker.OpenTimeout <= 0 {
		return errors.New("circuit_breaker.open_timeout must be positive")
	}
	if c.Breaker.SuccessThreshold < 1 {
		return errors.New("circuit_breaker.success_threshold must be at least 1")
	}
	if c.Breaker.HalfOpenRequests < 1 {
		return errors.New("circuit_breaker.half_open_requests must be at least 1")
	}
	return nil
}
