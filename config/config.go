package config

import (
	"fmt"
	"time"
)

// Profile represents a bundleforge engine-launch profile file. All
// values are optional and act as defaults for the command-line
// switches in specification section 6; CLI flags always override
// profile values.
type Profile struct {
	Companion CompanionConfig `yaml:"companion"`
	Cache     CacheConfig     `yaml:"cache"`
	Apply     ApplyConfig     `yaml:"apply"`
	Notify    NotifyConfig    `yaml:"notify"`
	Log       LogConfig       `yaml:"log"`
	TUI       bool            `yaml:"tui"`
}

// CompanionConfig overrides where the elevated companion binary is
// launched from, for a bootstrapper that ships it somewhere other than
// next to the controller executable.
type CompanionConfig struct {
	Path string   `yaml:"path"`
	Args []string `yaml:"args,omitempty"`
}

// CacheConfig configures the payload cache's local search roots and,
// optionally, a remote fallback source.
type CacheConfig struct {
	Root  string     `yaml:"root"`
	Roots []string   `yaml:"roots,omitempty"`
	S3    *S3Config  `yaml:"s3,omitempty"`
}

// S3Config mirrors cache.S3Config for YAML decoding.
type S3Config struct {
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix,omitempty"`
	Region       string `yaml:"region,omitempty"`
	Endpoint     string `yaml:"endpoint,omitempty"`
	UsePathStyle bool   `yaml:"s3_path_style,omitempty"`
}

// ApplyConfig holds apply-phase defaults.
type ApplyConfig struct {
	MaxForcedRestarts int `yaml:"max_forced_restarts"`
}

// NotifyConfig configures the optional Redis lifecycle-event publisher.
type NotifyConfig struct {
	URL     string   `yaml:"url"`
	Channel string   `yaml:"channel,omitempty"`
	Timeout Duration `yaml:"timeout,omitempty"`
	Retries *int     `yaml:"retries,omitempty"`
}

// LogConfig holds logging defaults.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// CacheRoots returns the configured local search roots, folding the
// singular Root convenience field in ahead of the plural Roots list.
func (c CacheConfig) CacheRoots() []string {
	if c.Root == "" {
		return c.Roots
	}
	roots := make([]string, 0, len(c.Roots)+1)
	roots = append(roots, c.Root)
	roots = append(roots, c.Roots...)
	return roots
}
