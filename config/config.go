// Package config handles YAML config file loading for `qtap run`,
// using the same Load/ExpandEnv
// shape, same yaml.v3 KnownFields(true) strictness).
package config

import (
	"time"
)

// Config represents a qtap.yaml configuration file. All values are
// optional and act as defaults for CLI flags; CLI flags always
// override config values.
type Config struct {
	Browsers      []string          `yaml:"browsers"`
	Reporters     []string          `yaml:"reporters"`
	Cwd           string            `yaml:"cwd"`
	Timeout       Duration          `yaml:"timeout"`
	ConnectTimeout Duration         `yaml:"connect_timeout"`
	Watch         bool              `yaml:"watch"`
	Debug         bool              `yaml:"debug"`
	Adapters      AdaptersConfig    `yaml:"adapters"`
	CustomBrowsers map[string]CustomBrowser `yaml:"custom_browsers"`
}

// AdaptersConfig holds default reporter-adapter endpoints.
type AdaptersConfig struct {
	Webhook WebhookConfig `yaml:"webhook"`
	Redis   RedisConfig   `yaml:"redis"`
}

// WebhookConfig configures reporter/webhook.
type WebhookConfig struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// RedisConfig configures reporter/redisreporter.
type RedisConfig struct {
	Addr    string `yaml:"addr"`
	Channel string `yaml:"channel"`
}

// CustomBrowser describes a user-defined browser launcher entry (a
// process launcher pointed at an arbitrary binary and arg list).
type CustomBrowser struct {
	Binary string   `yaml:"binary"`
	Args   []string `yaml:"args"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s").
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
		return err
	}
	d.Duration = parsed
	return nil
}
