package config

import (
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDuration_UnmarshalYAML(t *testing.T) {
	var cfg struct {
		Timeout Duration `yaml:"timeout"`
	}
	if err := yaml.Unmarshal([]byte("timeout: 10s\n"), &cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if cfg.Timeout.Duration != 10*time.Second {
		t.Errorf("got %v, want 10s", cfg.Timeout.Duration)
	}
}

func TestDuration_UnmarshalYAML_Empty(t *testing.T) {
	var cfg struct {
		Timeout Duration `yaml:"timeout"`
	}
	if err := yaml.Unmarshal([]byte("timeout: \"\"\n"), &cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if cfg.Timeout.Duration != 0 {
		t.Errorf("got %v, want 0", cfg.Timeout.Duration)
	}
}

func TestDuration_UnmarshalYAML_Invalid(t *testing.T) {
	var cfg struct {
		Timeout Duration `yaml:"timeout"`
	}
	if err := yaml.Unmarshal([]byte("timeout: notaduration\n"), &cfg); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestConfig_UnmarshalFull(t *testing.T) {
	src := `
browsers: [chrome-headless, firefox-headless]
reporters: [minimal, tap]
timeout: 30s
connect_timeout: 10s
watch: true
adapters:
  webhook:
    url: https://example.test/hook
    headers:
      Authorization: Bearer token
  redis:
    addr: localhost:6379
    channel: qtap-events
custom_browsers:
  my-browser:
    binary: /usr/bin/my-browser
    args: ["--flag"]
`
	var cfg Config
	if err := yaml.Unmarshal([]byte(src), &cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(cfg.Browsers) != 2 || cfg.Browsers[0] != "chrome-headless" {
		t.Errorf("browsers = %v", cfg.Browsers)
	}
	if cfg.Timeout.Duration != 30*time.Second {
		t.Errorf("timeout = %v", cfg.Timeout.Duration)
	}
	if cfg.Adapters.Webhook.URL != "https://example.test/hook" {
		t.Errorf("webhook url = %q", cfg.Adapters.Webhook.URL)
	}
	if cfg.Adapters.Redis.Addr != "localhost:6379" {
		t.Errorf("redis addr = %q", cfg.Adapters.Redis.Addr)
	}
	cb, ok := cfg.CustomBrowsers["my-browser"]
	if !ok || cb.Binary != "/usr/bin/my-browser" {
		t.Errorf("custom_browsers[my-browser] = %+v, ok=%v", cb, ok)
	}
}

func TestConfig_UnknownFieldRejected(t *testing.T) {
	src := "not_a_real_field: 1\n"
	dec := yaml.NewDecoder(strings.NewReader(src))
	dec.KnownFields(true)
	var cfg Config
	if err := dec.Decode(&cfg); err == nil {
		t.Fatal("expected error for unknown field")
	}
}
