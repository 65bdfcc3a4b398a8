package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/Iron-Ham/sketch-inspector/internal/channel"
	"github.com/Iron-Ham/sketch-inspector/internal/completion"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	// Verify default bridge config
	if cfg.Bridge.Binary != "sketchtool" {
		t.Errorf("Bridge.Binary = %q, want %q", cfg.Bridge.Binary, "sketchtool")
	}
	if !cfg.Bridge.WithoutActivating {
		t.Error("Bridge.WithoutActivating should be true by default")
	}

	// Verify default completion config
	if cfg.Completion.Strategy != "files" {
		t.Errorf("Completion.Strategy = %q, want files", cfg.Completion.Strategy)
	}
	if cfg.Completion.Observer != "fsnotify" {
		t.Errorf("Completion.Observer = %q, want fsnotify", cfg.Completion.Observer)
	}
	if cfg.Completion.SettleDelayMs != 200 {
		t.Errorf("Completion.SettleDelayMs = %d, want 200", cfg.Completion.SettleDelayMs)
	}
	if cfg.Completion.TimeoutMs != 60000 {
		t.Errorf("Completion.TimeoutMs = %d, want 60000", cfg.Completion.TimeoutMs)
	}
	if cfg.Completion.FixedDelayMs != 12000 {
		t.Errorf("Completion.FixedDelayMs = %d, want 12000", cfg.Completion.FixedDelayMs)
	}

	// Verify default inspector config
	if cfg.Inspector.Plugin != InspectorPluginName {
		t.Errorf("Inspector.Plugin = %q", cfg.Inspector.Plugin)
	}
	if cfg.Inspector.OpenDelay() != time.Second {
		t.Errorf("Inspector.OpenDelay() = %v, want 1s", cfg.Inspector.OpenDelay())
	}

	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("default config should be valid, got: %v", errs)
	}
}

func TestCompletionConfig_DetectorOptions(t *testing.T) {
	cc := Default().Completion
	cc.Strategy = "log"
	cc.Observer = "poll"
	cc.SettleDelayMs = 350

	opts := cc.DetectorOptions()
	if opts.Strategy != channel.MarkerLog {
		t.Errorf("Strategy = %q", opts.Strategy)
	}
	if opts.Observer != completion.ObserverPoll {
		t.Errorf("Observer = %q", opts.Observer)
	}
	if opts.SettleDelay != 350*time.Millisecond {
		t.Errorf("SettleDelay = %v", opts.SettleDelay)
	}
	if opts.Timeout != time.Minute {
		t.Errorf("Timeout = %v", opts.Timeout)
	}
	if err := opts.Validate(); err != nil {
		t.Errorf("options from a valid config should validate: %v", err)
	}
}

func TestChannelConfig_ResolveDir(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		name string
		dir  string
		want string
	}{
		{"default under plugin", "", "/plugins/sketch-test-inspector.sketchplugin/Contents/Resources"},
		{"absolute", "/tmp/channel", "/tmp/channel"},
		{"home", "~/channel", filepath.Join(home, "channel")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ChannelConfig{Dir: tt.dir}
			if got := c.ResolveDir("/plugins", InspectorPluginName); got != tt.want {
				t.Errorf("ResolveDir() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConfigDir(t *testing.T) {
	t.Run("with XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		if got := ConfigDir(); got != "/custom/config/sketch-inspector" {
			t.Errorf("ConfigDir() = %q", got)
		}
		if got := ConfigFile(); got != "/custom/config/sketch-inspector/config.yaml" {
			t.Errorf("ConfigFile() = %q", got)
		}
	})

	t.Run("without XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		home, _ := os.UserHomeDir()
		expected := filepath.Join(home, ".config", "sketch-inspector")
		if got := ConfigDir(); got != expected {
			t.Errorf("ConfigDir() = %q, want %q", got, expected)
		}
	})
}

func TestLoggingConfig_ResolveDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	l := LoggingConfig{}
	if got := l.ResolveDir(); got != "/xdg/sketch-inspector" {
		t.Errorf("ResolveDir() = %q", got)
	}
	l.Dir = "/var/log/inspector"
	if got := l.ResolveDir(); got != "/var/log/inspector" {
		t.Errorf("ResolveDir() = %q", got)
	}
}

func TestLoad_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	// Set defaults in viper first (normally done by cmd init)
	SetDefaults()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Completion.Strategy != "files" {
		t.Errorf("Load().Completion.Strategy = %q, want files", cfg.Completion.Strategy)
	}
}

func TestLoadFrom_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
completion:
  strategy: log
  observer: poll
  settle_delay_ms: 500
inspector:
  open_delay_ms: 0
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	v := viper.New()
	for key, value := range map[string]any{
		"bridge.binary":               "sketchtool",
		"completion.timeout_ms":       60000,
		"completion.poll_interval_ms": 50,
		"inspector.plugin":            InspectorPluginName,
		"logging.level":               "info",
	} {
		v.SetDefault(key, value)
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig() error = %v", err)
	}

	cfg, err := LoadFrom(v)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Completion.Strategy != "log" || cfg.Completion.SettleDelayMs != 500 {
		t.Errorf("file values not applied: %+v", cfg.Completion)
	}
	if cfg.Inspector.OpenDelayMs != 0 {
		t.Errorf("OpenDelayMs = %d", cfg.Inspector.OpenDelayMs)
	}
}

func TestLoadFrom_Invalid(t *testing.T) {
	v := viper.New()
	v.Set("bridge.binary", "sketchtool")
	v.Set("inspector.plugin", InspectorPluginName)
	v.Set("completion.strategy", "guess")
	v.Set("completion.observer", "fsnotify")
	v.Set("completion.timeout_ms", 1000)
	v.Set("completion.poll_interval_ms", 50)

	_, err := LoadFrom(v)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if _, ok := err.(ValidationErrors); !ok {
		t.Errorf("expected ValidationErrors, got %T", err)
	}
	if !strings.Contains(err.Error(), "completion.strategy") {
		t.Errorf("error should name the field: %v", err)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Run("empty errors", func(t *testing.T) {
		var errs ValidationErrors
		if errs.Error() != "" {
			t.Errorf("Error() for empty = %q, want empty string", errs.Error())
		}
	})

	t.Run("single error", func(t *testing.T) {
		errs := ValidationErrors{{Field: "test.field", Value: 123, Message: "is invalid"}}
		expected := "test.field: is invalid (got: 123)"
		if errs.Error() != expected {
			t.Errorf("Error() = %q, want %q", errs.Error(), expected)
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "field1", Value: "bad", Message: "is invalid"},
			{Field: "field2", Value: -1, Message: "must be positive"},
		}
		result := errs.Error()
		if !strings.Contains(result, "2 validation errors") {
			t.Errorf("Error() should mention 2 errors: %s", result)
		}
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{"empty binary", func(c *Config) { c.Bridge.Binary = " " }, "bridge.binary"},
		{"bad strategy", func(c *Config) { c.Completion.Strategy = "psychic" }, "completion.strategy"},
		{"bad observer", func(c *Config) { c.Completion.Observer = "kqueue" }, "completion.observer"},
		{"negative settle", func(c *Config) { c.Completion.SettleDelayMs = -5 }, "completion.settle_delay_ms"},
		{"huge fixed delay", func(c *Config) { c.Completion.FixedDelayMs = maxDelayMs + 1 }, "completion.fixed_delay_ms"},
		{"zero timeout", func(c *Config) { c.Completion.TimeoutMs = 0 }, "completion.timeout_ms"},
		{"timeout under settle", func(c *Config) { c.Completion.TimeoutMs = 100; c.Completion.SettleDelayMs = 200 }, "completion.timeout_ms"},
		{"zero poll interval", func(c *Config) { c.Completion.PollIntervalMs = 0 }, "completion.poll_interval_ms"},
		{"empty plugin", func(c *Config) { c.Inspector.Plugin = "" }, "inspector.plugin"},
		{"negative open delay", func(c *Config) { c.Inspector.OpenDelayMs = -1 }, "inspector.open_delay_ms"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			errs := cfg.Validate()
			if len(errs) == 0 {
				t.Fatal("expected validation errors")
			}
			found := false
			for _, e := range errs {
				if e.Field == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error for %s, got %v", tt.wantField, errs)
			}
		})
	}

	cfg := Default()
	cfg.Logging.Level = "DEBUG"
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("level should be case-insensitive, got %v", errs)
	}
}
