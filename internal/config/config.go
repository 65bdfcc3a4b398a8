package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Iron-Ham/sketch-inspector/internal/channel"
	"github.com/Iron-Ham/sketch-inspector/internal/completion"
)

// InspectorPluginName is the bundle name of the companion plugin.
const InspectorPluginName = "sketch-test-inspector"

// Config represents the complete inspector configuration
type Config struct {
	Bridge     BridgeConfig     `mapstructure:"bridge"`
	Channel    ChannelConfig    `mapstructure:"channel"`
	Completion CompletionConfig `mapstructure:"completion"`
	Inspector  InspectorConfig  `mapstructure:"inspector"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// BridgeConfig controls how the external tool is invoked
type BridgeConfig struct {
	// Binary is the tool path or a name looked up on PATH (default: "sketchtool")
	Binary string `mapstructure:"binary"`
	// PluginFolder overrides the application's plugin install directory.
	// Empty uses the user default.
	PluginFolder string `mapstructure:"plugin_folder"`
	// WithoutActivating keeps the application in the background (default: true)
	WithoutActivating bool `mapstructure:"without_activating"`
}

// ChannelConfig locates the shared channel
type ChannelConfig struct {
	// Dir is the channel root. Empty resolves to the Resources directory of
	// the installed companion plugin.
	Dir string `mapstructure:"dir"`
}

// CompletionConfig tunes completion detection
type CompletionConfig struct {
	// Strategy is how executed commands are evidenced.
	// Options: "files", "log", "settle" (default: "files")
	Strategy string `mapstructure:"strategy"`
	// Observer is how the marker region is watched.
	// Options: "fsnotify", "poll" (default: "fsnotify")
	Observer string `mapstructure:"observer"`
	// SettleDelayMs is waited after the first marker (default: 200)
	SettleDelayMs int `mapstructure:"settle_delay_ms"`
	// TimeoutMs bounds the wait for a marker (default: 60000)
	TimeoutMs int `mapstructure:"timeout_ms"`
	// FixedDelayMs is the whole wait of the settle strategy (default: 12000)
	FixedDelayMs int `mapstructure:"fixed_delay_ms"`
	// SaveDelayMs is waited after the post-command save (default: 200)
	SaveDelayMs int `mapstructure:"save_delay_ms"`
	// PollIntervalMs is the rescan interval of the poll observer (default: 50)
	PollIntervalMs int `mapstructure:"poll_interval_ms"`
}

// InspectorConfig controls the orchestrator
type InspectorConfig struct {
	// Plugin is the companion plugin bundle name
	Plugin string `mapstructure:"plugin"`
	// OpenDelayMs is waited after dispatching a document open (default: 1000)
	OpenDelayMs int `mapstructure:"open_delay_ms"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled writes a log file into Dir (default: false, logs go to stderr at warn)
	Enabled bool `mapstructure:"enabled"`
	// Level is the minimum log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// Dir is where the log file is written. Empty uses the config directory.
	Dir string `mapstructure:"dir"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Bridge: BridgeConfig{
			Binary:            "sketchtool",
			PluginFolder:      "",
			WithoutActivating: true,
		},
		Channel: ChannelConfig{
			Dir: "",
		},
		Completion: CompletionConfig{
			Strategy:       string(channel.MarkerFiles),
			Observer:       string(completion.ObserverFSNotify),
			SettleDelayMs:  int(completion.DefaultSettleDelay / time.Millisecond),
			TimeoutMs:      int(completion.DefaultTimeout / time.Millisecond),
			FixedDelayMs:   int(completion.DefaultFixedDelay / time.Millisecond),
			SaveDelayMs:    int(completion.DefaultSaveDelay / time.Millisecond),
			PollIntervalMs: int(completion.DefaultPollInterval / time.Millisecond),
		},
		Inspector: InspectorConfig{
			Plugin:      InspectorPluginName,
			OpenDelayMs: 1000,
		},
		Logging: LoggingConfig{
			Enabled: false,
			Level:   "info",
			Dir:     "",
		},
	}
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// DetectorOptions converts the completion section into detector options
func (c *CompletionConfig) DetectorOptions() completion.Options {
	return completion.Options{
		Strategy:     channel.MarkerStrategy(c.Strategy),
		Observer:     completion.ObserverKind(c.Observer),
		SettleDelay:  millis(c.SettleDelayMs),
		Timeout:      millis(c.TimeoutMs),
		FixedDelay:   millis(c.FixedDelayMs),
		SaveDelay:    millis(c.SaveDelayMs),
		PollInterval: millis(c.PollIntervalMs),
	}
}

// OpenDelay returns the open delay as a time.Duration
func (c *InspectorConfig) OpenDelay() time.Duration {
	return millis(c.OpenDelayMs)
}

// ResolveDir returns the channel root. If Dir is empty it is the Resources
// directory of the companion bundle inside pluginFolder.
func (c *ChannelConfig) ResolveDir(pluginFolder, plugin string) string {
	if c.Dir == "" {
		return filepath.Join(pluginFolder, plugin+".sketchplugin", "Contents", "Resources")
	}
	return expandHome(c.Dir)
}

// ResolveDir returns the log directory, defaulting to the config directory.
func (l *LoggingConfig) ResolveDir() string {
	if l.Dir == "" {
		return ConfigDir()
	}
	return expandHome(l.Dir)
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
	}
	return path
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Bridge defaults
	viper.SetDefault("bridge.binary", defaults.Bridge.Binary)
	viper.SetDefault("bridge.plugin_folder", defaults.Bridge.PluginFolder)
	viper.SetDefault("bridge.without_activating", defaults.Bridge.WithoutActivating)

	// Channel defaults
	viper.SetDefault("channel.dir", defaults.Channel.Dir)

	// Completion defaults
	viper.SetDefault("completion.strategy", defaults.Completion.Strategy)
	viper.SetDefault("completion.observer", defaults.Completion.Observer)
	viper.SetDefault("completion.settle_delay_ms", defaults.Completion.SettleDelayMs)
	viper.SetDefault("completion.timeout_ms", defaults.Completion.TimeoutMs)
	viper.SetDefault("completion.fixed_delay_ms", defaults.Completion.FixedDelayMs)
	viper.SetDefault("completion.save_delay_ms", defaults.Completion.SaveDelayMs)
	viper.SetDefault("completion.poll_interval_ms", defaults.Completion.PollIntervalMs)

	// Inspector defaults
	viper.SetDefault("inspector.plugin", defaults.Inspector.Plugin)
	viper.SetDefault("inspector.open_delay_ms", defaults.Inspector.OpenDelayMs)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads the configuration from v and validates it
func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "sketch-inspector")
	}
	// Fall back to ~/.config/sketch-inspector
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sketch-inspector"
	}
	return filepath.Join(home, ".config", "sketch-inspector")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
