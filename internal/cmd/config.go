package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/sketch-inspector/internal/channel"
	"github.com/Iron-Ham/sketch-inspector/internal/completion"
	"github.com/Iron-Ham/sketch-inspector/internal/config"
)

// settableKeys maps each key accepted by 'config set' to its value type.
var settableKeys = map[string]string{
	"bridge.binary":               "string",
	"bridge.plugin_folder":        "string",
	"bridge.without_activating":   "bool",
	"channel.dir":                 "string",
	"completion.strategy":         "string",
	"completion.observer":         "string",
	"completion.settle_delay_ms":  "int",
	"completion.timeout_ms":       "int",
	"completion.fixed_delay_ms":   "int",
	"completion.save_delay_ms":    "int",
	"completion.poll_interval_ms": "int",
	"inspector.plugin":            "string",
	"inspector.open_delay_ms":     "int",
	"logging.enabled":             "bool",
	"logging.level":               "string",
	"logging.dir":                 "string",
}

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "View or modify sketch-inspector configuration",
		Long: `View or modify sketch-inspector configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
		RunE: runConfigShow,
	}

	configCmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Show current configuration",
			RunE:  runConfigShow,
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Set a configuration value",
			Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  sketch-inspector config set completion.strategy log
  sketch-inspector config set completion.timeout_ms 30000
  sketch-inspector config set bridge.binary /Applications/Sketch.app/Contents/MacOS/sketchtool`,
			Args: cobra.ExactArgs(2),
			RunE: runConfigSet,
		},
		&cobra.Command{
			Use:   "init",
			Short: "Create a default config file",
			RunE:  runConfigInit,
		},
		&cobra.Command{
			Use:   "path",
			Short: "Show the config file path",
			RunE:  runConfigPath,
		},
	)
	return configCmd
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "# Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintln(out, "# Config file: (none - using defaults)")
	}

	settings := viper.AllSettings()
	delete(settings, "config")
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}
	_, err = out.Write(data)
	return err
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	keyType, ok := settableKeys[key]
	if !ok {
		return fmt.Errorf("unknown configuration key: %s\nRun 'sketch-inspector config set --help' to see examples", key)
	}

	var typedValue any
	switch keyType {
	case "string":
		if err := validateEnum(key, value); err != nil {
			return err
		}
		typedValue = value
	case "bool":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		typedValue = b
	case "int":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: expected integer", key)
		}
		if n < 0 {
			return fmt.Errorf("invalid value for %s: must be non-negative", key)
		}
		typedValue = n
	}

	if err := os.MkdirAll(config.ConfigDir(), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	viper.Set(key, typedValue)
	configFile := config.ConfigFile()
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %v\nConfig saved to %s\n", key, typedValue, configFile)
	return nil
}

func validateEnum(key, value string) error {
	var valid []string
	switch key {
	case "completion.strategy":
		valid = channel.ValidMarkerStrategies()
	case "completion.observer":
		valid = completion.ValidObserverKinds()
	case "logging.level":
		valid = config.ValidLogLevels()
		value = strings.ToLower(value)
	default:
		return nil
	}
	if !slices.Contains(valid, value) {
		return fmt.Errorf("invalid value for %s: %s\nValid options: %s", key, value, strings.Join(valid, ", "))
	}
	return nil
}

const defaultConfigContent = `# sketch-inspector configuration

bridge:
  # sketchtool binary, a path or a name on PATH
  binary: sketchtool
  # Sketch plugin folder (empty: the user's Sketch plugin folder)
  plugin_folder: ""
  # Keep Sketch in the background while commands run
  without_activating: true

channel:
  # Shared channel directory (empty: Resources of the companion plugin)
  dir: ""

completion:
  # How command completion is evidenced: files, log, settle
  strategy: files
  # How markers are watched: fsnotify, poll
  observer: fsnotify
  # Wait after the first completion marker
  settle_delay_ms: 200
  # Give up on a command after this long
  timeout_ms: 60000
  # Whole wait of the settle strategy
  fixed_delay_ms: 12000
  # Wait after saving the document
  save_delay_ms: 200
  # Rescan interval of the poll observer
  poll_interval_ms: 50

inspector:
  # Companion plugin bundle name
  plugin: sketch-test-inspector
  # Wait after opening a document
  open_delay_ms: 1000

logging:
  # Write a log file
  enabled: false
  # debug, info, warn, error
  level: info
  # Log directory (empty: the config directory)
  dir: ""
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'sketch-inspector config set' to modify values", configFile)
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(configFile, []byte(defaultConfigContent), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created config file at %s\n", configFile)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", config.ConfigFile())
	}

	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	fmt.Fprintln(out, "  2. ./config.yaml (current directory)")
	fmt.Fprintln(out, "\nEnvironment variables: SKETCH_INSPECTOR_* (e.g., SKETCH_INSPECTOR_COMPLETION_STRATEGY)")
	return nil
}
