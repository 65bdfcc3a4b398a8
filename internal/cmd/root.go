package cmd

import (
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/sketch-inspector/internal/config"
)

// globalFlags holds persistent flags that are not viper keys.
type globalFlags struct {
	jsonOut bool
	settle  time.Duration
	timeout time.Duration
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "sketch-inspector",
		Short: "Run Sketch plugin commands and inspect the resulting document",
		Long: `sketch-inspector drives a running Sketch through sketchtool: it opens a
scratch copy of a document, runs a plugin command, waits until the command
has really finished, saves, and reports the document's layers.

Completion is detected through markers written by the companion plugin.
Install it once with 'sketch-inspector install'.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		initConfig()
	}

	pf := root.PersistentFlags()
	pf.StringP("config", "c", "", "config file (default is $HOME/.config/sketch-inspector/config.yaml)")
	pf.String("plugin-folder", "", "Sketch plugin folder")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.String("strategy", "", "completion strategy (files, log, settle)")
	pf.String("observer", "", "marker observer (fsnotify, poll)")
	pf.DurationVar(&flags.settle, "settle", 0, "settle delay after the completion marker")
	pf.DurationVar(&flags.timeout, "timeout", 0, "upper bound on waiting for a command")
	pf.BoolVar(&flags.jsonOut, "json", false, "write JSON output")

	_ = viper.BindPFlag("config", pf.Lookup("config"))
	_ = viper.BindPFlag("bridge.plugin_folder", pf.Lookup("plugin-folder"))
	_ = viper.BindPFlag("logging.level", pf.Lookup("log-level"))
	_ = viper.BindPFlag("completion.strategy", pf.Lookup("strategy"))
	_ = viper.BindPFlag("completion.observer", pf.Lookup("observer"))

	root.AddCommand(
		newInstallCmd(flags),
		newResetCmd(flags),
		newListCmd(flags, "layers"),
		newListCmd(flags, "pages"),
		newDumpCmd(flags),
		newRunCmd(flags),
		newScriptCmd(flags),
		newConfigCmd(),
	)
	return root
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("SKETCH_INSPECTOR")
	// e.g., SKETCH_INSPECTOR_COMPLETION_TIMEOUT_MS for completion.timeout_ms
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
