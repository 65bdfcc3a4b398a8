package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/sketch-inspector/internal/bridge"
	"github.com/Iron-Ham/sketch-inspector/internal/channel"
	"github.com/Iron-Ham/sketch-inspector/internal/config"
	"github.com/Iron-Ham/sketch-inspector/internal/inspector"
	"github.com/Iron-Ham/sketch-inspector/internal/logging"
)

// newBridge creates the bridge for a loaded config. Tests swap it for a
// simulated host.
var newBridge = func(cfg *config.Config) bridge.Bridge {
	return bridge.NewSketchtool(
		bridge.WithBinary(cfg.Bridge.Binary),
		bridge.WithPluginFolder(cfg.Bridge.PluginFolder),
		bridge.WithoutActivating(cfg.Bridge.WithoutActivating),
	)
}

// runtime is everything one command invocation needs.
type runtime struct {
	cfg       *config.Config
	logger    *logging.Logger
	inspector *inspector.Inspector
}

// loadConfig reads the configuration with the duration flags applied ahead
// of validation. Only flags given on the command line override the config.
func loadConfig(cmd *cobra.Command, flags *globalFlags) (*config.Config, error) {
	if cmd.Flags().Changed("settle") {
		viper.Set("completion.settle_delay_ms", int(flags.settle.Milliseconds()))
	}
	if cmd.Flags().Changed("timeout") {
		viper.Set("completion.timeout_ms", int(flags.timeout.Milliseconds()))
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) (*logging.Logger, error) {
	if cfg.Logging.Enabled {
		return logging.NewLogger(cfg.Logging.ResolveDir(), cfg.Logging.Level)
	}
	// Without a log file, info lines would drown the command output.
	level := logging.ParseLevel(cfg.Logging.Level)
	if level == logging.LevelInfo {
		level = logging.LevelWarn
	}
	return logging.NewWriterLogger(cmd.ErrOrStderr(), level), nil
}

// openRuntime loads the config and builds an Inspector over the channel of
// the installed companion plugin.
func openRuntime(ctx context.Context, cmd *cobra.Command, flags *globalFlags) (*runtime, error) {
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}

	b := newBridge(cfg)
	folder := cfg.Bridge.PluginFolder
	if folder == "" {
		if folder, err = b.PluginFolder(ctx); err != nil {
			_ = logger.Close()
			return nil, err
		}
	}
	ch := channel.NewOS(cfg.Channel.ResolveDir(folder, cfg.Inspector.Plugin))

	opts := inspector.Options{
		Detector:        cfg.Completion.DetectorOptions(),
		OpenDelay:       cfg.Inspector.OpenDelay(),
		InspectorPlugin: cfg.Inspector.Plugin,
	}
	insp, err := inspector.New(b, ch, opts, logger)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}
	return &runtime{cfg: cfg, logger: logger, inspector: insp}, nil
}

// withDocument opens path, runs fn, and resets the session afterwards so no
// document or scratch copy is left behind.
func withDocument(cmd *cobra.Command, flags *globalFlags, path string, fn func(ctx context.Context, rt *runtime) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := openRuntime(ctx, cmd, flags)
	if err != nil {
		return err
	}
	defer func() { _ = rt.logger.Close() }()
	defer func() {
		if err := rt.inspector.Reset(context.Background()); err != nil {
			rt.logger.Warn("reset after command failed", "error", err.Error())
		}
	}()

	if _, err := rt.inspector.OpenDocument(ctx, path); err != nil {
		return err
	}
	return fn(ctx, rt)
}
