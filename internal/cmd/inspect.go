package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/sketch-inspector/internal/bridge"
	"github.com/Iron-Ham/sketch-inspector/internal/companion"
	"github.com/Iron-Ham/sketch-inspector/internal/errors"
)

func newInstallCmd(flags *globalFlags) *cobra.Command {
	var force bool
	c := &cobra.Command{
		Use:   "install",
		Short: "Install the companion plugin into the Sketch plugin folder",
		Long: `Install writes the companion plugin bundle into the Sketch plugin folder.

The companion plugin opens, selects, saves and closes documents on request and
records a completion marker whenever another plugin's command finishes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			folder := cfg.Bridge.PluginFolder
			if folder == "" {
				folder = bridge.DefaultPluginFolder()
			}

			dst, err := companion.Install(folder, force)
			if err != nil {
				if errors.Is(err, errors.ErrAlreadyExists) {
					return fmt.Errorf("%w\nUse --force to replace it", err)
				}
				return err
			}

			return newPrinter(cmd, flags).emit(map[string]string{"installed": dst}, func(w io.Writer) {
				fmt.Fprintln(w, okStyle.Render("Installed")+" "+dst)
			})
		},
	}
	c.Flags().BoolVar(&force, "force", false, "replace an existing installation")
	return c
}

func newResetCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Close documents and clear scratch copies, markers and context",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context(), cmd, flags)
			if err != nil {
				return err
			}
			defer func() { _ = rt.logger.Close() }()

			if err := rt.inspector.Reset(cmd.Context()); err != nil {
				return err
			}
			return newPrinter(cmd, flags).emit(map[string]bool{"reset": true}, func(w io.Writer) {
				fmt.Fprintln(w, okStyle.Render("Reset"))
			})
		},
	}
}

// newListCmd builds the layers and pages commands.
func newListCmd(flags *globalFlags, name string) *cobra.Command {
	kind := bridge.KindLayers
	short := "List the pages and layers of a document"
	if name == "pages" {
		kind = bridge.KindPages
		short = "List the pages of a document"
	}

	return &cobra.Command{
		Use:   name + " <document>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDocument(cmd, flags, args[0], func(ctx context.Context, rt *runtime) error {
				listing, err := rt.inspector.List(ctx, kind)
				if err != nil {
					return err
				}
				return newPrinter(cmd, flags).emit(listing, func(w io.Writer) {
					renderListing(w, listing)
				})
			})
		},
	}
}

func newDumpCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "dump <document>",
		Short: "Print the full JSON snapshot of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDocument(cmd, flags, args[0], func(ctx context.Context, rt *runtime) error {
				snap, err := rt.inspector.Dump(ctx)
				if err != nil {
					return err
				}
				return newPrinter(cmd, flags).emit(snap, func(w io.Writer) {
					var buf bytes.Buffer
					if err := json.Indent(&buf, snap.Raw, "", "  "); err != nil {
						_, _ = w.Write(snap.Raw)
						return
					}
					fmt.Fprintln(w, buf.String())
				})
			})
		},
	}
}
