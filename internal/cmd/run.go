package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/gobwas/glob"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/sketch-inspector/internal/bridge"
	"github.com/Iron-Ham/sketch-inspector/internal/channel"
	"github.com/Iron-Ham/sketch-inspector/internal/completion"
	"github.com/Iron-Ham/sketch-inspector/internal/inspector"
	"github.com/Iron-Ham/sketch-inspector/internal/script"
)

// runReport is the output of run and script.
type runReport struct {
	Plugin     string          `json:"plugin"`
	Command    string          `json:"command"`
	DispatchID string          `json:"dispatch_id"`
	ElapsedMs  int64           `json:"elapsed_ms"`
	Marker     *channel.Marker `json:"marker,omitempty"`
	Pages      []bridge.Page   `json:"pages"`
}

func newReport(res *completion.Result, listing *bridge.Listing) runReport {
	return runReport{
		Plugin:     res.Command.Plugin,
		Command:    res.Command.Identifier,
		DispatchID: res.DispatchID,
		ElapsedMs:  res.Elapsed().Milliseconds(),
		Marker:     res.Marker,
		Pages:      listing.Pages,
	}
}

func (r runReport) render(w io.Writer) {
	renderFields(w, [][2]string{
		{"plugin", r.Plugin},
		{"command", okStyle.Render(r.Command)},
		{"dispatch", r.DispatchID},
		{"elapsed", strconv.FormatInt(r.ElapsedMs, 10) + "ms"},
	})
	fmt.Fprintln(w)
	renderListing(w, &bridge.Listing{Pages: r.Pages})
}

func newRunCmd(flags *globalFlags) *cobra.Command {
	var (
		file  string
		dir   string
		ids   []string
		match string
		extra map[string]string
	)

	c := &cobra.Command{
		Use:   "run <plugin> <command>",
		Short: "Run a plugin command against a document and list the result",
		Long: `Run opens a scratch copy of the document, optionally selects layers, runs
the plugin command, waits until it has completed, saves, and prints the
resulting layers.

Examples:
  sketch-inspector run my-plugin renameAllRectangles --file Test.sketch
  sketch-inspector run my-plugin removeSelected --file Test.sketch --match 'Rect*'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			plugin, identifier := args[0], args[1]

			var matcher glob.Glob
			if match != "" {
				g, err := glob.Compile(match)
				if err != nil {
					return fmt.Errorf("invalid --match pattern %q: %w", match, err)
				}
				matcher = g
			}

			return withDocument(cmd, flags, file, func(ctx context.Context, rt *runtime) error {
				insp := rt.inspector
				if _, err := insp.SelectPlugin(ctx, plugin, dir); err != nil {
					return err
				}

				selection := ids
				if matcher != nil {
					listing, err := insp.ListLayers(ctx)
					if err != nil {
						return err
					}
					selection = append(selection, matchLayers(listing, matcher)...)
				}
				if len(selection) > 0 {
					if err := insp.SelectLayers(ctx, selection); err != nil {
						return err
					}
				}

				values := channel.Context{}
				for k, v := range extra {
					values[k] = v
				}
				res, err := insp.RunCommand(ctx, identifier, inspector.RunOptions{Context: values})
				if err != nil {
					return err
				}
				return report(ctx, cmd, flags, insp, res)
			})
		},
	}

	c.Flags().StringVarP(&file, "file", "f", "", "document to run the command against")
	c.Flags().StringVar(&dir, "dir", "", "plugin folder to resolve the plugin in")
	c.Flags().StringSliceVar(&ids, "select", nil, "layer IDs to select before running")
	c.Flags().StringVar(&match, "match", "", "select top-level layers whose name matches this glob")
	c.Flags().StringToStringVar(&extra, "context", nil, "extra context values (key=value)")
	_ = c.MarkFlagRequired("file")
	return c
}

func newScriptCmd(flags *globalFlags) *cobra.Command {
	var ops string

	c := &cobra.Command{
		Use:   "script <document>",
		Short: "Run a tagged script through the companion plugin",
		Long: `Script runs a list of layer operations (rename, select, remove, set-name)
inside Sketch through the companion plugin, with the same completion wait
as run.

The script file is YAML or JSON:
  version: 1
  ops:
    - kind: rename
      match: "Rect*"
      find: Rectangle
      replace: Circle`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := script.LoadFile(ops)
			if err != nil {
				return err
			}
			if err := s.Validate(); err != nil {
				return err
			}

			return withDocument(cmd, flags, args[0], func(ctx context.Context, rt *runtime) error {
				res, err := rt.inspector.RunScript(ctx, s)
				if err != nil {
					return err
				}
				return report(ctx, cmd, flags, rt.inspector, res)
			})
		},
	}

	c.Flags().StringVar(&ops, "ops", "", "script file (.yaml, .yml or .json)")
	_ = c.MarkFlagRequired("ops")
	return c
}

func report(ctx context.Context, cmd *cobra.Command, flags *globalFlags, insp *inspector.Inspector, res *completion.Result) error {
	listing, err := insp.ListLayers(ctx)
	if err != nil {
		return err
	}
	r := newReport(res, listing)
	return newPrinter(cmd, flags).emit(r, r.render)
}

// matchLayers returns the IDs of top-level layers whose names match g.
func matchLayers(listing *bridge.Listing, g glob.Glob) []string {
	var ids []string
	for _, page := range listing.Pages {
		for _, l := range page.Layers {
			if g.Match(l.Name) {
				ids = append(ids, l.ID)
			}
		}
	}
	return ids
}
