package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Iron-Ham/sketch-inspector/internal/bridge"
)

var (
	pageStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	layerStyle = lipgloss.NewStyle()
	idStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Width(12)
)

// printer writes either JSON or styled text depending on the output stream.
type printer struct {
	w      io.Writer
	asJSON bool
}

func newPrinter(cmd *cobra.Command, flags *globalFlags) *printer {
	w := cmd.OutOrStdout()
	return &printer{w: w, asJSON: flags.jsonOut || !isTerminal(w)}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// emit writes v as indented JSON, or calls human for terminal output.
func (p *printer) emit(v any, human func(w io.Writer)) error {
	if !p.asJSON {
		human(p.w)
		return nil
	}
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderListing prints pages and their layer trees.
func renderListing(w io.Writer, listing *bridge.Listing) {
	for _, page := range listing.Pages {
		fmt.Fprintln(w, pageStyle.Render(page.Name)+" "+idStyle.Render(page.ID))
		renderLayers(w, page.Layers, 1)
	}
}

func renderLayers(w io.Writer, layers []bridge.Layer, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, l := range layers {
		fmt.Fprintln(w, indent+layerStyle.Render(l.Name)+" "+idStyle.Render(l.ID))
		renderLayers(w, l.Layers, depth+1)
	}
}

// renderFields prints aligned label/value pairs.
func renderFields(w io.Writer, fields [][2]string) {
	for _, f := range fields {
		fmt.Fprintln(w, labelStyle.Render(f[0])+f[1])
	}
}
