// Package bridge wraps the external command-line tool that talks to the design
// application.
//
// The tool can resolve the application's plugin folder, ask the application to
// run a named plugin command, and read document state back as JSON. A returned
// Run call only means the request was accepted: the command may still be
// running inside the GUI process when Run returns. Detecting completion is the
// job of the completion package.
package bridge

import (
	"context"
	"fmt"
)

// Kind names a collection that List can return.
type Kind string

const (
	KindPages     Kind = "pages"
	KindLayers    Kind = "layers"
	KindArtboards Kind = "artboards"
	KindSlices    Kind = "slices"
)

// ParseKind validates a list kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindPages, KindLayers, KindArtboards, KindSlices:
		return k, nil
	default:
		return "", fmt.Errorf("unknown list kind %q (want pages, layers, artboards or slices)", s)
	}
}

// RunOptions tune a single dispatch.
type RunOptions struct {
	// Dir overrides the folder the plugin bundle is resolved from, so a plugin
	// can run in place without being installed into the application.
	Dir string

	// Context is passed to the tool's own context flag. The tool does not
	// deliver it reliably; the shared channel is the supported path.
	Context map[string]any
}

// Bridge is the surface of the external tool the inspector depends on.
type Bridge interface {
	// PluginFolder returns the application's plugin install directory.
	PluginFolder(ctx context.Context) (string, error)

	// Run asks the application to run identifier from plugin. It returns when
	// the request was accepted, never when the command finished.
	Run(ctx context.Context, plugin, identifier string, opts RunOptions) error

	// Dump returns the full structured state of the document at path.
	Dump(ctx context.Context, path string) (*Snapshot, error)

	// List returns the pages (and their layers) of the document at path.
	List(ctx context.Context, kind Kind, path string) (*Listing, error)
}
