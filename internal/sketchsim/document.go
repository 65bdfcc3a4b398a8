// Package sketchsim is an in-process stand-in for the design application and
// its command-line tool.
//
// A Host implements bridge.Bridge over JSON fixture documents. It plays the
// in-app responder too: inspector handlers read the shared channel context,
// test plugin commands run asynchronously after a configurable latency, and
// completion markers are recorded into the channel the way the companion
// plugin records them. Documents are read back from disk, so only saved
// changes are visible to Dump and List.
package sketchsim

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/Iron-Ham/sketch-inspector/internal/bridge"
)

// Document is the fixture format: pages holding layer trees.
type Document struct {
	Pages []bridge.Page `json:"pages"`
}

// NewFixture returns a one-page document whose top-level layers carry names.
func NewFixture(names ...string) *Document {
	page := bridge.Page{ID: newID(), Name: "Page 1"}
	for _, name := range names {
		page.Layers = append(page.Layers, bridge.Layer{ID: newID(), Name: name})
	}
	return &Document{Pages: []bridge.Page{page}}
}

// WriteFixture stores doc at path on fs.
func WriteFixture(fs afero.Fs, path string, doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return afero.WriteFile(fs, path, data, 0644)
}

// ReadDocument loads a fixture from fs.
func ReadDocument(fs afero.Fs, path string) (*Document, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse document %s: %w", path, err)
	}
	return &doc, nil
}

// clone deep-copies the document through JSON.
func (d *Document) clone() *Document {
	data, _ := json.Marshal(d)
	var out Document
	_ = json.Unmarshal(data, &out)
	return &out
}

// listing renders the document as the tool's list output for kind.
func (d *Document) listing(kind bridge.Kind) *bridge.Listing {
	out := &bridge.Listing{}
	for _, p := range d.clone().Pages {
		switch kind {
		case bridge.KindPages:
			p.Layers = nil
		case bridge.KindArtboards, bridge.KindSlices:
			p.Layers = filterPrefix(p.Layers, string(kind))
		}
		out.Pages = append(out.Pages, p)
	}
	return out
}

// filterPrefix keeps layers whose name starts with the singular of kind, so a
// fixture can model artboards as "Artboard ..." layers.
func filterPrefix(layers []bridge.Layer, kind string) []bridge.Layer {
	prefix := strings.TrimSuffix(kind, "s")
	var kept []bridge.Layer
	for _, l := range layers {
		if strings.HasPrefix(strings.ToLower(l.Name), prefix) {
			kept = append(kept, l)
		}
	}
	return kept
}

func newID() string {
	return strings.ToUpper(uuid.NewString())
}
