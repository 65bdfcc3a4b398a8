package sketchsim

import (
	"slices"
	"strings"

	"github.com/Iron-Ham/sketch-inspector/internal/bridge"
	"github.com/Iron-Ham/sketch-inspector/internal/script"
)

// Editor mutates the open document's current page. It implements
// script.Target, so tagged scripts and Go test commands share one surface.
type Editor struct {
	open *openDocument
}

var _ script.Target = (*Editor)(nil)

func (e *Editor) page() *bridge.Page {
	if len(e.open.doc.Pages) == 0 {
		e.open.doc.Pages = append(e.open.doc.Pages, bridge.Page{ID: newID(), Name: "Page 1"})
	}
	return &e.open.doc.Pages[0]
}

// Layers implements script.Target.
func (e *Editor) Layers() []script.LayerRef {
	var refs []script.LayerRef
	for _, l := range e.page().Layers {
		refs = append(refs, script.LayerRef{ID: l.ID, Name: l.Name})
	}
	return refs
}

// SetName implements script.Target.
func (e *Editor) SetName(id, name string) {
	p := e.page()
	for i := range p.Layers {
		if p.Layers[i].ID == id {
			p.Layers[i].Name = name
		}
	}
}

// Remove implements script.Target.
func (e *Editor) Remove(ids []string) {
	p := e.page()
	p.Layers = slices.DeleteFunc(p.Layers, func(l bridge.Layer) bool { return slices.Contains(ids, l.ID) })
	e.open.selection = slices.DeleteFunc(e.open.selection, func(id string) bool { return slices.Contains(ids, id) })
}

// Selection implements script.Target.
func (e *Editor) Selection() []string {
	return slices.Clone(e.open.selection)
}

// Select implements script.Target. Unknown IDs are ignored.
func (e *Editor) Select(ids []string, extend bool) {
	if !extend {
		e.open.selection = nil
	}
	for _, id := range ids {
		if slices.ContainsFunc(e.page().Layers, func(l bridge.Layer) bool { return l.ID == id }) &&
			!slices.Contains(e.open.selection, id) {
			e.open.selection = append(e.open.selection, id)
		}
	}
}

// RenameAllRectangles renames every "Rectangle" layer to "Circle", keeping
// any numeric suffix.
func RenameAllRectangles(e *Editor) error {
	for _, l := range e.Layers() {
		if strings.HasPrefix(l.Name, "Rectangle") {
			e.SetName(l.ID, "Circle"+strings.TrimPrefix(l.Name, "Rectangle"))
		}
	}
	return nil
}

// RemoveSelected deletes the selected layers.
func RemoveSelected(e *Editor) error {
	e.Remove(e.Selection())
	return nil
}
