package script

import (
	"slices"
	"strings"

	"github.com/gobwas/glob"
)

// Matcher compiles the op's name pattern. An empty pattern matches every name.
func Matcher(op Op) (glob.Glob, error) {
	pattern := op.Match
	if pattern == "" {
		pattern = "*"
	}
	return glob.Compile(pattern)
}

// Target is the document surface operations are applied to. It is
// implemented by the simulated host; the embedded responder applies the same
// rules inside the GUI process.
type Target interface {
	// Layers returns the top-level layers of the current page in order.
	Layers() []LayerRef
	SetName(id, name string)
	Remove(ids []string)
	Selection() []string
	Select(ids []string, extend bool)
}

// LayerRef is a layer as seen by a script.
type LayerRef struct {
	ID   string
	Name string
}

// Apply runs every operation of s against t in order.
func Apply(s *Script, t Target) error {
	if err := s.Validate(); err != nil {
		return err
	}
	for _, op := range s.Ops {
		if err := applyOp(op, t); err != nil {
			return err
		}
	}
	return nil
}

func applyOp(op Op, t Target) error {
	switch op.Kind {
	case KindRename:
		g, err := Matcher(op)
		if err != nil {
			return err
		}
		for _, l := range t.Layers() {
			if g.Match(l.Name) {
				t.SetName(l.ID, strings.ReplaceAll(l.Name, op.Find, op.Replace))
			}
		}
	case KindRemoveSelection:
		t.Remove(t.Selection())
	case KindRemove:
		t.Remove(op.IDs)
	case KindSelect:
		ids := op.IDs
		if len(ids) == 0 {
			g, err := Matcher(op)
			if err != nil {
				return err
			}
			for _, l := range t.Layers() {
				if g.Match(l.Name) {
					ids = append(ids, l.ID)
				}
			}
		}
		for i, id := range ids {
			t.Select([]string{id}, i > 0)
		}
	case KindSetName:
		known := t.Layers()
		for _, id := range op.IDs {
			if slices.ContainsFunc(known, func(l LayerRef) bool { return l.ID == id }) {
				t.SetName(id, op.Name)
			}
		}
	}
	return nil
}
