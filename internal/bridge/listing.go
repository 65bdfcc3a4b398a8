package bridge

import (
	"encoding/json"
	"fmt"
)

// Listing is the result of a list call: every page with its layer tree.
type Listing struct {
	Pages []Page `json:"pages"`
}

// Page is a document page.
type Page struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Layers []Layer `json:"layers,omitempty"`
}

// Layer is a layer, possibly a group with children.
type Layer struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Layers []Layer `json:"layers,omitempty"`
}

// LayerNames returns the names of the page's top-level layers in order.
func (p Page) LayerNames() []string {
	names := make([]string, 0, len(p.Layers))
	for _, l := range p.Layers {
		names = append(names, l.Name)
	}
	return names
}

// LayerIDs returns the IDs of the page's top-level layers in order.
func (p Page) LayerIDs() []string {
	ids := make([]string, 0, len(p.Layers))
	for _, l := range p.Layers {
		ids = append(ids, l.ID)
	}
	return ids
}

// Page returns the page called name.
func (l *Listing) Page(name string) (*Page, bool) {
	for i := range l.Pages {
		if l.Pages[i].Name == name {
			return &l.Pages[i], true
		}
	}
	return nil, false
}


// Snapshot is the full document dump. Its schema belongs to the application,
// so it is kept raw and decoded on demand.
type Snapshot struct {
	Raw json.RawMessage
}

// Decode unmarshals the dump into v.
func (s *Snapshot) Decode(v any) error {
	if len(s.Raw) == 0 {
		return fmt.Errorf("empty document dump")
	}
	return json.Unmarshal(s.Raw, v)
}

// MarshalJSON returns the raw dump.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	if len(s.Raw) == 0 {
		return []byte("null"), nil
	}
	return s.Raw, nil
}
