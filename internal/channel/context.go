package channel

// Recognized context keys. Any other key is passed through untouched.
const (
	KeyFilePath = "filePath"
	KeyLayers   = "layers"
	KeyScript   = "script"
)

// Context is the merged key/value record the inspector hands to the responder.
type Context map[string]any

// LayerRef identifies a layer by its object ID.
type LayerRef struct {
	ID string `json:"id"`
}

// FilePathContext returns a record fragment naming the document to open.
func FilePathContext(path string) Context {
	return Context{KeyFilePath: path}
}

// LayersContext returns a record fragment naming the layers to select.
func LayersContext(ids []string) Context {
	refs := make([]LayerRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, LayerRef{ID: id})
	}
	return Context{KeyLayers: refs}
}

// ScriptContext returns a record fragment carrying an encoded script.
func ScriptContext(encoded string) Context {
	return Context{KeyScript: encoded}
}

// FilePath returns the filePath key, or "" when absent.
func (c Context) FilePath() string {
	s, _ := c[KeyFilePath].(string)
	return s
}

// Script returns the script key, or "" when absent.
func (c Context) Script() string {
	s, _ := c[KeyScript].(string)
	return s
}

// Layers returns the layer identifiers stored under the layers key, in order.
// It accepts both freshly built fragments and records decoded from JSON.
func (c Context) Layers() []string {
	switch v := c[KeyLayers].(type) {
	case []LayerRef:
		ids := make([]string, 0, len(v))
		for _, ref := range v {
			ids = append(ids, ref.ID)
		}
		return ids
	case []any:
		ids := make([]string, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if id, ok := m["id"].(string); ok {
				ids = append(ids, id)
			}
		}
		return ids
	default:
		return nil
	}
}
