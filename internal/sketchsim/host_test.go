package sketchsim

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/sketch-inspector/internal/bridge"
	"github.com/Iron-Ham/sketch-inspector/internal/channel"
	"github.com/Iron-Ham/sketch-inspector/internal/companion"
	"github.com/Iron-Ham/sketch-inspector/internal/errors"
	"github.com/Iron-Ham/sketch-inspector/internal/script"
)

func newHost(t *testing.T, opts ...Option) (*Host, *channel.Channel) {
	t.Helper()
	folder := t.TempDir()
	ch := channel.NewOS(companion.ResourcesDir(filepath.Join(folder, companion.BundleName)))
	h, err := New(folder, ch, opts...)
	require.NoError(t, err)
	return h, ch
}

// openFixture writes a fixture and opens it through the responder handler.
func openFixture(t *testing.T, h *Host, ch *channel.Channel, doc *Document) string {
	t.Helper()
	path := filepath.Join(ch.Layout().ScratchDir(), "1-Test.sketch")
	require.NoError(t, WriteFixture(ch.Fs(), path, doc))
	require.NoError(t, ch.WriteContext(channel.FilePathContext(path), true))
	require.NoError(t, h.Run(context.Background(), companion.PluginName, companion.HandlerOpenFile, bridge.RunOptions{}))
	return path
}

func layerNames(t *testing.T, h *Host, path string) []string {
	t.Helper()
	listing, err := h.List(context.Background(), bridge.KindLayers, path)
	require.NoError(t, err)
	return listing.Pages[0].LayerNames()
}

func TestHost_CommandVisibleOnlyAfterSave(t *testing.T) {
	h, ch := newHost(t)
	_, err := h.InstallTestPlugin("test-plugin")
	require.NoError(t, err)
	path := openFixture(t, h, ch, NewFixture("Rectangle", "Rectangle 2", "Rectangle 3"))

	require.NoError(t, h.Run(context.Background(), "test-plugin", "renameAllRectangles", bridge.RunOptions{}))
	require.NoError(t, h.Wait())
	assert.Equal(t, []string{"Rectangle", "Rectangle 2", "Rectangle 3"}, layerNames(t, h, path), "unsaved changes leaked")

	require.NoError(t, h.Run(context.Background(), companion.PluginName, companion.HandlerSaveDocument, bridge.RunOptions{}))
	assert.Equal(t, []string{"Circle", "Circle 2", "Circle 3"}, layerNames(t, h, path))
}

func TestHost_RecordsMarkersInBothRegions(t *testing.T) {
	h, ch := newHost(t)
	_, err := h.InstallTestPlugin("test-plugin")
	require.NoError(t, err)
	openFixture(t, h, ch, NewFixture("Rectangle"))

	require.NoError(t, h.Run(context.Background(), "test-plugin", "renameAllRectangles", bridge.RunOptions{}))
	require.NoError(t, h.Wait())

	for _, strategy := range []channel.MarkerStrategy{channel.MarkerFiles, channel.MarkerLog} {
		markers, err := ch.MarkerStore(strategy).List()
		require.NoError(t, err)
		require.Len(t, markers, 1, strategy)
		assert.Equal(t, "renameAllRectangles", markers[0].Command)
	}

	// Housekeeping handlers never record.
	require.NoError(t, h.Run(context.Background(), companion.PluginName, companion.HandlerSaveDocument, bridge.RunOptions{}))
	markers, _ := ch.MarkerStore(channel.MarkerFiles).List()
	assert.Len(t, markers, 1)
}

func TestHost_LatencyAndDrop(t *testing.T) {
	h, ch := newHost(t, WithLatency(30*time.Millisecond), WithDropMarkers())
	_, err := h.InstallTestPlugin("test-plugin")
	require.NoError(t, err)
	openFixture(t, h, ch, NewFixture("Rectangle"))

	start := time.Now()
	require.NoError(t, h.Run(context.Background(), "test-plugin", "renameAllRectangles", bridge.RunOptions{}))
	assert.Less(t, time.Since(start), 30*time.Millisecond, "Run must not wait for the command")
	require.NoError(t, h.Wait())

	markers, _ := ch.MarkerStore(channel.MarkerFiles).List()
	assert.Empty(t, markers)
}

func TestHost_SelectAndRemove(t *testing.T) {
	h, ch := newHost(t)
	_, err := h.InstallTestPlugin("test-plugin")
	require.NoError(t, err)
	doc := NewFixture("A", "B", "C")
	path := openFixture(t, h, ch, doc)
	ids := doc.Pages[0].LayerIDs()

	require.NoError(t, ch.WriteContext(channel.LayersContext([]string{ids[0], ids[2]}), true))
	require.NoError(t, h.Run(context.Background(), companion.PluginName, companion.HandlerSelectLayers, bridge.RunOptions{}))
	assert.Equal(t, []string{ids[0], ids[2]}, h.Selection())

	require.NoError(t, ch.WriteContext(channel.LayersContext([]string{ids[1]}), true))
	require.NoError(t, h.Run(context.Background(), companion.PluginName, companion.HandlerSelectLayers, bridge.RunOptions{}))
	assert.Equal(t, []string{ids[1]}, h.Selection(), "first id replaces the selection")

	require.NoError(t, h.Run(context.Background(), "test-plugin", "removeSelected", bridge.RunOptions{}))
	require.NoError(t, h.Wait())
	require.NoError(t, h.Run(context.Background(), companion.PluginName, companion.HandlerSaveDocument, bridge.RunOptions{}))
	assert.Equal(t, []string{"A", "C"}, layerNames(t, h, path))
}

func TestHost_RunScript(t *testing.T) {
	h, ch := newHost(t)
	path := openFixture(t, h, ch, NewFixture("Rectangle", "Oval"))

	encoded, err := script.New(script.Rename("Rect*", "Rectangle", "Square")).Encode()
	require.NoError(t, err)
	require.NoError(t, ch.WriteContext(channel.ScriptContext(encoded), true))
	require.NoError(t, h.Run(context.Background(), companion.PluginName, companion.HandlerRunScript, bridge.RunOptions{}))
	require.NoError(t, h.Wait())
	require.NoError(t, h.Run(context.Background(), companion.PluginName, companion.HandlerSaveDocument, bridge.RunOptions{}))

	assert.Equal(t, []string{"Square", "Oval"}, layerNames(t, h, path))
	markers, _ := ch.MarkerStore(channel.MarkerFiles).List()
	require.Len(t, markers, 1)
	assert.Equal(t, companion.HandlerRunScript, markers[0].Command)
}

func TestHost_RunScriptFailureRecordsMarker(t *testing.T) {
	tests := []struct {
		name    string
		encoded string
	}{
		{"unsupported version", `{"version":2,"ops":[{"kind":"remove-selection"}]}`},
		{"unknown op", `{"version":1,"ops":[{"kind":"explode"}]}`},
		{"unreadable", `{"version":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, ch := newHost(t)
			path := openFixture(t, h, ch, NewFixture("Rectangle", "Oval"))

			require.NoError(t, ch.WriteContext(channel.ScriptContext(tt.encoded), true))
			err := h.Run(context.Background(), companion.PluginName, companion.HandlerRunScript, bridge.RunOptions{})
			require.NoError(t, err, "the dispatch itself is accepted")
			require.NoError(t, h.Wait())

			for _, strategy := range []channel.MarkerStrategy{channel.MarkerFiles, channel.MarkerLog} {
				markers, err := ch.MarkerStore(strategy).List()
				require.NoError(t, err)
				require.Len(t, markers, 1, "strategy %s", strategy)
				assert.Equal(t, companion.HandlerRunScript, markers[0].Command)
				assert.True(t, markers[0].Failed(), "strategy %s", strategy)
			}

			require.NoError(t, h.Run(context.Background(), companion.PluginName, companion.HandlerSaveDocument, bridge.RunOptions{}))
			assert.Equal(t, []string{"Rectangle", "Oval"}, layerNames(t, h, path))
		})
	}
}

func TestHost_HousekeepingNamesRecordNothing(t *testing.T) {
	h, ch := newHost(t)
	_, err := h.InstallPlugin("other", "com.example.other", map[string]Command{
		"reset": func(*Editor) error { return nil },
	})
	require.NoError(t, err)
	openFixture(t, h, ch, NewFixture("A"))

	require.NoError(t, h.Run(context.Background(), "other", "reset", bridge.RunOptions{}))
	require.NoError(t, h.Wait())

	markers, err := ch.MarkerStore(channel.MarkerFiles).List()
	require.NoError(t, err)
	assert.Empty(t, markers, "the logger skips housekeeping names from any plugin")
}

func TestHost_Errors(t *testing.T) {
	h, ch := newHost(t)
	_, err := h.InstallTestPlugin("test-plugin")
	require.NoError(t, err)

	err = h.Run(context.Background(), "missing-plugin", "x", bridge.RunOptions{})
	assert.True(t, errors.Is(err, errors.ErrPluginNotFound))

	err = h.Run(context.Background(), "test-plugin", "nope", bridge.RunOptions{})
	assert.True(t, errors.Is(err, errors.ErrCommandFailed))

	h.FailNext("renameAllRectangles", errors.New("exit status 1"))
	err = h.Run(context.Background(), "test-plugin", "renameAllRectangles", bridge.RunOptions{})
	assert.True(t, errors.Is(err, errors.ErrCommandFailed))

	_, err = h.Dump(context.Background(), filepath.Join(ch.Layout().ScratchDir(), "closed.sketch"))
	assert.Error(t, err, "dump requires the document to be open")

	path := openFixture(t, h, ch, NewFixture("A"))
	snap, err := h.Dump(context.Background(), path)
	require.NoError(t, err)
	var doc Document
	require.NoError(t, snap.Decode(&doc))
	assert.Len(t, doc.Pages, 1)

	require.NoError(t, h.Run(context.Background(), companion.PluginName, companion.HandlerCloseDocument, bridge.RunOptions{}))
	assert.Empty(t, h.OpenPath())
}

func TestDocument_Listing(t *testing.T) {
	doc := NewFixture("Artboard 1", "Rectangle", "Slice 1")

	pages := doc.listing(bridge.KindPages)
	assert.Empty(t, pages.Pages[0].Layers)
	assert.Equal(t, "Page 1", pages.Pages[0].Name)

	assert.Equal(t, []string{"Artboard 1"}, doc.listing(bridge.KindArtboards).Pages[0].LayerNames())
	assert.Equal(t, []string{"Slice 1"}, doc.listing(bridge.KindSlices).Pages[0].LayerNames())
	assert.Len(t, doc.Pages[0].Layers, 3, "listing must not mutate the document")
}
