package companion

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/sketch-inspector/internal/bridge"
	"github.com/Iron-Ham/sketch-inspector/internal/errors"
)

func TestManifest(t *testing.T) {
	m, err := Manifest()
	require.NoError(t, err)
	assert.Equal(t, PluginName, m.Name)
	var declared []string
	for _, c := range m.Commands {
		declared = append(declared, c.Identifier)
	}
	assert.ElementsMatch(t, housekeeping, declared, "every responder command is skipped by its own logger")
}

func TestHousekeeping(t *testing.T) {
	assert.True(t, Housekeeping(HandlerSaveDocument))
	assert.True(t, Housekeeping(HandlerRunScript), "scripts record their own marker")
	assert.True(t, Housekeeping(HandlerRecordCommand))
	assert.False(t, Housekeeping("renameAllRectangles"))
}

func TestInstallFs(t *testing.T) {
	fs := afero.NewMemMapFs()

	dst, err := InstallFs(fs, "/plugins", false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/plugins", BundleName), dst)

	for _, rel := range []string{
		"Contents/Sketch/manifest.json",
		"Contents/Sketch/plugin.js",
		"Contents/Resources/context.json",
		"Contents/Resources/actions.json",
	} {
		ok, _ := afero.Exists(fs, filepath.Join(dst, rel))
		assert.True(t, ok, "missing %s", rel)
	}
	for _, rel := range []string{"Contents/Resources/actions", "Contents/Resources/tmp"} {
		ok, _ := afero.DirExists(fs, filepath.Join(dst, rel))
		assert.True(t, ok, "missing dir %s", rel)
	}

	ctx, _ := afero.ReadFile(fs, filepath.Join(dst, "Contents/Resources/context.json"))
	assert.Equal(t, "{}", string(ctx))
}

func TestInstallFs_Existing(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := InstallFs(fs, "/plugins", false)
	require.NoError(t, err)

	stray := filepath.Join("/plugins", BundleName, "Contents/Sketch/old.js")
	require.NoError(t, afero.WriteFile(fs, stray, []byte("x"), 0644))

	_, err = InstallFs(fs, "/plugins", false)
	assert.True(t, errors.Is(err, errors.ErrAlreadyExists))

	_, err = InstallFs(fs, "/plugins", true)
	require.NoError(t, err)
	ok, _ := afero.Exists(fs, stray)
	assert.False(t, ok, "forced install should replace the bundle")
}

func TestInstall_ReadableByBridge(t *testing.T) {
	folder := t.TempDir()
	_, err := Install(folder, false)
	require.NoError(t, err)

	dir, err := bridge.ResolvePluginDirectory(folder, PluginName)
	require.NoError(t, err)
	m, err := bridge.ReadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, "com.sketch-inspector.responder", m.Identifier)
}
