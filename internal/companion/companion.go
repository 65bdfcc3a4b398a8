// Package companion embeds the responder plugin that runs inside the design
// application and installs it into a plugin folder.
package companion

import (
	"embed"
	"encoding/json"
	"io/fs"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/sketch-inspector/internal/bridge"
	"github.com/Iron-Ham/sketch-inspector/internal/channel"
	"github.com/Iron-Ham/sketch-inspector/internal/errors"
)

// BundleName is the directory name of the installed plugin.
const BundleName = "sketch-test-inspector.sketchplugin"

// PluginName is the name used to address the responder through the bridge.
const PluginName = "sketch-test-inspector"

// Responder handler identifiers.
const (
	HandlerOpenFile      = "openFile"
	HandlerReset         = "reset"
	HandlerSelectLayers  = "selectLayers"
	HandlerSaveDocument  = "saveDocument"
	HandlerCloseDocument = "closeDocument"
	HandlerRunScript     = "runScript"
	// HandlerRecordCommand is the action handler that records plugin command
	// markers.
	HandlerRecordCommand = "recordCommand"
)

// housekeeping lists the identifiers the responder's command logger skips.
// runScript is among them because it records its own marker.
var housekeeping = []string{
	HandlerOpenFile,
	HandlerReset,
	HandlerSelectLayers,
	HandlerSaveDocument,
	HandlerCloseDocument,
	HandlerRunScript,
	HandlerRecordCommand,
}

// Housekeeping reports whether the responder's command logger skips
// identifier, whichever plugin ran it.
func Housekeeping(identifier string) bool {
	return slices.Contains(housekeeping, identifier)
}

//go:embed all:bundle
var bundle embed.FS

const bundleRoot = "bundle/" + BundleName

// Manifest returns the embedded manifest.
func Manifest() (*bridge.Manifest, error) {
	data, err := bundle.ReadFile(path.Join(bundleRoot, "Contents", "Sketch", "manifest.json"))
	if err != nil {
		return nil, err
	}
	var m bridge.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Install writes the responder into the plugin folder on disk.
func Install(folder string, force bool) (string, error) {
	return InstallFs(afero.NewOsFs(), folder, force)
}

// InstallFs writes the responder bundle into folder on fsys and prepares its
// channel. An existing bundle is only replaced when force is set; its channel
// contents are reset either way.
func InstallFs(fsys afero.Fs, folder string, force bool) (string, error) {
	dst := filepath.Join(folder, BundleName)
	if ok, _ := afero.DirExists(fsys, dst); ok {
		if !force {
			return dst, errors.Wrapf(errors.ErrAlreadyExists, "responder already installed at %s", dst)
		}
		if err := fsys.RemoveAll(dst); err != nil {
			return "", errors.NewChannelError("remove", dst, err)
		}
	}

	err := fs.WalkDir(bundle, bundleRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(p, bundleRoot), "/")
		target := filepath.Join(dst, filepath.FromSlash(rel))
		if d.IsDir() {
			return fsys.MkdirAll(target, 0755)
		}
		data, err := bundle.ReadFile(p)
		if err != nil {
			return err
		}
		return afero.WriteFile(fsys, target, data, 0644)
	})
	if err != nil {
		return "", errors.NewChannelError("install", dst, err)
	}

	ch := channel.New(fsys, ResourcesDir(dst))
	if err := ch.Ensure(); err != nil {
		return "", err
	}
	if err := ch.ResetContext(); err != nil {
		return "", err
	}
	if err := ch.ClearMarkers(); err != nil {
		return "", err
	}
	return dst, nil
}

// ResourcesDir returns the channel root inside an installed bundle.
func ResourcesDir(bundleDir string) string {
	return filepath.Join(bundleDir, "Contents", "Resources")
}
