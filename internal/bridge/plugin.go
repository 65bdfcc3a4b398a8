package bridge

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/Iron-Ham/sketch-inspector/internal/errors"
)

// BundleExtension is the directory suffix of a plugin bundle.
const BundleExtension = ".sketchplugin"

// PluginFolderEnv overrides the plugin folder when set.
const PluginFolderEnv = "SKETCH_PLUGIN_FOLDER"

// Manifest is the subset of a plugin manifest the inspector reads.
type Manifest struct {
	Name       string            `json:"name"`
	Identifier string            `json:"identifier"`
	Version    string            `json:"version,omitempty"`
	Commands   []ManifestCommand `json:"commands,omitempty"`
}

// ManifestCommand describes one command a plugin exposes.
type ManifestCommand struct {
	Name       string `json:"name,omitempty"`
	Identifier string `json:"identifier"`
	Script     string `json:"script,omitempty"`
	Handler    string `json:"handler,omitempty"`
}

// DefaultPluginFolder returns the plugin folder of the application for the
// current user, honoring PluginFolderEnv.
func DefaultPluginFolder() string {
	if dir := os.Getenv(PluginFolderEnv); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, "Library", "Application Support", "com.bohemiancoding.sketch3", "Plugins")
}

// BundleName appends the bundle extension to name when it is missing.
func BundleName(name string) string {
	if strings.HasSuffix(name, BundleExtension) {
		return name
	}
	return name + BundleExtension
}

// ResolvePluginDirectory returns the bundle directory of plugin name inside
// folder.
func ResolvePluginDirectory(folder, name string) (string, error) {
	dir := filepath.Join(folder, BundleName(name))
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", errors.NewNotFoundError("plugin", dir).WithCause(errors.ErrPluginNotFound)
	}
	return dir, nil
}

// ManifestPath returns the manifest location inside a bundle.
func ManifestPath(pluginDir string) string {
	return filepath.Join(pluginDir, "Contents", "Sketch", "manifest.json")
}

// ReadManifest loads and validates the manifest of the bundle at pluginDir.
func ReadManifest(pluginDir string) (*Manifest, error) {
	path := ManifestPath(pluginDir)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewManifestError(path, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.NewManifestError(path, err)
	}
	if m.Name == "" {
		return nil, errors.NewManifestError(path, errors.New("manifest has no name"))
	}
	return &m, nil
}
