package sketchsim

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/Iron-Ham/sketch-inspector/internal/bridge"
	"github.com/Iron-Ham/sketch-inspector/internal/channel"
	"github.com/Iron-Ham/sketch-inspector/internal/companion"
	"github.com/Iron-Ham/sketch-inspector/internal/errors"
	"github.com/Iron-Ham/sketch-inspector/internal/script"
)

// Command is a test plugin command run against the open document.
type Command func(e *Editor) error

// Call records one accepted dispatch.
type Call struct {
	Plugin     string
	Identifier string
	At         time.Time
}

type commandKey struct {
	plugin     string
	identifier string
}

type openDocument struct {
	path      string
	doc       *Document
	selection []string
}

// Host is a simulated application plus command-line tool.
type Host struct {
	folder  string
	channel *channel.Channel
	stores  []channel.MarkerStore
	latency time.Duration
	drop    bool

	mu       sync.Mutex
	commands map[commandKey]Command
	open     *openDocument
	calls    []Call
	failures map[string]error
	cmdErrs  []error

	wg conc.WaitGroup
}

// Option configures a Host.
type Option func(*Host)

// WithLatency delays command execution and its marker, the way a busy GUI
// process finishes after the dispatch returned.
func WithLatency(d time.Duration) Option {
	return func(h *Host) { h.latency = d }
}

// WithDropMarkers runs commands but never records a marker, modelling a
// responder that is not installed or crashed.
func WithDropMarkers() Option {
	return func(h *Host) { h.drop = true }
}

// New creates a host over the plugin folder and installs the responder bundle
// into it. Markers are recorded in both marker regions, as the companion
// plugin does.
func New(folder string, ch *channel.Channel, opts ...Option) (*Host, error) {
	h := &Host{
		folder:   folder,
		channel:  ch,
		commands: make(map[commandKey]Command),
		failures: make(map[string]error),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.stores = []channel.MarkerStore{
		ch.MarkerStore(channel.MarkerFiles),
		ch.MarkerStore(channel.MarkerLog),
	}

	if _, err := companion.InstallFs(ch.Fs(), folder, true); err != nil {
		return nil, fmt.Errorf("install responder: %w", err)
	}
	return h, nil
}

// Register adds a test plugin command.
func (h *Host) Register(plugin, identifier string, fn Command) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commands[commandKey{bridge.BundleName(plugin), identifier}] = fn
}

// InstallPlugin writes a plugin bundle with a manifest into the plugin folder
// and registers its commands.
func (h *Host) InstallPlugin(name, identifier string, commands map[string]Command) (string, error) {
	dir := filepath.Join(h.folder, bridge.BundleName(name))
	m := bridge.Manifest{Name: name, Identifier: identifier}
	for id, fn := range commands {
		m.Commands = append(m.Commands, bridge.ManifestCommand{Identifier: id, Script: "plugin.js", Handler: id})
		h.Register(name, id, fn)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", err
	}
	fs := h.channel.Fs()
	if err := fs.MkdirAll(filepath.Dir(bridge.ManifestPath(dir)), 0755); err != nil {
		return "", err
	}
	if err := writeFile(h.channel, bridge.ManifestPath(dir), data); err != nil {
		return "", err
	}
	return dir, nil
}

// InstallTestPlugin installs the example plugin with renameAllRectangles and
// removeSelected.
func (h *Host) InstallTestPlugin(name string) (string, error) {
	return h.InstallPlugin(name, "com.example."+name, map[string]Command{
		"renameAllRectangles": RenameAllRectangles,
		"removeSelected":      RemoveSelected,
	})
}

// FailNext makes the next dispatch of identifier fail at the tool level.
func (h *Host) FailNext(identifier string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures[identifier] = err
}

// Calls returns every accepted dispatch in order.
func (h *Host) Calls() []Call {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Call(nil), h.calls...)
}

// OpenPath returns the path of the document open in the host.
func (h *Host) OpenPath() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.open == nil {
		return ""
	}
	return h.open.path
}

// Selection returns the selected layer IDs of the open document.
func (h *Host) Selection() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.open == nil {
		return nil
	}
	return append([]string(nil), h.open.selection...)
}

// Wait blocks until every in-flight command finished and returns their
// errors joined.
func (h *Host) Wait() error {
	h.wg.Wait()
	h.mu.Lock()
	defer h.mu.Unlock()
	return errors.Join(h.cmdErrs...)
}

// PluginFolder implements bridge.Bridge.
func (h *Host) PluginFolder(context.Context) (string, error) {
	return h.folder, nil
}

// Run implements bridge.Bridge. It returns once the dispatch is accepted.
func (h *Host) Run(ctx context.Context, plugin, identifier string, opts bridge.RunOptions) error {
	folder := opts.Dir
	if folder == "" {
		folder = h.folder
	}
	if ok, _ := dirExists(h.channel, filepath.Join(folder, bridge.BundleName(plugin))); !ok {
		return errors.NewNotFoundError("plugin", filepath.Join(folder, bridge.BundleName(plugin))).
			WithCause(errors.ErrPluginNotFound)
	}

	h.mu.Lock()
	if err, ok := h.failures[identifier]; ok {
		delete(h.failures, identifier)
		h.mu.Unlock()
		return errors.NewCommandError(plugin, identifier, err).WithOutput("sketchtool: simulated failure")
	}
	h.calls = append(h.calls, Call{Plugin: plugin, Identifier: identifier, At: time.Now()})
	h.mu.Unlock()

	if bridge.BundleName(plugin) == companion.BundleName {
		return h.handle(identifier)
	}

	h.mu.Lock()
	fn, ok := h.commands[commandKey{bridge.BundleName(plugin), identifier}]
	h.mu.Unlock()
	if !ok {
		return errors.NewCommandError(plugin, identifier, fmt.Errorf("unknown command")).
			WithOutput(fmt.Sprintf("Plugin '%s' has no command with identifier '%s'", plugin, identifier))
	}

	h.wg.Go(func() {
		h.execute(identifier, fn)
	})
	return nil
}

// execute runs a document mutation after the latency and records its marker.
func (h *Host) execute(identifier string, fn Command) {
	h.pause()

	h.mu.Lock()
	var err error
	if h.open == nil {
		err = fmt.Errorf("%s: no document open", identifier)
	} else {
		err = fn(&Editor{open: h.open})
	}
	if err != nil {
		h.cmdErrs = append(h.cmdErrs, err)
	}
	h.mu.Unlock()

	// The responder's finish-action logger skips these names for every plugin.
	if companion.Housekeeping(identifier) {
		return
	}
	h.record(identifier, nil)
}

// runScript applies an encoded script the way the responder does. A script
// that cannot be decoded or applied still records a marker carrying the
// reason.
func (h *Host) runScript(encoded string) {
	h.pause()

	s, err := script.Decode(encoded)
	if err == nil {
		h.mu.Lock()
		if h.open == nil {
			err = fmt.Errorf("no document open")
		} else {
			err = script.Apply(s, &Editor{open: h.open})
		}
		h.mu.Unlock()
	}
	h.record(companion.HandlerRunScript, err)
}

func (h *Host) pause() {
	if h.latency > 0 {
		time.Sleep(h.latency)
	}
}

// record writes a marker for identifier into every region. A non-nil failure
// becomes the marker's error.
func (h *Host) record(identifier string, failure error) {
	if h.drop {
		return
	}
	at := time.Now()
	for _, store := range h.stores {
		var err error
		if failure != nil {
			_, err = store.RecordFailure(identifier, at, failure.Error())
		} else {
			_, err = store.Record(identifier, at)
		}
		if err != nil {
			h.mu.Lock()
			h.cmdErrs = append(h.cmdErrs, err)
			h.mu.Unlock()
		}
	}
}

// handle serves the responder's own handlers.
func (h *Host) handle(identifier string) error {
	ctx, err := h.channel.ReadContext()
	if err != nil {
		return errors.NewCommandError(companion.PluginName, identifier, err)
	}

	switch identifier {
	case companion.HandlerOpenFile:
		path := ctx.FilePath()
		if path == "" {
			return nil
		}
		doc, err := ReadDocument(h.channel.Fs(), path)
		if err != nil {
			return errors.NewCommandError(companion.PluginName, identifier, err)
		}
		h.mu.Lock()
		h.open = &openDocument{path: path, doc: doc}
		h.mu.Unlock()

	case companion.HandlerReset:
		h.mu.Lock()
		h.open = nil
		h.mu.Unlock()

	case companion.HandlerSelectLayers:
		ids := ctx.Layers()
		h.mu.Lock()
		if h.open != nil {
			e := &Editor{open: h.open}
			for i, id := range ids {
				e.Select([]string{id}, i > 0)
			}
		}
		h.mu.Unlock()

	case companion.HandlerSaveDocument:
		h.mu.Lock()
		open := h.open
		var data []byte
		if open != nil {
			data, err = json.MarshalIndent(open.doc, "", "  ")
		}
		h.mu.Unlock()
		if open == nil {
			return nil
		}
		if err != nil {
			return err
		}
		return writeFile(h.channel, open.path, data)

	case companion.HandlerCloseDocument:
		h.mu.Lock()
		h.open = nil
		h.mu.Unlock()

	case companion.HandlerRunScript:
		encoded := ctx.Script()
		h.wg.Go(func() {
			h.runScript(encoded)
		})

	default:
		return errors.NewCommandError(companion.PluginName, identifier, fmt.Errorf("unknown handler"))
	}
	return nil
}

// Dump implements bridge.Bridge. It reads the saved file, not the in-memory
// document.
func (h *Host) Dump(_ context.Context, path string) (*bridge.Snapshot, error) {
	doc, err := h.saved("dump", path)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return &bridge.Snapshot{Raw: data}, nil
}

// List implements bridge.Bridge.
func (h *Host) List(_ context.Context, kind bridge.Kind, path string) (*bridge.Listing, error) {
	doc, err := h.saved("list "+string(kind), path)
	if err != nil {
		return nil, err
	}
	return doc.listing(kind), nil
}

func (h *Host) saved(op, path string) (*Document, error) {
	h.mu.Lock()
	open := h.open != nil && h.open.path == path
	h.mu.Unlock()
	if !open {
		return nil, errors.NewCommandError("", op, fmt.Errorf("document %s is not open", path))
	}
	doc, err := ReadDocument(h.channel.Fs(), path)
	if err != nil {
		return nil, errors.NewCommandError("", op, err)
	}
	return doc, nil
}

func dirExists(ch *channel.Channel, dir string) (bool, error) {
	info, err := ch.Fs().Stat(dir)
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

func writeFile(ch *channel.Channel, path string, data []byte) error {
	f, err := ch.Fs().Create(path)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
