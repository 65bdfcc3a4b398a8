// Package inspector drives plugin tests against the design application.
//
// An Inspector owns the session (selected plugin, open document) and composes
// the bridge, the shared channel and the completion detector: documents are
// opened from a scratch copy, commands are dispatched and awaited until their
// completion marker settles, and the document is saved so later reads observe
// the mutation.
//
// Calls are serialized. Running commands concurrently against one document is
// not supported.
package inspector

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/Iron-Ham/sketch-inspector/internal/bridge"
	"github.com/Iron-Ham/sketch-inspector/internal/channel"
	"github.com/Iron-Ham/sketch-inspector/internal/companion"
	"github.com/Iron-Ham/sketch-inspector/internal/completion"
	"github.com/Iron-Ham/sketch-inspector/internal/errors"
	"github.com/Iron-Ham/sketch-inspector/internal/logging"
	"github.com/Iron-Ham/sketch-inspector/internal/script"
)

// DefaultOpenDelay is waited after dispatching a document open.
const DefaultOpenDelay = time.Second

// Options configure an Inspector.
type Options struct {
	Detector completion.Options
	// OpenDelay guards the first read after OpenDocument; the open handler
	// gives no acknowledgment.
	OpenDelay time.Duration
	// InspectorPlugin is the bundle name of the responder plugin.
	InspectorPlugin string
}

// DefaultOptions returns the default detector options and open delay.
func DefaultOptions() Options {
	return Options{
		Detector:        completion.DefaultOptions(),
		OpenDelay:       DefaultOpenDelay,
		InspectorPlugin: companion.PluginName,
	}
}

// RunOptions tune one RunCommand call.
type RunOptions struct {
	// Context is merged into the channel context before dispatch and also
	// handed to the tool's own context flag.
	Context channel.Context
}

// Option customizes an Inspector.
type Option func(*Inspector)

// WithSource replaces the marker source built from the detector options.
func WithSource(src completion.Source) Option {
	return func(i *Inspector) { i.source = src }
}

// Inspector is the test-facing orchestrator.
type Inspector struct {
	bridge  bridge.Bridge
	channel *channel.Channel
	opts    Options
	logger  *logging.Logger
	source  completion.Source

	// opMu serializes operations; stateMu guards session and is never held
	// across a dispatch.
	opMu    sync.Mutex
	stateMu sync.Mutex
	session Session
}

// New creates an Inspector.
func New(b bridge.Bridge, ch *channel.Channel, opts Options, logger *logging.Logger, options ...Option) (*Inspector, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if opts.InspectorPlugin == "" {
		opts.InspectorPlugin = companion.PluginName
	}
	if err := opts.Detector.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid detector options")
	}

	i := &Inspector{bridge: b, channel: ch, opts: opts, logger: logger}
	for _, opt := range options {
		opt(i)
	}

	if i.source == nil && opts.Detector.Strategy != channel.MarkerNone {
		src, err := completion.NewSource(ch.MarkerStore(opts.Detector.Strategy), opts.Detector.Observer, opts.Detector.PollInterval)
		if err != nil {
			return nil, err
		}
		i.source = src
	}
	if err := ch.Ensure(); err != nil {
		return nil, err
	}
	return i, nil
}

// Session returns a snapshot of the current session.
func (i *Inspector) Session() Session {
	i.stateMu.Lock()
	defer i.stateMu.Unlock()
	return i.session.clone()
}

func (i *Inspector) plugin() *Plugin {
	i.stateMu.Lock()
	defer i.stateMu.Unlock()
	return i.session.Plugin
}

func (i *Inspector) document() *Document {
	i.stateMu.Lock()
	defer i.stateMu.Unlock()
	return i.session.Document
}

// requireDocument returns the open document or a NoDocumentOpen precondition error.
func (i *Inspector) requireDocument(op string) (*Document, error) {
	doc := i.document()
	if doc == nil {
		return nil, errors.NewPreconditionError(op, errors.ErrNoDocumentOpen)
	}
	return doc, nil
}

// respond dispatches one responder handler.
func (i *Inspector) respond(ctx context.Context, handler string) error {
	err := i.bridge.Run(ctx, i.opts.InspectorPlugin, handler, bridge.RunOptions{})
	if err != nil {
		i.logger.Warn("responder dispatch failed", "handler", handler, "error", err.Error())
	}
	return err
}

// SelectPlugin resolves the plugin bundle called name and reads its manifest.
// dir overrides the application's plugin folder.
func (i *Inspector) SelectPlugin(ctx context.Context, name, dir string) (*Plugin, error) {
	i.opMu.Lock()
	defer i.opMu.Unlock()

	folder := dir
	if folder == "" {
		var err error
		if folder, err = i.bridge.PluginFolder(ctx); err != nil {
			return nil, err
		}
	}

	bundle, err := bridge.ResolvePluginDirectory(folder, name)
	if err != nil {
		return nil, err
	}
	manifest, err := bridge.ReadManifest(bundle)
	if err != nil {
		return nil, err
	}

	p := &Plugin{Name: manifest.Name, Identifier: manifest.Identifier, BaseDir: bundle}
	i.stateMu.Lock()
	i.session.Plugin = p
	i.stateMu.Unlock()

	i.logger.WithPlugin(p.Name).Info("plugin selected", "identifier", p.Identifier, "dir", bundle)
	return p, nil
}

// OpenDocument copies path into scratch space and opens the copy in the
// application. It waits the open delay before returning. When the open cannot
// be dispatched the scratch copy and the filePath key are removed again.
func (i *Inspector) OpenDocument(ctx context.Context, path string) (*Document, error) {
	i.opMu.Lock()
	defer i.opMu.Unlock()

	scratch, err := i.channel.CopyToScratch(path)
	if err != nil {
		return nil, err
	}
	if err := i.channel.WriteContext(channel.FilePathContext(scratch), true); err != nil {
		i.discardScratch(scratch)
		return nil, err
	}
	if err := i.respond(ctx, companion.HandlerOpenFile); err != nil {
		i.discardScratch(scratch)
		return nil, err
	}

	doc := &Document{SourcePath: path, ScratchPath: scratch, OpenedAt: time.Now()}
	i.stateMu.Lock()
	i.session.Document = doc
	i.stateMu.Unlock()

	i.logger.WithDocument(scratch).Info("document opened", "source", path)

	if err := wait(ctx, i.opts.OpenDelay); err != nil {
		return nil, err
	}
	return doc, nil
}

// discardScratch undoes the channel side of a failed open.
func (i *Inspector) discardScratch(scratch string) {
	log := i.logger.WithDocument(scratch)
	if err := i.channel.RemoveScratch(scratch); err != nil {
		log.Warn("remove scratch copy failed", "error", err.Error())
	}
	if err := i.channel.RemoveContextKeys(channel.KeyFilePath); err != nil {
		log.Warn("clear filePath failed", "error", err.Error())
	}
}

// Reset clears scratch space and markers, empties the context, forgets the
// session and asks the responder to reset. It is safe to call repeatedly.
func (i *Inspector) Reset(ctx context.Context) error {
	i.opMu.Lock()
	defer i.opMu.Unlock()

	if err := i.channel.ClearScratch(); err != nil {
		return err
	}
	if err := i.channel.ClearMarkers(); err != nil {
		return err
	}
	if err := i.channel.ResetContext(); err != nil {
		return err
	}

	i.stateMu.Lock()
	i.session = Session{}
	i.stateMu.Unlock()

	i.logger.Debug("session reset")
	return i.respond(ctx, companion.HandlerReset)
}

// Dump returns the full snapshot of the open document.
func (i *Inspector) Dump(ctx context.Context) (*bridge.Snapshot, error) {
	i.opMu.Lock()
	defer i.opMu.Unlock()

	doc, err := i.requireDocument("dump")
	if err != nil {
		return nil, err
	}
	return i.bridge.Dump(ctx, doc.ScratchPath)
}

// List returns the kind listing of the open document.
func (i *Inspector) List(ctx context.Context, kind bridge.Kind) (*bridge.Listing, error) {
	i.opMu.Lock()
	defer i.opMu.Unlock()

	doc, err := i.requireDocument("list " + string(kind))
	if err != nil {
		return nil, err
	}
	return i.bridge.List(ctx, kind, doc.ScratchPath)
}

// ListLayers lists the pages of the open document with their layers.
func (i *Inspector) ListLayers(ctx context.Context) (*bridge.Listing, error) {
	return i.List(ctx, bridge.KindLayers)
}

// ListPages lists the pages of the open document.
func (i *Inspector) ListPages(ctx context.Context) (*bridge.Listing, error) {
	return i.List(ctx, bridge.KindPages)
}

// SelectLayers selects the layers with the given IDs. The first replaces the
// current selection and the rest extend it.
func (i *Inspector) SelectLayers(ctx context.Context, ids []string) error {
	i.opMu.Lock()
	defer i.opMu.Unlock()

	if _, err := i.requireDocument("selectLayers"); err != nil {
		return err
	}
	if err := i.channel.WriteContext(channel.LayersContext(ids), true); err != nil {
		return err
	}
	i.logger.Debug("selecting layers", "count", len(ids))
	return i.respond(ctx, companion.HandlerSelectLayers)
}

// RunCommand runs identifier from the selected plugin and returns once it
// completed and the document was saved.
func (i *Inspector) RunCommand(ctx context.Context, identifier string, opts RunOptions) (*completion.Result, error) {
	i.opMu.Lock()
	defer i.opMu.Unlock()

	p := i.plugin()
	if p == nil {
		return nil, errors.NewPreconditionError("runCommand", errors.ErrPluginNotSelected)
	}
	if identifier == "" {
		return nil, errors.NewPreconditionError("runCommand", errors.ErrMissingIdentifier)
	}

	if len(opts.Context) > 0 {
		if err := i.channel.WriteContext(opts.Context, true); err != nil {
			return nil, err
		}
	}

	bundle := filepath.Base(p.BaseDir)
	runOpts := bridge.RunOptions{Dir: filepath.Dir(p.BaseDir), Context: opts.Context}
	cmd := completion.Command{Plugin: p.Name, Identifier: identifier}

	return i.await(ctx, cmd, func(ctx context.Context) error {
		return i.bridge.Run(ctx, bundle, identifier, runOpts)
	})
}

// RunScript runs a tagged script through the responder with the same
// completion protocol as RunCommand.
func (i *Inspector) RunScript(ctx context.Context, s *script.Script) (*completion.Result, error) {
	i.opMu.Lock()
	defer i.opMu.Unlock()

	if _, err := i.requireDocument("runScript"); err != nil {
		return nil, err
	}
	encoded, err := s.Encode()
	if err != nil {
		return nil, err
	}
	if err := i.channel.WriteContext(channel.ScriptContext(encoded), true); err != nil {
		return nil, err
	}

	cmd := completion.Command{Plugin: i.opts.InspectorPlugin, Identifier: companion.HandlerRunScript}
	return i.await(ctx, cmd, func(ctx context.Context) error {
		return i.bridge.Run(ctx, i.opts.InspectorPlugin, companion.HandlerRunScript, bridge.RunOptions{})
	})
}

// await runs one dispatch through a fresh detector and saves afterwards when a
// document is open.
func (i *Inspector) await(ctx context.Context, cmd completion.Command, dispatch completion.DispatchFunc) (*completion.Result, error) {
	log := i.logger.WithPlugin(cmd.Plugin)
	var persist completion.DispatchFunc
	if doc := i.document(); doc != nil {
		log = log.WithDocument(doc.ScratchPath)
		persist = func(ctx context.Context) error {
			return i.respond(ctx, companion.HandlerSaveDocument)
		}
	}

	d := completion.New(i.opts.Detector, i.source, log)
	return d.Run(ctx, cmd, dispatch, persist)
}

// SaveDocument saves the open document and waits the save delay.
func (i *Inspector) SaveDocument(ctx context.Context) error {
	i.opMu.Lock()
	defer i.opMu.Unlock()

	if _, err := i.requireDocument("saveDocument"); err != nil {
		return err
	}
	if err := i.respond(ctx, companion.HandlerSaveDocument); err != nil {
		return err
	}
	return wait(ctx, i.opts.Detector.SaveDelay)
}

// CloseDocument closes the open document without saving it.
func (i *Inspector) CloseDocument(ctx context.Context) error {
	i.opMu.Lock()
	defer i.opMu.Unlock()

	doc, err := i.requireDocument("closeDocument")
	if err != nil {
		return err
	}
	if err := i.respond(ctx, companion.HandlerCloseDocument); err != nil {
		return err
	}

	i.stateMu.Lock()
	i.session.Document = nil
	i.stateMu.Unlock()

	i.logger.WithDocument(doc.ScratchPath).Info("document closed")
	return nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.ErrCanceled, ctx.Err())
	}
}
