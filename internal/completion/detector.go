// Package completion decides when a command dispatched into the GUI process
// has finished.
//
// The bridge only reports that a dispatch was accepted. Completion is observed
// through markers the in-app responder records in the shared channel: the
// Detector attaches an observer to the marker region, dispatches, waits for a
// marker naming the command, lets the write settle, and finally persists the
// document. Without a marker mechanism it falls back to a fixed delay.
package completion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/sketch-inspector/internal/channel"
	"github.com/Iron-Ham/sketch-inspector/internal/errors"
	"github.com/Iron-Ham/sketch-inspector/internal/logging"
)

// State is a detector lifecycle state.
type State int

const (
	StateIdle State = iota
	StateDispatched
	StateWatching
	StateSettling
	StateResolved
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:       "idle",
	StateDispatched: "dispatched",
	StateWatching:   "watching",
	StateSettling:   "settling",
	StateResolved:   "resolved",
	StateFailed:     "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Command identifies what is being dispatched.
type Command struct {
	Plugin     string
	Identifier string
}

// Qualifies reports whether m evidences this command. Markers without a
// command name are accepted since older responders never wrote one.
func (c Command) Qualifies(m channel.Marker) bool {
	switch m.Command {
	case "", c.Identifier:
		return true
	}
	// A marker file read before its content is flushed only carries the
	// sanitized name.
	return m.Command == channel.SanitizeCommand(c.Identifier)
}

// DispatchFunc performs one dispatch through the bridge.
type DispatchFunc func(ctx context.Context) error

// Result describes a resolved command.
type Result struct {
	Command      Command
	DispatchID   string
	DispatchedAt time.Time
	// MarkerAt is zero for the fixed-delay strategy.
	MarkerAt   time.Time
	ResolvedAt time.Time
	Marker     *channel.Marker
}

// Elapsed returns the time from dispatch to resolution.
func (r *Result) Elapsed() time.Duration {
	return r.ResolvedAt.Sub(r.DispatchedAt)
}

// Detector tracks a single dispatch. Create a fresh one per command.
type Detector struct {
	opts   Options
	source Source
	logger *logging.Logger

	mu    sync.Mutex
	state State
	used  bool
}

// New creates a detector. source may be nil for the fixed-delay strategy.
func New(opts Options, source Source, logger *logging.Logger) *Detector {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Detector{opts: opts, source: source, logger: logger}
}

// State returns the current lifecycle state.
func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Detector) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

// Run dispatches cmd and blocks until it completes, the timeout elapses, or
// ctx is canceled. persist, when set, runs after resolution and is followed
// by the save delay. The observer is always detached before Run returns.
func (d *Detector) Run(ctx context.Context, cmd Command, dispatch, persist DispatchFunc) (*Result, error) {
	d.mu.Lock()
	if d.used {
		d.mu.Unlock()
		return nil, fmt.Errorf("detector for %q already used", cmd.Identifier)
	}
	d.used = true
	d.mu.Unlock()

	if err := d.opts.Validate(); err != nil {
		d.setState(StateFailed)
		return nil, err
	}

	res := &Result{Command: cmd, DispatchID: uuid.NewString()}
	log := d.logger.WithCommand(cmd.Identifier).WithDispatch(res.DispatchID)

	var err error
	if d.opts.Strategy == channel.MarkerNone {
		err = d.runFixed(ctx, cmd, dispatch, res, log)
	} else {
		err = d.runWatched(ctx, cmd, dispatch, res, log)
	}
	if err != nil {
		d.setState(StateFailed)
		log.Warn("command failed", "state", StateFailed.String(), "error", err.Error())
		return nil, err
	}

	if persist != nil {
		if err := persist(ctx); err != nil {
			d.setState(StateFailed)
			log.Warn("save after command failed", "error", err.Error())
			return nil, asCommandError(cmd, err)
		}
		if err := sleep(ctx, d.opts.SaveDelay); err != nil {
			d.setState(StateFailed)
			return nil, canceled(cmd, err)
		}
	}

	res.ResolvedAt = time.Now()
	d.setState(StateResolved)
	log.Info("command completed",
		"elapsed_ms", res.Elapsed().Milliseconds(),
		"strategy", string(d.opts.Strategy),
	)
	return res, nil
}

// runFixed dispatches and waits the fixed delay. There is no acknowledgment.
func (d *Detector) runFixed(ctx context.Context, cmd Command, dispatch DispatchFunc, res *Result, log *logging.Logger) error {
	res.DispatchedAt = time.Now()
	d.setState(StateDispatched)
	if err := dispatch(ctx); err != nil {
		return asCommandError(cmd, err)
	}
	log.Debug("dispatched", "wait_ms", d.opts.FixedDelay.Milliseconds())

	d.setState(StateSettling)
	if err := sleep(ctx, d.opts.FixedDelay); err != nil {
		return canceled(cmd, err)
	}
	return nil
}

// runWatched attaches, dispatches, waits for a qualifying marker, and settles.
func (d *Detector) runWatched(ctx context.Context, cmd Command, dispatch DispatchFunc, res *Result, log *logging.Logger) error {
	if d.source == nil {
		return fmt.Errorf("no marker source for strategy %q", d.opts.Strategy)
	}

	start := time.Now()
	deadline := time.NewTimer(d.opts.Timeout)
	defer deadline.Stop()

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Attach strictly before dispatch; a marker written in between would
	// otherwise be lost.
	obs, err := d.source.Attach(watchCtx)
	if err != nil {
		return errors.Wrap(err, "attach completion observer")
	}
	defer func() { _ = obs.Close() }()

	res.DispatchedAt = time.Now()
	d.setState(StateDispatched)
	if err := dispatch(ctx); err != nil {
		return asCommandError(cmd, err)
	}
	d.setState(StateWatching)
	log.Debug("dispatched, watching for marker", "timeout_ms", d.opts.Timeout.Milliseconds())

	for res.Marker == nil {
		select {
		case m, ok := <-obs.Events():
			if !ok {
				return fmt.Errorf("completion observer for %q closed early", cmd.Identifier)
			}
			if !cmd.Qualifies(m) {
				log.Debug("ignoring marker", "marker", m.Command)
				continue
			}
			res.Marker = &m
			res.MarkerAt = time.Now()
		case <-deadline.C:
			// The deferred Close detaches the observer before the error
			// reaches the caller.
			return errors.NewTimeoutError(cmd.Identifier, time.Since(start), d.opts.Timeout)
		case <-ctx.Done():
			return canceled(cmd, ctx.Err())
		}
	}

	// The command is done; later markers (the save's own) are irrelevant.
	_ = obs.Close()

	if res.Marker.Failed() {
		return errors.NewCommandError(cmd.Plugin, cmd.Identifier, fmt.Errorf("responder: %s", res.Marker.Error))
	}

	d.setState(StateSettling)
	log.Debug("marker observed, settling", "settle_ms", d.opts.SettleDelay.Milliseconds())
	if err := sleep(ctx, d.opts.SettleDelay); err != nil {
		return canceled(cmd, err)
	}
	return nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func asCommandError(cmd Command, err error) error {
	if errors.Is(err, errors.ErrCommandFailed) || errors.Is(err, errors.ErrNotFound) {
		return err
	}
	return errors.NewCommandError(cmd.Plugin, cmd.Identifier, err)
}

func canceled(cmd Command, err error) error {
	return fmt.Errorf("command %q canceled: %w", cmd.Identifier, errors.Join(errors.ErrCanceled, err))
}
