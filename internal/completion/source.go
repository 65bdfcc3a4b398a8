package completion

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sourcegraph/conc"

	"github.com/Iron-Ham/sketch-inspector/internal/channel"
)

// eventBuffer bounds how many unread markers an observer holds.
const eventBuffer = 16

// Observer delivers markers recorded after it was attached.
type Observer interface {
	// Events yields new markers. The channel is closed by Close.
	Events() <-chan channel.Marker

	// Close detaches the observer. Markers recorded afterwards are never
	// delivered. Close is idempotent.
	Close() error
}

// Source attaches observers to a marker region.
type Source interface {
	Attach(ctx context.Context) (Observer, error)
}

// NewSource builds a Source over store using the given observation kind.
func NewSource(store channel.MarkerStore, kind ObserverKind, interval time.Duration) (Source, error) {
	if store == nil {
		return nil, fmt.Errorf("marker store is required")
	}
	switch kind {
	case ObserverFSNotify:
		return &notifySource{store: store}, nil
	case ObserverPoll:
		if interval <= 0 {
			interval = DefaultPollInterval
		}
		return &pollSource{store: store, interval: interval}, nil
	default:
		return nil, fmt.Errorf("unknown observer kind %q", kind)
	}
}

// scanner diffs a store against the markers it has already reported.
type scanner struct {
	store channel.MarkerStore
	seen  map[string]bool
}

// newScanner takes the snapshot of markers that predate the observer.
func newScanner(store channel.MarkerStore) (*scanner, error) {
	existing, err := store.List()
	if err != nil {
		return nil, err
	}
	s := &scanner{store: store, seen: make(map[string]bool, len(existing))}
	for _, m := range existing {
		s.seen[m.Key] = true
	}
	return s, nil
}

func (s *scanner) scan() []channel.Marker {
	markers, err := s.store.List()
	if err != nil {
		// Transient read failures are retried by the next scan.
		return nil
	}
	var fresh []channel.Marker
	for _, m := range markers {
		// A pending file is reported once its content lands.
		if s.seen[m.Key] || m.Pending {
			continue
		}
		s.seen[m.Key] = true
		fresh = append(fresh, m)
	}
	return fresh
}

// baseObserver owns the event channel and the shutdown handshake shared by
// both observer kinds.
type baseObserver struct {
	events chan channel.Marker
	done   chan struct{}
	wg     conc.WaitGroup
	once   sync.Once
}

func newBaseObserver() *baseObserver {
	return &baseObserver{
		events: make(chan channel.Marker, eventBuffer),
		done:   make(chan struct{}),
	}
}

func (o *baseObserver) Events() <-chan channel.Marker {
	return o.events
}

// emit delivers markers unless the observer is closing.
func (o *baseObserver) emit(markers []channel.Marker) bool {
	for _, m := range markers {
		select {
		case o.events <- m:
		case <-o.done:
			return false
		}
	}
	return true
}

// shutdown stops the goroutines, runs release, and closes the event channel.
func (o *baseObserver) shutdown(release func() error) error {
	var err error
	o.once.Do(func() {
		close(o.done)
		if release != nil {
			err = release()
		}
		o.wg.Wait()
		close(o.events)
	})
	return err
}

// -----------------------------------------------------------------------------
// Polling
// -----------------------------------------------------------------------------

type pollSource struct {
	store    channel.MarkerStore
	interval time.Duration
}

type pollObserver struct {
	*baseObserver
}

// Attach snapshots the store synchronously so a marker recorded right after
// Attach returns is always seen by the poller.
func (p *pollSource) Attach(ctx context.Context) (Observer, error) {
	sc, err := newScanner(p.store)
	if err != nil {
		return nil, fmt.Errorf("snapshot markers: %w", err)
	}

	o := &pollObserver{baseObserver: newBaseObserver()}
	o.wg.Go(func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-o.done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !o.emit(sc.scan()) {
					return
				}
			}
		}
	})
	return o, nil
}

func (o *pollObserver) Close() error {
	return o.shutdown(nil)
}

// -----------------------------------------------------------------------------
// Native notification
// -----------------------------------------------------------------------------

type notifySource struct {
	store channel.MarkerStore
}

type notifyObserver struct {
	*baseObserver
	watcher *fsnotify.Watcher
}

// Attach starts watching before taking the snapshot, so no marker can fall
// between the two.
func (n *notifySource) Attach(ctx context.Context) (Observer, error) {
	dir := n.store.WatchPath()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create marker region %s: %w", dir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	sc, err := newScanner(n.store)
	if err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("snapshot markers: %w", err)
	}

	o := &notifyObserver{baseObserver: newBaseObserver(), watcher: watcher}
	o.wg.Go(func() {
		for {
			select {
			case <-o.done:
				return
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				if !n.store.Matches(event.Name) {
					continue
				}
				if !o.emit(sc.scan()) {
					return
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
				// Dropped events (queue overflow) are recovered by a rescan.
				if !o.emit(sc.scan()) {
					return
				}
			}
		}
	})
	return o, nil
}

func (o *notifyObserver) Close() error {
	return o.shutdown(o.watcher.Close)
}
