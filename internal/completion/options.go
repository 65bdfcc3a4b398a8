package completion

import (
	"fmt"
	"slices"
	"time"

	"github.com/Iron-Ham/sketch-inspector/internal/channel"
)

// ObserverKind selects how the marker region is observed.
type ObserverKind string

const (
	// ObserverFSNotify uses native file-change notification.
	ObserverFSNotify ObserverKind = "fsnotify"
	// ObserverPoll rescans the marker region on an interval.
	ObserverPoll ObserverKind = "poll"
)

// ValidObserverKinds returns the accepted observer names.
func ValidObserverKinds() []string {
	return []string{string(ObserverFSNotify), string(ObserverPoll)}
}

// Default timings. The settle delay is host dependent; 200ms is enough for
// simple mutations and slow tool versions need much more.
const (
	DefaultSettleDelay  = 200 * time.Millisecond
	DefaultTimeout      = 60 * time.Second
	DefaultFixedDelay   = 12 * time.Second
	DefaultSaveDelay    = 200 * time.Millisecond
	DefaultPollInterval = 50 * time.Millisecond
)

// Options configure a Detector.
type Options struct {
	Strategy     channel.MarkerStrategy
	Observer     ObserverKind
	SettleDelay  time.Duration
	Timeout      time.Duration
	FixedDelay   time.Duration
	SaveDelay    time.Duration
	PollInterval time.Duration
}

// DefaultOptions returns the per-event marker strategy with native observation.
func DefaultOptions() Options {
	return Options{
		Strategy:     channel.MarkerFiles,
		Observer:     ObserverFSNotify,
		SettleDelay:  DefaultSettleDelay,
		Timeout:      DefaultTimeout,
		FixedDelay:   DefaultFixedDelay,
		SaveDelay:    DefaultSaveDelay,
		PollInterval: DefaultPollInterval,
	}
}

// Validate checks the options for consistency.
func (o Options) Validate() error {
	if !slices.Contains(channel.ValidMarkerStrategies(), string(o.Strategy)) {
		return fmt.Errorf("invalid strategy %q: must be one of %v", o.Strategy, channel.ValidMarkerStrategies())
	}
	if o.Strategy != channel.MarkerNone && !slices.Contains(ValidObserverKinds(), string(o.Observer)) {
		return fmt.Errorf("invalid observer %q: must be one of %v", o.Observer, ValidObserverKinds())
	}
	if o.SettleDelay < 0 || o.FixedDelay < 0 || o.SaveDelay < 0 {
		return fmt.Errorf("delays must be non-negative")
	}
	if o.Strategy != channel.MarkerNone && o.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", o.Timeout)
	}
	if o.Observer == ObserverPoll && o.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", o.PollInterval)
	}
	return nil
}
