package channel

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/sketch-inspector/internal/errors"
)

// MarkerStrategy selects how executed commands are evidenced in the channel.
type MarkerStrategy string

const (
	// MarkerFiles writes one marker file per executed command.
	MarkerFiles MarkerStrategy = "files"
	// MarkerLog appends {command, ts} entries to a single JSON array.
	MarkerLog MarkerStrategy = "log"
	// MarkerNone records nothing; completion is inferred from elapsed time.
	MarkerNone MarkerStrategy = "settle"
)

// ValidMarkerStrategies returns the accepted strategy names.
func ValidMarkerStrategies() []string {
	return []string{string(MarkerFiles), string(MarkerLog), string(MarkerNone)}
}

// Marker is the evidence that a command ran in the GUI process.
type Marker struct {
	// Key identifies the record within its store and is stable across reads.
	Key       string `json:"-"`
	Command   string `json:"command"`
	Timestamp string `json:"ts"`
	// Error is set when the responder could not run the command.
	Error string `json:"error,omitempty"`
	// Pending marks a marker file whose content is not written yet.
	Pending bool `json:"-"`
}

// Failed reports whether the marker records a failed run.
func (m Marker) Failed() bool {
	return m.Error != ""
}

// Time parses the marker timestamp. Zero is returned for unparseable values.
func (m Marker) Time() time.Time {
	t, err := ParseTimestamp(m.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// FormatTimestamp renders t as fractional seconds since the Unix epoch, the
// format the responder writes.
func FormatTimestamp(t time.Time) string {
	return fmt.Sprintf("%d.%09d", t.Unix(), t.Nanosecond())
}

// ParseTimestamp parses fractional epoch seconds as written by FormatTimestamp
// or by the responder.
func ParseTimestamp(ts string) (time.Time, error) {
	secPart, fracPart, _ := strings.Cut(strings.TrimSpace(ts), ".")
	sec, err := strconv.ParseInt(secPart, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid marker timestamp %q: %w", ts, err)
	}
	var nsec int64
	if fracPart != "" {
		if len(fracPart) > 9 {
			fracPart = fracPart[:9]
		}
		fracPart += strings.Repeat("0", 9-len(fracPart))
		nsec, err = strconv.ParseInt(fracPart, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid marker timestamp %q: %w", ts, err)
		}
	}
	return time.Unix(sec, nsec), nil
}

// MarkerStore is a marker region layout.
type MarkerStore interface {
	// Record appends evidence that command ran at the given time.
	Record(command string, at time.Time) (Marker, error)
	// RecordFailure appends evidence that command was attempted but failed.
	RecordFailure(command string, at time.Time, reason string) (Marker, error)
	// List returns every marker currently present, oldest first.
	List() ([]Marker, error)
	// Clear removes all markers.
	Clear() error
	// WatchPath is the directory a change observer should watch.
	WatchPath() string
	// Matches reports whether a changed path belongs to this store.
	Matches(path string) bool
}

// -----------------------------------------------------------------------------
// Per-event marker files
// -----------------------------------------------------------------------------

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileMarkers stores one file per executed command, named
// <command>-<unix-nanos>.json so quick successive commands never collide.
type FileMarkers struct {
	fs  afero.Fs
	dir string
}

// NewFileMarkers creates a per-event store in dir.
func NewFileMarkers(fs afero.Fs, dir string) *FileMarkers {
	return &FileMarkers{fs: fs, dir: dir}
}

// SanitizeCommand returns the form of command used in marker file names.
func SanitizeCommand(command string) string {
	safe := unsafeNameChars.ReplaceAllString(command, "_")
	if safe == "" {
		safe = "command"
	}
	return safe
}

// MarkerFileName builds the marker file name for command at the given nanosecond stamp.
func MarkerFileName(command string, nanos int64) string {
	return fmt.Sprintf("%s-%d.json", SanitizeCommand(command), nanos)
}

// Record creates a fresh marker file. The create is exclusive; an existing name
// is retried with the next nanosecond.
func (s *FileMarkers) Record(command string, at time.Time) (Marker, error) {
	return s.record(Marker{Command: command}, at)
}

// RecordFailure creates a marker file carrying reason.
func (s *FileMarkers) RecordFailure(command string, at time.Time, reason string) (Marker, error) {
	return s.record(Marker{Command: command, Error: reason}, at)
}

func (s *FileMarkers) record(m Marker, at time.Time) (Marker, error) {
	command := m.Command
	if err := s.fs.MkdirAll(s.dir, 0755); err != nil {
		return Marker{}, errors.NewChannelError("mkdir", s.dir, err)
	}

	nanos := at.UnixNano()
	for attempt := 0; attempt < 1000; attempt++ {
		name := MarkerFileName(command, nanos)
		path := filepath.Join(s.dir, name)

		f, err := s.fs.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err != nil {
			if os.IsExist(err) {
				nanos++
				continue
			}
			return Marker{}, errors.NewChannelError("create", path, err)
		}

		m.Key = name
		m.Timestamp = FormatTimestamp(time.Unix(0, nanos))
		data, _ := json.Marshal(m)
		if _, err := f.Write(data); err != nil {
			_ = f.Close()
			return Marker{}, errors.NewChannelError("write", path, err)
		}
		if err := f.Close(); err != nil {
			return Marker{}, errors.NewChannelError("close", path, err)
		}
		return m, nil
	}
	return Marker{}, errors.NewChannelError("create", s.dir, fmt.Errorf("no free marker name for %q", command))
}

// List returns markers ordered by their timestamp. A file still being written
// is described from its name alone and flagged Pending.
func (s *FileMarkers) List() ([]Marker, error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read marker dir %s: %w", s.dir, err)
	}

	type stamped struct {
		marker Marker
		nanos  int64
	}
	var found []stamped
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !s.isMarkerName(name) {
			continue
		}
		command, nanos, ok := parseMarkerFileName(name)
		if !ok {
			continue
		}

		m := Marker{Key: name, Command: command, Timestamp: FormatTimestamp(time.Unix(0, nanos)), Pending: true}
		if data, err := afero.ReadFile(s.fs, filepath.Join(s.dir, name)); err == nil {
			var stored Marker
			if json.Unmarshal(data, &stored) == nil && stored.Command != "" {
				m.Command = stored.Command
				m.Error = stored.Error
				m.Pending = false
				if stored.Timestamp != "" {
					m.Timestamp = stored.Timestamp
				}
			}
		}
		found = append(found, stamped{marker: m, nanos: nanos})
	}

	sort.SliceStable(found, func(i, j int) bool { return found[i].nanos < found[j].nanos })
	markers := make([]Marker, 0, len(found))
	for _, f := range found {
		markers = append(markers, f.marker)
	}
	return markers, nil
}

func parseMarkerFileName(name string) (string, int64, bool) {
	base := strings.TrimSuffix(name, ".json")
	idx := strings.LastIndex(base, "-")
	if idx <= 0 {
		return "", 0, false
	}
	nanos, err := strconv.ParseInt(base[idx+1:], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return base[:idx], nanos, true
}

func (s *FileMarkers) isMarkerName(name string) bool {
	return strings.HasSuffix(name, ".json") && !strings.HasPrefix(name, ".")
}

// Clear removes every marker file.
func (s *FileMarkers) Clear() error {
	return emptyDir(s.fs, s.dir)
}

// WatchPath returns the marker directory.
func (s *FileMarkers) WatchPath() string {
	return s.dir
}

// Matches reports whether path is a marker file in this store.
func (s *FileMarkers) Matches(path string) bool {
	return filepath.Clean(filepath.Dir(path)) == filepath.Clean(s.dir) && s.isMarkerName(filepath.Base(path))
}

// -----------------------------------------------------------------------------
// Single marker log
// -----------------------------------------------------------------------------

// LogMarkers stores markers as one JSON array rewritten atomically on append.
type LogMarkers struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

// NewLogMarkers creates a single-log store at path.
func NewLogMarkers(fs afero.Fs, path string) *LogMarkers {
	return &LogMarkers{fs: fs, path: path}
}

func (s *LogMarkers) read() ([]Marker, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read marker log %s: %w", s.path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}

	var entries []Marker
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse marker log %s: %w", s.path, err)
	}
	for i := range entries {
		entries[i].Key = fmt.Sprintf("%d:%s:%s", i, entries[i].Command, entries[i].Timestamp)
	}
	return entries, nil
}

// Record appends an entry to the log.
func (s *LogMarkers) Record(command string, at time.Time) (Marker, error) {
	return s.add(Marker{Command: command, Timestamp: FormatTimestamp(at)})
}

// RecordFailure appends an entry carrying reason.
func (s *LogMarkers) RecordFailure(command string, at time.Time, reason string) (Marker, error) {
	return s.add(Marker{Command: command, Timestamp: FormatTimestamp(at), Error: reason})
}

func (s *LogMarkers) add(m Marker) (Marker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		return Marker{}, errors.NewChannelError("append", s.path, err)
	}
	entries = append(entries, m)

	data, err := json.Marshal(entries)
	if err != nil {
		return Marker{}, errors.NewChannelError("marshal", s.path, err)
	}
	if err := atomicWriteFile(s.fs, s.path, data); err != nil {
		return Marker{}, err
	}
	m.Key = fmt.Sprintf("%d:%s:%s", len(entries)-1, m.Command, m.Timestamp)
	return m, nil
}

// List returns the log entries in append order.
func (s *LogMarkers) List() ([]Marker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Clear truncates the log to an empty array.
func (s *LogMarkers) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return atomicWriteFile(s.fs, s.path, []byte("[]"))
}

// WatchPath returns the directory containing the log.
func (s *LogMarkers) WatchPath() string {
	return filepath.Dir(s.path)
}

// Matches reports whether path is the log file.
func (s *LogMarkers) Matches(path string) bool {
	return filepath.Clean(path) == filepath.Clean(s.path)
}
