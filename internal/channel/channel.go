package channel

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/sketch-inspector/internal/errors"
)

// Region file and directory names relative to the channel root.
const (
	ContextFileName = "context.json"
	MarkerDirName   = "actions"
	MarkerLogName   = "actions.json"
	ScratchDirName  = "tmp"
)

// Layout resolves the addressable regions of a channel rooted at Root.
type Layout struct {
	Root string
}

// ContextPath returns the path of the context record.
func (l Layout) ContextPath() string {
	return filepath.Join(l.Root, ContextFileName)
}

// MarkerDir returns the directory holding per-event marker files.
func (l Layout) MarkerDir() string {
	return filepath.Join(l.Root, MarkerDirName)
}

// MarkerLogPath returns the path of the single marker log.
func (l Layout) MarkerLogPath() string {
	return filepath.Join(l.Root, MarkerLogName)
}

// ScratchDir returns the directory holding scratch copies of opened documents.
func (l Layout) ScratchDir() string {
	return filepath.Join(l.Root, ScratchDirName)
}

// Channel gives typed access to the shared directory.
type Channel struct {
	fs     afero.Fs
	layout Layout
	now    func() time.Time
}

// New creates a Channel rooted at root on the given filesystem.
func New(fs afero.Fs, root string) *Channel {
	return &Channel{
		fs:     fs,
		layout: Layout{Root: root},
		now:    time.Now,
	}
}

// NewOS creates a Channel on the host filesystem.
func NewOS(root string) *Channel {
	return New(afero.NewOsFs(), root)
}

// Fs returns the filesystem backing the channel.
func (c *Channel) Fs() afero.Fs {
	return c.fs
}

// Layout returns the region layout.
func (c *Channel) Layout() Layout {
	return c.layout
}

// Ensure creates the channel root and its directory regions.
func (c *Channel) Ensure() error {
	for _, dir := range []string{c.layout.Root, c.layout.MarkerDir(), c.layout.ScratchDir()} {
		if err := c.fs.MkdirAll(dir, 0755); err != nil {
			return errors.NewChannelError("mkdir", dir, err)
		}
	}
	return nil
}

// MarkerStore returns the marker store for the given strategy, or nil for
// strategies that do not use markers.
func (c *Channel) MarkerStore(strategy MarkerStrategy) MarkerStore {
	switch strategy {
	case MarkerFiles:
		return NewFileMarkers(c.fs, c.layout.MarkerDir())
	case MarkerLog:
		return NewLogMarkers(c.fs, c.layout.MarkerLogPath())
	default:
		return nil
	}
}

// -----------------------------------------------------------------------------
// Context record
// -----------------------------------------------------------------------------

// ReadContext loads the context record. A missing file reads as an empty record.
func (c *Channel) ReadContext() (Context, error) {
	path := c.layout.ContextPath()
	data, err := afero.ReadFile(c.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return Context{}, nil
		}
		return nil, fmt.Errorf("read context %s: %w", path, err)
	}

	ctx := Context{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return ctx, nil
	}
	if err := json.Unmarshal(data, &ctx); err != nil {
		return nil, fmt.Errorf("parse context %s: %w", path, err)
	}
	return ctx, nil
}

// WriteContext persists values into the context record. With merge set, the
// new keys overlay the existing record and unknown keys pass through untouched;
// otherwise the record is replaced.
func (c *Channel) WriteContext(values Context, merge bool) error {
	record := Context{}
	if merge {
		current, err := c.ReadContext()
		if err != nil {
			return errors.NewChannelError("merge", c.layout.ContextPath(), err)
		}
		record = current
	}
	for k, v := range values {
		record[k] = v
	}

	data, err := json.Marshal(record)
	if err != nil {
		return errors.NewChannelError("marshal", c.layout.ContextPath(), err)
	}
	return atomicWriteFile(c.fs, c.layout.ContextPath(), data)
}

// RemoveContextKeys drops keys from the context record and keeps the rest.
func (c *Channel) RemoveContextKeys(keys ...string) error {
	record, err := c.ReadContext()
	if err != nil {
		return errors.NewChannelError("remove keys", c.layout.ContextPath(), err)
	}
	for _, k := range keys {
		delete(record, k)
	}
	return c.WriteContext(record, false)
}

// ResetContext destructively overwrites the context record with {}.
func (c *Channel) ResetContext() error {
	return c.WriteContext(Context{}, false)
}

// atomicWriteFile writes data to a temp file in the target directory and renames
// it over path, so readers see either the old or the new content.
func atomicWriteFile(fs afero.Fs, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return errors.NewChannelError("mkdir", dir, err)
	}

	tmp, err := afero.TempFile(fs, dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.NewChannelError("create", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = fs.Remove(tmpName)
		return errors.NewChannelError("write", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		_ = fs.Remove(tmpName)
		return errors.NewChannelError("close", tmpName, err)
	}
	if err := fs.Rename(tmpName, path); err != nil {
		_ = fs.Remove(tmpName)
		return errors.NewChannelError("rename", path, err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Scratch area
// -----------------------------------------------------------------------------

// CopyToScratch duplicates the document at src into the scratch area under a
// unique, timestamped name and returns the copy's path. Document packages
// (directories) are copied recursively.
func (c *Channel) CopyToScratch(src string) (string, error) {
	info, err := c.fs.Stat(src)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.NewNotFoundError("document", src).WithCause(errors.ErrSourceNotFound)
		}
		return "", fmt.Errorf("stat %s: %w", src, err)
	}

	scratch := c.layout.ScratchDir()
	if err := c.fs.MkdirAll(scratch, 0755); err != nil {
		return "", errors.NewChannelError("mkdir", scratch, err)
	}

	stamp := c.now().UnixNano()
	dst := filepath.Join(scratch, fmt.Sprintf("%d-%s", stamp, filepath.Base(src)))
	for {
		if exists, _ := afero.Exists(c.fs, dst); !exists {
			break
		}
		stamp++
		dst = filepath.Join(scratch, fmt.Sprintf("%d-%s", stamp, filepath.Base(src)))
	}

	if info.IsDir() {
		err = c.copyDir(src, dst)
	} else {
		err = c.copyFile(src, dst, info.Mode())
	}
	if err != nil {
		return "", err
	}
	return dst, nil
}

func (c *Channel) copyDir(src, dst string) error {
	return afero.Walk(c.fs, src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			if err := c.fs.MkdirAll(target, 0755); err != nil {
				return errors.NewChannelError("mkdir", target, err)
			}
			return nil
		}
		return c.copyFile(path, target, info.Mode())
	})
}

func (c *Channel) copyFile(src, dst string, mode os.FileMode) error {
	in, err := c.fs.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := c.fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm()|0200)
	if err != nil {
		return errors.NewChannelError("create", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return errors.NewChannelError("copy", dst, err)
	}
	if err := out.Close(); err != nil {
		return errors.NewChannelError("close", dst, err)
	}
	return nil
}

// ClearScratch empties the scratch area.
func (c *Channel) ClearScratch() error {
	return emptyDir(c.fs, c.layout.ScratchDir())
}

// RemoveScratch deletes one scratch copy. Paths outside the scratch area are
// refused.
func (c *Channel) RemoveScratch(path string) error {
	rel, err := filepath.Rel(c.layout.ScratchDir(), path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return errors.NewChannelError("remove", path, fmt.Errorf("not a scratch copy"))
	}
	if err := c.fs.RemoveAll(path); err != nil {
		return errors.NewChannelError("remove", path, err)
	}
	return nil
}

// ClearMarkers empties both marker regions.
func (c *Channel) ClearMarkers() error {
	if err := NewFileMarkers(c.fs, c.layout.MarkerDir()).Clear(); err != nil {
		return err
	}
	return NewLogMarkers(c.fs, c.layout.MarkerLogPath()).Clear()
}

// emptyDir removes every entry in dir, creating dir if it does not exist.
func emptyDir(fs afero.Fs, dir string) error {
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return errors.NewChannelError("mkdir", dir, err)
	}
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return errors.NewChannelError("readdir", dir, err)
	}
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if err := fs.RemoveAll(path); err != nil {
			return errors.NewChannelError("remove", path, err)
		}
	}
	return nil
}
