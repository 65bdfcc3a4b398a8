package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strings"

	"github.com/Iron-Ham/sketch-inspector/internal/errors"
)

// DefaultBinary is the tool looked up on PATH when no path is configured.
const DefaultBinary = "sketchtool"

// Runner executes the tool. It exists so tests can replace the process.
type Runner interface {
	// Output runs binary with args and returns stdout. A non-zero exit returns
	// an error together with whatever stdout and stderr were produced.
	Output(ctx context.Context, binary string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs the tool as a child process.
type ExecRunner struct{}

// Output implements Runner.
func (ExecRunner) Output(ctx context.Context, binary string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Sketchtool is the Bridge backed by the sketchtool command-line program.
type Sketchtool struct {
	binary            string
	pluginFolder      string
	withoutActivating bool
	runner            Runner
}

// SketchtoolOption configures a Sketchtool.
type SketchtoolOption func(*Sketchtool)

// WithBinary sets the tool path.
func WithBinary(path string) SketchtoolOption {
	return func(s *Sketchtool) {
		if path != "" {
			s.binary = path
		}
	}
}

// WithPluginFolder pins the plugin folder instead of the user default.
func WithPluginFolder(dir string) SketchtoolOption {
	return func(s *Sketchtool) {
		if dir != "" {
			s.pluginFolder = dir
		}
	}
}

// WithoutActivating keeps the application in the background while commands run.
func WithoutActivating(v bool) SketchtoolOption {
	return func(s *Sketchtool) { s.withoutActivating = v }
}

// WithRunner replaces the process runner.
func WithRunner(r Runner) SketchtoolOption {
	return func(s *Sketchtool) { s.runner = r }
}

// NewSketchtool creates the tool-backed bridge.
func NewSketchtool(opts ...SketchtoolOption) *Sketchtool {
	s := &Sketchtool{
		binary:            DefaultBinary,
		withoutActivating: true,
		runner:            ExecRunner{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PluginFolder implements Bridge.
func (s *Sketchtool) PluginFolder(ctx context.Context) (string, error) {
	if s.pluginFolder != "" {
		return s.pluginFolder, nil
	}
	if dir := DefaultPluginFolder(); dir != "" {
		return dir, nil
	}
	return "", errors.NewNotFoundError("plugin folder", "").WithCause(errors.ErrPluginNotFound)
}

// RunArgs builds the arguments of a run invocation.
func (s *Sketchtool) RunArgs(bundle, identifier string, opts RunOptions) ([]string, error) {
	args := []string{"run", bundle, identifier}
	if len(opts.Context) > 0 {
		data, err := json.Marshal(opts.Context)
		if err != nil {
			return nil, errors.Wrap(err, "encode run context")
		}
		args = append(args, "--context="+string(data))
	}
	if s.withoutActivating {
		args = append(args, "--without-activating")
	}
	return args, nil
}

// Run implements Bridge.
func (s *Sketchtool) Run(ctx context.Context, plugin, identifier string, opts RunOptions) error {
	folder := opts.Dir
	if folder == "" {
		var err error
		if folder, err = s.PluginFolder(ctx); err != nil {
			return err
		}
	}
	bundle, err := ResolvePluginDirectory(folder, plugin)
	if err != nil {
		return err
	}

	args, err := s.RunArgs(bundle, identifier, opts)
	if err != nil {
		return err
	}
	stdout, stderr, err := s.runner.Output(ctx, s.binary, args...)
	if err != nil {
		return errors.NewCommandError(plugin, identifier, err).WithOutput(combine(stdout, stderr))
	}
	return nil
}

// Dump implements Bridge.
func (s *Sketchtool) Dump(ctx context.Context, path string) (*Snapshot, error) {
	stdout, stderr, err := s.runner.Output(ctx, s.binary, "dump", path)
	if err != nil {
		return nil, errors.NewCommandError("", "dump", err).WithOutput(combine(stdout, stderr))
	}
	raw := bytes.TrimSpace(stdout)
	if !json.Valid(raw) {
		return nil, errors.NewCommandError("", "dump", errors.New("output is not JSON")).WithOutput(string(stdout))
	}
	return &Snapshot{Raw: append(json.RawMessage(nil), raw...)}, nil
}

// List implements Bridge.
func (s *Sketchtool) List(ctx context.Context, kind Kind, path string) (*Listing, error) {
	op := "list " + string(kind)
	stdout, stderr, err := s.runner.Output(ctx, s.binary, "list", string(kind), path)
	if err != nil {
		return nil, errors.NewCommandError("", op, err).WithOutput(combine(stdout, stderr))
	}
	var listing Listing
	if err := json.Unmarshal(stdout, &listing); err != nil {
		return nil, errors.NewCommandError("", op, err).WithOutput(string(stdout))
	}
	return &listing, nil
}

func combine(stdout, stderr []byte) string {
	out := strings.TrimSpace(string(stderr))
	if s := strings.TrimSpace(string(stdout)); s != "" {
		if out != "" {
			out += "\n"
		}
		out += s
	}
	return out
}
