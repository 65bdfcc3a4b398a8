package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityDebug, "debug"},
		{SeverityInfo, "info"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.severity.String(); got != tt.want {
				t.Errorf("Severity.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("plugin", "Test.sketchplugin").WithCause(ErrPluginNotFound)

	if got := err.Error(); got != "plugin 'Test.sketchplugin' not found: plugin not found" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Error("expected errors.Is(err, ErrNotFound)")
	}
	if !errors.Is(err, ErrPluginNotFound) {
		t.Error("expected errors.Is(err, ErrPluginNotFound) through the cause")
	}
	if errors.Is(err, ErrSourceNotFound) {
		t.Error("did not expect ErrSourceNotFound")
	}
	if err.IsRetryable() {
		t.Error("not-found errors must never be retryable")
	}
}

func TestPreconditionError(t *testing.T) {
	tests := []struct {
		name        string
		op          string
		requirement error
		want        string
	}{
		{"no plugin", "runCommand", ErrPluginNotSelected, "precondition violated [op=runCommand]: no plugin selected"},
		{"no document", "dump", ErrNoDocumentOpen, "precondition violated [op=dump]: no document open"},
		{"no op", "", ErrMissingIdentifier, "precondition violated: missing command identifier"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewPreconditionError(tt.op, tt.requirement)
			if got := err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
			if !errors.Is(err, tt.requirement) {
				t.Errorf("expected errors.Is(err, %v)", tt.requirement)
			}
			if !IsPrecondition(err) {
				t.Error("IsPrecondition() = false, want true")
			}
		})
	}
}

func TestTimeoutError(t *testing.T) {
	err := NewTimeoutError("removeSelected", 1503*time.Millisecond, 1500*time.Millisecond)

	msg := err.Error()
	for _, want := range []string{"removeSelected", "1.503s", "1.5s"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, want it to contain %q", msg, want)
		}
	}
	if !errors.Is(err, ErrCommandTimedOut) {
		t.Error("expected errors.Is(err, ErrCommandTimedOut)")
	}
	if !IsRetryable(err) {
		t.Error("timeouts are retryable at the caller's discretion")
	}

	wrapped := fmt.Errorf("run: %w", err)
	var target *TimeoutError
	if !errors.As(wrapped, &target) {
		t.Fatal("errors.As failed on wrapped timeout")
	}
	if target.Command != "removeSelected" {
		t.Errorf("Command = %q", target.Command)
	}
}

func TestCommandError(t *testing.T) {
	cause := errors.New("exit status 1")
	err := NewCommandError("Test", "renameAll", cause).WithOutput("  plugin crashed\n")

	want := "command failed [plugin=Test, command=renameAll]: exit status 1\nbridge output: plugin crashed"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrCommandFailed) {
		t.Error("expected errors.Is(err, ErrCommandFailed)")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable")
	}
}

func TestChannelError(t *testing.T) {
	err := NewChannelError("rename", "/tmp/context.json", errors.New("permission denied"))

	if !errors.Is(err, ErrChannelWrite) {
		t.Error("expected errors.Is(err, ErrChannelWrite)")
	}
	if !strings.Contains(err.Error(), "/tmp/context.json") {
		t.Errorf("Error() = %q, want path in message", err.Error())
	}
	if GetSeverity(err) != SeverityCritical {
		t.Errorf("GetSeverity() = %v, want critical", GetSeverity(err))
	}
}

func TestManifestError(t *testing.T) {
	err := NewManifestError("/plugins/Test.sketchplugin/Contents/Sketch/manifest.json", errors.New("unexpected EOF"))
	if !errors.Is(err, ErrInvalidManifest) {
		t.Error("expected errors.Is(err, ErrInvalidManifest)")
	}
	if !strings.Contains(err.Error(), "manifest.json") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestClassificationHelpers(t *testing.T) {
	plain := errors.New("boom")

	if IsRetryable(nil) || IsUserFacing(nil) {
		t.Error("nil errors are neither retryable nor user facing")
	}
	if IsRetryable(plain) {
		t.Error("plain errors are not retryable")
	}
	if IsUserFacing(plain) {
		t.Error("plain errors are not user facing")
	}
	if GetSeverity(plain) != SeverityError {
		t.Errorf("GetSeverity(plain) = %v", GetSeverity(plain))
	}
	if GetSeverity(nil) != SeverityDebug {
		t.Errorf("GetSeverity(nil) = %v", GetSeverity(nil))
	}
	if !IsUserFacing(NewNotFoundError("document", "a.sketch")) {
		t.Error("not-found errors are user facing")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "x") != nil || Wrapf(nil, "x %d", 1) != nil {
		t.Error("wrapping nil must return nil")
	}

	err := Wrapf(ErrNoDocumentOpen, "listing %s", "layers")
	if err.Error() != "listing layers: no document open" {
		t.Errorf("Wrapf() = %q", err.Error())
	}
	if !Is(err, ErrNoDocumentOpen) {
		t.Error("Wrapf must preserve the chain")
	}
}
