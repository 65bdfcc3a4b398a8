package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func readEntries(t *testing.T, data []byte) []map[string]any {
	t.Helper()

	var entries []map[string]any
	for i, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("line %d is not valid JSON: %v", i, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestNewLogger(t *testing.T) {
	t.Run("creates log file in directory", func(t *testing.T) {
		dir := t.TempDir()

		logger, err := NewLogger(dir, LevelDebug)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		defer logger.Close()

		if _, err := os.Stat(filepath.Join(dir, FileName)); os.IsNotExist(err) {
			t.Errorf("log file was not created in %s", dir)
		}
	})

	t.Run("writes to stderr when dir is empty", func(t *testing.T) {
		logger, err := NewLogger("", LevelInfo)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		defer logger.Close()

		if logger.file != nil {
			t.Error("expected file to be nil when dir is empty")
		}
	})
}

func TestLogLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, LevelWarn)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	entries := readEntries(t, buf.Bytes())
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries (WARN and ERROR only), got %d", len(entries))
	}
	if entries[0]["level"] != "WARN" || entries[1]["level"] != "ERROR" {
		t.Errorf("unexpected levels: %v, %v", entries[0]["level"], entries[1]["level"])
	}
}

func TestContextPropagation(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, LevelInfo)

	child := logger.WithPlugin("Test").WithCommand("removeSelected").WithDispatch("d-1").WithDocument("/tmp/doc.sketch")
	child.Info("dispatched", "attempt", 1)

	entries := readEntries(t, buf.Bytes())
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	want := map[string]any{
		"plugin":      "Test",
		"command":     "removeSelected",
		"dispatch_id": "d-1",
		"document":    "/tmp/doc.sketch",
		"attempt":     float64(1),
	}
	for k, v := range want {
		if entries[0][k] != v {
			t.Errorf("%s = %v, want %v", k, entries[0][k], v)
		}
	}
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, LevelInfo)

	if logger.With() != logger {
		t.Error("With() without args should return the same logger")
	}

	logger.With("foo", "bar", 42, "ignored-key-type", "count", 3).Info("msg")

	entries := readEntries(t, buf.Bytes())
	if entries[0]["foo"] != "bar" {
		t.Errorf("foo = %v", entries[0]["foo"])
	}
	if entries[0]["count"] != float64(3) {
		t.Errorf("count = %v", entries[0]["count"])
	}
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger()
	logger.Debug("debug")
	logger.Error("error")

	if err := logger.Close(); err != nil {
		t.Errorf("NopLogger.Close() returned error: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warn", LevelWarn},
		{"Error", LevelError},
		{"invalid", LevelInfo},
		{"", LevelInfo},
	}

	for _, tc := range tests {
		if got := ParseLevel(tc.input); got != tc.expected {
			t.Errorf("ParseLevel(%q) = %q, expected %q", tc.input, got, tc.expected)
		}
	}
}

func TestCloseTwice(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir, LevelInfo)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	logger.WithCommand("x").Info("test message")

	if err := logger.Close(); err != nil {
		t.Errorf("Close() returned error: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close() returned error: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if len(readEntries(t, content)) != 1 {
		t.Errorf("expected 1 entry, got %q", content)
	}
}

func TestConcurrentWrites(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir, LevelInfo)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			child := logger.WithDispatch("d")
			for j := 0; j < 50; j++ {
				child.Info("concurrent write", "goroutine", n, "iteration", j)
			}
		}(i)
	}
	wg.Wait()
	logger.Close()

	content, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if got := len(readEntries(t, content)); got != 500 {
		t.Errorf("expected 500 entries, got %d", got)
	}
}
