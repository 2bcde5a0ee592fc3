package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  slog.Level
	}{
		{"info", "info", slog.LevelInfo},
		{"debug", "debug", slog.LevelDebug},
		{"trace", "trace", LevelTrace},
		{"warn", "warn", slog.LevelWarn},
		{"error", "error", slog.LevelError},
		{"uppercase TRACE", "TRACE", LevelTrace},
		{"mixed case Debug", "Debug", slog.LevelDebug},
		{"unknown defaults to info", "unknown", slog.LevelInfo},
		{"empty defaults to info", "", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		name       string
		level      string
		logAtDebug bool
		logAtInfo  bool
	}{
		{"info filters debug", "info", false, true},
		{"debug passes debug", "debug", true, true},
		{"trace passes debug", "trace", true, true},
		{"error filters info", "error", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(tt.level, &buf)

			logger.Debug("debug message")
			hasDebug := strings.Contains(buf.String(), "debug message")
			if hasDebug != tt.logAtDebug {
				t.Errorf("debug message visible = %v, want %v (buf: %q)", hasDebug, tt.logAtDebug, buf.String())
			}

			buf.Reset()
			logger.Info("info message")
			hasInfo := strings.Contains(buf.String(), "info message")
			if hasInfo != tt.logAtInfo {
				t.Errorf("info message visible = %v, want %v (buf: %q)", hasInfo, tt.logAtInfo, buf.String())
			}
		})
	}
}

func TestNewLogger_TraceLabel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("trace", &buf)
	logger.Log(context.Background(), LevelTrace, "agent step")

	if !strings.Contains(buf.String(), "level=TRACE") {
		t.Errorf("expected TRACE label, got %q", buf.String())
	}
}

func TestNewTurnLogger_InfoLevel(t *testing.T) {
	dir := t.TempDir()
	tl := NewTurnLogger(dir, "info")

	if tl != nil {
		t.Error("expected nil TurnLogger at info level")
	}

	// Nil logger should still be safe to use
	tl.Log(map[string]any{"event": "turn"})

	path := filepath.Join(dir, "turns.jsonl")
	if _, err := os.Stat(path); err == nil {
		t.Error("turns.jsonl should not exist at info level")
	}
}

func TestNewTurnLogger_DebugLevel(t *testing.T) {
	dir := t.TempDir()
	tl := NewTurnLogger(dir, "debug")
	defer tl.Close()

	tl.Log(map[string]any{"event": "turn", "liquidity": 1500.5})

	data, err := os.ReadFile(filepath.Join(dir, "turns.jsonl"))
	if err != nil {
		t.Fatalf("failed to read turns.jsonl: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &entry); err != nil {
		t.Fatalf("invalid JSON line: %v", err)
	}
	if entry["event"] != "turn" {
		t.Errorf("event = %v, want turn", entry["event"])
	}
	if entry["liquidity"] != 1500.5 {
		t.Errorf("liquidity = %v, want 1500.5", entry["liquidity"])
	}
	if _, ok := entry["time"]; !ok {
		t.Error("expected time field")
	}
}

func TestTurnLogger_MultipleWrites(t *testing.T) {
	dir := t.TempDir()
	tl := NewTurnLogger(dir, "trace")
	defer tl.Close()

	tl.Log(map[string]any{"turn": 0})
	tl.Log(map[string]any{"turn": 1})

	data, err := os.ReadFile(filepath.Join(dir, "turns.jsonl"))
	if err != nil {
		t.Fatalf("failed to read turns.jsonl: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), string(data))
	}
}

func TestTurnLogger_NilSafety(t *testing.T) {
	var tl *TurnLogger
	tl.Log(map[string]any{"event": "should_not_panic"})
	tl.Close()
}

func TestTurnLogger_DoesNotMutateCallerMap(t *testing.T) {
	dir := t.TempDir()
	tl := NewTurnLogger(dir, "debug")
	defer tl.Close()

	event := map[string]any{"event": "turn"}
	tl.Log(event)

	if _, hasTime := event["time"]; hasTime {
		t.Error("Log() should not mutate caller's map, but 'time' was injected")
	}
}

func TestTurnLogger_LogAfterClose(t *testing.T) {
	dir := t.TempDir()
	tl := NewTurnLogger(dir, "debug")

	tl.Log(map[string]any{"event": "before_close"})
	tl.Close()
	tl.Log(map[string]any{"event": "after_close"})
	tl.Close()
}

func TestNewTurnLogger_CreatesDirWithPermissions(t *testing.T) {
	nested := filepath.Join(t.TempDir(), "sub", "dir")

	tl := NewTurnLogger(nested, "debug")
	if tl == nil {
		t.Fatal("expected non-nil TurnLogger when dir needs creation")
	}
	defer tl.Close()

	tl.Log(map[string]any{"event": "perm_test"})

	info, err := os.Stat(filepath.Join(nested, "turns.jsonl"))
	if err != nil {
		t.Fatalf("turns.jsonl should exist: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permissions = %o, want 0600", perm)
	}
}
