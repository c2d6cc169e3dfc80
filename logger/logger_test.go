package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoggerJSONOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(slog.LevelDebug, FormatJSON, buf)

	log.Debug("debug message", "key", "value")
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to parse log output: %v", err)
	}
	if entry["level"] != "DEBUG" || entry["msg"] != "debug message" || entry["key"] != "value" {
		t.Errorf("Debug message not logged correctly: %v", entry)
	}
	buf.Reset()

	log.Error("error message", "err", "boom")
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to parse log output: %v", err)
	}
	if entry["level"] != "ERROR" || entry["err"] != "boom" {
		t.Errorf("Error message not logged correctly: %v", entry)
	}
}

func TestLoggerTextOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(slog.LevelInfo, FormatText, buf)

	log.Info("text message", "key", "value")
	out := buf.String()
	if !strings.Contains(out, "text message") || !strings.Contains(out, "key=value") {
		t.Errorf("Text message not logged correctly: %s", out)
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(slog.LevelWarn, FormatText, buf)

	log.Info("should be filtered")
	if buf.Len() != 0 {
		t.Errorf("Expected info message to be filtered at warn level, got: %s", buf.String())
	}

	log.SetLevel(slog.LevelDebug)
	log.Info("should appear")
	if !strings.Contains(buf.String(), "should appear") {
		t.Error("Expected info message after lowering level")
	}
	if log.Level() != slog.LevelDebug {
		t.Errorf("Expected level debug, got %v", log.Level())
	}
}

func TestLoggerRotate(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.log")
	second := filepath.Join(dir, "second.log")

	file, err := os.OpenFile(first, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		t.Fatalf("Failed to create log file: %v", err)
	}
	log := New(slog.LevelInfo, FormatText, file)

	log.Info("before rotate")
	if err := log.Rotate(second); err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	log.Info("after rotate")

	data, err := os.ReadFile(second)
	if err != nil {
		t.Fatalf("Failed to read rotated file: %v", err)
	}
	if !strings.Contains(string(data), "after rotate") {
		t.Errorf("Expected rotated file to contain new entry, got: %s", data)
	}
	if err := log.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestGetLevelFromString(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"Warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"unknown": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := GetLevelFromString(in); got != want {
			t.Errorf("GetLevelFromString(%q) = %v, want %v", in, got, want)
		}
	}
}
