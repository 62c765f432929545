package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var logEntry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	return logEntry
}

func TestNewEventLogger_TagsComponent(t *testing.T) {
	var buf bytes.Buffer
	dl := NewEventLogger(zerolog.New(&buf))

	dl.Info("handling event", "command", "fix:record")

	logEntry := decodeEntry(t, &buf)
	if logEntry["component"] != "dispatcher" {
		t.Errorf("expected component='dispatcher', got %v", logEntry["component"])
	}
	if logEntry["command"] != "fix:record" {
		t.Errorf("expected command='fix:record', got %v", logEntry["command"])
	}
}

func TestEventLogger_TypedFields(t *testing.T) {
	var buf bytes.Buffer
	dl := NewEventLogger(zerolog.New(&buf))

	dl.Error("event failed", "error", errors.New("disk full"), "duration", 1500*time.Millisecond)

	logEntry := decodeEntry(t, &buf)
	if logEntry["error"] != "disk full" {
		t.Errorf("expected error='disk full', got %v", logEntry["error"])
	}
	// zerolog renders durations in milliseconds by default
	if logEntry["duration"] != float64(1500) {
		t.Errorf("expected duration=1500, got %v", logEntry["duration"])
	}
}

func TestEventLogger_NonStringKeySkipped(t *testing.T) {
	var buf bytes.Buffer
	dl := NewEventLogger(zerolog.New(&buf))

	dl.Info("odd keys", 7, "seven", "ok", true)

	logEntry := decodeEntry(t, &buf)
	if logEntry["ok"] != true {
		t.Errorf("expected ok=true, got %v", logEntry["ok"])
	}
	if _, found := logEntry["7"]; found {
		t.Error("non-string key must be skipped")
	}
}

func TestEventLogger_Debug(t *testing.T) {
	var buf bytes.Buffer
	dl := NewEventLogger(zerolog.New(&buf).Level(zerolog.DebugLevel))

	dl.Debug("test message", "key1", "value1", "key2", 42)

	logEntry := decodeEntry(t, &buf)
	if logEntry["level"] != "debug" {
		t.Errorf("expected level 'debug', got %v", logEntry["level"])
	}
	if logEntry["message"] != "test message" {
		t.Errorf("expected message 'test message', got %v", logEntry["message"])
	}
	if logEntry["key1"] != "value1" {
		t.Errorf("expected key1='value1', got %v", logEntry["key1"])
	}
	if logEntry["key2"] != float64(42) { // JSON numbers are float64
		t.Errorf("expected key2=42, got %v", logEntry["key2"])
	}
}

func TestEventLogger_Info(t *testing.T) {
	var buf bytes.Buffer
	dl := NewEventLogger(zerolog.New(&buf).Level(zerolog.InfoLevel))

	dl.Info("info message", "status", "ok")

	logEntry := decodeEntry(t, &buf)
	if logEntry["level"] != "info" {
		t.Errorf("expected level 'info', got %v", logEntry["level"])
	}
	if logEntry["status"] != "ok" {
		t.Errorf("expected status='ok', got %v", logEntry["status"])
	}
}

func TestEventLogger_Error(t *testing.T) {
	var buf bytes.Buffer
	dl := NewEventLogger(zerolog.New(&buf).Level(zerolog.ErrorLevel))

	dl.Error("error occurred", "code", 500, "reason", "internal")

	logEntry := decodeEntry(t, &buf)
	if logEntry["level"] != "error" {
		t.Errorf("expected level 'error', got %v", logEntry["level"])
	}
	if logEntry["code"] != float64(500) {
		t.Errorf("expected code=500, got %v", logEntry["code"])
	}
	if logEntry["reason"] != "internal" {
		t.Errorf("expected reason='internal', got %v", logEntry["reason"])
	}
}

func TestEventLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	dl := NewEventLogger(zerolog.New(&buf).Level(zerolog.InfoLevel))

	dl.Debug("hidden")

	if buf.Len() != 0 {
		t.Errorf("expected debug to be filtered, got %q", buf.String())
	}
}

func TestEventLogger_OddKeyValues(t *testing.T) {
	var buf bytes.Buffer
	dl := NewEventLogger(zerolog.New(&buf))

	dl.Info("odd", "key", "value", "dangling", 7, "x")

	logEntry := decodeEntry(t, &buf)
	if logEntry["key"] != "value" {
		t.Errorf("expected key='value', got %v", logEntry["key"])
	}
	if _, ok := logEntry["x"]; ok {
		t.Error("dangling key without value must be dropped")
	}
}

func TestEventLogger_ImplementsInterface(t *testing.T) {
	dl := NewEventLogger(zerolog.Nop())

	var _ interface {
		Debug(msg string, keysAndValues ...any)
		Info(msg string, keysAndValues ...any)
		Error(msg string, keysAndValues ...any)
	} = dl
}

func TestNewZerolog(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerolog(&buf, "warn")

	logger.Info().Msg("hidden")
	logger.Warn().Str("bucket", "fixes").Msg("shown")

	logEntry := decodeEntry(t, &buf)
	if logEntry["message"] != "shown" {
		t.Errorf("expected message 'shown', got %v", logEntry["message"])
	}
	if _, ok := logEntry["time"]; !ok {
		t.Error("expected timestamp field")
	}
}

func TestNewZerolog_DefaultLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerolog(&buf, "bogus")

	logger.Debug().Msg("hidden")
	if buf.Len() != 0 {
		t.Errorf("expected info default level, got %q", buf.String())
	}
}
