package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestNewDefaultLogger(t *testing.T) {
	logger := NewDefaultLogger()

	if logger == nil {
		t.Error("NewDefaultLogger() should not return nil")
	}

	// Test that logger methods don't panic
	logger.Error("test error")
	logger.Errorf("test error: %s", "message")
	logger.Warn("test warning")
	logger.Warnf("test warning: %s", "message")
	logger.Info("test info")
	logger.Infof("test info: %s", "message")
	logger.Debug("test debug")
	logger.Debugf("test debug: %s", "message")
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Level: LevelWarn, Output: &buf, Plain: true})

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warnf("shown %d", 1)
	logger.Error("shown 2")

	want := "[WARN] shown 1\n[ERROR] shown 2\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(LoggerConfig{Level: LevelDebug, Output: &buf, Plain: true})
	child := base.WithFields(map[string]interface{}{"class": "demo/A"})
	child.WithFields(map[string]interface{}{"pc": 4}).Info("step")
	base.Info("plain")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines: %q", len(lines), buf.String())
	}
	if lines[0] != "[INFO] step map[class:demo/A pc:4]" {
		t.Errorf("line 0 = %q", lines[0])
	}
	if lines[1] != "[INFO] plain" {
		t.Errorf("parent logger picked up child fields: %q", lines[1])
	}
}

func TestJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Level: LevelInfo, Format: "json", Output: &buf})
	ctx := WithInvocationID(context.Background(), "inv-1")
	logger.WithContext(ctx).Infof("loaded %s", "demo/A")
	logger.Debug("hidden")

	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("output is not a single JSON object: %v (%q)", err, buf.String())
	}
	if entry["level"] != "INFO" || entry["message"] != "loaded demo/A" {
		t.Errorf("entry = %v", entry)
	}
	if entry["timestamp"] == nil {
		t.Error("timestamp missing")
	}
	fields, _ := entry["fields"].(map[string]interface{})
	if fields["invocation_id"] != "inv-1" {
		t.Errorf("fields = %v", fields)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v", tt.in, got, err)
		}
		var cerr *Error
		if tt.wantErr && (!errors.As(err, &cerr) || cerr.Code != "INVALID_LEVEL") {
			t.Errorf("ParseLevel(%q) error = %#v, want INVALID_LEVEL", tt.in, err)
		}
	}
}
