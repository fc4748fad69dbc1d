package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "info", "json")

	l.Info("page fetched", slog.String("query", "cars"), slog.Int("page", 2))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON output, got %v: %s", err, buf.String())
	}
	if entry["msg"] != "page fetched" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["query"] != "cars" {
		t.Errorf("query = %v", entry["query"])
	}
	if entry["page"] != float64(2) {
		t.Errorf("page = %v", entry["page"])
	}
}

func TestNew_TextFormatRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "warn", "text")

	l.Info("hidden")
	l.Warn("visible", slog.String("reason", "sold"))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be filtered: %s", out)
	}
	if !strings.Contains(out, "visible") || !strings.Contains(out, "reason=sold") {
		t.Fatalf("warn line missing: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
