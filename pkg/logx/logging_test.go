package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "debug").With(String("comp", "engine"))

	log.Info("job done", String("job", "report"), Int("status", 200), Err(errors.New("boom")))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("decode log line: %v (%q)", err, buf.String())
	}
	if m["comp"] != "engine" {
		t.Fatalf("comp = %v, want engine", m["comp"])
	}
	if m["job"] != "report" {
		t.Fatalf("job = %v, want report", m["job"])
	}
	if m["status"] != float64(200) {
		t.Fatalf("status = %v, want 200", m["status"])
	}
	if m["message"] != "job done" {
		t.Fatalf("message = %v, want %q", m["message"], "job done")
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn")
	log.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered, got %q", buf.String())
	}
	if log.Enabled(LevelInfo) {
		t.Fatal("Enabled(info) = true, want false")
	}
	log.Warn("shown")
	if buf.Len() == 0 {
		t.Fatal("expected warn line")
	}
}

func TestZeroAndNop(t *testing.T) {
	var zero Logger
	if !zero.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	zero.Info("no panic")

	if Nop().IsZero() {
		t.Fatal("Nop() should not report IsZero")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" WARNING ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"nonsense", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in, zerolog.InfoLevel); got != tt.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
