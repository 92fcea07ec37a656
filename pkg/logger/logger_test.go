package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"info", LevelInfo},
		{"bogus", LevelInfo},
		{"", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestInitWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(Config{Level: LevelDebug, Format: "json", Output: &buf}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer Disable()

	LogPhase("lower")
	if !strings.Contains(buf.String(), `"phase":"lower"`) {
		t.Errorf("expected phase attribute in output, got %q", buf.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(Config{Level: LevelError, Format: "text", Output: &buf}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer Disable()

	Debug("hidden")
	Info("hidden")
	Error("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug/info records leaked: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("error record missing: %q", out)
	}
}

func TestDisabledIsSilent(t *testing.T) {
	Disable()
	// Must not panic without a configured logger.
	Debug("x")
	Info("x")
	Warn("x")
	Error("x")
	With("k", "v").Info("x")
}
