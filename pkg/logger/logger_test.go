package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"Error", slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			got, err := ParseLevel(tt.level)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.level, got, tt.want)
			}
		})
	}

	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("expected error for invalid log level, got nil")
	}
}

func TestInitLogger_InvalidLevel(t *testing.T) {
	err := InitLogger("invalid")
	if err == nil {
		t.Error("expected error for invalid log level, got nil")
	}
}

func TestInitLoggerWithWriter_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	if err := InitLoggerWithWriter("warn", &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { globalLogger = nil }()

	log := GetLogger()
	log.Info("hidden")
	log.Warn("process caused an error", "pid", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message written at warn level: %q", out)
	}
	if !strings.Contains(out, "pid=3") {
		t.Errorf("warn message missing attributes: %q", out)
	}
}

func TestGetLogger_BeforeInit(t *testing.T) {
	// globalLoggerをリセット
	globalLogger = nil

	logger := GetLogger()
	if logger != slog.Default() {
		t.Error("GetLogger() should return slog.Default() when not initialized")
	}
}

func TestDiscard(t *testing.T) {
	if Discard() == nil {
		t.Fatal("Discard() returned nil")
	}
}
