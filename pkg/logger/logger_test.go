package logger

import (
	"errors"
	"log/slog"
	"testing"
)

func TestScope(t *testing.T) {
	tests := []struct {
		name  string
		scope string
	}{
		{"basic scope", "jobs"},
		{"nested scope", "linking.pairwise"},
		{"empty scope", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attr := Scope(tt.scope)
			if attr.Key != "scope" {
				t.Errorf("Scope() key = %q, want %q", attr.Key, "scope")
			}
			if attr.Value.String() != tt.scope {
				t.Errorf("Scope() value = %q, want %q", attr.Value.String(), tt.scope)
			}
		})
	}
}

func TestError(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"simple error", errors.New("claim fetch failed")},
		{"nil error", nil},
		{"joined error", errors.Join(errors.New("outer"), errors.New("inner"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attr := Error(tt.err)
			if attr.Key != "error" {
				t.Errorf("Error() key = %q, want %q", attr.Key, "error")
			}
			if got := attr.Value.Any(); got != tt.err {
				t.Errorf("Error() value = %v, want %v", got, tt.err)
			}
		})
	}
}

func TestNewLogger_Levels(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		enabled  slog.Level
		disabled slog.Level
	}{
		{"default is info", "", slog.LevelInfo, slog.LevelDebug},
		{"debug", "debug", slog.LevelDebug, slog.LevelDebug - 4},
		{"warn", "warn", slog.LevelWarn, slog.LevelInfo},
		{"warning alias", "warning", slog.LevelWarn, slog.LevelInfo},
		{"error", "error", slog.LevelError, slog.LevelWarn},
		{"case insensitive", "DeBuG", slog.LevelDebug, slog.LevelDebug - 4},
		{"invalid falls back to info", "verbose", slog.LevelInfo, slog.LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", tt.level)
			t.Setenv("GO_ENV", "")

			log := NewLogger()
			if log == nil {
				t.Fatal("NewLogger() returned nil")
			}
			if !log.Enabled(nil, tt.enabled) {
				t.Errorf("level %v should be enabled for LOG_LEVEL=%q", tt.enabled, tt.level)
			}
			if log.Enabled(nil, tt.disabled) {
				t.Errorf("level %v should be disabled for LOG_LEVEL=%q", tt.disabled, tt.level)
			}
		})
	}
}

func TestNewLogger_ProductionJSON(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("GO_ENV", "production")

	log := NewLogger()
	if log == nil {
		t.Fatal("NewLogger() returned nil")
	}
	if !log.Enabled(nil, slog.LevelInfo) {
		t.Error("info level should be enabled in production")
	}
}
