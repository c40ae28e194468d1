package observability

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"off", zerolog.Disabled},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLogLevel(tt.level); got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestInitTracerDisabled(t *testing.T) {
	shutdown, err := InitTracer(TracerConfig{Enabled: false})
	if err != nil {
		t.Fatalf("InitTracer() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}

	_, span := StartSpan(context.Background(), "test")
	EndSpan(span, nil, "ok")
}

func TestInitTracerUnsupportedProtocol(t *testing.T) {
	for _, protocol := range []string{"udp", ""} {
		if _, err := InitTracer(TracerConfig{Enabled: true, Protocol: protocol}); err == nil {
			t.Errorf("InitTracer(%q) expected error for unsupported protocol", protocol)
		}
	}
}
