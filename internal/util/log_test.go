package util

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLoggerLevel(t *testing.T) {
	logger := NewLogger("debug")
	if logger.GetLevel() != zerolog.DebugLevel {
		t.Fatalf("expected debug level, got %s", logger.GetLevel())
	}

	logger = NewLogger("invalid")
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("expected info fallback, got %s", logger.GetLevel())
	}

	logger = NewLogger("")
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("expected info for empty level, got %s", logger.GetLevel())
	}
}

func TestComponentTagsOutput(t *testing.T) {
	var buf bytes.Buffer
	base := newLogger(&buf, "info")
	l := Component(base, "ingestor")
	l.Info().Msg("hello")
	out := buf.String()
	if !strings.Contains(out, `"component":"ingestor"`) {
		t.Fatalf("component field missing: %s", out)
	}
	if !strings.Contains(out, `"service":"alphabot"`) {
		t.Fatalf("service field missing: %s", out)
	}
}
