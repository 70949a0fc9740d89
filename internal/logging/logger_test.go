// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("expected default level 'info', got '%s'", cfg.Level)
	}
	if cfg.Format != "json" {
		t.Errorf("expected default format 'json', got '%s'", cfg.Format)
	}
	if !cfg.Timestamp {
		t.Error("expected default timestamp to be true")
	}
}

func TestInit(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})
	t.Cleanup(func() { Init(DefaultConfig()) })

	Debug().Str("plate", "AB12CD3456").Msg("detection accepted")

	out := buf.String()
	if !strings.Contains(out, "detection accepted") {
		t.Errorf("expected message in output, got: %s", out)
	}
	if !strings.Contains(out, `"plate":"AB12CD3456"`) {
		t.Errorf("expected plate field in output, got: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"disabled", zerolog.Disabled},
		{"DEBUG", zerolog.DebugLevel},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestValidLevel(t *testing.T) {
	if !ValidLevel("WARN") || !ValidLevel("trace") {
		t.Error("expected known levels to be valid")
	}
	if ValidLevel("verbose") {
		t.Error("expected unknown level to be invalid")
	}
}

func TestCtx_AddsRequestAndDevice(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(NewTestLogger(&buf))
	t.Cleanup(func() { Init(DefaultConfig()) })

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithDeviceKey(ctx, "SN-0042")
	Ctx(ctx).Info().Msg("hello")

	out := buf.String()
	if !strings.Contains(out, `"request_id":"req-1"`) {
		t.Errorf("missing request_id: %s", out)
	}
	if !strings.Contains(out, `"device_key":"SN-0042"`) {
		t.Errorf("missing device_key: %s", out)
	}
}

func TestCtx_EmptyContext(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(NewTestLogger(&buf))
	t.Cleanup(func() { Init(DefaultConfig()) })

	Ctx(context.Background()).Info().Msg("plain")
	if strings.Contains(buf.String(), "request_id") {
		t.Errorf("unexpected request_id: %s", buf.String())
	}
}

func TestGenerateRequestID(t *testing.T) {
	a, b := GenerateRequestID(), GenerateRequestID()
	if len(a) != 36 || a == b {
		t.Errorf("unexpected ids %q %q", a, b)
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(NewTestLogger(&buf))
	t.Cleanup(func() { Init(DefaultConfig()) })

	l := WithComponent("dedup")
	l.Info().Msg("x")
	if !strings.Contains(buf.String(), `"component":"dedup"`) {
		t.Errorf("missing component: %s", buf.String())
	}
}

func TestSlogHandler(t *testing.T) {
	var buf bytes.Buffer
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	t.Cleanup(func() { Init(DefaultConfig()) })

	logger := slog.New(NewSlogHandler(NewTestLogger(&buf)))
	logger.With("service", "http").WithGroup("req").Warn("restarting",
		"attempt", 3,
		"ok", false,
		"err", errors.New("boom"),
		slog.Group("inner", "k", "v"),
	)

	out := buf.String()
	for _, want := range []string{
		`"level":"warn"`,
		`"message":"restarting"`,
		`"service":"http"`,
		`"req.attempt":3`,
		`"req.ok":false`,
		`"req.err":"boom"`,
		`"req.inner.k":"v"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s: %s", want, out)
		}
	}
}

func TestSlogHandler_Enabled(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	t.Cleanup(func() { Init(DefaultConfig()) })

	h := NewSlogHandler(NewTestLogger(&bytes.Buffer{}))
	if h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug should be disabled at info level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("error should be enabled at info level")
	}
}

func TestToZerologLevel(t *testing.T) {
	tests := map[slog.Level]zerolog.Level{
		slog.LevelDebug - 4: zerolog.TraceLevel,
		slog.LevelDebug:     zerolog.DebugLevel,
		slog.LevelInfo:      zerolog.InfoLevel,
		slog.LevelWarn:      zerolog.WarnLevel,
		slog.LevelError:     zerolog.ErrorLevel,
	}
	for in, want := range tests {
		if got := toZerologLevel(in); got != want {
			t.Errorf("toZerologLevel(%v) = %v, want %v", in, got, want)
		}
	}
}
