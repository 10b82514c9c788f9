package main

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		raw     string
		want    slog.Level
		wantErr bool
	}{
		{raw: "debug", want: slog.LevelDebug},
		{raw: "INFO", want: slog.LevelInfo},
		{raw: "warning", want: slog.LevelWarn},
		{raw: "err", want: slog.LevelError},
		{raw: "trace", want: slog.LevelDebug - 4},
		{raw: "info+2", want: slog.LevelInfo + 2},
		{raw: "-4", want: slog.LevelDebug},
		{raw: "verbose", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseLevel(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parse level: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestResolveLogOptionsPrecedence(t *testing.T) {
	tests := []struct {
		name        string
		flags       logFlags
		envLevel    string
		envFormat   string
		configLevel string
		wantLevel   slog.Level
		wantJSON    bool
	}{
		{name: "defaults", wantLevel: slog.LevelDebug},
		{name: "config", configLevel: "error", wantLevel: slog.LevelError},
		{name: "env over config", envLevel: "warn", configLevel: "error", wantLevel: slog.LevelWarn},
		{name: "flag over env", flags: logFlags{level: "info"}, envLevel: "warn", wantLevel: slog.LevelInfo},
		{name: "env format", envFormat: "json", wantLevel: slog.LevelDebug, wantJSON: true},
		{name: "flag format over env", flags: logFlags{format: "text"}, envFormat: "json", wantLevel: slog.LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, warnings, err := resolveLogOptions(tt.flags, tt.envLevel, tt.envFormat, tt.configLevel)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if len(warnings) != 0 {
				t.Fatalf("expected no warnings, got %v", warnings)
			}
			if opts.level != tt.wantLevel || opts.json != tt.wantJSON {
				t.Fatalf("expected level=%v json=%v, got level=%v json=%v", tt.wantLevel, tt.wantJSON, opts.level, opts.json)
			}
		})
	}
}

func TestResolveLogOptionsBadValues(t *testing.T) {
	t.Run("flag level fails", func(t *testing.T) {
		_, _, err := resolveLogOptions(logFlags{level: "verbose"}, "", "", "info")
		if err == nil || !strings.Contains(err.Error(), "--log-level") {
			t.Fatalf("expected flag error, got %v", err)
		}
	})

	t.Run("flag format fails", func(t *testing.T) {
		_, _, err := resolveLogOptions(logFlags{format: "xml"}, "", "", "")
		if err == nil || !strings.Contains(err.Error(), "--log-format") {
			t.Fatalf("expected flag error, got %v", err)
		}
	})

	t.Run("valid flag hides bad env", func(t *testing.T) {
		opts, warnings, err := resolveLogOptions(logFlags{level: "error"}, "verbose", "", "")
		if err != nil || len(warnings) != 0 || opts.level != slog.LevelError {
			t.Fatalf("unexpected result %+v %v %v", opts, warnings, err)
		}
	})

	t.Run("env falls back with warnings", func(t *testing.T) {
		opts, warnings, err := resolveLogOptions(logFlags{}, "verbose", "yaml", "")
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if opts.level != slog.LevelDebug || opts.json {
			t.Fatalf("expected debug text fallback, got %+v", opts)
		}
		if len(warnings) != 2 {
			t.Fatalf("expected two warnings, got %v", warnings)
		}
		if !strings.Contains(warnings[0], logLevelEnvKey) || !strings.Contains(warnings[0], "defaulting to debug") {
			t.Fatalf("unexpected level warning %q", warnings[0])
		}
		if !strings.Contains(warnings[1], logFormatEnvKey) || !strings.Contains(warnings[1], "defaulting to text") {
			t.Fatalf("unexpected format warning %q", warnings[1])
		}
	})

	t.Run("config falls back with warning", func(t *testing.T) {
		_, warnings, err := resolveLogOptions(logFlags{}, "", "", "verbose")
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if len(warnings) != 1 || !strings.Contains(warnings[0], `invalid log_level="verbose"`) {
			t.Fatalf("unexpected warnings %v", warnings)
		}
	})
}

func TestLogOptionsHandler(t *testing.T) {
	var buf bytes.Buffer
	slog.New(logOptions{level: slog.LevelInfo, json: true}.handler(&buf)).Info("ready", "image_id", "img-1")
	if !strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), `"image_id":"img-1"`) {
		t.Fatalf("expected json record, got %q", buf.String())
	}

	buf.Reset()
	logger := slog.New(logOptions{level: slog.LevelWarn}.handler(&buf))
	logger.Info("hidden")
	logger.Warn("shown", "preset", "thumb")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "preset=thumb") {
		t.Fatalf("unexpected text output %q", buf.String())
	}
}

func TestSetupLoggingReadsEnvironment(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	t.Setenv(logLevelEnvKey, "error")
	t.Setenv(logFormatEnvKey, "json")
	warnings, err := setupLogging(logFlags{}, "debug")
	if err != nil || len(warnings) != 0 {
		t.Fatalf("setup: %v %v", warnings, err)
	}
	if slog.Default().Enabled(context.Background(), slog.LevelWarn) {
		t.Fatal("expected warn to be disabled at error level")
	}
}
