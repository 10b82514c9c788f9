package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"vignette/internal/config"
)

const (
	logLevelEnvKey  = "VIGNETTE_LOG_LEVEL"
	logFormatEnvKey = "VIGNETTE_LOG_FORMAT"
)

// logOrigin records which layer supplied a logging value.
type logOrigin int

const (
	originDefault logOrigin = iota
	originConfig
	originEnv
	originFlag
)

// logValue is one raw setting and where it came from.
type logValue struct {
	raw    string
	origin logOrigin
}

// label names the setting the way a user would have written it.
func (v logValue) label(flag, env, key string) string {
	switch v.origin {
	case originFlag:
		return "--" + flag
	case originEnv:
		return env
	case originConfig:
		return key
	default:
		return "default"
	}
}

// firstSet returns the highest priority non-blank candidate.
func firstSet(candidates ...logValue) logValue {
	for _, c := range candidates {
		if strings.TrimSpace(c.raw) != "" {
			return c
		}
	}
	return logValue{origin: originDefault}
}

// logFlags carries the raw --log-level and --log-format values.
type logFlags struct {
	level  string
	format string
}

type logOptions struct {
	level slog.Level
	json  bool
}

func (o logOptions) handler(w io.Writer) slog.Handler {
	ho := &slog.HandlerOptions{Level: o.level}
	if o.json {
		return slog.NewJSONHandler(w, ho)
	}
	return slog.NewTextHandler(w, ho)
}

// setupLogging installs the process logger on stderr. Bad flag values fail
// the command; bad env or config values fall back and come back as warnings.
func setupLogging(flags logFlags, configLevel string) ([]string, error) {
	opts, warnings, err := resolveLogOptions(flags, os.Getenv(logLevelEnvKey), os.Getenv(logFormatEnvKey), configLevel)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(opts.handler(os.Stderr)))
	return warnings, nil
}

func resolveLogOptions(flags logFlags, envLevel, envFormat, configLevel string) (logOptions, []string, error) {
	var (
		opts     logOptions
		warnings []string
	)

	level := firstSet(
		logValue{flags.level, originFlag},
		logValue{envLevel, originEnv},
		logValue{configLevel, originConfig},
	)
	fallback, _ := parseLevel(config.DefaultLogLevel)
	opts.level = fallback
	if level.origin != originDefault {
		parsed, err := parseLevel(level.raw)
		switch {
		case err == nil:
			opts.level = parsed
		case level.origin == originFlag:
			return logOptions{}, nil, fmt.Errorf("invalid --log-level %q", level.raw)
		default:
			warnings = append(warnings, fmt.Sprintf("warning: invalid %s=%q; defaulting to %s",
				level.label("log-level", logLevelEnvKey, "log_level"), level.raw, config.DefaultLogLevel))
		}
	}

	format := firstSet(
		logValue{flags.format, originFlag},
		logValue{envFormat, originEnv},
	)
	if format.origin != originDefault {
		asJSON, err := parseFormat(format.raw)
		switch {
		case err == nil:
			opts.json = asJSON
		case format.origin == originFlag:
			return logOptions{}, nil, fmt.Errorf("invalid --log-format %q", format.raw)
		default:
			warnings = append(warnings, fmt.Sprintf("warning: invalid %s=%q; defaulting to text",
				format.label("log-format", logFormatEnvKey, ""), format.raw))
		}
	}

	return opts, warnings, nil
}

var levelAliases = map[string]string{
	"warning": "warn",
	"err":     "error",
	"trace":   "debug-4",
}

// parseLevel accepts slog level names with offsets ("info+2"), a few common
// aliases, and bare integers.
func parseLevel(raw string) (slog.Level, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if alias, ok := levelAliases[value]; ok {
		value = alias
	}
	if n, err := strconv.Atoi(value); err == nil {
		return slog.Level(n), nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", raw)
	}
	return level, nil
}

func parseFormat(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "text":
		return false, nil
	case "json":
		return true, nil
	default:
		return false, fmt.Errorf("unknown log format %q", raw)
	}
}
