package logger

import (
	"log/slog"
	"os"
	"strings"

	coreconfig "github.com/m3rciful/gostage/core/config"
)

// settings is the logging section of the config resolved to concrete values.
type settings struct {
	level      slog.Level
	format     logFormat
	keyOrder   []string
	profile    string
	sampleNum  int
	sampleDen  int
	trace      bool
	dir        string
	botFile    string
	errorsFile string
}

func settingsFrom(cfg *coreconfig.Config) settings {
	s := settings{
		level:     slog.LevelInfo,
		format:    formatJSON,
		keyOrder:  append([]string(nil), defaultKeyOrder...),
		sampleNum: 1,
		sampleDen: 50,
		trace:     isTruthy(os.Getenv("TRACE")) || isTruthy(os.Getenv("LOG_TRACE")),
	}
	if cfg == nil {
		return s
	}
	lc := cfg.Logging

	s.profile = strings.ToLower(strings.TrimSpace(lc.Profile))
	if s.profile == "" {
		s.profile = "prod"
	}

	switch strings.ToLower(strings.TrimSpace(lc.Level)) {
	case "debug":
		s.level = slog.LevelDebug
	case "warn", "warning":
		s.level = slog.LevelWarn
	case "error":
		s.level = slog.LevelError
	}

	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		s.format = formatKV
	case "json":
	default:
		if s.profile == "debug" || s.profile == "dev" {
			s.format = formatKV
		}
	}

	if raw := strings.TrimSpace(lc.KeysOrder); raw != "" && raw != "default" {
		var order []string
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				order = append(order, p)
			}
		}
		if len(order) > 0 {
			s.keyOrder = order
		}
	}

	if raw := strings.TrimSpace(lc.DebugSample); raw != "" {
		// "0" and malformed ratios disable sampling.
		s.sampleNum, s.sampleDen = parseRatio(raw)
		if s.sampleNum <= 0 || s.sampleDen <= 0 {
			s.sampleNum, s.sampleDen = 0, 0
		}
	}

	s.dir = strings.TrimSpace(lc.Dir)
	s.botFile = strings.TrimSpace(lc.BotFile)
	s.errorsFile = strings.TrimSpace(lc.ErrorsFile)
	return s
}

func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}
