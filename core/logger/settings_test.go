package logger

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	coreconfig "github.com/m3rciful/gostage/core/config"
)

func TestSettingsFrom(t *testing.T) {
	s := settingsFrom(nil)
	assert.Equal(t, slog.LevelInfo, s.level)
	assert.Equal(t, formatJSON, s.format)
	assert.Equal(t, defaultKeyOrder, s.keyOrder)
	assert.Equal(t, 1, s.sampleNum)
	assert.Equal(t, 50, s.sampleDen)

	s = settingsFrom(&coreconfig.Config{Logging: coreconfig.LoggingConfig{
		Level:       "WARNING",
		Profile:     "Dev",
		KeysOrder:   "event, ts ,,level",
		DebugSample: "0",
		Dir:         " /tmp/logs ",
	}})
	assert.Equal(t, slog.LevelWarn, s.level)
	assert.Equal(t, formatKV, s.format, "dev profile defaults to kv")
	assert.Equal(t, "dev", s.profile)
	assert.Equal(t, []string{"event", "ts", "level"}, s.keyOrder)
	assert.Zero(t, s.sampleNum)
	assert.Equal(t, "/tmp/logs", s.dir)

	s = settingsFrom(&coreconfig.Config{Logging: coreconfig.LoggingConfig{Profile: "dev", Format: "json", KeysOrder: "default"}})
	assert.Equal(t, formatJSON, s.format)
	assert.Equal(t, defaultKeyOrder, s.keyOrder)
	assert.Equal(t, "prod", settingsFrom(&coreconfig.Config{}).profile)
}

func TestFieldsKeys(t *testing.T) {
	f := fields{"z": 1, "event": "x", "a": 2, "ts": "t"}
	assert.Equal(t, []string{"ts", "event", "a", "z"}, f.keys([]string{"ts", "event", "ts", "missing"}))

	f = fields{"status": "weird", "outcome": "nope", "empty": "", "nil": nil}
	f.normalizeEnums()
	f.prune()
	_, hasOutcome := f["outcome"]
	assert.False(t, hasOutcome)
	assert.NotContains(t, f, "empty")
	assert.NotContains(t, f, "nil")
}
