// Package logger provides the structured slog setup shared by every
// component: ordered kv or JSON lines, async sinks and context fields.
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/m3rciful/gostage/core/buildinfo"
	coreconfig "github.com/m3rciful/gostage/core/config"
)

var (
	initOnce   sync.Once
	shutdownMu sync.Mutex
	shutdown   bool

	logWriter  *asyncWriter
	errWriter  *asyncWriter
	logClosers []io.Closer

	levelVar slog.LevelVar

	debugSampler  = newRatioSampler(1, 50)
	traceOverride bool

	// L is the base logger. It stays nil until InitLogger runs, which turns
	// every helper in this package into a no-op.
	L *slog.Logger
)

// InitLogger configures the global structured logger. Only the first call
// has an effect.
func InitLogger(cfg *coreconfig.Config) error {
	var initErr error
	initOnce.Do(func() {
		s := settingsFrom(cfg)
		levelVar.Set(s.level)
		debugSampler.Set(s.sampleNum, s.sampleDen)
		traceOverride = s.trace

		outs, errOuts, err := s.openSinks()
		if err != nil {
			initErr = err
			return
		}
		logWriter = newAsyncWriter(outs, 64*1024)
		if len(errOuts) > 0 {
			errWriter = newAsyncWriter(errOuts, 16*1024)
		}

		L = slog.New(newStructuredHandler(handlerConfig{
			level:    &levelVar,
			writer:   logWriter,
			errors:   errWriter,
			format:   s.format,
			keyOrder: s.keyOrder,
		}))
		slog.SetDefault(L)

		Info(context.Background(), "app", "startup",
			slog.String("go_version", runtime.Version()),
			slog.String("build_version", buildinfo.Version),
			slog.String("build_commit", buildinfo.Commit),
			slog.String("build_time", buildinfo.Date),
			slog.String("cfg_profile", s.profile),
		)
	})
	return initErr
}

// openSinks returns stdout plus the configured files. Opened files are
// recorded for Shutdown.
func (s settings) openSinks() (outs, errOuts []io.Writer, err error) {
	outs = []io.Writer{os.Stdout}
	if s.dir == "" {
		return outs, nil, nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("logger: create log dir %s: %w", s.dir, err)
	}
	for _, sink := range []struct {
		name string
		dst  *[]io.Writer
	}{{s.botFile, &outs}, {s.errorsFile, &errOuts}} {
		if sink.name == "" {
			continue
		}
		path := filepath.Join(s.dir, sink.name)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("logger: open log file %s: %w", path, err)
		}
		logClosers = append(logClosers, f)
		*sink.dst = append(*sink.dst, f)
	}
	return outs, errOuts, nil
}

// Shutdown flushes buffered output and closes opened sinks. Later calls are no-ops.
func Shutdown() error {
	shutdownMu.Lock()
	defer shutdownMu.Unlock()
	if shutdown {
		return nil
	}
	shutdown = true

	var errs []error
	for _, w := range []*asyncWriter{logWriter, errWriter} {
		if w != nil {
			errs = append(errs, w.Close())
		}
	}
	for _, c := range logClosers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// SetLevel changes the minimum level at runtime.
func SetLevel(level slog.Level) {
	levelVar.Set(level)
}

// ShouldSampleDebug reports whether a high-volume debug line should be
// written. TRACE=1 lets every line through.
func ShouldSampleDebug() bool {
	return traceOverride || debugSampler.Allow()
}
