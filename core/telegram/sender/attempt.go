package sender

import (
	"context"
	"errors"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/gostage/core/logger"
	"github.com/m3rciful/gostage/core/telegram/netutil"
)

// execute runs j until it succeeds, fails permanently, runs out of
// attempts or exceeds MaxDuration.
func (d *Dispatcher) execute(j job) Result {
	ctx, cancel := context.WithTimeout(j.ctx, d.opts.MaxDuration)
	defer cancel()

	res := Result{Action: j.action, Endpoint: j.endpoint, Key: j.key}
	start := time.Now()
	maxAttempts := d.opts.MaxRetries + 1
	logger.Debug(j.ctx, component, "send.start", jobAttrs(j.ctx, j)...)

	for res.Attempts < maxAttempts {
		if err := ctx.Err(); err != nil {
			res.Err = err
			break
		}
		res.Attempts++
		res.Err = j.run()
		if res.Err == nil || res.Attempts == maxAttempts {
			break
		}
		delay, ok := d.retryDelay(res.Err, res.Attempts)
		if !ok {
			break
		}
		logger.Debug(j.ctx, component, "send.retry.backoff", append(jobAttrs(j.ctx, j),
			slog.Int("attempt", res.Attempts),
			slog.Duration("delay", delay),
		)...)
		if err := sleep(ctx, delay); err != nil {
			res.Err = err
			break
		}
	}

	res.Elapsed = time.Since(start)
	if res.Err != nil {
		res.Kind = classifyError(res.Err)
	}
	logResult(j, res)
	return res
}

// retryDelay reports whether err is worth another attempt and how long to
// wait first. Flood waits use the delay Telegram asked for.
func (d *Dispatcher) retryDelay(err error, attempt int) (time.Duration, bool) {
	var flood tele.FloodError
	if errors.As(err, &flood) {
		if flood.RetryAfter > 0 {
			return time.Duration(flood.RetryAfter) * time.Second, true
		}
		return d.opts.RetryBackoff, true
	}
	if !netutil.ShouldRetry(err) {
		return 0, false
	}
	return d.opts.RetryBackoff * time.Duration(attempt), true
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func jobAttrs(ctx context.Context, j job) []slog.Attr {
	attrs := []slog.Attr{slog.String("action", j.action)}
	if j.endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", j.endpoint))
	}
	if j.key != "" {
		attrs = append(attrs, slog.String("session_id", j.key))
	}
	if rid := logger.RIDFrom(ctx); rid != "" {
		attrs = append(attrs, slog.String("rid", rid))
	}
	if id := logger.UpdateIDFrom(ctx); id != 0 {
		attrs = append(attrs, slog.Int("update_id", id))
	}
	return attrs
}

func logResult(j job, res Result) {
	attrs := append(jobAttrs(j.ctx, j), slog.Duration("duration", logger.RoundMS(res.Elapsed)))
	switch {
	case res.Err != nil:
		logger.Error(j.ctx, component, "send.fail", append(attrs,
			slog.String("status", "fail"),
			slog.String("err", sanitizeErrorMessage(res.Err)),
			slog.String("error_kind", res.Kind),
			slog.Int("attempts", res.Attempts),
		)...)
	case res.Attempts > 1:
		logger.Info(j.ctx, component, "send.retry.success", append(attrs,
			slog.String("status", "ok"),
			slog.Int("attempts", res.Attempts),
		)...)
	default:
		logger.Debug(j.ctx, component, "send.success", append(attrs, slog.String("status", "ok"))...)
	}
}
