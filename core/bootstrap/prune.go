package bootstrap

import (
	"context"
	"log/slog"
	"time"

	"github.com/m3rciful/gostage/core/logger"
)

// idlePruner is the part of sqlstore.Store the prune loop needs.
type idlePruner interface {
	PruneIdle(ctx context.Context, cutoff time.Time) (int64, error)
}

// pruneLoop deletes sql sessions idle for longer than ttl every interval
// until ctx is done.
type pruneLoop struct {
	store    idlePruner
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
}

func (p pruneLoop) once(ctx context.Context) int64 {
	n, err := p.store.PruneIdle(ctx, p.now().Add(-p.ttl))
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn(ctx, "app", "session.prune.fail",
				slog.String("err", err.Error()),
			)
		}
		return 0
	}
	if n > 0 {
		logger.Info(ctx, "app", "session.prune",
			slog.Int64("rows", n),
			slog.Duration("ttl", p.ttl),
		)
	}
	return n
}

func (p pruneLoop) run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.once(ctx)
		}
	}
}

// startPruning runs p in the background. The returned closer stops the loop
// and waits for it, so it must run before the database is closed.
func startPruning(p pruneLoop) func() error {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.run(ctx)
	}()
	return func() error {
		cancel()
		<-done
		return nil
	}
}
