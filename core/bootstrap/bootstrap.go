package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	coreconfig "github.com/m3rciful/gostage/core/config"
	coredatabase "github.com/m3rciful/gostage/core/database"
	"github.com/m3rciful/gostage/core/events"
	"github.com/m3rciful/gostage/core/logger"
	"github.com/m3rciful/gostage/core/metrics"
	"github.com/m3rciful/gostage/core/scene"
	"github.com/m3rciful/gostage/core/session/redisstore"
	"github.com/m3rciful/gostage/core/session/sqlstore"
)

// Options control the generic bootstrap pipeline shared between bots.
type Options struct {
	Config *coreconfig.Config

	LoggerInit  func(*coreconfig.Config) error
	Connect     func(context.Context, coredatabase.Config) (*sqlx.DB, error)
	Migrate     func(context.Context, coredatabase.Config) error
	RedisClient func(coreconfig.RedisConfig) redis.UniversalClient

	// Registerer receives the stage metrics; nil uses the Prometheus default.
	Registerer prometheus.Registerer
	// Publisher carries scene events when events are enabled; nil uses an
	// in-process gochannel.
	Publisher message.Publisher
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	Config  *coreconfig.Config
	DB      *sqlx.DB
	Redis   redis.UniversalClient
	Store   scene.Store
	Locker  scene.Locker
	Metrics *metrics.Collector
	Events  *events.Publisher

	closers []func() error
}

// Run initializes the logger, the session store selected by
// session.backend and the optional observers.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	res := &Result{Config: opts.Config}
	if err := res.buildStore(ctx, opts); err != nil {
		_ = res.Close()
		return nil, err
	}
	if err := res.buildObservers(opts); err != nil {
		_ = res.Close()
		return nil, err
	}

	logger.Info(ctx, "app", "bootstrap.ready",
		slog.String("session_backend", opts.Config.Session.Backend),
		slog.Bool("distributed_lock", res.Locker != nil),
		slog.Bool("metrics", res.Metrics != nil),
		slog.Bool("events", res.Events != nil),
	)
	return res, nil
}

func (r *Result) buildStore(ctx context.Context, opts Options) error {
	cfg := opts.Config
	switch cfg.Session.Backend {
	case coreconfig.SessionRedis:
		newClient := opts.RedisClient
		if newClient == nil {
			newClient = func(c coreconfig.RedisConfig) redis.UniversalClient { return redisstore.NewClient(c) }
		}
		client := newClient(cfg.Redis)
		r.Redis = client
		r.closers = append(r.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("bootstrap: redis ping failed: %w", err)
		}
		r.Store = redisstore.New(client,
			redisstore.WithPrefix(cfg.Session.KeyPrefix),
			redisstore.WithTTL(cfg.Session.TTL()),
		)
		if cfg.Session.DistributedLock {
			r.Locker = redisstore.NewLocker(client, cfg.Session.KeyPrefix, cfg.Stage.LockTTL())
		}
	case coreconfig.SessionPostgres:
		connect := opts.Connect
		if connect == nil {
			connect = coredatabase.Connect
		}
		db, err := connect(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("bootstrap: database initialization failed: %w", err)
		}
		r.DB = db
		r.closers = append(r.closers, db.Close)

		migrate := opts.Migrate
		if migrate == nil {
			migrate = coredatabase.RunMigrations
		}
		if err := migrate(ctx, cfg.Database); err != nil {
			return fmt.Errorf("bootstrap: migrations failed: %w", err)
		}
		store := sqlstore.New(db)
		r.Store = store
		if ttl := cfg.Session.TTL(); ttl > 0 && cfg.Session.PruneInterval() > 0 {
			r.closers = append(r.closers, startPruning(pruneLoop{
				store:    store,
				ttl:      ttl,
				interval: cfg.Session.PruneInterval(),
				now:      time.Now,
			}))
		}
	case coreconfig.SessionMemory, "":
		r.Store = scene.NewMemoryStore()
	default:
		return fmt.Errorf("bootstrap: unknown session backend %q", cfg.Session.Backend)
	}
	return nil
}

func (r *Result) buildObservers(opts Options) error {
	cfg := opts.Config
	if cfg.Metrics.Listen != "" || opts.Registerer != nil {
		col, err := metrics.New(cfg.Metrics.Namespace, opts.Registerer)
		if err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		r.Metrics = col
	}
	if cfg.Events.Enabled {
		pub := opts.Publisher
		if pub == nil {
			pub = events.NewGoChannel()
		}
		r.Events = events.NewPublisher(pub, cfg.Events.Topic)
		r.closers = append(r.closers, r.Events.Close)
	}
	return nil
}

// StageOptions translates configuration and the built infrastructure into
// stage options. Extra options are appended last and win.
func (r *Result) StageOptions(extra ...scene.StageOption) []scene.StageOption {
	cfg := r.Config
	opts := []scene.StageOption{
		scene.WithStore(r.Store),
		scene.WithIdleTTL(cfg.Stage.TTL()),
		scene.WithLockTTL(cfg.Stage.LockTTL()),
	}
	if cfg.Stage.DefaultScene != "" {
		opts = append(opts, scene.WithDefaultScene(cfg.Stage.DefaultScene))
	}
	if r.Locker != nil {
		opts = append(opts, scene.WithLocker(r.Locker))
	}
	var observers []scene.Observer
	if r.Metrics != nil {
		observers = append(observers, r.Metrics)
	}
	if r.Events != nil {
		observers = append(observers, r.Events)
	}
	if len(observers) > 0 {
		opts = append(opts, scene.WithObserver(scene.Observers(observers...)))
	}
	return append(opts, extra...)
}

// Close releases connections opened by Run in reverse order.
func (r *Result) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}
