package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/gostage/core/config"
	"github.com/m3rciful/gostage/core/logger"
	"github.com/m3rciful/gostage/core/scene"
	tghelpers "github.com/m3rciful/gostage/core/telegram/helpers"
	tgsender "github.com/m3rciful/gostage/core/telegram/sender"
	"github.com/m3rciful/gostage/core/telegram/state"
)

const runComponent = "tg"

// Middleware describes a global bot middleware to be registered via bot.Use.
type Middleware struct {
	Name string
	Use  func(next tele.HandlerFunc) tele.HandlerFunc
}

// Route declares a single bot handler bound to an arbitrary endpoint.
// Endpoint values are passed directly to tele.Bot.Handle.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions controls the behaviour of RunTelegram.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry
	// Stage, when set, sees every update after Middlewares, registered
	// commands included. Leave it nil and pass the stage to the router
	// when global commands should win over the active scene.
	Stage *scene.Stage

	DispatcherOptions tgsender.Options
	Dispatcher        *tgsender.Dispatcher
	HTTPClient        HTTPClientOptions

	Middlewares []Middleware
	Routes      []Route

	DisableWebhookCleanup   bool
	DisableHelperDispatcher bool

	// Settings adjusts the telebot settings right before the bot is built.
	Settings func(*tele.Settings)

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime exposes runtime components to lifecycle hooks.
type Runtime struct {
	Bot        *tele.Bot
	Dispatcher *tgsender.Dispatcher
	Registry   *Registry
	Stage      *scene.Stage
}

// RunTelegram composes and runs a Telegram bot until ctx is done.
// Cancellation is a clean shutdown and returns nil.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := opts.Config
	if cfg == nil {
		return fmt.Errorf("telegram: nil config provided")
	}
	reg := opts.Registry
	if reg == nil {
		reg = NewRegistry()
	}

	settings := tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: BuildPoller(PollerOptionsFrom(cfg)),
		Client: BuildHTTPClient(opts.HTTPClient),
		OnError: func(err error, c tele.Context) {
			logCtx := ctx
			if c != nil {
				logCtx = tghelpers.BuildContext(c)
			}
			logger.Error(logCtx, runComponent, "handler.error",
				slog.String("status", "fail"),
				slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			)
		},
	}
	if opts.Settings != nil {
		opts.Settings(&settings)
	}

	buildStart := time.Now()
	bot, err := tele.NewBot(settings)
	if err != nil {
		return fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	logMode(ctx, settings.Poller, time.Since(buildStart))

	if _, polling := settings.Poller.(*tele.LongPoller); polling && !opts.DisableWebhookCleanup &&
		strings.EqualFold(cfg.Telegram.RunMode, coreconfig.RunModeLongpoll) {
		if err := bot.RemoveWebhook(false); err != nil {
			logger.Warn(ctx, runComponent, "delete_webhook",
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
		}
	}

	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		dispatcher = tgsender.NewDispatcher(opts.DispatcherOptions)
	}
	useHelperDispatcher := !opts.DisableHelperDispatcher
	if useHelperDispatcher {
		tghelpers.SetDispatcher(dispatcher)
	}
	release := func() {
		if useHelperDispatcher {
			tghelpers.SetDispatcher(nil)
		}
		dispatcher.Close()
	}

	rt := Runtime{Bot: bot, Dispatcher: dispatcher, Registry: reg, Stage: opts.Stage}
	Wire(bot, reg, opts.Stage, opts.Middlewares, opts.Routes)

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			release()
			return err
		}
	}

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		bot.Start()
	}()

	var runErr error
	select {
	case <-ctx.Done():
		bot.Stop()
		<-runDone
		runErr = ctx.Err()
	case <-runDone:
	}

	var stopErr error
	if opts.OnStop != nil {
		stopErr = opts.OnStop(context.WithoutCancel(ctx), rt)
	}
	release()

	if stopErr != nil {
		return stopErr
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func logMode(ctx context.Context, p tele.Poller, took time.Duration) {
	switch p := p.(type) {
	case *tele.Webhook:
		logger.Info(ctx, runComponent, "mode",
			slog.String("mode", "webhook"),
			slog.String("listen", p.Listen),
			slog.String("public_url", p.Endpoint.PublicURL),
			slog.Duration("duration", logger.RoundMS(took)),
		)
	case *tele.LongPoller:
		logger.Info(ctx, runComponent, "mode",
			slog.String("mode", "polling"),
			slog.Duration("timeout", p.Timeout),
			slog.Duration("duration", logger.RoundMS(took)),
		)
	default:
		logger.Info(ctx, runComponent, "mode", slog.String("mode", fmt.Sprintf("%T", p)))
	}
}

// Wire installs middlewares, the stage middleware and routes on bot, in
// that order, then publishes the command menu. Telebot applies global
// middleware only to handlers registered after it.
func Wire(bot *tele.Bot, reg *Registry, st *scene.Stage, mws []Middleware, routes []Route) {
	for _, mw := range mws {
		if mw.Use == nil {
			continue
		}
		bot.Use(mw.Use)
	}
	if st != nil {
		bot.Use(state.Middleware(st))
	}
	for _, route := range routes {
		if route.Endpoint == nil || route.Handler == nil {
			continue
		}
		bot.Handle(route.Endpoint, route.Handler)
	}
	SetupCommands(bot, reg)
}
