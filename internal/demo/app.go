package demo

import (
	"context"
	"fmt"
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/gostage/core/bootstrap"
	coreconfig "github.com/m3rciful/gostage/core/config"
	"github.com/m3rciful/gostage/core/logger"
	"github.com/m3rciful/gostage/core/scene"
	coretelegram "github.com/m3rciful/gostage/core/telegram"
	"github.com/m3rciful/gostage/core/telegram/commands"
	tghelpers "github.com/m3rciful/gostage/core/telegram/helpers"
	"github.com/m3rciful/gostage/core/telegram/router"
	"github.com/m3rciful/gostage/core/telegram/state"
)

// Fallback is sent for text no scene or command handled.
const Fallback = "Try /echo or /greeter"

// App is a bootstrapped demo bot.
type App struct {
	Config   *coreconfig.Config
	Result   *bootstrap.Result
	Stage    *scene.Stage
	Registry *coretelegram.Registry
}

// NewScenesApp builds the greeter/echo bot: /greeter and /echo enter their
// scenes, other text outside a scene gets Fallback.
func NewScenesApp(ctx context.Context, opts bootstrap.Options, extra ...scene.StageOption) (*App, error) {
	app, err := newApp(ctx, opts, bootstrap.StaticScenes(Greeter(), Echo()), extra)
	if err != nil {
		return nil, err
	}
	reg := app.Registry
	for _, c := range []struct{ name, scene, desc string }{
		{"/greeter", GreeterScene, "Enter the greeter scene"},
		{"/echo", EchoScene, "Enter the echo scene"},
	} {
		if err := reg.RegisterCommand(c.name, commands.Command{Scene: c.scene, Description: c.desc}); err != nil {
			_ = app.Close()
			return nil, err
		}
	}
	reg.SetTextFallback(func(c tele.Context) error { return tghelpers.SendText(c, Fallback) })
	return app, nil
}

// NewWizardApp builds the wizard bot. Sessions that never talked to the bot
// start in the wizard.
func NewWizardApp(ctx context.Context, opts bootstrap.Options, extra ...scene.StageOption) (*App, error) {
	if opts.Config != nil && opts.Config.Stage.DefaultScene == "" {
		opts.Config.Stage.DefaultScene = WizardScene
	}
	return newApp(ctx, opts, bootstrap.StaticScenes(SuperWizard()), extra)
}

func newApp(ctx context.Context, opts bootstrap.Options, scenes bootstrap.SceneProvider, extra []scene.StageOption) (*App, error) {
	res, err := bootstrap.Run(ctx, opts)
	if err != nil {
		return nil, err
	}
	st, err := bootstrap.Modules{Providers: []bootstrap.SceneProvider{scenes}}.Stage(ctx, res, extra...)
	if err != nil {
		_ = res.Close()
		return nil, fmt.Errorf("demo: stage: %w", err)
	}
	return &App{Config: res.Config, Result: res, Stage: st, Registry: coretelegram.NewRegistry()}, nil
}

// ContextProp makes sure every session carries ContextPropKey before any
// handler runs.
func ContextProp(st *scene.Stage) tele.MiddlewareFunc {
	ensure := state.RunHandler(st, func(c *scene.Context) error {
		if _, ok := c.SessionValue(ContextPropKey); !ok {
			c.SetSessionValue(ContextPropKey, "")
		}
		return nil
	})
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if tghelpers.SessionID(c) != "" {
				if err := ensure(c); err != nil {
					logger.Warn(tghelpers.BuildContext(c), "demo", "context_prop.fail",
						slog.String("err", err.Error()),
					)
				}
			}
			return next(c)
		}
	}
}

// Middlewares returns the shared chain plus ContextProp.
func (a *App) Middlewares() []coretelegram.Middleware {
	return append(coretelegram.DefaultMiddlewares(a.Config, nil),
		coretelegram.Middleware{Name: "context_prop", Use: ContextProp(a.Stage)},
	)
}

// Routes offers text and callbacks to the stage before the registry.
// Registered commands bypass the active scene.
func (a *App) Routes() []coretelegram.Route {
	routes := router.CommandRoutes(a.Stage, a.Registry, router.CommandRouteOptions{AdminID: a.Config.Telegram.AdminID})
	routes = append(routes, router.TextRoutes(a.Stage, a.Registry, router.TextOptions{})...)
	return append(routes, router.CallbackRoute(a.Stage, a.Registry, router.CallbackOptions{}))
}

// TelegramRunOptions implements cmd.TelegramApp.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	opts := coretelegram.RunOptions{
		Config:      a.Config,
		Registry:    a.Registry,
		Middlewares: a.Middlewares(),
		Routes:      a.Routes(),
		OnStart: func(ctx context.Context, rt coretelegram.Runtime) error {
			logger.Info(ctx, "demo", "scenes",
				slog.Any("names", a.Stage.Registry().Names()),
				slog.String("default", a.Stage.DefaultScene()),
			)
			return nil
		},
	}
	if a.Result != nil && a.Result.Metrics != nil {
		opts.DispatcherOptions.OnResult = a.Result.Metrics.ObserveSend
	}
	return opts, nil
}

// Close releases the bootstrap resources.
func (a *App) Close() error {
	if a == nil || a.Result == nil {
		return nil
	}
	return a.Result.Close()
}
