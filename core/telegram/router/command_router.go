package router

import (
	"context"
	"log/slog"
	"maps"
	"slices"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/gostage/core/logger"
	"github.com/m3rciful/gostage/core/scene"
	tg "github.com/m3rciful/gostage/core/telegram"
	"github.com/m3rciful/gostage/core/telegram/middleware"
)

// CommandRouteOptions configures how commands are wrapped and exposed.
type CommandRouteOptions struct {
	AdminID       int64
	OnAdminReject tele.HandlerFunc
}

// CommandRoutes binds every registered command to its own endpoint, sorted
// by name. Scene commands enter their scene on st and are skipped when st
// is nil. Admin-only commands are gated before recovery and logging.
func CommandRoutes(st *scene.Stage, reg *tg.Registry, opts CommandRouteOptions) []tg.Route {
	cmds := reg.Commands()
	if len(cmds) == 0 {
		return nil
	}
	admin := middleware.AdminOnlyMiddleware(middleware.AdminOptions{
		AdminID:  opts.AdminID,
		OnReject: opts.OnAdminReject,
	})

	routes := make([]tg.Route, 0, len(cmds))
	for _, name := range slices.Sorted(maps.Keys(cmds)) {
		def := cmds[name]
		h := reg.CommandHandler(st, def)
		if h == nil {
			logger.Warn(context.Background(), "tg.wire", "register.command.skip",
				slog.String("name", name),
				slog.String("scene", def.Scene),
				slog.String("reason", "no_stage"),
			)
			continue
		}
		h = middleware.LoggerMiddleware(middleware.RecoverMiddleware(h))
		if def.AdminOnly {
			h = admin(h)
		}
		routes = append(routes, tg.Route{Endpoint: name, Handler: h})
	}

	logger.Info(context.Background(), "tg.wire", "complete",
		slog.String("status", "ok"),
		slog.Int("commands", len(routes)),
		slog.Int("callbacks", len(reg.ListCallbacks())),
	)
	return routes
}
