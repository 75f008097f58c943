// Command scenes-bot runs the greeter and echo scenes.
package main

import (
	"context"
	"log"

	"github.com/m3rciful/gostage/core/bootstrap"
	corecmd "github.com/m3rciful/gostage/core/cmd"
	coreconfig "github.com/m3rciful/gostage/core/config"
	"github.com/m3rciful/gostage/internal/demo"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		DefaultConfigPath: "configs/scenes-bot.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return coreconfig.Load(path)
		},
		Bootstrap: func(ctx context.Context, cfg corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
			return demo.NewScenesApp(ctx, bootstrap.Options{Config: cfg.CoreConfig()})
		},
	})
	if err != nil {
		log.Fatal(err)
	}
}
