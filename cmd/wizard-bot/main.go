// Command wizard-bot runs the five step super-wizard; new chats start in it.
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
		DefaultConfigPath: "configs/wizard-bot.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return coreconfig.Load(path)
		},
		Bootstrap: func(ctx context.Context, cfg corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
			return demo.NewWizardApp(ctx, bootstrap.Options{Config: cfg.CoreConfig()})
		},
	})
	if err != nil {
		log.Fatal(err)
	}
}
