// Command corekit runs an example service wiring the corekit packages:
// password and token auth over Postgres, Google sign-in, Redis-backed API
// keys, image variants recorded in MongoDB, Discord alerts and Resend mail.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/adeilh/corekit/config"
	"github.com/adeilh/corekit/logger"
)

func main() {
	configFile := flag.String("config", "", "optional YAML config file")
	envFile := flag.String("env", ".env", "optional .env file")
	flag.Parse()

	settings, err := config.LoadSettings(config.WithConfigFile(*configFile), config.WithEnvFile(*envFile))
	bootLog := logger.New(logger.Config{}, "corekit")
	if err != nil {
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(settings.Log, settings.Core.Name)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(settings, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize application")
	}
	if err := app.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("application error")
	}
}
