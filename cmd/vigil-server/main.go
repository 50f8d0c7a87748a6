// Command vigil-server runs the vigil trading platform: the cron
// scheduler, venue sync services, alerting, and the HTTP/WebSocket API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/drewfallon/vigil/internal/app"
	"github.com/drewfallon/vigil/internal/common"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "vigil-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is fine; values already in the environment win.
	_ = godotenv.Load()

	config, err := common.LoadConfig("config.toml", os.Getenv("VIGIL_CONFIG"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, config, nil)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	a.Logger.Info().
		Str("version", common.GetFullVersion()).
		Str("addr", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)).
		Msg("Starting vigil-server")

	if err := a.Run(ctx); err != nil {
		return fmt.Errorf("running server: %w", err)
	}

	a.Logger.Info().Msg("Shutdown complete")
	return nil
}
