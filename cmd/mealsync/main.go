// Command mealsync is the command-line front-end of the MealSync local data
// layer. With arguments it runs one command; without, it starts an
// interactive prompt.
//
//	mealsync signin alice@example.com 's3cret-pass'
//	mealsync expense add -date 2024-03-15 250 food lunch
//	mealsync
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mmynk/mealsync/internal/cli"
	"github.com/mmynk/mealsync/internal/config"
	"github.com/mmynk/mealsync/pkg/logging"
)

func main() {
	envFile := flag.String("env", ".env", "optional dotenv file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-env file] [command args...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := logging.Setup(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	app, err := cli.New(ctx, cfg, logger, os.Stdout)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("Failed to close storage", "error", err)
		}
	}()

	if len(args) > 0 {
		return app.Run(ctx, args)
	}

	err = app.REPL(ctx, os.Stdin)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
