package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/pcurt/hivesense2mqtt/internal/app"
	"github.com/pcurt/hivesense2mqtt/internal/config"
	"github.com/pcurt/hivesense2mqtt/internal/logging"
)

var version = "dev"
var appName = "hiveSense2mqtt"

const (
	flagVerbose  = "verbose"
	flagHTTPAddr = "http-addr"
)

func main() {
	cliApp := &cli.App{
		Name:    appName,
		Usage:   "bridge hive sensor uplinks from Orange Live Objects to Home Assistant",
		Version: version,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    flagVerbose,
				Aliases: []string{"v"},
				Usage:   "enable debug logging",
			},
			&cli.StringFlag{
				Name:  flagHTTPAddr,
				Usage: "override HTTP_ADDR for the health and metrics server",
			},
		},
		Action: run,
	}

	if err := cliApp.Run(os.Args); err != nil {
		var exitErr cli.ExitCoder
		if !errors.As(err, &exitErr) {
			slog.Error("run failed", "err", err)
		}
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return cli.Exit(fmt.Sprintf("config error: %v", err), 1)
	}
	if addr := c.String(flagHTTPAddr); addr != "" {
		cfg.HTTPAddr = addr
	}
	verbose := 0
	if c.Bool(flagVerbose) {
		verbose = 1
	}
	cfg.LogLevel = logging.ApplyVerbosity(cfg.LogLevel, verbose)

	logger := logging.New(cfg, version, appName)
	slog.SetDefault(logger)

	logger.Info("starting",
		"app", appName,
		"version", version,
		"env", cfg.AppEnv,
		"log_level", cfg.LogLevel.String(),
	)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("shutting down")
	return nil
}
