package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"barberbot/app/api"
	"barberbot/app/service/engine"
	"barberbot/app/service/reaper"
	"barberbot/app/util/mylog"

	"github.com/samber/do"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook server and process conversations",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	mylog.Preinit()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return oops.Wrapf(err, "config load failed")
	}

	if err = mylog.Init(cfg); err != nil {
		return oops.Wrapf(err, "logging init failed")
	}

	appCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	di := newInjector(appCtx, cfg)
	defer func() {
		slog.Info("Waiting for services to finish...")
		if err := di.Shutdown(); err != nil {
			slog.Error("Shutdown failed", "error", err)
		}
	}()

	server, err := do.Invoke[*api.Server](di)
	if err != nil {
		return err
	}
	engineSvc, err := do.Invoke[*engine.Service](di)
	if err != nil {
		return err
	}
	reaperSvc, err := do.Invoke[*reaper.Service](di)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(appCtx)
	g.Go(func() error {
		return server.Run(ctx)
	})
	g.Go(func() error {
		return engineSvc.Run(ctx)
	})
	g.Go(func() error {
		return reaperSvc.Run(ctx)
	})

	slog.Info("Service started",
		"listen", cfg.Server.Listen,
		"window", cfg.Debounce.Window,
		"dry_run", cfg.Dispatch.DryRun,
		mylog.TelegramKey, true,
	)

	err = g.Wait()
	slog.Info("Shutting down...")

	return err
}
