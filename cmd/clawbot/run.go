package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"clawbot/internal/app"
	"clawbot/internal/config"
	"clawbot/internal/errs"
	logx "clawbot/pkg/logx"
	"clawbot/pkg/systemd"
)

const shutdownTimeout = 45 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the bot and the task scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		cfgm := config.NewConfigManager(configPath)
		a, err := app.NewApp(cfgm)
		if err != nil {
			return err
		}
		if err := a.Start(ctx); err != nil {
			_ = a.Stop(context.Background(), app.StopFatalError)
			return errs.Wrap(err, "start")
		}
		_, _ = systemd.Ready()

		wctx, wcancel := context.WithCancel(ctx)
		defer wcancel()
		go func() { _ = systemd.Watchdog(wctx) }()
		go reloadOnHangup(wctx, cfgm)

		reason := app.StopSignal
		select {
		case <-ctx.Done():
		case <-a.Done():
			reason = app.StopFatalError
		}
		wcancel()
		_, _ = systemd.Stopping()

		stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stopCancel()
		if err := a.Stop(stopCtx, reason); err != nil {
			return err
		}
		if reason == app.StopFatalError {
			return a.Err()
		}
		return nil
	},
}

// reloadOnHangup re-reads the config on SIGHUP (systemctl reload).
func reloadOnHangup(ctx context.Context, cfgm *config.ConfigManager) {
	log := cliLogger(cfgm.Get()).With(logx.String("comp", "sighup"))
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			_, _ = systemd.Reloading()
			changed, err := cfgm.Reload(ctx)
			if err != nil {
				log.Warn("reload failed", logx.Err(err))
			} else {
				log.Info("reload requested", logx.Bool("changed", changed))
			}
			_, _ = systemd.Ready()
		}
	}
}
