package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"clawbot/internal/agent"
	"clawbot/internal/app"
	"clawbot/internal/mcpserver"
	"clawbot/internal/notifier"
	kit "clawbot/internal/transport"
	telegram "clawbot/internal/transport/telegram/adapter"
	logx "clawbot/pkg/logx"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the task tools to an MCP client over stdio",
	Long: `Serve schedule_task, list_tasks, pause_task, resume_task, cancel_task and
send_message over the Model Context Protocol on stdin/stdout.

send_message needs TELEGRAM_BOT_TOKEN; without it the tool reports an error.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := cliLogger(cfg)
		core, err := app.OpenCore(cfg, log, nil)
		if err != nil {
			return err
		}
		defer core.Close()

		// send-only; the adapter is never started
		var sender kit.Sender
		if strings.TrimSpace(cfg.Telegram.Token) != "" {
			ad, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token}, log.With(logx.String("comp", "telegram")))
			if err != nil {
				log.Warn("telegram unavailable; send_message disabled", logx.Err(err))
			} else {
				sender = ad
			}
		}
		notif := notifier.New(notifier.Config{RatePerSec: cfg.Notifier.RatePerSec}, sender, log.With(logx.String("comp", "notifier")))

		tools := agent.NewManagementToolset(cfg.Telegram.OwnerID, core.Manage, notif)
		srv := mcpserver.New("clawbot", version, tools, log.With(logx.String("comp", "mcp")))
		return srv.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}
