package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"clawbot/internal/app"
	"clawbot/internal/errs"
	"clawbot/internal/task/manage"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Inspect and manage scheduled tasks",
	Long: `Operator access to the task store, without the bot running.

Examples:
  clawbot tasks list
  clawbot tasks add --type cron --value "0 9 * * *" "morning briefing"
  clawbot tasks add --type once --value 2025-06-01T09:00:00Z "renew passport"
  clawbot tasks pause 1a2b3c4d
  clawbot tasks runs 1a2b3c4d --limit 5`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// withCore opens the store for one CLI command and closes it afterwards.
func withCore(fn func(ctx context.Context, core *app.Core) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	core, err := app.OpenCore(cfg, cliLogger(cfg), nil)
	if err != nil {
		return err
	}
	defer core.Close()
	return fn(context.Background(), core)
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCore(func(ctx context.Context, core *app.Core) error {
			fmt.Fprintln(cmd.OutOrStdout(), core.Manage.ListText(ctx, manage.ListOptions{WithNextRun: true}))
			return nil
		})
	},
}

var (
	addType  string
	addValue string
	addOwner int64
)

var tasksAddCmd = &cobra.Command{
	Use:   "add [flags] <prompt>",
	Short: "Schedule a new task",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCore(func(ctx context.Context, core *app.Core) error {
			owner := addOwner
			if owner == 0 {
				owner = core.Config.Telegram.OwnerID
			}
			if owner == 0 {
				return errs.New("no owner: set OWNER_ID or pass --owner")
			}
			msg, ok := core.Manage.ScheduleText(ctx, owner, strings.Join(args, " "), addType, addValue)
			if !ok {
				return errs.New(msg)
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		})
	},
}

func transitionCmd(use, short string, fn func(m *manage.Service, ctx context.Context, id string) string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <task-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(func(ctx context.Context, core *app.Core) error {
				fmt.Fprintln(cmd.OutOrStdout(), fn(core.Manage, ctx, args[0]))
				return nil
			})
		},
	}
}

var runsLimit int

var tasksRunsCmd = &cobra.Command{
	Use:   "runs <task-id>",
	Short: "Show the run log of a task, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCore(func(ctx context.Context, core *app.Core) error {
			runs, err := core.Manage.Runs(ctx, args[0], runsLimit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintf(out, "No runs for task %s.\n", args[0])
				return nil
			}
			for _, r := range runs {
				line := fmt.Sprintf("%s  %-7s %6s  ", manage.FormatTime(r.RunAt), r.Status, r.Duration.Round(time.Millisecond))
				if r.Error != "" {
					line += "error: " + manage.Truncate(r.Error, 80)
				} else {
					line += manage.Truncate(r.Result, 80)
				}
				fmt.Fprintf(out, "%s (%s)\n", line, humanize.Time(r.RunAt))
			}
			return nil
		})
	},
}

func init() {
	tasksAddCmd.Flags().StringVar(&addType, "type", "", "schedule type: cron, interval or once")
	tasksAddCmd.Flags().StringVar(&addValue, "value", "", "cron expression, interval in milliseconds, or RFC3339 time")
	tasksAddCmd.Flags().Int64Var(&addOwner, "owner", 0, "owner user id (default OWNER_ID)")
	_ = tasksAddCmd.MarkFlagRequired("type")
	_ = tasksAddCmd.MarkFlagRequired("value")

	tasksRunsCmd.Flags().IntVar(&runsLimit, "limit", 10, "max entries")

	tasksCmd.AddCommand(tasksListCmd, tasksAddCmd, tasksRunsCmd,
		transitionCmd("pause", "Pause an active task", (*manage.Service).PauseText),
		transitionCmd("resume", "Resume a paused task", (*manage.Service).ResumeText),
		transitionCmd("cancel", "Delete a task", (*manage.Service).CancelText),
	)
}
