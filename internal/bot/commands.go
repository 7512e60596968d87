package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"clawbot/internal/task"
	"clawbot/internal/task/manage"
	kit "clawbot/internal/transport"
	logx "clawbot/pkg/logx"
)

type command struct {
	description string
	run         func(ctx context.Context, msg *kit.Message, args []string) string
}

var commandOrder = []string{"start", "clear", "tasks", "status"}

func (b *Bot) commands() map[string]command {
	return map[string]command{
		"start": {
			description: "Introduction and command list",
			run:         b.cmdStart,
		},
		"clear": {
			description: "Reset conversation session",
			run:         b.cmdClear,
		},
		"tasks": {
			description: "List scheduled tasks",
			run: func(ctx context.Context, _ *kit.Message, _ []string) string {
				return b.deps.Manage.ListText(ctx, manage.ListOptions{WithNextRun: true})
			},
		},
		"status": {
			description: "Scheduler status",
			run:         b.cmdStatus,
		},
	}
}

func (b *Bot) cmdStart(context.Context, *kit.Message, []string) string {
	name := b.config().AssistantName
	if name == "" {
		name = "Ape"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Hi! I'm %s, your personal AI assistant. Send me a message to get started.\n\nCommands:\n", name)
	for _, c := range commandOrder[1:] {
		fmt.Fprintf(&sb, "/%s - %s\n", c, b.cmds[c].description)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b *Bot) cmdClear(context.Context, *kit.Message, []string) string {
	if err := b.deps.Agent.Reset(); err != nil {
		b.log.Warn("clear session failed", logx.Err(err))
		return "Could not clear the session, please try again."
	}
	return "Session cleared. Starting fresh!"
}

func (b *Bot) cmdStatus(ctx context.Context, _ *kit.Message, _ []string) string {
	now := time.Now()
	var sb strings.Builder
	fmt.Fprintf(&sb, "Uptime: %s\n", strings.TrimSuffix(humanize.RelTime(b.started, now, "", ""), " "))

	if b.deps.Scheduler != nil {
		s := b.deps.Scheduler.Snapshot()
		state := "stopped"
		switch {
		case !s.Enabled:
			state = "disabled"
		case s.Running:
			state = "running"
		}
		fmt.Fprintf(&sb, "Scheduler: %s, every %s\n", state, s.Interval)
		if !s.LastTick.IsZero() {
			fmt.Fprintf(&sb, "Last tick: %s (due %d, executed %d, took %s)\n",
				humanize.Time(s.LastTick), s.LastDue, s.LastExecuted, s.LastTook.Round(time.Millisecond))
		}
		if !s.Next.IsZero() {
			fmt.Fprintf(&sb, "Next tick: %s\n", humanize.Time(s.Next))
		}
		fmt.Fprintf(&sb, "Runs: %s ok, %s failed\n", humanize.Comma(int64(s.Executed)), humanize.Comma(int64(s.Failed)))
		if s.LastErr != "" {
			fmt.Fprintf(&sb, "Last error: %s\n", s.LastErr)
		}
	}

	tasks, err := b.deps.Manage.List(ctx)
	if err != nil {
		b.log.Warn("status: list tasks failed", logx.Err(err))
		sb.WriteString("Tasks: unavailable")
		return sb.String()
	}
	counts := map[task.Status]int{}
	var next *task.Task
	for i := range tasks {
		t := tasks[i]
		counts[t.Status]++
		if t.Status == task.StatusActive && t.NextRun != nil && (next == nil || t.NextRun.Before(*next.NextRun)) {
			next = &tasks[i]
		}
	}
	fmt.Fprintf(&sb, "Tasks: %d active, %d paused, %d completed", counts[task.StatusActive], counts[task.StatusPaused], counts[task.StatusCompleted])
	if next != nil {
		fmt.Fprintf(&sb, "\nNext task: [%s] %s", next.ID, humanize.Time(*next.NextRun))
	}
	return sb.String()
}
