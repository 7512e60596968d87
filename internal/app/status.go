package app

import (
	"context"
	"time"

	"clawbot/internal/observability/ops"
	"clawbot/internal/runtime/supervisor"
	"clawbot/internal/task"
	"clawbot/internal/task/manage"
	"clawbot/internal/task/scheduler"
)

// StatusDoc is served at /status by the ops server.
type StatusDoc struct {
	Assistant string             `json:"assistant"`
	Uptime    string             `json:"uptime"`
	Scheduler scheduler.Snapshot `json:"scheduler"`
	Tasks     map[string]int     `json:"tasks"`
	NextRun   *time.Time         `json:"next_run,omitempty"`

	Routines []supervisor.Routine `json:"routines,omitempty"`
}

type snapshotter interface {
	Snapshot() scheduler.Snapshot
}

func statusFunc(name string, started time.Time, mgr *manage.Service, sched snapshotter, routines func() []supervisor.Routine) ops.StatusFunc {
	return func(ctx context.Context) (any, error) {
		tasks, err := mgr.List(ctx)
		if err != nil {
			return nil, err
		}
		doc := StatusDoc{
			Assistant: name,
			Uptime:    time.Since(started).Round(time.Second).String(),
			Scheduler: sched.Snapshot(),
			Tasks:     map[string]int{},
		}
		if routines != nil {
			doc.Routines = routines()
		}
		for _, t := range tasks {
			doc.Tasks[string(t.Status)]++
			if t.Status == task.StatusActive && t.NextRun != nil && (doc.NextRun == nil || t.NextRun.Before(*doc.NextRun)) {
				next := *t.NextRun
				doc.NextRun = &next
			}
		}
		return doc, nil
	}
}
