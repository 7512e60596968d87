// Package executor runs one due task: invoke the agent, make sure the owner
// heard about it, append to the run log and reschedule.
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"clawbot/internal/agent"
	"clawbot/internal/errs"
	"clawbot/internal/eventbus"
	"clawbot/internal/notifier"
	"clawbot/internal/task"
	"clawbot/internal/task/manage"
	"clawbot/internal/task/schedule"
	logx "clawbot/pkg/logx"
)

const fallbackPrefix = "⏰ Scheduled reminder: "

// Outcome describes one execution.
type Outcome struct {
	TaskID   string
	Skipped  bool // task vanished or left active before it ran
	Status   task.RunStatus
	Result   string
	Err      error
	Duration time.Duration
	Notified bool // the agent called send_message
	Fallback bool // the executor sent the reminder itself
	NextRun  *time.Time
	State    task.Status
}

type Executor struct {
	store  task.Store
	agent  agent.Capability
	notify notifier.Notifier
	mgr    *manage.Service
	calc   *schedule.Calculator
	bus    eventbus.Bus
	log    logx.Logger
	now    func() time.Time
}

type Option func(*Executor)

func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

func WithBus(bus eventbus.Bus) Option {
	return func(e *Executor) {
		if bus != nil {
			e.bus = bus
		}
	}
}

func New(store task.Store, capab agent.Capability, n notifier.Notifier, mgr *manage.Service, log logx.Logger, opts ...Option) *Executor {
	if log.IsZero() {
		log = logx.Nop()
	}
	e := &Executor{
		store:  store,
		agent:  capab,
		notify: n,
		mgr:    mgr,
		calc:   mgr.Calculator(),
		bus:    eventbus.Nop(),
		log:    log,
		now:    time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Execute runs t once. Failures of the agent or the notifier are recorded
// in the run log and never returned; Outcome.Err is set only when the
// outcome could not be persisted.
func (e *Executor) Execute(ctx context.Context, t task.Task) Outcome {
	out := Outcome{TaskID: t.ID}
	log := e.log.With(logx.TaskID(t.ID))

	// The task may have been paused or cancelled since due() picked it.
	cur, ok, err := e.store.Get(ctx, t.ID)
	if err != nil {
		out.Err = err
		log.Error("reload task failed", logx.Err(err))
		return out
	}
	if !ok || cur.Status != task.StatusActive {
		out.Skipped = true
		log.Info("task no longer active; skipped")
		return out
	}
	t = cur

	log.Info("executing task", logx.Int64("owner", t.OwnerID), logx.String("schedule", t.Schedule.String()), logx.String("prompt", manage.Truncate(t.Prompt, 80)))

	start := e.now()
	tracked := notifier.Track(e.notify)
	res, runErr := e.agent.Invoke(ctx, agent.Request{
		Instruction: agent.TaskInstruction(t.Prompt),
		OwnerID:     t.OwnerID,
		Tools:       agent.NewManagementToolset(t.OwnerID, e.mgr, tracked),
	})
	out.Notified = tracked.Sent()

	// Once the agent has returned the run happened; shutdown must not lose
	// its notification or its record.
	keep := context.WithoutCancel(ctx)

	if !out.Notified {
		out.Fallback = true
		if err := e.notify.Send(keep, t.OwnerID, fallbackPrefix+t.Prompt); err != nil {
			log.Warn("fallback notification failed", logx.Err(err))
			if runErr == nil {
				runErr = errs.Wrap(err, "fallback notification")
			}
		}
	}

	ranAt := e.now()
	out.Duration = ranAt.Sub(start)

	entry := task.RunLogEntry{TaskID: t.ID, RunAt: ranAt, Duration: out.Duration}
	if runErr != nil {
		out.Status = task.RunError
		entry.Status = task.RunError
		entry.Error = runErr.Error()
		out.Result = "Error: " + runErr.Error()
		log.Warn("task run failed", logx.Err(runErr))
	} else {
		out.Status = task.RunSuccess
		out.Result = res.Text
		entry.Status = task.RunSuccess
		entry.Result = res.Text
	}

	next, state, schedErr := e.reschedule(t, ranAt)
	if schedErr != nil {
		out.Status = task.RunError
		entry.Status = task.RunError
		entry.Error = joinErr(entry.Error, schedErr)
		log.Warn("cannot compute next run; pausing task", logx.String("schedule", t.Schedule.String()), logx.Err(schedErr))
	}
	out.NextRun, out.State = next, state

	if err := e.store.AppendRunLog(keep, entry); err != nil {
		log.Error("append run log failed", logx.Err(err))
		out.Err = err
	}
	if err := e.store.RecordRunOutcome(keep, t.ID, task.Outcome{
		RanAt:      ranAt,
		LastResult: out.Result,
		NextRun:    next,
		Status:     state,
	}); err != nil {
		log.Error("record run outcome failed", logx.Err(err))
		out.Err = err
	}

	fields := []logx.Field{logx.String("status", string(out.Status)), logx.Duration("took", out.Duration), logx.Bool("notified", out.Notified)}
	if next != nil {
		fields = append(fields, logx.Time("next_run", *next))
	}
	log.Info("task finished", fields...)

	e.bus.Publish(eventbus.Event{
		Type: eventbus.TypeTaskRun,
		Time: ranAt,
		Data: eventbus.TaskRunEvent{
			TaskID:   t.ID,
			Status:   string(out.Status),
			Duration: out.Duration,
			Notified: out.Notified,
			NextRun:  next,
		},
	})
	return out
}

// reschedule returns the post-run next_run and status. A schedule that
// cannot produce a next occurrence pauses the task with next_run unchanged,
// so it neither fires every tick nor disappears.
func (e *Executor) reschedule(t task.Task, ranAt time.Time) (*time.Time, task.Status, error) {
	if t.Schedule.Type == schedule.Once {
		return nil, task.StatusCompleted, nil
	}
	if !t.Schedule.Type.Known() {
		return t.NextRun, task.StatusPaused, errs.Schedule(errs.Newf("unknown schedule type %q", t.Schedule.Type), "reschedule")
	}
	next, err := e.calc.After(t.Schedule, t.NextRun, ranAt)
	if err != nil {
		return t.NextRun, task.StatusPaused, err
	}
	return next, task.StatusActive, nil
}

func joinErr(prev string, err error) string {
	msg := fmt.Sprintf("reschedule: %v", err)
	if strings.TrimSpace(prev) == "" {
		return msg
	}
	return prev + "; " + msg
}
