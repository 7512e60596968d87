package task

import (
	"context"
	"time"

	"clawbot/internal/task/schedule"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusCompleted:
		return true
	}
	return false
}

type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// Task is one unit of scheduled work.
//
// OwnerID routes notifications (the owner's chat id). NextRun is nil only
// for a once task that has completed.
type Task struct {
	ID         string
	OwnerID    int64
	Prompt     string
	Schedule   schedule.Spec
	NextRun    *time.Time
	LastRun    *time.Time
	LastResult string
	Status     Status
	CreatedAt  time.Time
}

// Due reports whether t would be returned by Store.Due(now).
func (t Task) Due(now time.Time) bool {
	return t.Status == StatusActive && t.NextRun != nil && !t.NextRun.After(now)
}

// RunLogEntry is an append-only record of one execution attempt.
type RunLogEntry struct {
	ID       int64
	TaskID   string
	RunAt    time.Time
	Duration time.Duration
	Status   RunStatus
	Result   string
	Error    string
}

// Outcome is the post-run state written back by RecordRunOutcome.
type Outcome struct {
	RanAt      time.Time
	LastResult string
	NextRun    *time.Time
	Status     Status
}

// NewTask is the input to Store.Create.
type NewTask struct {
	OwnerID  int64
	Prompt   string
	Schedule schedule.Spec
	NextRun  *time.Time
}

// Store is the durable task store. All methods are safe for concurrent use
// and commit before returning. Failures are marked errs.ErrStorage.
type Store interface {
	Create(ctx context.Context, in NewTask) (string, error)
	Get(ctx context.Context, id string) (Task, bool, error)
	ListAll(ctx context.Context) ([]Task, error)
	Due(ctx context.Context, now time.Time) ([]Task, error)
	// SetStatus applies status without checking transition legality.
	SetStatus(ctx context.Context, id string, status Status) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	// RecordRunOutcome writes the post-run state in one statement. A task
	// paused during the run stays paused when out.Status is active.
	RecordRunOutcome(ctx context.Context, id string, out Outcome) error
	AppendRunLog(ctx context.Context, e RunLogEntry) error
	Runs(ctx context.Context, taskID string, limit int) ([]RunLogEntry, error)
}
