package manage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"clawbot/internal/errs"
	"clawbot/internal/task"
	"clawbot/internal/task/schedule"
	logx "clawbot/pkg/logx"
)

const genericFailure = "Something went wrong, please try again."

// ScheduleText runs Schedule and renders the reply.
func (s *Service) ScheduleText(ctx context.Context, ownerID int64, prompt, scheduleType, scheduleValue string) (string, bool) {
	id, next, err := s.Schedule(ctx, ownerID, prompt, schedule.Spec{Type: schedule.Type(scheduleType), Value: scheduleValue})
	if err != nil {
		return s.failure(err, "schedule task"), false
	}
	return fmt.Sprintf("Task %s scheduled. Next run: %s", id, FormatTime(next.In(s.calc.Location()))), true
}

// ListOptions controls ListText.
type ListOptions struct {
	// WithNextRun appends the relative next run ("in 5 minutes").
	WithNextRun bool
}

func (s *Service) ListText(ctx context.Context, opt ListOptions) string {
	tasks, err := s.List(ctx)
	if err != nil {
		return s.failure(err, "list tasks")
	}
	if len(tasks) == 0 {
		return "No scheduled tasks."
	}
	now := s.now()
	lines := make([]string, 0, len(tasks))
	for _, t := range tasks {
		line := FormatLine(t)
		if opt.WithNextRun && t.Status == task.StatusActive && t.NextRun != nil {
			line += " | next " + humanize.RelTime(*t.NextRun, now, "ago", "from now")
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (s *Service) PauseText(ctx context.Context, id string) string {
	tr, err := s.Pause(ctx, id)
	return s.transitionText(ctx, id, "paused", tr, err)
}

func (s *Service) ResumeText(ctx context.Context, id string) string {
	tr, err := s.Resume(ctx, id)
	return s.transitionText(ctx, id, "resumed", tr, err)
}

func (s *Service) CancelText(ctx context.Context, id string) string {
	tr, err := s.Cancel(ctx, id)
	return s.transitionText(ctx, id, "cancelled", tr, err)
}

func (s *Service) transitionText(ctx context.Context, id, verb string, tr Transition, err error) string {
	id = strings.TrimSpace(id)
	if err != nil {
		return s.failure(err, verb)
	}
	switch tr {
	case Applied:
		return fmt.Sprintf("Task %s %s.", id, verb)
	case Rejected:
		status := "in its current state"
		if t, ok, gerr := s.store.Get(ctx, id); gerr == nil && ok {
			status = string(t.Status)
		}
		return fmt.Sprintf("Task %s cannot be %s: it is %s.", id, verb, status)
	default:
		return fmt.Sprintf("Task %s not found.", id)
	}
}

func (s *Service) failure(err error, op string) string {
	if errs.Is(err, errs.ErrValidation) {
		return errs.UserMessage(err, genericFailure)
	}
	s.log.Error(op+" failed", logx.Err(err))
	return genericFailure
}

// FormatLine renders one task as "- [id] status | type(value) | prompt".
func FormatLine(t task.Task) string {
	return fmt.Sprintf("- [%s] %s | %s | %s", t.ID, t.Status, t.Schedule, Truncate(t.Prompt, promptPreviewLen))
}

// FormatTime is the timestamp format used in replies.
func FormatTime(t time.Time) string { return t.Format(time.RFC3339) }

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n])
}
