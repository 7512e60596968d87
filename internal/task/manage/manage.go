// Package manage is the task management surface: create, list, pause,
// resume and cancel. The agent tools, the chat commands, the CLI and the
// MCP server all go through it.
//
// Every operation has a plain variant returning values and errors, and a
// Text variant that renders the outcome as the short message shown to the
// user. Not-found and illegal transitions are ordinary outcomes, not errors.
package manage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"clawbot/internal/errs"
	"clawbot/internal/eventbus"
	"clawbot/internal/task"
	"clawbot/internal/task/schedule"
	logx "clawbot/pkg/logx"
)

// Transition is the outcome of pause/resume/cancel.
type Transition int

const (
	Applied Transition = iota
	NotFound
	// Rejected: the task exists but its status does not allow the change.
	Rejected
)

const promptPreviewLen = 60

type Service struct {
	store task.Store
	calc  *schedule.Calculator
	bus   eventbus.Bus
	log   logx.Logger
	now   func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithBus(bus eventbus.Bus) Option {
	return func(s *Service) {
		if bus != nil {
			s.bus = bus
		}
	}
}

func New(store task.Store, calc *schedule.Calculator, log logx.Logger, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if calc == nil {
		calc = schedule.New(nil)
	}
	s := &Service{
		store: store,
		calc:  calc,
		bus:   eventbus.Nop(),
		log:   log,
		now:   time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Calculator exposes the schedule calculator shared with the executor.
func (s *Service) Calculator() *schedule.Calculator { return s.calc }

// Schedule validates spec, computes the first run and stores a new active task.
// Invalid input yields an error marked errs.ErrValidation and stores nothing.
func (s *Service) Schedule(ctx context.Context, ownerID int64, prompt string, spec schedule.Spec) (string, time.Time, error) {
	spec.Type = schedule.Type(strings.ToLower(strings.TrimSpace(string(spec.Type))))
	spec.Value = strings.TrimSpace(spec.Value)
	if strings.TrimSpace(prompt) == "" {
		return "", time.Time{}, errs.Validationf("prompt is required")
	}
	if err := s.calc.Validate(spec); err != nil {
		return "", time.Time{}, err
	}
	next, err := s.calc.Next(spec, s.now())
	if err != nil {
		// A cron expression is only parsed here; at creation it is a validation problem.
		return "", time.Time{}, errs.Mark(errs.WithHint(err, fmt.Sprintf("Invalid %s schedule %q", spec.Type, spec.Value)), errs.ErrValidation)
	}

	id, err := s.store.Create(ctx, task.NewTask{
		OwnerID:  ownerID,
		Prompt:   prompt,
		Schedule: spec,
		NextRun:  next,
	})
	if err != nil {
		return "", time.Time{}, err
	}
	s.log.Info("task scheduled", logx.TaskID(id), logx.String("schedule", spec.String()), logx.Time("next_run", *next))
	s.publish(id, "scheduled")
	return id, *next, nil
}

func (s *Service) Get(ctx context.Context, id string) (task.Task, bool, error) {
	return s.store.Get(ctx, strings.TrimSpace(id))
}

func (s *Service) List(ctx context.Context) ([]task.Task, error) {
	return s.store.ListAll(ctx)
}

func (s *Service) Runs(ctx context.Context, id string, limit int) ([]task.RunLogEntry, error) {
	return s.store.Runs(ctx, strings.TrimSpace(id), limit)
}

// Pause moves an active task to paused.
func (s *Service) Pause(ctx context.Context, id string) (Transition, error) {
	return s.transition(ctx, id, task.StatusActive, task.StatusPaused, "paused")
}

// Resume moves a paused task back to active. next_run is left untouched;
// an elapsed next_run makes the task due on the next tick.
func (s *Service) Resume(ctx context.Context, id string) (Transition, error) {
	return s.transition(ctx, id, task.StatusPaused, task.StatusActive, "resumed")
}

// Cancel deletes the task whatever its status. Its run log is kept.
func (s *Service) Cancel(ctx context.Context, id string) (Transition, error) {
	id = strings.TrimSpace(id)
	ok, err := s.store.Delete(ctx, id)
	if err != nil {
		return NotFound, err
	}
	if !ok {
		return NotFound, nil
	}
	s.log.Info("task cancelled", logx.TaskID(id))
	s.publish(id, "cancelled")
	return Applied, nil
}

func (s *Service) transition(ctx context.Context, id string, from, to task.Status, action string) (Transition, error) {
	id = strings.TrimSpace(id)
	t, ok, err := s.store.Get(ctx, id)
	if err != nil {
		return NotFound, err
	}
	if !ok {
		return NotFound, nil
	}
	if t.Status != from {
		return Rejected, nil
	}
	ok, err = s.store.SetStatus(ctx, id, to)
	if err != nil {
		return NotFound, err
	}
	if !ok {
		// deleted between the read and the write
		return NotFound, nil
	}
	s.log.Info("task "+action, logx.TaskID(id))
	s.publish(id, action)
	return Applied, nil
}

func (s *Service) publish(id, action string) {
	s.bus.Publish(eventbus.Event{
		Type: eventbus.TypeTaskChanged,
		Time: s.now(),
		Data: eventbus.TaskChangedEvent{TaskID: id, Action: action},
	})
}
