package manage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clawbot/internal/errs"
	"clawbot/internal/eventbus"
	"clawbot/internal/storage"
	"clawbot/internal/task"
	"clawbot/internal/task/schedule"
	logx "clawbot/pkg/logx"
)

var t0 = time.Date(2025, 3, 10, 8, 30, 0, 0, time.UTC)

func newService(t *testing.T, opts ...Option) (*Service, *storage.Store) {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "memory"}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	opts = append([]Option{WithClock(func() time.Time { return t0 })}, opts...)
	return New(st, schedule.New(time.UTC), logx.Nop(), opts...), st
}

func TestScheduleComputesFirstRun(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t)

	tests := []struct {
		name string
		spec schedule.Spec
		want time.Time
	}{
		{"cron", schedule.Spec{Type: schedule.Cron, Value: "0 9 * * *"}, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)},
		{"interval", schedule.Spec{Type: schedule.Interval, Value: "3600000"}, t0.Add(time.Hour)},
		{"once", schedule.Spec{Type: schedule.Once, Value: "2025-04-01T12:00:00Z"}, time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, next, err := svc.Schedule(ctx, 7, "ping", tt.spec)
			require.NoError(t, err)
			assert.True(t, next.Equal(tt.want), "next=%s want=%s", next, tt.want)

			got, ok, err := st.Get(ctx, id)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, task.StatusActive, got.Status)
			assert.Equal(t, int64(7), got.OwnerID)
			assert.Equal(t, tt.want.UnixMilli(), got.NextRun.UnixMilli())
		})
	}
}

func TestScheduleRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t)

	for _, spec := range []schedule.Spec{
		{Type: "weekly", Value: "mon"},
		{Type: schedule.Interval, Value: "0"},
		{Type: schedule.Interval, Value: "-5"},
		{Type: schedule.Cron, Value: "not a cron"},
		{Type: schedule.Once, Value: "tomorrow-ish"},
	} {
		_, _, err := svc.Schedule(ctx, 1, "x", spec)
		require.Error(t, err, spec.String())
		assert.True(t, errs.Is(err, errs.ErrValidation), spec.String())
	}

	all, err := st.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestScheduleText(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	msg, ok := svc.ScheduleText(ctx, 1, "stretch", "interval", "60000")
	assert.True(t, ok)
	assert.Regexp(t, `^Task [0-9a-f]{8} scheduled\. Next run: 2025-03-10T08:31:00Z$`, msg)

	msg, ok = svc.ScheduleText(ctx, 1, "stretch", "weekly", "mon")
	assert.False(t, ok)
	assert.Equal(t, "Unknown schedule_type: weekly", msg)
}

func TestListText(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	assert.Equal(t, "No scheduled tasks.", svc.ListText(ctx, ListOptions{}))

	long := strings.Repeat("a", 80)
	id, _, err := svc.Schedule(ctx, 1, long, schedule.Spec{Type: schedule.Interval, Value: "60000"})
	require.NoError(t, err)

	want := "- [" + id + "] active | interval(60000) | " + strings.Repeat("a", 60)
	assert.Equal(t, want, svc.ListText(ctx, ListOptions{}))
	assert.Contains(t, svc.ListText(ctx, ListOptions{WithNextRun: true}), want+" | next 1 minute from now")
}

func TestTransitions(t *testing.T) {
	ctx := context.Background()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()
	svc, st := newService(t, WithBus(bus))

	id, _, err := svc.Schedule(ctx, 1, "p", schedule.Spec{Type: schedule.Interval, Value: "60000"})
	require.NoError(t, err)
	before, ok, err := svc.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, before.NextRun)

	assert.Equal(t, "Task "+id+" cannot be resumed: it is active.", svc.ResumeText(ctx, id))
	assert.Equal(t, "Task "+id+" paused.", svc.PauseText(ctx, id))
	assert.Equal(t, "Task "+id+" cannot be paused: it is paused.", svc.PauseText(ctx, id))

	due, err := st.Due(ctx, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, due)

	assert.Equal(t, "Task "+id+" resumed.", svc.ResumeText(ctx, id))
	due, err = st.Due(ctx, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, due, 1)

	// pause and resume only flip the status
	after, ok, err := svc.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, task.StatusActive, after.Status)
	assert.Equal(t, before.Prompt, after.Prompt)
	assert.Equal(t, before.Schedule, after.Schedule)
	require.NotNil(t, after.NextRun)
	assert.True(t, before.NextRun.Equal(*after.NextRun), "next_run %v, want %v", *after.NextRun, *before.NextRun)
	assert.Equal(t, before.OwnerID, after.OwnerID)

	assert.Equal(t, "Task "+id+" cancelled.", svc.CancelText(ctx, id))
	assert.Equal(t, "Task "+id+" not found.", svc.CancelText(ctx, id))
	assert.Equal(t, "Task "+id+" not found.", svc.PauseText(ctx, id))
	assert.Equal(t, "Task "+id+" not found.", svc.ResumeText(ctx, id))

	var actions []string
	for len(events) > 0 {
		e := <-events
		actions = append(actions, e.Data.(eventbus.TaskChangedEvent).Action)
	}
	assert.Equal(t, []string{"scheduled", "paused", "resumed", "cancelled"}, actions)
}

func TestCompletedTaskAcceptsNoTransition(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t)

	id, _, err := svc.Schedule(ctx, 1, "p", schedule.Spec{Type: schedule.Once, Value: "2025-03-10T09:00:00Z"})
	require.NoError(t, err)
	require.NoError(t, st.RecordRunOutcome(ctx, id, task.Outcome{RanAt: t0, Status: task.StatusCompleted}))

	tr, err := svc.Pause(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, Rejected, tr)
	tr, err = svc.Resume(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, Rejected, tr)

	// cancel removes a finished task too
	tr, err = svc.Cancel(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, Applied, tr)
	_, ok, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTruncateRunes(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "héllo", Truncate("héllo wörld", 5))
	assert.Equal(t, "short", Truncate("short", 60))
}
