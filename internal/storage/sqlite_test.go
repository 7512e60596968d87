package storage

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clawbot/internal/errs"
	"clawbot/internal/task"
	"clawbot/internal/task/schedule"
	logx "clawbot/pkg/logx"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	st, err := Open(Config{Driver: "memory"}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func ms(v int64) *time.Time {
	t := time.UnixMilli(v)
	return &t
}

func TestCreateAndGet(t *testing.T) {
	st := openMemory(t)
	ctx := context.Background()

	id, err := st.Create(ctx, task.NewTask{
		OwnerID:  42,
		Prompt:   "water the plants",
		Schedule: schedule.Spec{Type: schedule.Interval, Value: "3600000"},
		NextRun:  ms(1_000_000),
	})
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9a-f]{8}$`, id)

	got, ok, err := st.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(42), got.OwnerID)
	assert.Equal(t, "water the plants", got.Prompt)
	assert.Equal(t, schedule.Spec{Type: schedule.Interval, Value: "3600000"}, got.Schedule)
	assert.Equal(t, task.StatusActive, got.Status)
	require.NotNil(t, got.NextRun)
	assert.Equal(t, int64(1_000_000), got.NextRun.UnixMilli())
	assert.Nil(t, got.LastRun)
	assert.Empty(t, got.LastResult)

	_, ok, err = st.Get(ctx, "deadbeef")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDueFiltersAndOrders(t *testing.T) {
	st := openMemory(t)
	ctx := context.Background()
	mk := func(next *time.Time) string {
		id, err := st.Create(ctx, task.NewTask{
			OwnerID:  1,
			Prompt:   "p",
			Schedule: schedule.Spec{Type: schedule.Once, Value: "x"},
			NextRun:  next,
		})
		require.NoError(t, err)
		return id
	}

	late := mk(ms(2000))
	early := mk(ms(1000))
	future := mk(ms(9000))
	paused := mk(ms(500))
	mk(nil)

	ok, err := st.SetStatus(ctx, paused, task.StatusPaused)
	require.NoError(t, err)
	require.True(t, ok)

	due, err := st.Due(ctx, time.UnixMilli(2000))
	require.NoError(t, err)
	ids := make([]string, 0, len(due))
	for _, d := range due {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{early, late}, ids)
	assert.NotContains(t, ids, future)
}

func TestSetStatusAndDeleteMissing(t *testing.T) {
	st := openMemory(t)
	ctx := context.Background()

	ok, err := st.SetStatus(ctx, "nope", task.StatusPaused)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = st.Delete(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordRunOutcomeAndRunLogSurviveDelete(t *testing.T) {
	st := openMemory(t)
	ctx := context.Background()

	id, err := st.Create(ctx, task.NewTask{
		OwnerID:  1,
		Prompt:   "p",
		Schedule: schedule.Spec{Type: schedule.Once, Value: "x"},
		NextRun:  ms(1000),
	})
	require.NoError(t, err)

	require.NoError(t, st.RecordRunOutcome(ctx, id, task.Outcome{
		RanAt:      time.UnixMilli(1500),
		LastResult: "ok",
		NextRun:    nil,
		Status:     task.StatusCompleted,
	}))
	got, ok, err := st.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, task.StatusCompleted, got.Status)
	assert.Nil(t, got.NextRun)
	require.NotNil(t, got.LastRun)
	assert.Equal(t, int64(1500), got.LastRun.UnixMilli())
	assert.Equal(t, "ok", got.LastResult)

	for i, status := range []task.RunStatus{task.RunSuccess, task.RunError} {
		require.NoError(t, st.AppendRunLog(ctx, task.RunLogEntry{
			TaskID:   id,
			RunAt:    time.UnixMilli(int64(2000 + i)),
			Duration: 250 * time.Millisecond,
			Status:   status,
			Result:   "r",
			Error:    map[bool]string{true: "boom"}[status == task.RunError],
		}))
	}

	ok, err = st.Delete(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	runs, err := st.Runs(ctx, id, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, task.RunError, runs[0].Status)
	assert.Equal(t, "boom", runs[0].Error)
	assert.Equal(t, task.RunSuccess, runs[1].Status)
	assert.Empty(t, runs[1].Error)
	assert.Equal(t, 250*time.Millisecond, runs[1].Duration)
}

func TestRecordRunOutcomeKeepsPauseMadeDuringRun(t *testing.T) {
	st := openMemory(t)
	ctx := context.Background()

	newTask := func(typ schedule.Type, value string) string {
		id, err := st.Create(ctx, task.NewTask{OwnerID: 1, Prompt: "p", Schedule: schedule.Spec{Type: typ, Value: value}, NextRun: ms(1000)})
		require.NoError(t, err)
		ok, err := st.SetStatus(ctx, id, task.StatusPaused)
		require.NoError(t, err)
		require.True(t, ok)
		return id
	}

	interval := newTask(schedule.Interval, "60000")
	require.NoError(t, st.RecordRunOutcome(ctx, interval, task.Outcome{
		RanAt: time.UnixMilli(1100), LastResult: "ok", NextRun: ms(61000), Status: task.StatusActive,
	}))
	got, _, err := st.Get(ctx, interval)
	require.NoError(t, err)
	assert.Equal(t, task.StatusPaused, got.Status)
	require.NotNil(t, got.NextRun)
	assert.Equal(t, int64(61000), got.NextRun.UnixMilli())
	assert.Equal(t, "ok", got.LastResult)

	once := newTask(schedule.Once, "x")
	require.NoError(t, st.RecordRunOutcome(ctx, once, task.Outcome{
		RanAt: time.UnixMilli(1100), Status: task.StatusCompleted,
	}))
	got, _, err = st.Get(ctx, once)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, got.Status)
	assert.Nil(t, got.NextRun)
}

func TestTranscriptKeepsLatestInOrder(t *testing.T) {
	st := openMemory(t)
	ctx := context.Background()

	require.NoError(t, st.AppendTranscript(ctx, "s1", []TranscriptEntry{
		{Role: "user", Content: "one"},
		{Role: "assistant", Content: "two"},
		{Role: "user", Content: "three"},
	}))
	require.NoError(t, st.AppendTranscript(ctx, "s2", []TranscriptEntry{{Role: "user", Content: "other"}}))

	got, err := st.LoadTranscript(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "two", got[0].Content)
	assert.Equal(t, "three", got[1].Content)

	none, err := st.LoadTranscript(ctx, "missing", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "postgres"}, logx.Nop())
	assert.Error(t, err)
}

func TestStorageFailuresAreMarked(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	st := newStore(db, logx.Nop())
	ctx := context.Background()
	boom := errors.New("disk I/O error")

	mock.ExpectQuery(regexp.QuoteMeta("FROM scheduled_tasks")).WillReturnError(boom)
	_, err = st.Due(ctx, time.Now())
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrStorage))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE scheduled_tasks SET last_run")).WillReturnError(boom)
	err = st.RecordRunOutcome(ctx, "abc", task.Outcome{Status: task.StatusActive})
	assert.True(t, errs.Is(err, errs.ErrStorage))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO task_run_logs")).WillReturnError(boom)
	err = st.AppendRunLog(ctx, task.RunLogEntry{TaskID: "abc", Status: task.RunError})
	assert.True(t, errs.Is(err, errs.ErrStorage))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRetriesOnIDCollision(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	st := newStore(db, logx.Nop())

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO scheduled_tasks")).
		WillReturnError(errors.New("UNIQUE constraint failed: scheduled_tasks.id"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO scheduled_tasks")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	id, err := st.Create(context.Background(), task.NewTask{
		OwnerID:  1,
		Prompt:   "p",
		Schedule: schedule.Spec{Type: schedule.Cron, Value: "0 9 * * *"},
	})
	require.NoError(t, err)
	assert.Len(t, id, 8)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClosedStore(t *testing.T) {
	var st *Store
	_, err := st.ListAll(context.Background())
	assert.True(t, errs.Is(err, ErrClosed))
}
