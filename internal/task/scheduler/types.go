package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"clawbot/internal/eventbus"
	"clawbot/internal/task"
	"clawbot/internal/task/executor"
	logx "clawbot/pkg/logx"
)

// Config controls the scheduler loop.
type Config struct {
	Enabled  bool
	Interval time.Duration // 0 means 60s
	// StartupDelay is the wait before the first tick (0 means 5s, capped at Interval).
	StartupDelay time.Duration
}

// Executor runs one due task.
type Executor interface {
	Execute(ctx context.Context, t task.Task) executor.Outcome
}

// TickResult summarizes one tick.
type TickResult struct {
	At       time.Time
	Due      int
	Executed int
	Skipped  int
	Failed   int
	Took     time.Duration
	Err      error
}

type Service struct {
	mu sync.Mutex

	log   logx.Logger
	cfg   Config
	bus   eventbus.Bus
	store task.Store
	exec  Executor
	now   func() time.Time

	c       *cron.Cron
	entryID cron.EntryID
	runCtx  context.Context
	// stopping makes a running tick return after its current task.
	stopping atomic.Bool

	statsMu sync.Mutex
	stats   stats
}

type stats struct {
	ticks    uint64
	executed uint64
	failed   uint64
	last     TickResult
}

type Snapshot struct {
	Enabled  bool
	Running  bool
	Interval time.Duration
	Next     time.Time

	Ticks    uint64
	Executed uint64
	Failed   uint64

	LastTick     time.Time
	LastTook     time.Duration
	LastDue      int
	LastErr      string
	LastExecuted int
}
