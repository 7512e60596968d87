package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/robfig/cron/v3"

	"clawbot/internal/eventbus"
	"clawbot/internal/task"
	logx "clawbot/pkg/logx"
)

const defaultInterval = 60 * time.Second

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(cfg Config, store task.Store, exec Executor, log logx.Logger, bus eventbus.Bus, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	s := &Service{
		cfg:   cfg,
		log:   log,
		bus:   bus,
		store: store,
		exec:  exec,
		now:   time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Enabled reports the current config flag. (Thread-safe; Apply() may run concurrently.)
func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// Apply swaps the config. An interval change restarts the ticker; toggling
// Enabled starts or stops it (only after Start has been called).
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.cfg
	s.cfg = cfg
	if s.runCtx == nil {
		return
	}
	switch {
	case !cfg.Enabled && s.c != nil:
		s.stopCronLocked(context.Background())
		s.log.Info("scheduler disabled")
	case cfg.Enabled && s.c == nil:
		s.startCronLocked()
	case cfg.Enabled && interval(old) != interval(cfg):
		s.stopCronLocked(context.Background())
		s.startCronLocked()
	}
}

// Start begins ticking. Executions run with a context that keeps ctx's
// values but not its cancellation: a started task always runs to the end
// and Stop waits for it.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCtx != nil {
		return
	}
	s.stopping.Store(false)
	s.runCtx = context.WithoutCancel(ctx)
	s.log.Debug("start requested", logx.Bool("enabled", s.cfg.Enabled), logx.Duration("interval", interval(s.cfg)))
	if !s.cfg.Enabled {
		s.log.Info("scheduler disabled; not ticking")
		return
	}
	s.startCronLocked()
}

// Stop stops ticking and waits (bounded by ctx) for a running tick to finish.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.log.Info("stop requested")
	s.stopping.Store(true)

	s.mu.Lock()
	s.stopCronLocked(ctx)
	s.runCtx = nil
	s.mu.Unlock()

	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

func (s *Service) startCronLocked() {
	every := interval(s.cfg)
	s.c = cron.New(
		cron.WithLogger(cronLogger{s: s}),
		cron.WithChain(cron.Recover(cronLogger{s: s}), cron.SkipIfStillRunning(cronLogger{s: s})),
	)
	runCtx := s.runCtx
	s.entryID = s.c.Schedule(tickSchedule(every, s.cfg.StartupDelay, time.Now()), cron.FuncJob(func() {
		s.Tick(runCtx, s.now())
	}))
	s.c.Start()
	s.log.Info("service started", logx.Duration("interval", every))
}

func (s *Service) stopCronLocked(ctx context.Context) {
	c := s.c
	s.c = nil
	s.entryID = 0
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("stop timed out waiting for running tick")
	}
}

// Tick runs one scheduling cycle at now. It is exported for the CLI and
// tests; the cron entry calls it on every interval.
func (s *Service) Tick(ctx context.Context, now time.Time) TickResult {
	res := TickResult{At: now}
	start := time.Now()

	due, err := s.store.Due(ctx, now)
	if err != nil {
		// Skip the whole cycle; the next tick retries.
		res.Err = err
		res.Took = time.Since(start)
		s.log.Error("query due tasks failed", logx.Err(err))
		s.record(res)
		return res
	}
	res.Due = len(due)

	for _, t := range due {
		if ctx.Err() != nil || s.stopping.Load() {
			// the rest stay due and run after restart
			break
		}
		ok, skipped := s.runOne(ctx, t)
		switch {
		case skipped:
			res.Skipped++
		case ok:
			res.Executed++
		default:
			res.Failed++
		}
	}
	res.Took = time.Since(start)

	if res.Due > 0 {
		s.log.Info("tick finished", logx.Int("due", res.Due), logx.Int("executed", res.Executed), logx.Int("failed", res.Failed), logx.Duration("took", res.Took))
	} else {
		s.log.Debug("tick: nothing due")
	}
	s.record(res)
	return res
}

// runOne executes a task and isolates its panics.
func (s *Service) runOne(ctx context.Context, t task.Task) (ok, skipped bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("task execution panicked", logx.TaskID(t.ID), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			ok, skipped = false, false
		}
	}()
	out := s.exec.Execute(ctx, t)
	if out.Skipped {
		return false, true
	}
	return out.Err == nil && out.Status == task.RunSuccess, false
}

func (s *Service) record(res TickResult) {
	s.statsMu.Lock()
	s.stats.ticks++
	s.stats.executed += uint64(res.Executed)
	s.stats.failed += uint64(res.Failed)
	s.stats.last = res
	s.statsMu.Unlock()

	ev := eventbus.TickEvent{Due: res.Due, Executed: res.Executed, Failed: res.Failed, Took: res.Took}
	if res.Err != nil {
		ev.Err = res.Err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeTick, Time: res.At, Data: ev})
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	cfg := s.cfg
	c := s.c
	id := s.entryID
	s.mu.Unlock()

	snap := Snapshot{
		Enabled:  cfg.Enabled,
		Running:  c != nil,
		Interval: interval(cfg),
	}
	if c != nil && id != 0 {
		snap.Next = c.Entry(id).Next
	}

	s.statsMu.Lock()
	st := s.stats
	s.statsMu.Unlock()
	snap.Ticks = st.ticks
	snap.Executed = st.executed
	snap.Failed = st.failed
	snap.LastTick = st.last.At
	snap.LastTook = st.last.Took
	snap.LastDue = st.last.Due
	snap.LastExecuted = st.last.Executed
	if st.last.Err != nil {
		snap.LastErr = st.last.Err.Error()
	}
	return snap
}

func interval(cfg Config) time.Duration {
	if cfg.Interval <= 0 {
		return defaultInterval
	}
	return cfg.Interval
}

func (r TickResult) String() string {
	return fmt.Sprintf("due=%d executed=%d skipped=%d failed=%d took=%s", r.Due, r.Executed, r.Skipped, r.Failed, r.Took.Round(time.Millisecond))
}
