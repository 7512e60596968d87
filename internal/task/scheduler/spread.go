package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"

	logx "clawbot/pkg/logx"
)

const defaultStartupDelay = 5 * time.Second

// firstAtSchedule wraps a base schedule and overrides the first run time.
// After the first run, it delegates to the base schedule.
type firstAtSchedule struct {
	base  cron.Schedule
	first time.Time
}

func (s *firstAtSchedule) Next(t time.Time) time.Time {
	if !s.first.IsZero() && t.Before(s.first) {
		return s.first
	}
	return s.base.Next(t)
}

// tickSchedule fires every interval, with the first tick after delay so
// tasks that came due while the process was down run soon after start.
func tickSchedule(every, delay time.Duration, now time.Time) cron.Schedule {
	base := cron.Every(every)
	if delay <= 0 {
		delay = defaultStartupDelay
	}
	if delay >= every {
		return base
	}
	return &firstAtSchedule{base: base, first: now.Add(delay)}
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ s *Service }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.s.log.Debug("cron: "+msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.s.log.Warn("cron: "+msg, logx.Err(err), logx.Any("kv", kv))
}
