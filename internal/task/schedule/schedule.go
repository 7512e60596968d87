package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"clawbot/internal/errs"
)

type Type string

const (
	Cron     Type = "cron"
	Interval Type = "interval"
	Once     Type = "once"
)

// Types lists the accepted schedule types in display order.
var Types = []Type{Cron, Interval, Once}

// Spec is the schedule captured on a task. It is immutable after creation.
type Spec struct {
	Type  Type
	Value string
}

func (s Spec) String() string { return fmt.Sprintf("%s(%s)", s.Type, s.Value) }

// Known reports whether the type is one the calculator understands.
func (t Type) Known() bool {
	switch t {
	case Cron, Interval, Once:
		return true
	}
	return false
}

// Calculator maps a Spec and "now" to the next due instant.
// The zero value is not usable; use New.
type Calculator struct {
	parser cron.Parser
	loc    *time.Location
}

// New returns a calculator that evaluates cron expressions and local
// timestamps in loc (time.Local when nil).
func New(loc *time.Location) *Calculator {
	if loc == nil {
		loc = time.Local
	}
	return &Calculator{
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		loc:    loc,
	}
}

func (c *Calculator) Location() *time.Location { return c.loc }

// Validate checks the structural shape of a spec without evaluating cron.
func (c *Calculator) Validate(spec Spec) error {
	if !spec.Type.Known() {
		return errs.Validationf("Unknown schedule_type: %s", spec.Type)
	}
	if strings.TrimSpace(spec.Value) == "" {
		return errs.Validationf("schedule_value is required for %s", spec.Type)
	}
	switch spec.Type {
	case Interval:
		d, err := ParseInterval(spec.Value)
		if err != nil {
			return errs.Validationf("invalid interval %q: %v", spec.Value, err)
		}
		if d <= 0 {
			return errs.Validationf("interval must be > 0, got %q", spec.Value)
		}
	case Once:
		if _, err := c.ParseTimestamp(spec.Value); err != nil {
			return errs.Validationf("invalid once timestamp %q (use RFC3339 like 2025-01-02T15:04:05Z)", spec.Value)
		}
	}
	return nil
}

// Next returns the first occurrence of spec relative to now. It is used at
// creation time: once returns its timestamp verbatim, even if already past.
func (c *Calculator) Next(spec Spec, now time.Time) (*time.Time, error) {
	switch spec.Type {
	case Cron:
		sched, err := c.parser.Parse(strings.TrimSpace(spec.Value))
		if err != nil {
			return nil, errs.Schedule(err, fmt.Sprintf("invalid cron expression %q", spec.Value))
		}
		next := sched.Next(now.In(c.loc))
		if next.IsZero() {
			return nil, errs.Schedule(errs.New("no future occurrence"), fmt.Sprintf("cron %q", spec.Value))
		}
		return &next, nil
	case Interval:
		d, err := ParseInterval(spec.Value)
		if err != nil {
			return nil, errs.Schedule(err, fmt.Sprintf("invalid interval %q", spec.Value))
		}
		next := now.Add(d)
		return &next, nil
	case Once:
		at, err := c.ParseTimestamp(spec.Value)
		if err != nil {
			return nil, errs.Schedule(err, fmt.Sprintf("invalid once timestamp %q", spec.Value))
		}
		return &at, nil
	default:
		return nil, errs.Schedule(errs.Newf("unknown schedule type %q", spec.Type), "next occurrence")
	}
}

// After returns the occurrence that follows a run which happened at now.
// scheduled is the next_run the run was picked up for (may be nil).
//
// Cron returns the first match strictly after now. Interval keeps the
// cadence anchored to scheduled and skips slots already in the past, so a
// late tick does not drift and a long outage does not cause a burst. Once
// returns nil.
func (c *Calculator) After(spec Spec, scheduled *time.Time, now time.Time) (*time.Time, error) {
	switch spec.Type {
	case Once:
		return nil, nil
	case Interval:
		d, err := ParseInterval(spec.Value)
		if err != nil {
			return nil, errs.Schedule(err, fmt.Sprintf("invalid interval %q", spec.Value))
		}
		if d <= 0 || scheduled == nil || scheduled.After(now) {
			next := now.Add(d)
			return &next, nil
		}
		missed := now.Sub(*scheduled)/d + 1
		next := scheduled.Add(missed * d)
		return &next, nil
	default:
		return c.Next(spec, now)
	}
}
