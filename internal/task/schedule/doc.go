// Package schedule computes when a task is next due.
//
// A schedule is a (type, value) pair as stored on the task row:
//   - cron:     a robfig/cron expression, 5 or 6 fields, or a descriptor like "@daily"
//   - interval: milliseconds ("3600000"), a Go duration ("1h30m") or HH:MM ("01:30")
//   - once:     an RFC3339 timestamp, or a local "YYYY-MM-DD HH:MM[:SS]"
//
// Validate rejects malformed types and values at creation time. Cron
// expressions are only parsed when an occurrence is computed, so a bad
// expression surfaces as errs.ErrSchedule from Next or After.
package schedule
