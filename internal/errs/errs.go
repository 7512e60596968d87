// Package errs re-exports github.com/cockroachdb/errors and defines the
// error taxonomy shared by the task subsystem.
//
// Usage:
//
//	if err := st.Create(ctx, t); err != nil {
//	    return errs.Storage(err, "create task")
//	}
//	if errs.Is(err, errs.ErrStorage) { ... }
//
// User-facing text travels as hints (errs.WithHint / errs.UserMessage).
package errs

import (
	"strings"

	crdb "github.com/cockroachdb/errors"
)

var (
	New         = crdb.New
	Newf        = crdb.Newf
	Wrap        = crdb.Wrap
	Wrapf       = crdb.Wrapf
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	Is          = crdb.Is
	As          = crdb.As
	Mark        = crdb.Mark
	GetAllHints = crdb.GetAllHints
)

// Taxonomy markers. Use with errs.Is.
var (
	// ErrValidation: malformed schedule type or value at creation time.
	ErrValidation = New("validation error")
	// ErrSchedule: a schedule could not produce its next occurrence.
	ErrSchedule = New("schedule error")
	// ErrStorage: the persistence layer failed.
	ErrStorage = New("storage error")
	// ErrAgentInvocation: the agent capability failed.
	ErrAgentInvocation = New("agent invocation error")
)

// Validationf builds a validation error whose message is also its user hint.
func Validationf(format string, args ...any) error {
	err := Newf(format, args...)
	return Mark(WithHint(err, err.Error()), ErrValidation)
}

// Schedule marks err as a schedule error.
func Schedule(err error, msg string) error {
	if err == nil {
		return nil
	}
	return Mark(Wrap(err, msg), ErrSchedule)
}

// Storage marks err as a storage error.
func Storage(err error, op string) error {
	if err == nil {
		return nil
	}
	return Mark(Wrapf(err, "storage: %s", op), ErrStorage)
}

// AgentInvocation marks err as an agent invocation error.
func AgentInvocation(err error, msg string) error {
	if err == nil {
		return nil
	}
	return Mark(Wrap(err, msg), ErrAgentInvocation)
}

// UserMessage returns the hints attached to err, or fallback when there are none.
func UserMessage(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	hints := GetAllHints(err)
	if len(hints) == 0 {
		return fallback
	}
	return strings.Join(hints, "\n")
}
