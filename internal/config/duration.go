package config

import (
	"strconv"
	"strings"
	"time"

	"clawbot/internal/errs"
)

// ParseDurationField parses an optional Go duration ("90s", "5m"). Empty
// means zero. Negative values are rejected. path names the field in errors.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errs.Mark(errs.Wrapf(err, "%s: invalid duration %q", path, raw), errs.ErrValidation)
	}
	if d < 0 {
		return 0, errs.Validationf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def for empty or zero.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// ParseSeconds reads a positive whole number of seconds, the unit the
// environment uses for intervals.
func ParseSeconds(name, raw string) (time.Duration, error) {
	secs, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || secs <= 0 {
		return 0, errs.Validationf("%s: expected a positive number of seconds, got %q", name, raw)
	}
	return time.Duration(secs) * time.Second, nil
}
