package schedule

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"clawbot/internal/errs"
)

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// maxIntervalMillis is the longest interval a time.Duration can hold.
const maxIntervalMillis = math.MaxInt64 / int64(time.Millisecond)

// ParseInterval parses an interval value.
//
// Supported forms:
//   - milliseconds: "3600000"
//   - Go duration: "55m", "2h30m"
//   - HH:MM: "00:50" (50 minutes), "02:30" (2 hours 30 minutes)
//
// Zero and negative values parse successfully; Validate rejects them.
func ParseInterval(raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, errs.New("interval required")
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		if ms > maxIntervalMillis {
			return 0, errs.Newf("interval too large (max %d ms)", maxIntervalMillis)
		}
		return time.Duration(ms) * time.Millisecond, nil
	} else if errs.Is(err, strconv.ErrRange) {
		return 0, errs.Newf("interval too large (max %d ms)", maxIntervalMillis)
	}
	if reHHMM.MatchString(s) {
		return parseHHMMDuration(s)
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errs.New("use milliseconds like '3600000', HH:MM like '02:30', or a duration like '55m'")
	}
	return d, nil
}

func parseHHMMDuration(v string) (time.Duration, error) {
	m := reHHMM.FindStringSubmatch(v)
	if len(m) != 3 {
		return 0, errs.Newf("invalid HH:MM %q", v)
	}
	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if mm > 59 {
		return 0, errs.Newf("invalid minutes in %q", v)
	}
	return time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute, nil
}

var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseTimestamp parses a once value. Timestamps without an offset are read
// in the calculator's location.
func (c *Calculator) ParseTimestamp(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, c.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errs.Newf("invalid timestamp %q", raw)
}
