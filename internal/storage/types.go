package storage

import (
	"time"

	"clawbot/internal/errs"
)

var ErrClosed = errs.New("storage closed")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file at Path (default)
//   - "memory": private in-memory SQLite database (tests, dry runs)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means 5s
}

// TranscriptEntry is one message of an interactive agent session.
type TranscriptEntry struct {
	Role    string
	Content string
	At      time.Time
}
