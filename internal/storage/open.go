package storage

import (
	"strings"

	"clawbot/internal/errs"
	logx "clawbot/pkg/logx"
)

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (*Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory":
		cfg.Path = ":memory:"
		return openSQLite(cfg, log)
	default:
		return nil, errs.Newf("unknown storage driver: %s", driver)
	}
}
