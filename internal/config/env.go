package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"clawbot/internal/errs"
)

const (
	DefaultAssistantName     = "Ape"
	DefaultSchedulerInterval = 60 * time.Second
	DefaultModel             = "gpt-4o-mini"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// first returns the first non-empty value among keys.
func first(lookup LookupFunc, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := lookup(k); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

// ApplyEnv overlays environment variables on cfg. Variables win over the file.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := first(lookup, "TELEGRAM_BOT_TOKEN"); ok {
		cfg.Telegram.Token = v
	}
	if v, ok := first(lookup, "OWNER_ID"); ok {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return errs.Wrapf(err, "OWNER_ID: invalid user id %q", v)
		}
		cfg.Telegram.OwnerID = id
	}
	if v, ok := first(lookup, "AGENT_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY"); ok {
		cfg.Agent.APIKey = v
	}
	if v, ok := first(lookup, "AGENT_BASE_URL", "ANTHROPIC_BASE_URL"); ok {
		cfg.Agent.BaseURL = v
	}
	if v, ok := first(lookup, "AGENT_MODEL"); ok {
		cfg.Agent.Model = v
	}
	if v, ok := first(lookup, "ASSISTANT_NAME"); ok {
		cfg.Agent.AssistantName = v
	}
	if v, ok := first(lookup, "SCHEDULER_INTERVAL"); ok {
		d, err := ParseSeconds("SCHEDULER_INTERVAL", v)
		if err != nil {
			return err
		}
		cfg.Scheduler.Interval = d.String()
	}
	if v, ok := first(lookup, "LOG_LEVEL"); ok {
		cfg.Logging.Level = v
	}
	if v, ok := first(lookup, "CLAWBOT_HOME"); ok {
		cfg.Home = v
	}
	return nil
}

// ApplyDefaults fills zero values.
func ApplyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Agent.AssistantName) == "" {
		cfg.Agent.AssistantName = DefaultAssistantName
	}
	if strings.TrimSpace(cfg.Agent.Model) == "" {
		cfg.Agent.Model = DefaultModel
	}
	if strings.TrimSpace(cfg.Scheduler.Interval) == "" {
		cfg.Scheduler.Interval = DefaultSchedulerInterval.String()
	}
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = "info"
	}
	if !cfg.Logging.Console && !cfg.Logging.File.Enabled {
		cfg.Logging.Console = true
	}
	if strings.TrimSpace(cfg.Storage.Driver) == "" {
		cfg.Storage.Driver = "sqlite"
	}
}

// Validate checks the values every command needs (durations, timezone).
func Validate(cfg *Config) error {
	if cfg == nil {
		return errs.New("config is nil")
	}
	for path, raw := range map[string]string{
		"telegram.poll_timeout":   cfg.Telegram.PollTimeout,
		"agent.timeout":           cfg.Agent.Timeout,
		"scheduler.interval":      cfg.Scheduler.Interval,
		"scheduler.startup_delay": cfg.Scheduler.StartupDelay,
		"storage.busy_timeout":    cfg.Storage.BusyTimeout,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			return err
		}
	}
	if d, _ := ParseDurationField("scheduler.interval", cfg.Scheduler.Interval); d > 0 && d < time.Second {
		return errs.Newf("scheduler.interval: must be at least 1s, got %s", d)
	}
	if _, err := cfg.Location(); err != nil {
		return err
	}
	if cfg.Notifier.RatePerSec < 0 {
		return errs.New("notifier.rate_per_sec: must be >= 0")
	}
	return nil
}

// ValidateBot additionally requires the credentials the chat bot runs with.
func ValidateBot(cfg *Config) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return errs.New("TELEGRAM_BOT_TOKEN is required")
	}
	if cfg.Telegram.OwnerID == 0 {
		return errs.New("OWNER_ID is required")
	}
	if strings.TrimSpace(cfg.Agent.APIKey) == "" && strings.TrimSpace(cfg.Agent.BaseURL) == "" {
		return errs.New("AGENT_API_KEY or AGENT_BASE_URL is required")
	}
	return nil
}

// Location resolves scheduler.timezone.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Scheduler.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, errs.Wrapf(err, "scheduler.timezone: %q", tz)
	}
	return loc, nil
}
