package config

import (
	"strings"

	logx "clawbot/pkg/logx"
)

// SummarizeConfigChange returns the changed sections and safe structured
// attrs for logging. Tokens and API keys are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	// Telegram (never log token)
	if oldCfg.Telegram.Token != newCfg.Telegram.Token ||
		oldCfg.Telegram.OwnerID != newCfg.Telegram.OwnerID ||
		strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_changed", oldCfg.Telegram.Token != newCfg.Telegram.Token),
			logx.Bool("telegram.owner_changed", oldCfg.Telegram.OwnerID != newCfg.Telegram.OwnerID),
		)
	}

	// Agent (never log api key)
	if oldCfg.Agent.APIKey != newCfg.Agent.APIKey ||
		oldCfg.Agent.BaseURL != newCfg.Agent.BaseURL ||
		oldCfg.Agent.Model != newCfg.Agent.Model ||
		oldCfg.Agent.Timeout != newCfg.Agent.Timeout ||
		oldCfg.Agent.MaxSteps != newCfg.Agent.MaxSteps ||
		oldCfg.Agent.HistoryLimit != newCfg.Agent.HistoryLimit ||
		oldCfg.Agent.AssistantName != newCfg.Agent.AssistantName {
		changed = append(changed, "agent")
		attrs = append(attrs,
			logx.String("agent.model", newCfg.Agent.Model),
			logx.String("agent.base_url", newCfg.Agent.BaseURL),
			logx.String("agent.assistant_name", newCfg.Agent.AssistantName),
		)
	}

	// Logging
	if oldCfg.Logging.Level != newCfg.Logging.Level ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		oldCfg.Logging.File != newCfg.Logging.File ||
		oldCfg.Logging.Chat != newCfg.Logging.Chat {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.chat_enabled", newCfg.Logging.Chat.Enabled),
		)
	}

	if oldCfg.Scheduler.IsEnabled() != newCfg.Scheduler.IsEnabled() ||
		strings.TrimSpace(oldCfg.Scheduler.Interval) != strings.TrimSpace(newCfg.Scheduler.Interval) ||
		strings.TrimSpace(oldCfg.Scheduler.StartupDelay) != strings.TrimSpace(newCfg.Scheduler.StartupDelay) ||
		strings.TrimSpace(oldCfg.Scheduler.Timezone) != strings.TrimSpace(newCfg.Scheduler.Timezone) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.IsEnabled()),
			logx.String("scheduler.interval", newCfg.Scheduler.Interval),
			logx.String("scheduler.timezone", newCfg.Scheduler.Timezone),
		)
	}

	if oldCfg.Notifier != newCfg.Notifier {
		changed = append(changed, "notifier")
		attrs = append(attrs, logx.Int("notifier.rate_per_sec", newCfg.Notifier.RatePerSec))
	}

	if oldCfg.Storage != newCfg.Storage || oldCfg.Home != newCfg.Home {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage.path", newCfg.StorePath()))
	}

	// Ops (never log token)
	if oldCfg.Ops != newCfg.Ops {
		changed = append(changed, "ops")
		attrs = append(attrs,
			logx.Bool("ops.enabled", newCfg.Ops.Enabled),
			logx.String("ops.addr", newCfg.Ops.Addr),
			logx.Bool("ops.token_set", newCfg.Ops.Token != ""),
			logx.Bool("ops.pprof", newCfg.Ops.Pprof),
		)
	}

	return changed, attrs
}

// RestartRequired reports sections that only take effect after a restart.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		switch s {
		case "telegram", "agent", "storage", "ops":
			out = append(out, s)
		}
	}
	return out
}
