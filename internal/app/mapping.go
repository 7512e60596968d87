package app

import (
	"time"

	"clawbot/internal/agent"
	"clawbot/internal/config"
	"clawbot/internal/notifier"
	"clawbot/internal/observability/ops"
	"clawbot/internal/storage"
	"clawbot/internal/task/scheduler"
	telegram "clawbot/internal/transport/telegram/adapter"
	logx "clawbot/pkg/logx"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Driver: cfg.Storage.Driver, Path: cfg.StorePath(), BusyTimeout: busy}, nil
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	every, err := config.ParseDurationOrDefault("scheduler.interval", cfg.Scheduler.Interval, config.DefaultSchedulerInterval)
	if err != nil {
		return scheduler.Config{}, err
	}
	delay, err := config.ParseDurationField("scheduler.startup_delay", cfg.Scheduler.StartupDelay)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{Enabled: cfg.Scheduler.IsEnabled(), Interval: every, StartupDelay: delay}, nil
}

func mapRunnerConfig(cfg *config.Config) (agent.RunnerConfig, error) {
	timeout, err := config.ParseDurationField("agent.timeout", cfg.Agent.Timeout)
	if err != nil {
		return agent.RunnerConfig{}, err
	}
	return agent.RunnerConfig{
		APIKey:       cfg.Agent.APIKey,
		BaseURL:      cfg.Agent.BaseURL,
		Model:        cfg.Agent.Model,
		Timeout:      timeout,
		MaxSteps:     cfg.Agent.MaxSteps,
		HistoryLimit: cfg.Agent.HistoryLimit,
	}, nil
}

func mapAdapterConfig(cfg *config.Config) (telegram.Config, error) {
	poll, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{Token: cfg.Telegram.Token, PollTimeout: poll}, nil
}

func mapNotifierConfig(cfg *config.Config) notifier.Config {
	return notifier.Config{RatePerSec: cfg.Notifier.RatePerSec}
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Chat.Enabled,
			MinLevel:   cfg.Logging.Chat.MinLevel,
			RatePerSec: cfg.Logging.Chat.RatePerSec,
		},
	}
}

func mapOpsConfig(cfg *config.Config) ops.Config {
	return ops.Config{
		Enabled:       cfg.Ops.Enabled,
		Addr:          cfg.Ops.Addr,
		Token:         cfg.Ops.Token,
		AllowInsecure: cfg.Ops.AllowInsecure,
		Pprof:         cfg.Ops.Pprof,
	}
}

// secrets lists the config values that must never reach a log sink.
func secrets(cfg *config.Config) []string {
	if cfg == nil {
		return nil
	}
	return []string{cfg.Telegram.Token, cfg.Agent.APIKey, cfg.Ops.Token}
}
