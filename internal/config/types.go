package config

import (
	"path/filepath"
	"strings"
)

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Agent     AgentConfig     `json:"agent"`
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Notifier  NotifierConfig  `json:"notifier"`
	Storage   StorageConfig   `json:"storage"`
	Ops       OpsConfig       `json:"ops"`

	// Home is the base directory for the store, data/ and workspace/.
	// Defaults to the working directory.
	Home string `json:"home,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// OwnerID is the only Telegram user the bot talks to.
	OwnerID     int64  `json:"owner_id"`
	PollTimeout string `json:"poll_timeout,omitempty"`
}

// AgentConfig points at an OpenAI-compatible chat completions endpoint.
type AgentConfig struct {
	APIKey        string `json:"api_key,omitempty"`
	BaseURL       string `json:"base_url,omitempty"`
	Model         string `json:"model,omitempty"`
	Timeout       string `json:"timeout,omitempty"`
	MaxSteps      int    `json:"max_steps,omitempty"`
	HistoryLimit  int    `json:"history_limit,omitempty"`
	AssistantName string `json:"assistant_name,omitempty"`
}

type LoggingConfig struct {
	Level   string `json:"level"`
	Console bool   `json:"console"`
	File    struct {
		Enabled bool   `json:"enabled"`
		Path    string `json:"path"`
	} `json:"file"`
	// Chat forwards WARN+ lines to the owner's chat.
	Chat struct {
		Enabled    bool   `json:"enabled"`
		MinLevel   string `json:"min_level,omitempty"`
		RatePerSec int    `json:"rate_per_sec,omitempty"`
	} `json:"chat"`
}

// SchedulerConfig controls the due-task polling loop.
//
// Enabled is a pointer so an omitted field means enabled.
type SchedulerConfig struct {
	Enabled      *bool  `json:"enabled,omitempty"`
	Interval     string `json:"interval,omitempty"`
	StartupDelay string `json:"startup_delay,omitempty"`
	// Timezone is an IANA name used for cron expressions. Empty means local time.
	Timezone string `json:"timezone,omitempty"`
}

func (c SchedulerConfig) IsEnabled() bool { return c.Enabled == nil || *c.Enabled }

type NotifierConfig struct {
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

type StorageConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// OpsConfig controls the operator HTTP server (/healthz, /status, pprof).
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
}

func (c *Config) home() string {
	if c == nil || strings.TrimSpace(c.Home) == "" {
		return "."
	}
	return c.Home
}

// StorePath is the sqlite database file.
func (c *Config) StorePath() string {
	if p := strings.TrimSpace(c.Storage.Path); p != "" {
		return p
	}
	return filepath.Join(c.home(), "store", "clawbot.db")
}

// DataDir holds small durable records (the interactive session handle).
func (c *Config) DataDir() string { return filepath.Join(c.home(), "data") }

func (c *Config) WorkspaceDir() string { return filepath.Join(c.home(), "workspace") }
