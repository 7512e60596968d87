package config

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"os"
	"strings"
	"sync"
	"time"

	"clawbot/internal/errs"
	logx "clawbot/pkg/logx"
)

const validateTimeout = 5 * time.Second

// ConfigManager owns the live Config. The file is optional: with an empty
// path the config comes from the environment alone and Watch only waits
// for ctx.
type ConfigManager struct {
	path   string
	lookup LookupFunc

	mu   sync.RWMutex
	cfg  *Config
	hash uint64

	// subsMu is held while sending so a concurrent unsubscribe never
	// closes a channel mid-send.
	subsMu sync.Mutex
	subs   map[chan *Config]struct{}

	log       logx.Logger
	validator func(ctx context.Context, cfg *Config) error
}

func NewConfigManager(path string) *ConfigManager {
	return &ConfigManager{
		path:   strings.TrimSpace(path),
		lookup: os.LookupEnv,
		subs:   make(map[chan *Config]struct{}),
		log:    logx.Nop(),
	}
}

// SetLookup replaces the environment source (tests).
func (m *ConfigManager) SetLookup(fn LookupFunc) { m.lookup = fn }

func (m *ConfigManager) Path() string { return m.path }

func (m *ConfigManager) SetLogger(log logx.Logger) {
	if log.IsZero() {
		log = logx.Nop()
	}
	m.log = log
}

// SetValidator installs a hook that must accept a reloaded config before
// it is committed and published.
func (m *ConfigManager) SetValidator(fn func(ctx context.Context, cfg *Config) error) {
	m.validator = fn
}

// Parse reads the file (if any), overlays the environment, fills defaults
// and validates. It does not touch the live config.
func (m *ConfigManager) Parse() (*Config, error) {
	var cfg Config
	if m.path != "" {
		if err := decodeFile(m.path, &cfg); err != nil {
			return nil, err
		}
	}
	if err := ApplyEnv(&cfg, m.lookup); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load parses and commits without notifying subscribers. Used at startup.
func (m *ConfigManager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	m.Commit(cfg)
	return cfg, nil
}

func (m *ConfigManager) Commit(cfg *Config) {
	h := hashConfig(cfg)
	m.mu.Lock()
	m.cfg, m.hash = cfg, h
	m.mu.Unlock()
}

func (m *ConfigManager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Reload re-reads the config and publishes it when its content changed and
// the validator accepts it. changed is false for an identical config.
func (m *ConfigManager) Reload(ctx context.Context) (changed bool, err error) {
	cfg, err := m.Parse()
	if err != nil {
		return false, err
	}
	h := hashConfig(cfg)
	m.mu.RLock()
	same := h != 0 && h == m.hash
	m.mu.RUnlock()
	if same {
		return false, nil
	}
	if m.validator != nil {
		vctx, cancel := context.WithTimeout(ctx, validateTimeout)
		err := m.validator(vctx, cfg)
		cancel()
		if err != nil {
			return false, errs.Wrap(err, "config rejected")
		}
	}
	m.Commit(cfg)
	m.publish(cfg)
	m.log.Debug("config published", logx.String("path", m.path), logx.Uint64("hash", h))
	return true, nil
}

// Subscribe returns a channel that receives each published config. A slow
// subscriber only ever misses intermediate versions, never the latest.
func (m *ConfigManager) Subscribe(buffer int) (<-chan *Config, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan *Config, buffer)
	m.subsMu.Lock()
	m.subs[ch] = struct{}{}
	m.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subsMu.Lock()
			delete(m.subs, ch)
			close(ch)
			m.subsMu.Unlock()
		})
	}
}

func (m *ConfigManager) publish(cfg *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for ch := range m.subs {
		if !offerLatest(ch, cfg) {
			m.log.Debug("config update dropped (subscriber slow)", logx.Int("queue_cap", cap(ch)))
		}
	}
}

// offerLatest sends v, evicting one stale value when the buffer is full.
func offerLatest(ch chan *Config, v *Config) bool {
	select {
	case ch <- v:
		return true
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
		return true
	default:
		return false
	}
}

func hashConfig(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil || len(b) == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
