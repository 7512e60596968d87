package app

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"clawbot/internal/agent"
	"clawbot/internal/archive"
	"clawbot/internal/bot"
	"clawbot/internal/config"
	"clawbot/internal/errs"
	"clawbot/internal/eventbus"
	"clawbot/internal/notifier"
	"clawbot/internal/observability/ops"
	"clawbot/internal/runtime/supervisor"
	"clawbot/internal/session"
	"clawbot/internal/task/executor"
	"clawbot/internal/task/scheduler"
	kit "clawbot/internal/transport"
	telegram "clawbot/internal/transport/telegram/adapter"
	logx "clawbot/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus
	core *Core

	adapter kit.Adapter
	notif   *notifier.Service
	exec    *executor.Executor
	sched   *scheduler.Service
	bot     *bot.Bot
	ops     *ops.Service

	updates chan kit.Update
}

// NewApp loads the config (file optional, env always applied) and wires
// every component. Nothing runs until Start.
func NewApp(cfgm *config.ConfigManager) (*App, error) {
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.ValidateBot(cfg); err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	adCfg, err := mapAdapterConfig(cfg)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(adCfg, bootLog)
	if err != nil {
		return nil, err
	}

	// Bootstrap with the chat sink off, set the target, then apply the final config.
	logCfg := mapLogConfig(cfg)
	bootCfg := logCfg
	bootCfg.Chat.Enabled = false
	logSvc, log := logx.New(bootCfg, ad)
	logSvc.SetChatTarget(cfg.Telegram.OwnerID)
	logSvc.Redact(secrets(cfg)...)
	logSvc.Apply(logCfg)
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()
	core, err := OpenCore(cfg, log, bus)
	if err != nil {
		return nil, err
	}

	notif := notifier.New(mapNotifierConfig(cfg), ad, log.With(logx.String("comp", "notifier")))

	rc, err := mapRunnerConfig(cfg)
	if err != nil {
		_ = core.Close()
		return nil, err
	}
	name := cfg.Agent.AssistantName
	ws := core.Workspace
	runner := agent.NewRunner(agent.NewClient(rc), rc,
		func() string { return agent.SystemPrompt(name, ws.Memory()) },
		core.Store, log.With(logx.String("comp", "agent")))

	exec := executor.New(core.Store, runner, notif, core.Manage,
		log.With(logx.String("comp", "executor")), executor.WithBus(bus))

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		_ = core.Close()
		return nil, err
	}
	sched := scheduler.New(schedCfg, core.Store, exec, log.With(logx.String("comp", "scheduler")), bus)

	sessions := session.NewStore(filepath.Join(cfg.DataDir(), "state.json"))
	interactive := agent.NewInteractive(runner, sessions, log.With(logx.String("comp", "interactive")))

	b := bot.New(bot.Config{OwnerID: cfg.Telegram.OwnerID, AssistantName: name}, bot.Deps{
		Chat:      ad,
		Agent:     interactive,
		Manage:    core.Manage,
		Notifier:  notif,
		Scheduler: sched,
		Archive:   archive.New(ws.ConversationsPath(), name, log.With(logx.String("comp", "archive"))),
	}, log.With(logx.String("comp", "bot")))

	a := &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		core:    core,
		adapter: ad,
		notif:   notif,
		exec:    exec,
		sched:   sched,
		bot:     b,
		updates: make(chan kit.Update, 256),
	}
	a.ops = ops.New(mapOpsConfig(cfg),
		statusFunc(name, time.Now(), core.Manage, sched, a.routines),
		log.With(logx.String("comp", "ops")))
	return a, nil
}

// routines is empty until Start creates the supervisor.
func (a *App) routines() []supervisor.Routine {
	if a.sup == nil {
		return nil
	}
	return a.sup.Routines()
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := config.ValidateBot(cfg); err != nil {
			return err
		}
		if _, err := mapSchedulerConfig(cfg); err != nil {
			return err
		}
		_, err := mapRunnerConfig(cfg)
		return err
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	if mu, ok := a.adapter.(kit.CommandMenuUpdater); ok {
		mctx, cancel := context.WithTimeout(a.sup.Context(), 10*time.Second)
		if err := mu.UpdateMenuCommands(mctx, a.bot.MenuCommands()); err != nil {
			a.log.Warn("menu commands update failed", logx.Err(err))
		}
		cancel()
	}

	if a.sched.Enabled() {
		a.sched.Start(a.sup.Context())
	}

	if err := a.ops.Start(a.sup.Context()); err != nil {
		a.log.Warn("ops server not started", logx.Err(err))
	}

	a.sup.Go("bot.dispatch", func(c context.Context) error {
		return a.bot.DispatchLoop(c, a.updates)
	})

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				// debug level: ticks are frequent
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub, unsubscribe := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer unsubscribe()
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// coalesce bursts: keep only the latest config
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started",
		logx.String("assistant", a.core.Config.Agent.AssistantName),
		logx.String("store", a.core.Config.StorePath()),
		logx.Bool("scheduler", a.sched.Enabled()),
	)
	return nil
}

// applyConfig fans a reloaded config out to the live components.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect", logx.String("sections", strings.Join(restart, ",")))
	}

	a.logs.SetChatTarget(newCfg.Telegram.OwnerID)
	// the old values stay live until restart
	a.logs.Redact(append(secrets(oldCfg), secrets(newCfg)...)...)
	a.logs.Apply(mapLogConfig(newCfg))

	if sc, err := mapSchedulerConfig(newCfg); err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	} else {
		a.sched.Apply(sc)
	}
	a.notif.Apply(mapNotifierConfig(newCfg))
	a.bot.Apply(bot.Config{OwnerID: newCfg.Telegram.OwnerID, AssistantName: a.core.Config.Agent.AssistantName})

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return a.core.Close()
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// cancel first so background loops start unwinding immediately
	a.sup.Cancel()

	// step bounds one shutdown step so a stuck component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		if max <= 0 {
			a.log.Warn("stop step skipped (no time left)", logx.String("name", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- errs.Newf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	// scheduler first: a running task finishes before storage closes
	step("scheduler", 30*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("ops", 2*time.Second, a.ops.Stop)
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", 1*time.Second, func(context.Context) error { return a.core.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}
