// Package bot handles owner messages: slash commands are answered locally,
// everything else goes to the interactive agent.
package bot

import (
	"context"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"clawbot/internal/agent"
	"clawbot/internal/notifier"
	"clawbot/internal/task/manage"
	"clawbot/internal/task/scheduler"
	kit "clawbot/internal/transport"
	logx "clawbot/pkg/logx"
)

const typingEvery = 4 * time.Second

type Config struct {
	OwnerID       int64
	AssistantName string
	// Workers bounds concurrently handled messages (0 means 2). Agent calls
	// are serialized anyway; extra workers keep commands responsive.
	Workers int
}

// Chat is the transport surface the bot needs.
type Chat interface {
	kit.Sender
	SendTyping(ctx context.Context, to kit.ChatTarget) error
}

// Agent is the interactive agent path.
type Agent interface {
	Run(ctx context.Context, ownerID int64, text string, tools *agent.Toolset) string
	Reset() error
}

type SchedulerStatus interface {
	Snapshot() scheduler.Snapshot
}

type Archiver interface {
	Append(user, assistant string)
}

type Deps struct {
	Chat      Chat
	Agent     Agent
	Manage    *manage.Service
	Notifier  notifier.Notifier
	Scheduler SchedulerStatus
	Archive   Archiver
}

type Bot struct {
	mu  sync.RWMutex
	cfg Config

	deps    Deps
	log     logx.Logger
	started time.Time
	cmds    map[string]command
}

func New(cfg Config, deps Deps, log logx.Logger) *Bot {
	if log.IsZero() {
		log = logx.Nop()
	}
	b := &Bot{cfg: cfg, deps: deps, log: log, started: time.Now()}
	b.cmds = b.commands()
	return b
}

// Apply swaps the owner and name (hot reload).
func (b *Bot) Apply(cfg Config) {
	b.mu.Lock()
	b.cfg = cfg
	b.mu.Unlock()
}

func (b *Bot) config() Config {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cfg
}

// MenuCommands is the command menu to publish on the transport.
func (b *Bot) MenuCommands() []kit.BotCommand {
	out := make([]kit.BotCommand, 0, len(b.cmds))
	for _, name := range commandOrder {
		out = append(out, kit.BotCommand{Command: name, Description: b.cmds[name].description})
	}
	return out
}

// DispatchLoop consumes updates until ctx is done or updates is closed.
func (b *Bot) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := b.config().Workers
	if workers <= 0 {
		workers = 2
	}
	jobs := make(chan kit.Update, 32)
	b.log.Info("dispatcher started", logx.Int("workers", workers))

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for up := range jobs {
				b.Handle(ctx, up)
			}
		}()
	}
	defer func() {
		close(jobs)
		wg.Wait()
		b.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			select {
			case jobs <- up:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// Handle processes one update synchronously.
func (b *Bot) Handle(ctx context.Context, up kit.Update) {
	msg := up.Message
	if up.Kind != kit.UpdateMessage || msg == nil {
		return
	}
	cfg := b.config()
	if msg.FromID != cfg.OwnerID {
		b.log.Debug("ignored message from non-owner", logx.Int64("from_id", msg.FromID))
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	rid := newReqID()
	log := b.log.With(logx.String("rid", rid), logx.Int64("chat_id", msg.ChatID))
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic in handler", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()

	chat := kit.ChatTarget{ChatID: msg.ChatID}
	if word, args, ok := parseCommand(text); ok {
		cmd, found := b.cmds[word]
		if !found {
			b.reply(ctx, log, chat, "Unknown command. Try /start")
			return
		}
		start := time.Now()
		reply := cmd.run(ctx, msg, args)
		log.Debug("command handled", logx.String("cmd", word), logx.Duration("took", time.Since(start)))
		b.reply(ctx, log, chat, reply)
		return
	}

	b.converse(ctx, log, msg, chat, text)
}

func (b *Bot) converse(ctx context.Context, log logx.Logger, msg *kit.Message, chat kit.ChatTarget, text string) {
	stopTyping := b.keepTyping(ctx, chat)
	tools := agent.NewManagementToolset(msg.ChatID, b.deps.Manage, b.deps.Notifier)
	start := time.Now()
	reply := b.deps.Agent.Run(ctx, msg.ChatID, text, tools)
	stopTyping()
	log.Info("message answered", logx.Duration("took", time.Since(start)), logx.Int("len", len(reply)))

	if b.deps.Archive != nil {
		b.deps.Archive.Append(text, reply)
	}
	b.reply(ctx, log, chat, reply)
}

// keepTyping refreshes the typing indicator until the returned func is called.
func (b *Bot) keepTyping(ctx context.Context, chat kit.ChatTarget) func() {
	tctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(typingEvery)
		defer t.Stop()
		for {
			if err := b.deps.Chat.SendTyping(tctx, chat); err != nil && tctx.Err() == nil {
				b.log.Debug("typing indicator failed", logx.Err(err))
			}
			select {
			case <-tctx.Done():
				return
			case <-t.C:
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (b *Bot) reply(ctx context.Context, log logx.Logger, chat kit.ChatTarget, text string) {
	if _, err := b.deps.Chat.SendText(ctx, chat, text, &kit.SendOptions{DisablePreview: true}); err != nil {
		log.Warn("reply failed", logx.Err(err))
	}
}

// parseCommand splits "/cmd@bot a b" into ("cmd", ["a","b"]).
func parseCommand(text string) (string, []string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	parts := strings.Fields(text)
	word := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	if word == "" {
		return "", nil, false
	}
	return word, parts[1:], true
}
