package agent

import (
	"context"
	"strings"
	"sync"
	"time"

	"clawbot/internal/session"
	logx "clawbot/pkg/logx"
)

const (
	ReplyFailed = "Sorry, something went wrong while processing your request."
	ReplyEmpty  = "Done."
)

// Interactive serializes chat-driven invocations behind one process-wide
// lock and carries the resumable session handle between them.
type Interactive struct {
	cap      Capability
	sessions *session.Store
	log      logx.Logger

	mu sync.Mutex
}

func NewInteractive(c Capability, sessions *session.Store, log logx.Logger) *Interactive {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Interactive{cap: c, sessions: sessions, log: log}
}

// Run invokes the agent for one user message and returns the reply text.
// It never returns an error; failures become ReplyFailed.
func (i *Interactive) Run(ctx context.Context, ownerID int64, text string, tools *Toolset) string {
	i.mu.Lock()
	defer i.mu.Unlock()

	handle, _, err := i.sessions.Load()
	if err != nil {
		i.log.Warn("session state unreadable; starting a new session", logx.Err(err))
		handle = ""
	}

	start := time.Now()
	res, err := i.cap.Invoke(ctx, Request{
		Instruction: text,
		OwnerID:     ownerID,
		Session:     handle,
		KeepSession: true,
		Tools:       tools,
	})
	if err != nil {
		i.log.Error("agent invocation failed", logx.Int64("owner", ownerID), logx.Duration("took", time.Since(start)), logx.Err(err))
		return ReplyFailed
	}
	if res.Session != "" && res.Session != handle {
		if err := i.sessions.Save(res.Session); err != nil {
			i.log.Warn("save session failed", logx.Err(err))
		}
	}
	i.log.Debug("agent replied", logx.Duration("took", time.Since(start)), logx.Int("len", len(res.Text)))

	if strings.TrimSpace(res.Text) == "" {
		return ReplyEmpty
	}
	return res.Text
}

// Reset forgets the session so the next message starts fresh. It waits for
// an in-flight invocation to finish.
func (i *Interactive) Reset() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.sessions.Clear()
}
