package notifier

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"clawbot/internal/errs"
	kit "clawbot/internal/transport"
	logx "clawbot/pkg/logx"
)

var ErrNoSender = errs.New("notifier has no sender")

// Notifier sends text to an owner context (a chat id).
type Notifier interface {
	Send(ctx context.Context, ownerID int64, text string) error
}

type Config struct {
	// RatePerSec caps outgoing messages across all callers (0 means 1).
	RatePerSec int
}

// Service implements Notifier on top of a transport sender.
// It is safe for concurrent use.
type Service struct {
	sender kit.Sender
	log    logx.Logger

	mu      sync.Mutex
	limiter *rate.Limiter
}

func New(cfg Config, sender kit.Sender, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{sender: sender, log: log}
	s.Apply(cfg)
	return s
}

// Apply updates the rate limit in place.
func (s *Service) Apply(cfg Config) {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	s.mu.Lock()
	if s.limiter == nil {
		s.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	} else {
		s.limiter.SetLimit(rate.Limit(rps))
		s.limiter.SetBurst(rps)
	}
	s.mu.Unlock()
}

func (s *Service) Send(ctx context.Context, ownerID int64, text string) error {
	if s.sender == nil {
		return ErrNoSender
	}
	s.mu.Lock()
	lim := s.limiter
	s.mu.Unlock()
	if err := lim.Wait(ctx); err != nil {
		return err
	}

	_, err := s.sender.SendText(ctx, kit.ChatTarget{ChatID: ownerID}, text, &kit.SendOptions{DisablePreview: true})
	if err != nil {
		s.log.Warn("notification failed", logx.Int64("owner", ownerID), logx.Err(err))
		return err
	}
	s.log.Debug("notification sent", logx.Int64("owner", ownerID), logx.Int("len", len(text)))
	return nil
}

// Tracked records whether a notification was delivered through it.
type Tracked struct {
	next Notifier
	sent atomic.Bool
}

func Track(n Notifier) *Tracked { return &Tracked{next: n} }

func (t *Tracked) Send(ctx context.Context, ownerID int64, text string) error {
	if err := t.next.Send(ctx, ownerID, text); err != nil {
		return err
	}
	t.sent.Store(true)
	return nil
}

// Sent reports whether at least one Send succeeded.
func (t *Tracked) Sent() bool { return t.sent.Load() }
