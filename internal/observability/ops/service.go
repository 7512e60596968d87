// Package ops serves the operator HTTP endpoints: liveness, a JSON status
// document and (optionally) pprof.
package ops

import (
	"context"
	"crypto/subtle"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/keyauth"
	fpprof "github.com/gofiber/fiber/v2/middleware/pprof"

	"clawbot/internal/errs"
	rtsup "clawbot/internal/runtime/supervisor"
	logx "clawbot/pkg/logx"
)

const defaultAddr = "127.0.0.1:6060"

// Config controls the ops server.
//
// A non-loopback Addr requires Token unless AllowInsecure is set.
type Config struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool
	Pprof         bool
}

// StatusFunc builds the document served at /status.
type StatusFunc func(ctx context.Context) (any, error)

type Service struct {
	mu     sync.Mutex
	log    logx.Logger
	cfg    Config
	status StatusFunc

	app *fiber.App
	sup *rtsup.Supervisor
}

func New(cfg Config, status StatusFunc, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, status: status, log: log}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Handler builds the routes for cfg. Exposed for tests.
func (s *Service) Handler(cfg Config) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		// pprof profile/trace hold the connection for their sampling window
		WriteTimeout: 2 * time.Minute,
	})

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	if tok := strings.TrimSpace(cfg.Token); tok != "" {
		app.Use(keyauth.New(keyauth.Config{
			KeyLookup:  "header:Authorization",
			AuthScheme: "Bearer",
			Validator: func(_ *fiber.Ctx, key string) (bool, error) {
				if subtle.ConstantTimeCompare([]byte(key), []byte(tok)) == 1 {
					return true, nil
				}
				return false, keyauth.ErrMissingOrMalformedAPIKey
			},
		}))
	}

	app.Get("/status", func(c *fiber.Ctx) error {
		if s.status == nil {
			return c.SendStatus(fiber.StatusNotFound)
		}
		doc, err := s.status(c.UserContext())
		if err != nil {
			s.log.Warn("status failed", logx.Err(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(doc)
	})

	if cfg.Pprof {
		app.Use(fpprof.New())
	}
	return app
}

// Start binds the listener and serves under a restart loop. Start is
// idempotent; a disabled config is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil || !s.cfg.Enabled {
		return nil
	}
	cfg := s.cfg
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		addr = defaultAddr
	}
	if cfg.Token == "" && !isLoopbackAddr(addr) {
		if !cfg.AllowInsecure {
			return errs.New("ops: non-loopback addr requires token or allow_insecure")
		}
		s.log.Warn("ops server running without token on non-loopback addr (insecure)", logx.String("addr", addr))
	}

	s.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(s.log),
		// optional observability; never take the app down
		rtsup.WithCancelOnError(false),
	)
	s.sup.GoRestart("http.serve", func(c context.Context) error {
		return s.serveOnce(c, cfg, addr)
	}, rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second))
	return nil
}

func (s *Service) serveOnce(ctx context.Context, cfg Config, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	app := s.Handler(cfg)

	s.mu.Lock()
	s.app = app
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = app.ShutdownWithContext(sctx)
	}()

	s.log.Info("ops server started", logx.String("addr", ln.Addr().String()), logx.Bool("pprof", cfg.Pprof), logx.Bool("token_set", cfg.Token != ""))
	err = app.Listener(ln)
	if ctx.Err() != nil {
		return context.Canceled
	}
	if err == nil {
		return errs.New("ops server exited unexpectedly")
	}
	return err
}

func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	sup, app := s.sup, s.app
	s.sup, s.app = nil, nil
	s.mu.Unlock()
	if sup == nil {
		return nil
	}
	if app != nil {
		_ = app.ShutdownWithContext(ctx)
	}
	sup.Cancel()
	if err := sup.Wait(ctx); err != nil && !errs.Is(err, context.Canceled) {
		return err
	}
	s.log.Info("ops server stopped")
	return nil
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		// empty host means all interfaces
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
