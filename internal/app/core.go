package app

import (
	"clawbot/internal/config"
	"clawbot/internal/eventbus"
	"clawbot/internal/storage"
	"clawbot/internal/task/manage"
	"clawbot/internal/task/schedule"
	"clawbot/internal/workspace"
	logx "clawbot/pkg/logx"
)

// Core is the task subsystem without a chat transport. The bot, the
// tasks CLI and the MCP server all build on it.
type Core struct {
	Config    *config.Config
	Store     *storage.Store
	Calc      *schedule.Calculator
	Manage    *manage.Service
	Workspace *workspace.Workspace
}

func OpenCore(cfg *config.Config, log logx.Logger, bus eventbus.Bus) (*Core, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	ws := workspace.New(cfg.WorkspaceDir(), cfg.Agent.AssistantName)
	if err := ws.Ensure(); err != nil {
		_ = st.Close()
		return nil, err
	}

	calc := schedule.New(loc)
	opts := []manage.Option{}
	if bus != nil {
		opts = append(opts, manage.WithBus(bus))
	}
	return &Core{
		Config:    cfg,
		Store:     st,
		Calc:      calc,
		Manage:    manage.New(st, calc, log.With(logx.String("comp", "manage")), opts...),
		Workspace: ws,
	}, nil
}

func (c *Core) Close() error {
	if c == nil || c.Store == nil {
		return nil
	}
	return c.Store.Close()
}
