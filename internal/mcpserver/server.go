// Package mcpserver exposes the task management tools to external MCP
// clients over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"clawbot/internal/agent"
	logx "clawbot/pkg/logx"
)

const instructions = "Manage the owner's scheduled tasks. Times are RFC3339; interval values are milliseconds."

type Server struct {
	tools  *agent.Toolset
	server *server.MCPServer
	log    logx.Logger
}

// New registers every tool of ts on a fresh MCP server.
func New(name, version string, ts *agent.Toolset, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{
		tools: ts,
		server: server.NewMCPServer(name, version,
			server.WithToolCapabilities(true),
			server.WithInstructions(instructions),
		),
		log: log,
	}
	for _, t := range ts.List() {
		s.server.AddTool(toMCPTool(t), s.handler(t.Name))
	}
	return s
}

func toMCPTool(t agent.Tool) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(t.Description)}
	for _, p := range t.Params {
		popts := []mcp.PropertyOption{mcp.Description(p.Description)}
		if p.Required {
			popts = append(popts, mcp.Required())
		}
		if len(p.Enum) > 0 {
			popts = append(popts, mcp.Enum(p.Enum...))
		}
		opts = append(opts, mcp.WithString(p.Name, popts...))
	}
	return mcp.NewTool(t.Name, opts...)
}

func (s *Server) handler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw := "{}"
		if args := req.GetArguments(); len(args) > 0 {
			b, err := json.Marshal(args)
			if err != nil {
				return mcp.NewToolResultErrorFromErr("bad arguments", err), nil
			}
			raw = string(b)
		}
		out, err := s.tools.Call(ctx, name, raw)
		if err != nil {
			s.log.Debug("tool call failed", logx.String("tool", name), logx.Err(err))
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(out), nil
	}
}

// Serve runs the stdio transport until ctx is done or in is closed.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.log.Info("mcp server listening on stdio", logx.Int("tools", s.tools.Len()))
	return server.NewStdioServer(s.server).Listen(ctx, in, out)
}
