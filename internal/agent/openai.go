package agent

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"clawbot/internal/errs"
	"clawbot/internal/storage"
	logx "clawbot/pkg/logx"
)

// ChatClient is the subset of *openai.Client the runner uses.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// TranscriptStore keeps interactive history keyed by session handle.
type TranscriptStore interface {
	AppendTranscript(ctx context.Context, sessionID string, entries []storage.TranscriptEntry) error
	LoadTranscript(ctx context.Context, sessionID string, limit int) ([]storage.TranscriptEntry, error)
}

type RunnerConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	// MaxSteps bounds model round trips per invocation (0 means 8).
	MaxSteps int
	// HistoryLimit is how many transcript entries a resumed session replays (0 means 40).
	HistoryLimit int
}

// NewClient builds an OpenAI-compatible client.
func NewClient(cfg RunnerConfig) *openai.Client {
	key := cfg.APIKey
	if key == "" {
		key = "sk-xxx"
	}
	c := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		c.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 150 * time.Second
	}
	c.HTTPClient = &http.Client{Timeout: timeout}
	return openai.NewClientWithConfig(c)
}

// Runner implements Capability on chat completions with tool calling.
type Runner struct {
	client      ChatClient
	cfg         RunnerConfig
	system      func() string
	transcripts TranscriptStore
	log         logx.Logger
}

var _ Capability = (*Runner)(nil)

// NewRunner returns a runner. system is evaluated on every invocation so
// edits to the memory file are picked up. transcripts may be nil.
func NewRunner(client ChatClient, cfg RunnerConfig, system func() string, transcripts TranscriptStore, log logx.Logger) *Runner {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 8
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 40
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if system == nil {
		system = func() string { return "" }
	}
	return &Runner{client: client, cfg: cfg, system: system, transcripts: transcripts, log: log}
}

func (r *Runner) Invoke(ctx context.Context, req Request) (Result, error) {
	session := req.Session
	if req.KeepSession && session == "" {
		session = uuid.NewString()
	}

	msgs := make([]openai.ChatCompletionMessage, 0, 8)
	if sys := strings.TrimSpace(r.system()); sys != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: sys})
	}
	if req.Session != "" && r.transcripts != nil {
		hist, err := r.transcripts.LoadTranscript(ctx, req.Session, r.cfg.HistoryLimit)
		if err != nil {
			r.log.Warn("load transcript failed; continuing without history", logx.String("session", req.Session), logx.Err(err))
		}
		for _, h := range hist {
			msgs = append(msgs, openai.ChatCompletionMessage{Role: h.Role, Content: h.Content})
		}
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Instruction})

	tools := toolDefinitions(req.Tools)
	var parts []string

	for step := 0; step < r.cfg.MaxSteps; step++ {
		resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    r.cfg.Model,
			Messages: msgs,
			Tools:    tools,
		})
		if err != nil {
			return Result{}, errs.AgentInvocation(err, "chat completion")
		}
		if len(resp.Choices) == 0 {
			return Result{}, errs.AgentInvocation(errs.New("no choices"), "chat completion")
		}
		msg := resp.Choices[0].Message
		if strings.TrimSpace(msg.Content) != "" {
			parts = append(parts, msg.Content)
		}
		if len(msg.ToolCalls) == 0 {
			text := strings.Join(parts, "\n")
			r.saveTranscript(ctx, session, req, text)
			return Result{Text: text, Session: session}, nil
		}

		msgs = append(msgs, msg)
		for _, call := range msg.ToolCalls {
			out, err := req.Tools.Call(ctx, call.Function.Name, call.Function.Arguments)
			if err != nil {
				r.log.Debug("tool call failed", logx.String("tool", call.Function.Name), logx.Err(err))
				out = "Error: " + err.Error()
			} else {
				r.log.Debug("tool call", logx.String("tool", call.Function.Name))
			}
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    out,
				Name:       call.Function.Name,
				ToolCallID: call.ID,
			})
		}
	}

	if len(parts) > 0 {
		text := strings.Join(parts, "\n")
		r.log.Warn("agent hit step limit; returning partial text", logx.Int("steps", r.cfg.MaxSteps))
		r.saveTranscript(ctx, session, req, text)
		return Result{Text: text, Session: session}, nil
	}
	return Result{}, errs.AgentInvocation(errs.Newf("no answer after %d steps", r.cfg.MaxSteps), "tool loop")
}

func (r *Runner) saveTranscript(ctx context.Context, session string, req Request, text string) {
	if !req.KeepSession || session == "" || r.transcripts == nil {
		return
	}
	now := time.Now()
	entries := []storage.TranscriptEntry{{Role: openai.ChatMessageRoleUser, Content: req.Instruction, At: now}}
	if text != "" {
		entries = append(entries, storage.TranscriptEntry{Role: openai.ChatMessageRoleAssistant, Content: text, At: now})
	}
	if err := r.transcripts.AppendTranscript(ctx, session, entries); err != nil {
		r.log.Warn("save transcript failed", logx.String("session", session), logx.Err(err))
	}
}

func toolDefinitions(ts *Toolset) []openai.Tool {
	list := ts.List()
	if len(list) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(list))
	for _, t := range list {
		params := jsonschema.Definition{
			Type:       jsonschema.Object,
			Properties: map[string]jsonschema.Definition{},
		}
		for _, p := range t.Params {
			params.Properties[p.Name] = jsonschema.Definition{
				Type:        jsonschema.String,
				Description: p.Description,
				Enum:        p.Enum,
			}
			if p.Required {
				params.Required = append(params.Required, p.Name)
			}
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}
