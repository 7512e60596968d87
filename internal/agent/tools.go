package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"clawbot/internal/errs"
	"clawbot/internal/notifier"
	"clawbot/internal/task/manage"
	"clawbot/internal/task/schedule"
)

// Tool names exposed to the model.
const (
	ToolSendMessage  = "send_message"
	ToolScheduleTask = "schedule_task"
	ToolListTasks    = "list_tasks"
	ToolPauseTask    = "pause_task"
	ToolResumeTask   = "resume_task"
	ToolCancelTask   = "cancel_task"
)

// Param is a string parameter of a tool.
type Param struct {
	Name        string
	Description string
	Required    bool
	Enum        []string
}

// Handler runs a tool. Arguments are already checked against Params.
// A non-nil error is reported back to the model as a failed call.
type Handler func(ctx context.Context, args map[string]string) (string, error)

type Tool struct {
	Name        string
	Description string
	Params      []Param
	Handler     Handler
}

// Toolset is a named set of tools. It is safe for concurrent use.
type Toolset struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewToolset(tools ...Tool) (*Toolset, error) {
	ts := &Toolset{tools: map[string]Tool{}}
	for _, t := range tools {
		if err := ts.Register(t); err != nil {
			return nil, err
		}
	}
	return ts, nil
}

func (ts *Toolset) Register(t Tool) error {
	if t.Name == "" || t.Handler == nil {
		return errs.New("invalid tool")
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if _, ok := ts.tools[t.Name]; ok {
		return errs.Newf("tool %s already registered", t.Name)
	}
	ts.tools[t.Name] = t
	return nil
}

// List returns the tools sorted by name.
func (ts *Toolset) List() []Tool {
	if ts == nil {
		return nil
	}
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	out := make([]Tool, 0, len(ts.tools))
	for _, t := range ts.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (ts *Toolset) Len() int {
	if ts == nil {
		return 0
	}
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return len(ts.tools)
}

// Call decodes raw JSON arguments and runs the named tool.
func (ts *Toolset) Call(ctx context.Context, name, rawArgs string) (string, error) {
	if ts == nil {
		return "", errs.Newf("tool not found: %s", name)
	}
	ts.mu.RLock()
	t, ok := ts.tools[name]
	ts.mu.RUnlock()
	if !ok {
		return "", errs.Newf("tool not found: %s", name)
	}
	args, err := decodeArgs(rawArgs)
	if err != nil {
		return "", errs.Wrapf(err, "tool %s: bad arguments", name)
	}
	for _, p := range t.Params {
		if p.Required && strings.TrimSpace(args[p.Name]) == "" {
			return "", errs.Newf("tool %s: missing required argument %q", name, p.Name)
		}
	}
	return t.Handler(ctx, args)
}

// decodeArgs accepts a JSON object and stringifies scalar values, so a
// model sending 60000 instead of "60000" still works.
func decodeArgs(raw string) (map[string]string, error) {
	out := map[string]string{}
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return out, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	for k, v := range m {
		switch x := v.(type) {
		case nil:
		case string:
			out[k] = x
		case float64:
			out[k] = strconv.FormatFloat(x, 'f', -1, 64)
		default:
			out[k] = fmt.Sprint(x)
		}
	}
	return out, nil
}

// ManagementTools returns the six tools bound to one owner context.
// Messages go through n, so wrapping n with notifier.Track reveals whether
// the model notified the owner.
func ManagementTools(ownerID int64, mgr *manage.Service, n notifier.Notifier) []Tool {
	typeNames := make([]string, 0, len(schedule.Types))
	for _, t := range schedule.Types {
		typeNames = append(typeNames, string(t))
	}
	taskID := Param{Name: "task_id", Description: "Task id as shown by list_tasks", Required: true}

	return []Tool{
		{
			Name:        ToolSendMessage,
			Description: "Send a message to the user on Telegram",
			Params:      []Param{{Name: "text", Description: "Message text", Required: true}},
			Handler: func(ctx context.Context, args map[string]string) (string, error) {
				if err := n.Send(ctx, ownerID, args["text"]); err != nil {
					return "", errs.Wrap(err, "send message")
				}
				return "Message sent.", nil
			},
		},
		{
			Name: ToolScheduleTask,
			Description: "Schedule a task. schedule_type: 'cron', 'interval', or 'once'. " +
				"schedule_value: cron expression, milliseconds, or ISO timestamp.",
			Params: []Param{
				{Name: "prompt", Description: "What to do when the task runs", Required: true},
				{Name: "schedule_type", Description: "cron, interval or once", Required: true, Enum: typeNames},
				{Name: "schedule_value", Description: "Cron expression, interval in milliseconds, or ISO timestamp", Required: true},
			},
			Handler: func(ctx context.Context, args map[string]string) (string, error) {
				msg, ok := mgr.ScheduleText(ctx, ownerID, args["prompt"], args["schedule_type"], args["schedule_value"])
				if !ok {
					return "", errs.New(msg)
				}
				return msg, nil
			},
		},
		{
			Name:        ToolListTasks,
			Description: "List all scheduled tasks",
			Handler: func(ctx context.Context, _ map[string]string) (string, error) {
				return mgr.ListText(ctx, manage.ListOptions{}), nil
			},
		},
		{
			Name:        ToolPauseTask,
			Description: "Pause a scheduled task",
			Params:      []Param{taskID},
			Handler: func(ctx context.Context, args map[string]string) (string, error) {
				return mgr.PauseText(ctx, args["task_id"]), nil
			},
		},
		{
			Name:        ToolResumeTask,
			Description: "Resume a paused task",
			Params:      []Param{taskID},
			Handler: func(ctx context.Context, args map[string]string) (string, error) {
				return mgr.ResumeText(ctx, args["task_id"]), nil
			},
		},
		{
			Name:        ToolCancelTask,
			Description: "Cancel and delete a scheduled task",
			Params:      []Param{taskID},
			Handler: func(ctx context.Context, args map[string]string) (string, error) {
				return mgr.CancelText(ctx, args["task_id"]), nil
			},
		},
	}
}

// NewManagementToolset is NewToolset(ManagementTools(...)...).
func NewManagementToolset(ownerID int64, mgr *manage.Service, n notifier.Notifier) *Toolset {
	ts, err := NewToolset(ManagementTools(ownerID, mgr, n)...)
	if err != nil {
		// names are constants and unique
		panic(err)
	}
	return ts
}
