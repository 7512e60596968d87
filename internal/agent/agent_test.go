package agent

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clawbot/internal/errs"
	"clawbot/internal/notifier"
	"clawbot/internal/session"
	"clawbot/internal/storage"
	"clawbot/internal/task/manage"
	"clawbot/internal/task/schedule"
	logx "clawbot/pkg/logx"
)

type sentMsg struct {
	owner int64
	text  string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMsg
	err  error
}

func (f *fakeNotifier) Send(_ context.Context, owner int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMsg{owner, text})
	return nil
}

// scriptedClient replays responses and records requests.
type scriptedClient struct {
	responses []openai.ChatCompletionMessage
	err       error
	reqs      []openai.ChatCompletionRequest
}

func (c *scriptedClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	c.reqs = append(c.reqs, req)
	if c.err != nil {
		return openai.ChatCompletionResponse{}, c.err
	}
	if len(c.responses) == 0 {
		return openai.ChatCompletionResponse{}, nil
	}
	msg := c.responses[0]
	c.responses = c.responses[1:]
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{Message: msg}}}, nil
}

func toolCall(id, name, args string) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleAssistant,
		ToolCalls: []openai.ToolCall{{
			ID:       id,
			Type:     openai.ToolTypeFunction,
			Function: openai.FunctionCall{Name: name, Arguments: args},
		}},
	}
}

func newStore(t *testing.T) *storage.Store {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "memory"}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newManager(t *testing.T) *manage.Service {
	return manage.New(newStore(t), schedule.New(time.UTC), logx.Nop())
}

func TestDecodeArgs(t *testing.T) {
	t.Parallel()
	got, err := decodeArgs(`{"schedule_value": 60000, "prompt": "x", "flag": true, "none": null}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"schedule_value": "60000", "prompt": "x", "flag": "true"}, got)

	got, err = decodeArgs("")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = decodeArgs("[1,2]")
	assert.Error(t, err)
}

func TestToolsetCall(t *testing.T) {
	t.Parallel()
	ts, err := NewToolset(Tool{
		Name:   "echo",
		Params: []Param{{Name: "v", Required: true}},
		Handler: func(_ context.Context, args map[string]string) (string, error) {
			return args["v"], nil
		},
	})
	require.NoError(t, err)

	out, err := ts.Call(context.Background(), "echo", `{"v":"hi"}`)
	require.NoError(t, err)
	assert.Equal(t, "hi", out)

	_, err = ts.Call(context.Background(), "echo", `{}`)
	assert.Error(t, err)
	_, err = ts.Call(context.Background(), "nope", `{}`)
	assert.Error(t, err)

	assert.Error(t, ts.Register(Tool{Name: "echo", Handler: func(context.Context, map[string]string) (string, error) { return "", nil }}))
}

func TestManagementTools(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t)
	n := &fakeNotifier{}
	ts := NewManagementToolset(9, mgr, n)
	assert.Equal(t, 6, ts.Len())

	out, err := ts.Call(ctx, ToolSendMessage, `{"text":"hello"}`)
	require.NoError(t, err)
	assert.Equal(t, "Message sent.", out)
	assert.Equal(t, []sentMsg{{9, "hello"}}, n.sent)

	out, err = ts.Call(ctx, ToolListTasks, `{}`)
	require.NoError(t, err)
	assert.Equal(t, "No scheduled tasks.", out)

	_, err = ts.Call(ctx, ToolScheduleTask, `{"prompt":"x","schedule_type":"hourly","schedule_value":"1"}`)
	require.Error(t, err)
	assert.Equal(t, "Unknown schedule_type: hourly", err.Error())

	out, err = ts.Call(ctx, ToolScheduleTask, `{"prompt":"x","schedule_type":"interval","schedule_value":60000}`)
	require.NoError(t, err)
	assert.Regexp(t, `^Task [0-9a-f]{8} scheduled\. Next run: `, out)

	out, err = ts.Call(ctx, ToolPauseTask, `{"task_id":"00000000"}`)
	require.NoError(t, err)
	assert.Equal(t, "Task 00000000 not found.", out)

	tasks, err := mgr.List(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, int64(9), tasks[0].OwnerID)
}

func TestRunnerToolLoop(t *testing.T) {
	ctx := context.Background()
	n := &fakeNotifier{}
	tracked := notifier.Track(n)
	client := &scriptedClient{responses: []openai.ChatCompletionMessage{
		toolCall("c1", ToolSendMessage, `{"text":"it is 9am"}`),
		{Role: openai.ChatMessageRoleAssistant, Content: "Reminder delivered."},
	}}
	r := NewRunner(client, RunnerConfig{Model: "m"}, func() string { return "sys" }, nil, logx.Nop())

	res, err := r.Invoke(ctx, Request{
		Instruction: TaskInstruction("say the time"),
		OwnerID:     3,
		Tools:       NewManagementToolset(3, newManager(t), tracked),
	})
	require.NoError(t, err)
	assert.Equal(t, "Reminder delivered.", res.Text)
	assert.Empty(t, res.Session)
	assert.True(t, tracked.Sent())

	require.Len(t, client.reqs, 2)
	assert.Len(t, client.reqs[0].Tools, 6)
	assert.Equal(t, openai.ChatMessageRoleSystem, client.reqs[0].Messages[0].Role)
	last := client.reqs[1].Messages[len(client.reqs[1].Messages)-1]
	assert.Equal(t, openai.ChatMessageRoleTool, last.Role)
	assert.Equal(t, "c1", last.ToolCallID)
	assert.Equal(t, "Message sent.", last.Content)
}

func TestRunnerFailureIsAgentInvocation(t *testing.T) {
	r := NewRunner(&scriptedClient{err: errors.New("502")}, RunnerConfig{}, nil, nil, logx.Nop())
	_, err := r.Invoke(context.Background(), Request{Instruction: "x"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrAgentInvocation))

	loop := &scriptedClient{}
	for i := 0; i < 3; i++ {
		loop.responses = append(loop.responses, toolCall("c", ToolListTasks, `{}`))
	}
	r = NewRunner(loop, RunnerConfig{MaxSteps: 3}, nil, nil, logx.Nop())
	_, err = r.Invoke(context.Background(), Request{Instruction: "x", Tools: NewManagementToolset(1, newManager(t), &fakeNotifier{})})
	assert.True(t, errs.Is(err, errs.ErrAgentInvocation))
}

func TestRunnerReplaysTranscript(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	client := &scriptedClient{responses: []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleAssistant, Content: "hi there"},
		{Role: openai.ChatMessageRoleAssistant, Content: "you said hello"},
	}}
	r := NewRunner(client, RunnerConfig{}, nil, st, logx.Nop())

	first, err := r.Invoke(ctx, Request{Instruction: "hello", KeepSession: true})
	require.NoError(t, err)
	require.NotEmpty(t, first.Session)

	second, err := r.Invoke(ctx, Request{Instruction: "what did I say?", Session: first.Session, KeepSession: true})
	require.NoError(t, err)
	assert.Equal(t, first.Session, second.Session)

	msgs := client.reqs[1].Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, "hi there", msgs[1].Content)
	assert.Equal(t, "what did I say?", msgs[2].Content)
}

func TestInteractive(t *testing.T) {
	ctx := context.Background()
	sessions := session.NewStore(filepath.Join(t.TempDir(), "state.json"))

	var seen []string
	capab := CapabilityFunc(func(_ context.Context, req Request) (Result, error) {
		seen = append(seen, req.Session)
		switch req.Instruction {
		case "fail":
			return Result{}, errs.AgentInvocation(errors.New("boom"), "test")
		case "quiet":
			return Result{Session: "s1"}, nil
		}
		return Result{Text: "ok", Session: "s1"}, nil
	})
	in := NewInteractive(capab, sessions, logx.Nop())

	assert.Equal(t, "ok", in.Run(ctx, 1, "hi", nil))
	assert.Equal(t, ReplyEmpty, in.Run(ctx, 1, "quiet", nil))
	assert.Equal(t, ReplyFailed, in.Run(ctx, 1, "fail", nil))
	assert.Equal(t, []string{"", "s1", "s1"}, seen)

	require.NoError(t, in.Reset())
	in.Run(ctx, 1, "hi", nil)
	assert.Equal(t, "", seen[len(seen)-1])
}

func TestInteractiveSerializes(t *testing.T) {
	sessions := session.NewStore(filepath.Join(t.TempDir(), "state.json"))
	var active, peak int32
	capab := CapabilityFunc(func(context.Context, Request) (Result, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return Result{Text: "ok"}, nil
	})
	in := NewInteractive(capab, sessions, logx.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			in.Run(context.Background(), 1, "x", nil)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&peak))
}

func TestSystemPrompt(t *testing.T) {
	t.Parallel()
	p := SystemPrompt("Ape", "- likes tea")
	assert.Contains(t, p, "You are Ape")
	assert.Contains(t, p, "## Memory")
	assert.Contains(t, p, "- likes tea")
	assert.NotContains(t, SystemPrompt("", ""), "## Memory")
}
