package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clawbot/internal/agent"
	"clawbot/internal/storage"
	"clawbot/internal/task/manage"
	"clawbot/internal/task/schedule"
	"clawbot/internal/task/scheduler"
	kit "clawbot/internal/transport"
	logx "clawbot/pkg/logx"
)

const owner = int64(1001)

type fakeChat struct {
	mu     sync.Mutex
	texts  []string
	typing int
}

func (f *fakeChat) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.texts)}, nil
}

func (f *fakeChat) SendTyping(context.Context, kit.ChatTarget) error {
	f.mu.Lock()
	f.typing++
	f.mu.Unlock()
	return nil
}

func (f *fakeChat) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

type fakeAgent struct {
	prompts []string
	tools   *agent.Toolset
	resets  int
}

func (a *fakeAgent) Run(_ context.Context, _ int64, text string, tools *agent.Toolset) string {
	a.prompts = append(a.prompts, text)
	a.tools = tools
	return "echo: " + text
}

func (a *fakeAgent) Reset() error {
	a.resets++
	return nil
}

type fakeArchive struct{ pairs [][2]string }

func (f *fakeArchive) Append(u, a string) { f.pairs = append(f.pairs, [2]string{u, a}) }

type fixedStatus struct{ snap scheduler.Snapshot }

func (f fixedStatus) Snapshot() scheduler.Snapshot { return f.snap }

type harness struct {
	bot   *Bot
	chat  *fakeChat
	agent *fakeAgent
	arch  *fakeArchive
	mgr   *manage.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "memory"}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	h := &harness{chat: &fakeChat{}, agent: &fakeAgent{}, arch: &fakeArchive{}}
	h.mgr = manage.New(st, schedule.New(time.UTC), logx.Nop())
	h.bot = New(Config{OwnerID: owner, AssistantName: "Ape"}, Deps{
		Chat:      h.chat,
		Agent:     h.agent,
		Manage:    h.mgr,
		Notifier:  nopNotifier{},
		Scheduler: fixedStatus{scheduler.Snapshot{Enabled: true, Running: true, Interval: time.Minute}},
		Archive:   h.arch,
	}, logx.Nop())
	return h
}

type nopNotifier struct{}

func (nopNotifier) Send(context.Context, int64, string) error { return nil }

func msg(from int64, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ID: 1, ChatID: from, FromID: from, Text: text}}
}

func TestNonOwnerIgnored(t *testing.T) {
	h := newHarness(t)
	h.bot.Handle(context.Background(), msg(42, "hello"))
	h.bot.Handle(context.Background(), msg(42, "/start"))
	assert.Empty(t, h.chat.texts)
	assert.Empty(t, h.agent.prompts)
}

func TestMessageGoesThroughAgent(t *testing.T) {
	h := newHarness(t)
	h.bot.Handle(context.Background(), msg(owner, "  remind me at 9  "))

	assert.Equal(t, []string{"remind me at 9"}, h.agent.prompts)
	assert.Equal(t, "echo: remind me at 9", h.chat.last())
	assert.Equal(t, [][2]string{{"remind me at 9", "echo: remind me at 9"}}, h.arch.pairs)
	assert.GreaterOrEqual(t, h.chat.typing, 1)
	require.NotNil(t, h.agent.tools)
	assert.Equal(t, 6, h.agent.tools.Len())
}

func TestCommands(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.bot.Handle(ctx, msg(owner, "/start"))
	assert.Contains(t, h.chat.last(), "Hi! I'm Ape, your personal AI assistant.")
	assert.Contains(t, h.chat.last(), "/clear - Reset conversation session")

	h.bot.Handle(ctx, msg(owner, "/clear@ape_bot"))
	assert.Equal(t, "Session cleared. Starting fresh!", h.chat.last())
	assert.Equal(t, 1, h.agent.resets)

	h.bot.Handle(ctx, msg(owner, "/tasks"))
	assert.Equal(t, "No scheduled tasks.", h.chat.last())

	_, _, err := h.mgr.Schedule(ctx, owner, "water", schedule.Spec{Type: schedule.Cron, Value: "0 9 * * *"})
	require.NoError(t, err)
	h.bot.Handle(ctx, msg(owner, "/status"))
	assert.Contains(t, h.chat.last(), "Scheduler: running, every 1m0s")
	assert.Contains(t, h.chat.last(), "Tasks: 1 active, 0 paused, 0 completed")

	h.bot.Handle(ctx, msg(owner, "/nope"))
	assert.Equal(t, "Unknown command. Try /start", h.chat.last())
	assert.Empty(t, h.agent.prompts)
}

func TestDispatchLoop(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan kit.Update, 1)
	done := make(chan error, 1)
	go func() { done <- h.bot.DispatchLoop(ctx, updates) }()

	updates <- msg(owner, "/tasks")
	require.Eventually(t, func() bool { return h.chat.last() != "" }, 2*time.Second, 10*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestParseCommand(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		word string
		args []string
		ok   bool
	}{
		{"/start", "start", []string{}, true},
		{"/Tasks@my_bot extra arg", "tasks", []string{"extra", "arg"}, true},
		{"hello", "", nil, false},
		{"/", "", nil, false},
	}
	for _, tt := range tests {
		word, args, ok := parseCommand(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.word, word, tt.in)
		if tt.ok {
			assert.Equal(t, tt.args, args, tt.in)
		}
	}
}

func TestMenuCommands(t *testing.T) {
	h := newHarness(t)
	menu := h.bot.MenuCommands()
	require.Len(t, menu, 4)
	assert.Equal(t, "start", menu[0].Command)
}
