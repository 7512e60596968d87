package notifier

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kit "clawbot/internal/transport"
	logx "clawbot/pkg/logx"
)

type fakeSender struct {
	to   []kit.ChatTarget
	text []string
	err  error
}

func (f *fakeSender) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	if f.err != nil {
		return kit.MessageRef{}, f.err
	}
	f.to = append(f.to, to)
	f.text = append(f.text, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.text)}, nil
}

func TestServiceSend(t *testing.T) {
	t.Parallel()
	fs := &fakeSender{}
	svc := New(Config{RatePerSec: 10}, fs, logx.Nop())

	require.NoError(t, svc.Send(context.Background(), 42, "hi"))
	assert.Equal(t, []kit.ChatTarget{{ChatID: 42}}, fs.to)
	assert.Equal(t, []string{"hi"}, fs.text)
}

func TestServiceSendFailure(t *testing.T) {
	t.Parallel()
	boom := errors.New("telegram down")
	svc := New(Config{}, &fakeSender{err: boom}, logx.Nop())
	err := svc.Send(context.Background(), 1, "x")
	assert.ErrorIs(t, err, boom)
}

func TestServiceWithoutSender(t *testing.T) {
	t.Parallel()
	svc := New(Config{}, nil, logx.Nop())
	assert.ErrorIs(t, svc.Send(context.Background(), 1, "x"), ErrNoSender)
}

func TestTracked(t *testing.T) {
	t.Parallel()
	fs := &fakeSender{}
	tr := Track(New(Config{RatePerSec: 5}, fs, logx.Nop()))
	assert.False(t, tr.Sent())
	require.NoError(t, tr.Send(context.Background(), 7, "done"))
	assert.True(t, tr.Sent())

	failing := Track(New(Config{}, &fakeSender{err: errors.New("x")}, logx.Nop()))
	assert.Error(t, failing.Send(context.Background(), 7, "done"))
	assert.False(t, failing.Sent())
}
