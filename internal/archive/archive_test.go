package archive

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "clawbot/pkg/logx"
)

func TestAppendWritesDailyFile(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "conversations")
	a := New(dir, "Ape", logx.Nop())
	a.now = func() time.Time { return time.Date(2025, 1, 15, 9, 30, 5, 0, time.UTC) }

	a.Append("hi", "hello!")
	a.Append("bye", "see you")

	b, err := os.ReadFile(filepath.Join(dir, "2025-01-15.md"))
	require.NoError(t, err)
	want := "# Conversations - 2025-01-15\n\n" +
		"## 09:30:05 UTC\n\n**User**: hi\n\n**Ape**: hello!\n\n---\n\n" +
		"## 09:30:05 UTC\n\n**User**: bye\n\n**Ape**: see you\n\n---\n\n"
	assert.Equal(t, want, string(b))
}

func TestAppendFailureIsSwallowed(t *testing.T) {
	t.Parallel()
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	a := New(filepath.Join(blocker, "sub"), "", logx.Nop())
	assert.NotPanics(t, func() { a.Append("x", "y") })
}
