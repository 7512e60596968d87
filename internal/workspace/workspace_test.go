package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureCreatesLayoutOnce(t *testing.T) {
	t.Parallel()
	w := New(filepath.Join(t.TempDir(), "ws"), "Ape")

	require.NoError(t, w.Ensure())
	st, err := os.Stat(w.ConversationsPath())
	require.NoError(t, err)
	assert.True(t, st.IsDir())
	assert.Contains(t, w.Memory(), "# Ape - Personal AI Assistant")

	require.NoError(t, os.WriteFile(w.MemoryPath(), []byte("custom"), 0o644))
	require.NoError(t, w.Ensure())
	assert.Equal(t, "custom", w.Memory())
}

func TestMemoryMissing(t *testing.T) {
	t.Parallel()
	assert.Empty(t, New(t.TempDir(), "").Memory())
}
