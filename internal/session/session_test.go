package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()
	st := NewStore(filepath.Join(t.TempDir(), "data", "state.json"))

	id, ok, err := st.Load()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, id)

	require.NoError(t, st.Save("sess-1"))
	id, ok, err = st.Load()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "sess-1", id)

	_, err = os.Stat(st.Path() + ".tmp")
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, st.Clear())
	require.NoError(t, st.Clear())
	_, ok, err = st.Load()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreCorruptFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, ok, err := NewStore(path).Load()
	assert.Error(t, err)
	assert.False(t, ok)
}
