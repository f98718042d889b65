package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, KeyToken)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, KeyToken, []byte("abc")))
	v, err := s.Get(ctx, KeyToken)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(v))

	// Overwrite: last writer wins.
	require.NoError(t, s.Set(ctx, KeyToken, []byte("def")))
	v, err = s.Get(ctx, KeyToken)
	require.NoError(t, err)
	assert.Equal(t, "def", string(v))

	require.NoError(t, s.Set(ctx, KeyCart, []byte(`[]`)))
	require.NoError(t, s.Delete(ctx, KeyToken))
	_, err = s.Get(ctx, KeyToken)
	require.ErrorIs(t, err, ErrNotFound)

	// Other keys are untouched.
	v, err = s.Get(ctx, KeyCart)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(v))

	// Deleting a missing key is fine.
	require.NoError(t, s.Delete(ctx, "missing"))
}

func TestMemory(t *testing.T) {
	storeContract(t, NewMemory())
}

func TestMemory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	buf := []byte("abc")
	require.NoError(t, m.Set(ctx, KeyUser, buf))
	buf[0] = 'x'

	v, err := m.Get(ctx, KeyUser)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(v))
}

func TestSQLite(t *testing.T) {
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "state", "kart.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	storeContract(t, s)
}

func TestSQLite_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kart.db")

	s, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, KeyCart, []byte(`[{"quantity":1}]`)))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	v, err := s.Get(ctx, KeyCart)
	require.NoError(t, err)
	assert.Equal(t, `[{"quantity":1}]`, string(v))
	require.NoError(t, s.Ping(ctx))
}
