package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBackend_RoundTrip(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()

	t.Run("GetMissingKey", func(t *testing.T) {
		_, err := backend.Get(ctx, "core/root")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("PutGet", func(t *testing.T) {
		require.NoError(t, backend.Put(ctx, "core/root", []byte("wrapped")))

		value, err := backend.Get(ctx, "core/root")
		require.NoError(t, err)
		assert.Equal(t, []byte("wrapped"), value)
	})

	t.Run("PutOverwrites", func(t *testing.T) {
		require.NoError(t, backend.Put(ctx, "core/root", []byte("rewrapped")))

		value, err := backend.Get(ctx, "core/root")
		require.NoError(t, err)
		assert.Equal(t, []byte("rewrapped"), value)
	})

	t.Run("DeleteThenGet", func(t *testing.T) {
		require.NoError(t, backend.Delete(ctx, "core/root"))

		_, err := backend.Get(ctx, "core/root")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("DeleteMissingKeyIsNoError", func(t *testing.T) {
		assert.NoError(t, backend.Delete(ctx, "core/absent"))
	})
}

func TestMemoryBackend_List(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()

	require.NoError(t, backend.Put(ctx, "lease/b", []byte("2")))
	require.NoError(t, backend.Put(ctx, "lease/a", []byte("1")))
	require.NoError(t, backend.Put(ctx, "keyring/payments", []byte("3")))

	keys, err := backend.List(ctx, "lease/")
	require.NoError(t, err)
	assert.Equal(t, []string{"lease/a", "lease/b"}, keys)

	keys, err = backend.List(ctx, "pki/")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestMemoryBackend_CopiesValues(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()

	original := []byte("wrapped")
	require.NoError(t, backend.Put(ctx, "core/root", original))
	original[0] = 'X'

	stored, err := backend.Get(ctx, "core/root")
	require.NoError(t, err)
	assert.Equal(t, []byte("wrapped"), stored)

	stored[0] = 'Y'
	again, err := backend.Get(ctx, "core/root")
	require.NoError(t, err)
	assert.Equal(t, []byte("wrapped"), again)
}
