package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMemoryStore verifies the in-process mirror backend
func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	t.Run("missing key is empty, not an error", func(t *testing.T) {
		val, err := store.Get(ctx, "nope")
		require.NoError(t, err)
		assert.Equal(t, "", val)

		ok, err := store.Exists(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("set then get round-trips", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "unimerch.cart", `{"items":[]}`, 0))

		val, err := store.Get(ctx, "unimerch.cart")
		require.NoError(t, err)
		assert.Equal(t, `{"items":[]}`, val)

		ok, err := store.Exists(ctx, "unimerch.cart")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("delete removes", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "gone", "v", 0))
		require.NoError(t, store.Delete(ctx, "gone"))

		val, err := store.Get(ctx, "gone")
		require.NoError(t, err)
		assert.Equal(t, "", val)
	})

	t.Run("ttl expires entries", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "short", "v", 10*time.Millisecond))
		time.Sleep(30 * time.Millisecond)

		val, err := store.Get(ctx, "short")
		require.NoError(t, err)
		assert.Equal(t, "", val)
	})
}

// TestMemoryStoreConcurrency verifies concurrent mixed access is safe
func TestMemoryStoreConcurrency(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				_ = store.Set(ctx, "k", "v", 0)
				_, _ = store.Get(ctx, "k")
				_, _ = store.Exists(ctx, "k")
			}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
	close(done)
}
