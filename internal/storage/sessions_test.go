package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Tale-Weaver/server/internal/models"
)

func TestMemorySessionStoreRoundTrip(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	sess := &PlayerSession{Token: "tok-1", UserID: 7, Username: "alice", ChatID: "chat-1"}
	require.NoError(t, store.Put(ctx, sess))

	got, err := store.Get(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, *sess, *got)
}

func TestMemorySessionStoreGetMissing(t *testing.T) {
	store := NewMemorySessionStore()
	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMemorySessionStoreDelete(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &PlayerSession{Token: "tok-1", UserID: 1, Username: "alice"}))
	require.NoError(t, store.Delete(ctx, "tok-1"))

	_, err := store.Get(ctx, "tok-1")
	assert.ErrorIs(t, err, models.ErrNotFound)

	// Deleting twice is harmless.
	assert.NoError(t, store.Delete(ctx, "tok-1"))
}

func TestMemorySessionStoreReturnsCopies(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &PlayerSession{Token: "tok-1", UserID: 1, Username: "alice"}))

	first, err := store.Get(ctx, "tok-1")
	require.NoError(t, err)
	first.ChatID = "mutated"

	second, err := store.Get(ctx, "tok-1")
	require.NoError(t, err)
	assert.Empty(t, second.ChatID)
}

func TestMemorySessionStoreUpdateOverwrites(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	sess := &PlayerSession{Token: "tok-1", UserID: 1, Username: "alice"}
	require.NoError(t, store.Put(ctx, sess))

	sess.ChatID = "chat-9"
	sess.CreationMode = true
	require.NoError(t, store.Put(ctx, sess))

	got, err := store.Get(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "chat-9", got.ChatID)
	assert.True(t, got.CreationMode)
}
