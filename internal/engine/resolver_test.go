package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Tale-Weaver/server/internal/models"
	"Tale-Weaver/server/internal/storage"
)

func testNamespace(t *testing.T) *storage.Namespace {
	t.Helper()
	ns, err := storage.EnsureNamespace(t.TempDir(), "tester", 1)
	require.NoError(t, err)
	return ns
}

func createCharacter(t *testing.T, ns *storage.Namespace, id, name, desc string) {
	t.Helper()
	require.NoError(t, ns.Characters.Create(id, models.Character{
		ID:          id,
		Name:        name,
		Description: desc,
		CreatedAt:   time.Now(),
	}))
}

func TestBindIsOneShot(t *testing.T) {
	ns := testNamespace(t)
	createCharacter(t, ns, "aria-1", "Aria", "An elven ranger.")
	createCharacter(t, ns, "borin-1", "Borin", "A dwarven smith.")

	chat := models.Chat{ID: "chat-1", Name: "First story", Messages: []models.Turn{}}
	require.NoError(t, ns.Chats.Create(chat.ID, chat))

	r := NewCharacterLinkResolver(ns)
	require.NoError(t, r.Bind(&chat, "aria-1"))

	err := r.Bind(&chat, "borin-1")
	assert.ErrorIs(t, err, models.ErrAlreadyBound)

	// The first binding survives the rejected rebind, in memory and on
	// disk.
	desc, name, ok := r.Resolve(&chat)
	require.True(t, ok)
	assert.Equal(t, "Aria", name)
	assert.Equal(t, "An elven ranger.", desc)

	stored, err := ns.Chats.Read(chat.ID)
	require.NoError(t, err)
	assert.Equal(t, "aria-1", stored.CharacterID)
}

func TestBindUnknownCharacter(t *testing.T) {
	ns := testNamespace(t)
	chat := models.Chat{ID: "chat-1", Messages: []models.Turn{}}
	require.NoError(t, ns.Chats.Create(chat.ID, chat))

	r := NewCharacterLinkResolver(ns)
	err := r.Bind(&chat, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Empty(t, chat.CharacterID)
}

func TestResolveLinked(t *testing.T) {
	ns := testNamespace(t)
	createCharacter(t, ns, "aria-1", "Aria", "An elven ranger.")

	chat := models.Chat{ID: "chat-1", CharacterID: "aria-1"}
	desc, name, ok := NewCharacterLinkResolver(ns).Resolve(&chat)
	require.True(t, ok)
	assert.Equal(t, "Aria", name)
	assert.Equal(t, "An elven ranger.", desc)
}

func TestResolveLegacyInline(t *testing.T) {
	ns := testNamespace(t)
	chat := models.Chat{
		ID:                  "chat-1",
		LegacyCharacter:     "A wandering monk.",
		LegacyCharacterName: "Kael",
	}

	desc, name, ok := NewCharacterLinkResolver(ns).Resolve(&chat)
	require.True(t, ok)
	assert.Equal(t, "Kael", name)
	assert.Equal(t, "A wandering monk.", desc)
}

func TestResolveDanglingLinkFallsBackToInline(t *testing.T) {
	ns := testNamespace(t)
	chat := models.Chat{
		ID:                  "chat-1",
		CharacterID:         "deleted-char",
		LegacyCharacter:     "A wandering monk.",
		LegacyCharacterName: "Kael",
	}

	desc, name, ok := NewCharacterLinkResolver(ns).Resolve(&chat)
	require.True(t, ok)
	assert.Equal(t, "Kael", name)
	assert.Equal(t, "A wandering monk.", desc)
}

func TestResolveDanglingLinkWithoutInline(t *testing.T) {
	ns := testNamespace(t)
	createCharacter(t, ns, "aria-1", "Aria", "An elven ranger.")

	chat := models.Chat{ID: "chat-1"}
	require.NoError(t, ns.Chats.Create(chat.ID, chat))

	r := NewCharacterLinkResolver(ns)
	require.NoError(t, r.Bind(&chat, "aria-1"))
	require.NoError(t, ns.Characters.Delete("aria-1"))

	_, _, ok := r.Resolve(&chat)
	assert.False(t, ok)
}

func TestResolveNoCharacter(t *testing.T) {
	ns := testNamespace(t)
	_, _, ok := NewCharacterLinkResolver(ns).Resolve(&models.Chat{ID: "chat-1"})
	assert.False(t, ok)
}
