package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Tale-Weaver/server/internal/models"
)

func TestEnsureNamespaceIdempotent(t *testing.T) {
	dataDir := t.TempDir()

	first, err := EnsureNamespace(dataDir, "alice", 7)
	require.NoError(t, err)
	second, err := EnsureNamespace(dataDir, "alice", 7)
	require.NoError(t, err)
	assert.Equal(t, first.Root, second.Root)

	require.NoError(t, first.Characters.Create("c1", models.Character{ID: "c1", Name: "Aria"}))
	got, err := second.Characters.Read("c1")
	require.NoError(t, err)
	assert.Equal(t, "Aria", got.Name)
}

func TestNamespaceDirPerUser(t *testing.T) {
	a := NamespaceDir("data", "alice", 1)
	b := NamespaceDir("data", "alice", 2)
	c := NamespaceDir("data", "bob", 1)
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestListChatsMaterializesDefault(t *testing.T) {
	ns, err := EnsureNamespace(t.TempDir(), "alice", 1)
	require.NoError(t, err)

	chats, err := ns.ListChats()
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "New adventure", chats[0].Name)
	assert.NotEmpty(t, chats[0].ID)
	assert.NotNil(t, chats[0].Messages)

	// The default chat is persisted, not synthesized per call.
	again, err := ns.ListChats()
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, chats[0].ID, again[0].ID)
}

func TestListChatsOrderedByCreation(t *testing.T) {
	ns, err := EnsureNamespace(t.TempDir(), "alice", 1)
	require.NoError(t, err)

	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"c-late", "c-early", "c-mid"} {
		offsets := map[string]time.Duration{"c-early": 0, "c-mid": time.Hour, "c-late": 2 * time.Hour}
		chat := models.Chat{
			ID:        id,
			Name:      id,
			Messages:  []models.Turn{},
			CreatedAt: base.Add(offsets[id]),
		}
		require.NoError(t, ns.Chats.Create(chat.ID, chat), "chat %d", i)
	}

	chats, err := ns.ListChats()
	require.NoError(t, err)
	require.Len(t, chats, 3)
	assert.Equal(t, "c-early", chats[0].ID)
	assert.Equal(t, "c-mid", chats[1].ID)
	assert.Equal(t, "c-late", chats[2].ID)
}
