package web

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Tale-Weaver/server/internal/models"
)

func TestBroadcastTurnReachesOnlyOwner(t *testing.T) {
	hub := NewTurnHub()
	alice := &Client{ID: "a", UserID: 1, Send: make(chan []byte, 4)}
	bob := &Client{ID: "b", UserID: 2, Send: make(chan []byte, 4)}
	hub.clients["a"] = alice
	hub.clients["b"] = bob

	hub.broadcastTurn(TurnEvent{
		UserID: 1,
		ChatID: "chat-1",
		Turn:   models.Turn{Role: models.RoleAssistant, Content: "The gate opens."},
	})

	require.Len(t, alice.Send, 1)
	assert.Empty(t, bob.Send)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(<-alice.Send, &payload))
	assert.Equal(t, "turn", payload["type"])
	assert.Equal(t, "chat-1", payload["chat_id"])
}

func TestBroadcastTurnSkipsFullClient(t *testing.T) {
	hub := NewTurnHub()
	stuck := &Client{ID: "s", UserID: 1, Send: make(chan []byte)}
	hub.clients["s"] = stuck

	done := make(chan struct{})
	go func() {
		hub.broadcastTurn(TurnEvent{UserID: 1, ChatID: "chat-1"})
		close(done)
	}()

	select {
	case <-done:
	case <-stuck.Send:
		t.Fatal("event delivered to a client with no reader")
	}
}

func TestBroadcastNeverBlocks(t *testing.T) {
	hub := NewTurnHub()
	// Nothing drains the hub; queueing past capacity must drop, not hang.
	for i := 0; i < 1100; i++ {
		hub.Broadcast(TurnEvent{UserID: 1, ChatID: "chat-1"})
	}
}

func TestGetClientCount(t *testing.T) {
	hub := NewTurnHub()
	assert.Equal(t, 0, hub.GetClientCount())
	hub.clients["a"] = &Client{ID: "a"}
	assert.Equal(t, 1, hub.GetClientCount())
}
