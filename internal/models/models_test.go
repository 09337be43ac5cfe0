package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCharacterRefLinkedWins(t *testing.T) {
	chat := Chat{
		CharacterID:         "char-1",
		LegacyCharacter:     "old inline text",
		LegacyCharacterName: "Old Name",
	}
	ref := chat.CharacterRef()
	assert.Equal(t, RefLinked, ref.Kind)
	assert.Equal(t, "char-1", ref.ID)
}

func TestCharacterRefInline(t *testing.T) {
	chat := Chat{
		LegacyCharacter:     "A wandering monk.",
		LegacyCharacterName: "Kael",
	}
	ref := chat.CharacterRef()
	assert.Equal(t, RefInline, ref.Kind)
	assert.Equal(t, "A wandering monk.", ref.Description)
	assert.Equal(t, "Kael", ref.Name)
}

func TestCharacterRefNone(t *testing.T) {
	assert.Equal(t, RefNone, (&Chat{}).CharacterRef().Kind)
}

func TestInlineRefDefaultsName(t *testing.T) {
	chat := Chat{LegacyCharacter: "A nameless drifter."}
	ref := chat.InlineRef()
	assert.Equal(t, RefInline, ref.Kind)
	assert.Equal(t, "Unknown", ref.Name)
}

func TestNewTurnStampsTime(t *testing.T) {
	turn := NewTurn(RoleUser, "hello")
	assert.Equal(t, RoleUser, turn.Role)
	assert.Equal(t, "hello", turn.Content)
	assert.False(t, turn.Timestamp.IsZero())
}
