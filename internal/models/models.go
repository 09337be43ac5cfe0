package models

import (
	"time"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn is one message exchanged in a conversation. Turns are immutable
// once recorded and their order within a chat is significant.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// NewTurn creates a turn stamped with the current time.
func NewTurn(role Role, content string) Turn {
	return Turn{Role: role, Content: content, Timestamp: time.Now()}
}

// Character is a player character owned by one user namespace. The ID is
// generated once at creation and never reused; the record itself is
// immutable after it is saved.
type Character struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Chat is one long-running conversation. A chat is bound to at most one
// character and the binding is one-shot: once CharacterID is set it is
// never rewritten.
//
// Pre-linkage chat files embedded the full character text instead of an
// id; those fields are kept readable for migration but are never written
// back.
type Chat struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	CharacterID string `json:"character_id,omitempty"`

	LegacyCharacter     string `json:"character,omitempty"`
	LegacyCharacterName string `json:"character_name,omitempty"`

	Messages  []Turn    `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
}

// Save is a point-in-time, independently named export of a chat. Many
// saves may reference the same chat; deleting the chat does not delete
// its saves.
type Save struct {
	SaveName      string    `json:"save_name"`
	Timestamp     time.Time `json:"timestamp"`
	ChatID        string    `json:"chat_id"`
	Character     string    `json:"character"`
	CharacterName string    `json:"character_name"`
	History       []Turn    `json:"conversation_history"`
}

// CharacterRefKind discriminates how a chat references its character.
type CharacterRefKind int

const (
	// RefNone means the chat has no character at all.
	RefNone CharacterRefKind = iota
	// RefLinked means the chat references a character record by id.
	RefLinked
	// RefInline means the chat carries a legacy embedded description.
	RefInline
)

// CharacterRef is the tagged reference a chat holds to its character.
// Resolution of the two storage formats happens in one place (the link
// resolver); the rest of the code never inspects format age.
type CharacterRef struct {
	Kind        CharacterRefKind
	ID          string
	Description string
	Name        string
}

// CharacterRef classifies this chat's character reference. An id link
// wins over a leftover inline pair.
func (c *Chat) CharacterRef() CharacterRef {
	if c.CharacterID != "" {
		return CharacterRef{Kind: RefLinked, ID: c.CharacterID}
	}
	return c.InlineRef()
}

// InlineRef returns the legacy embedded reference, if any. Used as the
// fallback when an id link dangles.
func (c *Chat) InlineRef() CharacterRef {
	if c.LegacyCharacter == "" {
		return CharacterRef{Kind: RefNone}
	}
	name := c.LegacyCharacterName
	if name == "" {
		name = "Unknown"
	}
	return CharacterRef{Kind: RefInline, Description: c.LegacyCharacter, Name: name}
}
