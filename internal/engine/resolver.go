package engine

import (
	"fmt"

	"Tale-Weaver/server/internal/models"
	"Tale-Weaver/server/internal/storage"
)

// CharacterLinkResolver resolves the character a chat plays as and
// enforces the one-shot bind rule. It is the single place that knows
// about the two reference formats (id link vs legacy inline text).
type CharacterLinkResolver struct {
	ns *storage.Namespace
}

func NewCharacterLinkResolver(ns *storage.Namespace) *CharacterLinkResolver {
	return &CharacterLinkResolver{ns: ns}
}

// Resolve returns the chat's effective character description and name.
// Resolution order: the id link if it still points at a record, then the
// legacy inline pair, then nothing. A dangling link (the character was
// deleted after binding) degrades to the next step rather than failing.
func (r *CharacterLinkResolver) Resolve(chat *models.Chat) (description, name string, ok bool) {
	ref := chat.CharacterRef()
	if ref.Kind == models.RefLinked {
		if char, err := r.ns.Characters.Read(ref.ID); err == nil {
			return char.Description, char.Name, true
		}
		ref = chat.InlineRef()
	}
	if ref.Kind == models.RefInline {
		return ref.Description, ref.Name, true
	}
	return "", "", false
}

// Bind links a chat to a character and persists the chat. Binding is
// one-shot: a chat that already has a character keeps it for the life of
// the story, and a second attempt fails with AlreadyBound.
func (r *CharacterLinkResolver) Bind(chat *models.Chat, characterID string) error {
	if chat.CharacterID != "" {
		return fmt.Errorf("chat %s: %w", chat.ID, models.ErrAlreadyBound)
	}
	if _, err := r.ns.Characters.Read(characterID); err != nil {
		return err
	}
	chat.CharacterID = characterID
	return r.ns.Chats.Update(chat.ID, *chat)
}
