package storage

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"Tale-Weaver/server/internal/models"
)

const defaultChatName = "New adventure"

// Namespace bundles the record stores owned by one user. Namespaces
// never overlap, so no cross-user locking is needed.
type Namespace struct {
	Root       string
	Characters *Store[models.Character]
	Chats      *Store[models.Chat]
	Saves      *Store[models.Save]
}

// NamespaceDir returns the on-disk directory for a user's namespace.
func NamespaceDir(dataDir, username string, userID uint) string {
	return filepath.Join(dataDir, fmt.Sprintf("%s@%d", username, userID))
}

// EnsureNamespace opens a user's namespace, creating the directory tree
// on first use. Idempotent; invoked at registration and again whenever a
// session touches the namespace.
func EnsureNamespace(dataDir, username string, userID uint) (*Namespace, error) {
	root := NamespaceDir(dataDir, username, userID)

	characters, err := NewStore[models.Character](filepath.Join(root, "characters"))
	if err != nil {
		return nil, err
	}
	chats, err := NewStore[models.Chat](filepath.Join(root, "chats"))
	if err != nil {
		return nil, err
	}
	saves, err := NewStore[models.Save](filepath.Join(root, "saves"))
	if err != nil {
		return nil, err
	}

	return &Namespace{
		Root:       root,
		Characters: characters,
		Chats:      chats,
		Saves:      saves,
	}, nil
}

// ListChats returns the user's chats ordered by creation time. Chats are
// created lazily: a user who has none gets a default chat materialized on
// first listing.
func (n *Namespace) ListChats() ([]models.Chat, error) {
	chats, err := n.Chats.List()
	if err != nil {
		return nil, err
	}
	if len(chats) == 0 {
		chat := models.Chat{
			ID:        uuid.NewString(),
			Name:      defaultChatName,
			Messages:  []models.Turn{},
			CreatedAt: time.Now(),
		}
		if err := n.Chats.Create(chat.ID, chat); err != nil {
			return nil, err
		}
		return []models.Chat{chat}, nil
	}
	sort.Slice(chats, func(i, j int) bool {
		return chats[i].CreatedAt.Before(chats[j].CreatedAt)
	})
	return chats, nil
}
