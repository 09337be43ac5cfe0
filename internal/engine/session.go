package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"Tale-Weaver/server/internal/models"
	"Tale-Weaver/server/internal/prompts"
	"Tale-Weaver/server/internal/storage"
)

const welcomeText = `🎭 **Welcome to the game!**

Before we start I need to know your character. You have three options:

1. **Load a saved character** - pick one from your character list
2. **Create a new character** - write 'create character' and I will help you build a unique hero
3. **Upload a character file** - use the file upload button

What will it be?`

const needCharacterText = "⚠️ You need to create or load a character first! Write 'create character' or pick one from the list."

const creationKickoffText = `🎭 **CHARACTER CREATION**

Great, let's create your character. I will ask a few questions to understand who you want to play.

**First question:** what is your character's name, and in what world or setting would you like to play? (fantasy, modern day, cyberpunk, space and so on)`

// Reply is the outcome of one session operation.
type Reply struct {
	Text string
	// ChatID is the chat the operation ran against.
	ChatID string
	// Persisted holds the turns durably appended by this operation,
	// empty when the model call failed or produced nothing.
	Persisted []models.Turn

	CharacterCreation bool // creation dialogue is (still) running
	CharacterCreated  bool
	Character         string // description of the just-created character
}

// SessionManager drives play sessions: it routes player messages through
// the state machine (no character / creating / playing), compacts history
// before every model call, and keeps the stored chat and the reply in
// step. All mutations of one chat are serialized through a per-chat lock
// so concurrent sends or truncate-and-regenerate edits cannot interleave;
// different chats and different users proceed in parallel.
type SessionManager struct {
	dataDir        string
	compactor      *ContextCompactor
	client         ModelClient
	systemPrompt   string
	creationPrompt string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewSessionManager(dataDir string, compactor *ContextCompactor, client ModelClient, systemPrompt string) *SessionManager {
	return &SessionManager{
		dataDir:        dataDir,
		compactor:      compactor,
		client:         client,
		systemPrompt:   systemPrompt,
		creationPrompt: prompts.CreationPrompt(systemPrompt),
		locks:          make(map[string]*sync.Mutex),
	}
}

func (m *SessionManager) chatLock(userID uint, chatID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%d/%s", userID, chatID)
	lock, ok := m.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[key] = lock
	}
	return lock
}

// Namespace opens the caller's file namespace.
func (m *SessionManager) Namespace(sess *storage.PlayerSession) (*storage.Namespace, error) {
	return storage.EnsureNamespace(m.dataDir, sess.Username, sess.UserID)
}

// activeChat loads the session's chat, falling back to the first (lazily
// materialized) chat when none is selected or the selected one is gone.
func (m *SessionManager) activeChat(ns *storage.Namespace, sess *storage.PlayerSession) (*models.Chat, error) {
	if sess.ChatID != "" {
		chat, err := ns.Chats.Read(sess.ChatID)
		if err == nil {
			return &chat, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
	}

	chats, err := ns.ListChats()
	if err != nil {
		return nil, err
	}
	sess.ChatID = chats[0].ID
	return &chats[0], nil
}

// StartGame opens (or restarts) the active chat. With a bound character
// it asks the GM for an opening scene and records it as the first two
// turns; without one it returns onboarding instructions.
func (m *SessionManager) StartGame(ctx context.Context, sess *storage.PlayerSession) (*Reply, error) {
	ns, err := m.Namespace(sess)
	if err != nil {
		return nil, err
	}
	chat, err := m.activeChat(ns, sess)
	if err != nil {
		return nil, err
	}

	lock := m.chatLock(sess.UserID, chat.ID)
	lock.Lock()
	defer lock.Unlock()

	resolver := NewCharacterLinkResolver(ns)
	description, _, ok := resolver.Resolve(chat)
	if !ok {
		return &Reply{Text: welcomeText, ChatID: chat.ID}, nil
	}

	prompt := fmt.Sprintf("Begin the game for this character: %s", description)
	text, err := m.client.Complete(ctx, m.systemPrompt, nil, prompt)
	if err != nil {
		return &Reply{Text: Diagnose(err), ChatID: chat.ID}, nil
	}
	if strings.TrimSpace(text) == "" {
		return &Reply{Text: text, ChatID: chat.ID}, nil
	}

	userTurn := models.NewTurn(models.RoleUser, "Begin the game")
	gmTurn := models.NewTurn(models.RoleAssistant, text)
	chat.Messages = []models.Turn{userTurn, gmTurn}
	if err := ns.Chats.Update(chat.ID, *chat); err != nil {
		return nil, err
	}

	return &Reply{
		Text:      text,
		ChatID:    chat.ID,
		Persisted: []models.Turn{userTurn, gmTurn},
	}, nil
}

// SendMessage handles one player message according to the session state:
// it continues a running character-creation dialogue, starts one on
// request, refuses to play without a character, and otherwise runs a
// regular play turn.
func (m *SessionManager) SendMessage(ctx context.Context, sess *storage.PlayerSession, message string) (*Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("empty message: %w", models.ErrInvalidInput)
	}

	ns, err := m.Namespace(sess)
	if err != nil {
		return nil, err
	}

	if sess.CreationMode {
		return m.continueCreation(ctx, sess, ns, message)
	}

	if strings.Contains(strings.ToLower(message), "create character") {
		sess.CreationMode = true
		sess.CreationBuffer = nil
		return &Reply{Text: creationKickoffText, CharacterCreation: true, ChatID: sess.ChatID}, nil
	}

	chat, err := m.activeChat(ns, sess)
	if err != nil {
		return nil, err
	}

	lock := m.chatLock(sess.UserID, chat.ID)
	lock.Lock()
	defer lock.Unlock()

	// Reload under the lock so a concurrent append is not lost.
	if fresh, err := ns.Chats.Read(chat.ID); err == nil {
		chat = &fresh
	}

	resolver := NewCharacterLinkResolver(ns)
	description, _, ok := resolver.Resolve(chat)
	if !ok {
		return &Reply{Text: needCharacterText, ChatID: chat.ID}, nil
	}

	return m.playTurn(ctx, ns, chat, message, description)
}

// playTurn runs one play exchange: tag the prompt with the character,
// compact the history, call the model, and persist both turns. Caller
// holds the chat lock.
func (m *SessionManager) playTurn(ctx context.Context, ns *storage.Namespace, chat *models.Chat, message, description string) (*Reply, error) {
	prompt := fmt.Sprintf("%s\n\n[PLAYER CHARACTER: %s]", message, description)
	compacted := m.compactor.Compact(chat.Messages)

	text, err := m.client.Complete(ctx, m.systemPrompt, compacted, prompt)
	if err != nil {
		// The diagnostic replaces the reply but is never persisted,
		// so the turn can be retried without a broken entry.
		return &Reply{Text: Diagnose(err), ChatID: chat.ID}, nil
	}
	if strings.TrimSpace(text) == "" {
		return &Reply{Text: text, ChatID: chat.ID}, nil
	}

	userTurn := models.NewTurn(models.RoleUser, message)
	gmTurn := models.NewTurn(models.RoleAssistant, text)
	chat.Messages = append(chat.Messages, userTurn, gmTurn)
	if err := ns.Chats.Update(chat.ID, *chat); err != nil {
		return nil, err
	}

	return &Reply{
		Text:      text,
		ChatID:    chat.ID,
		Persisted: []models.Turn{userTurn, gmTurn},
	}, nil
}

// continueCreation routes one message through the character-creation
// sub-dialogue. The creation buffer is separate from the chat history;
// when the model emits the completion markers the enclosed sheet becomes
// a new character bound to the active chat.
func (m *SessionManager) continueCreation(ctx context.Context, sess *storage.PlayerSession, ns *storage.Namespace, message string) (*Reply, error) {
	text, err := m.client.Complete(ctx, m.creationPrompt, sess.CreationBuffer, message)
	if err != nil {
		return &Reply{Text: Diagnose(err), CharacterCreation: true, ChatID: sess.ChatID}, nil
	}

	description, found := extractCharacter(text)
	if !found {
		sess.CreationBuffer = append(sess.CreationBuffer,
			models.NewTurn(models.RoleUser, message),
			models.NewTurn(models.RoleAssistant, text),
		)
		return &Reply{Text: text, CharacterCreation: true, ChatID: sess.ChatID}, nil
	}

	char := models.Character{
		ID:          uuid.NewString(),
		Name:        prompts.ExtractName(description),
		Description: description,
		CreatedAt:   time.Now(),
	}
	if err := ns.Characters.Create(char.ID, char); err != nil {
		return nil, err
	}

	chat, err := m.activeChat(ns, sess)
	if err != nil {
		return nil, err
	}

	lock := m.chatLock(sess.UserID, chat.ID)
	lock.Lock()
	defer lock.Unlock()

	// Reload under the lock so the bind does not clobber a concurrent
	// append.
	if fresh, err := ns.Chats.Read(chat.ID); err == nil {
		chat = &fresh
	}

	resolver := NewCharacterLinkResolver(ns)
	if err := resolver.Bind(chat, char.ID); err != nil {
		if !errors.Is(err, models.ErrAlreadyBound) {
			return nil, err
		}
		log.Printf("[Session] chat %s already bound, keeping created character %s unlinked", chat.ID, char.ID)
	}

	sess.CreationMode = false
	sess.CreationBuffer = nil

	return &Reply{
		Text:             text,
		ChatID:           chat.ID,
		CharacterCreated: true,
		Character:        description,
	}, nil
}

// extractCharacter scans a reply for a well-ordered marker pair and
// returns the enclosed sheet.
func extractCharacter(text string) (string, bool) {
	start := strings.Index(text, prompts.BeginCharacterMarker)
	if start < 0 {
		return "", false
	}
	rest := start + len(prompts.BeginCharacterMarker)
	end := strings.Index(text[rest:], prompts.EndCharacterMarker)
	if end < 0 {
		return "", false
	}
	description := strings.TrimSpace(text[rest : rest+end])
	if description == "" {
		return "", false
	}
	return description, true
}

// BindCharacter links an existing character to the active chat.
func (m *SessionManager) BindCharacter(sess *storage.PlayerSession, characterID string) (*models.Character, error) {
	ns, err := m.Namespace(sess)
	if err != nil {
		return nil, err
	}
	chat, err := m.activeChat(ns, sess)
	if err != nil {
		return nil, err
	}

	lock := m.chatLock(sess.UserID, chat.ID)
	lock.Lock()
	defer lock.Unlock()

	char, err := ns.Characters.Read(characterID)
	if err != nil {
		return nil, err
	}
	resolver := NewCharacterLinkResolver(ns)
	if err := resolver.Bind(chat, char.ID); err != nil {
		return nil, err
	}
	return &char, nil
}

// EditMessage truncates the chat to index, appends newContent as a fresh
// player turn and regenerates the reply from the truncated context. The
// edit is destructive: the discarded branch is not retained.
func (m *SessionManager) EditMessage(ctx context.Context, sess *storage.PlayerSession, index int, newContent string) (*Reply, error) {
	newContent = strings.TrimSpace(newContent)
	if newContent == "" {
		return nil, fmt.Errorf("empty message: %w", models.ErrInvalidInput)
	}

	ns, err := m.Namespace(sess)
	if err != nil {
		return nil, err
	}
	chat, err := m.activeChat(ns, sess)
	if err != nil {
		return nil, err
	}

	lock := m.chatLock(sess.UserID, chat.ID)
	lock.Lock()
	defer lock.Unlock()

	if fresh, err := ns.Chats.Read(chat.ID); err == nil {
		chat = &fresh
	}
	if index < 0 || index > len(chat.Messages) {
		return nil, fmt.Errorf("message index %d out of range: %w", index, models.ErrInvalidInput)
	}

	resolver := NewCharacterLinkResolver(ns)
	description, _, ok := resolver.Resolve(chat)
	if !ok {
		return &Reply{Text: needCharacterText, ChatID: chat.ID}, nil
	}

	chat.Messages = chat.Messages[:index]
	return m.playTurn(ctx, ns, chat, newContent, description)
}

// SaveGame exports the active chat as an independently named snapshot.
// The character description is denormalized into the save so it survives
// character deletion.
func (m *SessionManager) SaveGame(sess *storage.PlayerSession, saveName string) (*models.Save, error) {
	ns, err := m.Namespace(sess)
	if err != nil {
		return nil, err
	}
	chat, err := m.activeChat(ns, sess)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(saveName) == "" {
		saveName = "save_" + time.Now().Format("20060102_150405")
	}

	resolver := NewCharacterLinkResolver(ns)
	description, name, ok := resolver.Resolve(chat)
	if !ok {
		name = "Unknown"
	}

	save := models.Save{
		SaveName:      saveName,
		Timestamp:     time.Now(),
		ChatID:        chat.ID,
		Character:     description,
		CharacterName: name,
		History:       chat.Messages,
	}
	if err := ns.Saves.Create(storage.SafeID(saveName), save); err != nil {
		return nil, err
	}
	return &save, nil
}

// LoadGame restores a snapshot into its chat and makes that chat active.
// The restore is destructive for the chat's current messages; if the
// chat was deleted since the save was taken it is recreated, carrying
// the denormalized character as an inline reference.
func (m *SessionManager) LoadGame(sess *storage.PlayerSession, saveName string) (*models.Save, error) {
	ns, err := m.Namespace(sess)
	if err != nil {
		return nil, err
	}
	save, err := ns.Saves.Read(storage.SafeID(saveName))
	if err != nil {
		return nil, err
	}

	lock := m.chatLock(sess.UserID, save.ChatID)
	lock.Lock()
	defer lock.Unlock()

	chat, err := ns.Chats.Read(save.ChatID)
	switch {
	case err == nil:
		chat.Messages = save.History
		if err := ns.Chats.Update(chat.ID, chat); err != nil {
			return nil, err
		}
	case errors.Is(err, models.ErrNotFound):
		chat = models.Chat{
			ID:                  save.ChatID,
			Name:                save.SaveName,
			LegacyCharacter:     save.Character,
			LegacyCharacterName: save.CharacterName,
			Messages:            save.History,
			CreatedAt:           time.Now(),
		}
		if err := ns.Chats.Create(chat.ID, chat); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	sess.ChatID = save.ChatID
	return &save, nil
}

// CreateChat starts a fresh chat and makes it the session's active one.
func (m *SessionManager) CreateChat(sess *storage.PlayerSession, name string) (*models.Chat, error) {
	ns, err := m.Namespace(sess)
	if err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = "New adventure"
	}
	chat := models.Chat{
		ID:        uuid.NewString(),
		Name:      name,
		Messages:  []models.Turn{},
		CreatedAt: time.Now(),
	}
	if err := ns.Chats.Create(chat.ID, chat); err != nil {
		return nil, err
	}

	sess.ChatID = chat.ID
	sess.CreationMode = false
	sess.CreationBuffer = nil
	return &chat, nil
}

// RenameChat changes a chat's display name. The name is not the record
// key, so references held by saves stay valid.
func (m *SessionManager) RenameChat(sess *storage.PlayerSession, chatID, name string) error {
	ns, err := m.Namespace(sess)
	if err != nil {
		return err
	}

	lock := m.chatLock(sess.UserID, chatID)
	lock.Lock()
	defer lock.Unlock()

	chat, err := ns.Chats.Read(chatID)
	if err != nil {
		return err
	}
	chat.Name = name
	return ns.Chats.Update(chat.ID, chat)
}

// DeleteChat removes a chat file. Saves referencing the chat are kept;
// they carry their own copy of the history.
func (m *SessionManager) DeleteChat(sess *storage.PlayerSession, chatID string) error {
	ns, err := m.Namespace(sess)
	if err != nil {
		return err
	}

	lock := m.chatLock(sess.UserID, chatID)
	lock.Lock()
	defer lock.Unlock()

	if err := ns.Chats.Delete(chatID); err != nil {
		return err
	}
	if sess.ChatID == chatID {
		sess.ChatID = ""
	}
	return nil
}

// UploadCharacter stores an uploaded character file as a new character.
// If the active chat has no character yet the upload is bound to it for
// convenience; an already bound chat keeps its character.
func (m *SessionManager) UploadCharacter(sess *storage.PlayerSession, content []byte) (*models.Character, error) {
	if len(content) == 0 {
		return nil, fmt.Errorf("empty character file: %w", models.ErrInvalidInput)
	}

	ns, err := m.Namespace(sess)
	if err != nil {
		return nil, err
	}

	sheet := prompts.ParseSheet(content)
	char := models.Character{
		ID:          uuid.NewString(),
		Name:        sheet.Name(),
		Description: sheet.Describe(),
		CreatedAt:   time.Now(),
	}
	if err := ns.Characters.Create(char.ID, char); err != nil {
		return nil, err
	}

	chat, err := m.activeChat(ns, sess)
	if err != nil {
		return nil, err
	}

	lock := m.chatLock(sess.UserID, chat.ID)
	lock.Lock()
	defer lock.Unlock()

	// Reload under the lock so the bind does not clobber a concurrent
	// append.
	if fresh, err := ns.Chats.Read(chat.ID); err == nil {
		chat = &fresh
	}

	resolver := NewCharacterLinkResolver(ns)
	if err := resolver.Bind(chat, char.ID); err != nil && !errors.Is(err, models.ErrAlreadyBound) {
		return nil, err
	}
	return &char, nil
}
