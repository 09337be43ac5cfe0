package web

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"Tale-Weaver/server/internal/config"
	"Tale-Weaver/server/internal/engine"
	"Tale-Weaver/server/internal/models"
	"Tale-Weaver/server/internal/storage"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// CallCounter reports how many upstream model requests have been made.
type CallCounter interface {
	Calls() int64
}

type Handlers struct {
	config   *config.Config
	users    *storage.UserStore
	sessions storage.SessionStore
	manager  *engine.SessionManager
	model    CallCounter
	hub      *TurnHub
}

func NewHandlers(cfg *config.Config, users *storage.UserStore, sessions storage.SessionStore, manager *engine.SessionManager, model CallCounter, hub *TurnHub) *Handlers {
	return &Handlers{
		config:   cfg,
		users:    users,
		sessions: sessions,
		manager:  manager,
		model:    model,
		hub:      hub,
	}
}

// CORS middleware
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func NewRouter(cfg *config.Config, users *storage.UserStore, sessions storage.SessionStore, manager *engine.SessionManager, model CallCounter, hub *TurnHub) *chi.Mux {
	h := NewHandlers(cfg, users, sessions, manager, model, hub)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("REQUEST: %s %s", r.Method, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	})
	r.Use(corsMiddleware)

	r.Get("/health", h.HealthCheck)
	r.Post("/register", h.Register)
	r.Post("/login", h.Login)
	r.Post("/logout", h.Logout)

	r.Group(func(r chi.Router) {
		r.Use(h.requireLogin)

		r.Get("/get_user_info", h.GetUserInfo)
		r.Get("/get_saves", h.GetSaves)
		r.Get("/get_characters", h.GetCharacters)
		r.Get("/get_chats", h.GetChats)

		r.Post("/start_game", h.StartGame)
		r.Post("/send_message", h.SendMessage)
		r.Post("/edit_message", h.EditMessage)

		r.Post("/load_character", h.LoadCharacter)
		r.Post("/upload_character", h.UploadCharacter)
		r.Post("/delete_character", h.DeleteCharacter)

		r.Post("/save_game", h.SaveGame)
		r.Post("/load_game", h.LoadGame)
		r.Post("/delete_save", h.DeleteSave)

		r.Post("/create_chat", h.CreateChat)
		r.Post("/select_chat", h.SelectChat)
		r.Post("/rename_chat", h.RenameChat)
		r.Post("/delete_chat", h.DeleteChat)

		r.Get("/stream", h.Stream)
	})

	return r
}

// requireLogin guards every game route: without a valid session the
// request is rejected with a typed unauthorized result, before dispatch.
func (h *Handlers) requireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
				"error":      "authorization required",
				"need_login": true,
			})
			return
		}
		sess, err := h.sessions.Get(r.Context(), cookie.Value)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
				"error":      "authorization required",
				"need_login": true,
			})
			return
		}

		ctx := r.Context()
		next.ServeHTTP(w, r.WithContext(withSession(ctx, sess)))
	})
}

func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"service":     "tale-weaver",
		"clients":     h.hub.GetClientCount(),
		"model_calls": h.model.Calls(),
	})
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	username := strings.TrimSpace(req.Username)
	password := strings.TrimSpace(req.Password)

	if username == "" || password == "" {
		writeError(w, http.StatusBadRequest, "username and password must not be empty")
		return
	}
	if len(username) < 3 {
		writeError(w, http.StatusBadRequest, "username must be at least 3 characters")
		return
	}
	if len(password) < 6 {
		writeError(w, http.StatusBadRequest, "password must be at least 6 characters")
		return
	}

	user, err := h.users.Register(username, password)
	if err != nil {
		if errors.Is(err, storage.ErrUsernameTaken) {
			writeError(w, http.StatusConflict, "a user with this name already exists")
			return
		}
		log.Printf("[Web] registration failed: %v", err)
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	if _, err := storage.EnsureNamespace(h.config.Game.DataDir, user.Username, user.ID); err != nil {
		log.Printf("[Web] failed to create namespace for %s: %v", user.Username, err)
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	if err := h.openSession(w, r, user); err != nil {
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "registration successful",
	})
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	username := strings.TrimSpace(req.Username)
	password := strings.TrimSpace(req.Password)
	if username == "" || password == "" {
		writeError(w, http.StatusBadRequest, "username and password must not be empty")
		return
	}

	user, err := h.users.Authenticate(username, password)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid username or password")
			return
		}
		log.Printf("[Web] login failed: %v", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	// Users registered before a data-dir move still get a namespace.
	if _, err := storage.EnsureNamespace(h.config.Game.DataDir, user.Username, user.ID); err != nil {
		log.Printf("[Web] failed to ensure namespace for %s: %v", user.Username, err)
	}

	if err := h.openSession(w, r, user); err != nil {
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "login successful",
	})
}

func (h *Handlers) openSession(w http.ResponseWriter, r *http.Request, user *storage.User) error {
	sess := &storage.PlayerSession{
		Token:    newSessionToken(),
		UserID:   user.ID,
		Username: user.Username,
	}
	if err := h.sessions.Put(r.Context(), sess); err != nil {
		log.Printf("[Web] failed to store session: %v", err)
		return err
	}
	setSessionCookie(w, sess.Token, h.config.Game.SessionTTL)
	return nil
}

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		_ = h.sessions.Delete(r.Context(), cookie.Value)
	}
	clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (h *Handlers) GetUserInfo(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"username": sess.Username,
		"user_id":  sess.UserID,
	})
}

func (h *Handlers) GetSaves(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	ns, err := h.manager.Namespace(sess)
	if err != nil {
		h.internalError(w, err)
		return
	}
	saves, err := ns.Saves.List()
	if err != nil {
		h.internalError(w, err)
		return
	}

	out := make([]map[string]interface{}, 0, len(saves))
	for _, save := range saves {
		out = append(out, map[string]interface{}{
			"filename":       save.SaveName,
			"timestamp":      save.Timestamp,
			"character_name": save.CharacterName,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"saves": out})
}

func (h *Handlers) GetCharacters(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	ns, err := h.manager.Namespace(sess)
	if err != nil {
		h.internalError(w, err)
		return
	}
	characters, err := ns.Characters.List()
	if err != nil {
		h.internalError(w, err)
		return
	}

	out := make([]map[string]interface{}, 0, len(characters))
	for _, char := range characters {
		out = append(out, map[string]interface{}{
			"id":          char.ID,
			"name":        char.Name,
			"description": preview(char.Description, 100),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"characters": out})
}

func (h *Handlers) GetChats(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	ns, err := h.manager.Namespace(sess)
	if err != nil {
		h.internalError(w, err)
		return
	}
	chats, err := ns.ListChats()
	if err != nil {
		h.internalError(w, err)
		return
	}

	out := make([]map[string]interface{}, 0, len(chats))
	for _, chat := range chats {
		out = append(out, map[string]interface{}{
			"id":            chat.ID,
			"name":          chat.Name,
			"character_id":  chat.CharacterID,
			"message_count": len(chat.Messages),
			"created_at":    chat.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"chats": out})
}

func (h *Handlers) StartGame(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	if h.config.AI.OpenRouter.APIKey == "" {
		writeError(w, http.StatusServiceUnavailable, "no API key configured; set OPENROUTER_API_KEY")
		return
	}

	reply, err := h.manager.StartGame(r.Context(), sess)
	if err != nil {
		h.internalError(w, err)
		return
	}
	h.finishReply(w, r, sess, reply)
}

type messageRequest struct {
	Message string `json:"message"`
}

func (h *Handlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	var req messageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reply, err := h.manager.SendMessage(r.Context(), sess, req.Message)
	if err != nil {
		if errors.Is(err, models.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "empty message")
			return
		}
		h.internalError(w, err)
		return
	}
	h.finishReply(w, r, sess, reply)
}

type editRequest struct {
	Index   int    `json:"index"`
	Message string `json:"message"`
}

func (h *Handlers) EditMessage(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	var req editRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reply, err := h.manager.EditMessage(r.Context(), sess, req.Index, req.Message)
	if err != nil {
		if errors.Is(err, models.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.internalError(w, err)
		return
	}
	h.finishReply(w, r, sess, reply)
}

// finishReply persists the session, streams appended turns to the hub
// and writes the response body.
func (h *Handlers) finishReply(w http.ResponseWriter, r *http.Request, sess *storage.PlayerSession, reply *engine.Reply) {
	if err := h.sessions.Put(r.Context(), sess); err != nil {
		log.Printf("[Web] failed to persist session: %v", err)
	}
	for _, turn := range reply.Persisted {
		h.hub.Broadcast(TurnEvent{UserID: sess.UserID, ChatID: reply.ChatID, Turn: turn})
	}

	resp := map[string]interface{}{"response": reply.Text}
	if reply.CharacterCreation {
		resp["character_creation"] = true
	}
	if reply.CharacterCreated {
		resp["character_created"] = true
		resp["character"] = reply.Character
	}
	writeJSON(w, http.StatusOK, resp)
}

type characterRequest struct {
	CharacterID string `json:"character_id"`
}

func (h *Handlers) LoadCharacter(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	var req characterRequest
	if err := decodeJSON(r, &req); err != nil || req.CharacterID == "" {
		writeError(w, http.StatusBadRequest, "character_id is required")
		return
	}

	char, err := h.manager.BindCharacter(sess, req.CharacterID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrAlreadyBound):
			writeError(w, http.StatusConflict, "a character is already chosen for this chat")
		case errors.Is(err, models.ErrNotFound):
			writeError(w, http.StatusNotFound, "character not found")
		default:
			h.internalError(w, err)
		}
		return
	}

	if err := h.sessions.Put(r.Context(), sess); err != nil {
		log.Printf("[Web] failed to persist session: %v", err)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"character": char.Description,
		"message":   fmt.Sprintf("character %q loaded", char.Name),
	})
}

func (h *Handlers) UploadCharacter(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())

	file, _, err := r.FormFile("character_file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file selected")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read file")
		return
	}

	char, err := h.manager.UploadCharacter(sess, content)
	if err != nil {
		if errors.Is(err, models.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "empty character file")
			return
		}
		h.internalError(w, err)
		return
	}

	if err := h.sessions.Put(r.Context(), sess); err != nil {
		log.Printf("[Web] failed to persist session: %v", err)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"character": char.Description,
		"message":   "character uploaded successfully",
	})
}

type deleteCharacterRequest struct {
	ID string `json:"id"`
}

func (h *Handlers) DeleteCharacter(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	var req deleteCharacterRequest
	if err := decodeJSON(r, &req); err != nil || req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	ns, err := h.manager.Namespace(sess)
	if err != nil {
		h.internalError(w, err)
		return
	}
	// Chats still pointing at this character degrade to "no character"
	// on their next resolution; nothing cascades.
	if err := ns.Characters.Delete(req.ID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeError(w, http.StatusNotFound, "character not found")
			return
		}
		h.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

type saveGameRequest struct {
	SaveName string `json:"save_name"`
}

func (h *Handlers) SaveGame(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	var req saveGameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	save, err := h.manager.SaveGame(sess, req.SaveName)
	if err != nil {
		h.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"message":   "game saved",
		"save_name": save.SaveName,
	})
}

type saveFileRequest struct {
	Filename string `json:"filename"`
}

func (h *Handlers) LoadGame(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	var req saveFileRequest
	if err := decodeJSON(r, &req); err != nil || req.Filename == "" {
		writeError(w, http.StatusBadRequest, "filename is required")
		return
	}

	save, err := h.manager.LoadGame(sess, req.Filename)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeError(w, http.StatusNotFound, "save file not found")
			return
		}
		h.internalError(w, err)
		return
	}

	if err := h.sessions.Put(r.Context(), sess); err != nil {
		log.Printf("[Web] failed to persist session: %v", err)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"message":   "game loaded",
		"timestamp": save.Timestamp,
		"character": save.Character,
		"history":   save.History,
	})
}

func (h *Handlers) DeleteSave(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	var req saveFileRequest
	if err := decodeJSON(r, &req); err != nil || req.Filename == "" {
		writeError(w, http.StatusBadRequest, "filename is required")
		return
	}

	ns, err := h.manager.Namespace(sess)
	if err != nil {
		h.internalError(w, err)
		return
	}
	if err := ns.Saves.Delete(storage.SafeID(req.Filename)); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeError(w, http.StatusNotFound, "save file not found")
			return
		}
		h.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

type chatRequest struct {
	ChatID string `json:"chat_id"`
	Name   string `json:"name"`
}

func (h *Handlers) CreateChat(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	chat, err := h.manager.CreateChat(sess, req.Name)
	if err != nil {
		h.internalError(w, err)
		return
	}
	if err := h.sessions.Put(r.Context(), sess); err != nil {
		log.Printf("[Web] failed to persist session: %v", err)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"chat_id": chat.ID,
		"name":    chat.Name,
	})
}

func (h *Handlers) SelectChat(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil || req.ChatID == "" {
		writeError(w, http.StatusBadRequest, "chat_id is required")
		return
	}

	ns, err := h.manager.Namespace(sess)
	if err != nil {
		h.internalError(w, err)
		return
	}
	chat, err := ns.Chats.Read(req.ChatID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeError(w, http.StatusNotFound, "chat not found")
			return
		}
		h.internalError(w, err)
		return
	}

	sess.ChatID = chat.ID
	sess.CreationMode = false
	sess.CreationBuffer = nil
	if err := h.sessions.Put(r.Context(), sess); err != nil {
		log.Printf("[Web] failed to persist session: %v", err)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"chat_id": chat.ID,
		"history": chat.Messages,
	})
}

func (h *Handlers) RenameChat(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil || req.ChatID == "" || strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "chat_id and name are required")
		return
	}

	if err := h.manager.RenameChat(sess, req.ChatID, strings.TrimSpace(req.Name)); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeError(w, http.StatusNotFound, "chat not found")
			return
		}
		h.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (h *Handlers) DeleteChat(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil || req.ChatID == "" {
		writeError(w, http.StatusBadRequest, "chat_id is required")
		return
	}

	if err := h.manager.DeleteChat(sess, req.ChatID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeError(w, http.StatusNotFound, "chat not found")
			return
		}
		h.internalError(w, err)
		return
	}
	if err := h.sessions.Put(r.Context(), sess); err != nil {
		log.Printf("[Web] failed to persist session: %v", err)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// Stream upgrades the connection and subscribes the client to turn
// events for their own chats.
func (h *Handlers) Stream(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := &Client{
		ID:     newSessionToken(),
		UserID: sess.UserID,
		Conn:   conn,
		Send:   make(chan []byte, 256),
		Hub:    h.hub,
	}
	h.hub.register <- client
	go client.readPump()
}

func (h *Handlers) internalError(w http.ResponseWriter, err error) {
	log.Printf("[Web] internal error: %v", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func preview(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
