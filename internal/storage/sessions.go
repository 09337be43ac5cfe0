package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"Tale-Weaver/server/internal/config"
	"Tale-Weaver/server/internal/models"
)

// PlayerSession is the transient per-login state: who is playing, which
// chat is active, and the character-creation buffer. It is an explicit
// value passed to every operation; everything durable lives in the file
// namespace instead.
type PlayerSession struct {
	Token    string `json:"token"`
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	ChatID   string `json:"chat_id"`

	// Character creation runs as a sub-dialogue with its own turn
	// buffer, separate from the chat history.
	CreationMode   bool          `json:"creation_mode"`
	CreationBuffer []models.Turn `json:"creation_buffer,omitempty"`
}

// SessionStore keeps player sessions keyed by token.
type SessionStore interface {
	Put(ctx context.Context, sess *PlayerSession) error
	Get(ctx context.Context, token string) (*PlayerSession, error)
	Delete(ctx context.Context, token string) error
}

const sessionKeyPrefix = "session:"

// RedisSessionStore keeps sessions in redis so they survive restarts.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSessionStore(cfg config.RedisConfig, ttl time.Duration) (*RedisSessionStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisSessionStore{client: client, ttl: ttl}, nil
}

func (s *RedisSessionStore) Close() error {
	return s.client.Close()
}

func (s *RedisSessionStore) Put(ctx context.Context, sess *PlayerSession) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	return s.client.Set(ctx, sessionKeyPrefix+sess.Token, data, s.ttl).Err()
}

func (s *RedisSessionStore) Get(ctx context.Context, token string) (*PlayerSession, error) {
	data, err := s.client.Get(ctx, sessionKeyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("session: %w", models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	var sess PlayerSession
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, fmt.Errorf("session: %w", models.ErrCorrupt)
	}
	return &sess, nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, token string) error {
	return s.client.Del(ctx, sessionKeyPrefix+token).Err()
}

// MemorySessionStore is the fallback when redis is unreachable. Sessions
// are lost on restart, which only forces a re-login.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]PlayerSession
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]PlayerSession)}
}

func (s *MemorySessionStore) Put(_ context.Context, sess *PlayerSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.Token] = *sess
	return nil
}

func (s *MemorySessionStore) Get(_ context.Context, token string) (*PlayerSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[token]
	if !ok {
		return nil, fmt.Errorf("session: %w", models.ErrNotFound)
	}
	copied := sess
	return &copied, nil
}

func (s *MemorySessionStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}
