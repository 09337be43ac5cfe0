package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Tale-Weaver/server/internal/config"
	"Tale-Weaver/server/internal/engine"
	"Tale-Weaver/server/internal/prompts"
	"Tale-Weaver/server/internal/storage"
	"Tale-Weaver/server/internal/web"
)

func main() {
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Output != "" {
		logFile, err := os.OpenFile(cfg.Logging.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Printf("Warning: failed to open log file: %v", err)
		} else {
			defer logFile.Close()
			log.SetOutput(logFile)
		}
	}

	if cfg.AI.OpenRouter.APIKey == "" {
		log.Println("Warning: no OpenRouter API key provided. Set OPENROUTER_API_KEY.")
	}

	// The accounts database is the system of record for who exists;
	// without it nothing else can be served.
	users, err := storage.NewUserStore(cfg.Database.MySQL)
	if err != nil {
		log.Fatalf("Failed to connect to MySQL: %v", err)
	}
	defer users.Close()
	log.Println("MySQL connected successfully")

	var sessions storage.SessionStore
	redisSessions, err := storage.NewRedisSessionStore(cfg.Database.Redis, cfg.Game.SessionTTL)
	if err != nil {
		log.Printf("Warning: failed to connect to Redis, sessions held in memory: %v", err)
		sessions = storage.NewMemorySessionStore()
	} else {
		defer redisSessions.Close()
		sessions = redisSessions
		log.Println("Redis connected successfully")
	}

	if err := os.MkdirAll(cfg.Game.DataDir, 0o755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	systemPrompt := prompts.FallbackPrompt
	if cfg.Game.RulesFile != "" {
		rules, err := prompts.LoadRules(cfg.Game.RulesFile)
		if err != nil {
			log.Printf("Warning: GM rules file not loaded: %v", err)
		} else {
			systemPrompt = prompts.SystemPrompt(rules)
		}
	}

	compactor := engine.NewContextCompactor(cfg.Game.MaxContextTokens)
	client := engine.NewOpenRouterClient(cfg.AI.OpenRouter)
	manager := engine.NewSessionManager(cfg.Game.DataDir, compactor, client, systemPrompt)

	hub := web.NewTurnHub()
	go hub.Run()

	r := web.NewRouter(cfg, users, sessions, manager, client, hub)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Printf("Server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
