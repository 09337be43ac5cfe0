package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	AI       AIConfig       `yaml:"ai"`
	Game     GameConfig     `yaml:"game"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"-"`
	WriteTimeout time.Duration `yaml:"-"`
}

type DatabaseConfig struct {
	MySQL MySQLConfig `yaml:"mysql"`
	Redis RedisConfig `yaml:"redis"`
}

type MySQLConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type AIConfig struct {
	OpenRouter OpenRouterConfig `yaml:"openrouter"`
}

type OpenRouterConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	Model          string        `yaml:"model"`
	MaxTokens      int           `yaml:"max_tokens"`
	Temperature    float32       `yaml:"temperature"`
	TimeoutSeconds int           `yaml:"timeout_seconds"`
	Timeout        time.Duration `yaml:"-"`
}

type GameConfig struct {
	DataDir          string        `yaml:"data_dir"`
	RulesFile        string        `yaml:"rules_file"`
	MaxContextTokens int           `yaml:"max_context_tokens"`
	SessionTTLHours  int           `yaml:"session_ttl_hours"`
	SessionTTL       time.Duration `yaml:"-"`
}

type LoggingConfig struct {
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file, applies environment
// variable overrides and fills in defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if apiKey := os.Getenv("OPENROUTER_API_KEY"); apiKey != "" {
		cfg.AI.OpenRouter.APIKey = apiKey
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 5000
	}
	c.Server.ReadTimeout = 30 * time.Second
	c.Server.WriteTimeout = 120 * time.Second

	if c.AI.OpenRouter.Model == "" {
		c.AI.OpenRouter.Model = "deepseek/deepseek-r1"
	}
	if c.AI.OpenRouter.TimeoutSeconds <= 0 {
		c.AI.OpenRouter.TimeoutSeconds = 60
	}
	c.AI.OpenRouter.Timeout = time.Duration(c.AI.OpenRouter.TimeoutSeconds) * time.Second

	if c.Game.DataDir == "" {
		c.Game.DataDir = "user_data"
	}
	if c.Game.MaxContextTokens <= 0 {
		c.Game.MaxContextTokens = 8000
	}
	if c.Game.SessionTTLHours <= 0 {
		c.Game.SessionTTLHours = 24
	}
	c.Game.SessionTTL = time.Duration(c.Game.SessionTTLHours) * time.Hour
}
