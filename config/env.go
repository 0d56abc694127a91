package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every setting read from the environment.
type Config struct {
	Port     string
	Env      string
	LogLevel string

	MongoURI      string
	MongoDatabase string

	JWTSecret string

	RedisAddress   string
	RedisPassword  string
	ChatRateLimit  int
	IssueRateLimit int

	LLMProvider  string
	GeminiAPIKey string
	GroqAPIKey   string
	LLMModel     string
	LLMTimeout   time.Duration

	ConversationStore string
	BoltPath          string

	CORSOrigins []string
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		Env:               getEnv("GO_ENV", "development"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		MongoURI:          os.Getenv("MONGODB_URI"),
		MongoDatabase:     getEnv("MONGODB_DATABASE", "civicsync"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		RedisAddress:      os.Getenv("REDIS_ADDRESS"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		LLMProvider:       strings.ToLower(getEnv("LLM_PROVIDER", "groq")),
		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		GroqAPIKey:        os.Getenv("GROQ_API_KEY"),
		LLMModel:          os.Getenv("LLM_MODEL"),
		ConversationStore: strings.ToLower(getEnv("CONVERSATION_STORE", "mongo")),
		BoltPath:          getEnv("BOLT_PATH", "conversations.db"),
	}

	var err error
	if cfg.ChatRateLimit, err = getInt("CHAT_RATE_LIMIT", 30); err != nil {
		return nil, err
	}
	if cfg.IssueRateLimit, err = getInt("ISSUE_RATE_LIMIT", 20); err != nil {
		return nil, err
	}
	if cfg.LLMTimeout, err = getDuration("LLM_TIMEOUT", 45*time.Second); err != nil {
		return nil, err
	}
	for _, o := range strings.Split(os.Getenv("CORS_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first missing or inconsistent setting.
func (c *Config) Validate() error {
	if c.MongoURI == "" {
		return fmt.Errorf("please define the MONGODB_URI environment variable")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("please define the JWT_SECRET environment variable")
	}
	switch c.LLMProvider {
	case "groq", "gemini":
	default:
		return fmt.Errorf("LLM_PROVIDER must be groq or gemini, got %q", c.LLMProvider)
	}
	switch c.ConversationStore {
	case "mongo", "bolt":
	default:
		return fmt.Errorf("CONVERSATION_STORE must be mongo or bolt, got %q", c.ConversationStore)
	}
	return nil
}

// LLMAPIKey returns the key for the selected provider. Empty means the
// assistant runs offline.
func (c *Config) LLMAPIKey() string {
	if c.LLMProvider == "gemini" {
		return c.GeminiAPIKey
	}
	return c.GroqAPIKey
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", key, v)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, v)
	}
	return d, nil
}
