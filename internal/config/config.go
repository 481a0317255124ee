package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the bot daemon.
type Config struct {
	Env     string
	BotName string

	// Transport selects how the bot talks to its chat platform:
	// "console", "rtm" or "discord".
	Transport    string
	RTMURL       string
	RTMBotID     string
	DiscordToken string

	// StoreBackend selects the slot store: "memory", "sqlite", "postgres"
	// or "redis".
	StoreBackend string
	SQLitePath   string
	DatabaseURL  string
	RedisURL     string

	// OpsAddr is the listen address for health, stats and metrics.
	OpsAddr string

	// ConversationTimeout is the idle window before a suspended question
	// expires. MaxRepeats bounds re-asks per question.
	ConversationTimeout time.Duration
	MaxRepeats          int
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Env:                 getEnv("ENV", "development"),
		BotName:             getEnv("BOT_NAME", "botkit"),
		Transport:           getEnv("TRANSPORT", "console"),
		RTMURL:              os.Getenv("RTM_URL"),
		RTMBotID:            os.Getenv("RTM_BOT_ID"),
		DiscordToken:        os.Getenv("DISCORD_TOKEN"),
		StoreBackend:        getEnv("STORE_BACKEND", "memory"),
		SQLitePath:          getEnv("SQLITE_PATH", "./data/botkit.db"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		RedisURL:            os.Getenv("REDIS_URL"),
		OpsAddr:             getEnv("OPS_ADDR", ":8080"),
		ConversationTimeout: getDuration("CONVERSATION_TIMEOUT", 5*time.Minute),
		MaxRepeats:          getInt("MAX_REPEATS", 20),
	}

	// In production, the selected backends must be fully configured.
	if cfg.Env == "production" {
		switch cfg.Transport {
		case "rtm":
			if cfg.RTMURL == "" {
				panic("RTM_URL is required in production")
			}
		case "discord":
			if cfg.DiscordToken == "" {
				panic("DISCORD_TOKEN is required in production")
			}
		}
		switch cfg.StoreBackend {
		case "postgres":
			if cfg.DatabaseURL == "" {
				panic("DATABASE_URL is required in production")
			}
		case "redis":
			if cfg.RedisURL == "" {
				panic("REDIS_URL is required in production")
			}
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

func getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
