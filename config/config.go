package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"discordautomation/models"
)

type DiscordConfig struct {
	BotToken string
}

// IsConfigured returns true if all required Discord configuration is present
func (c DiscordConfig) IsConfigured() bool {
	return c.BotToken != ""
}

type SchedulerConfig struct {
	TickInterval   time.Duration
	ClaimBatchSize int
	// ClaimMaxAge is how old a claim may be before startup recovery treats
	// it as leaked by a dead process and releases it.
	ClaimMaxAge time.Duration
}

type DispatchConfig struct {
	RateLimitCapacity     int
	RateLimitRefillPerSec float64
	TokenWaitTimeout      time.Duration
	PlatformTimeout       time.Duration
	MaxAttempts           int
	BackoffBase           time.Duration
	LedgerRetention       time.Duration
	LedgerCapacity        int
}

type AutoModConfig struct {
	Mode             models.ModerationMode
	DeleteThreshold  float64
	TimeoutThreshold float64
	TimeoutDuration  time.Duration
	WindowLimit      int

	// Pattern analyzer thresholds - policy, not mechanism
	RepeatedMessageRatio float64
	LinkRatio            float64
	MentionThreshold     int
	CapsRatio            float64
	CapsMinLength        int
}

type AppConfig struct {
	// Core configuration (always required)
	DatabaseURL        string
	DatabaseSchema     string
	Port               string // Optional with default "8080"
	CORSAllowedOrigins string // Optional with default "*"
	Environment        string
	AlertWebhookURL    string
	ServerLogsURL      string
	UseStrictConfig    bool // If true, error when any integration is not fully configured

	DiscordConfig   DiscordConfig
	SchedulerConfig SchedulerConfig
	DispatchConfig  DispatchConfig
	AutoModConfig   AutoModConfig
}

func LoadConfig() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("⚠️ Could not load .env file, continuing with system env vars")
	}

	// Core required configuration
	databaseURL, err := getEnvRequired("DB_URL")
	if err != nil {
		return nil, err
	}

	databaseSchema, err := getEnvRequired("DB_SCHEMA")
	if err != nil {
		return nil, err
	}

	config := &AppConfig{
		DatabaseURL:        databaseURL,
		DatabaseSchema:     databaseSchema,
		Port:               getEnvWithDefault("PORT", "8080"),
		CORSAllowedOrigins: getEnvWithDefault("CORS_ALLOWED_ORIGINS", "*"),
		Environment:        getEnvWithDefault("ENVIRONMENT", "dev"),
		AlertWebhookURL:    getEnvWithDefault("ALERT_WEBHOOK_URL", ""),
		ServerLogsURL:      getEnvWithDefault("SERVER_LOGS_URL", ""),
		UseStrictConfig:    getEnvWithDefault("USE_STRICT_CONFIG", "true") == "true",

		DiscordConfig: DiscordConfig{
			BotToken: os.Getenv("DISCORD_BOT_TOKEN"),
		},

		SchedulerConfig: SchedulerConfig{
			TickInterval:   getEnvDuration("SCHEDULER_TICK_INTERVAL", 2*time.Second),
			ClaimBatchSize: getEnvInt("SCHEDULER_CLAIM_BATCH_SIZE", 50),
			ClaimMaxAge:    getEnvDuration("SCHEDULER_CLAIM_MAX_AGE", 20*time.Second),
		},

		DispatchConfig: DispatchConfig{
			RateLimitCapacity:     getEnvInt("DISPATCH_RATE_LIMIT_CAPACITY", 5),
			RateLimitRefillPerSec: getEnvFloat("DISPATCH_RATE_LIMIT_REFILL_PER_SEC", 5),
			TokenWaitTimeout:      getEnvDuration("DISPATCH_TOKEN_WAIT_TIMEOUT", 10*time.Second),
			PlatformTimeout:       getEnvDuration("DISPATCH_PLATFORM_TIMEOUT", 15*time.Second),
			MaxAttempts:           getEnvInt("DISPATCH_MAX_ATTEMPTS", 4),
			BackoffBase:           getEnvDuration("DISPATCH_BACKOFF_BASE", 500*time.Millisecond),
			LedgerRetention:       getEnvDuration("DISPATCH_LEDGER_RETENTION", 30*time.Minute),
			LedgerCapacity:        getEnvInt("DISPATCH_LEDGER_CAPACITY", 10000),
		},

		AutoModConfig: AutoModConfig{
			Mode:             models.ModerationMode(getEnvWithDefault("AUTOMOD_MODE", string(models.ModerationModeDryRun))),
			DeleteThreshold:  getEnvFloat("AUTOMOD_DELETE_THRESHOLD", 0.4),
			TimeoutThreshold: getEnvFloat("AUTOMOD_TIMEOUT_THRESHOLD", 0.7),
			TimeoutDuration:  getEnvDuration("AUTOMOD_TIMEOUT_DURATION", 10*time.Minute),
			WindowLimit:      getEnvInt("AUTOMOD_WINDOW_LIMIT", 200),

			RepeatedMessageRatio: getEnvFloat("AUTOMOD_REPEATED_MESSAGE_RATIO", 0.5),
			LinkRatio:            getEnvFloat("AUTOMOD_LINK_RATIO", 0.5),
			MentionThreshold:     getEnvInt("AUTOMOD_MENTION_THRESHOLD", 5),
			CapsRatio:            getEnvFloat("AUTOMOD_CAPS_RATIO", 0.7),
			CapsMinLength:        getEnvInt("AUTOMOD_CAPS_MIN_LENGTH", 15),
		},
	}

	if config.AutoModConfig.Mode != models.ModerationModeEnforce &&
		config.AutoModConfig.Mode != models.ModerationModeDryRun {
		return nil, fmt.Errorf("AUTOMOD_MODE must be %q or %q", models.ModerationModeEnforce, models.ModerationModeDryRun)
	}

	// Log which integrations are configured
	if config.DiscordConfig.IsConfigured() {
		log.Printf("✅ Discord integration configured")
	} else {
		log.Printf("⚠️ Discord integration not configured - gateway events and dispatch will be disabled")
		if config.UseStrictConfig {
			return nil, fmt.Errorf("discord integration is not fully configured (USE_STRICT_CONFIG=true)")
		}
	}

	if config.AlertWebhookURL != "" {
		log.Printf("✅ Error alert webhook configured")
	} else {
		log.Printf("⚠️ Error alert webhook not configured - alerts will only be logged")
	}

	return config, nil
}

func getEnvRequired(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%s is not set", key)
	}
	return value, nil
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("⚠️ Invalid duration for %s: %q, using default %s", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("⚠️ Invalid integer for %s: %q, using default %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("⚠️ Invalid float for %s: %q, using default %g", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
