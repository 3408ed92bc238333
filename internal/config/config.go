/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the payout-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                     string `mapstructure:"SERVER_PORT"`
	DatabaseURL                    string `mapstructure:"DATABASE_URL"`
	RedisURL                       string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix           string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL                    string `mapstructure:"RABBITMQ_URL"`
	EventExchange                  string `mapstructure:"EVENT_EXCHANGE"`
	IPNSecret                      string `mapstructure:"IPN_SECRET"`
	CORSAllowedOrigins             string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	ReviewThreshold                string `mapstructure:"REVIEW_THRESHOLD"`
	WorkerPollIntervalSeconds      int    `mapstructure:"WORKER_POLL_INTERVAL_SECONDS"`
	WorkerBatchSize                int    `mapstructure:"WORKER_BATCH_SIZE"`
	SettlementRetryDelaySeconds    int    `mapstructure:"SETTLEMENT_RETRY_DELAY_SECONDS"`
	WebhookTimeoutSeconds          int    `mapstructure:"WEBHOOK_TIMEOUT_SECONDS"`
	WebhookMaxAttempts             int    `mapstructure:"WEBHOOK_MAX_ATTEMPTS"`
	WebhookRetryDelaySeconds       int    `mapstructure:"WEBHOOK_RETRY_DELAY_SECONDS"`
	IdempotencyTTLHours            int    `mapstructure:"IDEMPOTENCY_TTL_HOURS"`
	IdempotencyCleanupSchedule     string `mapstructure:"IDEMPOTENCY_CLEANUP_SCHEDULE"`
	StaleRequeueSchedule           string `mapstructure:"STALE_PROCESSING_REQUEUE_SCHEDULE"`
	StaleProcessingAfterMinutes    int    `mapstructure:"STALE_PROCESSING_AFTER_MINUTES"`
	CreateRateLimitPerMinute       int    `mapstructure:"CREATE_RATE_LIMIT_PER_MINUTE"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("EVENT_EXCHANGE", "mypay.events")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "mypay:rate_limit")
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "https://*,http://*")
	viper.SetDefault("REVIEW_THRESHOLD", "100000")
	viper.SetDefault("WORKER_POLL_INTERVAL_SECONDS", 5)
	viper.SetDefault("WORKER_BATCH_SIZE", 10)
	viper.SetDefault("SETTLEMENT_RETRY_DELAY_SECONDS", 30)
	viper.SetDefault("WEBHOOK_TIMEOUT_SECONDS", 10)
	viper.SetDefault("WEBHOOK_MAX_ATTEMPTS", 3)
	viper.SetDefault("WEBHOOK_RETRY_DELAY_SECONDS", 5)
	viper.SetDefault("IDEMPOTENCY_TTL_HOURS", 24)
	viper.SetDefault("IDEMPOTENCY_CLEANUP_SCHEDULE", "@hourly")
	viper.SetDefault("STALE_PROCESSING_REQUEUE_SCHEDULE", "@every 10m")
	viper.SetDefault("STALE_PROCESSING_AFTER_MINUTES", 15)
	viper.SetDefault("CREATE_RATE_LIMIT_PER_MINUTE", 60)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "PAYOUT_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENT_EXCHANGE")
	_ = viper.BindEnv("IPN_SECRET")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")
	_ = viper.BindEnv("REVIEW_THRESHOLD")
	_ = viper.BindEnv("WORKER_POLL_INTERVAL_SECONDS")
	_ = viper.BindEnv("WORKER_BATCH_SIZE")
	_ = viper.BindEnv("SETTLEMENT_RETRY_DELAY_SECONDS")
	_ = viper.BindEnv("WEBHOOK_TIMEOUT_SECONDS")
	_ = viper.BindEnv("WEBHOOK_MAX_ATTEMPTS")
	_ = viper.BindEnv("WEBHOOK_RETRY_DELAY_SECONDS")
	_ = viper.BindEnv("IDEMPOTENCY_TTL_HOURS")
	_ = viper.BindEnv("IDEMPOTENCY_CLEANUP_SCHEDULE")
	_ = viper.BindEnv("STALE_PROCESSING_REQUEUE_SCHEDULE")
	_ = viper.BindEnv("STALE_PROCESSING_AFTER_MINUTES")
	_ = viper.BindEnv("CREATE_RATE_LIMIT_PER_MINUTE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSuffix(strings.TrimSpace(config.RedisRateLimitPrefix), ":")
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "mypay:rate_limit"
	}
	if config.WorkerPollIntervalSeconds < 1 {
		log.Printf("level=warn component=config msg=\"poll interval below 1s; coercing\" value=%d", config.WorkerPollIntervalSeconds)
		config.WorkerPollIntervalSeconds = 1
	}
	if config.WorkerBatchSize < 1 {
		config.WorkerBatchSize = 1
	}
	if config.WebhookMaxAttempts < 1 {
		config.WebhookMaxAttempts = 1
	}
	if config.IdempotencyTTLHours < 1 {
		config.IdempotencyTTLHours = 24
	}

	return
}

// AllowedOrigins splits the comma-separated CORS origin list.
func (c Config) AllowedOrigins() []string {
	parts := strings.Split(c.CORSAllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 {
		origins = []string{"https://*", "http://*"}
	}
	return origins
}
