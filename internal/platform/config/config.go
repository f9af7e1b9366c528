package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	DatabaseURL  string
	Port         string
	IsProduction bool

	// Redis snapshot cache. Empty address disables caching.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	// RabbitMQ event publishing. Empty URL disables the dispatcher.
	AMQPURL       string
	EventExchange string

	// Background job cadence.
	HoldSweepSpec      string
	SLASweepSpec       string
	OutboxPollInterval time.Duration

	// Static authority roster: "actor:LEVEL" pairs, comma separated.
	AuthorityRoster string
}

// LoadConfig loads configuration from environment variables and .env file if present.
func LoadConfig() (*Config, error) {
	// Attempt to load .env file, ignore error if it doesn't exist
	_ = godotenv.Load()

	viper.SetDefault("PGSQL_URL", "")
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("IS_PRODUCTION", false)
	viper.SetDefault("REDIS_ADDR", "")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("CACHE_TTL", "5m")
	viper.SetDefault("AMQP_URL", "")
	viper.SetDefault("EVENT_EXCHANGE", "banking.events")
	viper.SetDefault("HOLD_SWEEP_SPEC", "*/5 * * * *")
	viper.SetDefault("SLA_SWEEP_SPEC", "* * * * *")
	viper.SetDefault("OUTBOX_POLL_INTERVAL", "5s")
	viper.SetDefault("AUTHORITY_ROSTER", "")

	viper.AutomaticEnv()

	cfg := &Config{}

	cfg.DatabaseURL = viper.GetString("PGSQL_URL")
	if cfg.DatabaseURL == "" {
		log.Println("Warning: PGSQL_URL environment variable not set.")
	}

	cfg.Port = viper.GetString("PORT")
	cfg.IsProduction = viper.GetBool("IS_PRODUCTION")

	cfg.RedisAddr = viper.GetString("REDIS_ADDR")
	cfg.RedisPassword = viper.GetString("REDIS_PASSWORD")
	cfg.RedisDB = viper.GetInt("REDIS_DB")

	cacheTTLStr := viper.GetString("CACHE_TTL")
	cacheTTL, err := time.ParseDuration(cacheTTLStr)
	if err != nil {
		cacheTTL = 5 * time.Minute
		log.Printf("Warning: Invalid value for CACHE_TTL ('%s'). Defaulting to %s.\n", cacheTTLStr, cacheTTL)
	}
	cfg.CacheTTL = cacheTTL

	cfg.AMQPURL = viper.GetString("AMQP_URL")
	if cfg.AMQPURL == "" {
		log.Println("Warning: AMQP_URL not set. Event publishing is disabled; outbox events will accumulate as PENDING.")
	}
	cfg.EventExchange = viper.GetString("EVENT_EXCHANGE")

	cfg.HoldSweepSpec = viper.GetString("HOLD_SWEEP_SPEC")
	cfg.SLASweepSpec = viper.GetString("SLA_SWEEP_SPEC")

	pollStr := viper.GetString("OUTBOX_POLL_INTERVAL")
	poll, err := time.ParseDuration(pollStr)
	if err != nil {
		poll = 5 * time.Second
		log.Printf("Warning: Invalid value for OUTBOX_POLL_INTERVAL ('%s'). Defaulting to %s.\n", pollStr, poll)
	}
	cfg.OutboxPollInterval = poll

	cfg.AuthorityRoster = viper.GetString("AUTHORITY_ROSTER")
	if cfg.AuthorityRoster == "" {
		log.Println("Warning: AUTHORITY_ROSTER not set. All approval decisions will be refused.")
	}

	return cfg, nil
}
