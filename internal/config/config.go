package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Discord      DiscordConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	AMQP         AMQPConfig
	Tickets      TicketConfig
	Verification VerificationConfig
	Pricing      PricingConfig
	Logger       LoggerConfig
}

// AppConfig controls the ops HTTP surface.
type AppConfig struct {
	Name     string
	Env      string
	Host     string
	Port     string
	OpsToken string
}

// DiscordConfig holds gateway credentials and the guild layout.
type DiscordConfig struct {
	Token             string
	GuildID           string
	LogChannelID      string
	TicketCategoryIDs []string
	StaffRoleID       string
	VerifiedRoleID    string
	UnverifiedRoleID  string
	GateChannelID     string
	CommandPrefix     string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AMQPConfig configures the optional event bridge. Empty URL disables it.
type AMQPConfig struct {
	URL      string
	Exchange string
}

// TicketConfig carries lifecycle policy knobs.
type TicketConfig struct {
	PollInterval  time.Duration
	SuspendWindow time.Duration
}

// VerificationConfig carries the join-gate policy.
type VerificationConfig struct {
	Deadline       time.Duration
	SweepInterval  time.Duration
	PasswordLength int
}

// PricingConfig configures the minimum-price message filter.
type PricingConfig struct {
	MinimumUSD        float64
	MonitoredChannels []string
	ModLogChannelID   string
	// AllowedRange is the advertised acceptable price range, stripped from
	// messages before extraction so quoting the rule never trips the filter.
	AllowedRange string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	minimumUSD, err := strconv.ParseFloat(getEnv("PRICING_MINIMUM_USD", "15"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid PRICING_MINIMUM_USD: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:     getEnv("APP_NAME", "modmail-service"),
			Env:      getEnv("APP_ENV", "development"),
			Host:     getEnv("APP_HOST", "0.0.0.0"),
			Port:     getEnv("APP_PORT", "8080"),
			OpsToken: os.Getenv("OPS_API_TOKEN"),
		},
		Discord: DiscordConfig{
			Token:             os.Getenv("DISCORD_TOKEN"),
			GuildID:           os.Getenv("DISCORD_GUILD_ID"),
			LogChannelID:      os.Getenv("DISCORD_LOG_CHANNEL_ID"),
			TicketCategoryIDs: getEnvAsList("DISCORD_TICKET_CATEGORY_IDS"),
			StaffRoleID:       os.Getenv("DISCORD_STAFF_ROLE_ID"),
			VerifiedRoleID:    os.Getenv("DISCORD_VERIFIED_ROLE_ID"),
			UnverifiedRoleID:  os.Getenv("DISCORD_UNVERIFIED_ROLE_ID"),
			GateChannelID:     os.Getenv("DISCORD_GATE_CHANNEL_ID"),
			CommandPrefix:     getEnv("DISCORD_COMMAND_PREFIX", "!"),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		AMQP: AMQPConfig{
			URL:      os.Getenv("AMQP_URL"),
			Exchange: getEnv("AMQP_EXCHANGE", "modmail.events"),
		},
		Tickets: TicketConfig{
			PollInterval:  getEnvAsDuration("TICKET_POLL_INTERVAL", time.Minute),
			SuspendWindow: getEnvAsDuration("TICKET_SUSPEND_WINDOW", 24*time.Hour),
		},
		Verification: VerificationConfig{
			Deadline:       getEnvAsDuration("VERIFICATION_DEADLINE", 48*time.Hour),
			SweepInterval:  getEnvAsDuration("VERIFICATION_SWEEP_INTERVAL", time.Hour),
			PasswordLength: getEnvAsInt("VERIFICATION_PASSWORD_LENGTH", 8),
		},
		Pricing: PricingConfig{
			MinimumUSD:        minimumUSD,
			MonitoredChannels: getEnvAsList("PRICING_CHANNEL_IDS"),
			ModLogChannelID:   os.Getenv("PRICING_MOD_LOG_CHANNEL_ID"),
			AllowedRange:      getEnv("PRICING_ALLOWED_RANGE", "$100-$140"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if cfg.Discord.Token == "" {
		return nil, fmt.Errorf("DISCORD_TOKEN is required")
	}

	return cfg, nil
}

// Addr returns the ops HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
