package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Platform   PlatformConfig
	Moderation ModerationConfig
	AI         AIConfig
	RateLimit  RateLimitConfig
	Trust      TrustConfig
	Security   SecurityConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	GinMode  string
	LogLevel string
	// AllowedOrigins gates websocket upgrades; empty allows any origin
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	Path     string
}

type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MessageChannel string
}

type JWTConfig struct {
	Secret      string
	ExpiryHours int
}

type PlatformConfig struct {
	BridgeURL      string
	BridgeToken    string
	AlertChannelID string
	LogChannelID   string
	// BotUserID is recorded as the moderator of automatic actions
	BotUserID    string
	AdminUserIDs []string
	AdminRoleIDs []string
}

type ModerationConfig struct {
	WarningExpiry          time.Duration
	WarnThreshold          int
	MaxMessageLength       int
	SpamMessageCount       int
	SpamTimeWindow         time.Duration
	ContextBefore          int
	ContextAfter           int
	AppealDeadline         time.Duration
	AbuseLookback          time.Duration
	AbuseRepeatThreshold   int
	PendingWarnTTL         time.Duration
	PendingConfirmationTTL time.Duration
	TimeoutDuration        time.Duration
	MuteDuration           time.Duration
	TrackingRetention      time.Duration
	CleanupInterval        time.Duration
	// ConfirmationRequired is set by AI_MODE=full
	ConfirmationRequired bool
}

type ProviderConfig struct {
	APIKey   string
	Model    string
	Endpoint string
}

type AIConfig struct {
	Provider    string
	Gemini      ProviderConfig
	OpenAI      ProviderConfig
	Cerebras    ProviderConfig
	Anthropic   ProviderConfig
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
	RateLimit   float64
	Temperature float64
}

type RateLimitConfig struct {
	Commands int
	Window   time.Duration
	Backend  string
}

type TrustConfig struct {
	Min          int
	Max          int
	Default      int
	LowThreshold int
}

type SecurityConfig struct {
	// EncryptionKey is the decoded ENCRYPTION_KEY, nil when unset
	EncryptionKey []byte
}

const (
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderCerebras  = "cerebras"
	ProviderAnthropic = "claude"
)

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnv("PORT", "8080"),
			Env:      getEnv("ENVIRONMENT", "development"),
			GinMode:  getEnv("GIN_MODE", "debug"),
			LogLevel: getEnv("LOG_LEVEL", "info"),

			AllowedOrigins: getList("CORS_ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "fairguard"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			Path:     getEnv("DB_PATH", "fairguard.db"),
		},
		Redis: RedisConfig{
			Host:           getEnv("REDIS_HOST", "localhost"),
			Port:           getEnv("REDIS_PORT", "6379"),
			Password:       getEnv("REDIS_PASSWORD", ""),
			DB:             getInt("REDIS_DB", 0),
			MessageChannel: getEnv("REDIS_MESSAGE_CHANNEL", "moderation:messages"),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", ""),
			ExpiryHours: getInt("JWT_EXPIRY_HOURS", 24),
		},
		Platform: PlatformConfig{
			BridgeURL:      getEnv("PLATFORM_BRIDGE_URL", "http://localhost:9090"),
			BridgeToken:    getEnv("PLATFORM_BRIDGE_TOKEN", ""),
			AlertChannelID: getEnv("ALERT_CHANNEL_ID", ""),
			LogChannelID:   getEnv("LOG_CHANNEL_ID", ""),
			BotUserID:      getEnv("BOT_USER_ID", "system"),
			AdminUserIDs:   getList("ADMIN_USER_IDS"),
			AdminRoleIDs:   getList("ADMIN_ROLE_IDS"),
		},
		Moderation: ModerationConfig{
			WarningExpiry:          days(getInt("WARNING_EXPIRY_DAYS", 30)),
			WarnThreshold:          getInt("WARN_THRESHOLD", 3),
			MaxMessageLength:       getInt("MAX_MESSAGE_LENGTH", 2000),
			SpamMessageCount:       getInt("SPAM_MESSAGE_COUNT", 5),
			SpamTimeWindow:         seconds(getInt("SPAM_TIME_WINDOW_SECONDS", 10)),
			ContextBefore:          getInt("WARN_CONTEXT_BEFORE", 10),
			ContextAfter:           getInt("WARN_CONTEXT_AFTER", 10),
			AppealDeadline:         days(getInt("APPEAL_DEADLINE_DAYS", 3)),
			AbuseLookback:          time.Duration(getInt("ABUSE_LOOKBACK_HOURS", 1)) * time.Hour,
			AbuseRepeatThreshold:   getInt("ABUSE_REPEAT_THRESHOLD", 2),
			PendingWarnTTL:         seconds(getInt("PENDING_WARN_TTL_SECONDS", 300)),
			PendingConfirmationTTL: seconds(getInt("PENDING_CONFIRMATION_TTL_SECONDS", 86400)),
			TimeoutDuration:        time.Duration(getInt("TIMEOUT_DURATION_MINUTES", 60)) * time.Minute,
			MuteDuration:           time.Duration(getInt("MUTE_DURATION_MINUTES", 30)) * time.Minute,
			TrackingRetention:      days(getInt("TRACKING_RETENTION_DAYS", 30)),
			CleanupInterval:        time.Duration(getInt("CLEANUP_INTERVAL_MINUTES", 10)) * time.Minute,
			ConfirmationRequired:   strings.EqualFold(getEnv("AI_MODE", "free"), "full"),
		},
		AI: AIConfig{
			Provider: strings.ToLower(getEnv("AI_PROVIDER", ProviderGemini)),
			Gemini: ProviderConfig{
				APIKey:   getEnv("GEMINI_API_KEY", ""),
				Model:    getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
				Endpoint: getEnv("GEMINI_ENDPOINT", "https://generativelanguage.googleapis.com/v1beta"),
			},
			OpenAI: ProviderConfig{
				APIKey:   getEnv("OPENAI_API_KEY", ""),
				Model:    getEnv("OPENAI_MODEL", "gpt-4o-mini"),
				Endpoint: getEnv("OPENAI_ENDPOINT", "https://api.openai.com/v1"),
			},
			Cerebras: ProviderConfig{
				APIKey:   getEnv("CEREBRAS_API_KEY", ""),
				Model:    getEnv("CEREBRAS_MODEL", "llama-3.3-70b"),
				Endpoint: getEnv("CEREBRAS_ENDPOINT", "https://api.cerebras.ai/v1"),
			},
			Anthropic: ProviderConfig{
				APIKey:   getEnv("ANTHROPIC_API_KEY", ""),
				Model:    getEnv("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
				Endpoint: getEnv("ANTHROPIC_ENDPOINT", "https://api.anthropic.com/v1"),
			},
			Timeout:     seconds(getInt("AI_TIMEOUT_SECONDS", 30)),
			MaxRetries:  getInt("AI_MAX_RETRIES", 3),
			BackoffBase: time.Duration(getInt("AI_BACKOFF_BASE_MS", 1000)) * time.Millisecond,
			RateLimit:   getFloat("AI_RATE_LIMIT_RPS", 5),
			Temperature: getFloat("AI_TEMPERATURE", 0.1),
		},
		RateLimit: RateLimitConfig{
			Commands: getInt("RATE_LIMIT_COMMANDS", 5),
			Window:   seconds(getInt("RATE_LIMIT_WINDOW_SECONDS", 60)),
			Backend:  getEnv("RATE_LIMIT_BACKEND", "sql"),
		},
		Trust: TrustConfig{
			Min:          getInt("TRUST_SCORE_MIN", 0),
			Max:          getInt("TRUST_SCORE_MAX", 100),
			Default:      getInt("TRUST_SCORE_DEFAULT", 50),
			LowThreshold: getInt("LOW_TRUST_THRESHOLD", 30),
		},
	}

	if raw := getEnv("ENCRYPTION_KEY", ""); raw != "" {
		key, err := hex.DecodeString(raw)
		if err != nil || len(key) != 32 {
			return nil, fmt.Errorf("ENCRYPTION_KEY must be 64 hex characters")
		}
		cfg.Security.EncryptionKey = key
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks option ranges and returns the first violation
func (c *Config) Validate() error {
	if c.JWT.Secret == "" && c.Server.Env == "production" {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}

	ranges := []struct {
		name     string
		value    int
		min, max int
	}{
		{"WARN_THRESHOLD", c.Moderation.WarnThreshold, 1, 100},
		{"MAX_MESSAGE_LENGTH", c.Moderation.MaxMessageLength, 100, 10000},
		{"SPAM_MESSAGE_COUNT", c.Moderation.SpamMessageCount, 1, 100},
		{"WARN_CONTEXT_BEFORE", c.Moderation.ContextBefore, 0, 50},
		{"WARN_CONTEXT_AFTER", c.Moderation.ContextAfter, 0, 50},
		{"RATE_LIMIT_COMMANDS", c.RateLimit.Commands, 1, 100},
		{"AI_MAX_RETRIES", c.AI.MaxRetries, 1, 10},
		{"ABUSE_REPEAT_THRESHOLD", c.Moderation.AbuseRepeatThreshold, 1, 100},
	}
	for _, r := range ranges {
		if r.value < r.min || r.value > r.max {
			return fmt.Errorf("%s must be between %d and %d, got %d", r.name, r.min, r.max, r.value)
		}
	}

	positive := []struct {
		name  string
		value time.Duration
	}{
		{"WARNING_EXPIRY_DAYS", c.Moderation.WarningExpiry},
		{"SPAM_TIME_WINDOW_SECONDS", c.Moderation.SpamTimeWindow},
		{"APPEAL_DEADLINE_DAYS", c.Moderation.AppealDeadline},
		{"PENDING_WARN_TTL_SECONDS", c.Moderation.PendingWarnTTL},
		{"PENDING_CONFIRMATION_TTL_SECONDS", c.Moderation.PendingConfirmationTTL},
		{"RATE_LIMIT_WINDOW_SECONDS", c.RateLimit.Window},
		{"AI_TIMEOUT_SECONDS", c.AI.Timeout},
		{"CLEANUP_INTERVAL_MINUTES", c.Moderation.CleanupInterval},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive", p.name)
		}
	}

	switch c.AI.Provider {
	case ProviderGemini, ProviderOpenAI, ProviderCerebras, ProviderAnthropic:
	default:
		return fmt.Errorf("AI_PROVIDER must be one of gemini, openai, cerebras, claude")
	}

	switch c.RateLimit.Backend {
	case "sql", "redis":
	default:
		return fmt.Errorf("RATE_LIMIT_BACKEND must be sql or redis")
	}

	if c.Trust.Min >= c.Trust.Max || c.Trust.Default < c.Trust.Min || c.Trust.Default > c.Trust.Max {
		return fmt.Errorf("trust score bounds are inconsistent")
	}
	return nil
}

// ProviderSettings returns the settings for the named provider
func (c *AIConfig) ProviderSettings(name string) (ProviderConfig, bool) {
	switch name {
	case ProviderGemini:
		return c.Gemini, true
	case ProviderOpenAI:
		return c.OpenAI, true
	case ProviderCerebras:
		return c.Cerebras, true
	case ProviderAnthropic:
		return c.Anthropic, true
	}
	return ProviderConfig{}, false
}

// SetProviderSettings replaces the settings of the named provider
func (c *AIConfig) SetProviderSettings(name string, pc ProviderConfig) bool {
	switch name {
	case ProviderGemini:
		c.Gemini = pc
	case ProviderOpenAI:
		c.OpenAI = pc
	case ProviderCerebras:
		c.Cerebras = pc
	case ProviderAnthropic:
		c.Anthropic = pc
	default:
		return false
	}
	return true
}

// Secrets lists configured secret values for log redaction
func (c *Config) Secrets() []string {
	return []string{
		c.Database.Password,
		c.Redis.Password,
		c.JWT.Secret,
		c.Platform.BridgeToken,
		c.AI.Gemini.APIKey,
		c.AI.OpenAI.APIKey,
		c.AI.Cerebras.APIKey,
		c.AI.Anthropic.APIKey,
		hex.EncodeToString(c.Security.EncryptionKey),
	}
}

// GetDSN returns the database connection string for the configured driver
func (c *Config) GetDSN() string {
	if c.Database.Driver == "sqlite3" {
		return c.Database.Path
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(getEnv(key, strconv.Itoa(defaultValue)))
	if err != nil {
		return defaultValue
	}
	return v
}

func getFloat(key string, defaultValue float64) float64 {
	v, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return defaultValue
	}
	return v
}

func getList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func days(n int) time.Duration    { return time.Duration(n) * 24 * time.Hour }
func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
