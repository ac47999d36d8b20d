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
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	LLM          LLMConfig
	Agent        AgentConfig
	Guardrail    GuardrailConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
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
	// TurnLock enables the cross-process conversation lock.
	TurnLock bool
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// Supported LLM_PROVIDER values.
const (
	LLMProviderOpenAI  = "openai"
	LLMProviderBedrock = "bedrock"
)

// LLMConfig selects and tunes the model transport.
type LLMConfig struct {
	Provider       string
	BaseURL        string
	APIKey         string
	Model          string
	TimeoutSeconds int
	MaxTokens      int
	Temperature    float64
	AWSRegion      string
}

// AgentConfig tunes the conversation engine.
type AgentConfig struct {
	HistoryWindow          int
	DefaultStoreID         string
	TurnLockTimeoutSeconds int
	TicketExcerptChars     int
}

// GuardrailConfig points at an optional per-store policy file.
type GuardrailConfig struct {
	PolicyFile string
}

// NotificationConfig holds event forwarding endpoints.
type NotificationConfig struct {
	KafkaBrokers []string
	KafkaTopic   string
	WebhookURL   string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	temperature, err := strconv.ParseFloat(getEnv("LLM_TEMPERATURE", "0.2"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_TEMPERATURE: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "support-agent"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 180),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
			TurnLock: getEnvAsBool("REDIS_TURN_LOCK", false),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		LLM: LLMConfig{
			Provider:       strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
			BaseURL:        getEnv("LLM_BASE_URL", "https://router.huggingface.co/v1"),
			APIKey:         os.Getenv("LLM_API_KEY"),
			Model:          getEnv("LLM_MODEL", "Qwen/Qwen2.5-72B-Instruct"),
			TimeoutSeconds: getEnvAsInt("LLM_TIMEOUT_SECONDS", 60),
			MaxTokens:      getEnvAsInt("LLM_MAX_TOKENS", 1024),
			Temperature:    temperature,
			AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		},
		Agent: AgentConfig{
			HistoryWindow:          getEnvAsInt("AGENT_HISTORY_WINDOW", 15),
			DefaultStoreID:         getEnv("AGENT_DEFAULT_STORE_ID", "s1"),
			TurnLockTimeoutSeconds: getEnvAsInt("AGENT_TURN_LOCK_TIMEOUT_SECONDS", 30),
			TicketExcerptChars:     getEnvAsInt("AGENT_TICKET_EXCERPT_CHARS", 120),
		},
		Guardrail: GuardrailConfig{
			PolicyFile: os.Getenv("GUARDRAIL_POLICY_FILE"),
		},
		Notification: NotificationConfig{
			KafkaBrokers: getEnvAsList("NOTIFY_KAFKA_BROKERS"),
			KafkaTopic:   getEnv("NOTIFY_KAFKA_TOPIC", "support-agent.events"),
			WebhookURL:   getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
	}

	if cfg.LLM.Provider != LLMProviderOpenAI && cfg.LLM.Provider != LLMProviderBedrock {
		return nil, fmt.Errorf("invalid LLM_PROVIDER %q", cfg.LLM.Provider)
	}

	// A turn may wait for its lock and then make two LLM calls; the request
	// deadline must not cut it off between persisting a tool call and its result.
	if minSeconds := cfg.TurnBudgetSeconds(); cfg.App.RequestTimeoutSeconds > 0 && cfg.App.RequestTimeoutSeconds < minSeconds {
		cfg.App.RequestTimeoutSeconds = minSeconds
	}

	return cfg, nil
}

// TurnBudgetSeconds is the longest a chat turn can legitimately take.
func (c *Config) TurnBudgetSeconds() int {
	return int((c.Agent.TurnLockTimeout() + 2*c.LLM.Timeout()).Seconds()) + turnSlackSeconds
}

const turnSlackSeconds = 10

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Timeout returns the per-call LLM deadline.
func (l LLMConfig) Timeout() time.Duration {
	if l.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(l.TimeoutSeconds) * time.Second
}

// TurnLockTimeout bounds how long a turn waits for its conversation lock.
func (a AgentConfig) TurnLockTimeout() time.Duration {
	if a.TurnLockTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(a.TurnLockTimeoutSeconds) * time.Second
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

func getEnvAsList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
