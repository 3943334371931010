package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server struct {
		Port     string
		GRPCPort string
		Env      string
		Timeout  time.Duration
		BaseURL  string
		Version  string
	}

	// Database configuration
	Database struct {
		Driver   string // postgres | sqlite
		Host     string
		Port     string
		User     string
		Password string
		Name     string
		SSLMode  string
		Path     string // sqlite file, ":memory:" for ephemeral
		MaxConns int
		Timeout  time.Duration
	}

	// Redis configuration
	Redis struct {
		Enabled  bool
		Addr     string
		Password string
		DB       int
	}

	// Text generation
	Generation struct {
		Provider        string // openai | anthropic
		APIKey          string
		BaseURL         string
		Model           string
		ValidatorModel  string
		Temperature     float64
		MaxTokens       int
		DraftTimeout    time.Duration
		ValidateTimeout time.Duration
		RequestTimeout  time.Duration
		Threshold       float64
		MaxRetries      int
		HistoryTurns    int
		BreakerFailures int
		BreakerCooldown time.Duration
	}

	// Retrieval settings
	Retrieval struct {
		CorpusDir   string
		DefaultTopK int
		RefineTopK  int
		MacroRecent int
	}

	// Market-data service
	Market struct {
		BaseURL  string
		Timeout  time.Duration
		CacheTTL time.Duration
	}

	// Room behavior
	Rooms struct {
		DefaultRoom          string
		DefaultPersona       string
		MentorDefaultEnabled bool
		Lifecycle            string // destroy | retain
		ReplayLimit          int
		InboundRate          float64
		InboundBurst         int
	}

	// Link handling
	Links struct {
		FetchEnabled  bool
		PreviewEmit   bool
		Timeout       time.Duration
		MaxBytes      int64
		AllowPrivate  bool
		PublicBaseURL string
	}

	// Security configuration
	Security struct {
		RateLimit      float64
		RateLimitBurst int
		AllowedOrigins []string
		MaxBodySize    int64
	}

	// Session tickets bind a session id to its persona
	Tickets struct {
		Secret   string
		TTL      time.Duration
		Required bool
	}

	// Vault integration for secrets
	Vault struct {
		Enabled     bool
		Addr        string
		Token       string
		Namespace   string
		SecretsPath string
	}

	// Telemetry
	Telemetry struct {
		ServiceName    string
		TracingEnabled bool
		MetricsEnabled bool
	}

	// Logging configuration
	Logging struct {
		Level  string
		Format string
		File   string
	}

	// Cache settings
	Cache struct {
		Enabled     bool
		TTL         time.Duration
		MaxSize     int
		PurgeWindow time.Duration
	}

	OpenAPISchemaPath string
	PersonasFile      string
}

var (
	instance *Config
	once     sync.Once
)

// New creates a new Config instance with values from environment variables
// Uses singleton pattern to ensure only one instance exists
func New() *Config {
	once.Do(func() {
		// Load .env file if exists
		_ = godotenv.Load()
		instance = Load()
	})

	return instance
}

// Get returns the singleton Config instance
func Get() *Config {
	if instance == nil {
		return New()
	}
	return instance
}

// Load reads a fresh Config from the environment without touching the singleton
func Load() *Config {
	cfg := &Config{}

	// Server config
	cfg.Server.Port = getEnvString("PORT", "8081")
	cfg.Server.GRPCPort = getEnvString("GRPC_PORT", "")
	cfg.Server.Env = getEnvString("APP_ENV", "development")
	cfg.Server.Timeout = getEnvDuration("SERVER_TIMEOUT", 30*time.Second)
	cfg.Server.BaseURL = getEnvString("BASE_URL", "http://localhost:"+cfg.Server.Port)
	cfg.Server.Version = getEnvString("APP_VERSION", "dev")

	// Database config
	cfg.Database.Driver = getEnvString("DB_DRIVER", "postgres")
	cfg.Database.Host = getEnvString("DB_HOST", "localhost")
	cfg.Database.Port = getEnvString("DB_PORT", "5432")
	cfg.Database.User = getEnvString("DB_USER", "postgres")
	cfg.Database.Password = getEnvString("DB_PASSWORD", "postgres")
	cfg.Database.Name = getEnvString("DB_NAME", "mentorchat")
	cfg.Database.SSLMode = getEnvString("DB_SSL_MODE", "disable")
	cfg.Database.Path = getEnvString("DB_PATH", "mentorchat.db")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 20)
	cfg.Database.Timeout = getEnvDuration("DB_TIMEOUT", 5*time.Second)

	// Redis config
	cfg.Redis.Enabled = getEnvBool("REDIS_ENABLED", false)
	cfg.Redis.Addr = getEnvString("REDIS_URL", "localhost:6379")
	cfg.Redis.Password = getEnvString("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	// Generation config
	cfg.Generation.Provider = getEnvString("GENERATION_PROVIDER", "openai")
	cfg.Generation.APIKey = getEnvString("GENERATION_API_KEY", os.Getenv("OPENAI_API_KEY"))
	cfg.Generation.BaseURL = getEnvString("GENERATION_BASE_URL", "")
	cfg.Generation.Model = getEnvString("GENERATION_MODEL", "gpt-4o-mini")
	cfg.Generation.ValidatorModel = getEnvString("GENERATION_VALIDATOR_MODEL", cfg.Generation.Model)
	cfg.Generation.Temperature = getEnvFloat("GENERATION_TEMPERATURE", 0.3)
	cfg.Generation.MaxTokens = getEnvInt("GENERATION_MAX_TOKENS", 600)
	cfg.Generation.DraftTimeout = getEnvDuration("GENERATION_DRAFT_TIMEOUT", 8*time.Second)
	cfg.Generation.ValidateTimeout = getEnvDuration("GENERATION_VALIDATE_TIMEOUT", 8*time.Second)
	cfg.Generation.RequestTimeout = getEnvDuration("GENERATION_REQUEST_TIMEOUT", 30*time.Second)
	cfg.Generation.Threshold = getEnvFloat("GENERATION_ACCEPT_THRESHOLD", 0.6)
	cfg.Generation.MaxRetries = getEnvInt("GENERATION_MAX_RETRIES", 1)
	cfg.Generation.HistoryTurns = getEnvInt("GENERATION_HISTORY_TURNS", 6)
	cfg.Generation.BreakerFailures = getEnvInt("GENERATION_BREAKER_FAILURES", 5)
	cfg.Generation.BreakerCooldown = getEnvDuration("GENERATION_BREAKER_COOLDOWN", 30*time.Second)

	// Retrieval config
	cfg.Retrieval.CorpusDir = getEnvString("CORPUS_DIR", "")
	cfg.Retrieval.DefaultTopK = getEnvInt("RETRIEVAL_TOP_K", 5)
	cfg.Retrieval.RefineTopK = getEnvInt("RETRIEVAL_REFINE_TOP_K", 10)
	cfg.Retrieval.MacroRecent = getEnvInt("RETRIEVAL_MACRO_RECENT", 4)

	// Market config
	cfg.Market.BaseURL = getEnvString("MARKET_DATA_URL", "")
	cfg.Market.Timeout = getEnvDuration("MARKET_DATA_TIMEOUT", 5*time.Second)
	cfg.Market.CacheTTL = getEnvDuration("MARKET_CACHE_TTL", time.Minute)

	// Room config
	cfg.Rooms.DefaultRoom = getEnvString("DEFAULT_ROOM", "lobby")
	cfg.Rooms.DefaultPersona = getEnvString("ROOM_GURU", "buffett")
	cfg.Rooms.MentorDefaultEnabled = getEnvBool("MENTOR_DEFAULT_ENABLED", true)
	cfg.Rooms.Lifecycle = getEnvString("ROOM_LIFECYCLE", "retain")
	cfg.Rooms.ReplayLimit = getEnvInt("ROOM_REPLAY_LIMIT", 50)
	cfg.Rooms.InboundRate = getEnvFloat("ROOM_INBOUND_RATE", 2)
	cfg.Rooms.InboundBurst = getEnvInt("ROOM_INBOUND_BURST", 5)

	// Link config
	cfg.Links.FetchEnabled = getEnvBool("LINK_FETCH_ENABLED", true)
	cfg.Links.PreviewEmit = getEnvBool("LINK_PREVIEW_EMIT", true)
	cfg.Links.Timeout = getEnvDuration("LINK_REQUEST_TIMEOUT", 5*time.Second)
	cfg.Links.MaxBytes = getEnvInt64("LINK_MAX_RESPONSE_BYTES", 2<<20) // 2MB
	cfg.Links.AllowPrivate = getEnvBool("LINK_ALLOW_PRIVATE", false)
	cfg.Links.PublicBaseURL = getEnvString("PUBLIC_BASE_URL", "")

	// Security config
	cfg.Security.RateLimit = getEnvFloat("RATE_LIMIT", 5)
	cfg.Security.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", 10)
	cfg.Security.AllowedOrigins = getEnvStringSlice("ALLOWED_ORIGINS", []string{"*"})
	cfg.Security.MaxBodySize = getEnvInt64("MAX_BODY_SIZE", 1<<20) // 1MB

	// Session tickets
	cfg.Tickets.Secret = getEnvString("SESSION_TICKET_SECRET", "")
	cfg.Tickets.TTL = getEnvDuration("SESSION_TICKET_TTL", 24*time.Hour)
	cfg.Tickets.Required = getEnvBool("SESSION_TICKET_REQUIRED", false)

	// Vault
	cfg.Vault.Enabled = getEnvBool("VAULT_ENABLED", false)
	cfg.Vault.Addr = getEnvString("VAULT_ADDR", "")
	cfg.Vault.Token = getEnvString("VAULT_TOKEN", "")
	cfg.Vault.Namespace = getEnvString("VAULT_NAMESPACE", "")
	cfg.Vault.SecretsPath = getEnvString("VAULT_SECRETS_PATH", "mentorchat")

	// Telemetry
	cfg.Telemetry.ServiceName = getEnvString("OTEL_SERVICE_NAME", "mentorchat")
	cfg.Telemetry.TracingEnabled = getEnvBool("TRACING_ENABLED", false)
	cfg.Telemetry.MetricsEnabled = getEnvBool("METRICS_ENABLED", true)

	// Logging config
	cfg.Logging.Level = getEnvString("LOG_LEVEL", "info")
	cfg.Logging.Format = getEnvString("LOG_FORMAT", "json")
	cfg.Logging.File = getEnvString("LOG_FILE", "")

	// Cache settings
	cfg.Cache.Enabled = getEnvBool("CACHE_ENABLED", true)
	cfg.Cache.TTL = getEnvDuration("CACHE_TTL", 5*time.Minute)
	cfg.Cache.MaxSize = getEnvInt("CACHE_MAX_SIZE", 1000)
	cfg.Cache.PurgeWindow = getEnvDuration("CACHE_PURGE_WINDOW", 10*time.Minute)

	cfg.OpenAPISchemaPath = getEnvString("OPENAPI_SCHEMA_PATH", "")
	cfg.PersonasFile = getEnvString("PERSONAS_FILE", "")

	return cfg
}

// IsProduction reports whether the service runs with production settings
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Helper functions to read environment variables with default values

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}
