package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	pkgRetry "github.com/grantwise/coach-backend/internal/pkg/retry"
	"github.com/joho/godotenv"
)

// Session store backends.
const (
	SessionStorePostgres = "postgres"
	SessionStoreMemory   = "memory"
)

// Config holds the application configuration
type Config struct {
	// Server configuration
	ServerPort int    `env:"SERVER_PORT" envDefault:"8080"`
	APIToken   string `env:"API_TOKEN"`

	// Session store configuration
	SessionStore string        `env:"SESSION_STORE" envDefault:"postgres"`
	SessionTTL   time.Duration `env:"SESSION_TTL" envDefault:"0"`

	// Database configuration (required for the postgres session store)
	DatabaseURL         string        `env:"DATABASE_URL"`
	DBMaxConns          int           `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns          int           `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
	DBHealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`

	// Model selection and developer mode
	GPTModel string `env:"GPT_MODEL" envDefault:"gpt-4"`
	DevMode  bool   `env:"DEV" envDefault:"false"`

	// Retrieval configuration
	TokensPerChunk int `env:"TOKENS_PER_CHUNK" envDefault:"1000"`
	RetrievalTopK  int `env:"RETRIEVAL_TOP_K" envDefault:"4"`

	// External service configurations
	LLMConnectorCfg       LLMConnectorConfig       `envPrefix:"LLM_"`
	EmbeddingConnectorCfg EmbeddingConnectorConfig `envPrefix:"EMBEDDING_"`

	// Logging configuration
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Mock configuration
	EnableMocks bool `env:"ENABLE_MOCKS" envDefault:"false"`

	// Environment (set from flag, not from env var)
	Environment string
}

// LLMConnectorConfig configures the chat-completion provider.
type LLMConnectorConfig struct {
	HTTPClientConfig
	ChatEndpoint string               `env:"CHAT_ENDPOINT" envDefault:"/v1/chat/completions"`
	Retry        pkgRetry.RetryConfig `envPrefix:"RETRY_"`
}

// EmbeddingConnectorConfig configures the embedding provider.
type EmbeddingConnectorConfig struct {
	HTTPClientConfig
	EmbeddingsEndpoint string               `env:"ENDPOINT" envDefault:"/v1/embeddings"`
	Model              string               `env:"MODEL" envDefault:"text-embedding-ada-002"`
	Retry              pkgRetry.RetryConfig `envPrefix:"RETRY_"`
}

// HTTPClientConfig carries shared outbound HTTP client settings.
type HTTPClientConfig struct {
	RequestTimeout        time.Duration `env:"TIMEOUT" envDefault:"120s"`
	ConnTimeout           time.Duration `env:"CONN_TIMEOUT" envDefault:"10s"`
	KeepAlive             time.Duration `env:"KEEP_ALIVE" envDefault:"90s"`
	IdleConnTimeout       time.Duration `env:"IDLE_CONN_TIMEOUT" envDefault:"90s"`
	ResponseHeaderTimeout time.Duration `env:"RESPONSE_HEADER_TIMEOUT" envDefault:"30s"`
	Token                 string        `env:"TOKEN"`
	Url                   string        `env:"SERVICE_URL"`
}

// ServerAddr renders the listen address from the configured port.
func (c *Config) ServerAddr() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}

func getEnvFile(environment string) string {
	switch environment {
	case "local":
		return ".env"
	case "prod":
		return ".env.prod"
	default:
		return ".env." + environment
	}
}

func LoadConfig() (*Config, error) {
	envFlag := flag.String("env", "local", "Environment to run (local, prod, or custom)")
	flag.Parse()

	envFile := getEnvFile(*envFlag)
	// Try to load env file, but don't fail if it's missing.
	// In containerized/prod environments variables are usually set externally.
	if err := godotenv.Load(envFile); err != nil {
		fmt.Printf("Warning: could not load %s file (this is ok if env vars are set externally): %v\n", envFile, err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	cfg.Environment = *envFlag

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func validateConfig(cfg *Config) error {
	switch cfg.SessionStore {
	case SessionStorePostgres:
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when SESSION_STORE=postgres")
		}
	case SessionStoreMemory:
	default:
		return fmt.Errorf("SESSION_STORE must be %q or %q, got %q",
			SessionStorePostgres, SessionStoreMemory, cfg.SessionStore)
	}

	if cfg.ServerPort < 1 || cfg.ServerPort > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", cfg.ServerPort)
	}

	if cfg.DBMaxConns < 1 || cfg.DBMaxConns > 200 {
		return fmt.Errorf("DB_MAX_CONNS must be between 1 and 200, got %d", cfg.DBMaxConns)
	}

	if cfg.DBMinConns < 0 || cfg.DBMinConns > cfg.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS(%d), got %d",
			cfg.DBMaxConns, cfg.DBMinConns)
	}

	if cfg.TokensPerChunk < 1 {
		return fmt.Errorf("TOKENS_PER_CHUNK must be positive, got %d", cfg.TokensPerChunk)
	}

	if cfg.RetrievalTopK < 1 {
		return fmt.Errorf("RETRIEVAL_TOP_K must be positive, got %d", cfg.RetrievalTopK)
	}

	if !cfg.EnableMocks {
		if cfg.LLMConnectorCfg.Url == "" {
			return fmt.Errorf("LLM_SERVICE_URL is required unless ENABLE_MOCKS=true")
		}
		if cfg.EmbeddingConnectorCfg.Url == "" {
			return fmt.Errorf("EMBEDDING_SERVICE_URL is required unless ENABLE_MOCKS=true")
		}
	}

	return nil
}
