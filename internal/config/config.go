// Package config provides environment configuration for the gateway server
// and the chat client.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the gateway server.
type Config struct {
	// Server settings
	ServerPort         string        `env:"PORT" envDefault:"8080"`
	ServerReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"30s"`
	ServerWriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Storage
	DatabasePath string `env:"DATABASE_PATH" envDefault:"chatbot.db"`

	// Live updates: memory, redis or nats
	LiveBackend string `env:"LIVE_BACKEND" envDefault:"memory"`
	RedisAddr   string `env:"REDIS_ADDR" envDefault:"localhost:6379"`

	// NATS settings
	NATSURL      string `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	NATSCAFile   string `env:"NATS_CA_FILE"`
	NATSCertFile string `env:"NATS_CERT_FILE"`
	NATSKeyFile  string `env:"NATS_KEY_FILE"`
	NATSToken    string `env:"NATS_TOKEN"`

	// JWT settings
	JWTSecret string `env:"JWT_SECRET" envDefault:"development-secret-change-in-production"`

	// Inference: workflow or llm
	InferenceBackend string        `env:"INFERENCE_BACKEND" envDefault:"workflow"`
	WorkflowURL      string        `env:"WORKFLOW_URL"`
	WorkflowSecret   string        `env:"WORKFLOW_SECRET"`
	WorkflowTimeout  time.Duration `env:"WORKFLOW_TIMEOUT" envDefault:"60s"`

	// LLM settings
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL   string `env:"OPENAI_BASE_URL"`
	DefaultLLM      string `env:"DEFAULT_LLM" envDefault:"anthropic"`
	LLMModel        string `env:"LLM_MODEL"`
	HistoryLimit    int    `env:"LLM_HISTORY_LIMIT" envDefault:"50"`

	// CORS
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"https://*,http://*"`

	// Rate limiting
	RateLimitRequests int           `env:"RATE_LIMIT_REQUESTS" envDefault:"60"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Tracing
	TracingEndpoint string `env:"TRACING_ENDPOINT" envDefault:"localhost:4318"`
	TracingEnabled  bool   `env:"TRACING_ENABLED" envDefault:"false"`
}

// Load reads configuration from .env files and environment variables.
func Load() (*Config, error) {
	LoadEnvFiles()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.LiveBackend {
	case "memory", "redis", "nats":
	default:
		return fmt.Errorf("LIVE_BACKEND must be one of memory, redis, nats (got %q)", c.LiveBackend)
	}

	switch c.InferenceBackend {
	case "workflow":
		if strings.TrimSpace(c.WorkflowURL) == "" {
			return fmt.Errorf("WORKFLOW_URL is required when INFERENCE_BACKEND is workflow")
		}
	case "llm":
		if c.AnthropicAPIKey == "" && c.OpenAIAPIKey == "" && c.OpenAIBaseURL == "" {
			return fmt.Errorf("an LLM API key or OPENAI_BASE_URL is required when INFERENCE_BACKEND is llm")
		}
	default:
		return fmt.Errorf("INFERENCE_BACKEND must be workflow or llm (got %q)", c.InferenceBackend)
	}

	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 50
	}
	return nil
}

// LoadEnvFiles loads .env files from the working directory and its parent.
// Variables already present in the environment win.
func LoadEnvFiles() {
	for _, path := range []string{".env", "../.env"} {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}

// LLMProvider picks the LLM provider for the llm inference backend. An
// OPENAI_BASE_URL selects an OpenAI-compatible endpoint; otherwise DEFAULT_LLM
// wins when its key is set, falling back to whichever key is present.
func (c *Config) LLMProvider() (provider, apiKey string) {
	switch {
	case c.OpenAIBaseURL != "":
		return "compatible", c.OpenAIAPIKey
	case c.DefaultLLM == "openai" && c.OpenAIAPIKey != "":
		return "openai", c.OpenAIAPIKey
	case c.AnthropicAPIKey != "":
		return "anthropic", c.AnthropicAPIKey
	default:
		return "openai", c.OpenAIAPIKey
	}
}
