package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Supported LLM providers.
const (
	ProviderArk    = "ark"
	ProviderOpenAI = "openai"
	ProviderVolc   = "volc"
)

// MinWorkflowSteps is the smallest usable step ceiling: the creation workflow always runs
// outline, character and scene.
const MinWorkflowSteps = 3

// Config holds all application configuration.
type Config struct {
	Addr        string
	LogLevel    string
	LogFile     string // empty logs to stderr only
	DatabaseURL string // empty selects the in-memory store

	LLMProvider     string
	LLMTimeout      time.Duration
	LLMMaxRetries   int
	LLMRetryInitial time.Duration
	LLMRetryMax     time.Duration

	ArkAPIKey  string
	ArkModel   string
	ArkRegion  string
	ArkBaseURL string
	ArkMock    bool

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	WorkflowMaxSteps int

	JWTSecret        string
	JWTRefreshSecret string
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Addr:        getEnv("ADDR", ":8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFile:     getEnv("LOG_FILE", ""),
		DatabaseURL: getEnv("DATABASE_URL", "./data/storyforge.db"),

		LLMProvider:     strings.ToLower(getEnv("LLM_PROVIDER", ProviderArk)),
		LLMTimeout:      getEnvDuration("LLM_TIMEOUT", 60*time.Second),
		LLMMaxRetries:   getEnvInt("LLM_MAX_RETRIES", 2),
		LLMRetryInitial: getEnvDuration("LLM_RETRY_INITIAL", 500*time.Millisecond),
		LLMRetryMax:     getEnvDuration("LLM_RETRY_MAX", 5*time.Second),

		ArkAPIKey:  getEnv("ARK_API_KEY", ""),
		ArkModel:   getEnv("ARK_MODEL", ""),
		ArkRegion:  getEnv("ARK_REGION", ""),
		ArkBaseURL: getEnv("ARK_BASE_URL", ""),
		ArkMock:    getEnvBool("ARK_MOCK", false),

		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),

		WorkflowMaxSteps: getEnvInt("WORKFLOW_MAX_STEPS", 10),

		JWTSecret:        getEnv("JWT_SECRET_KEY", ""),
		JWTRefreshSecret: getEnv("JWT_REFRESH_SECRET_KEY", ""),
		AccessTokenTTL:   time.Duration(getEnvInt("ACCESS_TOKEN_EXPIRE_MINUTES", 30)) * time.Minute,
		RefreshTokenTTL:  time.Duration(getEnvInt("REFRESH_TOKEN_EXPIRE_DAYS", 7)) * 24 * time.Hour,
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("ADDR cannot be empty")
	}
	switch c.LLMProvider {
	case ProviderArk:
		if c.ArkAPIKey == "" || c.ArkModel == "" {
			return fmt.Errorf("ARK_API_KEY and ARK_MODEL are required for provider %q", c.LLMProvider)
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for provider %q", c.LLMProvider)
		}
	case ProviderVolc:
		if !c.ArkMock && (c.ArkAPIKey == "" || c.ArkModel == "") {
			return fmt.Errorf("ARK_API_KEY and ARK_MODEL are required unless ARK_MOCK is set")
		}
	default:
		return fmt.Errorf("LLM_PROVIDER must be one of ark, openai, volc; got %q", c.LLMProvider)
	}
	if c.LLMTimeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT must be > 0")
	}
	if c.LLMMaxRetries < 0 {
		return fmt.Errorf("LLM_MAX_RETRIES must be >= 0")
	}
	if c.WorkflowMaxSteps < MinWorkflowSteps {
		return fmt.Errorf("WORKFLOW_MAX_STEPS must be >= %d, got %d", MinWorkflowSteps, c.WorkflowMaxSteps)
	}
	if c.JWTSecret == "" || c.JWTRefreshSecret == "" {
		return fmt.Errorf("JWT_SECRET_KEY and JWT_REFRESH_SECRET_KEY cannot be empty")
	}
	if c.JWTSecret == c.JWTRefreshSecret {
		return fmt.Errorf("JWT_SECRET_KEY and JWT_REFRESH_SECRET_KEY must differ")
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return fmt.Errorf("token lifetimes must be > 0")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
