// Package config centralizes runtime configuration for the honeypot.
// Everything is environment-driven with sensible defaults; an optional YAML
// file overlays the environment for deployments that prefer files.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LLMProvider defines the backend LLM service type
type LLMProvider string

const (
	ProviderNone       LLMProvider = "none"       // No LLM, canned fallback replies only
	ProviderOllama     LLMProvider = "ollama"     // Local Ollama server
	ProviderOpenRouter LLMProvider = "openrouter" // OpenRouter (default, has free tier)
	ProviderGroq       LLMProvider = "groq"       // Groq (high-speed inference)
	ProviderCustom     LLMProvider = "custom"     // Custom OpenAI-compatible endpoint
)

// Config holds global settings for the decoy honeypot.
// All settings can be configured via environment variables or programmatically.
type Config struct {
	// === Core Settings ===
	Port   string // HTTP listen port (default: "8080")
	APIKey string // API key required on every request (env: DECOY_API_KEY)

	// === Session Store ===
	RedisURL          string        // Fast tier connection URL; empty disables redis
	SessionTTL        time.Duration // Sliding idle expiry for working copies (default: 1 hour)
	MirrorConcurrency int           // Max in-flight durable mirror writes (default: 64)

	// === Durable Tier ===
	PostgresDSN string // Empty disables the durable tier

	// === Evaluation Callback ===
	CallbackURL       string // Empty uses the built-in evaluation endpoint
	CallbackQueueSize int    // Buffered payloads awaiting delivery (default: 64)

	// === LLM Provider Configuration ===
	// These settings control the decoy persona's reply generation.
	LLMProvider    LLMProvider // Which LLM service to use: "openrouter", "ollama", "groq", "custom", "none"
	LLMAPIKey      string      // API key for cloud providers (env: DECOY_LLM_API_KEY or provider-specific)
	LLMModel       string      // Model identifier; empty uses the provider default
	LLMBaseURL     string      // Custom base URL for self-hosted or custom providers
	LLMTemperature float64     // Reply temperature (default: 0.8, varied enough to read as human)

	// === Pattern Tuning ===
	KeywordFile string // Optional YAML file of extra per-language suspicious keywords
}

// NewDefaultConfig creates a Config with sensible defaults.
// All settings can be overridden via environment variables, and an optional
// YAML file named by DECOY_CONFIG_FILE overlays the result.
func NewDefaultConfig() *Config {
	cfg := &Config{
		Port:   GetEnv("DECOY_PORT", "8080"),
		APIKey: GetEnv("DECOY_API_KEY", ""),

		RedisURL:          GetEnv("DECOY_REDIS_URL", "redis://localhost:6379/0"),
		SessionTTL:        GetEnvDuration("DECOY_SESSION_TTL", time.Hour),
		MirrorConcurrency: GetEnvInt("DECOY_MIRROR_CONCURRENCY", 64),

		PostgresDSN: GetEnv("DECOY_POSTGRES_DSN", ""),

		CallbackURL:       GetEnv("DECOY_CALLBACK_URL", ""),
		CallbackQueueSize: GetEnvInt("DECOY_CALLBACK_QUEUE", 64),

		LLMProvider:    detectLLMProvider(),
		LLMAPIKey:      GetEnv("DECOY_LLM_API_KEY", GetEnv("GROQ_API_KEY", os.Getenv("OPENROUTER_API_KEY"))),
		LLMModel:       GetEnv("DECOY_LLM_MODEL", ""),
		LLMBaseURL:     GetEnv("DECOY_LLM_BASE_URL", ""),
		LLMTemperature: GetEnvFloat("DECOY_LLM_TEMPERATURE", 0.8),

		KeywordFile: GetEnv("DECOY_KEYWORD_FILE", ""),
	}

	if path := os.Getenv("DECOY_CONFIG_FILE"); path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			log.Printf("[CONFIG] failed to apply %s: %v", path, err)
		}
	}

	return cfg
}

// NewLocalConfig creates a Config optimized for local-only operation: Ollama
// for replies, no durable tier, no cloud keys needed.
func NewLocalConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.LLMProvider = ProviderOllama
	cfg.LLMBaseURL = "http://localhost:11434/v1"
	cfg.LLMModel = "qwen2.5:7b" // Good local model
	cfg.LLMAPIKey = ""          // Not needed for Ollama
	cfg.PostgresDSN = ""
	return cfg
}

// fileConfig mirrors Config for the YAML overlay. Only fields present in the
// file override the environment-derived values.
type fileConfig struct {
	Port              *string  `yaml:"port"`
	APIKey            *string  `yaml:"apiKey"`
	RedisURL          *string  `yaml:"redisUrl"`
	SessionTTL        *string  `yaml:"sessionTtl"`
	MirrorConcurrency *int     `yaml:"mirrorConcurrency"`
	PostgresDSN       *string  `yaml:"postgresDsn"`
	CallbackURL       *string  `yaml:"callbackUrl"`
	CallbackQueueSize *int     `yaml:"callbackQueueSize"`
	LLMProvider       *string  `yaml:"llmProvider"`
	LLMAPIKey         *string  `yaml:"llmApiKey"`
	LLMModel          *string  `yaml:"llmModel"`
	LLMBaseURL        *string  `yaml:"llmBaseUrl"`
	LLMTemperature    *float64 `yaml:"llmTemperature"`
	KeywordFile       *string  `yaml:"keywordFile"`
}

// ApplyFile overlays settings from a YAML file onto the config. Fields
// absent from the file keep their current values.
func (c *Config) ApplyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	if fc.Port != nil {
		c.Port = *fc.Port
	}
	if fc.APIKey != nil {
		c.APIKey = *fc.APIKey
	}
	if fc.RedisURL != nil {
		c.RedisURL = *fc.RedisURL
	}
	if fc.SessionTTL != nil {
		d, err := time.ParseDuration(*fc.SessionTTL)
		if err != nil {
			return fmt.Errorf("parse sessionTtl: %w", err)
		}
		c.SessionTTL = d
	}
	if fc.MirrorConcurrency != nil {
		c.MirrorConcurrency = *fc.MirrorConcurrency
	}
	if fc.PostgresDSN != nil {
		c.PostgresDSN = *fc.PostgresDSN
	}
	if fc.CallbackURL != nil {
		c.CallbackURL = *fc.CallbackURL
	}
	if fc.CallbackQueueSize != nil {
		c.CallbackQueueSize = *fc.CallbackQueueSize
	}
	if fc.LLMProvider != nil {
		c.LLMProvider = LLMProvider(*fc.LLMProvider)
	}
	if fc.LLMAPIKey != nil {
		c.LLMAPIKey = *fc.LLMAPIKey
	}
	if fc.LLMModel != nil {
		c.LLMModel = *fc.LLMModel
	}
	if fc.LLMBaseURL != nil {
		c.LLMBaseURL = *fc.LLMBaseURL
	}
	if fc.LLMTemperature != nil {
		c.LLMTemperature = *fc.LLMTemperature
	}
	if fc.KeywordFile != nil {
		c.KeywordFile = *fc.KeywordFile
	}
	return nil
}

func detectLLMProvider() LLMProvider {
	// Check explicit provider setting first
	if p := os.Getenv("DECOY_LLM_PROVIDER"); p != "" {
		return LLMProvider(p)
	}
	// Auto-detect based on available keys
	if os.Getenv("GROQ_API_KEY") != "" {
		return ProviderGroq
	}
	if os.Getenv("OPENROUTER_API_KEY") != "" || os.Getenv("DECOY_LLM_API_KEY") != "" {
		return ProviderOpenRouter
	}
	// No cloud keys: replies fall back to the canned rotation
	return ProviderNone
}

// Helper functions for environment variable parsing
// These are exported for use by other packages

// GetEnv returns the value of an environment variable or a default value.
func GetEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// GetEnvBool returns the boolean value of an environment variable or a default value.
func GetEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

// GetEnvFloat returns the float64 value of an environment variable or a default value.
func GetEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

// GetEnvInt returns the integer value of an environment variable or a default value.
func GetEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

// GetEnvDuration returns the duration value of an environment variable or a
// default value. Accepts Go duration syntax ("90s", "1h30m").
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return defaultValue
}

// RequiredSecret defines a required environment variable for startup validation
type RequiredSecret struct {
	Name        string // Environment variable name
	Description string // Human-readable description
	Production  bool   // Required in production only (false = required always)
}

// CriticalSecrets returns the list of secrets required for the honeypot to operate
func CriticalSecrets() []RequiredSecret {
	return []RequiredSecret{
		// Required in production for API authentication
		{Name: "DECOY_API_KEY", Description: "API key for honeypot authentication", Production: true},
	}
}

// Validate checks that all required configuration is present.
// In production mode, this will return an error if critical secrets are missing.
// In development mode, it logs warnings but allows startup for local testing.
func (c *Config) Validate() error {
	env := strings.ToLower(os.Getenv("DECOY_ENV"))
	isProduction := env == "production" || env == "prod"

	var missing []string
	var warnings []string

	for _, secret := range CriticalSecrets() {
		value := os.Getenv(secret.Name)
		if value != "" {
			continue
		}
		if secret.Production && !isProduction {
			warnings = append(warnings, secret.Name+" ("+secret.Description+")")
		} else {
			missing = append(missing, secret.Name+" ("+secret.Description+")")
		}
	}

	if c.LLMTemperature < 0 || c.LLMTemperature > 2 {
		missing = append(missing, fmt.Sprintf("DECOY_LLM_TEMPERATURE (must be in [0, 2], got %v)", c.LLMTemperature))
	}
	if c.SessionTTL <= 0 {
		missing = append(missing, "DECOY_SESSION_TTL (must be positive)")
	}

	for _, w := range warnings {
		log.Printf("[STARTUP] Warning: Missing optional secret: %s", w)
	}

	if len(missing) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// MustValidate calls Validate and fatally exits if validation fails.
// Call this at startup before starting the server.
func (c *Config) MustValidate() {
	if err := c.Validate(); err != nil {
		log.Fatalf("[STARTUP] FATAL: Configuration validation failed: %v", err)
	}
	log.Println("[STARTUP] Configuration validated successfully")
}
