// Package config provides configuration loading for the modforge assembly
// and crash-analysis service.
//
// Configuration is loaded from environment variables with sensible defaults.
// This package supports server, LLM, store, auth, registry, quota, and
// observability settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the complete modforge configuration.
type Config struct {
	Server        ServerConfig
	LLM           LLMConfig
	Store         StoreConfig
	Auth          AuthConfig
	Registry      RegistryConfig
	Quota         QuotaConfig
	Observability ObservabilityConfig
	Production    ProductionConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LLMConfig holds the external language-model gateway configuration.
type LLMConfig struct {
	APIKey             Secret  `koanf:"api_key"`
	BaseURL            string  `koanf:"base_url"`
	Model              string  `koanf:"model"`
	PriceInputPerMil   float64 `koanf:"price_input_per_million"`
	PriceOutputPerMil  float64 `koanf:"price_output_per_million"`
	RateLimitPerSecond float64 `koanf:"rate_limit_per_second"`
	RateLimitBurst     int     `koanf:"rate_limit_burst"`
}

// StoreConfig holds the mod-store backend configuration.
type StoreConfig struct {
	URL string `koanf:"url"`
	Key Secret `koanf:"key"`
}

// AuthConfig holds bearer-token verification configuration.
type AuthConfig struct {
	JWTAudience string `koanf:"jwt_audience"`
	JWTSecret   Secret `koanf:"jwt_secret"`
}

// RegistryConfig holds the external mod-registry client configuration.
type RegistryConfig struct {
	BaseURL string `koanf:"base_url"`
}

// QuotaConfig holds request-budget and dedup-cache configuration.
type QuotaConfig struct {
	DedupTTL               time.Duration `koanf:"dedup_ttl"`
	RequestBudgetAssembly  time.Duration `koanf:"request_budget_assembly"`
	RequestBudgetCrash     time.Duration `koanf:"request_budget_crash"`
	UseV3ArchitectureByDefault bool      `koanf:"use_v3_default"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
}

// Load loads configuration from environment variables with defaults.
//
// Environment variables (see §6 of the build specification):
//   - LLM_API_KEY, LLM_BASE_URL
//   - STORE_URL, STORE_KEY
//   - JWT_AUDIENCE, JWT_SECRET
//   - MOD_REGISTRY_BASE_URL
//   - SERVER_PORT
//   - DEDUP_TTL_SECONDS
//   - REQUEST_BUDGET_ASSEMBLY_S, REQUEST_BUDGET_CRASH_S
//   - USE_V3_DEFAULT
//
// Further variables with built-in defaults:
//   - SERVER_SHUTDOWN_TIMEOUT
//   - LLM_MODEL, LLM_PRICE_INPUT_PER_MILLION, LLM_PRICE_OUTPUT_PER_MILLION
//   - LLM_RATE_LIMIT_PER_SECOND, LLM_RATE_LIMIT_BURST
//   - OTEL_ENABLE, OTEL_SERVICE_NAME
//   - MODFORGE_PRODUCTION_MODE, MODFORGE_LOCAL_MODE (see LoadProductionConfig)
//
// Example:
//
//	cfg := config.Load()
//	fmt.Println("Server port:", cfg.Server.Port)
func Load() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvInt("SERVER_PORT", 8080),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		LLM: LLMConfig{
			APIKey:             Secret(getEnvString("LLM_API_KEY", "")),
			BaseURL:            getEnvString("LLM_BASE_URL", ""),
			Model:              getEnvString("LLM_MODEL", "gpt-4o-mini"),
			PriceInputPerMil:   getEnvFloat("LLM_PRICE_INPUT_PER_MILLION", 0.15),
			PriceOutputPerMil:  getEnvFloat("LLM_PRICE_OUTPUT_PER_MILLION", 0.60),
			RateLimitPerSecond: getEnvFloat("LLM_RATE_LIMIT_PER_SECOND", 2),
			RateLimitBurst:     getEnvInt("LLM_RATE_LIMIT_BURST", 4),
		},
		Store: StoreConfig{
			URL: getEnvString("STORE_URL", ""),
			Key: Secret(getEnvString("STORE_KEY", "")),
		},
		Auth: AuthConfig{
			JWTAudience: getEnvString("JWT_AUDIENCE", ""),
			JWTSecret:   Secret(getEnvString("JWT_SECRET", "")),
		},
		Registry: RegistryConfig{
			BaseURL: getEnvString("MOD_REGISTRY_BASE_URL", ""),
		},
		Quota: QuotaConfig{
			DedupTTL:                   getEnvDuration("DEDUP_TTL_SECONDS", time.Hour),
			RequestBudgetAssembly:      getEnvDuration("REQUEST_BUDGET_ASSEMBLY_S", 180*time.Second),
			RequestBudgetCrash:         getEnvDuration("REQUEST_BUDGET_CRASH_S", 120*time.Second),
			UseV3ArchitectureByDefault: getEnvBool("USE_V3_DEFAULT", false),
		},
		Observability: ObservabilityConfig{
			EnableTelemetry: getEnvBool("OTEL_ENABLE", true),
			ServiceName:     getEnvString("OTEL_SERVICE_NAME", "modforge"),
		},
	}

	cfg.Production = LoadProductionConfig()

	return cfg
}

// Validate validates the configuration, failing fast on any unset required
// value per §6 ("Unset required values fail startup").
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if !c.LLM.APIKey.IsSet() {
		return errors.New("LLM_API_KEY is required")
	}
	if err := validateHTTPURL("LLM_BASE_URL", c.LLM.BaseURL); err != nil {
		return err
	}
	if c.LLM.Model == "" {
		return errors.New("LLM_MODEL is required")
	}
	if c.LLM.RateLimitPerSecond <= 0 || c.LLM.RateLimitBurst <= 0 {
		return errors.New("LLM rate limit and burst must be positive")
	}
	if err := validateHTTPURL("STORE_URL", c.Store.URL); err != nil {
		return err
	}
	if !c.Store.Key.IsSet() {
		return errors.New("STORE_KEY is required")
	}
	if c.Auth.JWTAudience == "" {
		return errors.New("JWT_AUDIENCE is required")
	}
	if !c.Auth.JWTSecret.IsSet() {
		return errors.New("JWT_SECRET is required")
	}
	if err := validateHTTPURL("MOD_REGISTRY_BASE_URL", c.Registry.BaseURL); err != nil {
		return err
	}
	if c.Quota.DedupTTL <= 0 {
		return errors.New("dedup TTL must be positive")
	}
	if c.Quota.RequestBudgetAssembly <= 0 || c.Quota.RequestBudgetCrash <= 0 {
		return errors.New("request budgets must be positive")
	}
	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}
	return nil
}

// validateHTTPURL rejects empty values and anything not using the http(s)
// scheme, guarding against config-driven SSRF to file:// or other schemes.
func validateHTTPURL(field, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", field)
	}
	if !strings.HasPrefix(value, "http://") && !strings.HasPrefix(value, "https://") {
		return fmt.Errorf("%s must be an http(s) URL, got %q", field, value)
	}
	return nil
}

// Helper functions for environment variable parsing

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
