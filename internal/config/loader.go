// Package config provides configuration loading for modforge.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB
)

// ProductionConfig holds deployment-mode flags derived from environment
// toggles rather than the YAML/env config layers above.
type ProductionConfig struct {
	Enabled               bool
	LocalModeAcknowledged bool
	RequireAuthentication bool
	RequireTLS            bool
}

// LoadWithFile loads configuration from a YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables named SECTION_FIELD (SERVER_HTTP_PORT,
//     LLM_API_KEY, etc.; see the mapping below)
//  2. YAML config file (~/.config/modforge/config.yaml)
//  3. Hardcoded defaults
//
// The configPath parameter specifies the YAML file to load. If empty, uses
// the default path.
//
// # Security Considerations
//
// File Permissions: Configuration file MUST have 0600 permissions (owner
// read/write only). Files with weaker permissions are rejected.
//
// Path Validation: Only configuration files in allowed directories can be
// loaded: ~/.config/modforge/ or /etc/modforge/. Absolute paths outside
// these directories are rejected to prevent path traversal attacks.
//
// File Size Limit: Configuration files larger than 1MB are rejected.
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "modforge", "config.yaml")
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}

		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Environment variables use underscore separator and are uppercased.
	// Split on the first underscore only: section.field pattern.
	//
	//	SERVER_HTTP_PORT -> server.http_port
	//	LLM_API_KEY       -> llm.api_key
	//	QUOTA_DEDUP_TTL   -> quota.dedup_ttl
	if err := k.Load(env.Provider("", ".", func(s string) string {
		lower := strings.ToLower(s)
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// EnsureConfigDir creates the modforge config directory if it doesn't exist.
// Created with 0700 permissions (owner read/write/execute only).
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(home, ".config", "modforge")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}

	return nil
}

// validateConfigPath checks if path is in allowed directories.
// This validation runs even if the file doesn't exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		// Allows validation of paths that don't exist yet.
		resolvedPath = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	allowedDirs := []string{
		filepath.Join(home, ".config", "modforge"),
		"/etc/modforge",
	}

	allowed := false
	for _, dir := range allowedDirs {
		if resolvedPath == dir || strings.HasPrefix(resolvedPath, dir+string(filepath.Separator)) {
			allowed = true
			break
		}
	}

	if !allowed {
		return fmt.Errorf("config file must be in ~/.config/modforge/ or /etc/modforge/")
	}

	return nil
}

// validateConfigFileProperties checks file permissions and size.
// Takes FileInfo from an already-opened file descriptor to avoid TOCTOU race.
func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "modforge"
	}

	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.PriceInputPerMil == 0 {
		cfg.LLM.PriceInputPerMil = 0.15
	}
	if cfg.LLM.PriceOutputPerMil == 0 {
		cfg.LLM.PriceOutputPerMil = 0.60
	}
	if cfg.LLM.RateLimitPerSecond == 0 {
		cfg.LLM.RateLimitPerSecond = 2
	}
	if cfg.LLM.RateLimitBurst == 0 {
		cfg.LLM.RateLimitBurst = 4
	}

	if cfg.Quota.DedupTTL == 0 {
		cfg.Quota.DedupTTL = time.Hour
	}
	if cfg.Quota.RequestBudgetAssembly == 0 {
		cfg.Quota.RequestBudgetAssembly = 180 * time.Second
	}
	if cfg.Quota.RequestBudgetCrash == 0 {
		cfg.Quota.RequestBudgetCrash = 120 * time.Second
	}
}

// LoadProductionConfig loads deployment-mode flags from environment toggles.
func LoadProductionConfig() ProductionConfig {
	prodMode := os.Getenv("MODFORGE_PRODUCTION_MODE") == "1"
	localMode := os.Getenv("MODFORGE_LOCAL_MODE") == "1"

	return ProductionConfig{
		Enabled:               prodMode,
		LocalModeAcknowledged: localMode,
		RequireAuthentication: prodMode && !localMode,
		RequireTLS:            prodMode && !localMode,
	}
}
