package config

import (
	"os"
	"testing"
)

func validEnv() map[string]string {
	return map[string]string{
		"LLM_API_KEY":           "sk-test",
		"LLM_BASE_URL":          "https://llm.example.com",
		"STORE_URL":             "https://store.example.com",
		"STORE_KEY":             "store-secret",
		"JWT_AUDIENCE":          "modforge-api",
		"JWT_SECRET":            "jwt-secret",
		"MOD_REGISTRY_BASE_URL": "https://registry.example.com",
	}
}

func setEnv(env map[string]string) {
	os.Clearenv()
	for k, v := range env {
		os.Setenv(k, v)
	}
}

func TestLoad_ValidatesLLMBaseURLScheme(t *testing.T) {
	defer os.Clearenv()

	invalidURLs := []string{
		"javascript:alert(1)",
		"file:///etc/passwd",
		"ftp://malicious.example.com",
		"llm.example.com",
	}

	for _, url := range invalidURLs {
		t.Run(url, func(t *testing.T) {
			env := validEnv()
			env["LLM_BASE_URL"] = url
			setEnv(env)

			cfg := Load()
			if err := cfg.Validate(); err == nil {
				t.Errorf("Expected validation error for malicious LLM_BASE_URL: %s", url)
			}
		})
	}
}

func TestLoad_ValidatesRegistryBaseURLScheme(t *testing.T) {
	defer os.Clearenv()

	invalidURLs := []string{
		"javascript:alert(1)",
		"file:///etc/passwd",
	}

	for _, url := range invalidURLs {
		t.Run(url, func(t *testing.T) {
			env := validEnv()
			env["MOD_REGISTRY_BASE_URL"] = url
			setEnv(env)

			cfg := Load()
			if err := cfg.Validate(); err == nil {
				t.Errorf("Expected validation error for invalid MOD_REGISTRY_BASE_URL: %s", url)
			}
		})
	}
}

func TestLoad_AllowsValidConfig(t *testing.T) {
	defer os.Clearenv()

	setEnv(validEnv())

	cfg := Load()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Valid configuration rejected: %v", err)
	}
}
