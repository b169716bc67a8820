package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:         "0.0.0.0",
			Port:         18890,
			RateLimitRPM: 60,
		},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{
				WindowMS:    60000,
				MaxRequests: 30,
			},
			Injection: InjectionConfig{Sensitivity: "medium"},
			Secrets: SecretsConfig{
				Mode:              "redact",
				MaxSecretsPerType: 10,
			},
			Approval: ApprovalConfig{TimeoutSec: 300},
		},
		Sandbox: SandboxConfig{
			IdleTimeoutMin: 50,
		},
		Cron: CronConfig{
			StorageDir:          "~/.clawgate/cron",
			MaxConcurrent:       5,
			ExecutionTimeoutSec: 300,
			MaxRetries:          3,
			BackoffMS:           60000,
		},
		Database: DatabaseConfig{
			SQLitePath: "~/.clawgate/audit.db",
		},
	}
}

// Load reads config from a JSON file, then overlays env vars.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values; secrets are env-only.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	envStr("CLAWGATE_GATEWAY_TOKEN", &c.Gateway.Token)
	envStr("CLAWGATE_HOST", &c.Gateway.Host)
	if v := os.Getenv("CLAWGATE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Gateway.Port = port
		}
	}
	if v := os.Getenv("CLAWGATE_ALLOWED_ORIGINS"); v != "" {
		c.Gateway.AllowedOrigins = strings.Split(v, ",")
	}

	// Sandbox provider credentials are never persisted.
	envStr("CLAWGATE_SANDBOX_API_KEY", &c.Sandbox.APIKey)
	envStr("CLAWGATE_SANDBOX_PROVIDER", &c.Sandbox.Provider)
	if v := os.Getenv("CLAWGATE_SANDBOX_IDLE_MIN"); v != "" {
		if min, err := strconv.Atoi(v); err == nil && min > 0 {
			c.Sandbox.IdleTimeoutMin = min
		}
	}

	envStr("CLAWGATE_SECRETS_MODE", &c.Security.Secrets.Mode)
	envStr("CLAWGATE_INJECTION_SENSITIVITY", &c.Security.Injection.Sensitivity)
	envStr("CLAWGATE_CUSTOM_RULES_FILE", &c.Security.CustomRulesFile)

	envStr("CLAWGATE_CRON_DIR", &c.Cron.StorageDir)

	// Database
	envStr("CLAWGATE_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("CLAWGATE_MODE", &c.Database.Mode)
	envStr("CLAWGATE_SQLITE_PATH", &c.Database.SQLitePath)

	// Telemetry
	envStr("CLAWGATE_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("CLAWGATE_TELEMETRY_EXPORTER", &c.Telemetry.Exporter)
	envStr("CLAWGATE_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("CLAWGATE_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("CLAWGATE_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}
}

// Save writes the config to a JSON file.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
