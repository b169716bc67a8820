package config

import (
	"sync"
	"time"
)

// Config is the root configuration for the ClawGate gateway.
type Config struct {
	Gateway   GatewayConfig   `json:"gateway"`
	Security  SecurityConfig  `json:"security"`
	Sandbox   SandboxConfig   `json:"sandbox"`
	Cron      CronConfig      `json:"cron,omitempty"`
	Database  DatabaseConfig  `json:"database,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	mu        sync.RWMutex
}

// GatewayConfig configures the WebSocket/HTTP listener.
type GatewayConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	Token          string   `json:"-"` // from env CLAWGATE_GATEWAY_TOKEN only
	AllowedOrigins []string `json:"allowed_origins,omitempty"`

	// RateLimitRPM bounds RPC calls per connected client.
	// >0 enabled at that RPM, <=0 disabled.
	RateLimitRPM int `json:"rate_limit_rpm,omitempty"`
}

// SecurityConfig groups the command-pipeline knobs.
type SecurityConfig struct {
	RateLimit RateLimitConfig `json:"rate_limit"`
	Injection InjectionConfig `json:"injection"`
	Secrets   SecretsConfig   `json:"secrets"`
	Approval  ApprovalConfig  `json:"approval"`

	// CustomRulesFile points to an optional json5 file of per-caller rule
	// sets, hot-reloaded on change.
	CustomRulesFile string `json:"custom_rules_file,omitempty"`
}

// RateLimitConfig configures the per-user command rate limiter.
// MaxRequests <= 0 disables the limiter.
type RateLimitConfig struct {
	WindowMS    int  `json:"window_ms"`
	MaxRequests int  `json:"max_requests"`
	PerChannel  bool `json:"per_channel,omitempty"`
}

// InjectionConfig configures the prompt-injection detector.
type InjectionConfig struct {
	Sensitivity string `json:"sensitivity,omitempty"` // "low", "medium" (default), "high"
}

// SecretsConfig is the startup value for the secrets detection config.
// Mutable at runtime via security.secrets.configure.
type SecretsConfig struct {
	Mode              string `json:"mode,omitempty"` // "warn", "redact" (default), "block"
	EnableLineNumbers bool   `json:"enable_line_numbers,omitempty"`
	MaxSecretsPerType int    `json:"max_secrets_per_type,omitempty"`
}

// ApprovalConfig configures the human-in-the-loop approval waiter.
type ApprovalConfig struct {
	TimeoutSec int `json:"timeout_sec,omitempty"` // default 300
}

// SandboxConfig configures the per-user execution sandbox manager.
type SandboxConfig struct {
	Provider       string `json:"provider,omitempty"` // provider name; the gateway command always wires the local host-process provider
	APIKey         string `json:"-"`                  // from env CLAWGATE_SANDBOX_API_KEY only
	IdleTimeoutMin int    `json:"idle_timeout_min,omitempty"` // default 50
}

// CronConfig configures the cron scheduler.
type CronConfig struct {
	StorageDir          string `json:"storage_dir,omitempty"`           // default ~/.clawgate/cron
	MaxConcurrent       int    `json:"max_concurrent,omitempty"`        // default 5
	ExecutionTimeoutSec int    `json:"execution_timeout_sec,omitempty"` // default 300
	MaxRetries          int    `json:"max_retries,omitempty"`           // default 3
	BackoffMS           int    `json:"backoff_ms,omitempty"`            // default 60000
}

// DatabaseConfig configures Postgres for managed mode.
// PostgresDSN is NEVER read from config.json (secret) — only from env CLAWGATE_POSTGRES_DSN.
type DatabaseConfig struct {
	PostgresDSN string `json:"-"`
	Mode        string `json:"mode,omitempty"` // "standalone" (default) or "managed"

	// SQLitePath is the standalone audit archive location (default ~/.clawgate/audit.db).
	SQLitePath string `json:"sqlite_path,omitempty"`
}

// IsManagedMode returns true when running against Postgres.
func (c *Config) IsManagedMode() bool {
	return c.Database.Mode == "managed" && c.Database.PostgresDSN != ""
}

// TelemetryConfig configures optional OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled,omitempty"`
	Exporter    string `json:"exporter,omitempty"` // "otlp-grpc", "otlp-http", "stdout"
	Endpoint    string `json:"endpoint,omitempty"`
	ServiceName string `json:"service_name,omitempty"`
	Insecure    bool   `json:"insecure,omitempty"`
}

// ApprovalTimeout returns the configured approval timeout as a duration.
func (c *Config) ApprovalTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sec := c.Security.Approval.TimeoutSec
	if sec <= 0 {
		sec = 300
	}
	return time.Duration(sec) * time.Second
}

// SandboxIdleTimeout returns the configured sandbox idle timeout.
func (c *Config) SandboxIdleTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	min := c.Sandbox.IdleTimeoutMin
	if min <= 0 {
		min = 50
	}
	return time.Duration(min) * time.Minute
}
