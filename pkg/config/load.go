package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "KAGEFORGE_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// Environment variables are not consulted; use LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention KAGEFORGE_SECTION_FIELD (e.g., KAGEFORGE_SERVER_LISTEN_ADDRESS)
// and always take precedence over the file.
//
// Provider fields are overridden with KAGEFORGE_PROVIDER_<NAME>_<FIELD>, where
// NAME is the provider name upper-cased with dashes replaced by underscores.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML and applies defaults without validating.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	envString("SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	envDuration("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	// Routing overrides
	envString("ROUTING_STRATEGY", &cfg.Routing.Strategy)
	envInt("ROUTING_MAX_FAILOVER_ATTEMPTS", &cfg.Routing.MaxFailoverAttempts)

	// Breaker overrides
	envInt("BREAKER_FAILURE_THRESHOLD", &cfg.Breaker.FailureThreshold)
	envDuration("BREAKER_OPEN_DURATION", &cfg.Breaker.OpenDuration)
	envInt("BREAKER_HALF_OPEN_PROBE_LIMIT", &cfg.Breaker.HalfOpenProbeLimit)

	// Admission overrides
	envInt("ADMISSION_MAX_CONCURRENT", &cfg.Admission.MaxConcurrent)
	envString("ADMISSION_MODE", &cfg.Admission.Mode)
	envInt("ADMISSION_QUEUE_SIZE", &cfg.Admission.QueueSize)

	// Cache overrides
	if val := os.Getenv(EnvPrefix + "CACHE_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Cache.Enabled = &b
		}
	}
	envString("CACHE_HIT_USAGE_POLICY", &cfg.Cache.HitUsagePolicy)
	envBool("CACHE_PERSISTENT_ENABLED", &cfg.Cache.Persistent.Enabled)
	envString("CACHE_PERSISTENT_PATH", &cfg.Cache.Persistent.Path)
	envBool("CACHE_REMOTE_ENABLED", &cfg.Cache.Remote.Enabled)
	envString("CACHE_REMOTE_DSN", &cfg.Cache.Remote.DSN)
	envBool("CACHE_SIMILARITY_ENABLED", &cfg.Cache.Similarity.Enabled)
	envFloat("CACHE_SIMILARITY_THRESHOLD", &cfg.Cache.Similarity.Threshold)

	// Budget overrides
	envFloat("BUDGET_DAILY", &cfg.Budget.Daily)
	envFloat("BUDGET_MONTHLY", &cfg.Budget.Monthly)
	envFloat("BUDGET_PER_USER_DAILY", &cfg.Budget.PerUserDaily)
	envFloat("BUDGET_ALERT_THRESHOLD", &cfg.Budget.AlertThreshold)
	envString("BUDGET_TIMEZONE", &cfg.Budget.Timezone)

	// Ledger overrides
	envString("LEDGER_BACKEND", &cfg.Ledger.Backend)
	envString("LEDGER_PATH", &cfg.Ledger.Path)
	envInt("LEDGER_RETENTION_DAYS", &cfg.Ledger.RetentionDays)

	// Telemetry overrides
	envString("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envBool("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	envString("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)

	envBool("NOTIFY_DESKTOP", &cfg.Notify.Desktop)

	for i := range cfg.Providers {
		applyProviderEnvOverrides(&cfg.Providers[i])
	}
}

// applyProviderEnvOverrides applies KAGEFORGE_PROVIDER_<NAME>_* overrides.
func applyProviderEnvOverrides(p *ProviderConfig) {
	key := "PROVIDER_" + ProviderEnvName(p.Name) + "_"

	envString(key+"API_KEY", &p.APIKey)
	envString(key+"BASE_URL", &p.BaseURL)
	envDuration(key+"TIMEOUT", &p.Timeout)
	envInt(key+"MAX_RETRIES", &p.MaxRetries)
	if val := os.Getenv(EnvPrefix + key + "ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			p.Enabled = &b
		}
	}
}

// ProviderEnvName converts a provider name into its environment form.
func ProviderEnvName(name string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(name))
}

func envString(name string, dst *string) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		*dst = val
	}
}

func envInt(name string, dst *int) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envFloat(name string, dst *float64) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			*dst = f
		}
	}
}

func envBool(name string, dst *bool) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}
