package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Known enumerations.
var (
	ProviderTypes    = []string{"openai", "anthropic", "generic", "stub"}
	Strategies       = []string{"cost", "performance", "quality", "round-robin", "weighted"}
	Capabilities     = []string{"vision", "tools", "streaming", "thinking"}
	AdmissionModes   = []string{"queue", "reject"}
	HitUsagePolicies = []string{"none", "attribute"}
	SimilarityKinds  = []string{"cosine", "euclidean"}
	LedgerBackends   = []string{"sqlite", "memory"}
	TokenEstimators  = []string{"simple", "tiktoken"}
	LogLevels        = []string{"debug", "info", "warn", "error"}
	LogFormats       = []string{"json", "text"}
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateModels(cfg.Models)...)
	errs = append(errs, validateProviders(cfg)...)
	errs = append(errs, validateRouting(cfg)...)
	errs = append(errs, validateBreaker(&cfg.Breaker)...)
	errs = append(errs, validateAdmission(&cfg.Admission)...)
	errs = append(errs, validateCache(&cfg.Cache)...)
	errs = append(errs, validateBudget(&cfg.Budget)...)
	errs = append(errs, validateLedger(&cfg.Ledger, &cfg.Budget)...)
	errs = append(errs, validateProcessing(&cfg.Processing)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if cfg.Events.BufferSize < 1 {
		errs = append(errs, FieldError{Field: "events.buffer_size", Message: "buffer size must be at least 1"})
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{Field: "server.listen_address", Message: "listen address is required"})
	}
	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.read_timeout", Message: "read timeout must be positive"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.write_timeout", Message: "write timeout must be positive"})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.idle_timeout", Message: "idle timeout must be positive"})
	}
	if cfg.MaxHeaderBytes < 0 || cfg.MaxHeaderBytes > 10*1024*1024 {
		errs = append(errs, FieldError{Field: "server.max_header_bytes", Message: "max header bytes must be between 0 and 10MB"})
	}
	if cfg.MaxBodyBytes < 0 {
		errs = append(errs, FieldError{Field: "server.max_body_bytes", Message: "max body bytes must be non-negative"})
	}

	return errs
}

func validateModels(models []ModelConfig) []FieldError {
	var errs []FieldError
	seen := make(map[string]bool, len(models))

	for i, m := range models {
		prefix := fmt.Sprintf("models[%d]", i)
		if m.Name == "" {
			errs = append(errs, FieldError{Field: prefix + ".name", Message: "model name is required"})
			continue
		}
		if seen[m.Name] {
			errs = append(errs, FieldError{Field: prefix + ".name", Message: fmt.Sprintf("duplicate model %q", m.Name)})
		}
		seen[m.Name] = true

		if m.ContextWindow < 0 {
			errs = append(errs, FieldError{Field: prefix + ".context_window", Message: "context window must be non-negative"})
		}
		if m.MaxOutputTokens < 0 {
			errs = append(errs, FieldError{Field: prefix + ".max_output_tokens", Message: "max output tokens must be non-negative"})
		}
		for _, c := range m.Capabilities {
			if !contains(Capabilities, c) {
				errs = append(errs, FieldError{
					Field:   prefix + ".capabilities",
					Message: fmt.Sprintf("unknown capability %q (valid: %s)", c, strings.Join(Capabilities, ", ")),
				})
			}
		}
		errs = append(errs, validatePricing(prefix+".pricing", m.Pricing)...)
	}

	return errs
}

func validatePricing(prefix string, p PricingConfig) []FieldError {
	var errs []FieldError
	if p.Input < 0 || p.Output < 0 || p.CachedInput < 0 || p.Thinking < 0 {
		errs = append(errs, FieldError{Field: prefix, Message: "prices must be non-negative"})
	}
	return errs
}

func validateProviders(cfg *Config) []FieldError {
	var errs []FieldError

	if len(cfg.Providers) == 0 {
		return append(errs, FieldError{Field: "providers", Message: "at least one provider must be configured"})
	}

	seen := make(map[string]bool, len(cfg.Providers))
	enabled := 0
	for i, p := range cfg.Providers {
		prefix := fmt.Sprintf("providers[%d]", i)

		if p.Name == "" {
			errs = append(errs, FieldError{Field: prefix + ".name", Message: "provider name is required"})
		} else if seen[p.Name] {
			errs = append(errs, FieldError{Field: prefix + ".name", Message: fmt.Sprintf("duplicate provider %q", p.Name)})
		}
		seen[p.Name] = true

		if !contains(ProviderTypes, p.Type) {
			errs = append(errs, FieldError{
				Field:   prefix + ".type",
				Message: fmt.Sprintf("unknown provider type %q (valid: %s)", p.Type, strings.Join(ProviderTypes, ", ")),
			})
		}
		if p.Type == "generic" && p.BaseURL == "" {
			errs = append(errs, FieldError{Field: prefix + ".base_url", Message: "base URL is required for generic providers"})
		}
		if p.Timeout <= 0 {
			errs = append(errs, FieldError{Field: prefix + ".timeout", Message: "timeout must be positive"})
		}
		if p.MaxRetries < 0 {
			errs = append(errs, FieldError{Field: prefix + ".max_retries", Message: "max retries must be non-negative"})
		}
		if p.Weight < 0 {
			errs = append(errs, FieldError{Field: prefix + ".weight", Message: "weight must be non-negative"})
		}
		if p.MaxConcurrent < 0 {
			errs = append(errs, FieldError{Field: prefix + ".max_concurrent", Message: "max concurrent must be non-negative"})
		}

		if len(p.Models) == 0 {
			errs = append(errs, FieldError{Field: prefix + ".models", Message: "at least one model is required"})
		}
		for _, name := range p.Models {
			if _, ok := cfg.Model(name); !ok {
				errs = append(errs, FieldError{
					Field:   prefix + ".models",
					Message: fmt.Sprintf("model %q is not declared in models", name),
				})
			}
		}
		if p.DefaultModel != "" && !contains(p.Models, p.DefaultModel) {
			errs = append(errs, FieldError{
				Field:   prefix + ".default_model",
				Message: fmt.Sprintf("default model %q is not served by this provider", p.DefaultModel),
			})
		}

		if p.IsEnabled() {
			enabled++
		}
	}

	if enabled == 0 {
		errs = append(errs, FieldError{Field: "providers", Message: "at least one provider must be enabled"})
	}

	return errs
}

func validateRouting(cfg *Config) []FieldError {
	var errs []FieldError
	r := &cfg.Routing

	if !contains(Strategies, r.Strategy) {
		errs = append(errs, FieldError{
			Field:   "routing.strategy",
			Message: fmt.Sprintf("unknown strategy %q (valid: %s)", r.Strategy, strings.Join(Strategies, ", ")),
		})
	}
	if r.MaxFailoverAttempts < 1 {
		errs = append(errs, FieldError{Field: "routing.max_failover_attempts", Message: "max failover attempts must be at least 1"})
	}
	if r.LatencyAlpha <= 0 || r.LatencyAlpha > 1 {
		errs = append(errs, FieldError{Field: "routing.latency_alpha", Message: "latency alpha must be in (0, 1]"})
	}
	for _, name := range r.QualityRanking {
		if _, ok := cfg.Provider(name); !ok {
			errs = append(errs, FieldError{
				Field:   "routing.quality_ranking",
				Message: fmt.Sprintf("unknown provider %q", name),
			})
		}
	}

	return errs
}

func validateBreaker(cfg *BreakerConfig) []FieldError {
	var errs []FieldError
	if cfg.FailureThreshold < 1 {
		errs = append(errs, FieldError{Field: "breaker.failure_threshold", Message: "failure threshold must be at least 1"})
	}
	if cfg.OpenDuration <= 0 {
		errs = append(errs, FieldError{Field: "breaker.open_duration", Message: "open duration must be positive"})
	}
	if cfg.HalfOpenProbeLimit < 1 {
		errs = append(errs, FieldError{Field: "breaker.half_open_probe_limit", Message: "half-open probe limit must be at least 1"})
	}
	return errs
}

func validateAdmission(cfg *AdmissionConfig) []FieldError {
	var errs []FieldError
	if cfg.MaxConcurrent < 1 {
		errs = append(errs, FieldError{Field: "admission.max_concurrent", Message: "max concurrent must be at least 1"})
	}
	if !contains(AdmissionModes, cfg.Mode) {
		errs = append(errs, FieldError{
			Field:   "admission.mode",
			Message: fmt.Sprintf("unknown mode %q (valid: %s)", cfg.Mode, strings.Join(AdmissionModes, ", ")),
		})
	}
	if cfg.QueueSize < 0 {
		errs = append(errs, FieldError{Field: "admission.queue_size", Message: "queue size must be non-negative"})
	}
	if cfg.QueueTimeout <= 0 {
		errs = append(errs, FieldError{Field: "admission.queue_timeout", Message: "queue timeout must be positive"})
	}
	if cfg.RequestsPerSecond < 0 {
		errs = append(errs, FieldError{Field: "admission.requests_per_second", Message: "requests per second must be non-negative"})
	}
	if cfg.Burst < 1 {
		errs = append(errs, FieldError{Field: "admission.burst", Message: "burst must be at least 1"})
	}
	return errs
}

func validateCache(cfg *CacheConfig) []FieldError {
	var errs []FieldError

	if !contains(HitUsagePolicies, cfg.HitUsagePolicy) {
		errs = append(errs, FieldError{
			Field:   "cache.hit_usage_policy",
			Message: fmt.Sprintf("unknown policy %q (valid: %s)", cfg.HitUsagePolicy, strings.Join(HitUsagePolicies, ", ")),
		})
	}
	if cfg.Memory.MaxEntries < 1 {
		errs = append(errs, FieldError{Field: "cache.memory.max_entries", Message: "max entries must be at least 1"})
	}
	if cfg.Memory.TTL <= 0 {
		errs = append(errs, FieldError{Field: "cache.memory.ttl", Message: "ttl must be positive"})
	}

	if cfg.Persistent.Enabled {
		if cfg.Persistent.Path == "" {
			errs = append(errs, FieldError{Field: "cache.persistent.path", Message: "path is required when the persistent layer is enabled"})
		}
		if cfg.Persistent.TTL <= 0 {
			errs = append(errs, FieldError{Field: "cache.persistent.ttl", Message: "ttl must be positive"})
		}
		if cfg.Persistent.MaxEntries < 1 {
			errs = append(errs, FieldError{Field: "cache.persistent.max_entries", Message: "max entries must be at least 1"})
		}
	}

	if cfg.Remote.Enabled {
		if cfg.Remote.DSN == "" {
			errs = append(errs, FieldError{Field: "cache.remote.dsn", Message: "dsn is required when the remote layer is enabled"})
		}
		if !identifierPattern.MatchString(cfg.Remote.Table) {
			errs = append(errs, FieldError{Field: "cache.remote.table", Message: fmt.Sprintf("invalid table name %q", cfg.Remote.Table)})
		}
		if cfg.Remote.TTL <= 0 {
			errs = append(errs, FieldError{Field: "cache.remote.ttl", Message: "ttl must be positive"})
		}
		if cfg.Remote.MaxEntries < 0 {
			errs = append(errs, FieldError{Field: "cache.remote.max_entries", Message: "max entries must be non-negative"})
		}
	}

	if cfg.Similarity.Enabled {
		if !contains(SimilarityKinds, cfg.Similarity.Metric) {
			errs = append(errs, FieldError{
				Field:   "cache.similarity.metric",
				Message: fmt.Sprintf("unknown metric %q (valid: %s)", cfg.Similarity.Metric, strings.Join(SimilarityKinds, ", ")),
			})
		}
		if cfg.Similarity.Threshold <= 0 || cfg.Similarity.Threshold > 1 {
			errs = append(errs, FieldError{Field: "cache.similarity.threshold", Message: "threshold must be in (0, 1]"})
		}
		if cfg.Similarity.MaxEntries < 1 {
			errs = append(errs, FieldError{Field: "cache.similarity.max_entries", Message: "max entries must be at least 1"})
		}
		if cfg.Similarity.Dimensions < 8 {
			errs = append(errs, FieldError{Field: "cache.similarity.dimensions", Message: "dimensions must be at least 8"})
		}
	}

	if cfg.Persistent.Enabled || cfg.Remote.Enabled {
		if _, err := cron.ParseStandard(cfg.JanitorSchedule); err != nil {
			errs = append(errs, FieldError{Field: "cache.janitor_schedule", Message: fmt.Sprintf("invalid cron expression: %v", err)})
		}
	}

	return errs
}

func validateBudget(cfg *BudgetConfig) []FieldError {
	var errs []FieldError
	if cfg.Daily < 0 {
		errs = append(errs, FieldError{Field: "budget.daily", Message: "daily limit must be non-negative"})
	}
	if cfg.Monthly < 0 {
		errs = append(errs, FieldError{Field: "budget.monthly", Message: "monthly limit must be non-negative"})
	}
	if cfg.PerUserDaily < 0 {
		errs = append(errs, FieldError{Field: "budget.per_user_daily", Message: "per-user daily limit must be non-negative"})
	}
	if cfg.Daily > 0 && cfg.Monthly > 0 && cfg.Daily > cfg.Monthly {
		errs = append(errs, FieldError{Field: "budget.daily", Message: "daily limit cannot exceed monthly limit"})
	}
	if cfg.AlertThreshold <= 0 || cfg.AlertThreshold >= 1 {
		errs = append(errs, FieldError{Field: "budget.alert_threshold", Message: "alert threshold must be in (0, 1)"})
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		errs = append(errs, FieldError{Field: "budget.timezone", Message: fmt.Sprintf("unknown timezone %q", cfg.Timezone)})
	}
	return errs
}

// Retention needed so that pruning never deletes records of the current
// budget period.
const (
	minDailyRetentionDays   = 1
	minMonthlyRetentionDays = 31
)

func validateLedger(cfg *LedgerConfig, budget *BudgetConfig) []FieldError {
	var errs []FieldError
	if !contains(LedgerBackends, cfg.Backend) {
		errs = append(errs, FieldError{
			Field:   "ledger.backend",
			Message: fmt.Sprintf("unknown backend %q (valid: %s)", cfg.Backend, strings.Join(LedgerBackends, ", ")),
		})
	}
	if cfg.Backend == "sqlite" && cfg.Path == "" {
		errs = append(errs, FieldError{Field: "ledger.path", Message: "path is required for the sqlite backend"})
	}
	if days := cfg.RetentionDays; days > 0 {
		switch {
		case budget.Monthly > 0 && days < minMonthlyRetentionDays:
			errs = append(errs, FieldError{
				Field:   "ledger.retention_days",
				Message: fmt.Sprintf("must be at least %d when a monthly budget is set, got %d", minMonthlyRetentionDays, days),
			})
		case (budget.Daily > 0 || budget.PerUserDaily > 0) && days < minDailyRetentionDays:
			errs = append(errs, FieldError{
				Field:   "ledger.retention_days",
				Message: fmt.Sprintf("must be at least %d when a daily budget is set, got %d", minDailyRetentionDays, days),
			})
		}
	}
	if _, err := cron.ParseStandard(cfg.PruneSchedule); err != nil {
		errs = append(errs, FieldError{Field: "ledger.prune_schedule", Message: fmt.Sprintf("invalid cron expression: %v", err)})
	}
	return errs
}

func validateProcessing(cfg *ProcessingConfig) []FieldError {
	var errs []FieldError
	if !contains(TokenEstimators, cfg.Tokens.Estimator) {
		errs = append(errs, FieldError{
			Field:   "processing.tokens.estimator",
			Message: fmt.Sprintf("unknown estimator %q (valid: %s)", cfg.Tokens.Estimator, strings.Join(TokenEstimators, ", ")),
		})
	}
	if cfg.Tokens.CharsPerToken <= 0 {
		errs = append(errs, FieldError{Field: "processing.tokens.chars_per_token", Message: "chars per token must be positive"})
	}
	if cfg.Tokens.DefaultCompletionTokens < 1 {
		errs = append(errs, FieldError{Field: "processing.tokens.default_completion_tokens", Message: "default completion tokens must be at least 1"})
	}
	errs = append(errs, validatePricing("processing.costs.default_pricing", cfg.Costs.DefaultPricing)...)
	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError
	if !contains(LogLevels, strings.ToLower(cfg.Logging.Level)) {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("unknown level %q (valid: %s)", cfg.Logging.Level, strings.Join(LogLevels, ", ")),
		})
	}
	if !contains(LogFormats, strings.ToLower(cfg.Logging.Format)) {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("unknown format %q (valid: %s)", cfg.Logging.Format, strings.Join(LogFormats, ", ")),
		})
	}
	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "metrics path must start with /"})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errs = append(errs, FieldError{Field: "telemetry.tracing.sample_ratio", Message: "sample ratio must be in [0, 1]"})
	}
	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{Field: "telemetry.tracing.endpoint", Message: "endpoint is required when tracing is enabled"})
	}
	return errs
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
