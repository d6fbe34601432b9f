package config

import "time"

// Config is the root configuration structure for the KageForge gateway.
// It is loaded once at startup and treated as an immutable snapshot.
type Config struct {
	// Server contains HTTP server configuration including listen address,
	// timeouts, and CORS.
	Server ServerConfig `yaml:"server"`

	// Providers lists every configured model backend. Declaration order is
	// significant: it is the tie-break order used by the router.
	Providers []ProviderConfig `yaml:"providers"`

	// Models is the static model catalog (capabilities and pricing).
	Models []ModelConfig `yaml:"models"`

	// Routing contains router strategy and failover settings.
	Routing RoutingConfig `yaml:"routing"`

	// Breaker contains circuit breaker settings applied to every provider.
	Breaker BreakerConfig `yaml:"breaker"`

	// Admission contains per-provider concurrency and queueing settings.
	Admission AdmissionConfig `yaml:"admission"`

	// Cache contains multi-layer response cache settings.
	Cache CacheConfig `yaml:"cache"`

	// Budget contains spend limits and alert thresholds.
	Budget BudgetConfig `yaml:"budget"`

	// Ledger contains usage ledger storage and retention settings.
	Ledger LedgerConfig `yaml:"ledger"`

	// Processing contains token estimation and cost calculation settings.
	Processing ProcessingConfig `yaml:"processing"`

	// Events contains event dispatcher settings.
	Events EventsConfig `yaml:"events"`

	// Telemetry contains logging, metrics, and tracing configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Notify contains desktop notification settings for budget alerts.
	Notify NotifyConfig `yaml:"notify"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Default: "127.0.0.1:8787"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response. Streaming responses need a generous value.
	// Default: 300s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits request header size.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// MaxBodyBytes limits the chat completion request body.
	// Default: 4194304 (4MB)
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// CORS contains Cross-Origin Resource Sharing configuration.
	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig contains CORS configuration.
type CORSConfig struct {
	// Enabled controls whether the CORS middleware is installed.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// AllowedOrigins is a list of allowed origins.
	// Default: ["http://localhost:*"]
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedMethods is a list of allowed HTTP methods.
	// Default: ["GET", "POST", "DELETE", "OPTIONS"]
	AllowedMethods []string `yaml:"allowed_methods"`

	// AllowedHeaders is a list of allowed request headers.
	// Default: ["Authorization", "Content-Type", "X-Request-ID", "X-User-ID"]
	AllowedHeaders []string `yaml:"allowed_headers"`

	// MaxAge is the preflight cache lifetime in seconds.
	// Default: 300
	MaxAge int `yaml:"max_age"`
}

// ProviderConfig contains configuration for a single model backend.
type ProviderConfig struct {
	// Name uniquely identifies the provider (e.g., "openai-primary").
	// Required.
	Name string `yaml:"name"`

	// Type selects the adapter variant.
	// Options: "openai", "anthropic", "generic", "stub"
	// Required.
	Type string `yaml:"type"`

	// Enabled controls whether the router may select this provider.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// BaseURL is the base URL for the provider's API endpoint.
	// Defaults to the vendor's public endpoint for openai and anthropic.
	BaseURL string `yaml:"base_url"`

	// APIKey is the authentication key for the provider.
	// Usually injected via KAGEFORGE_PROVIDER_<NAME>_API_KEY.
	APIKey string `yaml:"api_key"`

	// Timeout is the per-call timeout for this provider.
	// Default: 60s
	Timeout time.Duration `yaml:"timeout"`

	// MaxRetries is the in-adapter retry budget for retryable failures.
	// Default: 0 (the router fails over instead)
	MaxRetries int `yaml:"max_retries"`

	// DefaultModel is used when a request names no model.
	// Default: first entry of Models
	DefaultModel string `yaml:"default_model"`

	// Models lists the catalog models this provider can serve.
	// Required.
	Models []string `yaml:"models"`

	// Weight is the selection weight used by the weighted strategy.
	// Default: 1
	Weight int `yaml:"weight"`

	// MaxConcurrent overrides admission.max_concurrent for this provider.
	// Default: 0 (use the global value)
	MaxConcurrent int `yaml:"max_concurrent"`

	// Options carries adapter specific settings such as "path" for
	// generic endpoints or "reply" for the stub adapter.
	Options map[string]string `yaml:"options"`
}

// IsEnabled reports whether the provider is enabled.
func (p ProviderConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// ModelConfig describes one catalog model.
type ModelConfig struct {
	// Name is the model identifier sent to the provider.
	Name string `yaml:"name"`

	// ContextWindow is the maximum prompt size in tokens.
	ContextWindow int `yaml:"context_window"`

	// MaxOutputTokens caps completion length.
	MaxOutputTokens int `yaml:"max_output_tokens"`

	// Capabilities lists supported features.
	// Options: "vision", "tools", "streaming", "thinking"
	Capabilities []string `yaml:"capabilities"`

	// Pricing is expressed in USD per million tokens.
	Pricing PricingConfig `yaml:"pricing"`
}

// PricingConfig holds per-million-token prices in USD.
type PricingConfig struct {
	Input       float64 `yaml:"input"`
	Output      float64 `yaml:"output"`
	CachedInput float64 `yaml:"cached_input"`
	Thinking    float64 `yaml:"thinking"`
}

// RoutingConfig contains router configuration.
type RoutingConfig struct {
	// Strategy orders candidate providers.
	// Options: "cost", "performance", "quality", "round-robin", "weighted"
	// Default: "cost"
	Strategy string `yaml:"strategy"`

	// MaxFailoverAttempts bounds how many providers are tried per request.
	// Default: 3
	MaxFailoverAttempts int `yaml:"max_failover_attempts"`

	// QualityRanking lists provider names from most to least preferred.
	// Providers not listed rank after listed ones in declaration order.
	QualityRanking []string `yaml:"quality_ranking"`

	// LatencyAlpha is the smoothing factor of the rolling latency average.
	// Default: 0.2
	LatencyAlpha float64 `yaml:"latency_alpha"`
}

// BreakerConfig contains circuit breaker configuration.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the breaker.
	// Default: 5
	FailureThreshold int `yaml:"failure_threshold"`

	// OpenDuration is how long an open breaker rejects before probing.
	// Default: 30s
	OpenDuration time.Duration `yaml:"open_duration"`

	// HalfOpenProbeLimit is the number of concurrent probes admitted while
	// half-open.
	// Default: 1
	HalfOpenProbeLimit int `yaml:"half_open_probe_limit"`
}

// AdmissionConfig contains load admission configuration.
type AdmissionConfig struct {
	// MaxConcurrent is the per-provider in-flight cap.
	// Default: 16
	MaxConcurrent int `yaml:"max_concurrent"`

	// Mode is the behavior at capacity.
	// Options: "queue", "reject"
	// Default: "queue"
	Mode string `yaml:"mode"`

	// QueueSize bounds the number of waiting requests per provider.
	// Default: 64
	QueueSize int `yaml:"queue_size"`

	// QueueTimeout bounds how long a request may wait for a slot.
	// Default: 10s
	QueueTimeout time.Duration `yaml:"queue_timeout"`

	// RequestsPerSecond paces dispatches per provider. Zero disables pacing.
	// Default: 0
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Burst is the pacing burst size.
	// Default: 1
	Burst int `yaml:"burst"`
}

// CacheConfig contains response cache configuration.
type CacheConfig struct {
	// Enabled turns the cache engine on or off.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// HitUsagePolicy decides whether a cache hit appends a UsageRecord.
	// Options: "none" (no record), "attribute" (zero-cost record attributed
	// to the provider and model that produced the cached response)
	// Default: "none"
	HitUsagePolicy string `yaml:"hit_usage_policy"`

	// Memory is the in-process LRU layer.
	Memory MemoryCacheConfig `yaml:"memory"`

	// Persistent is the local SQLite layer.
	Persistent PersistentCacheConfig `yaml:"persistent"`

	// Remote is the optional shared Postgres layer.
	Remote RemoteCacheConfig `yaml:"remote"`

	// Similarity is the semantic-similarity fallback.
	Similarity SimilarityConfig `yaml:"similarity"`

	// JanitorSchedule is the cron expression for purging expired rows.
	// Default: "*/15 * * * *"
	JanitorSchedule string `yaml:"janitor_schedule"`
}

// IsEnabled reports whether the cache engine is enabled.
func (c CacheConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// MemoryCacheConfig configures the memory layer.
type MemoryCacheConfig struct {
	// MaxEntries bounds the LRU.
	// Default: 1000
	MaxEntries int `yaml:"max_entries"`

	// TTL is the entry lifetime.
	// Default: 1h
	TTL time.Duration `yaml:"ttl"`
}

// PersistentCacheConfig configures the SQLite layer.
type PersistentCacheConfig struct {
	// Enabled turns the layer on.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Path is the database file.
	// Default: "data/cache.db"
	Path string `yaml:"path"`

	// MaxEntries bounds the table; oldest rows are evicted first.
	// Default: 10000
	MaxEntries int `yaml:"max_entries"`

	// TTL is the entry lifetime.
	// Default: 24h
	TTL time.Duration `yaml:"ttl"`

	// BusyTimeout is how long to wait for the database lock.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// RemoteCacheConfig configures the shared Postgres layer.
type RemoteCacheConfig struct {
	// Enabled turns the layer on.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// DSN is the Postgres connection string.
	DSN string `yaml:"dsn"`

	// Table is the cache table name.
	// Default: "kageforge_cache"
	Table string `yaml:"table"`

	// MaxEntries bounds the table. Zero means unbounded.
	// Default: 0
	MaxEntries int `yaml:"max_entries"`

	// TTL is the entry lifetime.
	// Default: 24h
	TTL time.Duration `yaml:"ttl"`

	// Timeout bounds every remote operation.
	// Default: 2s
	Timeout time.Duration `yaml:"timeout"`
}

// SimilarityConfig configures the semantic-similarity fallback.
type SimilarityConfig struct {
	// Enabled turns the fallback on.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Metric is the similarity metric.
	// Options: "cosine", "euclidean"
	// Default: "cosine"
	Metric string `yaml:"metric"`

	// Threshold is the minimum similarity for a hit, in [0, 1].
	// Default: 0.92
	Threshold float64 `yaml:"threshold"`

	// MaxEntries bounds the recent-request index.
	// Default: 500
	MaxEntries int `yaml:"max_entries"`

	// Dimensions is the embedding size.
	// Default: 256
	Dimensions int `yaml:"dimensions"`

	// TTL is the index entry lifetime.
	// Default: 1h
	TTL time.Duration `yaml:"ttl"`
}

// BudgetConfig contains spend limits. A zero limit disables that scope.
type BudgetConfig struct {
	// Daily is the daily spend limit in USD.
	Daily float64 `yaml:"daily"`

	// Monthly is the monthly spend limit in USD.
	Monthly float64 `yaml:"monthly"`

	// PerUserDaily is the daily spend limit per user id in USD.
	PerUserDaily float64 `yaml:"per_user_daily"`

	// AlertThreshold is the fraction of a limit that triggers a warning.
	// Default: 0.8
	AlertThreshold float64 `yaml:"alert_threshold"`

	// Timezone is the IANA zone used for day and month boundaries.
	// Default: "UTC"
	Timezone string `yaml:"timezone"`
}

// LedgerConfig contains usage ledger configuration.
type LedgerConfig struct {
	// Backend selects the ledger store.
	// Options: "sqlite", "memory"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// Path is the SQLite database file.
	// Default: "data/usage.db"
	Path string `yaml:"path"`

	// BusyTimeout is how long to wait for the database lock.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// RetentionDays is how long usage records are kept. A negative value
	// keeps them forever. It must cover the longest enabled budget period,
	// since budgets are rebuilt from the ledger on startup.
	// Default: 90
	RetentionDays int `yaml:"retention_days"`

	// PruneSchedule is the cron expression for retention pruning.
	// Default: "0 3 * * *"
	PruneSchedule string `yaml:"prune_schedule"`
}

// ProcessingConfig contains token and cost settings.
type ProcessingConfig struct {
	Tokens TokensConfig `yaml:"tokens"`
	Costs  CostsConfig  `yaml:"costs"`
}

// TokensConfig configures token estimation.
type TokensConfig struct {
	// Estimator selects the estimator.
	// Options: "simple", "tiktoken"
	// Default: "simple"
	Estimator string `yaml:"estimator"`

	// CharsPerToken is the ratio used by the simple estimator.
	// Default: 4.0
	CharsPerToken float64 `yaml:"chars_per_token"`

	// Encoding is the tiktoken encoding name.
	// Default: "cl100k_base"
	Encoding string `yaml:"encoding"`

	// DefaultCompletionTokens is the completion size assumed when a request
	// sets no max_tokens.
	// Default: 512
	DefaultCompletionTokens int `yaml:"default_completion_tokens"`
}

// CostsConfig configures cost calculation.
type CostsConfig struct {
	// DefaultPricing applies to models missing from the catalog.
	DefaultPricing PricingConfig `yaml:"default_pricing"`
}

// EventsConfig configures the event dispatcher.
type EventsConfig struct {
	// BufferSize is the per-subscriber queue length for async delivery.
	// Default: 256
	BufferSize int `yaml:"buffer_size"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is the minimum level.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file:line in records.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	// Enabled exposes the metrics endpoint.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Path is the scrape path.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace prefixes every metric.
	// Default: "kageforge"
	Namespace string `yaml:"namespace"`

	// Subsystem follows the namespace.
	// Default: "gateway"
	Subsystem string `yaml:"subsystem"`
}

// IsEnabled reports whether metrics are enabled.
func (m MetricsConfig) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	// Enabled turns tracing on.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector address.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS to the collector.
	// Default: false
	Insecure bool `yaml:"insecure"`

	// ServiceName is reported as service.name.
	// Default: "kageforge"
	ServiceName string `yaml:"service_name"`

	// SampleRatio is the fraction of traces kept, in [0, 1].
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`
}

// NotifyConfig configures desktop notifications.
type NotifyConfig struct {
	// Desktop sends budget alerts as desktop notifications.
	// Default: false
	Desktop bool `yaml:"desktop"`

	// AppName is the notification title prefix.
	// Default: "KageForge"
	AppName string `yaml:"app_name"`
}

// Provider returns the provider configuration with the given name.
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.Name == name {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// Model returns the catalog entry with the given name.
func (c *Config) Model(name string) (ModelConfig, bool) {
	for _, m := range c.Models {
		if m.Name == name {
			return m, true
		}
	}
	return ModelConfig{}, false
}
