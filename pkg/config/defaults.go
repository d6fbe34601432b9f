package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8787"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 300 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB
	DefaultMaxBodyBytes    = 4194304 // 4MB
	DefaultCORSMaxAge      = 300

	// Provider defaults
	DefaultProviderTimeout = 60 * time.Second
	DefaultProviderWeight  = 1

	// Routing defaults
	DefaultRoutingStrategy     = "cost"
	DefaultMaxFailoverAttempts = 3
	DefaultLatencyAlpha        = 0.2

	// Breaker defaults
	DefaultFailureThreshold   = 5
	DefaultOpenDuration       = 30 * time.Second
	DefaultHalfOpenProbeLimit = 1

	// Admission defaults
	DefaultMaxConcurrent = 16
	DefaultAdmissionMode = "queue"
	DefaultQueueSize     = 64
	DefaultQueueTimeout  = 10 * time.Second
	DefaultBurst         = 1

	// Cache defaults
	DefaultHitUsagePolicy       = "none"
	DefaultMemoryMaxEntries     = 1000
	DefaultMemoryTTL            = time.Hour
	DefaultPersistentPath       = "data/cache.db"
	DefaultPersistentMaxEntries = 10000
	DefaultPersistentTTL        = 24 * time.Hour
	DefaultRemoteTable          = "kageforge_cache"
	DefaultRemoteTTL            = 24 * time.Hour
	DefaultRemoteTimeout        = 2 * time.Second
	DefaultSimilarityMetric     = "cosine"
	DefaultSimilarityThreshold  = 0.92
	DefaultSimilarityMaxEntries = 500
	DefaultSimilarityDimensions = 256
	DefaultSimilarityTTL        = time.Hour
	DefaultJanitorSchedule      = "*/15 * * * *"

	// Budget defaults
	DefaultAlertThreshold = 0.8
	DefaultTimezone       = "UTC"

	// Ledger defaults
	DefaultLedgerBackend       = "sqlite"
	DefaultLedgerPath          = "data/usage.db"
	DefaultLedgerRetentionDays = 90
	DefaultLedgerPruneSchedule = "0 3 * * *"
	DefaultBusyTimeout         = 5 * time.Second

	// Processing defaults
	DefaultTokensEstimator       = "simple"
	DefaultCharsPerToken         = 4.0
	DefaultTokensEncoding        = "cl100k_base"
	DefaultCompletionTokens      = 512
	DefaultInputPricePerMillion  = 1.0
	DefaultOutputPricePerMillion = 3.0
	DefaultEventsBufferSize      = 256
	DefaultNotifyAppName         = "KageForge"

	// Telemetry defaults
	DefaultLoggingLevel       = "info"
	DefaultLoggingFormat      = "json"
	DefaultMetricsPath        = "/metrics"
	DefaultMetricsNamespace   = "kageforge"
	DefaultMetricsSubsystem   = "gateway"
	DefaultTracingEndpoint    = "localhost:4317"
	DefaultTracingServiceName = "kageforge"
	DefaultTracingSampleRatio = 1.0
)

// ApplyDefaults applies default values to all unset configuration fields.
// It is called by LoadConfig before validation.
func ApplyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)

	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		if p.Timeout == 0 {
			p.Timeout = DefaultProviderTimeout
		}
		if p.Weight == 0 {
			p.Weight = DefaultProviderWeight
		}
		if p.DefaultModel == "" && len(p.Models) > 0 {
			p.DefaultModel = p.Models[0]
		}
	}

	// Routing defaults
	if cfg.Routing.Strategy == "" {
		cfg.Routing.Strategy = DefaultRoutingStrategy
	}
	if cfg.Routing.MaxFailoverAttempts == 0 {
		cfg.Routing.MaxFailoverAttempts = DefaultMaxFailoverAttempts
	}
	if cfg.Routing.LatencyAlpha == 0 {
		cfg.Routing.LatencyAlpha = DefaultLatencyAlpha
	}

	// Breaker defaults
	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.Breaker.OpenDuration == 0 {
		cfg.Breaker.OpenDuration = DefaultOpenDuration
	}
	if cfg.Breaker.HalfOpenProbeLimit == 0 {
		cfg.Breaker.HalfOpenProbeLimit = DefaultHalfOpenProbeLimit
	}

	// Admission defaults
	if cfg.Admission.MaxConcurrent == 0 {
		cfg.Admission.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.Admission.Mode == "" {
		cfg.Admission.Mode = DefaultAdmissionMode
	}
	if cfg.Admission.QueueSize == 0 {
		cfg.Admission.QueueSize = DefaultQueueSize
	}
	if cfg.Admission.QueueTimeout == 0 {
		cfg.Admission.QueueTimeout = DefaultQueueTimeout
	}
	if cfg.Admission.Burst == 0 {
		cfg.Admission.Burst = DefaultBurst
	}

	applyCacheDefaults(&cfg.Cache)

	// Budget defaults
	if cfg.Budget.AlertThreshold == 0 {
		cfg.Budget.AlertThreshold = DefaultAlertThreshold
	}
	if cfg.Budget.Timezone == "" {
		cfg.Budget.Timezone = DefaultTimezone
	}

	// Ledger defaults
	if cfg.Ledger.Backend == "" {
		cfg.Ledger.Backend = DefaultLedgerBackend
	}
	if cfg.Ledger.Path == "" {
		cfg.Ledger.Path = DefaultLedgerPath
	}
	if cfg.Ledger.BusyTimeout == 0 {
		cfg.Ledger.BusyTimeout = DefaultBusyTimeout
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = DefaultLedgerRetentionDays
	}
	if cfg.Ledger.PruneSchedule == "" {
		cfg.Ledger.PruneSchedule = DefaultLedgerPruneSchedule
	}

	applyProcessingDefaults(&cfg.Processing)

	if cfg.Events.BufferSize == 0 {
		cfg.Events.BufferSize = DefaultEventsBufferSize
	}
	if cfg.Notify.AppName == "" {
		cfg.Notify.AppName = DefaultNotifyAppName
	}

	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyServerDefaults(s *ServerConfig) {
	if s.ListenAddress == "" {
		s.ListenAddress = DefaultListenAddress
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.IdleTimeout == 0 {
		s.IdleTimeout = DefaultIdleTimeout
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = DefaultShutdownTimeout
	}
	if s.MaxHeaderBytes == 0 {
		s.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if s.MaxBodyBytes == 0 {
		s.MaxBodyBytes = DefaultMaxBodyBytes
	}

	cors := &s.CORS
	if len(cors.AllowedOrigins) == 0 {
		cors.AllowedOrigins = []string{"http://localhost:*"}
	}
	if len(cors.AllowedMethods) == 0 {
		cors.AllowedMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	}
	if len(cors.AllowedHeaders) == 0 {
		cors.AllowedHeaders = []string{"Authorization", "Content-Type", "X-Request-ID", "X-User-ID"}
	}
	if cors.MaxAge == 0 {
		cors.MaxAge = DefaultCORSMaxAge
	}
}

func applyCacheDefaults(c *CacheConfig) {
	if c.HitUsagePolicy == "" {
		c.HitUsagePolicy = DefaultHitUsagePolicy
	}
	if c.Memory.MaxEntries == 0 {
		c.Memory.MaxEntries = DefaultMemoryMaxEntries
	}
	if c.Memory.TTL == 0 {
		c.Memory.TTL = DefaultMemoryTTL
	}
	if c.Persistent.Path == "" {
		c.Persistent.Path = DefaultPersistentPath
	}
	if c.Persistent.MaxEntries == 0 {
		c.Persistent.MaxEntries = DefaultPersistentMaxEntries
	}
	if c.Persistent.TTL == 0 {
		c.Persistent.TTL = DefaultPersistentTTL
	}
	if c.Persistent.BusyTimeout == 0 {
		c.Persistent.BusyTimeout = DefaultBusyTimeout
	}
	if c.Remote.Table == "" {
		c.Remote.Table = DefaultRemoteTable
	}
	if c.Remote.TTL == 0 {
		c.Remote.TTL = DefaultRemoteTTL
	}
	if c.Remote.Timeout == 0 {
		c.Remote.Timeout = DefaultRemoteTimeout
	}
	if c.Similarity.Metric == "" {
		c.Similarity.Metric = DefaultSimilarityMetric
	}
	if c.Similarity.Threshold == 0 {
		c.Similarity.Threshold = DefaultSimilarityThreshold
	}
	if c.Similarity.MaxEntries == 0 {
		c.Similarity.MaxEntries = DefaultSimilarityMaxEntries
	}
	if c.Similarity.Dimensions == 0 {
		c.Similarity.Dimensions = DefaultSimilarityDimensions
	}
	if c.Similarity.TTL == 0 {
		c.Similarity.TTL = DefaultSimilarityTTL
	}
	if c.JanitorSchedule == "" {
		c.JanitorSchedule = DefaultJanitorSchedule
	}
}

func applyProcessingDefaults(p *ProcessingConfig) {
	if p.Tokens.Estimator == "" {
		p.Tokens.Estimator = DefaultTokensEstimator
	}
	if p.Tokens.CharsPerToken == 0 {
		p.Tokens.CharsPerToken = DefaultCharsPerToken
	}
	if p.Tokens.Encoding == "" {
		p.Tokens.Encoding = DefaultTokensEncoding
	}
	if p.Tokens.DefaultCompletionTokens == 0 {
		p.Tokens.DefaultCompletionTokens = DefaultCompletionTokens
	}
	if p.Costs.DefaultPricing.Input == 0 && p.Costs.DefaultPricing.Output == 0 {
		p.Costs.DefaultPricing.Input = DefaultInputPricePerMillion
		p.Costs.DefaultPricing.Output = DefaultOutputPricePerMillion
	}
}

func applyTelemetryDefaults(t *TelemetryConfig) {
	if t.Logging.Level == "" {
		t.Logging.Level = DefaultLoggingLevel
	}
	if t.Logging.Format == "" {
		t.Logging.Format = DefaultLoggingFormat
	}
	if t.Metrics.Path == "" {
		t.Metrics.Path = DefaultMetricsPath
	}
	if t.Metrics.Namespace == "" {
		t.Metrics.Namespace = DefaultMetricsNamespace
	}
	if t.Metrics.Subsystem == "" {
		t.Metrics.Subsystem = DefaultMetricsSubsystem
	}
	if t.Tracing.Endpoint == "" {
		t.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if t.Tracing.ServiceName == "" {
		t.Tracing.ServiceName = DefaultTracingServiceName
	}
	if t.Tracing.SampleRatio == 0 {
		t.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
}
