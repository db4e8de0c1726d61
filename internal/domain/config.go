package domain

import "time"

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines infrastructure backends
	Tier Tier `json:"tier"`

	// Models points at the trained model artifact directory
	Models ModelConfig `json:"models"`

	// Scoring holds scoring pipeline tunables
	Scoring ScoringConfig `json:"scoring"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// ModelConfig holds model artifact settings.
type ModelConfig struct {
	// Path is the read-only directory containing the exported artifacts:
	// logistic.json, trees.json, woe_bins.json, scorecard.json, metadata.json.
	Path string `json:"path"`
}

// ScoringConfig holds scoring pipeline settings.
type ScoringConfig struct {
	// BlendLogisticWeight is the weight of the logistic model in the
	// blended probability; the tree model receives the complement.
	BlendLogisticWeight float64 `json:"blendLogisticWeight"`

	// ResultCacheTTL is how long scored results stay cached.
	ResultCacheTTL time.Duration `json:"resultCacheTtl"`

	// SegmentValueEstimates is the expected recovered value per flagged
	// claim, by segment, used for the savings KPI.
	SegmentValueEstimates map[RiskSegment]float64 `json:"segmentValueEstimates"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
	Endpoint    string `json:"endpoint"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity is the single-node tier with SQLite + LRU + channels
	TierCommunity Tier = "community"

	// TierPro is the scaled tier with PostgreSQL + Redis + NATS
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8000,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Models: ModelConfig{
			Path: "./models",
		},
		Scoring: ScoringConfig{
			BlendLogisticWeight: 0.7,
			ResultCacheTTL:      5 * time.Minute,
			SegmentValueEstimates: map[RiskSegment]float64{
				SegmentHigh:   42500,
				SegmentMedium: 8500,
				SegmentLow:    0,
			},
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
