package domain

import (
	"time"
)

// Config holds the complete Harrier configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines infrastructure backends
	Tier Tier `json:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Analytics configurations
	Detection DetectionConfig `json:"detection"`
	Pruning   PruningConfig   `json:"pruning"`
	Training  TrainingConfig  `json:"training"`
	Monitor   MonitorConfig   `json:"monitor"`

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

// DetectionConfig holds community detection parameters.
type DetectionConfig struct {
	MaxIterations     int     `json:"maxIterations"`
	MinModularityGain float64 `json:"minModularityGain"`

	// RefreshInterval is how often the detection pipeline reruns over
	// the live graph. Zero disables the background refresh.
	RefreshInterval time.Duration `json:"refreshInterval"`
}

// PruningConfig holds graph pruning parameters.
type PruningConfig struct {
	// SignificanceThreshold prunes edges whose betweenness contribution
	// does not strictly exceed it.
	SignificanceThreshold float64 `json:"significanceThreshold"`
}

// TrainingConfig holds scorecard training hyperparameters.
type TrainingConfig struct {
	LearningRate float64 `json:"learningRate"`
	Iterations   int     `json:"iterations"`
	TrainRatio   float64 `json:"trainRatio"`

	// ShuffleSeed fixes the train/test shuffle. Zero means seed from
	// the clock; tests pass an explicit seed for reproducibility.
	ShuffleSeed int64 `json:"shuffleSeed"`
}

// MonitorConfig holds streaming risk-monitor parameters.
type MonitorConfig struct {
	CustomerWindow  time.Duration `json:"customerWindow"`
	CommunityWindow time.Duration `json:"communityWindow"`

	// AnomalyThreshold is the default per-window transaction count above
	// which an alert fires. Ignored when AnomalyExpression is set.
	AnomalyThreshold int `json:"anomalyThreshold"`

	// AnomalyExpression is an optional CEL predicate over window
	// aggregates (tx_count, total_amount, max_amount, window_seconds).
	AnomalyExpression string `json:"anomalyExpression,omitempty"`

	// RiskScorePerAlert is the linear per-alert contribution to a
	// community risk score.
	RiskScorePerAlert float64 `json:"riskScorePerAlert"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp
	Endpoint     string `json:"endpoint"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for the community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./harrier.db",
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
		Detection: DetectionConfig{
			MaxIterations:     10,
			MinModularityGain: 0.0001,
			RefreshInterval:   15 * time.Minute,
		},
		Pruning: PruningConfig{
			SignificanceThreshold: 0.5,
		},
		Training: TrainingConfig{
			LearningRate: 0.01,
			Iterations:   100,
			TrainRatio:   0.8,
		},
		Monitor: MonitorConfig{
			CustomerWindow:    10 * time.Minute,
			CommunityWindow:   time.Hour,
			AnomalyThreshold:  3,
			RiskScorePerAlert: 10.0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "harrier",
		},
	}
}

// ProConfig returns a configuration for the pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "harrier",
	}
	cfg.Cache = CacheConfig{
		Type:         "redis",
		RedisAddr:    "localhost:6379",
		LocalMaxSize: 1000,
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
