package domain

import "time"

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines infrastructure choices
	Tier Tier `json:"tier"`

	// Generator settings for synthetic dataset runs
	Generator GeneratorConfig `json:"generator"`

	// Component configurations
	Sink     SinkConfig     `json:"sink"`
	Cache    CacheConfig    `json:"cache"`
	EventBus EventBusConfig `json:"eventBus"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// GeneratorConfig holds the parameters for a synthetic dataset run.
// The whole pipeline is a pure function of this config plus Seed.
type GeneratorConfig struct {
	// Seed drives every random draw. Same config + same seed = same dataset.
	Seed uint64 `json:"seed"`

	// PoolSize is the number of synthetic customers created at run start.
	PoolSize int `json:"poolSize"`

	// NumTransactions is the number of events to generate across the pool.
	NumTransactions int `json:"numTransactions"`

	// Workers bounds the per-customer timeline fan-out.
	Workers int `json:"workers"`

	// CategoryWeights drives both weighted category sampling and the
	// category term of the fraud score.
	CategoryWeights map[string]float64 `json:"categoryWeights"`

	// Countries is the home-country sample set.
	Countries []string `json:"countries"`

	// CountryRisk maps country code to a risk multiplier. Countries absent
	// from the table default to 1.0.
	CountryRisk map[string]float64 `json:"countryRisk"`

	// CrossBorderProb is the chance a transaction lands outside the
	// customer's home country.
	CrossBorderProb float64 `json:"crossBorderProb"`

	// LargeAmountProb is the chance an amount is drawn from the large
	// log-normal instead of the small one.
	LargeAmountProb float64 `json:"largeAmountProb"`

	// GapMeanHours is the mean of the exponential inter-transaction gap.
	GapMeanHours float64 `json:"gapMeanHours"`

	// FraudPercentile is the score percentile above which events are
	// labeled fraud.
	FraudPercentile float64 `json:"fraudPercentile"`

	// TimeAnchor fixes the reference "now" that customer timelines are
	// generated relative to. A moving anchor would break seed
	// reproducibility, so the zero value falls back to DefaultTimeAnchor
	// rather than the wall clock.
	TimeAnchor time.Time `json:"timeAnchor"`
}

// DefaultTimeAnchor is the reference point for the historical generation
// window when the config does not set one.
var DefaultTimeAnchor = time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
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
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite/CSV + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// Default sample sets for the shipped scoring policy.
var (
	// DefaultCategoryWeights is the weighted category table. Each weight is
	// both a sampling probability (after normalization) and the base of the
	// category risk term.
	DefaultCategoryWeights = map[string]float64{
		"electronics":      0.35,
		"travel":           0.30,
		"gaming":           0.25,
		"digital_services": 0.20,
		"dining":           0.15,
		"entertainment":    0.12,
		"health":           0.10,
		"clothing":         0.08,
		"groceries":        0.05,
		"gas":              0.03,
		"utilities":        0.02,
		"education":        0.01,
	}

	// DefaultCountries is the home-country sample set.
	DefaultCountries = []string{"US", "UK", "CA", "AU", "DE", "FR", "JP", "SG", "BR", "IN"}

	// DefaultCountryRisk maps country code to its risk multiplier.
	DefaultCountryRisk = map[string]float64{
		"BR": 1.5, "IN": 1.4, "SG": 1.3, "US": 1.0, "UK": 1.0, "CA": 1.0,
		"AU": 0.9, "DE": 0.8, "FR": 0.8, "JP": 0.7,
	}
)

// DefaultGeneratorConfig returns the standard generation parameters.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Seed:            42,
		PoolSize:        5000,
		NumTransactions: 100000,
		Workers:         8,
		CategoryWeights: DefaultCategoryWeights,
		Countries:       DefaultCountries,
		CountryRisk:     DefaultCountryRisk,
		CrossBorderProb: 0.10,
		LargeAmountProb: 0.05,
		GapMeanHours:    48,
		FraudPercentile: 95,
		TimeAnchor:      DefaultTimeAnchor,
	}
}

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier:      TierCommunity,
		Generator: DefaultGeneratorConfig(),
		Sink: SinkConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
			CSVDir:     "./datasets",
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
	cfg.Sink = SinkConfig{
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
