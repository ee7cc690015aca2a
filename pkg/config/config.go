package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	// Log configuration
	Log LogConfig `mapstructure:"log"`

	// Store configuration
	Store StoreConfig `mapstructure:"store"`

	// Graph index configuration
	Graph GraphConfig `mapstructure:"graph"`

	// Embedding provider configuration
	Embedding EmbeddingConfig `mapstructure:"embedding"`

	// Consolidation thresholds and retry policy
	Consolidation ConsolidationConfig `mapstructure:"consolidation"`

	// Discovery rule table configuration
	Discovery DiscoveryConfig `mapstructure:"discovery"`

	// Patterns recognition configuration
	Patterns PatternsConfig `mapstructure:"patterns"`

	// Retrieval configuration
	Retrieval RetrievalConfig `mapstructure:"retrieval"`

	// Telemetry configuration
	Telemetry TelemetryConfig `mapstructure:"telemetry"`

	// Alert configuration
	Alert AlertConfig `mapstructure:"alert"`

	// CircuitBreaker configuration
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StoreConfig holds knowledge store configuration
type StoreConfig struct {
	Backend      string `mapstructure:"backend"` // postgres, sqlite, memory
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// GraphConfig holds graph index configuration
type GraphConfig struct {
	Driver   string `mapstructure:"driver"` // neo4j, memory
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// EmbeddingConfig holds embedding provider configuration. The engine only
// embeds query text; entity embeddings arrive from extraction.
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"` // openai, embedeverything
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Dimensions int    `mapstructure:"dimensions"`
}

// ConsolidationConfig holds the resolver's heuristics. The thresholds are
// heuristic, not empirically validated, which is exactly why they live here.
type ConsolidationConfig struct {
	LinkThreshold    float64 `mapstructure:"link_threshold"`
	MergeThreshold   float64 `mapstructure:"merge_threshold"`
	NumericTolerance float64 `mapstructure:"numeric_tolerance"`
	MaxRetries       int     `mapstructure:"max_retries"`
	Workers          int     `mapstructure:"workers"`
}

// DiscoveryConfig holds relationship discovery configuration
type DiscoveryConfig struct {
	// RulesPath optionally points at a YAML rule table; empty uses the
	// compiled-in defaults.
	RulesPath string `mapstructure:"rules_path"`

	// PainPointSimilarity is the similarity at which two independently
	// resolved pain points are linked as shared.
	PainPointSimilarity float64 `mapstructure:"pain_point_similarity"`
}

// PatternsConfig holds pattern recognition configuration
type PatternsConfig struct {
	BatchTrigger             int     `mapstructure:"batch_trigger"`
	MinClusterSize           int     `mapstructure:"min_cluster_size"`
	RepresentativeSimilarity float64 `mapstructure:"representative_similarity"`
	TargetEntityType         string  `mapstructure:"target_entity_type"`
	// Schedule is a cron spec for the periodic pass, e.g. "@every 10m".
	Schedule string `mapstructure:"schedule"`
}

// RetrievalConfig holds hybrid retrieval configuration
type RetrievalConfig struct {
	TopK         int           `mapstructure:"top_k"`
	MaxDepth     int           `mapstructure:"max_depth"`
	RankConstant int           `mapstructure:"rank_constant"`
	Timeout      time.Duration `mapstructure:"timeout"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	CachePath    string        `mapstructure:"cache_path"` // empty = in-memory cache
}

// TelemetryConfig holds telemetry configuration
type TelemetryConfig struct {
	ParquetPath string `mapstructure:"parquet_path"`
}

// AlertConfig holds configuration for alerting
type AlertConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	SMTPHost string   `mapstructure:"smtp_host"`
	SMTPPort int      `mapstructure:"smtp_port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

// CircuitBreakerConfig holds configuration for circuit breaking
type CircuitBreakerConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	MaxRequests      uint32  `mapstructure:"max_requests"`
	Interval         int     `mapstructure:"interval"` // in seconds
	Timeout          int     `mapstructure:"timeout"`  // in seconds
	ReadyToTripRatio float64 `mapstructure:"ready_to_trip_ratio"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	setDefaults()

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	overrideWithEnv(config)

	return config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	viper.SetDefault("store.backend", "sqlite")
	viper.SetDefault("store.dsn", "./consolidato.db")
	viper.SetDefault("store.max_open_conns", 25)

	viper.SetDefault("graph.driver", "memory")
	viper.SetDefault("graph.database", "")

	viper.SetDefault("embedding.provider", "embedeverything")
	viper.SetDefault("embedding.model", "all-MiniLM-L6-v2")
	viper.SetDefault("embedding.dimensions", 384)

	viper.SetDefault("consolidation.link_threshold", 0.8)
	viper.SetDefault("consolidation.merge_threshold", 0.9)
	viper.SetDefault("consolidation.numeric_tolerance", 0.5)
	viper.SetDefault("consolidation.max_retries", 3)
	viper.SetDefault("consolidation.workers", 4)

	viper.SetDefault("discovery.pain_point_similarity", 0.85)

	viper.SetDefault("patterns.batch_trigger", 5)
	viper.SetDefault("patterns.min_cluster_size", 3)
	viper.SetDefault("patterns.representative_similarity", 0.8)
	viper.SetDefault("patterns.target_entity_type", "pain_point")
	viper.SetDefault("patterns.schedule", "@every 10m")

	viper.SetDefault("retrieval.top_k", 10)
	viper.SetDefault("retrieval.max_depth", 2)
	viper.SetDefault("retrieval.rank_constant", 60)
	viper.SetDefault("retrieval.timeout", "5s")
	viper.SetDefault("retrieval.cache_ttl", "60s")

	home, err := os.UserHomeDir()
	if err == nil {
		viper.SetDefault("telemetry.parquet_path", fmt.Sprintf("%s/.consolidato/telemetry", home))
	}
}

// overrideWithEnv overrides config with environment variables
func overrideWithEnv(config *Config) {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.Embedding.APIKey = apiKey
	}

	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		config.Graph.URI = uri
	}
	if user := os.Getenv("NEO4J_USER"); user != "" {
		config.Graph.Username = user
	}
	if pass := os.Getenv("NEO4J_PASSWORD"); pass != "" {
		config.Graph.Password = pass
	}

	if backend := os.Getenv("STORE_BACKEND"); backend != "" {
		config.Store.Backend = backend
	}
	if dsn := os.Getenv("STORE_DSN"); dsn != "" {
		config.Store.DSN = dsn
	}

	if path := os.Getenv("TELEMETRY_PARQUET_PATH"); path != "" {
		config.Telemetry.ParquetPath = path
	}
}
