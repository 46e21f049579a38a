// Package config loads and validates the ranking service configuration from
// YAML files with environment-variable overrides. It provides typed structs
// for every subsystem (Server, Index, Ranking, Redis, Postgres, Kafka, etc.).
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/wikirank/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Index      IndexConfig      `yaml:"index"`
	Ranking    RankingConfig    `yaml:"ranking"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Search     SearchConfig     `yaml:"search"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// Index backends.
const (
	BackendSegment  = "segment"
	BackendRedis    = "redis"
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// IndexConfig selects where posting lists and document metadata are read
// from. The ranking core only sees the resulting store interfaces.
type IndexConfig struct {
	Backend          string `yaml:"backend"`
	SegmentPath      string `yaml:"segmentPath"`
	MetaBackend      string `yaml:"metaBackend"`
	MetaPath         string `yaml:"metaPath"`
	PostingCacheSize int    `yaml:"postingCacheSize"`
}

// Failure policies for a term whose posting list cannot be fetched.
const (
	FailureAbort = "abort"
	FailureSkip  = "skip"
)

// RankingConfig holds the BM25 and blending parameters.
type RankingConfig struct {
	K1            float64 `yaml:"k1"`
	B             float64 `yaml:"b"`
	Alpha         float64 `yaml:"alpha"`
	MaxResults    int     `yaml:"maxResults"`
	MaxWorkers    int     `yaml:"maxWorkers"`
	Parallel      bool    `yaml:"parallel"`
	FailurePolicy string  `yaml:"failurePolicy"`
}

// Validate rejects parameter combinations that would make every query
// meaningless.
func (r RankingConfig) Validate() error {
	// Comparisons are written so that NaN fails them.
	if !(r.K1 >= 0) || math.IsInf(r.K1, 1) {
		return apperrors.Invalidf("ranking.k1 must be a finite number >= 0, got %v", r.K1)
	}
	if !(r.B >= 0 && r.B <= 1) {
		return apperrors.Invalidf("ranking.b must be within [0,1], got %v", r.B)
	}
	if !(r.Alpha >= 0 && r.Alpha <= 1) {
		return apperrors.Invalidf("ranking.alpha must be within [0,1], got %v", r.Alpha)
	}
	if r.MaxResults <= 0 {
		return apperrors.Invalidf("ranking.maxResults must be > 0, got %d", r.MaxResults)
	}
	if r.MaxWorkers <= 0 {
		return apperrors.Invalidf("ranking.maxWorkers must be > 0, got %d", r.MaxWorkers)
	}
	switch r.FailurePolicy {
	case FailureAbort, FailureSkip:
	default:
		return apperrors.Invalidf("ranking.failurePolicy must be %q or %q, got %q", FailureAbort, FailureSkip, r.FailurePolicy)
	}
	return nil
}

// ResilienceConfig controls retries, the circuit breaker and per-fetch
// timeouts applied around remote index stores.
type ResilienceConfig struct {
	MaxAttempts         int           `yaml:"maxAttempts"`
	InitialDelay        time.Duration `yaml:"initialDelay"`
	MaxDelay            time.Duration `yaml:"maxDelay"`
	FetchTimeout        time.Duration `yaml:"fetchTimeout"`
	BreakerThreshold    int           `yaml:"breakerThreshold"`
	BreakerResetTimeout time.Duration `yaml:"breakerResetTimeout"`
}

// SearchConfig controls the HTTP search surface.
type SearchConfig struct {
	DefaultLimit int  `yaml:"defaultLimit"`
	CacheEnabled bool `yaml:"cacheEnabled"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	SearchEvents string `yaml:"searchEvents"`
	IndexUpdated string `yaml:"indexUpdated"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	PoolSize  int           `yaml:"poolSize"`
	CacheTTL  time.Duration `yaml:"cacheTTL"`
	KeyPrefix string        `yaml:"keyPrefix"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values. Load does not validate; call Validate before serving.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// Validate checks every section the searcher depends on at startup.
func (c *Config) Validate() error {
	if err := c.Ranking.Validate(); err != nil {
		return err
	}
	switch c.Index.Backend {
	case BackendSegment:
		if c.Index.SegmentPath == "" {
			return apperrors.Invalidf("index.segmentPath is required for the segment backend")
		}
	case BackendRedis:
	default:
		return apperrors.Invalidf("unknown index.backend %q", c.Index.Backend)
	}
	switch c.Index.MetaBackend {
	case BackendFile:
		if c.Index.MetaPath == "" {
			return apperrors.Invalidf("index.metaPath is required for the file meta backend")
		}
	case BackendPostgres:
	default:
		return apperrors.Invalidf("unknown index.metaBackend %q", c.Index.MetaBackend)
	}
	if c.Search.DefaultLimit <= 0 {
		return apperrors.Invalidf("search.defaultLimit must be > 0, got %d", c.Search.DefaultLimit)
	}
	return nil
}

// Default returns a Config with defaults suitable for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Index: IndexConfig{
			Backend:          BackendSegment,
			SegmentPath:      "data/index.spdx",
			MetaBackend:      BackendFile,
			MetaPath:         "data/meta.json",
			PostingCacheSize: 4096,
		},
		Ranking: RankingConfig{
			K1:            1.2,
			B:             0.75,
			Alpha:         0.15,
			MaxResults:    100,
			MaxWorkers:    5,
			Parallel:      true,
			FailurePolicy: FailureAbort,
		},
		Resilience: ResilienceConfig{
			MaxAttempts:         3,
			InitialDelay:        50 * time.Millisecond,
			MaxDelay:            2 * time.Second,
			FetchTimeout:        5 * time.Second,
			BreakerThreshold:    5,
			BreakerResetTimeout: 30 * time.Second,
		},
		Search: SearchConfig{
			DefaultLimit: 100,
			CacheEnabled: true,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "wikirank",
			User:            "wikirank",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Enabled:       false,
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "wikirank-searcher",
			Topics: KafkaTopics{
				SearchEvents: "search-events",
				IndexUpdated: "index-updated",
			},
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			CacheTTL:  60 * time.Second,
			KeyPrefix: "wikirank:",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads WR_* environment variables and overrides the
// corresponding config fields. Malformed numeric values are ignored.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WR_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("WR_INDEX_BACKEND"); v != "" {
		cfg.Index.Backend = v
	}
	if v := os.Getenv("WR_INDEX_SEGMENT_PATH"); v != "" {
		cfg.Index.SegmentPath = v
	}
	if v := os.Getenv("WR_INDEX_META_BACKEND"); v != "" {
		cfg.Index.MetaBackend = v
	}
	if v := os.Getenv("WR_INDEX_META_PATH"); v != "" {
		cfg.Index.MetaPath = v
	}
	if v := os.Getenv("WR_RANKING_ALPHA"); v != "" {
		if alpha, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Ranking.Alpha = alpha
		}
	}
	if v := os.Getenv("WR_RANKING_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ranking.MaxWorkers = n
		}
	}
	if v := os.Getenv("WR_RANKING_MAX_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ranking.MaxResults = n
		}
	}
	if v := os.Getenv("WR_RANKING_PARALLEL"); v != "" {
		if parallel, err := strconv.ParseBool(v); err == nil {
			cfg.Ranking.Parallel = parallel
		}
	}
	if v := os.Getenv("WR_RANKING_FAILURE_POLICY"); v != "" {
		cfg.Ranking.FailurePolicy = v
	}
	if v := os.Getenv("WR_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("WR_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("WR_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("WR_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("WR_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("WR_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("WR_KAFKA_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = enabled
		}
	}
	if v := os.Getenv("WR_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("WR_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("WR_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("WR_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
