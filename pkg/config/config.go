// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for the
// indexing core and the services around it (Postgres field registry, Redis
// postings cache, Kafka ingest and partition events).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Indexer  IndexerConfig  `yaml:"indexer"`
	Merge    MergeConfig    `yaml:"merge"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Fields   []FieldConfig  `yaml:"fields"`
}

// FieldConfig declares one indexed field. Attrs is a comma separated
// attribute list such as "cased,uncased,positions".
type FieldConfig struct {
	Name  string `yaml:"name"`
	Type  string `yaml:"type"`
	Attrs string `yaml:"attrs"`
}

// IndexerConfig controls partition sizing, flush cadence and the on-disk
// dictionary paging parameters.
type IndexerConfig struct {
	DataDir             string        `yaml:"dataDir"`
	MaxDocsPerPartition int           `yaml:"maxDocsPerPartition"`
	MaxMemoryBytes      int64         `yaml:"maxMemoryBytes"`
	FlushInterval       time.Duration `yaml:"flushInterval"`
	PageSize            int           `yaml:"pageSize"`
	PageCacheSize       int           `yaml:"pageCacheSize"`
	BufferInitialSize   int           `yaml:"bufferInitialSize"`
	FlushQueueDepth     int           `yaml:"flushQueueDepth"`
}

// MergeConfig controls the offline partition merge.
type MergeConfig struct {
	MergeFactor        int           `yaml:"mergeFactor"`
	Interval           time.Duration `yaml:"interval"`
	AllowDuplicateKeys bool          `yaml:"allowDuplicateKeys"`
	Parallelism        int           `yaml:"parallelism"`
}

// PostgresConfig holds PostgreSQL connection parameters for the field registry.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
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
	DocumentIngest string `yaml:"documentIngest"`
	IndexComplete  string `yaml:"indexComplete"`
}

// RedisConfig holds Redis connection and postings cache parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
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
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
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
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config with defaults suitable for local development.
func Default() *Config {
	return &Config{
		Indexer: IndexerConfig{
			DataDir:             "data/index",
			MaxDocsPerPartition: 10000,
			MaxMemoryBytes:      64 << 20,
			FlushInterval:       30 * time.Second,
			PageSize:            256,
			PageCacheSize:       1024,
			BufferInitialSize:   4096,
			FlushQueueDepth:     4,
		},
		Merge: MergeConfig{
			MergeFactor: 4,
			Interval:    5 * time.Minute,
			Parallelism: 4,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "lexicon",
			User:            "lexicon",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "lexicon-indexer",
			Topics: KafkaTopics{
				DocumentIngest: "document-ingest",
				IndexComplete:  "index.complete",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
		Fields: []FieldConfig{
			{Name: "title", Type: "string", Attrs: "cased,uncased,positions"},
			{Name: "body", Type: "string", Attrs: "uncased,stemmed,positions,vector,drop-stop-words"},
			{Name: "tags", Type: "string", Attrs: "saved,saved-uncased"},
			{Name: "published", Type: "date", Attrs: "saved"},
		},
	}
}

// Validate rejects settings the indexing core cannot run with.
func (c *Config) Validate() error {
	if c.Indexer.DataDir == "" {
		return fmt.Errorf("indexer.dataDir must be set")
	}
	if c.Indexer.PageSize <= 0 {
		return fmt.Errorf("indexer.pageSize must be positive, got %d", c.Indexer.PageSize)
	}
	if c.Indexer.MaxDocsPerPartition <= 0 {
		return fmt.Errorf("indexer.maxDocsPerPartition must be positive, got %d", c.Indexer.MaxDocsPerPartition)
	}
	seen := make(map[string]bool, len(c.Fields))
	for _, f := range c.Fields {
		if f.Name == "" {
			return fmt.Errorf("fields: name must be set")
		}
		if seen[f.Name] {
			return fmt.Errorf("fields: %s declared twice", f.Name)
		}
		seen[f.Name] = true
	}
	if c.Merge.MergeFactor < 2 {
		return fmt.Errorf("merge.mergeFactor must be at least 2, got %d", c.Merge.MergeFactor)
	}
	return nil
}

// applyEnvOverrides reads LX_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LX_DATA_DIR"); v != "" {
		cfg.Indexer.DataDir = v
	}
	if v := os.Getenv("LX_MAX_DOCS_PER_PARTITION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.MaxDocsPerPartition = n
		}
	}
	if v := os.Getenv("LX_FLUSH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Indexer.FlushInterval = d
		}
	}
	if v := os.Getenv("LX_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.PageSize = n
		}
	}
	if v := os.Getenv("LX_MERGE_FACTOR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Merge.MergeFactor = n
		}
	}
	for env, dst := range map[string]*bool{
		"LX_POSTGRES_ENABLED": &cfg.Postgres.Enabled,
		"LX_KAFKA_ENABLED":    &cfg.Kafka.Enabled,
		"LX_REDIS_ENABLED":    &cfg.Redis.Enabled,
	} {
		if b, err := strconv.ParseBool(os.Getenv(env)); err == nil {
			*dst = b
		}
	}
	if v := os.Getenv("LX_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("LX_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("LX_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("LX_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("LX_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LX_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("LX_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
