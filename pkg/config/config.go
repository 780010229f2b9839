// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// stage of the pipeline (Corpus, Index, Search, Evaluation) and for the
// optional external services (Redis, Kafka, Postgres, Metrics).
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-retrieval/pkg/errors"
)

// Config is the top-level application configuration.
type Config struct {
	Corpus     CorpusConfig     `yaml:"corpus"`
	Index      IndexConfig      `yaml:"index"`
	Search     SearchConfig     `yaml:"search"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Redis      RedisConfig      `yaml:"redis"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// CorpusConfig locates the raw documents and the stopword list.
type CorpusConfig struct {
	DocumentsDir  string `yaml:"documentsDir"`
	StopwordsPath string `yaml:"stopwordsPath"`
}

// IndexConfig controls where the persisted index lives and how it is built.
// The encoding is chosen from the file extension of Path.
type IndexConfig struct {
	Path    string `yaml:"path"`
	Rebuild bool   `yaml:"rebuild"`
	Workers int    `yaml:"workers"`
}

// SearchConfig holds the BM25 constants, the scoring strategy and the
// truncation policy for each mode.
type SearchConfig struct {
	K1                float64 `yaml:"k1"`
	B                 float64 `yaml:"b"`
	Strategy          string  `yaml:"strategy"`
	ExhaustiveMaxDocs int     `yaml:"exhaustiveMaxDocs"`
	BatchLimit        int     `yaml:"batchLimit"`
	InteractiveLimit  int     `yaml:"interactiveLimit"`
	Workers           int     `yaml:"workers"`
	QueriesPath       string  `yaml:"queriesPath"`
	RunPath           string  `yaml:"runPath"`
	QuitCommand       string  `yaml:"quitCommand"`
}

// EvaluationConfig locates the relevance judgments and selects metric
// policies.
type EvaluationConfig struct {
	QrelsPath   string `yaml:"qrelsPath"`
	QrelsFormat string `yaml:"qrelsFormat"`
	P10Mode     string `yaml:"p10Mode"`
	Label       string `yaml:"label"`
}

// RedisConfig holds Redis connection and caching parameters. When Redis is
// disabled, LocalCacheSize entries are cached in process instead (0 turns
// query caching off).
type RedisConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Addr           string        `yaml:"addr"`
	Password       string        `yaml:"password"`
	DB             int           `yaml:"db"`
	PoolSize       int           `yaml:"poolSize"`
	CacheTTL       time.Duration `yaml:"cacheTTL"`
	LocalCacheSize int           `yaml:"localCacheSize"`
}

// KafkaConfig holds Kafka broker and topic settings for query analytics.
type KafkaConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Brokers    []string `yaml:"brokers"`
	Topic      string   `yaml:"topic"`
	BufferSize int      `yaml:"bufferSize"`
}

// PostgresConfig holds PostgreSQL connection parameters for the evaluation
// archive.
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
// values and validated before use.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, apperrors.Configuration(path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, apperrors.Newf(apperrors.ErrConfiguration, path, "parsing config: %v", err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, apperrors.New(apperrors.ErrConfiguration, path, err.Error())
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading any file.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Corpus: CorpusConfig{
			DocumentsDir: "documents",
		},
		Index: IndexConfig{
			Path: "index.json",
		},
		Search: SearchConfig{
			K1:                1,
			B:                 0.75,
			Strategy:          "auto",
			ExhaustiveMaxDocs: 2000,
			BatchLimit:        0,
			InteractiveLimit:  15,
			QueriesPath:       "files/queries.txt",
			RunPath:           "files/results.txt",
			QuitCommand:       "QUIT",
		},
		Evaluation: EvaluationConfig{
			QrelsPath:   "files/qrels.txt",
			QrelsFormat: "simple",
			P10Mode:     "strict",
		},
		Redis: RedisConfig{
			Addr:           "localhost:6379",
			PoolSize:       10,
			CacheTTL:       10 * time.Minute,
			LocalCacheSize: 1024,
		},
		Kafka: KafkaConfig{
			Brokers:    []string{"localhost:9092"},
			Topic:      "query-events",
			BufferSize: 10000,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "bm25eval",
			User:            "bm25eval",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Port: 9090,
		},
	}
}

// Validate rejects settings the pipeline cannot honour.
func (c *Config) Validate() error {
	if math.IsNaN(c.Search.K1) || math.IsInf(c.Search.K1, 0) {
		return fmt.Errorf("search.k1 must be a finite number, got %v", c.Search.K1)
	}
	if math.IsNaN(c.Search.B) {
		return fmt.Errorf("search.b must be a number, got %v", c.Search.B)
	}
	if c.Search.K1 < 0 {
		return fmt.Errorf("search.k1 must be >= 0, got %v", c.Search.K1)
	}
	if c.Search.B < 0 || c.Search.B > 1 {
		return fmt.Errorf("search.b must be within [0,1], got %v", c.Search.B)
	}
	switch c.Search.Strategy {
	case "auto", "postings", "exhaustive":
	default:
		return fmt.Errorf("search.strategy %q is not one of auto, postings, exhaustive", c.Search.Strategy)
	}
	switch c.Evaluation.QrelsFormat {
	case "simple", "trec":
	default:
		return fmt.Errorf("evaluation.qrelsFormat %q is not one of simple, trec", c.Evaluation.QrelsFormat)
	}
	switch c.Evaluation.P10Mode {
	case "strict", "partial":
	default:
		return fmt.Errorf("evaluation.p10Mode %q is not one of strict, partial", c.Evaluation.P10Mode)
	}
	if c.Index.Path == "" {
		return fmt.Errorf("index.path must not be empty")
	}
	return nil
}

// applyEnvOverrides reads IR_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("IR_DOCUMENTS_DIR"); v != "" {
		cfg.Corpus.DocumentsDir = v
	}
	if v := os.Getenv("IR_STOPWORDS_PATH"); v != "" {
		cfg.Corpus.StopwordsPath = v
	}
	if v := os.Getenv("IR_INDEX_PATH"); v != "" {
		cfg.Index.Path = v
	}
	if v := os.Getenv("IR_SEARCH_K1"); v != "" {
		if k1, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Search.K1 = k1
		}
	}
	if v := os.Getenv("IR_SEARCH_B"); v != "" {
		if b, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Search.B = b
		}
	}
	if v := os.Getenv("IR_SEARCH_STRATEGY"); v != "" {
		cfg.Search.Strategy = v
	}
	if v := os.Getenv("IR_QRELS_PATH"); v != "" {
		cfg.Evaluation.QrelsPath = v
	}
	if v := os.Getenv("IR_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("IR_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("IR_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("IR_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("IR_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("IR_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("IR_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("IR_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
