// Package config loads and validates termindex configuration from YAML files
// with environment-variable overrides. It provides typed structs for the build
// pipeline, the tokenizer, output artifacts, and the optional report sinks
// (Kafka, Redis, Postgres, Prometheus).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/Adithya-Monish-Kumar-K/termindex/pkg/errors"
)

// Term table lifetimes.
const (
	TermModeGlobal   = "global"
	TermModePerFlush = "per-flush"
)

// Document length definitions.
const (
	LengthModeTerms = "terms"
	LengthModeRaw   = "raw"
)

// Malformed-line policies.
const (
	OnMalformedSkip  = "skip"
	OnMalformedAbort = "abort"
)

// Config is the top-level application configuration.
type Config struct {
	Build     BuildConfig     `yaml:"build"`
	Tokenizer TokenizerConfig `yaml:"tokenizer"`
	Output    OutputConfig    `yaml:"output"`
	Filter    FilterConfig    `yaml:"filter"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Report    ReportConfig    `yaml:"report"`
}

// BuildConfig controls the streaming build: flush thresholds, progress
// reporting, and the term table and document length modes.
type BuildConfig struct {
	FlushEveryLines    int64         `yaml:"flushEveryLines"`
	FlushMaxBytes      int64         `yaml:"flushMaxBytes"`
	ParallelWrites     bool          `yaml:"parallelWrites"`
	ProgressEveryLines int           `yaml:"progressEveryLines"`
	ProgressInterval   time.Duration `yaml:"progressInterval"`
	TermMode           string        `yaml:"termMode"`
	LengthMode         string        `yaml:"lengthMode"`
	OnMalformed        string        `yaml:"onMalformed"`
}

// TokenizerConfig enables the optional term filters. Both are off by default
// so that terms are exactly the lowercased a-z residue of each fragment.
type TokenizerConfig struct {
	StopWords bool `yaml:"stopWords"`
	Stem      bool `yaml:"stem"`
}

// OutputConfig names the three artifacts written into the output directory.
type OutputConfig struct {
	Dir           string `yaml:"dir"`
	DocumentsFile string `yaml:"documentsFile"`
	TermsFile     string `yaml:"termsFile"`
	PostingsFile  string `yaml:"postingsFile"`
	BufferSize    int    `yaml:"bufferSize"`
	SyncOnFlush   bool   `yaml:"syncOnFlush"`
}

// FilterConfig controls the document filter utility.
type FilterConfig struct {
	Strict bool `yaml:"strict"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus scrape server and the optional
// Pushgateway push at the end of a build.
type MetricsConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Port           int    `yaml:"port"`
	PushgatewayURL string `yaml:"pushgatewayUrl"`
	JobName        string `yaml:"jobName"`
}

// KafkaConfig holds Kafka broker and topic settings for the build report.
type KafkaConfig struct {
	Enabled bool        `yaml:"enabled"`
	Brokers []string    `yaml:"brokers"`
	Topics  KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	IndexComplete string `yaml:"indexComplete"`
}

// RedisConfig holds Redis connection parameters for the build status hash.
type RedisConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	PoolSize  int           `yaml:"poolSize"`
	KeyPrefix string        `yaml:"keyPrefix"`
	StatusTTL time.Duration `yaml:"statusTTL"`
}

// PostgresConfig holds PostgreSQL connection parameters for the build catalog.
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

// ReportConfig bounds how much effort goes into the optional sinks. Sink
// failures are logged and never fail a build.
type ReportConfig struct {
	Timeout          time.Duration `yaml:"timeout"`
	MaxAttempts      int           `yaml:"maxAttempts"`
	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerCooldown  time.Duration `yaml:"breakerCooldown"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a validated Config populated with defaults for any
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

// Default returns a Config with defaults suitable for a single-machine build.
func Default() *Config {
	return &Config{
		Build: BuildConfig{
			FlushEveryLines:    1_000_000,
			ProgressEveryLines: 1_000_000,
			ProgressInterval:   30 * time.Second,
			TermMode:           TermModeGlobal,
			LengthMode:         LengthModeTerms,
			OnMalformed:        OnMalformedSkip,
		},
		Output: OutputConfig{
			Dir:           ".",
			DocumentsFile: "docs_out.txt",
			TermsFile:     "words_out.txt",
			PostingsFile:  "posts_out.txt",
			BufferSize:    1 << 20,
		},
		Filter: FilterConfig{
			Strict: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Port:    9090,
			JobName: "termindex",
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topics: KafkaTopics{
				IndexComplete: "index.complete",
			},
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			PoolSize:  4,
			KeyPrefix: "termindex:build:",
			StatusTTL: 7 * 24 * time.Hour,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "termindex",
			User:            "termindex",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    2,
			MaxIdleConns:    1,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Report: ReportConfig{
			Timeout:          5 * time.Second,
			MaxAttempts:      3,
			BreakerThreshold: 3,
			BreakerCooldown:  time.Minute,
		},
	}
}

// Validate rejects values the builder cannot run with.
func (c *Config) Validate() error {
	b := c.Build
	if b.FlushEveryLines <= 0 {
		return apperrors.Newf(apperrors.ErrInvalidConfig, apperrors.ExitUsage,
			"build.flushEveryLines must be positive, got %d", b.FlushEveryLines)
	}
	if b.FlushMaxBytes < 0 {
		return apperrors.Newf(apperrors.ErrInvalidConfig, apperrors.ExitUsage,
			"build.flushMaxBytes must not be negative, got %d", b.FlushMaxBytes)
	}
	switch b.TermMode {
	case TermModeGlobal, TermModePerFlush:
	default:
		return apperrors.Newf(apperrors.ErrInvalidConfig, apperrors.ExitUsage,
			"build.termMode must be %q or %q, got %q", TermModeGlobal, TermModePerFlush, b.TermMode)
	}
	switch b.LengthMode {
	case LengthModeTerms, LengthModeRaw:
	default:
		return apperrors.Newf(apperrors.ErrInvalidConfig, apperrors.ExitUsage,
			"build.lengthMode must be %q or %q, got %q", LengthModeTerms, LengthModeRaw, b.LengthMode)
	}
	switch b.OnMalformed {
	case OnMalformedSkip, OnMalformedAbort:
	default:
		return apperrors.Newf(apperrors.ErrInvalidConfig, apperrors.ExitUsage,
			"build.onMalformed must be %q or %q, got %q", OnMalformedSkip, OnMalformedAbort, b.OnMalformed)
	}
	o := c.Output
	if o.DocumentsFile == "" || o.TermsFile == "" || o.PostingsFile == "" {
		return apperrors.New(apperrors.ErrInvalidConfig, apperrors.ExitUsage,
			"output file names must not be empty")
	}
	if o.DocumentsFile == o.TermsFile || o.DocumentsFile == o.PostingsFile || o.TermsFile == o.PostingsFile {
		return apperrors.New(apperrors.ErrInvalidConfig, apperrors.ExitUsage,
			"output file names must be distinct")
	}
	return nil
}

// applyEnvOverrides reads TI_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TI_FLUSH_EVERY_LINES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Build.FlushEveryLines = n
		}
	}
	if v := os.Getenv("TI_FLUSH_MAX_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Build.FlushMaxBytes = n
		}
	}
	if v := os.Getenv("TI_TERM_MODE"); v != "" {
		cfg.Build.TermMode = v
	}
	if v := os.Getenv("TI_LENGTH_MODE"); v != "" {
		cfg.Build.LengthMode = v
	}
	if v := os.Getenv("TI_ON_MALFORMED"); v != "" {
		cfg.Build.OnMalformed = v
	}
	if v := os.Getenv("TI_OUTPUT_DIR"); v != "" {
		cfg.Output.Dir = v
	}
	if v := os.Getenv("TI_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TI_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("TI_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
	if v := os.Getenv("TI_PUSHGATEWAY_URL"); v != "" {
		cfg.Metrics.PushgatewayURL = v
	}
	if v := os.Getenv("TI_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("TI_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("TI_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("TI_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("TI_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("TI_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("TI_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("TI_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
}
