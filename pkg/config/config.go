// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Telegram, Providers, Search,
// Ranking, etc.).
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
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Providers ProvidersConfig `yaml:"providers"`
	Search    SearchConfig    `yaml:"search"`
	Ranking   RankingConfig   `yaml:"ranking"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RateLimit       int           `yaml:"rateLimit"`
	RateWindow      time.Duration `yaml:"rateWindow"`
	CORSOrigins     []string      `yaml:"corsOrigins"`
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
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	PoolSize    int           `yaml:"poolSize"`
	CacheTTL    time.Duration `yaml:"cacheTTL"`
	KeyPrefix   string        `yaml:"keyPrefix"`
	DialTimeout time.Duration `yaml:"dialTimeout"`
	OpTimeout   time.Duration `yaml:"opTimeout"`
}

// TelegramConfig holds bot credentials and the relay channel used when a
// direct audio upload into the target chat is refused.
type TelegramConfig struct {
	Token               string        `yaml:"token"`
	AdminID             int64         `yaml:"adminId"`
	DumpChannelID       int64         `yaml:"dumpChannelId"`
	DumpChannelUsername string        `yaml:"dumpChannelUsername"`
	PollTimeout         int           `yaml:"pollTimeout"`
	InlineLimit         int           `yaml:"inlineLimit"`
	InlineCacheTime     int           `yaml:"inlineCacheTime"`
	RateLimit           int           `yaml:"rateLimit"`
	RateWindow          time.Duration `yaml:"rateWindow"`
}

// ProvidersConfig groups the upstream music providers.
type ProvidersConfig struct {
	SoundCloud SoundCloudConfig `yaml:"soundcloud"`
	Piped      PipedConfig      `yaml:"piped"`
}

// SoundCloudConfig configures the SoundCloud private API client.
type SoundCloudConfig struct {
	Enabled          bool          `yaml:"enabled"`
	APIURL           string        `yaml:"apiUrl"`
	DiscoverURL      string        `yaml:"discoverUrl"`
	FallbackClientID string        `yaml:"fallbackClientId"`
	AppVersion       string        `yaml:"appVersion"`
	SearchLimit      int           `yaml:"searchLimit"`
	MaxTitleLength   int           `yaml:"maxTitleLength"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxConcurrent    int           `yaml:"maxConcurrent"`
}

// PipedConfig configures the YouTube front-end mirror client.
type PipedConfig struct {
	Enabled       bool          `yaml:"enabled"`
	URL           string        `yaml:"url"`
	SearchLimit   int           `yaml:"searchLimit"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxConcurrent int           `yaml:"maxConcurrent"`
}

// SearchConfig controls query execution limits and timeouts.
type SearchConfig struct {
	MaxResults     int           `yaml:"maxResults"`
	DefaultLimit   int           `yaml:"defaultLimit"`
	MinQueryLength int           `yaml:"minQueryLength"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxConcurrent  int           `yaml:"maxConcurrent"`
}

// AnalyticsConfig controls event collection and snapshotting.
type AnalyticsConfig struct {
	Enabled           bool          `yaml:"enabled"`
	BufferSize        int           `yaml:"bufferSize"`
	BatchSize         int           `yaml:"batchSize"`
	FlushInterval     time.Duration `yaml:"flushInterval"`
	SnapshotInterval  time.Duration `yaml:"snapshotInterval"`
	SnapshotRetention time.Duration `yaml:"snapshotRetention"`
	TopN              int           `yaml:"topN"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls span logging. Failed traces and traces slower
// than SlowThreshold are logged regardless of SampleRate.
type TracingConfig struct {
	Enabled       bool          `yaml:"enabled"`
	SampleRate    float64       `yaml:"sampleRate"`
	SlowThreshold time.Duration `yaml:"slowThreshold"`
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
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Ranking.Validate(); err != nil {
		return nil, fmt.Errorf("validating ranking config: %w", err)
	}
	return cfg, nil
}

// defaultConfig returns a Config with production-ready defaults for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimit:       120,
			RateWindow:      time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "musicbot",
			User:            "musicbot",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "musicbot-analytics",
			Topics: KafkaTopics{
				AnalyticsEvents: "musicbot-analytics-events",
			},
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			Password:    "",
			DB:          0,
			PoolSize:    10,
			CacheTTL:    600 * time.Second,
			KeyPrefix:   "musicbot:",
			DialTimeout: 2 * time.Second,
			OpTimeout:   500 * time.Millisecond,
		},
		Telegram: TelegramConfig{
			PollTimeout:     60,
			InlineLimit:     10,
			InlineCacheTime: 300,
			RateLimit:       20,
			RateWindow:      time.Minute,
		},
		Providers: ProvidersConfig{
			SoundCloud: SoundCloudConfig{
				Enabled:          true,
				APIURL:           "https://api-v2.soundcloud.com",
				DiscoverURL:      "https://soundcloud.com/discover",
				FallbackClientID: "LMlJPYvzQSVyjYv7faMQl9W7OjTBCaq4",
				AppVersion:       "1699953100",
				SearchLimit:      60,
				MaxTitleLength:   150,
				Timeout:          2500 * time.Millisecond,
				MaxConcurrent:    6,
			},
			Piped: PipedConfig{
				Enabled:       true,
				URL:           "https://api.piped.private.coffee",
				SearchLimit:   40,
				Timeout:       4 * time.Second,
				MaxConcurrent: 4,
			},
		},
		Search: SearchConfig{
			MaxResults:     50,
			DefaultLimit:   10,
			MinQueryLength: 2,
			Timeout:        6 * time.Second,
			MaxConcurrent:  6,
		},
		Ranking: DefaultRanking(),
		Analytics: AnalyticsConfig{
			Enabled:           true,
			BufferSize:        10000,
			BatchSize:         100,
			FlushInterval:     5 * time.Second,
			SnapshotInterval:  time.Minute,
			SnapshotRetention: 30 * 24 * time.Hour,
			TopN:              10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			SampleRate:    0.1,
			SlowThreshold: 2 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads TB_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TB_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("TB_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("TB_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("TB_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("TB_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("TB_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("TB_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("TB_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("TB_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("TB_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("TB_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("TB_TELEGRAM_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("TB_ADMIN_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Telegram.AdminID = id
		}
	}
	if v := os.Getenv("TB_DUMP_CHANNEL_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Telegram.DumpChannelID = id
		}
	}
	if v := os.Getenv("TB_DUMP_CHANNEL_USERNAME"); v != "" {
		cfg.Telegram.DumpChannelUsername = v
	}
	if v := os.Getenv("TB_SOUNDCLOUD_CLIENT_ID"); v != "" {
		cfg.Providers.SoundCloud.FallbackClientID = v
	}
	if v := os.Getenv("TB_PIPED_URL"); v != "" {
		cfg.Providers.Piped.URL = v
	}
	if v := os.Getenv("TB_ANALYTICS_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Analytics.Enabled = enabled
		}
	}
	if v := os.Getenv("TB_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TB_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
