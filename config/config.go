package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/contentforge/review-api/internal/email"
	"github.com/contentforge/review-api/internal/service/checks"
	"github.com/contentforge/review-api/pkg/messaging/redis"
	"github.com/contentforge/review-api/pkg/worker"
)

type ServerConfig struct {
	Port           int           `yaml:"port" envconfig:"SERVER_PORT"`
	ReadTimeout    time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT"`
	WriteTimeout   time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT"`
	RequestTimeout time.Duration `yaml:"request_timeout" envconfig:"SERVER_REQUEST_TIMEOUT"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host" envconfig:"DB_HOST"`
	Port     int    `yaml:"port" envconfig:"DB_PORT"`
	User     string `yaml:"user" envconfig:"DB_USER"`
	Password string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name     string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode  string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
}

type RedisConfig struct {
	URL          string        `yaml:"url" envconfig:"REDIS_URL"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
}

type JWTConfig struct {
	Secret      string `yaml:"secret" envconfig:"JWT_SECRET"`
	ExpiryHours int    `yaml:"expiry_hours" envconfig:"JWT_EXPIRY_HOURS"`
}

type SMTPConfig struct {
	Host     string `yaml:"host" envconfig:"SMTP_HOST"`
	Port     int    `yaml:"port" envconfig:"SMTP_PORT"`
	Username string `yaml:"username" envconfig:"SMTP_USERNAME"`
	Password string `yaml:"password" envconfig:"SMTP_PASSWORD"`
	From     string `yaml:"from" envconfig:"SMTP_FROM"`
}

type OutboxConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

type RetentionConfig struct {
	Interval         time.Duration `yaml:"interval"`
	OutboxRetention  time.Duration `yaml:"outbox_retention"`
	ArchiveRetention time.Duration `yaml:"archive_retention"`
}

type ChecksConfig struct {
	Timeout               time.Duration `yaml:"timeout"`
	PlagiarismMaxScore    float64       `yaml:"plagiarism_max_score"`
	GrammarMinScore       float64       `yaml:"grammar_min_score"`
	SEOMinScore           float64       `yaml:"seo_min_score"`
	MinWordCount          int           `yaml:"min_word_count"`
	MinUniqueWordRatio    float64       `yaml:"min_unique_word_ratio"`
	MinSentenceVariety    float64       `yaml:"min_sentence_variety"`
	MinParagraphStructure float64       `yaml:"min_paragraph_structure"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	JWT       JWTConfig       `yaml:"jwt"`
	SMTP      SMTPConfig      `yaml:"smtp"`
	Outbox    OutboxConfig    `yaml:"outbox"`
	Retention RetentionConfig `yaml:"retention"`
	Checks    ChecksConfig    `yaml:"checks"`

	RateLimit struct {
		Enabled           bool    `yaml:"enabled"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	Security struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
		AllowedMethods []string `yaml:"allowed_methods"`
		AllowedHeaders []string `yaml:"allowed_headers"`
	} `yaml:"security"`
	Monitoring struct {
		PrometheusEnabled bool   `yaml:"prometheus_enabled"`
		MetricsPath       string `yaml:"metrics_path"`
	} `yaml:"monitoring"`
}

// LoadConfig reads config.yml and applies environment overrides on top, so
// deployments can keep secrets out of the file.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/app")
	viper.AddConfigPath("/app/config")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process("", &config); err != nil {
		return nil, fmt.Errorf("failed to apply env overrides: %w", err)
	}

	return &config, nil
}

func (c *OutboxConfig) ToWorkerConfig() worker.OutboxProcessorConfig {
	return worker.OutboxProcessorConfig{
		BatchSize:     c.BatchSize,
		PollInterval:  c.PollInterval,
		RetryAttempts: c.RetryAttempts,
		RetryDelay:    c.RetryDelay,
	}
}

func (c *RedisConfig) ToBrokerConfig() redis.Config {
	return redis.Config{
		URL:          c.URL,
		MaxRetries:   c.MaxRetries,
		RetryBackoff: c.RetryBackoff,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
	}
}

func (c *SMTPConfig) ToEmailConfig() email.Config {
	return email.Config{
		Host:     c.Host,
		Port:     c.Port,
		Username: c.Username,
		Password: c.Password,
		From:     c.From,
	}
}

// ToThresholds merges configured values over the built-in defaults; a zero
// value means "use the default".
func (c *ChecksConfig) ToThresholds() checks.Thresholds {
	t := checks.DefaultThresholds()
	if c.PlagiarismMaxScore > 0 {
		t.PlagiarismMaxScore = c.PlagiarismMaxScore
	}
	if c.GrammarMinScore > 0 {
		t.GrammarMinScore = c.GrammarMinScore
	}
	if c.SEOMinScore > 0 {
		t.SEOMinScore = c.SEOMinScore
	}
	if c.MinWordCount > 0 {
		t.MinWordCount = c.MinWordCount
	}
	if c.MinUniqueWordRatio > 0 {
		t.MinUniqueWordRatio = c.MinUniqueWordRatio
	}
	if c.MinSentenceVariety > 0 {
		t.MinSentenceVariety = c.MinSentenceVariety
	}
	if c.MinParagraphStructure > 0 {
		t.MinParagraphStructure = c.MinParagraphStructure
	}
	return t
}
