package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Temporal  TemporalConfig  `yaml:"temporal" mapstructure:"temporal"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Search    SearchConfig    `yaml:"search" mapstructure:"search"`
	Profile   ProfileConfig   `yaml:"profile" mapstructure:"profile"`
	Reader    ReaderConfig    `yaml:"reader" mapstructure:"reader"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// TemporalConfig configures the durable task queue connection.
type TemporalConfig struct {
	HostPort  string `yaml:"host_port" mapstructure:"host_port"`
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
	TaskQueue string `yaml:"task_queue" mapstructure:"task_queue"`
}

// PipelineConfig configures stage execution and aggregation.
type PipelineConfig struct {
	// WorkerConcurrency is the fixed shard fan-out width. It matches the
	// deployed worker pool size rather than being auto-detected.
	WorkerConcurrency int `yaml:"worker_concurrency" mapstructure:"worker_concurrency"`

	// StageAttempts bounds per-stage execution attempts before the report
	// is marked failed.
	StageAttempts int `yaml:"stage_attempts" mapstructure:"stage_attempts"`

	// StageBackoffSecs is the fixed delay between stage attempts.
	StageBackoffSecs int `yaml:"stage_backoff_secs" mapstructure:"stage_backoff_secs"`

	// StageTimeoutSecs bounds a single stage execution.
	StageTimeoutSecs int `yaml:"stage_timeout_secs" mapstructure:"stage_timeout_secs"`

	// ShardTimeoutSecs bounds a single shard worker execution.
	ShardTimeoutSecs int `yaml:"shard_timeout_secs" mapstructure:"shard_timeout_secs"`

	// FreshnessMonths is the rolling aggregation window. Wider than the
	// nominal 12-month relevance window because source dates are coarse.
	FreshnessMonths int `yaml:"freshness_months" mapstructure:"freshness_months"`
}

// SearchConfig configures the source-discovery collaborator. Search goes
// through the same Jina key as the reader.
type SearchConfig struct {
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	MaxResults int    `yaml:"max_results" mapstructure:"max_results"`
}

// ProfileConfig configures the profile-enrichment collaborator.
type ProfileConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// ReaderConfig configures content fetching for extraction.
type ReaderConfig struct {
	Key          string  `yaml:"key" mapstructure:"key"`
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec   float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	MaxBodyBytes int64   `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// AnthropicConfig holds Anthropic API settings for content classification.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// ServerConfig configures the HTTP trigger/admin server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RESEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "outreach-research")
	v.SetDefault("pipeline.worker_concurrency", 8)
	v.SetDefault("pipeline.stage_attempts", 3)
	v.SetDefault("pipeline.stage_backoff_secs", 10)
	v.SetDefault("pipeline.stage_timeout_secs", 300)
	v.SetDefault("pipeline.shard_timeout_secs", 600)
	v.SetDefault("pipeline.freshness_months", 15)
	v.SetDefault("search.base_url", "https://s.jina.ai")
	v.SetDefault("search.max_results", 30)
	v.SetDefault("profile.base_url", "https://api.perplexity.ai")
	v.SetDefault("profile.model", "sonar-pro")
	v.SetDefault("reader.base_url", "https://r.jina.ai")
	v.SetDefault("reader.timeout_secs", 30)
	v.SetDefault("reader.rate_per_sec", 2.0)
	v.SetDefault("reader.max_body_bytes", 2_000_000)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
