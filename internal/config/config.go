package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Brands    BrandsConfig    `yaml:"brands" mapstructure:"brands"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Cluster   ClusterConfig   `yaml:"cluster" mapstructure:"cluster"`
	Embedding EmbeddingConfig `yaml:"embedding" mapstructure:"embedding"`
	Jina      JinaConfig      `yaml:"jina" mapstructure:"jina"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Circuit   CircuitConfig   `yaml:"circuit" mapstructure:"circuit"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// BrandsConfig points at the brand dictionary. An empty path uses the
// built-in dictionary.
type BrandsConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PipelineConfig controls worker pools and bucket policy.
type PipelineConfig struct {
	ParseWorkers         int  `yaml:"parse_workers" mapstructure:"parse_workers"`
	ClusterWorkers       int  `yaml:"cluster_workers" mapstructure:"cluster_workers"`
	ShopCount            int  `yaml:"shop_count" mapstructure:"shop_count"`
	MinClusterSize       int  `yaml:"min_cluster_size" mapstructure:"min_cluster_size"`
	SplitSameShop        bool `yaml:"split_same_shop" mapstructure:"split_same_shop"`
	ClusterUnknownBucket bool `yaml:"cluster_unknown_bucket" mapstructure:"cluster_unknown_bucket"`
}

// ClusterConfig tunes the density clusterer.
type ClusterConfig struct {
	MinSamples       int     `yaml:"min_samples" mapstructure:"min_samples"`
	MaxMergeDistance float64 `yaml:"max_merge_distance" mapstructure:"max_merge_distance"`
}

// EmbeddingConfig selects the embedding backend.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider" mapstructure:"provider"`
	BatchSize  int    `yaml:"batch_size" mapstructure:"batch_size"`
	Dimensions int    `yaml:"dimensions" mapstructure:"dimensions"`
}

// JinaConfig holds Jina embeddings API settings.
type JinaConfig struct {
	Key        string  `yaml:"key" mapstructure:"key"`
	BaseURL    string  `yaml:"base_url" mapstructure:"base_url"`
	Model      string  `yaml:"model" mapstructure:"model"`
	Task       string  `yaml:"task" mapstructure:"task"`
	RatePerSec float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// RetryConfig configures backoff for backend calls.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	Jitter           float64 `yaml:"jitter" mapstructure:"jitter"`
}

// CircuitConfig configures the backend circuit breaker.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// StoreConfig configures the result sink.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// Embedding providers.
const (
	ProviderJina = "jina"
	ProviderHash = "hash"
)

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SHELFMATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("brands.path", "")
	v.SetDefault("pipeline.parse_workers", 8)
	v.SetDefault("pipeline.cluster_workers", 4)
	v.SetDefault("pipeline.shop_count", 5)
	v.SetDefault("pipeline.min_cluster_size", 2)
	v.SetDefault("pipeline.split_same_shop", true)
	v.SetDefault("pipeline.cluster_unknown_bucket", false)
	v.SetDefault("cluster.min_samples", 0)
	v.SetDefault("cluster.max_merge_distance", 0.2)
	v.SetDefault("embedding.provider", ProviderJina)
	v.SetDefault("embedding.batch_size", 64)
	v.SetDefault("embedding.dimensions", 256)
	v.SetDefault("jina.key", "")
	v.SetDefault("jina.base_url", "https://api.jina.ai")
	v.SetDefault("jina.model", "jina-embeddings-v3")
	v.SetDefault("jina.task", "text-matching")
	v.SetDefault("jina.rate_per_sec", 5.0)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 200)
	v.SetDefault("retry.max_backoff_ms", 5000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter", 0.2)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)
	v.SetDefault("store.driver", "none")
	v.SetDefault("store.database_url", "")

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

// Validate rejects settings the pipeline cannot run with. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []string
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, msg)
		}
	}

	check(c.Pipeline.ParseWorkers >= 1, "pipeline.parse_workers must be >= 1")
	check(c.Pipeline.ClusterWorkers >= 1, "pipeline.cluster_workers must be >= 1")
	check(c.Pipeline.ShopCount >= 0, "pipeline.shop_count must be >= 0")
	check(c.Pipeline.MinClusterSize >= 2, "pipeline.min_cluster_size must be >= 2")
	check(c.Cluster.MinSamples >= 0, "cluster.min_samples must be >= 0")
	check(c.Cluster.MaxMergeDistance > 0 && c.Cluster.MaxMergeDistance <= 2,
		"cluster.max_merge_distance must be in (0, 2]")
	check(c.Embedding.BatchSize >= 0, "embedding.batch_size must be >= 0")
	check(c.Retry.MaxAttempts >= 1, "retry.max_attempts must be >= 1")
	check(c.Circuit.FailureThreshold >= 1, "circuit.failure_threshold must be >= 1")

	switch c.Embedding.Provider {
	case ProviderHash:
	case ProviderJina:
		check(c.Jina.Key != "", "jina.key is required when embedding.provider is jina")
	default:
		errs = append(errs, fmt.Sprintf("unknown embedding.provider %q", c.Embedding.Provider))
	}

	switch c.Store.Driver {
	case "", "none":
	case "sqlite", "postgres":
		check(c.Store.DatabaseURL != "", "store.database_url is required for driver "+c.Store.Driver)
	default:
		errs = append(errs, fmt.Sprintf("unknown store.driver %q", c.Store.Driver))
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
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
