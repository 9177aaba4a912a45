package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Empty(t, cfg.Brands.Path)
	assert.Equal(t, 8, cfg.Pipeline.ParseWorkers)
	assert.Equal(t, 4, cfg.Pipeline.ClusterWorkers)
	assert.Equal(t, 5, cfg.Pipeline.ShopCount)
	assert.Equal(t, 2, cfg.Pipeline.MinClusterSize)
	assert.True(t, cfg.Pipeline.SplitSameShop)
	assert.False(t, cfg.Pipeline.ClusterUnknownBucket)
	assert.InDelta(t, 0.2, cfg.Cluster.MaxMergeDistance, 1e-9)
	assert.Equal(t, ProviderJina, cfg.Embedding.Provider)
	assert.Equal(t, 64, cfg.Embedding.BatchSize)
	assert.Equal(t, "https://api.jina.ai", cfg.Jina.BaseURL)
	assert.Equal(t, "jina-embeddings-v3", cfg.Jina.Model)
	assert.Equal(t, "text-matching", cfg.Jina.Task)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 200, cfg.Retry.InitialBackoffMs)
	assert.Equal(t, 5, cfg.Circuit.FailureThreshold)
	assert.Equal(t, "none", cfg.Store.Driver)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
  format: console
pipeline:
  shop_count: 7
  split_same_shop: false
cluster:
  max_merge_distance: 0.35
embedding:
  provider: hash
store:
  driver: sqlite
  database_url: shelfmatch.db
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 7, cfg.Pipeline.ShopCount)
	assert.False(t, cfg.Pipeline.SplitSameShop)
	assert.InDelta(t, 0.35, cfg.Cluster.MaxMergeDistance, 1e-9)
	assert.Equal(t, ProviderHash, cfg.Embedding.Provider)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	// Defaults still apply for unset values
	assert.Equal(t, 8, cfg.Pipeline.ParseWorkers)
	assert.NoError(t, cfg.Validate())
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("SHELFMATCH_STORE_DRIVER", "postgres")
	t.Setenv("SHELFMATCH_LOG_LEVEL", "warn")
	t.Setenv("SHELFMATCH_JINA_KEY", "jina_test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "jina_test", cfg.Jina.Key)
}

func TestLoadBadYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log: [unclosed"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	assert.Error(t, InitLogger(LogConfig{Level: "invalid", Format: "json"}))
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Pipeline.ParseWorkers = 8
	cfg.Pipeline.ClusterWorkers = 4
	cfg.Pipeline.ShopCount = 5
	cfg.Pipeline.MinClusterSize = 2
	cfg.Cluster.MaxMergeDistance = 0.2
	cfg.Embedding.Provider = ProviderHash
	cfg.Retry.MaxAttempts = 3
	cfg.Circuit.FailureThreshold = 5
	cfg.Store.Driver = "none"
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	assert.NoError(t, validDefaults().Validate())
}

func TestValidate_JinaNeedsKey(t *testing.T) {
	cfg := validDefaults()
	cfg.Embedding.Provider = ProviderJina

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jina.key is required")

	cfg.Jina.Key = "jina_x"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_StoreNeedsURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required for driver postgres")

	cfg.Store.Driver = "mysql"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown store.driver "mysql"`)
}

func TestValidate_MaxMergeDistanceMustBePositive(t *testing.T) {
	for _, d := range []float64{0, -0.1} {
		cfg := validDefaults()
		cfg.Cluster.MaxMergeDistance = d

		err := cfg.Validate()
		require.Error(t, err, "distance %v", d)
		assert.Contains(t, err.Error(), "cluster.max_merge_distance must be in (0, 2]")
	}

	cfg := validDefaults()
	cfg.Cluster.MaxMergeDistance = 2
	assert.NoError(t, cfg.Validate())
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := validDefaults()
	cfg.Pipeline.ParseWorkers = 0
	cfg.Pipeline.MinClusterSize = 1
	cfg.Cluster.MaxMergeDistance = 3
	cfg.Embedding.Provider = "openai"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline.parse_workers must be >= 1")
	assert.Contains(t, err.Error(), "pipeline.min_cluster_size must be >= 2")
	assert.Contains(t, err.Error(), "cluster.max_merge_distance must be in (0, 2]")
	assert.Contains(t, err.Error(), `unknown embedding.provider "openai"`)
}
