package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/shelfmatch/internal/brand"
	"github.com/sells-group/shelfmatch/internal/cluster"
	"github.com/sells-group/shelfmatch/internal/config"
	"github.com/sells-group/shelfmatch/internal/parse"
	"github.com/sells-group/shelfmatch/internal/pipeline"
	"github.com/sells-group/shelfmatch/internal/resilience"
	"github.com/sells-group/shelfmatch/internal/store"
	"github.com/sells-group/shelfmatch/pkg/jina"
)

// pipelineEnv holds the pipeline and the optional result store used by the
// unify command.
type pipelineEnv struct {
	Store    store.Store // nil when store.driver is none
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline validates config, loads the brand dictionary, builds the
// embedding and clustering backends and opens the store. Callers should
// defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dict, err := loadDictionary(cfg.Brands.Path)
	if err != nil {
		return nil, err
	}

	sc, err := newSemanticClusterer(cfg)
	if err != nil {
		return nil, err
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	parser := parse.New()
	zap.L().Debug("title parser ready", zap.String("rules", parse.Describe(parser.Rules())))

	p := pipeline.New(brand.NewExtractor(dict), parser, sc, pipeline.Config{
		ParseWorkers:   cfg.Pipeline.ParseWorkers,
		ClusterWorkers: cfg.Pipeline.ClusterWorkers,
	})

	return &pipelineEnv{Store: st, Pipeline: p}, nil
}

// loadDictionary reads the dictionary at path, or the built-in one when path
// is empty.
func loadDictionary(path string) (*brand.Dictionary, error) {
	if path == "" {
		dict, err := brand.DefaultDictionary()
		if err != nil {
			return nil, eris.Wrap(err, "load built-in brand dictionary")
		}
		return dict, nil
	}

	dict, err := brand.LoadDictionary(path)
	if err != nil {
		return nil, eris.Wrapf(err, "load brand dictionary %s", path)
	}
	zap.L().Info("brand dictionary loaded",
		zap.String("path", path),
		zap.Int("brands", dict.Len()),
		zap.Int("patterns", dict.Patterns()),
	)
	return dict, nil
}

// newEmbedder builds the configured embedding backend.
func newEmbedder(c *config.Config) (cluster.Embedder, error) {
	switch c.Embedding.Provider {
	case config.ProviderHash:
		zap.L().Info("using offline hash embedder", zap.Int("dimensions", c.Embedding.Dimensions))
		return &cluster.HashEmbedder{Dimensions: c.Embedding.Dimensions}, nil
	case config.ProviderJina:
		if c.Jina.Key == "" {
			return nil, eris.New("jina API key is required (SHELFMATCH_JINA_KEY)")
		}
		client := jina.NewClient(c.Jina.Key,
			jina.WithBaseURL(c.Jina.BaseURL),
			jina.WithModel(c.Jina.Model),
			jina.WithTask(c.Jina.Task),
			jina.WithDimensions(c.Embedding.Dimensions),
			jina.WithRate(c.Jina.RatePerSec),
		)
		return &cluster.JinaEmbedder{Client: client}, nil
	default:
		return nil, eris.Errorf("unsupported embedding provider: %s", c.Embedding.Provider)
	}
}

// newSemanticClusterer wires the embedder and HDBSCAN behind retry and
// circuit breaker guards.
func newSemanticClusterer(c *config.Config) (*cluster.SemanticClusterer, error) {
	emb, err := newEmbedder(c)
	if err != nil {
		return nil, err
	}

	retry := resilience.RetryFromMillis(c.Retry.MaxAttempts, c.Retry.InitialBackoffMs,
		c.Retry.MaxBackoffMs, c.Retry.Multiplier, c.Retry.Jitter)
	breaker := resilience.BreakerFromSeconds(c.Circuit.FailureThreshold, c.Circuit.ResetTimeoutSecs)

	hdb := &cluster.HDBSCAN{
		MinSamples:       c.Cluster.MinSamples,
		MaxMergeDistance: c.Cluster.MaxMergeDistance,
	}

	return cluster.New(emb, hdb, cluster.Config{
		MaxClusterSize: c.Pipeline.ShopCount,
		MinClusterSize: c.Pipeline.MinClusterSize,
		BatchSize:      c.Embedding.BatchSize,
		SplitSameShop:  c.Pipeline.SplitSameShop,
		ClusterUnknown: c.Pipeline.ClusterUnknownBucket,
	},
		cluster.WithEmbedGuard(resilience.NewGuard("embedding", retry, breaker)),
		cluster.WithClusterGuard(resilience.NewGuard("clustering", retry, breaker)),
	), nil
}
