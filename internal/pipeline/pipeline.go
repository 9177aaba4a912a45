// Package pipeline runs the unification stages end to end: component
// extraction, constraint grouping, semantic clustering and assembly.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/shelfmatch/internal/assemble"
	"github.com/sells-group/shelfmatch/internal/brand"
	"github.com/sells-group/shelfmatch/internal/cluster"
	"github.com/sells-group/shelfmatch/internal/group"
	"github.com/sells-group/shelfmatch/internal/model"
	"github.com/sells-group/shelfmatch/internal/normalize"
	"github.com/sells-group/shelfmatch/internal/parse"
)

// ErrPartitionViolation is returned when assembled products do not cover
// every listing exactly once.
var ErrPartitionViolation = eris.New("pipeline: listings not partitioned into products")

// BucketClusterer partitions one constraint bucket.
type BucketClusterer interface {
	ClusterBucket(ctx context.Context, key model.ConstraintKey, members []model.ProductComponents) cluster.Outcome
}

// Config bounds the worker pools.
type Config struct {
	ParseWorkers   int
	ClusterWorkers int
}

// Pipeline is safe for concurrent runs; it holds no per-run state.
type Pipeline struct {
	extractor *brand.Extractor
	parser    *parse.Parser
	clusterer BucketClusterer
	cfg       Config
	now       func() time.Time
}

// New creates a Pipeline.
func New(extractor *brand.Extractor, parser *parse.Parser, clusterer BucketClusterer, cfg Config) *Pipeline {
	if cfg.ParseWorkers <= 0 {
		cfg.ParseWorkers = 8
	}
	if cfg.ClusterWorkers <= 0 {
		cfg.ClusterWorkers = 4
	}
	return &Pipeline{
		extractor: extractor,
		parser:    parser,
		clusterer: clusterer,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Analyze runs normalization, brand extraction and rule parsing for one
// listing. index is the listing's position in the run input.
func Analyze(extractor *brand.Extractor, parser *parse.Parser, l model.RawListing, index int) model.ProductComponents {
	title := normalize.Title(l.Title)
	res := extractor.Extract(l.Title, title)
	pc := parser.Parse(res.Residual)
	pc.Brand = res.Brand
	pc.Normalized = title
	pc.Listing = l
	pc.Index = index
	return pc
}

// Components runs stage 1 over all listings on a bounded pool. Output order
// matches input order regardless of scheduling.
func (p *Pipeline) Components(ctx context.Context, listings []model.RawListing) ([]model.ProductComponents, error) {
	out := make([]model.ProductComponents, len(listings))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.ParseWorkers)
	for i := range listings {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			out[i] = Analyze(p.extractor, p.parser, listings[i], i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "pipeline: extract components")
	}
	return out, nil
}

// Run unifies listings into products.
func (p *Pipeline) Run(ctx context.Context, listings []model.RawListing) (*model.RunResult, error) {
	result := &model.RunResult{
		RunID:     uuid.New().String(),
		StartedAt: p.now(),
	}
	log := zap.L().With(zap.String("run_id", result.RunID))
	log.Info("pipeline: starting run", zap.Int("listings", len(listings)))

	components, err := p.Components(ctx, listings)
	if err != nil {
		return nil, err
	}

	buckets := group.Partition(components)
	log.Debug("pipeline: grouped", zap.Int("buckets", buckets.Len()))

	all := buckets.All()
	members := make([][]model.ProductComponents, len(all))
	outcomes := make([]cluster.Outcome, len(all))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.ClusterWorkers)
	for i, b := range all {
		members[i] = make([]model.ProductComponents, len(b.Members))
		for j, idx := range b.Members {
			members[i][j] = components[idx]
		}
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			outcomes[i] = p.clusterer.ClusterBucket(gCtx, b.Key, members[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "pipeline: cluster buckets")
	}

	asm := assemble.NewAssembler(1)
	stats := model.RunStats{Listings: len(listings), Buckets: len(all)}
	for i, b := range all {
		o := outcomes[i]
		result.Products = append(result.Products, asm.Add(b.Key, members[i], o.Clusters)...)
		if o.Fallback {
			stats.FallbackBuckets++
		}
		if o.Bypassed {
			stats.BypassedBuckets++
		}
		stats.SameShopSplits += o.SameShopSplits
	}

	for _, pc := range components {
		if !pc.HasBrand() {
			stats.UnknownBrand++
		}
		if !pc.HasSize() {
			stats.NoSize++
		}
	}
	stats.Products = len(result.Products)
	for _, prod := range result.Products {
		if len(prod.Members) == 1 {
			stats.Singletons++
		}
	}
	result.Stats = stats

	if err := checkPartition(len(listings), result.Products); err != nil {
		return nil, err
	}

	result.FinishedAt = p.now()
	log.Info("pipeline: run complete",
		zap.Int("products", stats.Products),
		zap.Int("buckets", stats.Buckets),
		zap.Int("singletons", stats.Singletons),
		zap.Int("fallback_buckets", stats.FallbackBuckets),
		zap.Duration("duration", result.Duration()),
	)
	return result, nil
}

func checkPartition(n int, products []model.UnifiedProduct) error {
	seen := make([]bool, n)
	count := 0
	for _, prod := range products {
		for _, m := range prod.Members {
			if m.Index < 0 || m.Index >= n || seen[m.Index] {
				return eris.Wrapf(ErrPartitionViolation, "listing %d assigned twice or out of range", m.Index)
			}
			seen[m.Index] = true
			count++
		}
	}
	if count != n {
		return eris.Wrapf(ErrPartitionViolation, "%d of %d listings assigned", count, n)
	}
	return nil
}
