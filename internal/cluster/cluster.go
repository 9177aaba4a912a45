// Package cluster splits constraint buckets into same-product clusters using
// text embeddings and density-based clustering.
package cluster

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/shelfmatch/internal/model"
	"github.com/sells-group/shelfmatch/internal/resilience"
)

// Embedder turns texts into vectors, one per text and in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Clusterer labels vectors with cluster ids or model.NoiseLabel. A
// maxClusterSize of zero means unbounded.
type Clusterer interface {
	Cluster(ctx context.Context, vectors [][]float32, minClusterSize, maxClusterSize int) ([]int, error)
}

// Config tunes the semantic clusterer.
type Config struct {
	// MaxClusterSize is normally the number of shops: one product is listed
	// at most once per shop. Zero means unbounded.
	MaxClusterSize int
	// MinClusterSize defaults to 2.
	MinClusterSize int
	// BatchSize bounds texts per embedding request. Zero sends one request.
	BatchSize int
	// SplitSameShop splits any cluster holding two listings from one shop.
	SplitSameShop bool
	// ClusterUnknown clusters buckets with neither brand nor size instead of
	// keeping every listing apart.
	ClusterUnknown bool
}

// Outcome is the partition of one bucket. Clusters hold indexes into the
// bucket's members; clusters are ordered by their first member and members
// keep bucket order.
type Outcome struct {
	Clusters [][]int
	// Fallback is set when a backend failed and every member became a
	// singleton.
	Fallback bool
	// Bypassed is set when clustering was skipped by policy.
	Bypassed bool
	// SameShopSplits counts extra clusters created by same-shop splitting.
	SameShopSplits int
	Err            error
}

// SemanticClusterer partitions buckets. It is safe for concurrent use as
// long as its Embedder and Clusterer are.
type SemanticClusterer struct {
	embedder     Embedder
	clusterer    Clusterer
	clusterGuard *resilience.Guard
	cfg          Config
}

// Option configures a SemanticClusterer.
type Option func(*SemanticClusterer)

// WithEmbedGuard routes every embedding batch through g.
func WithEmbedGuard(g *resilience.Guard) Option {
	return func(s *SemanticClusterer) {
		if b, ok := s.embedder.(*BatchEmbedder); ok {
			b.Guard = g
		}
	}
}

// WithClusterGuard routes clustering calls through g.
func WithClusterGuard(g *resilience.Guard) Option {
	return func(s *SemanticClusterer) { s.clusterGuard = g }
}

// New returns a SemanticClusterer. The embedder is wrapped in a
// BatchEmbedder using cfg.BatchSize.
func New(embedder Embedder, clusterer Clusterer, cfg Config, opts ...Option) *SemanticClusterer {
	if cfg.MinClusterSize < 2 {
		cfg.MinClusterSize = 2
	}
	s := &SemanticClusterer{
		embedder:  &BatchEmbedder{Inner: embedder, Size: cfg.BatchSize},
		clusterer: clusterer,
		cfg:       cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ClusterBucket partitions the members of one bucket. It never fails: on
// backend failure the bucket degrades to singletons and Outcome.Err carries
// the cause.
func (s *SemanticClusterer) ClusterBucket(ctx context.Context, key model.ConstraintKey, members []model.ProductComponents) Outcome {
	n := len(members)
	switch {
	case n == 0:
		return Outcome{}
	case n == 1:
		return Outcome{Clusters: [][]int{{0}}}
	case key.Underspecified() && !s.cfg.ClusterUnknown:
		return Outcome{Clusters: singletons(n), Bypassed: true}
	}

	labels, err := s.labels(ctx, members)
	if err != nil {
		zap.L().Warn("cluster: backend failed, bucket falls back to singletons",
			zap.String("bucket", key.String()),
			zap.Int("members", n),
			zap.Error(err),
		)
		return Outcome{Clusters: singletons(n), Fallback: true, Err: err}
	}

	clusters := fromLabels(labels)
	clusters = capSize(clusters, s.cfg.MaxClusterSize)

	out := Outcome{Clusters: clusters}
	if s.cfg.SplitSameShop {
		out.Clusters, out.SameShopSplits = SplitSameShop(clusters, members)
	}
	return out
}

// embeddingTexts returns the text embedded for each member. Members normally
// embed base product plus variants; if any member has neither, every member
// of the bucket embeds its normalized title so all vectors share one basis.
func embeddingTexts(members []model.ProductComponents) []string {
	texts := make([]string, len(members))
	for i, m := range members {
		texts[i] = m.EmbeddingText()
		if texts[i] == "" {
			for j, m := range members {
				texts[j] = m.Normalized.String()
			}
			return texts
		}
	}
	return texts
}

func (s *SemanticClusterer) labels(ctx context.Context, members []model.ProductComponents) ([]int, error) {
	texts := embeddingTexts(members)

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, eris.Wrap(err, "cluster: embed")
	}
	if len(vectors) != len(members) {
		return nil, eris.Errorf("cluster: embedder returned %d vectors for %d texts", len(vectors), len(members))
	}

	labels, err := resilience.Call(ctx, s.clusterGuard, func(ctx context.Context) ([]int, error) {
		return s.clusterer.Cluster(ctx, vectors, s.cfg.MinClusterSize, s.cfg.MaxClusterSize)
	})
	if err != nil {
		return nil, eris.Wrap(err, "cluster: density clustering")
	}
	if len(labels) != len(members) {
		return nil, eris.Errorf("cluster: clusterer returned %d labels for %d vectors", len(labels), len(members))
	}
	return labels, nil
}

func singletons(n int) [][]int {
	out := make([][]int, n)
	for i := range out {
		out[i] = []int{i}
	}
	return out
}

// fromLabels groups member indexes by label in first-seen order. Noise
// members become singletons in place.
func fromLabels(labels []int) [][]int {
	var out [][]int
	pos := make(map[int]int)
	for i, l := range labels {
		if l == model.NoiseLabel || l < 0 {
			out = append(out, []int{i})
			continue
		}
		p, ok := pos[l]
		if !ok {
			p = len(out)
			pos[l] = p
			out = append(out, nil)
		}
		out[p] = append(out[p], i)
	}
	return out
}

// capSize splits clusters larger than limit into consecutive chunks.
func capSize(clusters [][]int, limit int) [][]int {
	if limit <= 0 {
		return clusters
	}
	out := make([][]int, 0, len(clusters))
	for _, c := range clusters {
		for len(c) > limit {
			out = append(out, c[:limit])
			c = c[limit:]
		}
		out = append(out, c)
	}
	return out
}

// SplitSameShop splits every cluster so it holds at most one listing per
// shop: the k-th listing of each shop goes to the k-th layer. It returns the
// new clusters, ordered by first member, and the number of clusters added.
func SplitSameShop(clusters [][]int, members []model.ProductComponents) ([][]int, int) {
	var out [][]int
	added := 0
	for _, c := range clusters {
		seen := make(map[string]int)
		var layers [][]int
		for _, idx := range c {
			shop := members[idx].Listing.ShopID
			k := seen[shop]
			seen[shop] = k + 1
			if k == len(layers) {
				layers = append(layers, nil)
			}
			layers[k] = append(layers[k], idx)
		}
		added += len(layers) - 1
		out = append(out, layers...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out, added
}
