package cluster

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/shelfmatch/internal/resilience"
	"github.com/sells-group/shelfmatch/pkg/jina"
)

// BatchEmbedder splits requests into batches of at most Size texts and sends
// each batch through Guard. Batches run sequentially so the backend's rate
// limit applies across the whole bucket.
type BatchEmbedder struct {
	Inner Embedder
	Size  int
	Guard *resilience.Guard
}

// Embed implements Embedder.
func (b *BatchEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	size := b.Size
	if size <= 0 {
		size = len(texts)
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		batch := texts[start:min(start+size, len(texts))]
		vecs, err := resilience.Call(ctx, b.Guard, func(ctx context.Context) ([][]float32, error) {
			return b.Inner.Embed(ctx, batch)
		})
		if err != nil {
			return nil, eris.Wrapf(err, "cluster: embed batch at %d", start)
		}
		if len(vecs) != len(batch) {
			return nil, eris.Errorf("cluster: batch at %d returned %d vectors for %d texts", start, len(vecs), len(batch))
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// JinaEmbedder adapts a Jina embeddings client to Embedder.
type JinaEmbedder struct {
	Client jina.Client
}

// Embed implements Embedder.
func (j *JinaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := j.Client.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	return resp.Vectors(), nil
}

// DefaultHashDimensions is the HashEmbedder width when none is configured.
const DefaultHashDimensions = 256

// HashEmbedder embeds text offline by hashing character trigrams and whole
// tokens into a fixed-width, L2-normalized vector. It captures spelling
// overlap, not meaning, and is deterministic.
type HashEmbedder struct {
	Dimensions int
}

// Embed implements Embedder.
func (h *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "cluster: hash embed")
	}
	dim := h.Dimensions
	if dim <= 0 {
		dim = DefaultHashDimensions
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = hashVector(t, dim)
	}
	return out, nil
}

func hashVector(text string, dim int) []float32 {
	v := make([]float32, dim)
	add := func(feature string, weight float32) {
		f := fnv.New64a()
		_, _ = f.Write([]byte(feature))
		sum := f.Sum64()
		idx := int(sum % uint64(dim))
		if sum>>63 == 1 {
			weight = -weight
		}
		v[idx] += weight
	}

	for _, tok := range strings.Fields(text) {
		add("w:"+tok, 2)
		r := []rune(" " + tok + " ")
		for i := 0; i+3 <= len(r); i++ {
			add("t:"+string(r[i:i+3]), 1)
		}
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= scale
	}
	return v
}
