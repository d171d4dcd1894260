package embed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// staticEmbedder is a local bag-of-words embedder: each token is hashed into
// a fixed-size bucket vector which is then L2-normalized. It needs no network
// and is deterministic, which makes it the default for dev setups and tests.
// Overlapping vocabulary still yields meaningful cosine similarity.
type staticEmbedder struct {
	dims int
}

// NewStatic creates a deterministic, in-process Embedder.
func NewStatic(dims int) Embedder {
	if dims <= 0 {
		dims = 256
	}
	return &staticEmbedder{dims: dims}
}

func (e *staticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dims)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,;:!?\"'()[]")
		if tok == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[int(h.Sum32())%e.dims]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

func (e *staticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}
	return vectors, nil
}

func (e *staticEmbedder) Dimensions() int {
	return e.dims
}
