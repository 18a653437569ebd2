package vector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usorama/engg-context-gateway/ai"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string, opts ai.EmbedOptions) ([]float32, error) {
	return f.vec, f.err
}

func TestRetrieveNormalizesAndTruncates(t *testing.T) {
	store := NewMemoryStore()
	store.Upsert("proj", SearchResult{ChunkID: "a", Source: "b.go", Type: "code"}, []float32{1, 0})
	store.Upsert("proj", SearchResult{ChunkID: "b", Source: "a.go", Type: "code"}, []float32{1, 0})
	store.Upsert("proj", SearchResult{ChunkID: "c", Source: "c.go", Type: "code"}, []float32{0, 1})

	r := New(&fakeEmbedder{vec: []float32{1, 0}}, store, nil, nil)
	resp := r.Retrieve(context.Background(), "find auth", "proj", 2, Filter{})

	require.Empty(t, resp.Warning)
	require.Len(t, resp.Matches, 2)
	assert.Equal(t, 1, resp.Matches[0].Rank)
	assert.Equal(t, 2, resp.Matches[1].Rank)
}

func TestRetrieveTieBreakBySourceThenLine(t *testing.T) {
	store := NewMemoryStore()
	store.Upsert("proj", SearchResult{ChunkID: "a", Source: "z.go", LineStart: 5}, []float32{1, 0})
	store.Upsert("proj", SearchResult{ChunkID: "b", Source: "a.go", LineStart: 10}, []float32{1, 0})
	store.Upsert("proj", SearchResult{ChunkID: "c", Source: "a.go", LineStart: 1}, []float32{1, 0})

	r := New(&fakeEmbedder{vec: []float32{1, 0}}, store, nil, nil)
	resp := r.Retrieve(context.Background(), "q", "proj", 10, Filter{})

	require.Len(t, resp.Matches, 3)
	assert.Equal(t, "a.go", resp.Matches[0].Source)
	assert.Equal(t, 1, resp.Matches[0].LineStart)
	assert.Equal(t, "a.go", resp.Matches[1].Source)
	assert.Equal(t, 10, resp.Matches[1].LineStart)
	assert.Equal(t, "z.go", resp.Matches[2].Source)
}

func TestRetrieveEmbeddingFailureReturnsWarning(t *testing.T) {
	store := NewMemoryStore()
	r := New(&fakeEmbedder{err: errors.New("chain exhausted")}, store, nil, nil)

	resp := r.Retrieve(context.Background(), "q", "proj", 5, Filter{})
	assert.Equal(t, "semantic_unavailable", resp.Warning)
	assert.Empty(t, resp.Matches)
}

func TestCosineNormalizer(t *testing.T) {
	assert.InDelta(t, 1.0, CosineNormalizer(1), 1e-9)
	assert.InDelta(t, 0.0, CosineNormalizer(-1), 1e-9)
	assert.InDelta(t, 0.5, CosineNormalizer(0), 1e-9)
}
