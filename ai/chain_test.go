package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	name string
	err  error
	vec  []float32
}

func (f *fakeEmbedder) Name() string { return f.name }
func (f *fakeEmbedder) Embed(ctx context.Context, text string, opts EmbedOptions) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func TestEmbeddingChainAdvancesOnTimeout(t *testing.T) {
	first := &fakeEmbedder{name: "primary", err: Wrap("primary", ErrTimeout, errors.New("deadline"))}
	second := &fakeEmbedder{name: "backup", vec: []float32{0.1, 0.2}}

	chain, err := NewEmbeddingChain(nil, first, second)
	require.NoError(t, err)

	vec, err := chain.Embed(context.Background(), "query", EmbedOptions{})
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, vec)
}

func TestEmbeddingChainFailsFastOnAuth(t *testing.T) {
	first := &fakeEmbedder{name: "primary", err: Wrap("primary", ErrAuth, errors.New("bad key"))}
	second := &fakeEmbedder{name: "backup", vec: []float32{1}}

	chain, err := NewEmbeddingChain(nil, first, second)
	require.NoError(t, err)

	_, err = chain.Embed(context.Background(), "query", EmbedOptions{})
	require.Error(t, err)
}

func TestEmbeddingChainExhausted(t *testing.T) {
	first := &fakeEmbedder{name: "primary", err: Wrap("primary", ErrUnavailable, errors.New("down"))}
	second := &fakeEmbedder{name: "backup", err: Wrap("backup", ErrUnavailable, errors.New("down"))}

	chain, err := NewEmbeddingChain(nil, first, second)
	require.NoError(t, err)

	_, err = chain.Embed(context.Background(), "query", EmbedOptions{})
	require.Error(t, err)
}
