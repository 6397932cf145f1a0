package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	calls   int
	batches [][]string
	fail    bool
	closed  bool
}

func (c *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	c.calls++
	if c.fail {
		return nil, errors.New("provider down")
	}
	return []float32{float32(len(text))}, nil
}

func (c *countingEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	c.batches = append(c.batches, texts)
	if c.fail {
		return nil, errors.New("provider down")
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text))}
	}
	return out, nil
}

func (c *countingEmbedder) Dimensions() int            { return 1 }
func (c *countingEmbedder) ModelName() string          { return "counting" }
func (c *countingEmbedder) Ping(context.Context) error { return nil }
func (c *countingEmbedder) Close() error               { c.closed = true; return nil }

func TestWrap_DisabledReturnsInner(t *testing.T) {
	inner := &countingEmbedder{}
	svc, err := Wrap(inner, 0)
	require.NoError(t, err)
	assert.Same(t, inner, svc)
}

func TestEmbeddingService_EmbedCaches(t *testing.T) {
	inner := &countingEmbedder{}
	svc, err := Wrap(inner, 2)
	require.NoError(t, err)
	ctx := context.Background()

	v1, err := svc.Embed(ctx, "refund")
	require.NoError(t, err)
	v2, err := svc.Embed(ctx, "refund")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, "counting", svc.ModelName())
	assert.Equal(t, 1, svc.Dimensions())
}

func TestEmbeddingService_Evicts(t *testing.T) {
	inner := &countingEmbedder{}
	svc, _ := Wrap(inner, 2)
	ctx := context.Background()

	_, _ = svc.Embed(ctx, "a")
	_, _ = svc.Embed(ctx, "b")
	_, _ = svc.Embed(ctx, "c")
	_, _ = svc.Embed(ctx, "a")

	assert.Equal(t, 4, inner.calls)
	assert.Equal(t, 2, svc.(*EmbeddingService).Len())
}

func TestEmbeddingService_ErrorsNotCached(t *testing.T) {
	inner := &countingEmbedder{fail: true}
	svc, _ := Wrap(inner, 4)
	ctx := context.Background()

	_, err := svc.Embed(ctx, "x")
	assert.Error(t, err)
	_, err = svc.Embed(ctx, "x")
	assert.Error(t, err)
	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, 0, svc.(*EmbeddingService).Len())
}

func TestEmbeddingService_EmbedBatchSendsOnlyMisses(t *testing.T) {
	inner := &countingEmbedder{}
	svc, _ := Wrap(inner, 8)
	ctx := context.Background()

	_, _ = svc.Embed(ctx, "bb")

	out, err := svc.EmbedBatch(ctx, []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}, {2}, {3}}, out)
	require.Len(t, inner.batches, 1)
	assert.Equal(t, []string{"a", "ccc"}, inner.batches[0])

	_, err = svc.EmbedBatch(ctx, []string{"a", "ccc"})
	require.NoError(t, err)
	assert.Len(t, inner.batches, 1)
}

func TestEmbeddingService_Close(t *testing.T) {
	inner := &countingEmbedder{}
	svc, _ := Wrap(inner, 2)
	_, _ = svc.Embed(context.Background(), "a")

	require.NoError(t, svc.Close())
	assert.True(t, inner.closed)
	assert.Equal(t, 0, svc.(*EmbeddingService).Len())
}
