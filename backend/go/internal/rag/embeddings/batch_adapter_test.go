package embeddings

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedding struct {
	calls [][]string
	fail  bool
}

func (f *fakeEmbedding) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (f *fakeEmbedding) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if f.fail {
		return nil, errors.New("quota exceeded")
	}
	f.calls = append(f.calls, texts)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

func TestBatchAdapter_SplitsIntoBatches(t *testing.T) {
	fake := &fakeEmbedding{}
	a := NewBatchAdapter(fake, 2)

	vectors, err := a.Embed(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"})
	require.NoError(t, err)
	assert.Len(t, fake.calls, 3)
	assert.Equal(t, [][]float32{{1}, {2}, {3}, {4}, {5}}, vectors)
}

func TestBatchAdapter_EmptyAndErrors(t *testing.T) {
	fake := &fakeEmbedding{}
	vectors, err := NewBatchAdapter(fake, 0).Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
	assert.Empty(t, fake.calls)

	_, err = NewBatchAdapter(&fakeEmbedding{fail: true}, 10).Embed(context.Background(), []string{"x"})
	assert.ErrorContains(t, err, "quota exceeded")
}
