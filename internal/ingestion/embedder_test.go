package ingestion

import (
	"context"
	"testing"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	dim       int
	batches   [][]string
	callCount int
	failUntil int
}

func (f *fakeProvider) Dimensions() int { return f.dim }

func (f *fakeProvider) EmbedBatch(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	f.callCount++
	f.batches = append(f.batches, texts)
	vecs := make([]pgvector.Vector, len(texts))
	for i := range texts {
		vecs[i] = pgvector.NewVector([]float32{float32(i), 0.5})
	}
	return vecs, nil
}

func TestBatchEmbedSplitsIntoGroups(t *testing.T) {
	p := &fakeProvider{dim: 2}
	texts := []string{"a", "b", "c", "d", "e"}

	vecs, err := BatchEmbed(context.Background(), p, texts, 2)
	require.NoError(t, err)
	assert.Len(t, vecs, 5)
	assert.Len(t, p.batches, 3)
	assert.Equal(t, []string{"a", "b"}, p.batches[0])
	assert.Equal(t, []string{"c", "d"}, p.batches[1])
	assert.Equal(t, []string{"e"}, p.batches[2])
}

func TestBatchEmbedDefaultsBatchSize(t *testing.T) {
	p := &fakeProvider{dim: 2}
	texts := make([]string, 40)
	for i := range texts {
		texts[i] = "x"
	}

	vecs, err := BatchEmbed(context.Background(), p, texts, 0)
	require.NoError(t, err)
	assert.Len(t, vecs, 40)
	assert.Len(t, p.batches, 2)
	assert.Len(t, p.batches[0], 32)
	assert.Len(t, p.batches[1], 8)
}

func TestBatchEmbedEmptyInput(t *testing.T) {
	p := &fakeProvider{dim: 2}
	vecs, err := BatchEmbed(context.Background(), p, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, vecs)
	assert.Equal(t, 0, p.callCount)
}

func TestNewHTTPEmbeddingProviderRequiresAPIKey(t *testing.T) {
	_, err := NewHTTPEmbeddingProvider("", "", "text-embedding-3-small", 1536)
	require.Error(t, err)
}

func TestNewHTTPEmbeddingProviderDefaults(t *testing.T) {
	p, err := NewHTTPEmbeddingProvider("", "sk-test", "text-embedding-3-small", 0)
	require.NoError(t, err)
	assert.Equal(t, 1536, p.Dimensions())
	assert.Equal(t, "https://api.openai.com/v1/embeddings", p.baseURL)
}
