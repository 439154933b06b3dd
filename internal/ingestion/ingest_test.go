package ingestion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evidentia-ai/evidentia/internal/artifactstore"
	"github.com/evidentia-ai/evidentia/internal/model"
)

func TestPipelineIngestPlainTextNoEmbedder(t *testing.T) {
	store, err := artifactstore.NewFSStore(t.TempDir())
	require.NoError(t, err)

	p := NewPipeline(store, nil, DefaultChunkerConfig(), 0, nil)

	content := []byte("The quick brown fox jumps over the lazy dog. It happened at dawn.")
	res, err := p.Ingest(context.Background(), "case_1", "ident_1", model.ArtifactKindDocument, "text/plain", content, "public-domain", false, model.RetentionStandard)
	require.NoError(t, err)

	require.Len(t, res.Chunks, 1)
	assert.Equal(t, string(content), res.Chunks[0].Text)
	require.Len(t, res.Evidence, 1)
	require.Len(t, res.SourceClaims, 1)
	assert.Equal(t, res.Evidence[0].UID, res.SourceClaims[0].EvidenceUID)
	assert.True(t, res.SourceClaims[0].IsGrounded(res.Chunks[0].Text))
	assert.False(t, res.Chunks[0].EmbeddingSynced)

	stored, err := store.Get(context.Background(), res.ArtifactVersion.StorageRef)
	require.NoError(t, err)
	assert.Equal(t, content, stored)
	assert.Equal(t, artifactstore.Sha256Hex(content), res.ArtifactVersion.ContentSHA256)
}

func TestPipelineIngestWithEmbedder(t *testing.T) {
	store, err := artifactstore.NewFSStore(t.TempDir())
	require.NoError(t, err)
	provider := &fakeProvider{dim: 2}

	p := NewPipeline(store, provider, DefaultChunkerConfig(), 2, nil)

	content := []byte("Evidence one. Evidence two.")
	res, err := p.Ingest(context.Background(), "case_1", "ident_1", model.ArtifactKindWebPage, "text/plain", content, "", false, model.RetentionStandard)
	require.NoError(t, err)

	require.Len(t, res.Chunks, 1)
	require.Len(t, res.Embeddings, 1)
	assert.True(t, res.Chunks[0].EmbeddingSynced)
}

func TestPipelineIngestHTML(t *testing.T) {
	store, err := artifactstore.NewFSStore(t.TempDir())
	require.NoError(t, err)
	p := NewPipeline(store, nil, DefaultChunkerConfig(), 0, nil)

	html := []byte(`<html><body><nav>skip me</nav><p>Hello world.</p></body></html>`)
	res, err := p.Ingest(context.Background(), "case_1", "ident_1", model.ArtifactKindWebPage, "text/html", html, "", false, model.RetentionStandard)
	require.NoError(t, err)

	require.Len(t, res.Chunks, 1)
	assert.Contains(t, res.Chunks[0].Text, "Hello world.")
	assert.NotContains(t, res.Chunks[0].Text, "skip me")
}

func TestPipelineIngestEmptyTextProducesNoChunks(t *testing.T) {
	store, err := artifactstore.NewFSStore(t.TempDir())
	require.NoError(t, err)
	p := NewPipeline(store, nil, DefaultChunkerConfig(), 0, nil)

	res, err := p.Ingest(context.Background(), "case_1", "ident_1", model.ArtifactKindDocument, "text/plain", []byte("   "), "", false, model.RetentionStandard)
	require.NoError(t, err)
	assert.Empty(t, res.Chunks)
	assert.Empty(t, res.Evidence)
	assert.Empty(t, res.SourceClaims)
}
