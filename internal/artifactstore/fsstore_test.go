package artifactstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFSStorePutGetRoundTrip(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	content := []byte("hello evidentia")

	ref, digest, err := store.Put(ctx, content)
	require.NoError(t, err)
	require.Equal(t, Sha256Hex(content), digest)

	exists, err := store.Exists(ctx, ref)
	require.NoError(t, err)
	require.True(t, exists)

	got, err := store.Get(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestFSStorePutIsIdempotent(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	content := []byte("duplicate content")

	ref1, _, err := store.Put(ctx, content)
	require.NoError(t, err)
	ref2, _, err := store.Put(ctx, content)
	require.NoError(t, err)
	require.Equal(t, ref1, ref2)
}

func TestVerifyIntegrityDetectsMismatch(t *testing.T) {
	content := []byte("trusted bytes")
	require.NoError(t, VerifyIntegrity(content, Sha256Hex(content)))
	require.Error(t, VerifyIntegrity(content, "deadbeef"))
}
