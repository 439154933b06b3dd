// Package artifactstore provides content-addressed storage for raw
// artifact bytes (fetched web pages, uploaded documents, media files).
// Every stored blob is addressed by the SHA-256 hex digest of its content;
// ArtifactVersion.StorageRef resolves through a Store to bytes whose hash
// must equal ArtifactVersion.ContentSHA256.
package artifactstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// Store is the content-addressed blob storage facade. Implementations
// back onto a local filesystem, an S3-compatible bucket, or any other
// byte store keyed by content hash.
type Store interface {
	// Put writes content and returns its content-addressed storage
	// reference (an implementation-defined string that Get can resolve).
	Put(ctx context.Context, content []byte) (storageRef string, sha256Hex string, err error)
	// Get reads back the bytes for a storage reference.
	Get(ctx context.Context, storageRef string) ([]byte, error)
	// Exists reports whether a storage reference is present, without
	// reading its full content.
	Exists(ctx context.Context, storageRef string) (bool, error)
}

// Sha256Hex computes the content hash used to address and verify blobs.
func Sha256Hex(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Sha256HexReader streams content through SHA-256 without buffering it
// twice, for large artifact uploads.
func Sha256HexReader(r io.Reader) (string, []byte, error) {
	h := sha256.New()
	buf, err := io.ReadAll(io.TeeReader(r, h))
	if err != nil {
		return "", nil, fmt.Errorf("artifactstore: read content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), buf, nil
}

// VerifyIntegrity checks that content's SHA-256 digest matches expectedHex,
// implementing the ArtifactVersion invariant that StorageRef bytes must
// hash to ContentSHA256.
func VerifyIntegrity(content []byte, expectedHex string) error {
	got := Sha256Hex(content)
	if got != expectedHex {
		return fmt.Errorf("artifactstore: content hash mismatch: expected %s, got %s", expectedHex, got)
	}
	return nil
}
