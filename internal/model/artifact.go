package model

import "time"

// ArtifactKind enumerates the logical kind of a source artifact.
type ArtifactKind string

const (
	ArtifactKindDocument ArtifactKind = "document"
	ArtifactKindWebPage  ArtifactKind = "web_page"
	ArtifactKindImage    ArtifactKind = "image"
	ArtifactKindVideo    ArtifactKind = "video"
	ArtifactKindAudio    ArtifactKind = "audio"
)

// ArtifactIdentity is the logical source: a canonical URL plus a kind.
// Multiple ArtifactVersions (retrievals over time) share one identity, which
// is what lets cross-case dedup queries find the "same" source retrieved by
// different investigations.
type ArtifactIdentity struct {
	UID          string       `json:"uid"`
	CanonicalURL string       `json:"canonical_url"`
	Kind         ArtifactKind `json:"kind"`
	CreatedAt    time.Time    `json:"created_at"`
}

// SourceMeta carries retrieval-time provenance plus failure annotations.
type SourceMeta struct {
	FetchedVia string `json:"fetched_via,omitempty"` // e.g. "tool_broker.archive_url"
	ParseError string `json:"parse_error,omitempty"`
}

// ArtifactVersion is one immutable retrieval of an ArtifactIdentity.
// Invariant: SHA-256 of the bytes at StorageRef equals ContentSHA256.
type ArtifactVersion struct {
	UID                string         `json:"uid"`
	CaseUID            string         `json:"case_uid"`
	ArtifactIdentityUID string        `json:"artifact_identity_uid"`
	Kind               ArtifactKind   `json:"kind"`
	MimeType           string         `json:"mime_type"`
	ContentSHA256      string         `json:"content_sha256"`
	StorageRef         string         `json:"storage_ref"`
	RetrievedAt        time.Time      `json:"retrieved_at"`
	SourceMeta         SourceMeta     `json:"source_meta"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
}

// NewArtifactVersion constructs an immutable ArtifactVersion record.
func NewArtifactVersion(caseUID, identityUID string, kind ArtifactKind, mime, sha256Hex, storageRef string) ArtifactVersion {
	now := time.Now().UTC()
	return ArtifactVersion{
		UID:                 NewID(KindArtifactVer),
		CaseUID:             caseUID,
		ArtifactIdentityUID: identityUID,
		Kind:                kind,
		MimeType:            mime,
		ContentSHA256:       sha256Hex,
		StorageRef:          storageRef,
		RetrievedAt:         now,
		Metadata:            map[string]any{},
		CreatedAt:           now,
	}
}
