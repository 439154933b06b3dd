package model

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// APIKey is a credential authenticating as a specific Actor. Only its
// prefix and hash are ever persisted; the raw key is returned once, at
// creation time.
type APIKey struct {
	UID        string     `json:"uid"`
	Prefix     string     `json:"prefix"`
	KeyHash    string     `json:"-"`
	ActorID    string     `json:"actor_id"`
	Label      string     `json:"label"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

const (
	apiKeyPrefixLen  = 4
	apiKeySecretLen  = 16
	apiKeyFormatHead = "evk_"
)

// GenerateRawKey produces a new raw API key in the format
// evk_<8-char-prefix>_<32-char-secret>, returning the full raw key and the
// prefix separately so the prefix alone can be stored unhashed for lookup.
func GenerateRawKey() (rawKey, prefix string, err error) {
	prefixBytes := make([]byte, apiKeyPrefixLen)
	if _, err := rand.Read(prefixBytes); err != nil {
		return "", "", fmt.Errorf("model: generate key prefix: %w", err)
	}
	secretBytes := make([]byte, apiKeySecretLen)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", "", fmt.Errorf("model: generate key secret: %w", err)
	}
	prefix = hex.EncodeToString(prefixBytes)
	secret := hex.EncodeToString(secretBytes)
	rawKey = apiKeyFormatHead + prefix + "_" + secret
	return rawKey, prefix, nil
}

// ParseKeyPrefix extracts the lookup prefix from a raw key string.
func ParseKeyPrefix(rawKey string) (prefix string, err error) {
	if !strings.HasPrefix(rawKey, apiKeyFormatHead) {
		return "", fmt.Errorf("model: invalid key format: missing %s prefix", apiKeyFormatHead)
	}
	rest := rawKey[len(apiKeyFormatHead):]
	underIdx := strings.IndexByte(rest, '_')
	if underIdx < 1 || underIdx == len(rest)-1 {
		return "", fmt.Errorf("model: invalid key format: expected evk_<prefix>_<secret>")
	}
	return rest[:underIdx], nil
}

// NewAPIKey constructs an APIKey record from an already-hashed key.
func NewAPIKey(actorID, prefix, keyHash, label string) APIKey {
	return APIKey{
		UID:       NewID(KindAPIKey),
		Prefix:    prefix,
		KeyHash:   keyHash,
		ActorID:   actorID,
		Label:     label,
		CreatedAt: time.Now().UTC(),
	}
}
