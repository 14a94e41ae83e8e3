package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// KeyBuilder produces stable namespaced cache keys. Colon-joined segments
// keep keys readable; parameter maps are hashed canonically so logically
// equal parameter sets always land on the same key.
type KeyBuilder struct {
	prefix string
}

// NewKeyBuilder returns a builder that prefixes every key it produces
func NewKeyBuilder(prefix string) *KeyBuilder {
	return &KeyBuilder{prefix: prefix}
}

// Build joins the prefix and parts with colons, skipping empty parts
func (b *KeyBuilder) Build(parts ...string) string {
	segments := make([]string, 0, len(parts)+1)
	if b.prefix != "" {
		segments = append(segments, b.prefix)
	}
	for _, part := range parts {
		if part != "" {
			segments = append(segments, part)
		}
	}
	return strings.Join(segments, ":")
}

// BuildWithParams appends a short hash of the parameter map to the base
// key. Canonical JSON keeps the hash stable across map iteration order.
func (b *KeyBuilder) BuildWithParams(base string, params map[string]interface{}) string {
	return b.Build(base, hashParams(params))
}

func hashParams(params map[string]interface{}) string {
	h := sha256.New()
	if canonical, err := json.Marshal(params); err == nil {
		h.Write(canonical)
	}
	return hex.EncodeToString(h.Sum(nil))[:16] // Truncate for readability
}
