// Package fingerprint computes stable content hashes for raw rows and
// derived facts, using RFC 8785 canonical JSON so field order never matters.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gowebpki/jcs"

	"github.com/custodia-labs/sentinela/internal/core/domain"
)

// Canonical returns the canonical JSON form of v.
func Canonical(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("fingerprint: pre-marshal: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("fingerprint: canonicalise: %w", err)
	}
	return out, nil
}

// Hash returns the SHA-256 hex digest of the canonical form of v.
func Hash(v any) (string, error) {
	b, err := Canonical(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes returns the SHA-256 hex digest of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Record returns the content hash of a row. Values are trimmed first, so
// whitespace-only differences between captures hash the same.
func Record(p domain.Payload) (string, error) {
	m := make(map[string]string, len(p))
	for _, f := range p {
		m[f.Name] = strings.TrimSpace(f.Value)
	}
	return Hash(m)
}

// Of hashes an ordered list of parts. Used for event ids.
func Of(parts ...string) string {
	h, err := Hash(parts)
	if err != nil {
		// A []string always marshals.
		panic(err)
	}
	return h
}
