package utils

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Hasher fingerprints script source so logs can correlate runs without
// carrying the code itself. Digests are non-cryptographic.
type Hasher struct{}

// NewHasher creates a hasher
func NewHasher() *Hasher {
	return &Hasher{}
}

// Hash computes a 16 character hex digest of data
func (h *Hasher) Hash(data []byte) string {
	digest := strconv.FormatUint(xxhash.Sum64(data), 16)
	for len(digest) < 16 {
		digest = "0" + digest
	}
	return digest
}

// HashString computes a hex digest of s
func (h *Hasher) HashString(s string) string {
	return h.Hash([]byte(s))
}

// ShortHash returns the first 12 hex characters of the digest of s
func (h *Hasher) ShortHash(s string) string {
	return h.HashString(s)[:12]
}
