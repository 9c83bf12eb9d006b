// Package hashing provides content hashes for fingerprints and transaction references.
package hashing

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Blake2b hashes with BLAKE2b-256 and hex-encodes the digest.
type Blake2b struct{}

func (Blake2b) Hash(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Keyed is a keyed BLAKE2b-256 hasher. Distinct keys yield unrelated digests for
// the same input, so fingerprints from different deployments do not correlate.
type Keyed struct {
	key []byte
}

// NewKeyed accepts keys up to 64 bytes.
func NewKeyed(key []byte) (*Keyed, error) {
	// Validate the key once so Hash cannot fail later.
	if _, err := blake2b.New256(key); err != nil {
		return nil, err
	}
	return &Keyed{key: append([]byte(nil), key...)}, nil
}

func (k *Keyed) Hash(data []byte) string {
	h, _ := blake2b.New256(k.key)
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
