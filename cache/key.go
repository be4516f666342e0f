package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashKey returns the hex-encoded SHA-256 digest of key. Backends use it
// when client identifiers must not appear in the keyspace.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
