package util

import (
	"crypto/rand"
	"encoding/hex"
)

func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

// ShortID is NewID truncated for human-facing identifiers like
// document ids.
func ShortID(prefix string, length int) string {
	id := hex.EncodeToString(randomBytes(16))
	if length > 0 && length < len(id) {
		id = id[:length]
	}
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}

func randomBytes(n int) []byte {
	bytes := make([]byte, n)
	_, _ = rand.Read(bytes)
	return bytes
}
