// Package checksum fingerprints raw note file bytes. The hash decides
// whether a file needs re-indexing; it changes iff the bytes change.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
