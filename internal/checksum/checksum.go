// Package checksum provides content addressing for uploaded statement files.
//
// The SHA-256 digest of a file's raw bytes is the identity used for
// server-side deduplication: two byte-identical statements always produce
// the same 64-character lowercase hex string, regardless of file name or
// upload time.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// SumBytes returns the SHA-256 digest of data as a 64-character lowercase
// hex string.
func SumBytes(data []byte) string {
	digest := sha256.Sum256(data)
	return hex.EncodeToString(digest[:])
}

// SumReader hashes everything readable from r and returns the digest in the
// same format as SumBytes. Useful when the file is streamed rather than
// buffered in memory.
func SumReader(r io.Reader) (string, error) {
	hasher := sha256.New()
	if _, err := io.Copy(hasher, r); err != nil {
		return "", fmt.Errorf("hash content: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
