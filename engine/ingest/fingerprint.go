package ingest

import (
	"crypto/sha1"
	"encoding/hex"
)

// Fingerprint returns the deterministic content hash of a fragment's UTF-8
// text, used as the global dedup key.
func Fingerprint(text string) string {
	sum := sha1.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}
