// Package checksum computes the content digests used as model file ETags.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Matches reports whether etag names the digest of data. Surrounding quotes
// and a weak prefix are ignored; an empty etag always matches.
func Matches(etag string, data []byte) bool {
	etag = strings.TrimPrefix(strings.TrimSpace(etag), "W/")
	etag = strings.Trim(etag, `"`)
	return etag == "" || etag == Sum(data)
}
