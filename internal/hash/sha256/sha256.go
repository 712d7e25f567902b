// Package sha256 hashes keys into snapshot object names.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"strings"
)

// Hasher implements crawler.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// ObjectPath joins prefix and the digest into "<prefix>/<digest><ext>".
// An empty prefix yields just the file name.
func ObjectPath(prefix, digest, ext string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return digest + ext
	}
	return path.Join(prefix, digest+ext)
}
