// Package sha256 content-addresses archived page snapshots.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
)

// snapshotExt is the extension of archived listing pages.
const snapshotExt = ".html"

// Hasher derives snapshot digests and archive keys.
type Hasher struct{}

// New returns a Hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex SHA-256 digest of a rendered page.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// SnapshotKey places a digest under prefix, fanned out by its first two hex
// characters so no archive directory grows without bound. Identical pages
// map to the same key.
func (h *Hasher) SnapshotKey(prefix, digest string) string {
	if len(digest) < 2 {
		return path.Join(prefix, digest+snapshotExt)
	}
	return path.Join(prefix, digest[:2], digest+snapshotExt)
}
