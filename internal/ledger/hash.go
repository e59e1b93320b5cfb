package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// ContentHash computes the SHA-256 hex digest of the full content. The
// digest depends only on the bytes, never on filename or metadata, so it
// doubles as the workspace-scoped dedup key.
func ContentHash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// ContentHashReader streams r through SHA-256 without buffering it whole.
func ContentHashReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
