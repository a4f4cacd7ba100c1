package readme

import (
	"crypto/md5"
	"encoding/hex"
)

// Change classifies the result of comparing a new fingerprint against the
// stored one.
type Change int

const (
	// ChangeNew means no prior enrichment record exists.
	ChangeNew Change = iota
	// ChangeChanged means the content fingerprint differs from the stored one.
	ChangeChanged
	// ChangeUnchanged means the fingerprints are identical; the vector index
	// round trip can be skipped entirely.
	ChangeUnchanged
)

// String returns the change kind for logging.
func (c Change) String() string {
	switch c {
	case ChangeNew:
		return "new"
	case ChangeChanged:
		return "changed"
	default:
		return "unchanged"
	}
}

// Fingerprint computes a deterministic 128-bit digest over the exact bytes of
// normalized content.
func Fingerprint(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Decide compares a stored fingerprint (nil when no record exists) against
// the fingerprint of freshly normalized content.
func Decide(existing *string, next string) Change {
	switch {
	case existing == nil:
		return ChangeNew
	case *existing == next:
		return ChangeUnchanged
	default:
		return ChangeChanged
	}
}
