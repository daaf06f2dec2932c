package driver

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// Digest is a SHA-256 sum.
type Digest [sha256.Size]byte

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// IsZero reports whether d was never computed.
func (d Digest) IsZero() bool { return d == Digest{} }

func contentDigest(data []byte) Digest { return sha256.Sum256(data) }

// combineDigest: H(content || len(p1) || p1 || ...). Length prefixes keep
// ("ab", "c") and ("a", "bc") apart.
func combineDigest(content Digest, parts ...string) Digest {
	h := sha256.New()
	_, _ = h.Write(content[:])
	var n [8]byte
	for _, p := range parts {
		binary.LittleEndian.PutUint64(n[:], uint64(len(p)))
		_, _ = h.Write(n[:])
		_, _ = h.Write([]byte(p))
	}
	var out Digest
	copy(out[:], h.Sum(nil))
	return out
}

// UnitKey is the cache key of a unit: its bytes, the configuration it
// was compiled under and the payload schema.
func UnitKey(data []byte, fingerprint string) Digest {
	var schema [2]byte
	binary.LittleEndian.PutUint16(schema[:], diskCacheSchemaVersion)
	return combineDigest(contentDigest(data), fingerprint, string(schema[:]))
}
