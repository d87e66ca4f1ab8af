package cipher

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Fingerprinter computes a keyed, non-reversible hash of an identity token.
// It is stored next to the membership ciphertext so a member can be found
// by token without decrypting every row of the room.
type Fingerprinter struct {
	key []byte
}

// NewFingerprinter returns a Fingerprinter. An empty key disables it.
// Keys longer than 64 bytes are reduced with an unkeyed hash first.
func NewFingerprinter(key string) *Fingerprinter {
	if key == "" {
		return &Fingerprinter{}
	}
	k := []byte(key)
	if len(k) > blake2b.Size {
		sum := blake2b.Sum512(k)
		k = sum[:]
	}
	return &Fingerprinter{key: k}
}

// Enabled reports whether a key is configured.
func (f *Fingerprinter) Enabled() bool {
	return f != nil && len(f.key) > 0
}

// Sum returns the hex fingerprint of token, or "" when disabled.
func (f *Fingerprinter) Sum(token string) string {
	if !f.Enabled() || token == "" {
		return ""
	}
	h, err := blake2b.New256(f.key)
	if err != nil {
		return ""
	}
	h.Write([]byte(token))
	return hex.EncodeToString(h.Sum(nil))
}
