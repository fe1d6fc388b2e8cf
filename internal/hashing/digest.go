// AngelaMos | 2026
// digest.go

package hashing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var ErrEmptyDigestKey = errors.New("digest key is empty")

// Digester produces a keyed, deterministic digest of a high-entropy token so
// it can be stored and looked up without keeping the raw value.
type Digester struct {
	key []byte
}

func NewDigester(key string) (*Digester, error) {
	if key == "" {
		return nil, ErrEmptyDigestKey
	}
	return &Digester{key: []byte(key)}, nil
}

func (d *Digester) Digest(token string) string {
	mac := hmac.New(sha256.New, d.key)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}
