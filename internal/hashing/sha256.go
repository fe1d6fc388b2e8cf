// AngelaMos | 2026
// sha256.go

package hashing

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/carterperez-dev/templates/erp-backend/internal/core"
)

const (
	sha256Prefix  = "$sha256$"
	sha256SaltLen = 16
)

// SHA256 is a salted single-round digest for local development and tests
// where argon2 cost would dominate runtime.
type SHA256 struct{}

func NewSHA256() *SHA256 {
	return &SHA256{}
}

func (s *SHA256) Name() string {
	return AlgorithmSHA256
}

func (s *SHA256) Hash(secret string) (string, error) {
	salt := make([]byte, sha256SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	return sha256Prefix + hex.EncodeToString(salt) + "$" + sumHex(salt, secret), nil
}

func (s *SHA256) Verify(secret, digest string) (bool, error) {
	rest, ok := strings.CutPrefix(digest, sha256Prefix)
	if !ok {
		return false, fmt.Errorf("invalid hash format")
	}

	saltHex, sum, ok := strings.Cut(rest, "$")
	if !ok {
		return false, fmt.Errorf("invalid hash format")
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false, fmt.Errorf("decode salt: %w", err)
	}

	return core.ConstantTimeEqual(sum, sumHex(salt, secret)), nil
}

func (s *SHA256) Identify(digest string) bool {
	return strings.HasPrefix(digest, sha256Prefix)
}

func sumHex(salt []byte, secret string) string {
	h := sha256.New()
	h.Write(salt)
	h.Write([]byte(secret))
	return hex.EncodeToString(h.Sum(nil))
}
