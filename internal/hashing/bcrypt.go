// AngelaMos | 2026
// bcrypt.go

package hashing

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const bcryptMaxSecretBytes = 72

type Bcrypt struct {
	cost int
}

func NewBcrypt(cost int) (*Bcrypt, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, &ConfigurationError{
			Setting: "password.bcrypt_cost",
			Reason:  fmt.Sprintf("must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost),
		}
	}
	return &Bcrypt{cost: cost}, nil
}

func (b *Bcrypt) Name() string {
	return AlgorithmBcrypt
}

func (b *Bcrypt) MaxSecretBytes() int {
	return bcryptMaxSecretBytes
}

func (b *Bcrypt) Hash(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), b.cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt hash: %w", err)
	}
	return string(hash), nil
}

func (b *Bcrypt) Verify(secret, digest string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, fmt.Errorf("bcrypt verify: %w", err)
}

func (b *Bcrypt) Identify(digest string) bool {
	return strings.HasPrefix(digest, "$2a$") ||
		strings.HasPrefix(digest, "$2b$") ||
		strings.HasPrefix(digest, "$2y$")
}

func (b *Bcrypt) NeedsRehash(digest string) bool {
	cost, err := bcrypt.Cost([]byte(digest))
	if err != nil {
		return true
	}
	return cost != b.cost
}
