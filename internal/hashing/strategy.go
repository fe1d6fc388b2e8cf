// AngelaMos | 2026
// strategy.go

// Package hashing resolves the password hashing strategy once at startup and
// provides the deterministic digest used to look up refresh tokens.
package hashing

import (
	"fmt"
	"strings"

	"github.com/carterperez-dev/templates/erp-backend/internal/config"
	"github.com/carterperez-dev/templates/erp-backend/internal/core"
)

const (
	AlgorithmArgon2id = "argon2id"
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmSHA256   = "sha256"
)

// Strategy hashes and verifies secrets with a single algorithm.
type Strategy interface {
	Name() string
	Hash(secret string) (string, error)
	Verify(secret, digest string) (bool, error)
	// Identify reports whether digest was produced by this strategy.
	Identify(digest string) bool
}

// Rehasher is implemented by strategies whose stored parameters can drift
// from the configured ones.
type Rehasher interface {
	NeedsRehash(digest string) bool
}

// SecretLimiter is implemented by strategies that reject secrets longer
// than a fixed number of bytes.
type SecretLimiter interface {
	MaxSecretBytes() int
}

type ConfigurationError struct {
	Setting string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("hashing: %s: %s", e.Setting, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return core.ErrConfiguration
}

// New builds the strategy named by cfg.Algorithm. The fast digest is only
// accepted outside production.
func New(cfg config.PasswordConfig, environment string) (Strategy, error) {
	return build(strings.ToLower(cfg.Algorithm), cfg, environment)
}

// NewLegacy builds the verifiers listed in cfg.LegacyAlgorithms. The primary
// algorithm is skipped if repeated there.
func NewLegacy(cfg config.PasswordConfig, environment string) ([]Strategy, error) {
	primary := strings.ToLower(cfg.Algorithm)
	legacy := make([]Strategy, 0, len(cfg.LegacyAlgorithms))

	for _, name := range cfg.LegacyAlgorithms {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || name == primary {
			continue
		}

		s, err := build(name, cfg, environment)
		if err != nil {
			return nil, err
		}
		legacy = append(legacy, s)
	}

	return legacy, nil
}

func build(name string, cfg config.PasswordConfig, environment string) (Strategy, error) {
	switch name {
	case AlgorithmArgon2id:
		return NewArgon2id(Argon2Params{
			Memory:     cfg.Argon2Memory,
			Time:       cfg.Argon2Time,
			Threads:    cfg.Argon2Threads,
			KeyLength:  cfg.Argon2KeyLength,
			SaltLength: cfg.Argon2SaltLength,
		})
	case AlgorithmBcrypt:
		return NewBcrypt(cfg.BcryptCost)
	case AlgorithmSHA256:
		if environment == "production" {
			return nil, &ConfigurationError{
				Setting: "password.algorithm",
				Reason:  "sha256 is not permitted in production",
			}
		}
		return NewSHA256(), nil
	case "":
		return nil, &ConfigurationError{
			Setting: "password.algorithm",
			Reason:  "algorithm is required",
		}
	default:
		return nil, &ConfigurationError{
			Setting: "password.algorithm",
			Reason:  fmt.Sprintf("unsupported algorithm %q", name),
		}
	}
}
