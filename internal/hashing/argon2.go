// AngelaMos | 2026
// argon2.go

package hashing

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	argonPrefix       = "$argon2id$"
	minArgonMemory    = 8 * 1024
	minArgonSalt      = 16
	minArgonKeyLength = 16
)

type Argon2Params struct {
	Memory     uint32
	Time       uint32
	Threads    uint8
	KeyLength  uint32
	SaltLength uint32
}

type Argon2id struct {
	params Argon2Params
}

func NewArgon2id(p Argon2Params) (*Argon2id, error) {
	switch {
	case p.Memory < minArgonMemory:
		return nil, &ConfigurationError{
			Setting: "password.argon2_memory",
			Reason:  fmt.Sprintf("must be at least %d KiB", minArgonMemory),
		}
	case p.Time < 1:
		return nil, &ConfigurationError{Setting: "password.argon2_time", Reason: "must be at least 1"}
	case p.Threads < 1:
		return nil, &ConfigurationError{Setting: "password.argon2_threads", Reason: "must be at least 1"}
	case p.SaltLength < minArgonSalt:
		return nil, &ConfigurationError{
			Setting: "password.argon2_salt_length",
			Reason:  fmt.Sprintf("must be at least %d bytes", minArgonSalt),
		}
	case p.KeyLength < minArgonKeyLength:
		return nil, &ConfigurationError{
			Setting: "password.argon2_key_length",
			Reason:  fmt.Sprintf("must be at least %d bytes", minArgonKeyLength),
		}
	}

	return &Argon2id{params: p}, nil
}

func (a *Argon2id) Name() string {
	return AlgorithmArgon2id
}

func (a *Argon2id) Hash(secret string) (string, error) {
	salt := make([]byte, a.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	hash := argon2.IDKey(
		[]byte(secret),
		salt,
		a.params.Time,
		a.params.Memory,
		a.params.Threads,
		a.params.KeyLength,
	)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		a.params.Memory,
		a.params.Time,
		a.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

func (a *Argon2id) Verify(secret, digest string) (bool, error) {
	params, salt, hash, err := decodeArgon2(digest)
	if err != nil {
		return false, err
	}

	other := argon2.IDKey(
		[]byte(secret),
		salt,
		params.Time,
		params.Memory,
		params.Threads,
		params.KeyLength,
	)

	return subtle.ConstantTimeCompare(hash, other) == 1, nil
}

func (a *Argon2id) Identify(digest string) bool {
	return strings.HasPrefix(digest, argonPrefix)
}

func (a *Argon2id) NeedsRehash(digest string) bool {
	params, _, _, err := decodeArgon2(digest)
	if err != nil {
		return true
	}

	return params.Memory != a.params.Memory ||
		params.Time != a.params.Time ||
		params.Threads != a.params.Threads ||
		params.KeyLength != a.params.KeyLength
}

func decodeArgon2(digest string) (*Argon2Params, []byte, []byte, error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 6 {
		return nil, nil, nil, fmt.Errorf("invalid hash format")
	}

	if parts[1] != AlgorithmArgon2id {
		return nil, nil, nil, fmt.Errorf("unsupported algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid version: %w", err)
	}

	if version != argon2.Version {
		return nil, nil, nil, fmt.Errorf("incompatible version: %d", version)
	}

	params := &Argon2Params{}
	_, err := fmt.Sscanf(
		parts[3],
		"m=%d,t=%d,p=%d",
		&params.Memory,
		&params.Time,
		&params.Threads,
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid params: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("decode salt: %w", err)
	}

	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("decode hash: %w", err)
	}

	//nolint:gosec // G115: hash length is always small
	params.KeyLength = uint32(len(hash))
	//nolint:gosec // G115: salt length is always small
	params.SaltLength = uint32(len(salt))

	return params, salt, hash, nil
}
