// AngelaMos | 2026
// policy.go

// Package password enforces complexity and reuse rules and keeps the
// bounded per-user password history.
package password

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/carterperez-dev/templates/erp-backend/internal/config"
	"github.com/carterperez-dev/templates/erp-backend/internal/core"
	"github.com/carterperez-dev/templates/erp-backend/internal/hashing"
)

const Symbols = "!@#$%^&*()-_=+[]{};:,.<>?/|~`"

var (
	ErrComplexity         = errors.New("password does not meet complexity requirements")
	ErrPasswordReused     = errors.New("password was used recently")
	ErrInvalidCredentials = errors.New("current password is incorrect")
)

type ComplexityError struct {
	Failures []string
}

func (e *ComplexityError) Error() string {
	return ErrComplexity.Error() + ": " + strings.Join(e.Failures, "; ")
}

func (e *ComplexityError) Unwrap() error {
	return ErrComplexity
}

type Hasher interface {
	Hash(ctx context.Context, secret string) (string, error)
	Verify(ctx context.Context, secret, digest string) (hashing.VerifyResult, error)
}

type Engine struct {
	minLength    int
	maxBytes     int
	historyLimit int
	storeTimeout time.Duration
	hasher       Hasher
	history      HistoryRepository
}

func NewEngine(
	cfg config.PasswordConfig,
	storeTimeout time.Duration,
	hasher Hasher,
	history HistoryRepository,
) *Engine {
	e := &Engine{
		minLength:    cfg.MinLength,
		historyLimit: cfg.HistoryLimit,
		storeTimeout: storeTimeout,
		hasher:       hasher,
		history:      history,
	}
	if l, ok := hasher.(hashing.SecretLimiter); ok {
		e.maxBytes = l.MaxSecretBytes()
	}
	return e
}

func (e *Engine) ValidateComplexity(password string) error {
	var failures []string

	if utf8.RuneCountInString(password) < e.minLength {
		failures = append(failures, fmt.Sprintf("must be at least %d characters", e.minLength))
	}
	if e.maxBytes > 0 && len(password) > e.maxBytes {
		failures = append(failures, fmt.Sprintf("must be at most %d bytes", e.maxBytes))
	}

	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(Symbols, r):
			symbol = true
		}
	}

	if !upper {
		failures = append(failures, "must contain an uppercase letter")
	}
	if !lower {
		failures = append(failures, "must contain a lowercase letter")
	}
	if !digit {
		failures = append(failures, "must contain a digit")
	}
	if !symbol {
		failures = append(failures, "must contain a symbol from "+Symbols)
	}

	if len(failures) > 0 {
		return &ComplexityError{Failures: failures}
	}
	return nil
}

// CheckNotReused fails when candidate matches any of the user's last N
// password hashes. Entries whose algorithm is no longer enabled are skipped.
func (e *Engine) CheckNotReused(ctx context.Context, userID, candidate string) error {
	storeCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	entries, err := e.history.Recent(storeCtx, userID, e.historyLimit)
	cancel()
	if err != nil {
		return core.StoreError("check password reuse", err)
	}

	for _, entry := range entries {
		reused, err := e.matches(ctx, candidate, entry.PasswordHash)
		if err != nil {
			return err
		}
		if reused {
			return ErrPasswordReused
		}
	}

	return nil
}

// ChangePassword verifies the current password, applies every policy rule
// to the new one and returns its hash. History is untouched; the caller
// calls Record once the hash is stored on the user.
func (e *Engine) ChangePassword(
	ctx context.Context,
	userID, current, next, currentHash string,
) (string, error) {
	res, err := e.hasher.Verify(ctx, current, currentHash)
	if err != nil && !errors.Is(err, hashing.ErrUnrecognizedDigest) {
		return "", fmt.Errorf("verify current password: %w", err)
	}
	if !res.Match {
		return "", ErrInvalidCredentials
	}

	if err := e.ValidateComplexity(next); err != nil {
		return "", err
	}

	if current == next {
		return "", ErrPasswordReused
	}

	if err := e.CheckNotReused(ctx, userID, next); err != nil {
		return "", err
	}

	hash, err := e.hasher.Hash(ctx, next)
	if err != nil {
		return "", fmt.Errorf("hash new password: %w", err)
	}

	return hash, nil
}

// Record appends hash to the user's history and trims it to the
// configured window.
func (e *Engine) Record(ctx context.Context, userID, hash string) error {
	storeCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	if err := e.history.Append(storeCtx, userID, hash); err != nil {
		return core.StoreError("record password history", err)
	}

	if _, err := e.history.TrimToLimit(storeCtx, userID, e.historyLimit); err != nil {
		return core.StoreError("trim password history", err)
	}

	return nil
}

func (e *Engine) PruneHistory(ctx context.Context, cutoff time.Time) (int64, error) {
	storeCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	n, err := e.history.DeleteOlderThan(storeCtx, cutoff)
	if err != nil {
		return 0, core.StoreError("prune password history", err)
	}
	return n, nil
}

func (e *Engine) CountPrunable(ctx context.Context, cutoff time.Time) (int64, error) {
	storeCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	n, err := e.history.CountOlderThan(storeCtx, cutoff)
	if err != nil {
		return 0, core.StoreError("count password history", err)
	}
	return n, nil
}

func (e *Engine) matches(ctx context.Context, candidate, digest string) (bool, error) {
	res, err := e.hasher.Verify(ctx, candidate, digest)
	if errors.Is(err, hashing.ErrUnrecognizedDigest) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("compare password history: %w", err)
	}
	return res.Match, nil
}
