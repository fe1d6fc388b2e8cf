// AngelaMos | 2026
// pool.go

package hashing

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/semaphore"

	"github.com/carterperez-dev/templates/erp-backend/internal/config"
)

const probeSecret = "startup-probe-Secret#0"

var ErrUnrecognizedDigest = errors.New("digest not produced by any enabled algorithm")

type VerifyResult struct {
	Match       bool
	NeedsRehash bool
}

// Pool bounds concurrent hash work to a fixed number of workers so a burst
// of logins cannot starve the request handlers of CPU.
type Pool struct {
	primary Strategy
	legacy  []Strategy
	sem     *semaphore.Weighted
	dummy   string
}

func NewPool(primary Strategy, legacy []Strategy, workers int) (*Pool, error) {
	if primary == nil {
		return nil, &ConfigurationError{Setting: "password.algorithm", Reason: "no strategy"}
	}
	if workers < 1 {
		return nil, &ConfigurationError{Setting: "password.hash_workers", Reason: "must be at least 1"}
	}

	dummy, err := primary.Hash(probeSecret)
	if err != nil {
		return nil, &ConfigurationError{
			Setting: "password.algorithm",
			Reason:  fmt.Sprintf("probe hash failed: %v", err),
		}
	}

	ok, err := primary.Verify(probeSecret, dummy)
	if err != nil || !ok {
		return nil, &ConfigurationError{
			Setting: "password.algorithm",
			Reason:  "probe verification failed",
		}
	}

	return &Pool{
		primary: primary,
		legacy:  legacy,
		sem:     semaphore.NewWeighted(int64(workers)),
		dummy:   dummy,
	}, nil
}

// NewFromConfig resolves the primary and legacy strategies and probes them.
// Any failure here is fatal to startup.
func NewFromConfig(cfg config.PasswordConfig, environment string) (*Pool, error) {
	primary, err := New(cfg, environment)
	if err != nil {
		return nil, err
	}

	legacy, err := NewLegacy(cfg, environment)
	if err != nil {
		return nil, err
	}

	return NewPool(primary, legacy, cfg.HashWorkers)
}

func (p *Pool) Algorithm() string {
	return p.primary.Name()
}

// MaxSecretBytes is the longest secret the primary strategy can hash, or
// zero when it has no limit.
func (p *Pool) MaxSecretBytes() int {
	if l, ok := p.primary.(SecretLimiter); ok {
		return l.MaxSecretBytes()
	}
	return 0
}

func (p *Pool) Hash(ctx context.Context, secret string) (string, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("acquire hash worker: %w", err)
	}
	defer p.sem.Release(1)

	return p.primary.Hash(secret)
}

// Verify checks secret against digest with whichever enabled strategy
// recognises it. Matches against legacy algorithms or outdated parameters
// report NeedsRehash.
func (p *Pool) Verify(ctx context.Context, secret, digest string) (VerifyResult, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return VerifyResult{}, fmt.Errorf("acquire hash worker: %w", err)
	}
	defer p.sem.Release(1)

	if p.primary.Identify(digest) {
		ok, err := p.primary.Verify(secret, digest)
		if err != nil || !ok {
			return VerifyResult{}, err
		}

		stale := false
		if r, isRehasher := p.primary.(Rehasher); isRehasher {
			stale = r.NeedsRehash(digest)
		}
		return VerifyResult{Match: true, NeedsRehash: stale}, nil
	}

	for _, s := range p.legacy {
		if !s.Identify(digest) {
			continue
		}
		ok, err := s.Verify(secret, digest)
		if err != nil || !ok {
			return VerifyResult{}, err
		}
		return VerifyResult{Match: true, NeedsRehash: true}, nil
	}

	//nolint:errcheck // equalise timing with a real verification
	_, _ = p.primary.Verify(secret, p.dummy)
	return VerifyResult{}, ErrUnrecognizedDigest
}

// VerifyDummy burns one verification against the probe hash. Used when the
// account does not exist so response timing does not reveal that.
func (p *Pool) VerifyDummy(ctx context.Context, secret string) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire hash worker: %w", err)
	}
	defer p.sem.Release(1)

	//nolint:errcheck // result is discarded
	_, _ = p.primary.Verify(secret, p.dummy)
	return nil
}
