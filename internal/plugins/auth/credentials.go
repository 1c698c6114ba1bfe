package auth

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// ErrInvalidInput is returned by Hash for passwords bcrypt cannot represent:
// empty ones and ones longer than 72 bytes.
var ErrInvalidInput = errors.New("password must be between 1 and 72 bytes")

// maxPasswordBytes is bcrypt's input limit. Longer inputs would be silently
// truncated, so they are rejected instead.
const maxPasswordBytes = 72

// dummyPassword is hashed once and compared against when a login names an
// unknown email, so both failure paths cost one bcrypt comparison.
const dummyPassword = "userdir-dummy-password"

// CredentialStore hashes and verifies passwords with bcrypt. Hashing is
// CPU-bound, so a weighted semaphore caps how many run at once and keeps a
// burst of logins from starving unrelated requests.
type CredentialStore struct {
	cost int
	sem  *semaphore.Weighted

	dummyOnce sync.Once
	dummyHash []byte
}

// NewCredentialStore creates a store hashing at the given bcrypt cost with
// at most workers concurrent computations. Out-of-range costs fall back to
// bcrypt.DefaultCost; workers <= 0 means one per CPU.
func NewCredentialStore(cost, workers int) *CredentialStore {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &CredentialStore{
		cost: cost,
		sem:  semaphore.NewWeighted(int64(workers)),
	}
}

// Hash returns a salted bcrypt hash of plaintext. Every call draws a fresh
// salt, so hashing the same password twice gives different results.
func (s *CredentialStore) Hash(ctx context.Context, plaintext string) (string, error) {
	if plaintext == "" || len(plaintext) > maxPasswordBytes {
		return "", ErrInvalidInput
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("waiting for hash worker: %w", err)
	}
	defer s.sem.Release(1)

	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), s.cost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether plaintext matches hash. A malformed hash, an
// over-long password or a canceled context all yield false, never an error.
// The comparison itself is constant-time inside bcrypt.
func (s *CredentialStore) Verify(ctx context.Context, plaintext, hash string) bool {
	if len(plaintext) > maxPasswordBytes {
		return false
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return false
	}
	defer s.sem.Release(1)

	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// VerifyDummy spends one comparison against a throwaway hash. Callers use it
// when the account doesn't exist so response timing doesn't reveal that.
func (s *CredentialStore) VerifyDummy(ctx context.Context, plaintext string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte(dummyPassword), s.cost)
	})
	s.Verify(ctx, plaintext, string(s.dummyHash))
}
