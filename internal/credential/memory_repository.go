package credential

import (
	"context"
	"sync"
	"time"

	"github.com/medtreasury/medtreasury/internal/account"
	"github.com/medtreasury/medtreasury/internal/apperrors"
)

type credentialKey struct {
	holder account.Address
	role   Role
}

type memoryRepository struct {
	mu          sync.RWMutex
	issuers     map[account.Address]time.Time
	credentials map[credentialKey]Credential
}

// NewMemoryRepository builds an in-memory credential store.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		issuers:     make(map[account.Address]time.Time),
		credentials: make(map[credentialKey]Credential),
	}
}

func (r *memoryRepository) AddIssuer(_ context.Context, acct account.Address, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.issuers[acct]; !exists {
		r.issuers[acct] = at
	}
	return nil
}

func (r *memoryRepository) IsIssuer(_ context.Context, acct account.Address) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.issuers[acct]
	return ok, nil
}

func (r *memoryRepository) Put(_ context.Context, cred Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.credentials[credentialKey{cred.Holder, cred.Role}] = cred
	return nil
}

func (r *memoryRepository) Get(_ context.Context, holder account.Address, role Role) (Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cred, ok := r.credentials[credentialKey{holder, role}]
	if !ok {
		return Credential{}, apperrors.ErrNotFound
	}
	return cred, nil
}

func (r *memoryRepository) Revoke(_ context.Context, holder account.Address, role Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := credentialKey{holder, role}
	cred, ok := r.credentials[key]
	if !ok {
		return apperrors.ErrNotFound
	}
	cred.Revoked = true
	r.credentials[key] = cred
	return nil
}
