package credential

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/medtreasury/medtreasury/internal/account"
	"github.com/medtreasury/medtreasury/internal/apperrors"
	"github.com/medtreasury/medtreasury/internal/clock"
	"github.com/medtreasury/medtreasury/internal/events"
)

// maxValiditySeconds keeps ExpiresAt representable as a time.Duration offset.
const maxValiditySeconds = math.MaxInt64 / int64(time.Second)

// Registry issues, revokes and checks role credentials. Only the admin may add
// issuers; only issuers may issue or revoke.
type Registry struct {
	mu        sync.Mutex
	admin     account.Address
	repo      Repository
	clock     clock.Clock
	publisher events.Publisher
	logger    *slog.Logger
}

// NewRegistry builds a registry and records admin as the first issuer.
func NewRegistry(ctx context.Context, admin account.Address, repo Repository, clk clock.Clock, publisher events.Publisher, logger *slog.Logger) (*Registry, error) {
	if admin.IsNull() {
		return nil, fmt.Errorf("%w: admin account is required", apperrors.ErrInvalidInput)
	}
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := repo.AddIssuer(ctx, admin, clk.Now()); err != nil {
		return nil, fmt.Errorf("seed admin issuer: %w", err)
	}
	return &Registry{admin: admin, repo: repo, clock: clk, publisher: publisher, logger: logger}, nil
}

// Admin returns the registry administrator.
func (r *Registry) Admin() account.Address { return r.admin }

// AddIssuer grants issuing rights to acct.
func (r *Registry) AddIssuer(ctx context.Context, caller, acct account.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.admin {
		return apperrors.ErrUnauthorized
	}
	if acct.IsNull() {
		return fmt.Errorf("%w: issuer account is required", apperrors.ErrInvalidInput)
	}
	if err := r.repo.AddIssuer(ctx, acct, r.clock.Now()); err != nil {
		return err
	}

	r.logger.Info("issuer added", slog.String("account", acct.String()))
	r.publish(ctx, events.IssuerAdded{Account: acct.String()})
	return nil
}

// IsIssuer reports whether acct may issue credentials.
func (r *Registry) IsIssuer(ctx context.Context, acct account.Address) (bool, error) {
	return r.repo.IsIssuer(ctx, acct)
}

// IssueCredential grants in.Role to in.Holder for in.ValiditySeconds, replacing any
// earlier credential for the pair.
func (r *Registry) IssueCredential(ctx context.Context, caller account.Address, in IssueInput) (Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ok, err := r.repo.IsIssuer(ctx, caller)
	if err != nil {
		return Credential{}, err
	}
	if !ok {
		return Credential{}, apperrors.ErrUnauthorized
	}
	if in.ValiditySeconds <= 0 || in.ValiditySeconds > maxValiditySeconds {
		return Credential{}, apperrors.ErrInvalidDuration
	}
	if !in.Role.Valid() {
		return Credential{}, fmt.Errorf("%w: %q", apperrors.ErrInvalidRole, in.Role)
	}
	if in.Holder.IsNull() {
		return Credential{}, fmt.Errorf("%w: holder is required", apperrors.ErrInvalidInput)
	}

	now := r.clock.Now()
	cred := Credential{
		Holder:     in.Holder,
		Role:       in.Role,
		ProofToken: in.ProofToken,
		IssuedAt:   now,
		ExpiresAt:  now.Add(time.Duration(in.ValiditySeconds) * time.Second),
	}
	if err := r.repo.Put(ctx, cred); err != nil {
		return Credential{}, err
	}

	r.logger.Info("credential issued",
		slog.String("holder", cred.Holder.String()),
		slog.String("role", cred.Role.String()),
		slog.Time("expires_at", cred.ExpiresAt),
	)
	r.publish(ctx, events.CredentialIssued{Holder: cred.Holder.String(), Role: cred.Role.String(), ExpiresAt: cred.ExpiresAt})
	return cred, nil
}

// RevokeCredential marks the (holder, role) credential revoked.
func (r *Registry) RevokeCredential(ctx context.Context, caller, holder account.Address, role Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ok, err := r.repo.IsIssuer(ctx, caller)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.ErrUnauthorized
	}
	if err := r.repo.Revoke(ctx, holder, role); err != nil {
		return err
	}

	r.logger.Info("credential revoked", slog.String("holder", holder.String()), slog.String("role", role.String()))
	r.publish(ctx, events.CredentialRevoked{Holder: holder.String(), Role: role.String()})
	return nil
}

// HasRole reports whether acct currently holds a live credential for role.
func (r *Registry) HasRole(ctx context.Context, acct account.Address, role Role) (bool, error) {
	return r.HasRoleAt(ctx, acct, role, r.clock.Now())
}

// HasRoleAt evaluates HasRole at the given instant.
func (r *Registry) HasRoleAt(ctx context.Context, acct account.Address, role Role, now time.Time) (bool, error) {
	cred, err := r.repo.Get(ctx, acct, role)
	if errors.Is(err, apperrors.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return cred.ActiveAt(now), nil
}

// VerifyProof reports whether acct holds role and candidate matches the stored token.
// The comparison is a plain equality check, not a zero-knowledge verification.
func (r *Registry) VerifyProof(ctx context.Context, acct account.Address, role Role, candidate ProofToken) (bool, error) {
	cred, err := r.repo.Get(ctx, acct, role)
	if errors.Is(err, apperrors.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !cred.ActiveAt(r.clock.Now()) {
		return false, nil
	}
	return subtle.ConstantTimeCompare(cred.ProofToken[:], candidate[:]) == 1, nil
}

// Credential returns the stored credential regardless of liveness.
func (r *Registry) Credential(ctx context.Context, holder account.Address, role Role) (Credential, error) {
	return r.repo.Get(ctx, holder, role)
}

func (r *Registry) publish(ctx context.Context, event events.Event) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(ctx, event); err != nil {
		r.logger.Warn("publish event failed", slog.String("event", event.Name()), slog.Any("error", err))
	}
}
