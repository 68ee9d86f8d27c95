package credential

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medtreasury/medtreasury/internal/account"
	"github.com/medtreasury/medtreasury/internal/apperrors"
	"github.com/medtreasury/medtreasury/internal/clock"
	"github.com/medtreasury/medtreasury/internal/events"
	"github.com/medtreasury/medtreasury/internal/logging"
)

const (
	admin  = account.Address("admin")
	doctor = account.Address("doctor")
	nurse  = account.Address("nurse")
	issuer = account.Address("issuer")
)

var demoProof = DeriveProofToken("demo-proof")

func newTestRegistry(t *testing.T) (*Registry, *clock.Fake, *events.Recorder) {
	t.Helper()
	clk := clock.NewFake(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	rec := &events.Recorder{}
	reg, err := NewRegistry(context.Background(), admin, NewMemoryRepository(), clk, rec, logging.Discard())
	require.NoError(t, err)
	return reg, clk, rec
}

func issue(t *testing.T, reg *Registry, holder account.Address, role Role, seconds int64) Credential {
	t.Helper()
	cred, err := reg.IssueCredential(context.Background(), admin, IssueInput{
		Holder: holder, Role: role, ProofToken: demoProof, ValiditySeconds: seconds,
	})
	require.NoError(t, err)
	return cred
}

func TestNewRegistrySeedsAdminAsIssuer(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	ok, err := reg.IsIssuer(context.Background(), admin)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = NewRegistry(context.Background(), account.Null, NewMemoryRepository(), nil, nil, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestAddIssuerIsAdminOnly(t *testing.T) {
	reg, _, rec := newTestRegistry(t)
	ctx := context.Background()

	err := reg.AddIssuer(ctx, doctor, issuer)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	require.NoError(t, reg.AddIssuer(ctx, admin, issuer))
	ok, err := reg.IsIssuer(ctx, issuer)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{events.NameIssuerAdded}, rec.Names())

	_, err = reg.IssueCredential(ctx, issuer, IssueInput{Holder: nurse, Role: RoleNurse, ProofToken: demoProof, ValiditySeconds: 60})
	assert.NoError(t, err)

	assert.ErrorIs(t, reg.AddIssuer(ctx, admin, account.Null), apperrors.ErrInvalidInput)
}

func TestIssueCredentialValidation(t *testing.T) {
	reg, _, rec := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.IssueCredential(ctx, doctor, IssueInput{Holder: doctor, Role: RoleDoctor, ValiditySeconds: 60})
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	for _, seconds := range []int64{0, -1, maxValiditySeconds + 1} {
		_, err = reg.IssueCredential(ctx, admin, IssueInput{Holder: doctor, Role: RoleDoctor, ValiditySeconds: seconds})
		assert.ErrorIs(t, err, apperrors.ErrInvalidDuration, "validity %d", seconds)
	}

	_, err = reg.IssueCredential(ctx, admin, IssueInput{Holder: doctor, Role: Role("SURGEON"), ValiditySeconds: 60})
	assert.ErrorIs(t, err, apperrors.ErrInvalidRole)

	_, err = reg.IssueCredential(ctx, admin, IssueInput{Holder: account.Null, Role: RoleDoctor, ValiditySeconds: 60})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	assert.Empty(t, rec.Events())
}

func TestIssueCredentialSetsWindowAndEmits(t *testing.T) {
	reg, clk, rec := newTestRegistry(t)
	start := clk.Now()

	cred := issue(t, reg, doctor, RoleDoctor, 365*24*60*60)
	assert.Equal(t, start, cred.IssuedAt)
	assert.Equal(t, start.Add(365*24*time.Hour), cred.ExpiresAt)
	assert.False(t, cred.Revoked)

	evs := rec.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, events.CredentialIssued{Holder: "doctor", Role: "DOCTOR", ExpiresAt: cred.ExpiresAt}, evs[0])
}

func TestHasRoleExpiresAtBoundary(t *testing.T) {
	reg, clk, _ := newTestRegistry(t)
	ctx := context.Background()
	issue(t, reg, nurse, RoleNurse, 1)

	ok, err := reg.HasRole(ctx, nurse, RoleNurse)
	require.NoError(t, err)
	assert.True(t, ok)

	// Validity ends exactly at ExpiresAt.
	clk.Advance(time.Second)
	ok, err = reg.HasRole(ctx, nurse, RoleNurse)
	require.NoError(t, err)
	assert.False(t, ok)

	clk.Advance(time.Second)
	ok, _ = reg.HasRole(ctx, nurse, RoleNurse)
	assert.False(t, ok)
}

func TestHasRoleIsPerRole(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	issue(t, reg, doctor, RoleDoctor, 60)

	ok, err := reg.HasRole(context.Background(), doctor, RoleFinance)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, _ = reg.HasRole(context.Background(), nurse, RoleDoctor)
	assert.False(t, ok)
}

func TestRevokeCredential(t *testing.T) {
	reg, _, rec := newTestRegistry(t)
	ctx := context.Background()
	issue(t, reg, doctor, RoleDoctor, 3600)

	assert.ErrorIs(t, reg.RevokeCredential(ctx, nurse, doctor, RoleDoctor), apperrors.ErrUnauthorized)
	assert.ErrorIs(t, reg.RevokeCredential(ctx, admin, nurse, RoleNurse), apperrors.ErrNotFound)

	require.NoError(t, reg.RevokeCredential(ctx, admin, doctor, RoleDoctor))
	ok, err := reg.HasRole(ctx, doctor, RoleDoctor)
	require.NoError(t, err)
	assert.False(t, ok)

	cred, err := reg.Credential(ctx, doctor, RoleDoctor)
	require.NoError(t, err)
	assert.True(t, cred.Revoked)
	assert.Equal(t, []string{events.NameCredentialIssued, events.NameCredentialRevoked}, rec.Names())

	// Re-issuing clears the revocation.
	issue(t, reg, doctor, RoleDoctor, 3600)
	ok, _ = reg.HasRole(ctx, doctor, RoleDoctor)
	assert.True(t, ok)
}

func TestVerifyProof(t *testing.T) {
	reg, clk, _ := newTestRegistry(t)
	ctx := context.Background()
	issue(t, reg, doctor, RoleDoctor, 10)

	ok, err := reg.VerifyProof(ctx, doctor, RoleDoctor, demoProof)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = reg.VerifyProof(ctx, doctor, RoleDoctor, DeriveProofToken("other"))
	assert.False(t, ok)

	ok, _ = reg.VerifyProof(ctx, nurse, RoleNurse, demoProof)
	assert.False(t, ok)

	clk.Advance(10 * time.Second)
	ok, _ = reg.VerifyProof(ctx, doctor, RoleDoctor, demoProof)
	assert.False(t, ok, "expired credential must not verify")
}

func TestHasRoleAtUsesSuppliedInstant(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	cred := issue(t, reg, doctor, RoleDoctor, 30)

	ok, err := reg.HasRoleAt(context.Background(), doctor, RoleDoctor, cred.ExpiresAt.Add(-time.Microsecond))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = reg.HasRoleAt(context.Background(), doctor, RoleDoctor, cred.ExpiresAt)
	assert.False(t, ok)
}
