package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medtreasury/medtreasury/internal/account"
	"github.com/medtreasury/medtreasury/internal/apperrors"
	"github.com/medtreasury/medtreasury/internal/infra"
)

// Repository persists issuers and credentials.
type Repository interface {
	AddIssuer(ctx context.Context, acct account.Address, at time.Time) error
	IsIssuer(ctx context.Context, acct account.Address) (bool, error)
	Put(ctx context.Context, cred Credential) error
	Get(ctx context.Context, holder account.Address, role Role) (Credential, error)
	Revoke(ctx context.Context, holder account.Address, role Role) error
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed credential repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// AddIssuer records acct as an issuer. Adding an existing issuer is a no-op.
func (r *PostgresRepository) AddIssuer(ctx context.Context, acct account.Address, at time.Time) error {
	_, err := infra.Conn(ctx, r.db).Exec(ctx, `INSERT INTO credential_issuers (account, added_at) VALUES ($1, $2)
        ON CONFLICT (account) DO NOTHING`, acct.String(), at.UTC())
	return err
}

// IsIssuer reports whether acct may issue credentials.
func (r *PostgresRepository) IsIssuer(ctx context.Context, acct account.Address) (bool, error) {
	var exists bool
	err := infra.Conn(ctx, r.db).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM credential_issuers WHERE account = $1)`, acct.String()).Scan(&exists)
	return exists, err
}

// Put inserts or overwrites the credential for (holder, role).
func (r *PostgresRepository) Put(ctx context.Context, cred Credential) error {
	_, err := infra.Conn(ctx, r.db).Exec(ctx, `INSERT INTO credentials (holder, role, proof_token, issued_at, expires_at, revoked)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (holder, role) DO UPDATE SET proof_token = EXCLUDED.proof_token, issued_at = EXCLUDED.issued_at,
            expires_at = EXCLUDED.expires_at, revoked = EXCLUDED.revoked`,
		cred.Holder.String(), cred.Role.String(), cred.ProofToken[:], cred.IssuedAt.UTC(), cred.ExpiresAt.UTC(), cred.Revoked)
	if err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	return nil
}

// Get fetches the credential for (holder, role).
func (r *PostgresRepository) Get(ctx context.Context, holder account.Address, role Role) (Credential, error) {
	row := infra.Conn(ctx, r.db).QueryRow(ctx, `SELECT proof_token, issued_at, expires_at, revoked FROM credentials
        WHERE holder = $1 AND role = $2`, holder.String(), role.String())
	var (
		token []byte
		cred  = Credential{Holder: holder, Role: role}
	)
	if err := row.Scan(&token, &cred.IssuedAt, &cred.ExpiresAt, &cred.Revoked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Credential{}, apperrors.ErrNotFound
		}
		return Credential{}, err
	}
	if len(token) != ProofTokenSize {
		return Credential{}, fmt.Errorf("credential %s/%s: stored proof token has %d bytes", holder, role, len(token))
	}
	copy(cred.ProofToken[:], token)
	cred.IssuedAt = cred.IssuedAt.UTC()
	cred.ExpiresAt = cred.ExpiresAt.UTC()
	return cred, nil
}

// Revoke marks the credential revoked.
func (r *PostgresRepository) Revoke(ctx context.Context, holder account.Address, role Role) error {
	cmd, err := infra.Conn(ctx, r.db).Exec(ctx, `UPDATE credentials SET revoked = TRUE WHERE holder = $1 AND role = $2`,
		holder.String(), role.String())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
