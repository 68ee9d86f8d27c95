package treasury

import (
	"context"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medtreasury/medtreasury/internal/account"
	"github.com/medtreasury/medtreasury/internal/apperrors"
	"github.com/medtreasury/medtreasury/internal/infra"
)

// Repository persists expense requests and the id counter.
type Repository interface {
	// NextID bumps the counter and returns the new value.
	NextID(ctx context.Context) (uint64, error)
	Counter(ctx context.Context) (uint64, error)
	Insert(ctx context.Context, req ExpenseRequest) error
	Get(ctx context.Context, id uint64) (ExpenseRequest, error)
	// GetForUpdate reads the request and holds it for the surrounding transaction.
	GetForUpdate(ctx context.Context, id uint64) (ExpenseRequest, error)
	Update(ctx context.Context, req ExpenseRequest) error
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed request repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// NextID increments the singleton counter row. Inside a transaction the row stays
// locked until commit, so ids are gap free.
func (r *PostgresRepository) NextID(ctx context.Context) (uint64, error) {
	var id int64
	err := infra.Conn(ctx, r.db).QueryRow(ctx, `UPDATE treasury_counter SET value = value + 1 WHERE singleton RETURNING value`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("next request id: %w", err)
	}
	return uint64(id), nil
}

// Counter returns the number of requests ever created.
func (r *PostgresRepository) Counter(ctx context.Context) (uint64, error) {
	var n int64
	err := infra.Conn(ctx, r.db).QueryRow(ctx, `SELECT value FROM treasury_counter WHERE singleton`).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return uint64(n), nil
}

// Insert stores a new request.
func (r *PostgresRepository) Insert(ctx context.Context, req ExpenseRequest) error {
	_, err := infra.Conn(ctx, r.db).Exec(ctx, `INSERT INTO expense_requests (id, requester, amount, description, request_type, vendor,
            status, doctor_approved, nurse_verified, finance_approved, created_at, updated_at)
        VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		int64(req.ID), req.Requester.String(), req.Amount.Dec(), req.Description, int16(req.Type), req.Vendor.String(),
		int16(req.Status), req.Approvals.Doctor, req.Approvals.Nurse, req.Approvals.Finance, req.CreatedAt.UTC(), req.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert request %d: %w", req.ID, err)
	}
	return nil
}

const selectRequest = `SELECT id, requester, amount::text, description, request_type, vendor, status,
    doctor_approved, nurse_verified, finance_approved, created_at, updated_at FROM expense_requests WHERE id = $1`

// Get fetches a request by id.
func (r *PostgresRepository) Get(ctx context.Context, id uint64) (ExpenseRequest, error) {
	return scanRequest(infra.Conn(ctx, r.db).QueryRow(ctx, selectRequest, int64(id)))
}

// GetForUpdate fetches a request and locks its row.
func (r *PostgresRepository) GetForUpdate(ctx context.Context, id uint64) (ExpenseRequest, error) {
	return scanRequest(infra.Conn(ctx, r.db).QueryRow(ctx, selectRequest+` FOR UPDATE`, int64(id)))
}

// Update writes the mutable fields of a request.
func (r *PostgresRepository) Update(ctx context.Context, req ExpenseRequest) error {
	cmd, err := infra.Conn(ctx, r.db).Exec(ctx, `UPDATE expense_requests SET status = $2, doctor_approved = $3,
            nurse_verified = $4, finance_approved = $5, updated_at = $6 WHERE id = $1`,
		int64(req.ID), int16(req.Status), req.Approvals.Doctor, req.Approvals.Nurse, req.Approvals.Finance, req.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("update request %d: %w", req.ID, err)
	}
	if cmd.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func scanRequest(row pgx.Row) (ExpenseRequest, error) {
	var (
		id                int64
		requester, vendor string
		amount            string
		reqType, status   int16
		req               ExpenseRequest
	)
	err := row.Scan(&id, &requester, &amount, &req.Description, &reqType, &vendor, &status,
		&req.Approvals.Doctor, &req.Approvals.Nurse, &req.Approvals.Finance, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ExpenseRequest{}, apperrors.ErrNotFound
		}
		return ExpenseRequest{}, err
	}
	req.Amount, err = uint256.FromDecimal(amount)
	if err != nil {
		return ExpenseRequest{}, fmt.Errorf("decode amount of request %d: %w", id, err)
	}
	req.ID = uint64(id)
	req.Requester = account.Address(requester)
	req.Vendor = account.Address(vendor)
	req.Type = RequestType(reqType)
	req.Status = Status(status)
	req.CreatedAt = req.CreatedAt.UTC()
	req.UpdatedAt = req.UpdatedAt.UTC()
	return req, nil
}
