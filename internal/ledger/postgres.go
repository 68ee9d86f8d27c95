package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medtreasury/medtreasury/internal/account"
	"github.com/medtreasury/medtreasury/internal/apperrors"
	"github.com/medtreasury/medtreasury/internal/infra"
)

// PostgresLedger persists balances and allowances in PostgreSQL. Amounts are
// NUMERIC(78,0) columns moved through their decimal text form.
type PostgresLedger struct {
	db *pgxpool.Pool
	tx infra.Transactor
}

// NewPostgresLedger constructs a Postgres-backed ledger. Postings join a
// transaction already bound to the context.
func NewPostgresLedger(db *pgxpool.Pool, tx infra.Transactor) *PostgresLedger {
	return &PostgresLedger{db: db, tx: tx}
}

// Bootstrap mints supply to deployer the first time it runs against a database.
// Later calls leave the recorded supply untouched.
func (l *PostgresLedger) Bootstrap(ctx context.Context, deployer account.Address, supply *uint256.Int) error {
	if deployer.IsNull() {
		return apperrors.ErrInvalidRecipient
	}
	return l.tx.WithinTx(ctx, func(ctx context.Context) error {
		q := infra.Conn(ctx, l.db)
		tag, err := q.Exec(ctx, `INSERT INTO ledger_supply (singleton, deployer, total) VALUES (TRUE, $1, $2::numeric)
            ON CONFLICT (singleton) DO NOTHING`, deployer.String(), supply.Dec())
		if err != nil {
			return fmt.Errorf("record supply: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		if err := writeBalance(ctx, q, deployer, supply); err != nil {
			return err
		}
		return journal(ctx, q, KindMint, account.Null, account.Null, deployer, supply, uuid.New())
	})
}

// TotalSupply returns the minted supply.
func (l *PostgresLedger) TotalSupply(ctx context.Context) (*uint256.Int, error) {
	var total string
	err := infra.Conn(ctx, l.db).QueryRow(ctx, `SELECT total::text FROM ledger_supply WHERE singleton`).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, err
	}
	return parseNumeric(total)
}

// BalanceOf returns the balance of owner, zero when the account was never credited.
func (l *PostgresLedger) BalanceOf(ctx context.Context, owner account.Address) (*uint256.Int, error) {
	return readAmount(ctx, infra.Conn(ctx, l.db), `SELECT balance::text FROM ledger_balances WHERE account = $1`, owner.String())
}

// Allowance returns how much spender may still move out of owner's balance.
func (l *PostgresLedger) Allowance(ctx context.Context, owner, spender account.Address) (*uint256.Int, error) {
	return readAmount(ctx, infra.Conn(ctx, l.db), `SELECT amount::text FROM ledger_allowances WHERE owner = $1 AND spender = $2`,
		owner.String(), spender.String())
}

// Transfer moves amount from one account to another.
func (l *PostgresLedger) Transfer(ctx context.Context, from, to account.Address, amount *uint256.Int) (TransferResult, error) {
	if amount == nil {
		return TransferResult{}, apperrors.ErrInvalidAmount
	}
	var res TransferResult
	err := l.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		res, err = move(ctx, infra.Conn(ctx, l.db), KindTransfer, account.Null, from, to, amount)
		return err
	})
	return res, err
}

// Approve sets the allowance of spender over owner's balance to exactly amount.
func (l *PostgresLedger) Approve(ctx context.Context, owner, spender account.Address, amount *uint256.Int) error {
	if amount == nil {
		return apperrors.ErrInvalidAmount
	}
	if owner.IsNull() || spender.IsNull() {
		return apperrors.ErrInvalidRecipient
	}
	_, err := infra.Conn(ctx, l.db).Exec(ctx, `INSERT INTO ledger_allowances (owner, spender, amount) VALUES ($1, $2, $3::numeric)
        ON CONFLICT (owner, spender) DO UPDATE SET amount = EXCLUDED.amount`, owner.String(), spender.String(), amount.Dec())
	return err
}

// TransferFrom spends spender's allowance to move funds out of from.
func (l *PostgresLedger) TransferFrom(ctx context.Context, spender, from, to account.Address, amount *uint256.Int) (TransferResult, error) {
	if amount == nil {
		return TransferResult{}, apperrors.ErrInvalidAmount
	}
	var res TransferResult
	err := l.tx.WithinTx(ctx, func(ctx context.Context) error {
		q := infra.Conn(ctx, l.db)
		allowance, err := readAmount(ctx, q, `SELECT amount::text FROM ledger_allowances WHERE owner = $1 AND spender = $2 FOR UPDATE`,
			from.String(), spender.String())
		if err != nil {
			return err
		}
		if allowance.Lt(amount) {
			return apperrors.ErrInsufficientAllowance
		}

		res, err = move(ctx, q, KindTransferFrom, spender, from, to, amount)
		if err != nil {
			return err
		}

		remaining := new(uint256.Int).Sub(allowance, amount)
		_, err = q.Exec(ctx, `UPDATE ledger_allowances SET amount = $3::numeric WHERE owner = $1 AND spender = $2`,
			from.String(), spender.String(), remaining.Dec())
		return err
	})
	return res, err
}

func move(ctx context.Context, q infra.Querier, kind string, spender, from, to account.Address, amount *uint256.Int) (TransferResult, error) {
	if to.IsNull() {
		return TransferResult{}, apperrors.ErrInvalidRecipient
	}

	// Lock rows in a stable order so concurrent opposite transfers cannot deadlock.
	locked := map[account.Address]*uint256.Int{}
	order := []account.Address{from, to}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	for _, acct := range order {
		if _, done := locked[acct]; done {
			continue
		}
		bal, err := lockBalance(ctx, q, acct)
		if err != nil {
			return TransferResult{}, err
		}
		locked[acct] = bal
	}

	fromBalance := locked[from]
	if fromBalance.Lt(amount) {
		return TransferResult{}, apperrors.ErrInsufficientBalance
	}

	txID := uuid.New()
	if from == to {
		if err := journal(ctx, q, kind, spender, from, to, amount, txID); err != nil {
			return TransferResult{}, err
		}
		return TransferResult{TransactionID: txID.String(), FromBalance: fromBalance, ToBalance: fromBalance.Clone()}, nil
	}

	toBalance, overflow := new(uint256.Int).AddOverflow(locked[to], amount)
	if overflow {
		return TransferResult{}, apperrors.ErrOverflow
	}
	newFrom := new(uint256.Int).Sub(fromBalance, amount)

	if err := writeBalance(ctx, q, from, newFrom); err != nil {
		return TransferResult{}, err
	}
	if err := writeBalance(ctx, q, to, toBalance); err != nil {
		return TransferResult{}, err
	}
	if err := journal(ctx, q, kind, spender, from, to, amount, txID); err != nil {
		return TransferResult{}, err
	}

	return TransferResult{TransactionID: txID.String(), FromBalance: newFrom, ToBalance: toBalance}, nil
}

func lockBalance(ctx context.Context, q infra.Querier, acct account.Address) (*uint256.Int, error) {
	if _, err := q.Exec(ctx, `INSERT INTO ledger_balances (account, balance) VALUES ($1, 0) ON CONFLICT (account) DO NOTHING`, acct.String()); err != nil {
		return nil, fmt.Errorf("ensure account %s: %w", acct, err)
	}
	return readAmount(ctx, q, `SELECT balance::text FROM ledger_balances WHERE account = $1 FOR UPDATE`, acct.String())
}

func writeBalance(ctx context.Context, q infra.Querier, acct account.Address, balance *uint256.Int) error {
	_, err := q.Exec(ctx, `INSERT INTO ledger_balances (account, balance) VALUES ($1, $2::numeric)
        ON CONFLICT (account) DO UPDATE SET balance = EXCLUDED.balance`, acct.String(), balance.Dec())
	if err != nil {
		return fmt.Errorf("write balance %s: %w", acct, err)
	}
	return nil
}

func journal(ctx context.Context, q infra.Querier, kind string, spender, from, to account.Address, amount *uint256.Int, id uuid.UUID) error {
	var spenderVal *string
	if !spender.IsNull() {
		s := spender.String()
		spenderVal = &s
	}
	_, err := q.Exec(ctx, `INSERT INTO ledger_transfers (id, kind, spender, from_account, to_account, amount)
        VALUES ($1, $2, $3, $4, $5, $6::numeric)`, id, kind, spenderVal, from.String(), to.String(), amount.Dec())
	if err != nil {
		return fmt.Errorf("journal %s: %w", kind, err)
	}
	return nil
}

func readAmount(ctx context.Context, q infra.Querier, query string, args ...any) (*uint256.Int, error) {
	var raw string
	if err := q.QueryRow(ctx, query, args...).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return new(uint256.Int), nil
		}
		return nil, err
	}
	return parseNumeric(raw)
}

func parseNumeric(raw string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(raw)
	if err != nil {
		return nil, fmt.Errorf("decode numeric %q: %w", raw, err)
	}
	return v, nil
}
