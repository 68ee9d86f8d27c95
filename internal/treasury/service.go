package treasury

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/medtreasury/medtreasury/internal/account"
	"github.com/medtreasury/medtreasury/internal/apperrors"
	"github.com/medtreasury/medtreasury/internal/clock"
	"github.com/medtreasury/medtreasury/internal/credential"
	"github.com/medtreasury/medtreasury/internal/events"
	"github.com/medtreasury/medtreasury/internal/infra"
	"github.com/medtreasury/medtreasury/internal/ledger"
)

// RoleChecker answers whether an account holds a live role credential at an instant.
type RoleChecker interface {
	HasRoleAt(ctx context.Context, acct account.Address, role credential.Role, now time.Time) (bool, error)
}

// Config names the accounts the treasury acts with.
type Config struct {
	// Account holds the pooled funds and is the spender used to pull deposits.
	Account account.Address
	// Admin is the only account allowed to release funds.
	Admin account.Address
}

// Deps groups the collaborators of the Service.
type Deps struct {
	Ledger    ledger.Ledger
	Roles     RoleChecker
	Repo      Repository
	Tx        infra.Transactor
	Clock     clock.Clock
	Publisher events.Publisher
	Logger    *slog.Logger
}

// Service runs the expense request workflow: a doctor files a request, doctor,
// nurse and finance sign off in any order, and the admin releases the amount from
// the pool to the vendor. Every operation holds the service lock for its whole
// duration and reads the clock once.
type Service struct {
	mu        sync.Mutex
	cfg       Config
	ledger    ledger.Ledger
	roles     RoleChecker
	repo      Repository
	tx        infra.Transactor
	clock     clock.Clock
	publisher events.Publisher
	logger    *slog.Logger
}

// NewService constructs the treasury workflow.
func NewService(cfg Config, deps Deps) (*Service, error) {
	if cfg.Account.IsNull() {
		return nil, fmt.Errorf("%w: treasury account is required", apperrors.ErrInvalidInput)
	}
	if cfg.Admin.IsNull() {
		return nil, fmt.Errorf("%w: admin account is required", apperrors.ErrInvalidInput)
	}
	if deps.Ledger == nil || deps.Roles == nil || deps.Repo == nil {
		return nil, fmt.Errorf("%w: ledger, roles and repository are required", apperrors.ErrInvalidInput)
	}
	if deps.Tx == nil {
		deps.Tx = infra.NoopTransactor{}
	}
	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{
		cfg:       cfg,
		ledger:    deps.Ledger,
		roles:     deps.Roles,
		repo:      deps.Repo,
		tx:        deps.Tx,
		clock:     deps.Clock,
		publisher: deps.Publisher,
		logger:    deps.Logger,
	}, nil
}

// Account returns the pool account.
func (s *Service) Account() account.Address { return s.cfg.Account }

// FundTreasury pulls amount from caller into the pool. The caller must first have
// approved the treasury account as spender for at least amount.
func (s *Service) FundTreasury(ctx context.Context, caller account.Address, amount *uint256.Int) (ledger.TransferResult, error) {
	if amount == nil || amount.IsZero() {
		return ledger.TransferResult{}, apperrors.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var res ledger.TransferResult
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		res, err = s.ledger.TransferFrom(ctx, s.cfg.Account, caller, s.cfg.Account, amount)
		return err
	})
	if err != nil {
		return ledger.TransferResult{}, err
	}

	s.logger.Info("treasury funded", slog.String("funder", caller.String()), slog.String("amount", amount.Dec()))
	s.publish(ctx, events.TreasuryFunded{Funder: caller.String(), Amount: amount.Dec()})
	return res, nil
}

// CreateRequest files a new PENDING request on behalf of a doctor.
func (s *Service) CreateRequest(ctx context.Context, caller account.Address, in CreateInput) (ExpenseRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()

	if err := s.requireRole(ctx, caller, credential.RoleDoctor, now); err != nil {
		return ExpenseRequest{}, err
	}
	if in.Amount == nil || in.Amount.IsZero() {
		return ExpenseRequest{}, apperrors.ErrInvalidAmount
	}
	if in.Vendor.IsNull() {
		return ExpenseRequest{}, apperrors.ErrInvalidVendor
	}
	if !in.Type.Valid() {
		return ExpenseRequest{}, apperrors.ErrInvalidRequestType
	}

	var req ExpenseRequest
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		id, err := s.repo.NextID(ctx)
		if err != nil {
			return err
		}
		req = ExpenseRequest{
			ID:          id,
			Requester:   caller,
			Amount:      in.Amount.Clone(),
			Description: in.Description,
			Type:        in.Type,
			Vendor:      in.Vendor,
			Status:      StatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		return s.repo.Insert(ctx, req)
	})
	if err != nil {
		return ExpenseRequest{}, err
	}

	s.logger.Info("expense request created",
		slog.Uint64("request_id", req.ID),
		slog.String("requester", caller.String()),
		slog.String("amount", req.Amount.Dec()),
		slog.String("type", req.Type.String()),
	)
	s.publish(ctx, events.RequestCreated{ID: req.ID, Requester: caller.String(), Amount: req.Amount.Dec(), Vendor: req.Vendor.String()})
	return req, nil
}

// DoctorApprove records the doctor sign-off.
func (s *Service) DoctorApprove(ctx context.Context, caller account.Address, id uint64) (ExpenseRequest, error) {
	return s.approve(ctx, caller, id, credential.RoleDoctor)
}

// NurseVerify records the nurse sign-off.
func (s *Service) NurseVerify(ctx context.Context, caller account.Address, id uint64) (ExpenseRequest, error) {
	return s.approve(ctx, caller, id, credential.RoleNurse)
}

// FinanceApprove records the finance sign-off.
func (s *Service) FinanceApprove(ctx context.Context, caller account.Address, id uint64) (ExpenseRequest, error) {
	return s.approve(ctx, caller, id, credential.RoleFinance)
}

func (s *Service) approve(ctx context.Context, caller account.Address, id uint64, role credential.Role) (ExpenseRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()

	if err := s.requireRole(ctx, caller, role, now); err != nil {
		return ExpenseRequest{}, err
	}

	var req ExpenseRequest
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		req, err = s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if req.Status != StatusPending {
			return fmt.Errorf("%w: request %d is %s", apperrors.ErrInvalidStatus, id, req.Status)
		}

		flag := approvalFlag(&req.Approvals, role)
		if *flag {
			return fmt.Errorf("%w: request %d already has %s sign-off", apperrors.ErrInvalidStatus, id, role)
		}
		*flag = true
		if req.Approvals.Complete() {
			req.Status = StatusApproved
		}
		req.UpdatedAt = now
		return s.repo.Update(ctx, req)
	})
	if err != nil {
		return ExpenseRequest{}, err
	}

	s.logger.Info("expense request approved",
		slog.Uint64("request_id", id),
		slog.String("role", role.String()),
		slog.String("status", req.Status.String()),
	)
	s.publish(ctx, events.RequestApproved{ID: id, Role: role.String()})
	if req.Status == StatusApproved {
		s.publish(ctx, events.RequestFullyApproved{ID: id})
	}
	return req, nil
}

func approvalFlag(a *Approvals, role credential.Role) *bool {
	switch role {
	case credential.RoleDoctor:
		return &a.Doctor
	case credential.RoleNurse:
		return &a.Nurse
	default:
		return &a.Finance
	}
}

// ReleaseFunds pays an APPROVED request out of the pool to its vendor.
func (s *Service) ReleaseFunds(ctx context.Context, caller account.Address, id uint64) (ExpenseRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()

	if caller != s.cfg.Admin {
		return ExpenseRequest{}, apperrors.ErrUnauthorized
	}

	var req ExpenseRequest
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		req, err = s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if req.Status != StatusApproved {
			return fmt.Errorf("%w: request %d is %s", apperrors.ErrNotApproved, id, req.Status)
		}
		pool, err := s.ledger.BalanceOf(ctx, s.cfg.Account)
		if err != nil {
			return err
		}
		if pool.Lt(req.Amount) {
			return fmt.Errorf("%w: pool holds %s, request needs %s", apperrors.ErrInsufficientBalance, pool.Dec(), req.Amount.Dec())
		}

		// The posting is the only step that can fail on its own, so it goes first.
		if _, err := s.ledger.Transfer(ctx, s.cfg.Account, req.Vendor, req.Amount); err != nil {
			return err
		}
		req.Status = StatusCompleted
		req.UpdatedAt = now
		return s.repo.Update(ctx, req)
	})
	if err != nil {
		return ExpenseRequest{}, err
	}

	s.logger.Info("funds released",
		slog.Uint64("request_id", id),
		slog.String("vendor", req.Vendor.String()),
		slog.String("amount", req.Amount.Dec()),
	)
	s.publish(ctx, events.FundsReleased{ID: id, Vendor: req.Vendor.String(), Amount: req.Amount.Dec()})
	return req, nil
}

// GetRequest returns the request with the given id.
func (s *Service) GetRequest(ctx context.Context, id uint64) (ExpenseRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.Get(ctx, id)
}

// ApprovalStatus returns the three sign-off flags of a request.
func (s *Service) ApprovalStatus(ctx context.Context, id uint64) (Approvals, error) {
	req, err := s.GetRequest(ctx, id)
	if err != nil {
		return Approvals{}, err
	}
	return req.Approvals, nil
}

// Balance returns the pool balance.
func (s *Service) Balance(ctx context.Context) (*uint256.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.BalanceOf(ctx, s.cfg.Account)
}

// RequestCounter returns the number of requests created so far, which is also
// the id of the latest one.
func (s *Service) RequestCounter(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.Counter(ctx)
}

func (s *Service) requireRole(ctx context.Context, caller account.Address, role credential.Role, now time.Time) error {
	ok, err := s.roles.HasRoleAt(ctx, caller, role, now)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s credential required", apperrors.ErrUnauthorized, role)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish event failed", slog.String("event", event.Name()), slog.Any("error", err))
	}
}
