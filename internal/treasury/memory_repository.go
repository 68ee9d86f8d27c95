package treasury

import (
	"context"
	"fmt"
	"sync"

	"github.com/medtreasury/medtreasury/internal/apperrors"
)

type memoryRepository struct {
	mu       sync.RWMutex
	counter  uint64
	requests map[uint64]ExpenseRequest
}

// NewMemoryRepository builds an in-memory request store.
func NewMemoryRepository() Repository {
	return &memoryRepository{requests: make(map[uint64]ExpenseRequest)}
}

func (r *memoryRepository) NextID(_ context.Context) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counter++
	return r.counter, nil
}

func (r *memoryRepository) Counter(_ context.Context) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counter, nil
}

func (r *memoryRepository) Insert(_ context.Context, req ExpenseRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.requests[req.ID]; exists {
		return fmt.Errorf("request %d already exists", req.ID)
	}
	r.requests[req.ID] = req.clone()
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id uint64) (ExpenseRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.requests[id]
	if !ok {
		return ExpenseRequest{}, apperrors.ErrNotFound
	}
	return req.clone(), nil
}

func (r *memoryRepository) GetForUpdate(ctx context.Context, id uint64) (ExpenseRequest, error) {
	return r.Get(ctx, id)
}

func (r *memoryRepository) Update(_ context.Context, req ExpenseRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.requests[req.ID]; !ok {
		return apperrors.ErrNotFound
	}
	r.requests[req.ID] = req.clone()
	return nil
}
