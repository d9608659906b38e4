package lending

import (
	"context"
	"sync"

	"agromart/internal/model"
)

// Store persists lending pools and positions. The ledger is written against
// this interface so durable backends can replace the in-memory default.
type Store interface {
	SavePool(ctx context.Context, pool model.LendingPool) error
	Pool(ctx context.Context, id string) (model.LendingPool, bool, error)
	Pools(ctx context.Context) ([]model.LendingPool, error)

	SavePosition(ctx context.Context, position model.LendingPosition) error
	Position(ctx context.Context, id string) (model.LendingPosition, bool, error)
	PositionsByBorrower(ctx context.Context, borrower string) ([]model.LendingPosition, error)
}

// MemoryStore is the in-memory Store used by tests and local runs.
type MemoryStore struct {
	mu        sync.RWMutex
	pools     map[string]model.LendingPool
	positions map[string]model.LendingPosition
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pools:     make(map[string]model.LendingPool),
		positions: make(map[string]model.LendingPosition),
	}
}

func (s *MemoryStore) SavePool(_ context.Context, pool model.LendingPool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools[pool.ID] = clonePool(pool)
	return nil
}

func (s *MemoryStore) Pool(_ context.Context, id string) (model.LendingPool, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pool, ok := s.pools[id]
	if !ok {
		return model.LendingPool{}, false, nil
	}
	return clonePool(pool), true, nil
}

func (s *MemoryStore) Pools(_ context.Context) ([]model.LendingPool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.LendingPool, 0, len(s.pools))
	for _, pool := range s.pools {
		out = append(out, clonePool(pool))
	}
	return out, nil
}

func (s *MemoryStore) SavePosition(_ context.Context, position model.LendingPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[position.ID] = position
	return nil
}

func (s *MemoryStore) Position(_ context.Context, id string) (model.LendingPosition, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	position, ok := s.positions[id]
	return position, ok, nil
}

func (s *MemoryStore) PositionsByBorrower(_ context.Context, borrower string) ([]model.LendingPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.LendingPosition
	for _, position := range s.positions {
		if position.Borrower == borrower {
			out = append(out, position)
		}
	}
	return out, nil
}

func clonePool(pool model.LendingPool) model.LendingPool {
	shares := make(map[string]float64, len(pool.Shares))
	for lender, share := range pool.Shares {
		shares[lender] = share
	}
	pool.Shares = shares
	return pool
}
