package staking

import (
	"context"
	"sync"

	"agromart/internal/model"
)

// Store persists staking positions, yield pools, and pool stakes. The
// ledger is written against this interface so durable backends can replace
// the in-memory default.
type Store interface {
	SavePosition(ctx context.Context, position model.StakingPosition) error
	Position(ctx context.Context, id string) (model.StakingPosition, bool, error)

	SavePool(ctx context.Context, pool model.YieldPool) error
	Pool(ctx context.Context, id string) (model.YieldPool, bool, error)

	SaveStake(ctx context.Context, stake model.YieldStake) error
	StakesByPool(ctx context.Context, poolID string) ([]model.YieldStake, error)
}

// MemoryStore is the in-memory Store used by tests and local runs.
type MemoryStore struct {
	mu        sync.RWMutex
	positions map[string]model.StakingPosition
	pools     map[string]model.YieldPool
	stakes    map[string]model.YieldStake
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		positions: make(map[string]model.StakingPosition),
		pools:     make(map[string]model.YieldPool),
		stakes:    make(map[string]model.YieldStake),
	}
}

func (s *MemoryStore) SavePosition(_ context.Context, position model.StakingPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[position.ID] = position
	return nil
}

func (s *MemoryStore) Position(_ context.Context, id string) (model.StakingPosition, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	position, ok := s.positions[id]
	return position, ok, nil
}

func (s *MemoryStore) SavePool(_ context.Context, pool model.YieldPool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools[pool.ID] = clonePool(pool)
	return nil
}

func (s *MemoryStore) Pool(_ context.Context, id string) (model.YieldPool, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pool, ok := s.pools[id]
	if !ok {
		return model.YieldPool{}, false, nil
	}
	return clonePool(pool), true, nil
}

func (s *MemoryStore) SaveStake(_ context.Context, stake model.YieldStake) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stakes[stake.ID] = stake
	return nil
}

func (s *MemoryStore) StakesByPool(_ context.Context, poolID string) ([]model.YieldStake, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.YieldStake
	for _, stake := range s.stakes {
		if stake.PoolID == poolID {
			out = append(out, stake)
		}
	}
	return out, nil
}

func clonePool(pool model.YieldPool) model.YieldPool {
	pool.AssetIDs = append([]string(nil), pool.AssetIDs...)
	return pool
}
