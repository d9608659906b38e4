package governance

import (
	"context"
	"sync"

	"agromart/internal/model"
)

// Store persists governance state. The in-memory implementation backs the
// engine in tests and single-process deployments.
type Store interface {
	Proposal(ctx context.Context, proposalID string) (model.Proposal, bool, error)
	SaveProposal(ctx context.Context, proposal model.Proposal) error
	Member(ctx context.Context, address string) (model.Member, bool, error)
	SaveMember(ctx context.Context, member model.Member) error
	Members(ctx context.Context) ([]model.Member, error)
	Holding(ctx context.Context, tokenID string) (model.NFTHolding, bool, error)
	SaveHolding(ctx context.Context, holding model.NFTHolding) error
}

type MemoryStore struct {
	mu        sync.RWMutex
	proposals map[string]model.Proposal
	members   map[string]model.Member
	holdings  map[string]model.NFTHolding
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		proposals: make(map[string]model.Proposal),
		members:   make(map[string]model.Member),
		holdings:  make(map[string]model.NFTHolding),
	}
}

func (s *MemoryStore) Proposal(_ context.Context, proposalID string) (model.Proposal, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	proposal, ok := s.proposals[proposalID]
	if ok {
		proposal.Votes = append([]model.Vote(nil), proposal.Votes...)
	}
	return proposal, ok, nil
}

func (s *MemoryStore) SaveProposal(_ context.Context, proposal model.Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	proposal.Votes = append([]model.Vote(nil), proposal.Votes...)
	s.proposals[proposal.ID] = proposal
	return nil
}

func (s *MemoryStore) Member(_ context.Context, address string) (model.Member, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	member, ok := s.members[address]
	return member, ok, nil
}

func (s *MemoryStore) SaveMember(_ context.Context, member model.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[member.Address] = member
	return nil
}

func (s *MemoryStore) Members(_ context.Context) ([]model.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members := make([]model.Member, 0, len(s.members))
	for _, member := range s.members {
		members = append(members, member)
	}
	return members, nil
}

func (s *MemoryStore) Holding(_ context.Context, tokenID string) (model.NFTHolding, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	holding, ok := s.holdings[tokenID]
	return holding, ok, nil
}

func (s *MemoryStore) SaveHolding(_ context.Context, holding model.NFTHolding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holdings[holding.TokenID] = holding
	return nil
}
