// Package memory holds in-memory implementations of the storage contracts.
// They back tests and local development; production runs on postgres.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"agromart/internal/model"
)

// EventStore is an in-memory storage.EventStore.
type EventStore struct {
	mu     sync.RWMutex
	byKey  map[string]*model.ContractEvent
	byID   map[string]*model.ContractEvent
	events []*model.ContractEvent
}

func NewEventStore() *EventStore {
	return &EventStore{
		byKey: make(map[string]*model.ContractEvent),
		byID:  make(map[string]*model.ContractEvent),
	}
}

func (s *EventStore) AppendEvent(_ context.Context, event model.ContractEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := event.Key()
	if _, ok := s.byKey[key]; ok {
		return false, nil
	}

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	stored := event
	s.byKey[key] = &stored
	s.byID[event.ID] = &stored
	s.events = append(s.events, &stored)
	return true, nil
}

func (s *EventStore) EventByKey(_ context.Context, txHash string, logIndex uint64) (model.ContractEvent, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	event, ok := s.byKey[fmt.Sprintf("%s:%d", txHash, logIndex)]
	if !ok {
		return model.ContractEvent{}, false, nil
	}
	return *event, true, nil
}

func (s *EventStore) UnprocessedEvents(_ context.Context) ([]model.ContractEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.ContractEvent
	for _, event := range s.events {
		if !event.Processed {
			out = append(out, *event)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		return out[i].LogIndex < out[j].LogIndex
	})
	return out, nil
}

func (s *EventStore) MarkProcessed(_ context.Context, id string, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("event %s not found", id)
	}
	if event.Processed {
		return nil
	}

	now := time.Now().UTC()
	event.Processed = true
	event.ProcessNote = note
	event.ProcessedAt = &now
	return nil
}

func (s *EventStore) LastProcessedBlock(_ context.Context) (uint64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var max uint64
	var found bool
	for _, event := range s.events {
		if event.Processed && event.BlockNumber >= max {
			max = event.BlockNumber
			found = true
		}
	}
	return max, found, nil
}

// ReadModel is an in-memory storage.ReadModel.
type ReadModel struct {
	mu               sync.RWMutex
	usersByWallet    map[string]model.User
	listingsByProd   map[string]model.Listing
	ordersBySourceID map[string]model.Order
}

func NewReadModel() *ReadModel {
	return &ReadModel{
		usersByWallet:    make(map[string]model.User),
		listingsByProd:   make(map[string]model.Listing),
		ordersBySourceID: make(map[string]model.Order),
	}
}

func (m *ReadModel) UpsertUser(_ context.Context, user model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.usersByWallet[user.WalletAddress]
	if ok {
		// Keep the original identity; refresh mutable fields only.
		user.ID = existing.ID
		user.CreatedAt = existing.CreatedAt
	}
	m.usersByWallet[user.WalletAddress] = user
	return nil
}

func (m *ReadModel) UserByWallet(_ context.Context, wallet string) (model.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.usersByWallet[wallet]
	return user, ok, nil
}

func (m *ReadModel) UpsertListing(_ context.Context, listing model.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.listingsByProd[listing.ProductID]
	if ok {
		listing.ID = existing.ID
		listing.CreatedAt = existing.CreatedAt
	}
	m.listingsByProd[listing.ProductID] = listing
	return nil
}

func (m *ReadModel) ListingByProductID(_ context.Context, productID string) (model.Listing, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	listing, ok := m.listingsByProd[productID]
	return listing, ok, nil
}

func (m *ReadModel) UpsertOrder(_ context.Context, order model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := fmt.Sprintf("%s:%d", order.TxHash, order.LogIndex)
	if existing, ok := m.ordersBySourceID[key]; ok {
		order.ID = existing.ID
		order.CreatedAt = existing.CreatedAt
	}
	m.ordersBySourceID[key] = order
	return nil
}

// OrderCount reports stored orders, for tests.
func (m *ReadModel) OrderCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ordersBySourceID)
}
