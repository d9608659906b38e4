package storage

import (
	"context"

	"agromart/internal/model"
)

// EventStore is the durable, append-only log of observed contract events.
// Appends are idempotent on (tx_hash, log_index); records are never deleted.
type EventStore interface {
	// AppendEvent stores an observed event. Returns false when an event with
	// the same (tx_hash, log_index) was already stored; the caller must then
	// treat the observation as a duplicate.
	AppendEvent(ctx context.Context, event model.ContractEvent) (bool, error)

	// EventByKey fetches one event by its log identity.
	EventByKey(ctx context.Context, txHash string, logIndex uint64) (model.ContractEvent, bool, error)

	// UnprocessedEvents returns stored events not yet projected, ascending by
	// (block_number, log_index).
	UnprocessedEvents(ctx context.Context) ([]model.ContractEvent, error)

	// MarkProcessed flips an event to processed exactly once. A non-empty
	// note records a projection skip so the event is not retried forever.
	MarkProcessed(ctx context.Context, id string, note string) error

	// LastProcessedBlock returns the highest block number among processed
	// events, or ok=false when nothing has been processed yet.
	LastProcessedBlock(ctx context.Context) (uint64, bool, error)
}

// ReadModel is the marketplace projection target. All writes are idempotent
// upserts keyed by natural identifiers (wallet address, on-chain product ID,
// source log identity) so at-least-once event delivery is safe.
type ReadModel interface {
	UpsertUser(ctx context.Context, user model.User) error
	UserByWallet(ctx context.Context, wallet string) (model.User, bool, error)

	UpsertListing(ctx context.Context, listing model.Listing) error
	ListingByProductID(ctx context.Context, productID string) (model.Listing, bool, error)

	UpsertOrder(ctx context.Context, order model.Order) error
}
