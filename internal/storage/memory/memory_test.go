package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agromart/internal/model"
)

func event(id, txHash string, block, logIndex uint64) model.ContractEvent {
	return model.ContractEvent{
		ID:          id,
		Kind:        model.EventStockUpdated,
		TxHash:      txHash,
		BlockNumber: block,
		LogIndex:    logIndex,
		Payload:     model.StockUpdatedData{ProductID: "1", NewAmount: "10"},
	}
}

func TestAppendEventIdempotent(t *testing.T) {
	t.Parallel()

	store := NewEventStore()
	ctx := context.Background()

	inserted, err := store.AppendEvent(ctx, event("a", "0xabc", 10, 0))
	require.NoError(t, err)
	assert.True(t, inserted)

	// Same (tx_hash, log_index), different ID: must not create a second record.
	inserted, err = store.AppendEvent(ctx, event("b", "0xabc", 10, 0))
	require.NoError(t, err)
	assert.False(t, inserted)

	unprocessed, err := store.UnprocessedEvents(ctx)
	require.NoError(t, err)
	assert.Len(t, unprocessed, 1)
	assert.Equal(t, "a", unprocessed[0].ID)
}

func TestUnprocessedOrdering(t *testing.T) {
	t.Parallel()

	store := NewEventStore()
	ctx := context.Background()

	_, err := store.AppendEvent(ctx, event("c", "0x3", 12, 0))
	require.NoError(t, err)
	_, err = store.AppendEvent(ctx, event("a", "0x1", 10, 1))
	require.NoError(t, err)
	_, err = store.AppendEvent(ctx, event("b", "0x1", 10, 0))
	require.NoError(t, err)

	unprocessed, err := store.UnprocessedEvents(ctx)
	require.NoError(t, err)
	require.Len(t, unprocessed, 3)
	assert.Equal(t, "b", unprocessed[0].ID)
	assert.Equal(t, "a", unprocessed[1].ID)
	assert.Equal(t, "c", unprocessed[2].ID)
}

func TestMarkProcessedAndCheckpoint(t *testing.T) {
	t.Parallel()

	store := NewEventStore()
	ctx := context.Background()

	_, ok, err := store.LastProcessedBlock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.AppendEvent(ctx, event("a", "0x1", 10, 0))
	require.NoError(t, err)
	_, err = store.AppendEvent(ctx, event("b", "0x2", 11, 0))
	require.NoError(t, err)

	require.NoError(t, store.MarkProcessed(ctx, "a", ""))
	// Marking twice is a no-op.
	require.NoError(t, store.MarkProcessed(ctx, "a", ""))

	block, ok, err := store.LastProcessedBlock(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(10), block)

	unprocessed, err := store.UnprocessedEvents(ctx)
	require.NoError(t, err)
	require.Len(t, unprocessed, 1)
	assert.Equal(t, "b", unprocessed[0].ID)

	stored, found, err := store.EventByKey(ctx, "0x1", 0)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, stored.Processed)
	require.NotNil(t, stored.ProcessedAt)
}

func TestMarkProcessedUnknown(t *testing.T) {
	t.Parallel()

	store := NewEventStore()
	assert.Error(t, store.MarkProcessed(context.Background(), "missing", ""))
}

func TestReadModelNaturalKeys(t *testing.T) {
	t.Parallel()

	rm := NewReadModel()
	ctx := context.Background()

	require.NoError(t, rm.UpsertUser(ctx, model.User{ID: "u1", WalletAddress: "0xf", Name: "Amina"}))
	require.NoError(t, rm.UpsertUser(ctx, model.User{ID: "u2", WalletAddress: "0xf", Name: "Amina K."}))

	user, ok, err := rm.UserByWallet(ctx, "0xf")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "Amina K.", user.Name)

	require.NoError(t, rm.UpsertListing(ctx, model.Listing{ID: "l1", ProductID: "42", Quantity: 5}))
	require.NoError(t, rm.UpsertListing(ctx, model.Listing{ID: "l2", ProductID: "42", Quantity: 3}))

	listing, ok, err := rm.ListingByProductID(ctx, "42")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "l1", listing.ID)
	assert.Equal(t, int64(3), listing.Quantity)

	require.NoError(t, rm.UpsertOrder(ctx, model.Order{ID: "o1", TxHash: "0x9", LogIndex: 2}))
	require.NoError(t, rm.UpsertOrder(ctx, model.Order{ID: "o2", TxHash: "0x9", LogIndex: 2}))
	assert.Equal(t, 1, rm.OrderCount())
}
