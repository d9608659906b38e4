package projector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agromart/internal/model"
	"agromart/internal/storage/memory"
)

const (
	farmerWallet = "0x1111111111111111111111111111111111111111"
	buyerWallet  = "0x2222222222222222222222222222222222222222"
)

func newProjector() (*Projector, *memory.ReadModel) {
	rm := memory.NewReadModel()
	return New(rm, "KES", nil), rm
}

func apply(t *testing.T, p *Projector, payload model.EventPayload, txHash string, logIndex uint64) Result {
	t.Helper()
	result, err := p.Apply(context.Background(), model.ContractEvent{
		ID:       txHash,
		Kind:     payload.Kind(),
		TxHash:   txHash,
		LogIndex: logIndex,
		Payload:  payload,
	})
	require.NoError(t, err)
	return result
}

func TestFarmerJoinedCreatesUser(t *testing.T) {
	t.Parallel()

	p, rm := newProjector()
	result := apply(t, p, model.FarmerJoinedData{Farmer: farmerWallet, Name: "Wanjiku Farm"}, "0xa", 0)
	assert.False(t, result.Skipped)

	user, ok, err := rm.UserByWallet(context.Background(), farmerWallet)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Wanjiku Farm", user.Name)
	assert.Equal(t, roleFarmer, user.Role)
}

func TestProductCreatedProjectsListing(t *testing.T) {
	t.Parallel()

	p, rm := newProjector()
	apply(t, p, model.FarmerJoinedData{Farmer: farmerWallet, Name: "Wanjiku Farm"}, "0xa", 0)

	result := apply(t, p, model.ProductCreatedData{
		ProductID: "42", Price: "2500", Farmer: farmerWallet, Amount: "100",
	}, "0xb", 0)
	assert.False(t, result.Skipped)

	listing, ok, err := rm.ListingByProductID(context.Background(), "42")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2500), listing.PriceCents)
	assert.Equal(t, int64(100), listing.Quantity)
	assert.True(t, listing.IsActive)

	// Replaying the same productCreated must not duplicate: the listing is
	// keyed by its on-chain product ID.
	first := listing.ID
	apply(t, p, model.ProductCreatedData{
		ProductID: "42", Price: "2500", Farmer: farmerWallet, Amount: "100",
	}, "0xb", 0)
	listing, _, err = rm.ListingByProductID(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, first, listing.ID)
}

func TestProductCreatedUnknownSellerSkips(t *testing.T) {
	t.Parallel()

	p, rm := newProjector()
	result := apply(t, p, model.ProductCreatedData{
		ProductID: "42", Price: "2500", Farmer: farmerWallet, Amount: "100",
	}, "0xb", 0)
	assert.True(t, result.Skipped)
	assert.Contains(t, result.Note, "not registered")

	_, ok, err := rm.ListingByProductID(context.Background(), "42")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProductBoughtCreatesOrderOnce(t *testing.T) {
	t.Parallel()

	p, rm := newProjector()
	apply(t, p, model.FarmerJoinedData{Farmer: farmerWallet, Name: "Wanjiku Farm"}, "0xa", 0)
	apply(t, p, model.FarmerJoinedData{Farmer: buyerWallet, Name: "Kamau"}, "0xa", 1)
	apply(t, p, model.ProductCreatedData{ProductID: "42", Price: "2500", Farmer: farmerWallet, Amount: "100"}, "0xb", 0)

	result := apply(t, p, model.ProductBoughtData{
		ProductID: "42", Buyer: buyerWallet, Amount: "3", TotalPrice: "7500",
	}, "0xc", 0)
	assert.False(t, result.Skipped)
	assert.Equal(t, 1, rm.OrderCount())

	// Redelivery of the same log upserts the same row.
	apply(t, p, model.ProductBoughtData{
		ProductID: "42", Buyer: buyerWallet, Amount: "3", TotalPrice: "7500",
	}, "0xc", 0)
	assert.Equal(t, 1, rm.OrderCount())
}

func TestProductBoughtUnknownBuyerSkips(t *testing.T) {
	t.Parallel()

	p, rm := newProjector()
	apply(t, p, model.FarmerJoinedData{Farmer: farmerWallet, Name: "Wanjiku Farm"}, "0xa", 0)
	apply(t, p, model.ProductCreatedData{ProductID: "42", Price: "2500", Farmer: farmerWallet, Amount: "100"}, "0xb", 0)

	result := apply(t, p, model.ProductBoughtData{
		ProductID: "42", Buyer: buyerWallet, Amount: "3", TotalPrice: "7500",
	}, "0xc", 0)
	assert.True(t, result.Skipped)
	assert.Equal(t, 0, rm.OrderCount())
}

func TestStockAndPriceUpdates(t *testing.T) {
	t.Parallel()

	p, rm := newProjector()
	apply(t, p, model.FarmerJoinedData{Farmer: farmerWallet, Name: "Wanjiku Farm"}, "0xa", 0)
	apply(t, p, model.ProductCreatedData{ProductID: "42", Price: "2500", Farmer: farmerWallet, Amount: "100"}, "0xb", 0)

	apply(t, p, model.StockUpdatedData{ProductID: "42", NewAmount: "0"}, "0xd", 0)
	listing, _, err := rm.ListingByProductID(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, int64(0), listing.Quantity)
	assert.False(t, listing.IsActive)

	apply(t, p, model.PriceIncreasedData{ProductID: "42", NewPrice: "3000"}, "0xe", 0)
	listing, _, err = rm.ListingByProductID(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, int64(3000), listing.PriceCents)

	// Updates for unknown products are skips, not failures.
	result := apply(t, p, model.StockUpdatedData{ProductID: "99", NewAmount: "5"}, "0xf", 0)
	assert.True(t, result.Skipped)
}
