// Package projector maps contract events onto the marketplace read model.
//
// Every mutation is an idempotent upsert keyed by a natural identifier, so
// at-least-once delivery from the monitor is safe. Events referencing
// unknown users or listings are skipped, not failed: the skip is recorded
// on the event record so it is never retried against unrecoverable data.
package projector

import (
	"context"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"agromart/internal/model"
	"agromart/internal/storage"
)

const roleFarmer = "FARMER"

// Result reports how one event was applied. A skipped event carries a note
// explaining why; the caller still marks it processed.
type Result struct {
	Skipped bool
	Note    string
}

// Projector applies typed contract events to the read model.
type Projector struct {
	readModel storage.ReadModel
	currency  string
	logger    *zap.Logger
}

func New(readModel storage.ReadModel, currency string, logger *zap.Logger) *Projector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Projector{readModel: readModel, currency: currency, logger: logger}
}

// Apply projects one event. Infrastructure errors are returned and leave the
// event unprocessed; business-level gaps (unknown user, unknown listing,
// malformed payload) come back as a skip Result.
func (p *Projector) Apply(ctx context.Context, event model.ContractEvent) (Result, error) {
	switch payload := event.Payload.(type) {
	case model.FarmerJoinedData:
		return p.applyFarmerJoined(ctx, payload)
	case model.ProductCreatedData:
		return p.applyProductCreated(ctx, payload)
	case model.ProductBoughtData:
		return p.applyProductBought(ctx, event, payload)
	case model.StockUpdatedData:
		return p.applyStockUpdated(ctx, payload)
	case model.PriceIncreasedData:
		return p.applyPriceIncreased(ctx, payload)
	default:
		return Result{}, fmt.Errorf("no handler for event kind %s", event.Kind)
	}
}

func (p *Projector) applyFarmerJoined(ctx context.Context, payload model.FarmerJoinedData) (Result, error) {
	user := model.User{
		ID:            uuid.NewString(),
		WalletAddress: payload.Farmer,
		Name:          payload.Name,
		Role:          roleFarmer,
	}
	if err := p.readModel.UpsertUser(ctx, user); err != nil {
		return Result{}, fmt.Errorf("upsert user: %w", err)
	}
	p.logger.Info("farmer registered", zap.String("wallet", payload.Farmer))
	return Result{}, nil
}

func (p *Projector) applyProductCreated(ctx context.Context, payload model.ProductCreatedData) (Result, error) {
	seller, found, err := p.readModel.UserByWallet(ctx, payload.Farmer)
	if err != nil {
		return Result{}, fmt.Errorf("resolve seller: %w", err)
	}
	if !found {
		return p.skip("seller wallet not registered: " + payload.Farmer)
	}

	price, err := parseAmount(payload.Price)
	if err != nil {
		return p.skip("bad price: " + err.Error())
	}
	quantity, err := parseAmount(payload.Amount)
	if err != nil {
		return p.skip("bad amount: " + err.Error())
	}

	listing := model.Listing{
		ID:         uuid.NewString(),
		ProductID:  payload.ProductID,
		Title:      fmt.Sprintf("On-chain product %s", payload.ProductID),
		PriceCents: price,
		Currency:   p.currency,
		Quantity:   quantity,
		SellerID:   seller.ID,
		IsActive:   true,
		IsVerified: true,
	}
	if err := p.readModel.UpsertListing(ctx, listing); err != nil {
		return Result{}, fmt.Errorf("upsert listing: %w", err)
	}
	p.logger.Info("listing projected",
		zap.String("product_id", payload.ProductID),
		zap.Int64("price_cents", price),
		zap.Int64("quantity", quantity),
	)
	return Result{}, nil
}

func (p *Projector) applyProductBought(ctx context.Context, event model.ContractEvent, payload model.ProductBoughtData) (Result, error) {
	buyer, found, err := p.readModel.UserByWallet(ctx, payload.Buyer)
	if err != nil {
		return Result{}, fmt.Errorf("resolve buyer: %w", err)
	}
	if !found {
		return p.skip("buyer wallet not registered: " + payload.Buyer)
	}

	listing, found, err := p.readModel.ListingByProductID(ctx, payload.ProductID)
	if err != nil {
		return Result{}, fmt.Errorf("resolve listing: %w", err)
	}
	if !found {
		return p.skip("listing not found for product " + payload.ProductID)
	}

	amount, err := parseAmount(payload.TotalPrice)
	if err != nil {
		return p.skip("bad total price: " + err.Error())
	}

	order := model.Order{
		ID:          uuid.NewString(),
		BuyerID:     buyer.ID,
		ListingID:   listing.ID,
		Status:      model.OrderConfirmed,
		AmountCents: amount,
		Currency:    p.currency,
		Notes:       fmt.Sprintf("units=%s", payload.Amount),
		TxHash:      event.TxHash,
		LogIndex:    event.LogIndex,
	}
	if err := p.readModel.UpsertOrder(ctx, order); err != nil {
		return Result{}, fmt.Errorf("upsert order: %w", err)
	}
	p.logger.Info("order projected",
		zap.String("product_id", payload.ProductID),
		zap.String("buyer", payload.Buyer),
		zap.Int64("amount_cents", amount),
	)
	return Result{}, nil
}

func (p *Projector) applyStockUpdated(ctx context.Context, payload model.StockUpdatedData) (Result, error) {
	listing, found, err := p.readModel.ListingByProductID(ctx, payload.ProductID)
	if err != nil {
		return Result{}, fmt.Errorf("resolve listing: %w", err)
	}
	if !found {
		return p.skip("listing not found for product " + payload.ProductID)
	}

	quantity, err := parseAmount(payload.NewAmount)
	if err != nil {
		return p.skip("bad stock amount: " + err.Error())
	}

	listing.Quantity = quantity
	listing.IsActive = quantity > 0
	if err := p.readModel.UpsertListing(ctx, listing); err != nil {
		return Result{}, fmt.Errorf("upsert listing: %w", err)
	}
	return Result{}, nil
}

func (p *Projector) applyPriceIncreased(ctx context.Context, payload model.PriceIncreasedData) (Result, error) {
	listing, found, err := p.readModel.ListingByProductID(ctx, payload.ProductID)
	if err != nil {
		return Result{}, fmt.Errorf("resolve listing: %w", err)
	}
	if !found {
		return p.skip("listing not found for product " + payload.ProductID)
	}

	price, err := parseAmount(payload.NewPrice)
	if err != nil {
		return p.skip("bad price: " + err.Error())
	}

	listing.PriceCents = price
	if err := p.readModel.UpsertListing(ctx, listing); err != nil {
		return Result{}, fmt.Errorf("upsert listing: %w", err)
	}
	return Result{}, nil
}

func (p *Projector) skip(note string) (Result, error) {
	p.logger.Warn("projection skipped", zap.String("reason", note))
	return Result{Skipped: true, Note: note}, nil
}

func parseAmount(s string) (int64, error) {
	value, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return 0, fmt.Errorf("not a decimal integer: %q", s)
	}
	if !value.IsInt64() {
		return 0, fmt.Errorf("value out of range: %s", s)
	}
	return value.Int64(), nil
}
