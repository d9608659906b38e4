package model

import "time"

// User is a marketplace account resolved from an on-chain wallet address.
type User struct {
	ID            string    `json:"id"`
	WalletAddress string    `json:"wallet_address"`
	Name          string    `json:"name"`
	Role          string    `json:"role"`
	CreatedAt     time.Time `json:"created_at"`
}

// Listing is the read-model projection of an on-chain product.
// ProductID is the stable on-chain identifier; projections upsert by it so
// replaying productCreated cannot create duplicates.
type Listing struct {
	ID         string    `json:"id"`
	ProductID  string    `json:"product_id"`
	Title      string    `json:"title"`
	PriceCents int64     `json:"price_cents"`
	Currency   string    `json:"currency"`
	Quantity   int64     `json:"quantity"`
	SellerID   string    `json:"seller_id"`
	IsActive   bool      `json:"is_active"`
	IsVerified bool      `json:"is_verified"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// OrderStatus is the lifecycle state of an Order.
type OrderStatus string

const (
	OrderConfirmed OrderStatus = "CONFIRMED"
)

// Order is the read-model projection of an on-chain purchase. Orders are
// keyed by the (tx_hash, log_index) of the productBought log, so replays
// upsert the same row. Immutable after creation in this scope.
type Order struct {
	ID          string      `json:"id"`
	BuyerID     string      `json:"buyer_id"`
	ListingID   string      `json:"listing_id"`
	Status      OrderStatus `json:"status"`
	AmountCents int64       `json:"amount_cents"`
	Currency    string      `json:"currency"`
	Notes       string      `json:"notes"`
	TxHash      string      `json:"tx_hash"`
	LogIndex    uint64      `json:"log_index"`
	CreatedAt   time.Time   `json:"created_at"`
}
