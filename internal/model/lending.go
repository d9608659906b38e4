package model

import "time"

// Rates throughout the lending ledger are annual percentages as plain
// numbers (12.5 means 12.5%/yr). Interest is simple, non-compounding, and
// linear in elapsed days: principal * rate/100 * days/365.

// LendingPool holds liquidity lent against one collateral asset.
// Invariants after every operation:
//
//	AvailableLiquidity = TotalLiquidity - BorrowedAmount
//	UtilizationRate    = BorrowedAmount / TotalLiquidity * 100
type LendingPool struct {
	ID                 string             `json:"id"`
	NFTTokenID         string             `json:"nft_token_id"`
	CollateralValue    float64            `json:"collateral_value"`
	BorrowedAmount     float64            `json:"borrowed_amount"`
	AvailableLiquidity float64            `json:"available_liquidity"`
	TotalLiquidity     float64            `json:"total_liquidity"`
	InterestRate       float64            `json:"interest_rate"`
	UtilizationRate    float64            `json:"utilization_rate"`
	Shares             map[string]float64 `json:"shares"`
	ShareSupply        float64            `json:"share_supply"`
	CreatedAt          time.Time          `json:"created_at"`
}

// PositionStatus is the lifecycle state of a lending position.
type PositionStatus string

const (
	PositionActive     PositionStatus = "ACTIVE"
	PositionRepaid     PositionStatus = "REPAID"
	PositionLiquidated PositionStatus = "LIQUIDATED"
)

// LendingPosition is one collateralized loan. HealthFactor is
// CollateralValue / BorrowedAmount; it must be >= 1.5 at creation and the
// position is flagged for liquidation below 1.2 (execution out of scope).
type LendingPosition struct {
	ID              string         `json:"id"`
	PoolID          string         `json:"pool_id"`
	Borrower        string         `json:"borrower"`
	NFTTokenID      string         `json:"nft_token_id"`
	BorrowedAmount  float64        `json:"borrowed_amount"`
	CollateralValue float64        `json:"collateral_value"`
	HealthFactor    float64        `json:"health_factor"`
	AccruedInterest float64        `json:"accrued_interest"`
	InterestRate    float64        `json:"interest_rate"`
	Status          PositionStatus `json:"status"`
	BorrowedAt      time.Time      `json:"borrowed_at"`
	DueDate         time.Time      `json:"due_date"`
}
