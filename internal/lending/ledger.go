// Package lending is the collateralized-loan bookkeeping engine. Pools lend
// against NFT-backed assets; positions carry a health factor that must be
// at least MinCollateralRatio at creation.
//
// Interest is simple, non-compounding, and linear in elapsed days:
// principal * rate/100 * days/365. Rates are annual percentages expressed
// as plain numbers (12.5 means 12.5%/yr).
package lending

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"agromart/internal/locks"
	"agromart/internal/model"
)

const (
	// MinCollateralRatio gates new borrows.
	MinCollateralRatio = 1.5
	// LiquidationThreshold flags positions for liquidation. Liquidation
	// execution itself lives outside this ledger.
	LiquidationThreshold = 1.2

	loanTermDays = 30
	daysPerYear  = 365
)

var (
	ErrPoolNotFound           = errors.New("lending pool not found")
	ErrPositionNotFound       = errors.New("lending position not found")
	ErrInsufficientLiquidity  = errors.New("insufficient pool liquidity")
	ErrInsufficientCollateral = errors.New("collateral below minimum ratio")
	ErrUnauthorized           = errors.New("caller is not the position borrower")
	ErrPositionClosed         = errors.New("position is not active")
	ErrInvalidAmount          = errors.New("amount must be positive")
)

// Ledger mutates pools and positions under a per-pool lock, so concurrent
// borrows against one pool serialize and the liquidity invariant holds.
type Ledger struct {
	store  Store
	clock  func() time.Time
	logger *zap.Logger
	locks  locks.KeyedMutex
}

func NewLedger(store Store, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{store: store, clock: func() time.Time { return time.Now().UTC() }, logger: logger}
}

// SetClock overrides time for tests.
func (l *Ledger) SetClock(clock func() time.Time) {
	l.clock = clock
}

// CreatePool opens a pool for one collateral asset.
func (l *Ledger) CreatePool(ctx context.Context, nftTokenID string, collateralValue, initialLiquidity, interestRate float64) (model.LendingPool, error) {
	if initialLiquidity <= 0 || collateralValue <= 0 || interestRate < 0 {
		return model.LendingPool{}, ErrInvalidAmount
	}

	pool := model.LendingPool{
		ID:                 uuid.NewString(),
		NFTTokenID:         nftTokenID,
		CollateralValue:    collateralValue,
		BorrowedAmount:     0,
		AvailableLiquidity: initialLiquidity,
		TotalLiquidity:     initialLiquidity,
		InterestRate:       interestRate,
		UtilizationRate:    0,
		Shares:             map[string]float64{},
		ShareSupply:        0,
		CreatedAt:          l.clock(),
	}
	if err := l.store.SavePool(ctx, pool); err != nil {
		return model.LendingPool{}, err
	}

	l.logger.Info("lending pool created",
		zap.String("pool_id", pool.ID),
		zap.String("asset", nftTokenID),
		zap.Float64("liquidity", initialLiquidity),
		zap.Float64("rate", interestRate),
	)
	return pool, nil
}

// DepositLiquidity adds lender funds and issues pro-rata shares. The first
// deposit into a pool gets shares equal to the amount.
func (l *Ledger) DepositLiquidity(ctx context.Context, poolID, lender string, amount float64) (model.LendingPool, error) {
	if amount <= 0 {
		return model.LendingPool{}, ErrInvalidAmount
	}

	unlock := l.locks.Lock("pool:" + poolID)
	defer unlock()

	pool, ok, err := l.store.Pool(ctx, poolID)
	if err != nil {
		return model.LendingPool{}, err
	}
	if !ok {
		return model.LendingPool{}, ErrPoolNotFound
	}

	var shares float64
	if pool.ShareSupply == 0 {
		shares = amount
	} else {
		shares = amount / pool.TotalLiquidity * pool.ShareSupply
	}

	pool.TotalLiquidity += amount
	pool.AvailableLiquidity += amount
	pool.Shares[lender] += shares
	pool.ShareSupply += shares
	pool.UtilizationRate = utilization(pool)

	if err := l.store.SavePool(ctx, pool); err != nil {
		return model.LendingPool{}, err
	}

	l.logger.Info("liquidity deposited",
		zap.String("pool_id", poolID),
		zap.String("lender", lender),
		zap.Float64("amount", amount),
		zap.Float64("shares", shares),
	)
	return pool, nil
}

// BorrowAgainstNFT opens a position when the pool has the liquidity and the
// collateral clears MinCollateralRatio. Rejected borrows leave the pool
// untouched.
func (l *Ledger) BorrowAgainstNFT(ctx context.Context, poolID, borrower, nftTokenID string, amount, collateralValue float64) (model.LendingPosition, error) {
	if amount <= 0 {
		return model.LendingPosition{}, ErrInvalidAmount
	}

	unlock := l.locks.Lock("pool:" + poolID)
	defer unlock()

	pool, ok, err := l.store.Pool(ctx, poolID)
	if err != nil {
		return model.LendingPosition{}, err
	}
	if !ok {
		return model.LendingPosition{}, ErrPoolNotFound
	}

	if amount > pool.AvailableLiquidity {
		return model.LendingPosition{}, ErrInsufficientLiquidity
	}
	if collateralValue/amount < MinCollateralRatio {
		return model.LendingPosition{}, ErrInsufficientCollateral
	}

	now := l.clock()
	position := model.LendingPosition{
		ID:              uuid.NewString(),
		PoolID:          poolID,
		Borrower:        borrower,
		NFTTokenID:      nftTokenID,
		BorrowedAmount:  amount,
		CollateralValue: collateralValue,
		HealthFactor:    collateralValue / amount,
		InterestRate:    pool.InterestRate,
		Status:          model.PositionActive,
		BorrowedAt:      now,
		DueDate:         now.AddDate(0, 0, loanTermDays),
	}

	pool.BorrowedAmount += amount
	pool.AvailableLiquidity -= amount
	pool.UtilizationRate = utilization(pool)

	if err := l.store.SavePosition(ctx, position); err != nil {
		return model.LendingPosition{}, err
	}
	if err := l.store.SavePool(ctx, pool); err != nil {
		return model.LendingPosition{}, err
	}

	l.logger.Info("loan opened",
		zap.String("pool_id", poolID),
		zap.String("position_id", position.ID),
		zap.String("borrower", borrower),
		zap.Float64("amount", amount),
		zap.Float64("health_factor", position.HealthFactor),
	)
	return position, nil
}

// RepayResult reports the outcome of one repayment.
type RepayResult struct {
	Position         model.LendingPosition
	AccruedInterest  float64
	RemainingBalance float64
}

// RepayLoan applies a repayment. Accrued interest is settled first and
// credited to the pool as lender yield; the remainder reduces principal and
// returns to available liquidity. A position whose outstanding balance
// reaches zero transitions to REPAID.
//
// The position lock is taken before the position is read, then the pool
// lock, always in that order. Concurrent repayments of one position
// serialize, so only the first sees ACTIVE and the pool is credited once.
func (l *Ledger) RepayLoan(ctx context.Context, positionID, borrower string, amount float64) (RepayResult, error) {
	if amount <= 0 {
		return RepayResult{}, ErrInvalidAmount
	}

	unlockPosition := l.locks.Lock("position:" + positionID)
	defer unlockPosition()

	position, ok, err := l.store.Position(ctx, positionID)
	if err != nil {
		return RepayResult{}, err
	}
	if !ok {
		return RepayResult{}, ErrPositionNotFound
	}
	if position.Borrower != borrower {
		return RepayResult{}, ErrUnauthorized
	}
	if position.Status != model.PositionActive {
		return RepayResult{}, ErrPositionClosed
	}

	unlockPool := l.locks.Lock("pool:" + position.PoolID)
	defer unlockPool()

	pool, ok, err := l.store.Pool(ctx, position.PoolID)
	if err != nil {
		return RepayResult{}, err
	}
	if !ok {
		return RepayResult{}, ErrPoolNotFound
	}

	// Unpaid interest carried from earlier partial payments is owed on top
	// of the interest accrued since the last re-base.
	now := l.clock()
	days := now.Sub(position.BorrowedAt).Hours() / 24
	interest := position.AccruedInterest + position.BorrowedAmount*position.InterestRate/100*days/daysPerYear
	outstanding := position.BorrowedAmount + interest
	remaining := math.Max(0, outstanding-amount)

	interestPaid := math.Min(amount, interest)
	principalPaid := math.Min(math.Max(0, amount-interest), position.BorrowedAmount)

	// Interest grows total liquidity; returned principal frees borrow room.
	// Both keep available = total - borrowed.
	pool.TotalLiquidity += interestPaid
	pool.AvailableLiquidity += interestPaid + principalPaid
	pool.BorrowedAmount -= principalPaid
	pool.UtilizationRate = utilization(pool)

	position.AccruedInterest = interest - interestPaid
	position.BorrowedAmount -= principalPaid
	if remaining == 0 {
		position.Status = model.PositionRepaid
		position.HealthFactor = math.Inf(1)
	} else {
		position.BorrowedAt = now
		if position.BorrowedAmount > 0 {
			position.HealthFactor = position.CollateralValue / position.BorrowedAmount
		}
	}

	if err := l.store.SavePosition(ctx, position); err != nil {
		return RepayResult{}, err
	}
	if err := l.store.SavePool(ctx, pool); err != nil {
		return RepayResult{}, err
	}

	l.logger.Info("loan repayment",
		zap.String("position_id", positionID),
		zap.Float64("amount", amount),
		zap.Float64("interest", interest),
		zap.Float64("remaining", remaining),
		zap.String("status", string(position.Status)),
	)
	return RepayResult{Position: position, AccruedInterest: interest, RemainingBalance: remaining}, nil
}

// EvaluateHealth recomputes a position's health factor against a fresh
// collateral valuation and flags it LIQUIDATED below the threshold.
func (l *Ledger) EvaluateHealth(ctx context.Context, positionID string, collateralValue float64) (model.LendingPosition, error) {
	unlock := l.locks.Lock("position:" + positionID)
	defer unlock()

	position, ok, err := l.store.Position(ctx, positionID)
	if err != nil {
		return model.LendingPosition{}, err
	}
	if !ok {
		return model.LendingPosition{}, ErrPositionNotFound
	}
	if position.Status != model.PositionActive {
		return position, nil
	}

	position.CollateralValue = collateralValue
	position.HealthFactor = collateralValue / position.BorrowedAmount
	if position.HealthFactor < LiquidationThreshold {
		position.Status = model.PositionLiquidated
		l.logger.Warn("position flagged for liquidation",
			zap.String("position_id", positionID),
			zap.Float64("health_factor", position.HealthFactor),
		)
	}

	if err := l.store.SavePosition(ctx, position); err != nil {
		return model.LendingPosition{}, err
	}
	return position, nil
}

// Pool returns one pool.
func (l *Ledger) Pool(ctx context.Context, poolID string) (model.LendingPool, error) {
	pool, ok, err := l.store.Pool(ctx, poolID)
	if err != nil {
		return model.LendingPool{}, err
	}
	if !ok {
		return model.LendingPool{}, ErrPoolNotFound
	}
	return pool, nil
}

// Pools lists all pools.
func (l *Ledger) Pools(ctx context.Context) ([]model.LendingPool, error) {
	return l.store.Pools(ctx)
}

func utilization(pool model.LendingPool) float64 {
	if pool.TotalLiquidity == 0 {
		return 0
	}
	return pool.BorrowedAmount / pool.TotalLiquidity * 100
}
