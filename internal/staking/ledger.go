// Package staking tracks locked positions, fixed-lock APY assignment,
// reward accrual, and yield-farming pools with dilution-adjusted APY.
//
// Reward math mirrors lending: simple interest, linear in elapsed days.
package staking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"agromart/internal/locks"
	"agromart/internal/model"
)

const (
	baseAPY     = 10.0
	apyPerMonth = 5.0
	maxAPY      = 50.0
	daysPerYear = 365
)

var (
	ErrPositionNotFound  = errors.New("staking position not found")
	ErrPoolNotFound      = errors.New("yield pool not found")
	ErrUnauthorized      = errors.New("caller is not the staker")
	ErrLockPeriodActive  = errors.New("lock period has not elapsed")
	ErrPositionClosed    = errors.New("position is not active")
	ErrStakeOutOfRange   = errors.New("stake outside the pool's allowed band")
	ErrAssetNotSupported = errors.New("asset not eligible for this pool")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

// LockAPY maps a lock length to its fixed APY: 10% base plus 5% per 30
// days of lock, capped at 50%.
func LockAPY(lockDays int) float64 {
	apy := baseAPY + float64(lockDays)/30*apyPerMonth
	if apy > maxAPY {
		return maxAPY
	}
	return apy
}

// Ledger is the staking/yield bookkeeping engine. Mutations serialize per
// position and per pool, like the lending ledger.
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
	return &Ledger{
		store:  store,
		clock:  func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// SetClock overrides time for tests.
func (l *Ledger) SetClock(clock func() time.Time) {
	l.clock = clock
}

// StakeNFT locks an amount against an asset. APY is fixed at stake time
// from the lock length.
func (l *Ledger) StakeNFT(ctx context.Context, assetID, staker string, amount float64, lockDays int) (model.StakingPosition, error) {
	if amount <= 0 || lockDays <= 0 {
		return model.StakingPosition{}, ErrInvalidAmount
	}

	now := l.clock()
	position := model.StakingPosition{
		ID:           uuid.NewString(),
		Staker:       staker,
		NFTTokenID:   assetID,
		StakedAmount: amount,
		StakedAt:     now,
		LockDays:     lockDays,
		UnlockDate:   now.AddDate(0, 0, lockDays),
		APY:          LockAPY(lockDays),
		Status:       model.StakeActive,
	}
	if err := l.store.SavePosition(ctx, position); err != nil {
		return model.StakingPosition{}, err
	}

	l.logger.Info("nft staked",
		zap.String("position_id", position.ID),
		zap.String("staker", staker),
		zap.Float64("amount", amount),
		zap.Int("lock_days", lockDays),
		zap.Float64("apy", position.APY),
	)
	return position, nil
}

// UnstakeNFT releases a position once the lock has elapsed and settles its
// rewards: amount * apy/100 * daysStaked/365.
func (l *Ledger) UnstakeNFT(ctx context.Context, positionID, staker string) (model.StakingPosition, error) {
	unlock := l.locks.Lock("position:" + positionID)
	defer unlock()

	position, ok, err := l.store.Position(ctx, positionID)
	if err != nil {
		return model.StakingPosition{}, err
	}
	if !ok {
		return model.StakingPosition{}, ErrPositionNotFound
	}
	if position.Staker != staker {
		return model.StakingPosition{}, ErrUnauthorized
	}
	if position.Status != model.StakeActive {
		return model.StakingPosition{}, ErrPositionClosed
	}

	now := l.clock()
	if now.Before(position.UnlockDate) {
		return model.StakingPosition{}, ErrLockPeriodActive
	}

	days := now.Sub(position.StakedAt).Hours() / 24
	position.Rewards = position.StakedAmount * position.APY / 100 * days / daysPerYear
	position.Status = model.StakeUnlocked
	if err := l.store.SavePosition(ctx, position); err != nil {
		return model.StakingPosition{}, err
	}

	l.logger.Info("nft unstaked",
		zap.String("position_id", positionID),
		zap.Float64("rewards", position.Rewards),
	)
	return position, nil
}

// ClaimRewards moves an unlocked position to its terminal CLAIMED state.
func (l *Ledger) ClaimRewards(ctx context.Context, positionID, staker string) (model.StakingPosition, error) {
	unlock := l.locks.Lock("position:" + positionID)
	defer unlock()

	position, ok, err := l.store.Position(ctx, positionID)
	if err != nil {
		return model.StakingPosition{}, err
	}
	if !ok {
		return model.StakingPosition{}, ErrPositionNotFound
	}
	if position.Staker != staker {
		return model.StakingPosition{}, ErrUnauthorized
	}
	if position.Status != model.StakeUnlocked {
		return model.StakingPosition{}, ErrPositionClosed
	}

	position.Status = model.StakeClaimed
	if err := l.store.SavePosition(ctx, position); err != nil {
		return model.StakingPosition{}, err
	}
	return position, nil
}

// Position returns one staking position.
func (l *Ledger) Position(ctx context.Context, positionID string) (model.StakingPosition, error) {
	position, ok, err := l.store.Position(ctx, positionID)
	if err != nil {
		return model.StakingPosition{}, err
	}
	if !ok {
		return model.StakingPosition{}, ErrPositionNotFound
	}
	return position, nil
}

// CreateYieldFarmingPool declares a pool over whitelisted assets with a
// [minStake, maxStake] participation band.
func (l *Ledger) CreateYieldFarmingPool(ctx context.Context, name string, assetIDs []string, minStake, maxStake, rewardRate float64) (model.YieldPool, error) {
	if minStake <= 0 || maxStake < minStake || rewardRate <= 0 {
		return model.YieldPool{}, ErrInvalidAmount
	}

	pool := model.YieldPool{
		ID:         uuid.NewString(),
		Name:       name,
		AssetIDs:   append([]string(nil), assetIDs...),
		MinStake:   minStake,
		MaxStake:   maxStake,
		RewardRate: rewardRate,
		APY:        poolAPY(rewardRate, 0),
		CreatedAt:  l.clock(),
	}
	if err := l.store.SavePool(ctx, pool); err != nil {
		return model.YieldPool{}, err
	}
	return pool, nil
}

// JoinYieldFarming stakes into a pool. The pool APY is recomputed after
// every join: more total stake dilutes the yield.
func (l *Ledger) JoinYieldFarming(ctx context.Context, poolID, staker, assetID string, amount float64) (model.YieldStake, error) {
	unlock := l.locks.Lock("pool:" + poolID)
	defer unlock()

	pool, ok, err := l.store.Pool(ctx, poolID)
	if err != nil {
		return model.YieldStake{}, err
	}
	if !ok {
		return model.YieldStake{}, ErrPoolNotFound
	}
	if amount < pool.MinStake || amount > pool.MaxStake {
		return model.YieldStake{}, ErrStakeOutOfRange
	}
	if !contains(pool.AssetIDs, assetID) {
		return model.YieldStake{}, ErrAssetNotSupported
	}

	stake := model.YieldStake{
		ID:       uuid.NewString(),
		PoolID:   poolID,
		Staker:   staker,
		AssetID:  assetID,
		Amount:   amount,
		JoinedAt: l.clock(),
	}

	pool.TotalStaked += amount
	pool.APY = poolAPY(pool.RewardRate, pool.TotalStaked)

	if err := l.store.SaveStake(ctx, stake); err != nil {
		return model.YieldStake{}, err
	}
	if err := l.store.SavePool(ctx, pool); err != nil {
		return model.YieldStake{}, err
	}

	l.logger.Info("yield farming joined",
		zap.String("pool_id", poolID),
		zap.String("staker", staker),
		zap.Float64("amount", amount),
		zap.Float64("pool_apy", pool.APY),
	)
	return stake, nil
}

// YieldPool returns one yield pool.
func (l *Ledger) YieldPool(ctx context.Context, poolID string) (model.YieldPool, error) {
	pool, ok, err := l.store.Pool(ctx, poolID)
	if err != nil {
		return model.YieldPool{}, err
	}
	if !ok {
		return model.YieldPool{}, ErrPoolNotFound
	}
	return pool, nil
}

// poolAPY spreads the annual reward budget over the staked total. An empty
// pool advertises the reward rate itself.
func poolAPY(rewardRate, totalStaked float64) float64 {
	if totalStaked == 0 {
		return rewardRate
	}
	apy := rewardRate / totalStaked * 100
	if apy > maxAPY {
		return maxAPY
	}
	return apy
}

func contains(items []string, want string) bool {
	for _, item := range items {
		if item == want {
			return true
		}
	}
	return false
}
