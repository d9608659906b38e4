package model

import "time"

// StakeStatus is the lifecycle state of a staking position.
type StakeStatus string

const (
	StakeActive   StakeStatus = "ACTIVE"
	StakeUnlocked StakeStatus = "UNLOCKED"
	StakeClaimed  StakeStatus = "CLAIMED"
)

// StakingPosition locks an amount against an asset for a fixed period.
// APY is assigned at stake time from the lock length and never changes.
// Unstaking before UnlockDate is rejected.
type StakingPosition struct {
	ID           string      `json:"id"`
	Staker       string      `json:"staker"`
	NFTTokenID   string      `json:"nft_token_id"`
	StakedAmount float64     `json:"staked_amount"`
	StakedAt     time.Time   `json:"staked_at"`
	LockDays     int         `json:"lock_days"`
	UnlockDate   time.Time   `json:"unlock_date"`
	Rewards      float64     `json:"rewards"`
	APY          float64     `json:"apy"`
	Status       StakeStatus `json:"status"`
}

// YieldPool is a yield-farming pool over a whitelist of eligible assets.
// APY dilutes as total stake grows: rewardRate spread over TotalStaked.
type YieldPool struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	AssetIDs    []string  `json:"asset_ids"`
	MinStake    float64   `json:"min_stake"`
	MaxStake    float64   `json:"max_stake"`
	RewardRate  float64   `json:"reward_rate"`
	TotalStaked float64   `json:"total_staked"`
	APY         float64   `json:"apy"`
	CreatedAt   time.Time `json:"created_at"`
}

// YieldStake is one member's stake inside a yield pool.
type YieldStake struct {
	ID       string    `json:"id"`
	PoolID   string    `json:"pool_id"`
	Staker   string    `json:"staker"`
	AssetID  string    `json:"asset_id"`
	Amount   float64   `json:"amount"`
	JoinedAt time.Time `json:"joined_at"`
}
