package model

import "time"

// ProposalStatus is the lifecycle state of a governance proposal.
type ProposalStatus string

const (
	ProposalDraft    ProposalStatus = "DRAFT"
	ProposalActive   ProposalStatus = "ACTIVE"
	ProposalPassed   ProposalStatus = "PASSED"
	ProposalRejected ProposalStatus = "REJECTED"
	ProposalExecuted ProposalStatus = "EXECUTED"
)

// ProposalCategory selects the executor used when a passed proposal runs.
type ProposalCategory string

const (
	CategoryGeneral  ProposalCategory = "GENERAL"
	CategoryTreasury ProposalCategory = "TREASURY"
	CategoryMotion   ProposalCategory = "MOTION"
)

// VoteChoice is a ballot option.
type VoteChoice string

const (
	VoteFor     VoteChoice = "FOR"
	VoteAgainst VoteChoice = "AGAINST"
	VoteAbstain VoteChoice = "ABSTAIN"
)

// AssetCategory classifies a tokenized asset for voting-power purposes.
type AssetCategory string

const (
	AssetProduct   AssetCategory = "PRODUCT"
	AssetService   AssetCategory = "SERVICE"
	AssetEquipment AssetCategory = "EQUIPMENT"
	AssetLand      AssetCategory = "LAND"
)

// AssetRarity scales voting power: COMMON 1x, RARE 1.5x, EPIC 2x, LEGENDARY 3x.
type AssetRarity string

const (
	RarityCommon    AssetRarity = "COMMON"
	RarityRare      AssetRarity = "RARE"
	RarityEpic      AssetRarity = "EPIC"
	RarityLegendary AssetRarity = "LEGENDARY"
)

// NFTHolding is one tokenized asset presented for voting power.
type NFTHolding struct {
	TokenID  string        `json:"token_id"`
	Owner    string        `json:"owner"`
	Category AssetCategory `json:"category"`
	Rarity   AssetRarity   `json:"rarity"`
	MintedAt time.Time     `json:"minted_at"`
}

// TreasuryRequest asks for funds on proposal execution.
type TreasuryRequest struct {
	Amount    float64 `json:"amount"`
	Recipient string  `json:"recipient"`
	Purpose   string  `json:"purpose"`
}

// Proposal is a governance proposal. Quorum is snapshotted at creation as
// 10% of the total voting power of all members at that moment; it is not
// re-evaluated against late-joining members.
type Proposal struct {
	ID                string           `json:"id"`
	Proposer          string           `json:"proposer"`
	Title             string           `json:"title"`
	Description       string           `json:"description"`
	Category          ProposalCategory `json:"category"`
	Status            ProposalStatus   `json:"status"`
	Quorum            float64          `json:"quorum"`
	SupportThreshold  float64          `json:"support_threshold"`
	VotingStart       time.Time        `json:"voting_start"`
	VotingEnd         time.Time        `json:"voting_end"`
	ExecutionDeadline time.Time        `json:"execution_deadline"`
	Votes             []Vote           `json:"votes"`
	TreasuryRequest   *TreasuryRequest `json:"treasury_request,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
}

// Vote is one cast ballot. VotingPower is derived from the NFTs presented
// at vote time, not stored authoritatively anywhere else.
type Vote struct {
	ID          string     `json:"id"`
	Voter       string     `json:"voter"`
	ProposalID  string     `json:"proposal_id"`
	Choice      VoteChoice `json:"choice"`
	VotingPower float64    `json:"voting_power"`
	NFTTokenIDs []string   `json:"nft_token_ids"`
	Timestamp   time.Time  `json:"timestamp"`
}

// Member is a DAO participant.
type Member struct {
	Address       string       `json:"address"`
	NFTHoldings   []NFTHolding `json:"nft_holdings"`
	VotingPower   float64      `json:"voting_power"`
	Reputation    int          `json:"reputation"`
	Contributions int          `json:"contributions"`
	JoinedAt      time.Time    `json:"joined_at"`
	LastActive    time.Time    `json:"last_active"`
}
