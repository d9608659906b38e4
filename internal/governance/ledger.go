// Package governance is the DAO bookkeeping engine: proposals, NFT-weighted
// voting, tally, and treasury-backed execution.
//
// Voting power is derived from the assets a voter presents at vote time,
// never cached: basePower(category) * rarityMultiplier * ageMultiplier.
// Quorum is snapshotted at proposal creation as 10% of the total power of
// all registered members; it is not refreshed at tally time.
package governance

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
	// QuorumFraction of total member voting power at proposal creation.
	QuorumFraction = 0.10
	// TreasuryRequestCap limits a single proposal's ask to this fraction
	// of the treasury balance at creation.
	TreasuryRequestCap = 0.10

	votingDelay       = 24 * time.Hour
	executionWindow   = 30 * 24 * time.Hour
	ageMultFloorYears = 1.0
	ageMultCeilYears  = 2.0
)

var (
	ErrProposalNotFound      = errors.New("proposal not found")
	ErrMemberNotFound        = errors.New("member not registered")
	ErrVotingNotActive       = errors.New("voting is not active for this proposal")
	ErrDuplicateVote         = errors.New("voter has already voted on this proposal")
	ErrNoVotingPower         = errors.New("presented assets carry no voting power")
	ErrTreasuryLimitExceeded = errors.New("treasury request exceeds the per-proposal cap")
	ErrNotPassed             = errors.New("proposal has not passed")
	ErrDeadlinePassed        = errors.New("execution deadline has passed")
	ErrVotingStillOpen       = errors.New("voting window has not closed")
	ErrInsufficientTreasury  = errors.New("treasury balance below requested amount")
	ErrInvalidDuration       = errors.New("voting duration must be positive")
)

// basePower is the fixed per-category weight an asset contributes before
// rarity and age scaling.
var basePower = map[model.AssetCategory]float64{
	model.AssetProduct:   100,
	model.AssetService:   150,
	model.AssetEquipment: 200,
	model.AssetLand:      300,
}

var rarityMultiplier = map[model.AssetRarity]float64{
	model.RarityCommon:    1,
	model.RarityRare:      1.5,
	model.RarityEpic:      2,
	model.RarityLegendary: 3,
}

// Ledger guards each proposal with a per-proposal lock so concurrent votes
// serialize and the one-vote-per-voter invariant holds.
type Ledger struct {
	store    Store
	clock    func() time.Time
	logger   *zap.Logger
	locks    locks.KeyedMutex
	treasury float64
}

func NewLedger(store Store, treasuryBalance float64, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		store:    store,
		clock:    func() time.Time { return time.Now().UTC() },
		logger:   logger,
		treasury: treasuryBalance,
	}
}

// SetClock overrides time for tests.
func (l *Ledger) SetClock(clock func() time.Time) {
	l.clock = clock
}

// TreasuryBalance returns the current treasury balance.
func (l *Ledger) TreasuryBalance() float64 {
	unlock := l.locks.Lock("treasury")
	defer unlock()
	return l.treasury
}

// FundTreasury credits the treasury.
func (l *Ledger) FundTreasury(amount float64) {
	unlock := l.locks.Lock("treasury")
	defer unlock()
	l.treasury += amount
}

// RegisterMember enrolls an address. Re-registering is a no-op that keeps
// the original join date.
func (l *Ledger) RegisterMember(ctx context.Context, address string) (model.Member, error) {
	unlock := l.locks.Lock("member:" + address)
	defer unlock()

	if existing, ok, err := l.store.Member(ctx, address); err != nil {
		return model.Member{}, err
	} else if ok {
		return existing, nil
	}

	now := l.clock()
	member := model.Member{Address: address, JoinedAt: now, LastActive: now}
	if err := l.store.SaveMember(ctx, member); err != nil {
		return model.Member{}, err
	}
	l.logger.Info("member registered", zap.String("address", address))
	return member, nil
}

// RegisterHolding records an asset under its owner and refreshes the
// member's cached voting power, which feeds quorum snapshots.
func (l *Ledger) RegisterHolding(ctx context.Context, holding model.NFTHolding) error {
	unlock := l.locks.Lock("member:" + holding.Owner)
	defer unlock()

	member, ok, err := l.store.Member(ctx, holding.Owner)
	if err != nil {
		return err
	}
	if !ok {
		return ErrMemberNotFound
	}
	if err := l.store.SaveHolding(ctx, holding); err != nil {
		return err
	}

	member.NFTHoldings = append(member.NFTHoldings, holding)
	member.VotingPower = l.memberPower(member, l.clock())
	return l.store.SaveMember(ctx, member)
}

// CreateProposal opens a proposal. Voting starts 24h after creation and
// runs for durationDays; execution must happen within 30 days of the
// voting end. A treasury ask above 10% of the current balance is rejected.
func (l *Ledger) CreateProposal(ctx context.Context, proposer, title, description string, category model.ProposalCategory, durationDays int, supportThresholdPct float64, treasuryRequest *model.TreasuryRequest) (model.Proposal, error) {
	if durationDays <= 0 {
		return model.Proposal{}, ErrInvalidDuration
	}
	if _, ok, err := l.store.Member(ctx, proposer); err != nil {
		return model.Proposal{}, err
	} else if !ok {
		return model.Proposal{}, ErrMemberNotFound
	}
	if treasuryRequest != nil {
		if treasuryRequest.Amount > l.TreasuryBalance()*TreasuryRequestCap {
			return model.Proposal{}, ErrTreasuryLimitExceeded
		}
	}

	now := l.clock()
	quorum, err := l.quorumSnapshot(ctx, now)
	if err != nil {
		return model.Proposal{}, err
	}

	votingStart := now.Add(votingDelay)
	votingEnd := votingStart.AddDate(0, 0, durationDays)
	proposal := model.Proposal{
		ID:                uuid.NewString(),
		Proposer:          proposer,
		Title:             title,
		Description:       description,
		Category:          category,
		Status:            model.ProposalActive,
		Quorum:            quorum,
		SupportThreshold:  supportThresholdPct,
		VotingStart:       votingStart,
		VotingEnd:         votingEnd,
		ExecutionDeadline: votingEnd.Add(executionWindow),
		TreasuryRequest:   treasuryRequest,
		CreatedAt:         now,
	}
	if err := l.store.SaveProposal(ctx, proposal); err != nil {
		return model.Proposal{}, err
	}

	l.touchMember(ctx, proposer, now, 0)

	l.logger.Info("proposal created",
		zap.String("proposal_id", proposal.ID),
		zap.String("proposer", proposer),
		zap.String("category", string(category)),
		zap.Float64("quorum", quorum),
	)
	return proposal, nil
}

// CastVote records one ballot. Power comes from the presented assets that
// the voter actually owns; assets owned by someone else contribute nothing.
func (l *Ledger) CastVote(ctx context.Context, proposalID, voter string, choice model.VoteChoice, presentedAssetIDs []string) (model.Vote, error) {
	unlock := l.locks.Lock("proposal:" + proposalID)
	defer unlock()

	proposal, ok, err := l.store.Proposal(ctx, proposalID)
	if err != nil {
		return model.Vote{}, err
	}
	if !ok {
		return model.Vote{}, ErrProposalNotFound
	}

	now := l.clock()
	if proposal.Status != model.ProposalActive || now.Before(proposal.VotingStart) || now.After(proposal.VotingEnd) {
		return model.Vote{}, ErrVotingNotActive
	}
	for _, vote := range proposal.Votes {
		if vote.Voter == voter {
			return model.Vote{}, ErrDuplicateVote
		}
	}

	power := 0.0
	counted := make([]string, 0, len(presentedAssetIDs))
	for _, tokenID := range presentedAssetIDs {
		holding, ok, err := l.store.Holding(ctx, tokenID)
		if err != nil {
			return model.Vote{}, err
		}
		if !ok || holding.Owner != voter {
			continue
		}
		if p := VotingPower(holding, now); p > 0 {
			power += p
			counted = append(counted, tokenID)
		}
	}
	if power <= 0 {
		return model.Vote{}, ErrNoVotingPower
	}

	vote := model.Vote{
		ID:          uuid.NewString(),
		Voter:       voter,
		ProposalID:  proposalID,
		Choice:      choice,
		VotingPower: power,
		NFTTokenIDs: counted,
		Timestamp:   now,
	}
	proposal.Votes = append(proposal.Votes, vote)
	if err := l.store.SaveProposal(ctx, proposal); err != nil {
		return model.Vote{}, err
	}

	l.touchMember(ctx, voter, now, 1)

	l.logger.Info("vote cast",
		zap.String("proposal_id", proposalID),
		zap.String("voter", voter),
		zap.String("choice", string(choice)),
		zap.Float64("power", power),
	)
	return vote, nil
}

// FinalizeProposal tallies after the voting window closes. Quorum counts
// all participating power including abstentions; the support threshold is
// measured on for/(for+against).
func (l *Ledger) FinalizeProposal(ctx context.Context, proposalID string) (model.Proposal, error) {
	unlock := l.locks.Lock("proposal:" + proposalID)
	defer unlock()

	proposal, ok, err := l.store.Proposal(ctx, proposalID)
	if err != nil {
		return model.Proposal{}, err
	}
	if !ok {
		return model.Proposal{}, ErrProposalNotFound
	}
	if proposal.Status != model.ProposalActive {
		return proposal, nil
	}
	if l.clock().Before(proposal.VotingEnd) {
		return model.Proposal{}, ErrVotingStillOpen
	}

	var forPower, againstPower, totalPower float64
	for _, vote := range proposal.Votes {
		totalPower += vote.VotingPower
		switch vote.Choice {
		case model.VoteFor:
			forPower += vote.VotingPower
		case model.VoteAgainst:
			againstPower += vote.VotingPower
		}
	}

	proposal.Status = model.ProposalRejected
	if totalPower >= proposal.Quorum && forPower+againstPower > 0 {
		if forPower/(forPower+againstPower)*100 >= proposal.SupportThreshold {
			proposal.Status = model.ProposalPassed
		}
	}
	if err := l.store.SaveProposal(ctx, proposal); err != nil {
		return model.Proposal{}, err
	}

	l.logger.Info("proposal finalized",
		zap.String("proposal_id", proposalID),
		zap.String("status", string(proposal.Status)),
		zap.Float64("for", forPower),
		zap.Float64("against", againstPower),
		zap.Float64("quorum", proposal.Quorum),
	)
	return proposal, nil
}

// ExecuteProposal runs a passed proposal's category executor within the
// execution window. A treasury proposal debits the treasury.
func (l *Ledger) ExecuteProposal(ctx context.Context, proposalID, executor string) (model.Proposal, error) {
	unlock := l.locks.Lock("proposal:" + proposalID)
	defer unlock()

	proposal, ok, err := l.store.Proposal(ctx, proposalID)
	if err != nil {
		return model.Proposal{}, err
	}
	if !ok {
		return model.Proposal{}, ErrProposalNotFound
	}
	if proposal.Status != model.ProposalPassed {
		return model.Proposal{}, ErrNotPassed
	}
	now := l.clock()
	if now.After(proposal.ExecutionDeadline) {
		return model.Proposal{}, ErrDeadlinePassed
	}

	switch proposal.Category {
	case model.CategoryTreasury:
		if proposal.TreasuryRequest == nil {
			break
		}
		treasuryUnlock := l.locks.Lock("treasury")
		if proposal.TreasuryRequest.Amount > l.treasury {
			treasuryUnlock()
			return model.Proposal{}, ErrInsufficientTreasury
		}
		l.treasury -= proposal.TreasuryRequest.Amount
		treasuryUnlock()
		l.logger.Info("treasury disbursed",
			zap.String("proposal_id", proposalID),
			zap.Float64("amount", proposal.TreasuryRequest.Amount),
			zap.String("recipient", proposal.TreasuryRequest.Recipient),
		)
	case model.CategoryGeneral, model.CategoryMotion:
		// No side effects beyond the recorded outcome.
	}

	proposal.Status = model.ProposalExecuted
	if err := l.store.SaveProposal(ctx, proposal); err != nil {
		return model.Proposal{}, err
	}

	l.touchMember(ctx, executor, now, 1)

	l.logger.Info("proposal executed",
		zap.String("proposal_id", proposalID),
		zap.String("executor", executor),
	)
	return proposal, nil
}

// Proposal returns one proposal.
func (l *Ledger) Proposal(ctx context.Context, proposalID string) (model.Proposal, error) {
	proposal, ok, err := l.store.Proposal(ctx, proposalID)
	if err != nil {
		return model.Proposal{}, err
	}
	if !ok {
		return model.Proposal{}, ErrProposalNotFound
	}
	return proposal, nil
}

// VotingPower weighs a single asset: fixed base per category, rarity
// multiplier, and an age multiplier growing linearly from 1x to 2x between
// one and two years of asset age.
func VotingPower(holding model.NFTHolding, at time.Time) float64 {
	base, ok := basePower[holding.Category]
	if !ok {
		return 0
	}
	rarity, ok := rarityMultiplier[holding.Rarity]
	if !ok {
		return 0
	}
	return base * rarity * ageMultiplier(holding.MintedAt, at)
}

func ageMultiplier(mintedAt, at time.Time) float64 {
	years := at.Sub(mintedAt).Hours() / 24 / 365
	switch {
	case years <= ageMultFloorYears:
		return 1
	case years >= ageMultCeilYears:
		return 2
	default:
		return 1 + (years - ageMultFloorYears)
	}
}

// quorumSnapshot sums every registered member's power from their holdings
// at the given instant and takes the quorum fraction of it.
func (l *Ledger) quorumSnapshot(ctx context.Context, at time.Time) (float64, error) {
	members, err := l.store.Members(ctx)
	if err != nil {
		return 0, err
	}
	total := 0.0
	for _, member := range members {
		total += l.memberPower(member, at)
	}
	return total * QuorumFraction, nil
}

func (l *Ledger) memberPower(member model.Member, at time.Time) float64 {
	power := 0.0
	for _, holding := range member.NFTHoldings {
		power += VotingPower(holding, at)
	}
	return power
}

// touchMember bumps activity bookkeeping; failures here are logged, never
// surfaced, since the primary operation already committed.
func (l *Ledger) touchMember(ctx context.Context, address string, now time.Time, contributions int) {
	member, ok, err := l.store.Member(ctx, address)
	if err != nil || !ok {
		return
	}
	member.LastActive = now
	member.Contributions += contributions
	if err := l.store.SaveMember(ctx, member); err != nil {
		l.logger.Warn("member bookkeeping failed", zap.String("address", address), zap.Error(err))
	}
}
