package governance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agromart/internal/model"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func newTestLedger(t *testing.T, treasury float64) (*Ledger, time.Time) {
	t.Helper()
	ledger := NewLedger(NewMemoryStore(), treasury, nil)
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	ledger.SetClock(fixedClock(start))
	return ledger, start
}

func registerVoter(t *testing.T, ledger *Ledger, address, tokenID string, category model.AssetCategory, rarity model.AssetRarity, mintedAt time.Time) {
	t.Helper()
	ctx := context.Background()
	_, err := ledger.RegisterMember(ctx, address)
	require.NoError(t, err)
	require.NoError(t, ledger.RegisterHolding(ctx, model.NFTHolding{
		TokenID:  tokenID,
		Owner:    address,
		Category: category,
		Rarity:   rarity,
		MintedAt: mintedAt,
	}))
}

func TestVotingPowerScaling(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	fresh := model.NFTHolding{Category: model.AssetLand, Rarity: model.RarityLegendary, MintedAt: now}
	assert.InDelta(t, 900.0, VotingPower(fresh, now), 1e-9) // 300 * 3 * 1

	aged := model.NFTHolding{Category: model.AssetProduct, Rarity: model.RarityCommon, MintedAt: now.AddDate(-3, 0, 0)}
	assert.InDelta(t, 200.0, VotingPower(aged, now), 1e-9) // age multiplier capped at 2x

	midway := model.NFTHolding{Category: model.AssetEquipment, Rarity: model.RarityRare, MintedAt: now.AddDate(0, 0, -547)}
	// ~1.5 years: 200 * 1.5 * ~1.5
	assert.InDelta(t, 450.0, VotingPower(midway, now), 2.0)
}

func TestVoteBeforeWindowRejected(t *testing.T) {
	ctx := context.Background()
	ledger, start := newTestLedger(t, 0)
	registerVoter(t, ledger, "0xalice", "nft-1", model.AssetProduct, model.RarityCommon, start)

	proposal, err := ledger.CreateProposal(ctx, "0xalice", "irrigation upgrade", "", model.CategoryGeneral, 7, 50, nil)
	require.NoError(t, err)
	assert.Equal(t, start.Add(24*time.Hour), proposal.VotingStart)
	assert.Equal(t, proposal.VotingStart.AddDate(0, 0, 7), proposal.VotingEnd)
	assert.Equal(t, proposal.VotingEnd.Add(30*24*time.Hour), proposal.ExecutionDeadline)

	// Still before votingStart.
	_, err = ledger.CastVote(ctx, proposal.ID, "0xalice", model.VoteFor, []string{"nft-1"})
	assert.ErrorIs(t, err, ErrVotingNotActive)

	ledger.SetClock(fixedClock(proposal.VotingEnd.Add(time.Hour)))
	_, err = ledger.CastVote(ctx, proposal.ID, "0xalice", model.VoteFor, []string{"nft-1"})
	assert.ErrorIs(t, err, ErrVotingNotActive)
}

func TestDuplicateVoteRejected(t *testing.T) {
	ctx := context.Background()
	ledger, start := newTestLedger(t, 0)
	registerVoter(t, ledger, "0xalice", "nft-1", model.AssetProduct, model.RarityCommon, start)

	proposal, err := ledger.CreateProposal(ctx, "0xalice", "seed fund", "", model.CategoryGeneral, 7, 50, nil)
	require.NoError(t, err)

	ledger.SetClock(fixedClock(proposal.VotingStart.Add(time.Hour)))
	_, err = ledger.CastVote(ctx, proposal.ID, "0xalice", model.VoteFor, []string{"nft-1"})
	require.NoError(t, err)

	_, err = ledger.CastVote(ctx, proposal.ID, "0xalice", model.VoteAgainst, []string{"nft-1"})
	assert.ErrorIs(t, err, ErrDuplicateVote)

	got, err := ledger.Proposal(ctx, proposal.ID)
	require.NoError(t, err)
	assert.Len(t, got.Votes, 1)
}

func TestVoteRequiresOwnedAssets(t *testing.T) {
	ctx := context.Background()
	ledger, start := newTestLedger(t, 0)
	registerVoter(t, ledger, "0xalice", "nft-1", model.AssetProduct, model.RarityCommon, start)
	_, err := ledger.RegisterMember(ctx, "0xmallory")
	require.NoError(t, err)

	proposal, err := ledger.CreateProposal(ctx, "0xalice", "seed fund", "", model.CategoryGeneral, 7, 50, nil)
	require.NoError(t, err)
	ledger.SetClock(fixedClock(proposal.VotingStart.Add(time.Hour)))

	// Presenting someone else's asset yields no power.
	_, err = ledger.CastVote(ctx, proposal.ID, "0xmallory", model.VoteFor, []string{"nft-1"})
	assert.ErrorIs(t, err, ErrNoVotingPower)

	_, err = ledger.CastVote(ctx, "no-such-proposal", "0xalice", model.VoteFor, []string{"nft-1"})
	assert.ErrorIs(t, err, ErrProposalNotFound)
}

func TestFinalizeQuorumAndThreshold(t *testing.T) {
	ctx := context.Background()
	ledger, start := newTestLedger(t, 0)
	minted := start.AddDate(0, 0, -30) // fresh: 1x age multiplier
	registerVoter(t, ledger, "0xalice", "nft-1", model.AssetLand, model.RarityCommon, minted)    // 300
	registerVoter(t, ledger, "0xbob", "nft-2", model.AssetProduct, model.RarityCommon, minted)   // 100
	registerVoter(t, ledger, "0xcarol", "nft-3", model.AssetService, model.RarityCommon, minted) // 150

	proposal, err := ledger.CreateProposal(ctx, "0xalice", "motion", "", model.CategoryMotion, 3, 60, nil)
	require.NoError(t, err)
	assert.InDelta(t, 55.0, proposal.Quorum, 1e-9) // 10% of 550

	ledger.SetClock(fixedClock(proposal.VotingStart.Add(time.Hour)))
	_, err = ledger.CastVote(ctx, proposal.ID, "0xalice", model.VoteFor, []string{"nft-1"})
	require.NoError(t, err)
	_, err = ledger.CastVote(ctx, proposal.ID, "0xbob", model.VoteAgainst, []string{"nft-2"})
	require.NoError(t, err)

	// Tally before the window closes is rejected.
	_, err = ledger.FinalizeProposal(ctx, proposal.ID)
	assert.ErrorIs(t, err, ErrVotingStillOpen)

	ledger.SetClock(fixedClock(proposal.VotingEnd.Add(time.Minute)))
	got, err := ledger.FinalizeProposal(ctx, proposal.ID)
	require.NoError(t, err)
	// 300/(300+100) = 75% ≥ 60% and 400 ≥ 55 quorum.
	assert.Equal(t, model.ProposalPassed, got.Status)
}

func TestFinalizeRejectsBelowQuorum(t *testing.T) {
	ctx := context.Background()
	ledger, start := newTestLedger(t, 0)
	minted := start.AddDate(0, 0, -30)
	registerVoter(t, ledger, "0xalice", "nft-1", model.AssetProduct, model.RarityCommon, minted) // 100
	// Whales push total power (and so quorum) up without voting.
	registerVoter(t, ledger, "0xwhale1", "nft-8", model.AssetLand, model.RarityLegendary, minted) // 900
	registerVoter(t, ledger, "0xwhale2", "nft-9", model.AssetLand, model.RarityLegendary, minted) // 900

	proposal, err := ledger.CreateProposal(ctx, "0xalice", "quiet motion", "", model.CategoryMotion, 3, 50, nil)
	require.NoError(t, err)
	assert.InDelta(t, 190.0, proposal.Quorum, 1e-9)

	ledger.SetClock(fixedClock(proposal.VotingStart.Add(time.Hour)))
	_, err = ledger.CastVote(ctx, proposal.ID, "0xalice", model.VoteFor, []string{"nft-1"})
	require.NoError(t, err)

	ledger.SetClock(fixedClock(proposal.VotingEnd.Add(time.Minute)))
	got, err := ledger.FinalizeProposal(ctx, proposal.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProposalRejected, got.Status)
}

func TestTreasuryProposalLifecycle(t *testing.T) {
	ctx := context.Background()
	ledger, start := newTestLedger(t, 100000)
	minted := start.AddDate(0, 0, -30)
	registerVoter(t, ledger, "0xalice", "nft-1", model.AssetLand, model.RarityCommon, minted)

	// Ask above 10% of treasury is rejected at creation.
	_, err := ledger.CreateProposal(ctx, "0xalice", "big grant", "", model.CategoryTreasury, 3, 50,
		&model.TreasuryRequest{Amount: 20000, Recipient: "0xfarmer"})
	assert.ErrorIs(t, err, ErrTreasuryLimitExceeded)

	proposal, err := ledger.CreateProposal(ctx, "0xalice", "grant", "", model.CategoryTreasury, 3, 50,
		&model.TreasuryRequest{Amount: 8000, Recipient: "0xfarmer"})
	require.NoError(t, err)

	// Executing before it passed is rejected.
	_, err = ledger.ExecuteProposal(ctx, proposal.ID, "0xalice")
	assert.ErrorIs(t, err, ErrNotPassed)

	ledger.SetClock(fixedClock(proposal.VotingStart.Add(time.Hour)))
	_, err = ledger.CastVote(ctx, proposal.ID, "0xalice", model.VoteFor, []string{"nft-1"})
	require.NoError(t, err)

	ledger.SetClock(fixedClock(proposal.VotingEnd.Add(time.Minute)))
	_, err = ledger.FinalizeProposal(ctx, proposal.ID)
	require.NoError(t, err)

	got, err := ledger.ExecuteProposal(ctx, proposal.ID, "0xalice")
	require.NoError(t, err)
	assert.Equal(t, model.ProposalExecuted, got.Status)
	assert.InDelta(t, 92000.0, ledger.TreasuryBalance(), 1e-9)
}

func TestExecuteAfterDeadlineRejected(t *testing.T) {
	ctx := context.Background()
	ledger, start := newTestLedger(t, 0)
	minted := start.AddDate(0, 0, -30)
	registerVoter(t, ledger, "0xalice", "nft-1", model.AssetLand, model.RarityCommon, minted)

	proposal, err := ledger.CreateProposal(ctx, "0xalice", "motion", "", model.CategoryMotion, 3, 50, nil)
	require.NoError(t, err)

	ledger.SetClock(fixedClock(proposal.VotingStart.Add(time.Hour)))
	_, err = ledger.CastVote(ctx, proposal.ID, "0xalice", model.VoteFor, []string{"nft-1"})
	require.NoError(t, err)

	ledger.SetClock(fixedClock(proposal.VotingEnd.Add(time.Minute)))
	_, err = ledger.FinalizeProposal(ctx, proposal.ID)
	require.NoError(t, err)

	ledger.SetClock(fixedClock(proposal.ExecutionDeadline.Add(time.Hour)))
	_, err = ledger.ExecuteProposal(ctx, proposal.ID, "0xalice")
	assert.ErrorIs(t, err, ErrDeadlinePassed)
}

func TestMemberBookkeeping(t *testing.T) {
	ctx := context.Background()
	ledger, start := newTestLedger(t, 0)
	minted := start.AddDate(0, 0, -30)
	registerVoter(t, ledger, "0xalice", "nft-1", model.AssetProduct, model.RarityCommon, minted)

	// Re-registering keeps the original record.
	member, err := ledger.RegisterMember(ctx, "0xalice")
	require.NoError(t, err)
	assert.Equal(t, start, member.JoinedAt)
	assert.InDelta(t, 100.0, member.VotingPower, 1e-9)

	proposal, err := ledger.CreateProposal(ctx, "0xalice", "motion", "", model.CategoryMotion, 3, 50, nil)
	require.NoError(t, err)

	voteAt := proposal.VotingStart.Add(time.Hour)
	ledger.SetClock(fixedClock(voteAt))
	_, err = ledger.CastVote(ctx, proposal.ID, "0xalice", model.VoteFor, []string{"nft-1"})
	require.NoError(t, err)

	member, ok, err := ledger.store.Member(ctx, "0xalice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, member.Contributions)
	assert.Equal(t, voteAt, member.LastActive)

	// Registering a holding for an unknown address fails.
	err = ledger.RegisterHolding(ctx, model.NFTHolding{TokenID: "nft-9", Owner: "0xnobody"})
	assert.ErrorIs(t, err, ErrMemberNotFound)
}
