// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package round

import (
	"encoding/binary"
	"testing"

	"github.com/luxfi/database"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/qfvm/config"
	"github.com/luxfi/qfvm/distribution"
	"github.com/luxfi/qfvm/matching"
	"github.com/luxfi/qfvm/metrics"
	"github.com/luxfi/qfvm/phase"
	"github.com/luxfi/qfvm/state"
	"github.com/luxfi/qfvm/whitelist"
)

var (
	assetID  = ids.ID{'l', 'u', 'x'}
	admin    = ids.ShortID{0xad}
	leftover = ids.ShortID{0x1e}

	proposalOpen = phase.Block{Height: 1, Time: 100}
	votingOpen   = phase.Block{Height: 15, Time: 200}
	closed       = phase.Block{Height: 20, Time: 300}
)

func newTestRound(t *testing.T) (*Round, database.Database) {
	t.Helper()
	db := memdb.New()
	return New(db, config.DefaultConfig(), log.NoLog{}, metrics.Noop{}), db
}

func defaultArgs() InitializeArgs {
	return InitializeArgs{
		Admin:             admin,
		LeftoverRecipient: leftover,
		ProposalWindow:    phase.AtHeight(10),
		VotingWindow:      phase.AtHeight(20),
		BudgetAssetID:     assetID,
		Algorithm:         matching.CLR,
	}
}

func budget(amount uint64) []Coin {
	return []Coin{{AssetID: assetID, Amount: amount}}
}

func initializedRound(t *testing.T, args InitializeArgs, amount uint64) (*Round, database.Database) {
	t.Helper()
	r, db := newTestRound(t)
	_, err := r.Initialize(admin, proposalOpen, args, budget(amount))
	require.NoError(t, err)
	return r, db
}

func createProposal(t *testing.T, r *Round, fund ids.ShortID) uint64 {
	t.Helper()
	resp, err := r.CreateProposal(ids.GenerateTestShortID(), proposalOpen, CreateProposalArgs{
		Title:       "proposal",
		Description: "description",
		Metadata:    []byte("{}"),
		FundAddress: fund,
	})
	require.NoError(t, err)
	return binary.BigEndian.Uint64(resp.Data)
}

func TestInitialize(t *testing.T) {
	require := require.New(t)

	r, _ := newTestRound(t)

	_, err := r.Config()
	require.ErrorIs(err, state.ErrNotInitialized)

	resp, err := r.Initialize(admin, proposalOpen, defaultArgs(), budget(1_000_000))
	require.NoError(err)
	value, ok := resp.Attribute("action")
	require.True(ok)
	require.Equal(actionInitialize, value)

	cfg, err := r.Config()
	require.NoError(err)
	require.Equal(admin, cfg.Admin)
	require.Equal(leftover, cfg.LeftoverRecipient)
	require.Equal(uint64(1_000_000), cfg.BudgetAmount)
	require.Equal(assetID, cfg.BudgetAssetID)
	require.Equal(matching.CLR, cfg.Algorithm)
	require.Nil(cfg.CreateProposalWhitelist.Whitelist())
	require.Nil(cfg.VoteWhitelist.Whitelist())

	_, err = r.Initialize(admin, proposalOpen, defaultArgs(), budget(1))
	require.ErrorIs(err, ErrAlreadyInitialized)
}

func TestInitializeDefaults(t *testing.T) {
	require := require.New(t)

	args := defaultArgs()
	args.Admin = ids.ShortEmpty
	args.LeftoverRecipient = ids.ShortEmpty

	r, _ := newTestRound(t)
	sender := ids.GenerateTestShortID()
	_, err := r.Initialize(sender, proposalOpen, args, budget(10))
	require.NoError(err)

	cfg, err := r.Config()
	require.NoError(err)
	require.Equal(sender, cfg.Admin)
	require.Equal(sender, cfg.LeftoverRecipient)
}

func TestInitializeRequiresAdmin(t *testing.T) {
	require := require.New(t)

	args := defaultArgs()
	args.Admin = ids.ShortEmpty

	r, _ := newTestRound(t)
	_, err := r.Initialize(ids.ShortEmpty, proposalOpen, args, budget(10))
	require.ErrorIs(err, ErrMissingAdmin)

	_, err = r.Config()
	require.ErrorIs(err, state.ErrNotInitialized)
}

func TestInitializeFailures(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*InitializeArgs)
		block       phase.Block
		funds       []Coin
		expectedErr error
	}{
		{
			name:        "proposal window closed",
			mutate:      func(a *InitializeArgs) { a.ProposalWindow = phase.AtHeight(1) },
			block:       proposalOpen,
			funds:       budget(10),
			expectedErr: phase.ErrProposalPeriodExpired,
		},
		{
			name:        "voting window closed",
			mutate:      func(a *InitializeArgs) { a.VotingWindow = phase.AtTime(50) },
			block:       proposalOpen,
			funds:       budget(10),
			expectedErr: phase.ErrVotingPeriodExpired,
		},
		{
			name:        "no budget",
			mutate:      func(*InitializeArgs) {},
			block:       proposalOpen,
			expectedErr: ErrExpectedCoinNotSent,
		},
		{
			name:        "two coins",
			mutate:      func(*InitializeArgs) {},
			block:       proposalOpen,
			funds:       append(budget(10), budget(10)...),
			expectedErr: ErrMultipleCoinsSent,
		},
		{
			name:        "wrong asset",
			mutate:      func(*InitializeArgs) {},
			block:       proposalOpen,
			funds:       []Coin{{AssetID: ids.GenerateTestID(), Amount: 10}},
			expectedErr: ErrWrongFundCoin,
		},
		{
			name:        "unknown algorithm",
			mutate:      func(a *InitializeArgs) { a.Algorithm = 0 },
			block:       proposalOpen,
			funds:       budget(10),
			expectedErr: matching.ErrUnknownAlgorithm,
		},
		{
			name: "whitelist too large",
			mutate: func(a *InitializeArgs) {
				a.VoteWhitelist = make([]ids.ShortID, config.DefaultConfig().MaxWhitelistSize+1)
			},
			block:       proposalOpen,
			funds:       budget(10),
			expectedErr: ErrWhitelistTooLarge,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require := require.New(t)

			r, _ := newTestRound(t)
			args := defaultArgs()
			test.mutate(&args)

			_, err := r.Initialize(admin, test.block, args, test.funds)
			require.ErrorIs(err, test.expectedErr)

			_, err = r.Config()
			require.ErrorIs(err, state.ErrNotInitialized)
		})
	}
}

func TestNotInitialized(t *testing.T) {
	require := require.New(t)

	r, _ := newTestRound(t)

	_, err := r.CreateProposal(admin, proposalOpen, CreateProposalArgs{Title: "t", FundAddress: admin})
	require.ErrorIs(err, state.ErrNotInitialized)

	_, err = r.VoteProposal(admin, votingOpen, 1, budget(1))
	require.ErrorIs(err, state.ErrNotInitialized)

	_, err = r.TriggerDistribution(admin, closed)
	require.ErrorIs(err, state.ErrNotInitialized)

	_, err = r.Status(closed)
	require.ErrorIs(err, state.ErrNotInitialized)
}

func TestCreateProposal(t *testing.T) {
	require := require.New(t)

	r, _ := initializedRound(t, defaultArgs(), 1_000)

	creator := ids.GenerateTestShortID()
	fund := ids.GenerateTestShortID()
	resp, err := r.CreateProposal(creator, proposalOpen, CreateProposalArgs{
		Title:       "community garden",
		Description: "plant trees",
		Metadata:    []byte(`{"url":"https://lux.network"}`),
		FundAddress: fund,
	})
	require.NoError(err)
	require.Equal([]byte{0, 0, 0, 0, 0, 0, 0, 1}, resp.Data)
	require.Equal([]Attribute{
		{Key: "action", Value: "create_proposal"},
		{Key: "title", Value: "community garden"},
		{Key: "proposal_id", Value: "1"},
	}, resp.Attributes)

	p, err := r.ProposalByID(1)
	require.NoError(err)
	require.Equal("community garden", p.Title)
	require.Equal("plant trees", p.Description)
	require.Equal([]byte(`{"url":"https://lux.network"}`), p.Metadata)
	require.Equal(fund, p.FundAddress)
	require.Equal(creator, p.Creator)
	require.Equal(proposalOpen.Height, p.CreatedHeight)
	require.Zero(p.CollectedFunds)

	require.Equal(uint64(2), createProposal(t, r, ids.GenerateTestShortID()))
	require.Equal(uint64(3), createProposal(t, r, ids.GenerateTestShortID()))

	byFund, err := r.ProposalByFundAddress(fund)
	require.NoError(err)
	require.Equal(uint64(1), byFund.ID)

	_, err = r.ProposalByID(4)
	require.ErrorIs(err, state.ErrProposalNotFound)

	_, err = r.CreateProposal(creator, phase.Block{Height: 10}, CreateProposalArgs{Title: "late", FundAddress: fund})
	require.ErrorIs(err, phase.ErrProposalPeriodExpired)

	all, err := r.AllProposals()
	require.NoError(err)
	require.Len(all, 3)
}

func TestCreateProposalValidation(t *testing.T) {
	r, _ := initializedRound(t, defaultArgs(), 1_000)
	limits := config.DefaultConfig()

	tests := []struct {
		name string
		args CreateProposalArgs
	}{
		{
			name: "empty title",
			args: CreateProposalArgs{FundAddress: admin},
		},
		{
			name: "long title",
			args: CreateProposalArgs{Title: string(make([]byte, limits.MaxTitleLength+1)), FundAddress: admin},
		},
		{
			name: "long description",
			args: CreateProposalArgs{Title: "t", Description: string(make([]byte, limits.MaxDescriptionLength+1)), FundAddress: admin},
		},
		{
			name: "large metadata",
			args: CreateProposalArgs{Title: "t", Metadata: make([]byte, limits.MaxMetadataSize+1), FundAddress: admin},
		},
		{
			name: "empty fund address",
			args: CreateProposalArgs{Title: "t"},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := r.CreateProposal(admin, proposalOpen, test.args)
			require.ErrorIs(t, err, ErrInvalidProposal)
		})
	}

	all, err := r.AllProposals()
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestCreateProposalWhitelist(t *testing.T) {
	require := require.New(t)

	allowed := ids.GenerateTestShortID()
	args := defaultArgs()
	args.CreateProposalWhitelist = []ids.ShortID{allowed}
	r, _ := initializedRound(t, args, 1_000)

	_, err := r.CreateProposal(ids.GenerateTestShortID(), proposalOpen, CreateProposalArgs{Title: "t", FundAddress: allowed})
	require.ErrorIs(err, whitelist.ErrUnauthorized)

	status, err := r.Status(proposalOpen)
	require.NoError(err)
	require.Zero(status.NumProposals)

	resp, err := r.CreateProposal(allowed, proposalOpen, CreateProposalArgs{Title: "t", FundAddress: allowed})
	require.NoError(err)
	require.Equal(uint64(1), binary.BigEndian.Uint64(resp.Data))
}

func TestVoteProposal(t *testing.T) {
	require := require.New(t)

	r, _ := initializedRound(t, defaultArgs(), 1_000)
	id := createProposal(t, r, ids.GenerateTestShortID())

	voter := ids.GenerateTestShortID()
	resp, err := r.VoteProposal(voter, votingOpen, id, budget(40))
	require.NoError(err)
	require.Equal([]Attribute{
		{Key: "action", Value: "vote_proposal"},
		{Key: "proposal_key", Value: "1"},
		{Key: "voter", Value: voter.String()},
		{Key: "collected_fund", Value: "40"},
	}, resp.Attributes)

	resp, err = r.VoteProposal(ids.GenerateTestShortID(), votingOpen, id, budget(2))
	require.NoError(err)
	collected, ok := resp.Attribute("collected_fund")
	require.True(ok)
	require.Equal("42", collected)

	_, err = r.VoteProposal(voter, votingOpen, id, budget(100))
	require.ErrorIs(err, state.ErrAddressAlreadyVotedProject)

	p, err := r.ProposalByID(id)
	require.NoError(err)
	require.Equal(uint64(42), p.CollectedFunds)

	votes, err := r.VotesForProposal(id)
	require.NoError(err)
	require.Len(votes, 2)

	_, err = r.VotesForProposal(id + 1)
	require.ErrorIs(err, state.ErrProposalNotFound)
}

func TestVoteProposalFailures(t *testing.T) {
	tests := []struct {
		name        string
		proposalID  uint64
		block       phase.Block
		funds       []Coin
		expectedErr error
	}{
		{
			name:        "voting closed",
			proposalID:  1,
			block:       closed,
			funds:       budget(5),
			expectedErr: phase.ErrVotingPeriodExpired,
		},
		{
			name:        "no coin",
			proposalID:  1,
			block:       votingOpen,
			expectedErr: ErrExpectedCoinNotSent,
		},
		{
			name:        "zero coin",
			proposalID:  1,
			block:       votingOpen,
			funds:       budget(0),
			expectedErr: ErrExpectedCoinNotSent,
		},
		{
			name:        "wrong coin",
			proposalID:  1,
			block:       votingOpen,
			funds:       []Coin{{AssetID: ids.GenerateTestID(), Amount: 5}},
			expectedErr: ErrWrongFundCoin,
		},
		{
			name:        "multiple coins",
			proposalID:  1,
			block:       votingOpen,
			funds:       append(budget(5), budget(5)...),
			expectedErr: ErrMultipleCoinsSent,
		},
		{
			name:        "unknown proposal",
			proposalID:  2,
			block:       votingOpen,
			funds:       budget(5),
			expectedErr: state.ErrProposalNotFound,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require := require.New(t)

			r, _ := initializedRound(t, defaultArgs(), 1_000)
			createProposal(t, r, ids.GenerateTestShortID())

			_, err := r.VoteProposal(ids.GenerateTestShortID(), test.block, test.proposalID, test.funds)
			require.ErrorIs(err, test.expectedErr)

			p, err := r.ProposalByID(1)
			require.NoError(err)
			require.Zero(p.CollectedFunds)

			votes, err := r.VotesForProposal(1)
			require.NoError(err)
			require.Empty(votes)
		})
	}
}

func TestVoteWhitelist(t *testing.T) {
	require := require.New(t)

	voter := ids.GenerateTestShortID()
	args := defaultArgs()
	args.VoteWhitelist = []ids.ShortID{voter}
	r, _ := initializedRound(t, args, 1_000)
	id := createProposal(t, r, ids.GenerateTestShortID())

	_, err := r.VoteProposal(ids.GenerateTestShortID(), votingOpen, id, budget(5))
	require.ErrorIs(err, whitelist.ErrUnauthorized)

	_, err = r.VoteProposal(voter, votingOpen, id, budget(5))
	require.NoError(err)
}

func TestProposalIDsGapless(t *testing.T) {
	require := require.New(t)

	r, _ := initializedRound(t, defaultArgs(), 1_000)
	voter := ids.GenerateTestShortID()

	for expected := uint64(1); expected <= 5; expected++ {
		require.Equal(expected, createProposal(t, r, ids.GenerateTestShortID()))

		_, err := r.VoteProposal(voter, proposalOpen, expected, budget(1))
		require.NoError(err)
		_, err = r.VoteProposal(voter, proposalOpen, expected, budget(1))
		require.ErrorIs(err, state.ErrAddressAlreadyVotedProject)
		_, err = r.VoteProposal(voter, proposalOpen, expected+100, budget(1))
		require.ErrorIs(err, state.ErrProposalNotFound)
	}

	all, err := r.AllProposals()
	require.NoError(err)
	for i, p := range all {
		require.Equal(uint64(i+1), p.ID)
		require.Equal(uint64(1), p.CollectedFunds)
	}
}

func TestTriggerDistributionSingleContributions(t *testing.T) {
	require := require.New(t)

	r, db := initializedRound(t, defaultArgs(), 1_000_000)

	contributions := []uint64{7200, 12345, 4456, 60000}
	funds := make([]ids.ShortID, len(contributions))
	for i, amount := range contributions {
		funds[i] = ids.ShortID{0xf0, byte(i)}
		id := createProposal(t, r, funds[i])
		_, err := r.VoteProposal(ids.GenerateTestShortID(), votingOpen, id, budget(amount))
		require.NoError(err)
	}

	proposalsBefore, err := r.AllProposals()
	require.NoError(err)
	votesBefore, err := r.VotesForProposal(1)
	require.NoError(err)

	// Voting is still open.
	_, err = r.TriggerDistribution(admin, votingOpen)
	require.ErrorIs(err, phase.ErrVotingPeriodNotExpired)

	proposalsAfter, err := r.AllProposals()
	require.NoError(err)
	require.Equal(proposalsBefore, proposalsAfter)
	votesAfter, err := r.VotesForProposal(1)
	require.NoError(err)
	require.Equal(votesBefore, votesAfter)

	_, err = r.TriggerDistribution(ids.GenerateTestShortID(), closed)
	require.ErrorIs(err, whitelist.ErrUnauthorized)

	status, err := r.Status(closed)
	require.NoError(err)
	require.False(status.Distributed)

	resp, err := r.TriggerDistribution(admin, closed)
	require.NoError(err)

	expectedMatches := []uint64{84737, 147966, 52312, 714983}
	require.Len(resp.Payments, len(contributions)+1)
	for i, payment := range resp.Payments[:len(contributions)] {
		require.Equal(distribution.Payment{
			ProposalID: uint64(i + 1),
			Recipient:  funds[i],
			AssetID:    assetID,
			Amount:     expectedMatches[i] + contributions[i],
		}, payment)
	}
	require.Equal(distribution.Payment{
		Recipient: leftover,
		AssetID:   assetID,
		Amount:    2,
		Leftover:  true,
	}, resp.Payments[len(contributions)])

	action, ok := resp.Attribute("action")
	require.True(ok)
	require.Equal("trigger_distribution", action)
	left, ok := resp.Attribute("leftover")
	require.True(ok)
	require.Equal("2", left)

	_, err = r.TriggerDistribution(admin, closed)
	require.ErrorIs(err, ErrAlreadyDistributed)

	// The distribution flag survives a reload of the same database.
	reloaded := New(db, config.DefaultConfig(), log.NoLog{}, metrics.Noop{})
	status, err = reloaded.Status(closed)
	require.NoError(err)
	require.True(status.Distributed)
	require.Equal(closed.Height, status.DistributedAt)
}

func TestTriggerDistributionMultipleContributions(t *testing.T) {
	require := require.New(t)

	r, _ := initializedRound(t, defaultArgs(), 550_000)

	contributions := [][]uint64{
		{1200, 44999, 33},
		{30000, 58999},
		{230000, 100},
		{100000, 5},
	}
	for i, amounts := range contributions {
		id := createProposal(t, r, ids.ShortID{0xf0, byte(i)})
		for j, amount := range amounts {
			voter := ids.ShortID{byte(j + 1)}
			_, err := r.VoteProposal(voter, votingOpen, id, budget(amount))
			require.NoError(err)
		}
	}

	preview, err := r.PreviewDistribution()
	require.NoError(err)

	resp, err := r.TriggerDistribution(admin, closed)
	require.NoError(err)
	require.Equal(preview.Payments, resp.Payments)

	expectedMatches := []uint64{60212, 164602, 228537, 96648}
	for i, amounts := range contributions {
		var collected uint64
		for _, amount := range amounts {
			collected += amount
		}
		require.Equal(expectedMatches[i]+collected, resp.Payments[i].Amount)
	}
	require.Equal(uint64(1), resp.Payments[4].Amount)
	require.True(resp.Payments[4].Leftover)
}

func TestTriggerDistributionWithoutSupport(t *testing.T) {
	require := require.New(t)

	r, _ := initializedRound(t, defaultArgs(), 1_000)

	_, err := r.TriggerDistribution(admin, closed)
	require.ErrorIs(err, matching.ErrCLRConstrainRequired)

	createProposal(t, r, ids.GenerateTestShortID())
	_, err = r.TriggerDistribution(admin, closed)
	require.ErrorIs(err, matching.ErrCLRConstrainRequired)

	status, err := r.Status(closed)
	require.NoError(err)
	require.False(status.Distributed)
}

func TestTriggerDistributionZeroVoteProposal(t *testing.T) {
	require := require.New(t)

	r, _ := initializedRound(t, defaultArgs(), 1_000)
	supported := createProposal(t, r, ids.ShortID{1})
	createProposal(t, r, ids.ShortID{2})

	_, err := r.VoteProposal(ids.GenerateTestShortID(), votingOpen, supported, budget(9))
	require.NoError(err)

	resp, err := r.TriggerDistribution(admin, closed)
	require.NoError(err)
	require.Len(resp.Payments, 3)
	require.Equal(uint64(1_009), resp.Payments[0].Amount)
	require.Zero(resp.Payments[1].Amount)
	require.Zero(resp.Payments[2].Amount)
}

func TestStatus(t *testing.T) {
	require := require.New(t)

	r, _ := initializedRound(t, defaultArgs(), 1_000)
	createProposal(t, r, ids.GenerateTestShortID())

	tests := []struct {
		block    phase.Block
		expected Status
	}{
		{
			block:    proposalOpen,
			expected: Status{AcceptingProposals: true, AcceptingVotes: true, NumProposals: 1},
		},
		{
			block:    votingOpen,
			expected: Status{AcceptingVotes: true, NumProposals: 1},
		},
		{
			block:    closed,
			expected: Status{Closed: true, NumProposals: 1},
		},
	}
	for _, test := range tests {
		status, err := r.Status(test.block)
		require.NoError(err)
		require.Equal(test.expected, *status)
	}
}
