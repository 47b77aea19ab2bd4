// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package round implements the lifecycle of a quadratic funding round:
// proposal submission, voting, and the matched distribution of the budget.
package round

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/luxfi/database"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/math"

	"github.com/luxfi/qfvm/config"
	"github.com/luxfi/qfvm/distribution"
	"github.com/luxfi/qfvm/matching"
	"github.com/luxfi/qfvm/metrics"
	"github.com/luxfi/qfvm/phase"
	"github.com/luxfi/qfvm/state"
	"github.com/luxfi/qfvm/whitelist"
)

const (
	actionInitialize          = "initialize_round"
	actionCreateProposal      = "create_proposal"
	actionVoteProposal        = "vote_proposal"
	actionTriggerDistribution = "trigger_distribution"
)

var (
	ErrAlreadyInitialized = errors.New("round already initialized")
	ErrAlreadyDistributed = errors.New("distribution already triggered")
	ErrInvalidProposal    = errors.New("invalid proposal")
	ErrWhitelistTooLarge  = errors.New("whitelist too large")
	ErrMissingAdmin       = errors.New("round admin is empty")
)

// InitializeArgs configures a new round. A nil whitelist leaves the operation
// open to every address. An empty admin defaults to the sender and an empty
// leftover recipient defaults to the admin.
type InitializeArgs struct {
	Admin                   ids.ShortID        `json:"admin"`
	LeftoverRecipient       ids.ShortID        `json:"leftoverRecipient"`
	CreateProposalWhitelist []ids.ShortID      `json:"createProposalWhitelist"`
	VoteWhitelist           []ids.ShortID      `json:"voteWhitelist"`
	ProposalWindow          phase.Expiration   `json:"proposalWindow"`
	VotingWindow            phase.Expiration   `json:"votingWindow"`
	BudgetAssetID           ids.ID             `json:"budgetAssetId"`
	Algorithm               matching.Algorithm `json:"algorithm"`
}

type CreateProposalArgs struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Metadata    []byte      `json:"metadata"`
	FundAddress ids.ShortID `json:"fundAddress"`
}

// Round serializes every operation against a single round's state. Each
// mutating operation either commits all of its writes or none of them.
type Round struct {
	lock    sync.RWMutex
	config  config.Config
	log     log.Logger
	metrics metrics.Metrics
	state   *state.State
}

func New(db database.Database, cfg config.Config, logger log.Logger, m metrics.Metrics) *Round {
	return &Round{
		config:  cfg,
		log:     logger,
		metrics: m,
		state:   state.New(db),
	}
}

// Initialize stores the round configuration. [funds] must hold exactly one
// coin of the budget asset; its amount becomes the matching budget.
func (r *Round) Initialize(sender ids.ShortID, block phase.Block, args InitializeArgs, funds []Coin) (*Response, error) {
	return r.execute(actionInitialize, func() (*Response, error) {
		initialized, err := r.state.IsInitialized()
		if err != nil {
			return nil, err
		}
		if initialized {
			return nil, ErrAlreadyInitialized
		}

		if err := r.verifyInitializeArgs(&args); err != nil {
			return nil, err
		}
		if err := phase.CheckProposalOpen(args.ProposalWindow, block); err != nil {
			return nil, err
		}
		if err := phase.CheckVotingOpen(args.VotingWindow, block); err != nil {
			return nil, err
		}
		budget, err := fundingCoin(funds, args.BudgetAssetID)
		if err != nil {
			return nil, err
		}

		admin := args.Admin
		if admin == ids.ShortEmpty {
			admin = sender
		}
		if admin == ids.ShortEmpty {
			return nil, ErrMissingAdmin
		}
		leftoverRecipient := args.LeftoverRecipient
		if leftoverRecipient == ids.ShortEmpty {
			leftoverRecipient = admin
		}

		cfg := &state.RoundConfig{
			Admin:                   admin,
			LeftoverRecipient:       leftoverRecipient,
			CreateProposalWhitelist: state.NewAddressList(whitelist.FromList(args.CreateProposalWhitelist)),
			VoteWhitelist:           state.NewAddressList(whitelist.FromList(args.VoteWhitelist)),
			ProposalWindow:          args.ProposalWindow,
			VotingWindow:            args.VotingWindow,
			BudgetAssetID:           budget.AssetID,
			BudgetAmount:            budget.Amount,
			Algorithm:               args.Algorithm,
			CreatedHeight:           block.Height,
		}
		if err := r.state.PutConfig(cfg); err != nil {
			return nil, err
		}

		r.log.Info("initialized round",
			log.Stringer("admin", admin),
			log.Stringer("budgetAssetID", budget.AssetID),
			log.Uint64("budget", budget.Amount),
			log.Stringer("proposalWindow", args.ProposalWindow),
			log.Stringer("votingWindow", args.VotingWindow),
			log.Stringer("algorithm", args.Algorithm),
		)
		return &Response{
			Attributes: []Attribute{
				{Key: "action", Value: actionInitialize},
				{Key: "budget", Value: strconv.FormatUint(budget.Amount, 10)},
			},
		}, nil
	})
}

// CreateProposal registers a proposal and returns its id, big-endian encoded,
// as the response data.
func (r *Round) CreateProposal(sender ids.ShortID, block phase.Block, args CreateProposalArgs) (*Response, error) {
	return r.execute(actionCreateProposal, func() (*Response, error) {
		cfg, err := r.state.GetConfig()
		if err != nil {
			return nil, err
		}
		if err := cfg.CreateProposalWhitelist.Whitelist().Verify(sender); err != nil {
			return nil, err
		}
		if err := phase.CheckProposalOpen(cfg.ProposalWindow, block); err != nil {
			return nil, err
		}
		if err := r.verifyProposalArgs(&args); err != nil {
			return nil, err
		}

		id, err := r.state.NextProposalID()
		if err != nil {
			return nil, err
		}
		p := &state.Proposal{
			ID:            id,
			Title:         args.Title,
			Description:   args.Description,
			Metadata:      args.Metadata,
			FundAddress:   args.FundAddress,
			Creator:       sender,
			CreatedHeight: block.Height,
		}
		if err := r.state.PutProposal(p); err != nil {
			return nil, err
		}

		r.metrics.MarkProposalCreated()
		r.log.Info("created proposal",
			log.Uint64("proposalID", id),
			log.String("title", args.Title),
			log.Stringer("fundAddress", args.FundAddress),
		)
		return &Response{
			Data: database.PackUInt64(id),
			Attributes: []Attribute{
				{Key: "action", Value: actionCreateProposal},
				{Key: "title", Value: args.Title},
				{Key: "proposal_id", Value: strconv.FormatUint(id, 10)},
			},
		}, nil
	})
}

// VoteProposal records the sender's contribution to a proposal. Each address
// may vote at most once per proposal.
func (r *Round) VoteProposal(sender ids.ShortID, block phase.Block, proposalID uint64, funds []Coin) (*Response, error) {
	return r.execute(actionVoteProposal, func() (*Response, error) {
		cfg, err := r.state.GetConfig()
		if err != nil {
			return nil, err
		}
		if err := cfg.VoteWhitelist.Whitelist().Verify(sender); err != nil {
			return nil, err
		}
		if err := phase.CheckVotingOpen(cfg.VotingWindow, block); err != nil {
			return nil, err
		}
		coin, err := fundingCoin(funds, cfg.BudgetAssetID)
		if err != nil {
			return nil, err
		}

		p, err := r.state.GetProposal(proposalID)
		if err != nil {
			return nil, err
		}
		err = r.state.PutVote(&state.Vote{
			ProposalID: proposalID,
			Voter:      sender,
			Amount:     coin.Amount,
			Height:     block.Height,
		})
		if err != nil {
			return nil, err
		}

		p.CollectedFunds, err = math.Add(p.CollectedFunds, coin.Amount)
		if err != nil {
			return nil, fmt.Errorf("%w: proposal %d collected funds: %w", matching.ErrOverflow, proposalID, err)
		}
		if err := r.state.PutProposal(p); err != nil {
			return nil, err
		}

		r.metrics.MarkVoteAccepted(coin.Amount)
		r.log.Debug("accepted vote",
			log.Uint64("proposalID", proposalID),
			log.Stringer("voter", sender),
			log.Uint64("amount", coin.Amount),
			log.Uint64("collected", p.CollectedFunds),
		)
		return &Response{
			Attributes: []Attribute{
				{Key: "action", Value: actionVoteProposal},
				{Key: "proposal_key", Value: strconv.FormatUint(proposalID, 10)},
				{Key: "voter", Value: sender.String()},
				{Key: "collected_fund", Value: strconv.FormatUint(p.CollectedFunds, 10)},
			},
		}, nil
	})
}

// TriggerDistribution computes the matched payouts once voting has closed.
// Only the admin may trigger it and it runs at most once per round.
func (r *Round) TriggerDistribution(sender ids.ShortID, block phase.Block) (*Response, error) {
	return r.execute(actionTriggerDistribution, func() (*Response, error) {
		cfg, err := r.state.GetConfig()
		if err != nil {
			return nil, err
		}
		if err := phase.CheckVotingClosed(cfg.VotingWindow, block); err != nil {
			return nil, err
		}
		if sender != cfg.Admin {
			return nil, whitelist.ErrUnauthorized
		}
		distributed, err := r.state.IsDistributed()
		if err != nil {
			return nil, err
		}
		if distributed {
			return nil, ErrAlreadyDistributed
		}

		plan, err := r.plan(cfg)
		if err != nil {
			return nil, err
		}
		if err := r.state.MarkDistributed(block.Height); err != nil {
			return nil, err
		}

		r.metrics.MarkDistribution(plan)
		r.log.Info("triggered distribution",
			log.Int("numPayments", len(plan.Payments)),
			log.Uint64("budget", plan.Budget),
			log.Uint64("matched", plan.TotalMatched),
			log.Uint64("collected", plan.TotalCollected),
			log.Uint64("leftover", plan.Leftover),
		)
		return &Response{
			Payments: plan.Payments,
			Attributes: []Attribute{
				{Key: "action", Value: actionTriggerDistribution},
				{Key: "budget", Value: strconv.FormatUint(plan.Budget, 10)},
				{Key: "leftover", Value: strconv.FormatUint(plan.Leftover, 10)},
			},
		}, nil
	})
}

// plan aggregates every proposal's votes and runs the configured matching
// algorithm over them.
func (r *Round) plan(cfg *state.RoundConfig) (*distribution.Plan, error) {
	proposals, err := r.state.Proposals()
	if err != nil {
		return nil, err
	}

	grants := make([]matching.RawGrant, 0, len(proposals))
	for _, p := range proposals {
		votes, err := r.state.Votes(p.ID)
		if err != nil {
			return nil, err
		}
		contributions := make([]uint64, len(votes))
		for i, v := range votes {
			contributions[i] = v.Amount
		}

		grant, err := matching.Aggregate(p.ID, p.FundAddress, p.CollectedFunds, contributions)
		if err != nil {
			return nil, err
		}
		grants = append(grants, grant)
	}

	engine, err := matching.New(cfg.Algorithm)
	if err != nil {
		return nil, err
	}
	result, err := engine.Match(grants, cfg.BudgetAmount)
	if err != nil {
		return nil, err
	}
	return distribution.Build(result, grants, cfg.LeftoverRecipient, cfg.BudgetAssetID)
}

// execute runs [fn] under the write lock, committing its writes on success and
// discarding them on failure.
func (r *Round) execute(op string, fn func() (*Response, error)) (*Response, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	resp, err := fn()
	if err == nil {
		err = r.state.Commit()
	}
	if err != nil {
		r.state.Abort()
		r.metrics.MarkFailure(op)
		if isFatal(err) {
			r.log.Error("aborted operation on invariant violation",
				log.String("op", op),
				log.Err(err),
			)
		}
		return nil, err
	}
	return resp, nil
}

func isFatal(err error) bool {
	return errors.Is(err, matching.ErrOverflow) ||
		errors.Is(err, matching.ErrCollectedMismatch) ||
		errors.Is(err, distribution.ErrConservationViolated) ||
		errors.Is(err, distribution.ErrGrantCountMismatch) ||
		errors.Is(err, distribution.ErrGrantOrderMismatch)
}

func (r *Round) verifyInitializeArgs(args *InitializeArgs) error {
	if err := args.Algorithm.Verify(); err != nil {
		return err
	}
	if err := args.ProposalWindow.Verify(); err != nil {
		return fmt.Errorf("proposal window: %w", err)
	}
	if err := args.VotingWindow.Verify(); err != nil {
		return fmt.Errorf("voting window: %w", err)
	}
	if n := len(args.CreateProposalWhitelist); n > r.config.MaxWhitelistSize {
		return fmt.Errorf("%w: create proposal whitelist has %d entries", ErrWhitelistTooLarge, n)
	}
	if n := len(args.VoteWhitelist); n > r.config.MaxWhitelistSize {
		return fmt.Errorf("%w: vote whitelist has %d entries", ErrWhitelistTooLarge, n)
	}
	return nil
}

func (r *Round) verifyProposalArgs(args *CreateProposalArgs) error {
	switch {
	case args.Title == "":
		return fmt.Errorf("%w: empty title", ErrInvalidProposal)
	case len(args.Title) > r.config.MaxTitleLength:
		return fmt.Errorf("%w: title exceeds %d bytes", ErrInvalidProposal, r.config.MaxTitleLength)
	case len(args.Description) > r.config.MaxDescriptionLength:
		return fmt.Errorf("%w: description exceeds %d bytes", ErrInvalidProposal, r.config.MaxDescriptionLength)
	case len(args.Metadata) > r.config.MaxMetadataSize:
		return fmt.Errorf("%w: metadata exceeds %d bytes", ErrInvalidProposal, r.config.MaxMetadataSize)
	case args.FundAddress == ids.ShortEmpty:
		return fmt.Errorf("%w: empty fund address", ErrInvalidProposal)
	default:
		return nil
	}
}
