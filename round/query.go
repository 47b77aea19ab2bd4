// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package round

import (
	"github.com/luxfi/ids"

	"github.com/luxfi/qfvm/distribution"
	"github.com/luxfi/qfvm/phase"
	"github.com/luxfi/qfvm/state"
)

// Status is the phase of the round derived from its windows and the block.
type Status struct {
	AcceptingProposals bool   `json:"acceptingProposals"`
	AcceptingVotes     bool   `json:"acceptingVotes"`
	Closed             bool   `json:"closed"`
	Distributed        bool   `json:"distributed"`
	DistributedAt      uint64 `json:"distributedAt,omitempty"`
	NumProposals       uint64 `json:"numProposals"`
}

func (r *Round) Config() (*state.RoundConfig, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return r.state.GetConfig()
}

func (r *Round) ProposalByID(id uint64) (*state.Proposal, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return r.state.GetProposal(id)
}

func (r *Round) ProposalByFundAddress(addr ids.ShortID) (*state.Proposal, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return r.state.ProposalByFundAddress(addr)
}

// AllProposals returns every proposal in ascending id order.
func (r *Round) AllProposals() ([]*state.Proposal, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return r.state.Proposals()
}

// VotesForProposal returns the votes cast for [id] ordered by voter.
func (r *Round) VotesForProposal(id uint64) ([]*state.Vote, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	if _, err := r.state.GetProposal(id); err != nil {
		return nil, err
	}
	return r.state.Votes(id)
}

func (r *Round) Status(block phase.Block) (*Status, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	cfg, err := r.state.GetConfig()
	if err != nil {
		return nil, err
	}
	numProposals, err := r.state.LastProposalID()
	if err != nil {
		return nil, err
	}
	distributedAt, distributed, err := r.state.DistributedAt()
	if err != nil {
		return nil, err
	}

	votingClosed := cfg.VotingWindow.IsExpired(block)
	return &Status{
		AcceptingProposals: !cfg.ProposalWindow.IsExpired(block),
		AcceptingVotes:     !votingClosed,
		Closed:             votingClosed,
		Distributed:        distributed,
		DistributedAt:      distributedAt,
		NumProposals:       numProposals,
	}, nil
}

// PreviewDistribution computes the payments the current votes would produce
// without checking windows or recording anything.
func (r *Round) PreviewDistribution() (*distribution.Plan, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	cfg, err := r.state.GetConfig()
	if err != nil {
		return nil, err
	}
	return r.plan(cfg)
}
