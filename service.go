// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package qfvm

import (
	"encoding/binary"
	"errors"
	"net/http"

	"github.com/luxfi/ids"
	"github.com/luxfi/utils/json"

	"github.com/luxfi/qfvm/distribution"
	"github.com/luxfi/qfvm/matching"
	"github.com/luxfi/qfvm/phase"
	"github.com/luxfi/qfvm/round"
	"github.com/luxfi/qfvm/state"
)

const idLen = 8

var errInvalidProposalID = errors.New("invalid proposal id encoding")

// Service provides the JSON-RPC API for the QF VM. Senders are trusted to be
// authenticated by the caller.
type Service struct {
	vm *VM
}

// PingArgs is the argument for the Ping API.
type PingArgs struct{}

// PingReply is the reply for the Ping API.
type PingReply struct {
	Success bool `json:"success"`
}

// Ping returns a simple health check response.
func (*Service) Ping(_ *http.Request, _ *PingArgs, reply *PingReply) error {
	reply.Success = true
	return nil
}

type APICoin struct {
	AssetID ids.ID      `json:"assetId"`
	Amount  json.Uint64 `json:"amount"`
}

type APIProposal struct {
	ID             json.Uint64 `json:"id"`
	Title          string      `json:"title"`
	Description    string      `json:"description"`
	Metadata       []byte      `json:"metadata"`
	FundAddress    ids.ShortID `json:"fundAddress"`
	Creator        ids.ShortID `json:"creator"`
	CreatedHeight  json.Uint64 `json:"createdHeight"`
	CollectedFunds json.Uint64 `json:"collectedFunds"`
}

type APIVote struct {
	ProposalID json.Uint64 `json:"proposalId"`
	Voter      ids.ShortID `json:"voter"`
	Amount     json.Uint64 `json:"amount"`
	Height     json.Uint64 `json:"height"`
}

type APIPayment struct {
	ProposalID json.Uint64 `json:"proposalId"`
	Recipient  ids.ShortID `json:"recipient"`
	AssetID    ids.ID      `json:"assetId"`
	Amount     json.Uint64 `json:"amount"`
	Leftover   bool        `json:"leftover"`
}

func newAPIProposal(p *state.Proposal) APIProposal {
	return APIProposal{
		ID:             json.Uint64(p.ID),
		Title:          p.Title,
		Description:    p.Description,
		Metadata:       p.Metadata,
		FundAddress:    p.FundAddress,
		Creator:        p.Creator,
		CreatedHeight:  json.Uint64(p.CreatedHeight),
		CollectedFunds: json.Uint64(p.CollectedFunds),
	}
}

func newAPIPayments(payments []distribution.Payment) []APIPayment {
	out := make([]APIPayment, len(payments))
	for i, p := range payments {
		out[i] = APIPayment{
			ProposalID: json.Uint64(p.ProposalID),
			Recipient:  p.Recipient,
			AssetID:    p.AssetID,
			Amount:     json.Uint64(p.Amount),
			Leftover:   p.Leftover,
		}
	}
	return out
}

func coins(funds []APICoin) []round.Coin {
	out := make([]round.Coin, len(funds))
	for i, c := range funds {
		out[i] = round.Coin{
			AssetID: c.AssetID,
			Amount:  uint64(c.Amount),
		}
	}
	return out
}

// CreateProposalArgs are the arguments for CreateProposal.
type CreateProposalArgs struct {
	Sender      ids.ShortID `json:"sender"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Metadata    []byte      `json:"metadata"`
	FundAddress ids.ShortID `json:"fundAddress"`
}

// CreateProposalReply is the reply for CreateProposal.
type CreateProposalReply struct {
	ProposalID json.Uint64       `json:"proposalId"`
	Attributes []round.Attribute `json:"attributes"`
}

// CreateProposal submits a proposal at the current block.
func (s *Service) CreateProposal(_ *http.Request, args *CreateProposalArgs, reply *CreateProposalReply) error {
	if err := s.vm.ready(); err != nil {
		return err
	}
	resp, err := s.vm.round.CreateProposal(args.Sender, s.vm.clock.Block(), round.CreateProposalArgs{
		Title:       args.Title,
		Description: args.Description,
		Metadata:    args.Metadata,
		FundAddress: args.FundAddress,
	})
	if err != nil {
		return err
	}
	if len(resp.Data) != idLen {
		return errInvalidProposalID
	}
	reply.ProposalID = json.Uint64(binary.BigEndian.Uint64(resp.Data))
	reply.Attributes = resp.Attributes
	return nil
}

// VoteProposalArgs are the arguments for VoteProposal.
type VoteProposalArgs struct {
	Sender     ids.ShortID `json:"sender"`
	ProposalID json.Uint64 `json:"proposalId"`
	Funds      []APICoin   `json:"funds"`
}

// AttributesReply carries the attributes emitted by an operation.
type AttributesReply struct {
	Attributes []round.Attribute `json:"attributes"`
}

// VoteProposal casts a vote at the current block.
func (s *Service) VoteProposal(_ *http.Request, args *VoteProposalArgs, reply *AttributesReply) error {
	if err := s.vm.ready(); err != nil {
		return err
	}
	resp, err := s.vm.round.VoteProposal(args.Sender, s.vm.clock.Block(), uint64(args.ProposalID), coins(args.Funds))
	if err != nil {
		return err
	}
	reply.Attributes = resp.Attributes
	return nil
}

// SenderArgs identifies the caller of an operation.
type SenderArgs struct {
	Sender ids.ShortID `json:"sender"`
}

// DistributionReply is the reply for TriggerDistribution.
type DistributionReply struct {
	Payments   []APIPayment      `json:"payments"`
	Attributes []round.Attribute `json:"attributes"`
}

// TriggerDistribution executes the matched distribution at the current block.
func (s *Service) TriggerDistribution(_ *http.Request, args *SenderArgs, reply *DistributionReply) error {
	if err := s.vm.ready(); err != nil {
		return err
	}
	resp, err := s.vm.round.TriggerDistribution(args.Sender, s.vm.clock.Block())
	if err != nil {
		return err
	}
	reply.Payments = newAPIPayments(resp.Payments)
	reply.Attributes = resp.Attributes
	return nil
}

// PreviewDistributionReply is the reply for PreviewDistribution.
type PreviewDistributionReply struct {
	Payments       []APIPayment `json:"payments"`
	Budget         json.Uint64  `json:"budget"`
	TotalCollected json.Uint64  `json:"totalCollected"`
	TotalMatched   json.Uint64  `json:"totalMatched"`
	Leftover       json.Uint64  `json:"leftover"`
}

// PreviewDistribution returns the payments the current votes would produce.
func (s *Service) PreviewDistribution(_ *http.Request, _ *struct{}, reply *PreviewDistributionReply) error {
	plan, err := s.vm.round.PreviewDistribution()
	if err != nil {
		return err
	}
	reply.Payments = newAPIPayments(plan.Payments)
	reply.Budget = json.Uint64(plan.Budget)
	reply.TotalCollected = json.Uint64(plan.TotalCollected)
	reply.TotalMatched = json.Uint64(plan.TotalMatched)
	reply.Leftover = json.Uint64(plan.Leftover)
	return nil
}

// GetProposalArgs are the arguments for GetProposal.
type GetProposalArgs struct {
	ID json.Uint64 `json:"id"`
}

// GetProposalReply is the reply for GetProposal.
type GetProposalReply struct {
	Proposal APIProposal `json:"proposal"`
}

// GetProposal returns a proposal by id.
func (s *Service) GetProposal(_ *http.Request, args *GetProposalArgs, reply *GetProposalReply) error {
	p, err := s.vm.round.ProposalByID(uint64(args.ID))
	if err != nil {
		return err
	}
	reply.Proposal = newAPIProposal(p)
	return nil
}

// GetProposalByFundAddressArgs are the arguments for GetProposalByFundAddress.
type GetProposalByFundAddressArgs struct {
	FundAddress ids.ShortID `json:"fundAddress"`
}

// GetProposalByFundAddress returns the first proposal paying an address.
func (s *Service) GetProposalByFundAddress(_ *http.Request, args *GetProposalByFundAddressArgs, reply *GetProposalReply) error {
	p, err := s.vm.round.ProposalByFundAddress(args.FundAddress)
	if err != nil {
		return err
	}
	reply.Proposal = newAPIProposal(p)
	return nil
}

// GetProposalsReply is the reply for GetProposals.
type GetProposalsReply struct {
	Proposals []APIProposal `json:"proposals"`
}

// GetProposals returns every proposal in ascending id order.
func (s *Service) GetProposals(_ *http.Request, _ *struct{}, reply *GetProposalsReply) error {
	proposals, err := s.vm.round.AllProposals()
	if err != nil {
		return err
	}
	reply.Proposals = make([]APIProposal, len(proposals))
	for i, p := range proposals {
		reply.Proposals[i] = newAPIProposal(p)
	}
	return nil
}

// GetVotesReply is the reply for GetVotes.
type GetVotesReply struct {
	Votes []APIVote `json:"votes"`
}

// GetVotes returns the votes cast for a proposal.
func (s *Service) GetVotes(_ *http.Request, args *GetProposalArgs, reply *GetVotesReply) error {
	votes, err := s.vm.round.VotesForProposal(uint64(args.ID))
	if err != nil {
		return err
	}
	reply.Votes = make([]APIVote, len(votes))
	for i, v := range votes {
		reply.Votes[i] = APIVote{
			ProposalID: json.Uint64(v.ProposalID),
			Voter:      v.Voter,
			Amount:     json.Uint64(v.Amount),
			Height:     json.Uint64(v.Height),
		}
	}
	return nil
}

// GetConfigReply is the reply for GetConfig. Nil whitelists are unrestricted.
type GetConfigReply struct {
	Admin                   ids.ShortID        `json:"admin"`
	LeftoverRecipient       ids.ShortID        `json:"leftoverRecipient"`
	CreateProposalWhitelist []ids.ShortID      `json:"createProposalWhitelist"`
	VoteWhitelist           []ids.ShortID      `json:"voteWhitelist"`
	ProposalWindow          phase.Expiration   `json:"proposalWindow"`
	VotingWindow            phase.Expiration   `json:"votingWindow"`
	Budget                  APICoin            `json:"budget"`
	Algorithm               matching.Algorithm `json:"algorithm"`
}

// GetConfig returns the round configuration.
func (s *Service) GetConfig(_ *http.Request, _ *struct{}, reply *GetConfigReply) error {
	cfg, err := s.vm.round.Config()
	if err != nil {
		return err
	}
	reply.Admin = cfg.Admin
	reply.LeftoverRecipient = cfg.LeftoverRecipient
	reply.CreateProposalWhitelist = cfg.CreateProposalWhitelist.Whitelist().List()
	reply.VoteWhitelist = cfg.VoteWhitelist.Whitelist().List()
	reply.ProposalWindow = cfg.ProposalWindow
	reply.VotingWindow = cfg.VotingWindow
	reply.Budget = APICoin{
		AssetID: cfg.BudgetAssetID,
		Amount:  json.Uint64(cfg.BudgetAmount),
	}
	reply.Algorithm = cfg.Algorithm
	return nil
}

// GetStatusReply is the reply for GetStatus.
type GetStatusReply struct {
	round.Status
	Bootstrapped bool        `json:"bootstrapped"`
	Height       json.Uint64 `json:"height"`
	Time         json.Uint64 `json:"time"`
}

// GetStatus returns the round phase at the current block.
func (s *Service) GetStatus(_ *http.Request, _ *struct{}, reply *GetStatusReply) error {
	block := s.vm.clock.Block()
	status, err := s.vm.round.Status(block)
	if err != nil {
		return err
	}
	reply.Status = *status
	reply.Bootstrapped = s.vm.IsBootstrapped()
	reply.Height = json.Uint64(block.Height)
	reply.Time = json.Uint64(block.Time)
	return nil
}
