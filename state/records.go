// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"github.com/luxfi/ids"

	"github.com/luxfi/qfvm/matching"
	"github.com/luxfi/qfvm/phase"
	"github.com/luxfi/qfvm/whitelist"
)

// AddressList is the persisted form of an optional whitelist.
type AddressList struct {
	Restricted bool          `serialize:"true"`
	Addresses  []ids.ShortID `serialize:"true"`
}

// NewAddressList captures [w]. A nil whitelist is stored as unrestricted.
func NewAddressList(w *whitelist.Whitelist) AddressList {
	if w == nil {
		return AddressList{}
	}
	return AddressList{
		Restricted: true,
		Addresses:  w.List(),
	}
}

// Whitelist returns nil when the list is unrestricted.
func (l AddressList) Whitelist() *whitelist.Whitelist {
	if !l.Restricted {
		return nil
	}
	return whitelist.New(l.Addresses...)
}

// RoundConfig is written once when the round is initialized.
type RoundConfig struct {
	Admin                   ids.ShortID        `serialize:"true"`
	LeftoverRecipient       ids.ShortID        `serialize:"true"`
	CreateProposalWhitelist AddressList        `serialize:"true"`
	VoteWhitelist           AddressList        `serialize:"true"`
	ProposalWindow          phase.Expiration   `serialize:"true"`
	VotingWindow            phase.Expiration   `serialize:"true"`
	BudgetAssetID           ids.ID             `serialize:"true"`
	BudgetAmount            uint64             `serialize:"true"`
	Algorithm               matching.Algorithm `serialize:"true"`
	CreatedHeight           uint64             `serialize:"true"`
}

type Proposal struct {
	ID             uint64      `serialize:"true"`
	Title          string      `serialize:"true"`
	Description    string      `serialize:"true"`
	Metadata       []byte      `serialize:"true"`
	FundAddress    ids.ShortID `serialize:"true"`
	Creator        ids.ShortID `serialize:"true"`
	CreatedHeight  uint64      `serialize:"true"`
	CollectedFunds uint64      `serialize:"true"`
}

type Vote struct {
	ProposalID uint64      `serialize:"true"`
	Voter      ids.ShortID `serialize:"true"`
	Amount     uint64      `serialize:"true"`
	Height     uint64      `serialize:"true"`
}
