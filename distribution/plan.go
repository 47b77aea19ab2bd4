// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package distribution turns matching results into payment instructions.
package distribution

import (
	"errors"
	"fmt"

	"github.com/luxfi/ids"
	"github.com/luxfi/math"

	"github.com/luxfi/qfvm/matching"
)

var (
	ErrConservationViolated = errors.New("distribution does not conserve the matching budget")
	ErrGrantCountMismatch   = errors.New("grant and match counts differ")
	ErrGrantOrderMismatch   = errors.New("grant and match order differ")
)

// Payment is a single transfer intent for the host ledger to execute.
type Payment struct {
	// ProposalID is zero for the leftover payment.
	ProposalID uint64      `json:"proposalId"`
	Recipient  ids.ShortID `json:"recipient"`
	AssetID    ids.ID      `json:"assetId"`
	Amount     uint64      `json:"amount"`
	Leftover   bool        `json:"leftover"`
}

// Plan is the ordered set of payments produced by a distribution.
type Plan struct {
	Payments       []Payment `json:"payments"`
	Budget         uint64    `json:"budget"`
	TotalCollected uint64    `json:"totalCollected"`
	TotalMatched   uint64    `json:"totalMatched"`
	Leftover       uint64    `json:"leftover"`
}

// Build pays every grant its collected funds plus its match, in grant order,
// followed by the leftover to [leftoverRecipient]. The leftover payment is
// always present, even when zero.
func Build(
	result *matching.Result,
	grants []matching.RawGrant,
	leftoverRecipient ids.ShortID,
	assetID ids.ID,
) (*Plan, error) {
	if len(result.Matches) != len(grants) {
		return nil, fmt.Errorf("%w: %d grants, %d matches",
			ErrGrantCountMismatch,
			len(grants),
			len(result.Matches),
		)
	}

	plan := &Plan{
		Payments: make([]Payment, 0, len(grants)+1),
		Budget:   result.Budget,
		Leftover: result.Leftover,
	}

	var (
		paid uint64
		err  error
	)
	for i, g := range grants {
		m := result.Matches[i]
		if m.ProposalID != g.ProposalID {
			return nil, fmt.Errorf("%w: grant %d, match %d",
				ErrGrantOrderMismatch,
				g.ProposalID,
				m.ProposalID,
			)
		}

		amount, err := math.Add(m.Amount, g.Collected)
		if err != nil {
			return nil, fmt.Errorf("%w: proposal %d: %w", matching.ErrOverflow, g.ProposalID, err)
		}
		plan.TotalCollected, err = math.Add(plan.TotalCollected, g.Collected)
		if err != nil {
			return nil, fmt.Errorf("%w: collected: %w", matching.ErrOverflow, err)
		}
		paid, err = math.Add(paid, amount)
		if err != nil {
			return nil, fmt.Errorf("%w: payments: %w", matching.ErrOverflow, err)
		}

		plan.Payments = append(plan.Payments, Payment{
			ProposalID: g.ProposalID,
			Recipient:  g.Recipient,
			AssetID:    assetID,
			Amount:     amount,
		})
	}
	plan.Payments = append(plan.Payments, Payment{
		Recipient: leftoverRecipient,
		AssetID:   assetID,
		Amount:    result.Leftover,
		Leftover:  true,
	})

	plan.TotalMatched = paid - plan.TotalCollected
	if err = verifyConservation(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// Total returns the sum of all payments, including the leftover.
func (p *Plan) Total() (uint64, error) {
	var total uint64
	for _, payment := range p.Payments {
		var err error
		total, err = math.Add(total, payment.Amount)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", matching.ErrOverflow, err)
		}
	}
	return total, nil
}

// verifyConservation checks sum(amount) - sum(collected) + leftover == budget.
func verifyConservation(p *Plan) error {
	matched, err := math.Add(p.TotalMatched, p.Leftover)
	if err != nil || matched != p.Budget {
		return fmt.Errorf("%w: matched %d + leftover %d != budget %d",
			ErrConservationViolated,
			p.TotalMatched,
			p.Leftover,
			p.Budget,
		)
	}
	return nil
}
