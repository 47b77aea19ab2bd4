// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package matching

import (
	"fmt"

	"github.com/holiman/uint256"
)

var _ Engine = clr{}

type clr struct{}

// LiberalMatch returns the square of the sum of the floor square roots of
// [contributions]. No contributions yield zero.
func LiberalMatch(contributions []uint64) (*uint256.Int, error) {
	var (
		sum  = new(uint256.Int)
		root = new(uint256.Int)
	)
	for _, c := range contributions {
		root.Sqrt(uint256.NewInt(c))
		if _, overflow := sum.AddOverflow(sum, root); overflow {
			return nil, fmt.Errorf("%w: sum of roots", ErrOverflow)
		}
	}
	liberal, overflow := new(uint256.Int).MulOverflow(sum, sum)
	if overflow {
		return nil, fmt.Errorf("%w: liberal match", ErrOverflow)
	}
	return liberal, nil
}

// Match scales every liberal match by budget / total so the matches never
// exceed the budget. Scaling applies whether the unconstrained total is above
// or below the budget.
func (clr) Match(grants []RawGrant, budget uint64) (*Result, error) {
	if len(grants) == 0 || budget == 0 {
		return nil, ErrCLRConstrainRequired
	}

	var (
		liberals = make([]*uint256.Int, len(grants))
		total    = new(uint256.Int)
	)
	for i, g := range grants {
		liberal, err := LiberalMatch(g.Contributions)
		if err != nil {
			return nil, fmt.Errorf("proposal %d: %w", g.ProposalID, err)
		}
		liberals[i] = liberal
		if _, overflow := total.AddOverflow(total, liberal); overflow {
			return nil, fmt.Errorf("%w: raw total", ErrOverflow)
		}
	}
	if total.IsZero() {
		return nil, ErrCLRConstrainRequired
	}

	var (
		b      = uint256.NewInt(budget)
		scaled = new(uint256.Int)
		spent  uint64
		result = &Result{
			Budget:  budget,
			Matches: make([]Match, len(grants)),
		}
	)
	for i, g := range grants {
		if _, overflow := scaled.MulOverflow(liberals[i], b); overflow {
			return nil, fmt.Errorf("%w: proposal %d scaling", ErrOverflow, g.ProposalID)
		}
		scaled.Div(scaled, total)
		if !scaled.IsUint64() {
			return nil, fmt.Errorf("%w: proposal %d match", ErrOverflow, g.ProposalID)
		}

		amount := scaled.Uint64()
		next := spent + amount
		if next < spent || next > budget {
			return nil, fmt.Errorf("%w: matches exceed budget", ErrOverflow)
		}
		spent = next

		result.Matches[i] = Match{
			ProposalID: g.ProposalID,
			Recipient:  g.Recipient,
			Amount:     amount,
		}
	}
	result.Leftover = budget - spent
	return result, nil
}
