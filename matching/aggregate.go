// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package matching

import (
	"fmt"

	"github.com/luxfi/ids"
	"github.com/luxfi/math"
)

// Aggregate builds the grant for a proposal from its persisted vote amounts.
// The running total stored on the proposal must equal the sum of the votes.
func Aggregate(proposalID uint64, recipient ids.ShortID, collected uint64, contributions []uint64) (RawGrant, error) {
	sum, err := Sum(contributions)
	if err != nil {
		return RawGrant{}, fmt.Errorf("proposal %d: %w", proposalID, err)
	}
	if sum != collected {
		return RawGrant{}, fmt.Errorf("%w: proposal %d has %d collected but votes sum to %d",
			ErrCollectedMismatch,
			proposalID,
			collected,
			sum,
		)
	}
	return RawGrant{
		ProposalID:    proposalID,
		Recipient:     recipient,
		Contributions: contributions,
		Collected:     collected,
	}, nil
}

// Sum adds [values], failing with ErrOverflow if the total exceeds a uint64.
func Sum(values []uint64) (uint64, error) {
	var (
		total uint64
		err   error
	)
	for _, v := range values {
		total, err = math.Add(total, v)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrOverflow, err)
		}
	}
	return total, nil
}
