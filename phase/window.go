// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package phase

// CheckProposalOpen returns ErrProposalPeriodExpired once [window] has closed.
func CheckProposalOpen(window Expiration, b Block) error {
	if window.IsExpired(b) {
		return ErrProposalPeriodExpired
	}
	return nil
}

// CheckVotingOpen returns ErrVotingPeriodExpired once [window] has closed.
func CheckVotingOpen(window Expiration, b Block) error {
	if window.IsExpired(b) {
		return ErrVotingPeriodExpired
	}
	return nil
}

// CheckVotingClosed returns ErrVotingPeriodNotExpired while [window] is still
// open.
func CheckVotingClosed(window Expiration, b Block) error {
	if !window.IsExpired(b) {
		return ErrVotingPeriodNotExpired
	}
	return nil
}
