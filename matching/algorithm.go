// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package matching computes budget-constrained quadratic funding matches.
package matching

import (
	"errors"
	"fmt"
	"strings"

	"github.com/luxfi/ids"
)

var (
	ErrUnknownAlgorithm     = errors.New("unknown matching algorithm")
	ErrCLRConstrainRequired = errors.New("CLR requires a budget constraint and a non-empty support base")
	ErrOverflow             = errors.New("matching arithmetic overflow")
	ErrCollectedMismatch    = errors.New("collected funds do not match vote total")
)

// Algorithm identifies a matching formula.
type Algorithm uint8

const (
	// CLR is capital-constrained liberal radicalism.
	CLR Algorithm = iota + 1
)

func (a Algorithm) String() string {
	switch a {
	case CLR:
		return "clr"
	default:
		return fmt.Sprintf("algorithm(%d)", uint8(a))
	}
}

func (a Algorithm) MarshalText() ([]byte, error) {
	if err := a.Verify(); err != nil {
		return nil, err
	}
	return []byte(a.String()), nil
}

func (a *Algorithm) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "clr":
		*a = CLR
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAlgorithm, text)
	}
}

// Verify returns ErrUnknownAlgorithm for anything outside the defined set.
func (a Algorithm) Verify() error {
	if a == CLR {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownAlgorithm, a)
}

// RawGrant is the matching input for a single proposal.
type RawGrant struct {
	ProposalID    uint64      `json:"proposalId"`
	Recipient     ids.ShortID `json:"recipient"`
	Contributions []uint64    `json:"contributions"`
	Collected     uint64      `json:"collected"`
}

// Match is the matching output for a single proposal.
type Match struct {
	ProposalID uint64
	Recipient  ids.ShortID
	Amount     uint64
}

// Result is the output of a matching run. Matches are in input order.
type Result struct {
	Budget   uint64
	Matches  []Match
	Leftover uint64
}

// Engine computes matches for a set of grants under a budget.
type Engine interface {
	Match(grants []RawGrant, budget uint64) (*Result, error)
}

// New returns the engine for [alg].
func New(alg Algorithm) (Engine, error) {
	switch alg {
	case CLR:
		return clr{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAlgorithm, alg)
	}
}
