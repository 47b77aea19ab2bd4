// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package match

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/luxfi/ids"

	"github.com/luxfi/qfvm/distribution"
	"github.com/luxfi/qfvm/matching"
)

var errMissingInput = errors.New("missing --input")

// Round is the offline description of a round to recompute.
type Round struct {
	Budget uint64  `json:"budget"`
	Grants []Grant `json:"grants"`
}

type Grant struct {
	Recipient     ids.ShortID `json:"recipient"`
	Contributions []uint64    `json:"contributions"`
}

func Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "match",
		Short: "Recomputes the matched distribution of a round from its contributions",
		RunE:  matchFunc,
	}
	flags := c.Flags()
	AddFlags(flags)
	return c
}

func matchFunc(c *cobra.Command, args []string) error {
	flags := c.Flags()
	config, err := ParseFlags(flags, args)
	if err != nil {
		return err
	}
	if config.Input == "" {
		return errMissingInput
	}

	var r io.Reader = c.InOrStdin()
	if config.Input != "-" {
		f, err := os.Open(config.Input)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	var round Round
	if err := json.NewDecoder(r).Decode(&round); err != nil {
		return fmt.Errorf("failed to decode round: %w", err)
	}

	plan, err := Run(config, &round)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(c.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(plan)
}

// Run matches [round] and returns the resulting payments. Proposal ids are
// assigned from 1 in input order.
func Run(config *Config, round *Round) (*distribution.Plan, error) {
	grants := make([]matching.RawGrant, len(round.Grants))
	for i, g := range round.Grants {
		collected, err := matching.Sum(g.Contributions)
		if err != nil {
			return nil, err
		}
		grants[i], err = matching.Aggregate(uint64(i+1), g.Recipient, collected, g.Contributions)
		if err != nil {
			return nil, err
		}
	}

	engine, err := matching.New(config.Algorithm)
	if err != nil {
		return nil, err
	}
	result, err := engine.Match(grants, round.Budget)
	if err != nil {
		return nil, err
	}
	return distribution.Build(result, grants, config.LeftoverRecipient, config.AssetID)
}
