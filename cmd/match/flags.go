// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package match

import (
	"github.com/spf13/pflag"

	"github.com/luxfi/ids"

	"github.com/luxfi/qfvm/matching"
)

const (
	InputKey             = "input"
	AlgorithmKey         = "algorithm"
	LeftoverRecipientKey = "leftover-recipient"
	AssetIDKey           = "asset-id"
)

func AddFlags(flags *pflag.FlagSet) {
	flags.String(InputKey, "", "Path to the JSON round to match, or - for stdin (required)")
	flags.String(AlgorithmKey, matching.CLR.String(), "Matching algorithm to apply")
	flags.String(LeftoverRecipientKey, "", "Address receiving the leftover")
	flags.String(AssetIDKey, "", "Asset the payments are denominated in")
}

type Config struct {
	Input             string
	Algorithm         matching.Algorithm
	LeftoverRecipient ids.ShortID
	AssetID           ids.ID
}

func ParseFlags(flags *pflag.FlagSet, args []string) (*Config, error) {
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	input, err := flags.GetString(InputKey)
	if err != nil {
		return nil, err
	}

	algStr, err := flags.GetString(AlgorithmKey)
	if err != nil {
		return nil, err
	}
	var alg matching.Algorithm
	if err := alg.UnmarshalText([]byte(algStr)); err != nil {
		return nil, err
	}

	config := &Config{
		Input:     input,
		Algorithm: alg,
	}

	recipientStr, err := flags.GetString(LeftoverRecipientKey)
	if err != nil {
		return nil, err
	}
	if recipientStr != "" {
		config.LeftoverRecipient, err = ids.ShortFromString(recipientStr)
		if err != nil {
			return nil, err
		}
	}

	assetIDStr, err := flags.GetString(AssetIDKey)
	if err != nil {
		return nil, err
	}
	if assetIDStr != "" {
		config.AssetID, err = ids.FromString(assetIDStr)
		if err != nil {
			return nil, err
		}
	}
	return config, nil
}
