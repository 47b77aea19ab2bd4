// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package round

import (
	"errors"
	"fmt"

	"github.com/luxfi/ids"
)

var (
	ErrExpectedCoinNotSent = errors.New("expected coin not sent")
	ErrMultipleCoinsSent   = errors.New("multiple coins sent")
	ErrWrongFundCoin       = errors.New("wrong fund coin")
)

// Coin is an amount of a single asset attached to an operation.
type Coin struct {
	AssetID ids.ID `json:"assetId"`
	Amount  uint64 `json:"amount"`
}

// fundingCoin returns the single non-zero coin of [assetID] attached to an
// operation.
func fundingCoin(funds []Coin, assetID ids.ID) (Coin, error) {
	switch len(funds) {
	case 0:
		return Coin{}, fmt.Errorf("%w (expected: %s)", ErrExpectedCoinNotSent, assetID)
	case 1:
	default:
		return Coin{}, fmt.Errorf("%w: %d coins", ErrMultipleCoinsSent, len(funds))
	}

	coin := funds[0]
	if coin.AssetID != assetID {
		return Coin{}, fmt.Errorf("%w: sent %s, expected %s", ErrWrongFundCoin, coin.AssetID, assetID)
	}
	if coin.Amount == 0 {
		return Coin{}, fmt.Errorf("%w (expected: %s)", ErrExpectedCoinNotSent, assetID)
	}
	return coin, nil
}
