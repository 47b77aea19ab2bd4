// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package qfvm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/luxfi/ids"

	"github.com/luxfi/qfvm/round"
)

var errMissingCreator = errors.New("genesis creator is empty")

// Genesis opens a round when the chain starts. Budget is the coin the creator
// attaches as the matching pool.
type Genesis struct {
	Creator ids.ShortID          `json:"creator"`
	Height  uint64               `json:"height"`
	Round   round.InitializeArgs `json:"round"`
	Budget  round.Coin           `json:"budget"`
}

// ParseGenesis decodes and sanity checks genesis bytes. Unknown keys are
// rejected.
func ParseGenesis(b []byte) (*Genesis, error) {
	g := &Genesis{}
	d := json.NewDecoder(bytes.NewReader(b))
	d.DisallowUnknownFields()
	if err := d.Decode(g); err != nil {
		return nil, fmt.Errorf("failed to unmarshal genesis: %w", err)
	}
	if g.Creator == ids.ShortEmpty {
		return nil, errMissingCreator
	}
	return g, nil
}
