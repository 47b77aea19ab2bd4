// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package qfvm

// State is the lifecycle state of a VM instance.
type State uint8

const (
	// Unknown is the state before Initialize completes.
	Unknown State = iota

	// Bootstrapping indicates the VM is replaying existing round state.
	Bootstrapping

	// NormalOp indicates the VM is accepting operations.
	NormalOp
)

func (s State) String() string {
	switch s {
	case Bootstrapping:
		return "Bootstrapping"
	case NormalOp:
		return "NormalOp"
	default:
		return "Unknown"
	}
}
