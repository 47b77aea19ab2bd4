// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package whitelist implements optional address allow-lists.
package whitelist

import (
	"bytes"
	"errors"
	"slices"

	"github.com/luxfi/ids"
	"github.com/luxfi/math/set"
)

var ErrUnauthorized = errors.New("unauthorized")

// Whitelist is an allow-list of addresses. A nil *Whitelist admits everyone.
type Whitelist struct {
	addrs set.Set[ids.ShortID]
}

// New returns a whitelist holding [addrs]. Duplicates collapse.
func New(addrs ...ids.ShortID) *Whitelist {
	return &Whitelist{addrs: set.Of(addrs...)}
}

// FromList returns nil for a nil list and a whitelist otherwise. An empty,
// non-nil list yields a whitelist that admits nobody.
func FromList(addrs []ids.ShortID) *Whitelist {
	if addrs == nil {
		return nil
	}
	return New(addrs...)
}

// Verify returns ErrUnauthorized if [addr] is not admitted.
func (w *Whitelist) Verify(addr ids.ShortID) error {
	if w == nil || w.addrs.Contains(addr) {
		return nil
	}
	return ErrUnauthorized
}

// Len returns the number of distinct entries.
func (w *Whitelist) Len() int {
	if w == nil {
		return 0
	}
	return w.addrs.Len()
}

// List returns the entries in byte order, or nil for an unrestricted list.
func (w *Whitelist) List() []ids.ShortID {
	if w == nil {
		return nil
	}
	addrs := w.addrs.List()
	slices.SortFunc(addrs, func(a, b ids.ShortID) int {
		return bytes.Compare(a[:], b[:])
	})
	return addrs
}
