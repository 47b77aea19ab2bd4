// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package phase

import (
	"sync"
	"time"

	"github.com/luxfi/timer/mockable"
)

// Clock pairs a mockable wall clock with a block height. It is the block
// oracle that windows are evaluated against and is safe for concurrent use.
//
// Until Set is called the time follows wall time and the height only moves
// through SetHeight and Advance.
type Clock struct {
	mu     sync.RWMutex
	clock  mockable.Clock
	faked  bool
	height uint64
}

// Set pins the time on the clock.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.faked = true
	c.clock.Set(t)
}

// Sync follows wall time again.
func (c *Clock) Sync() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.faked = false
	c.clock.Sync()
}

func (c *Clock) SetHeight(height uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.height = height
}

// Advance moves the height forward by [blocks] and, when the time is pinned,
// the time forward by [d].
func (c *Clock) Advance(blocks uint64, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.height += blocks
	if c.faked && d > 0 {
		c.clock.Set(c.clock.Time().Add(d))
	}
}

func (c *Clock) Time() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.clock.Time()
}

func (c *Clock) Height() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.height
}

// Block returns a consistent snapshot of height and time.
func (c *Clock) Block() Block {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Block{
		Height: c.height,
		Time:   uint64(max(c.clock.Time().Unix(), 0)),
	}
}
