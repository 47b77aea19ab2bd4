// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package qfvm

import (
	"github.com/luxfi/log"

	"github.com/luxfi/qfvm/config"
)

// Factory creates QF VM instances.
type Factory struct {
	config.Config
}

// New returns an uninitialized VM. A zero Config selects the defaults and a
// nil logger discards output.
func (f *Factory) New(logger log.Logger) (interface{}, error) {
	cfg := f.Config
	if cfg == (config.Config{}) {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NoLog{}
	}
	return &VM{
		Config: cfg,
		log:    logger,
	}, nil
}

// NewFactory creates a new QF VM factory with the given configuration.
func NewFactory(cfg config.Config) *Factory {
	return &Factory{Config: cfg}
}
