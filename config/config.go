// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"encoding/json"
	"errors"
	"math"
)

// maxEncodedString is the longest string the state codec can store.
const maxEncodedString = math.MaxUint16

var (
	ErrInvalidFieldLimit     = errors.New("invalid proposal field limit")
	ErrInvalidWhitelistLimit = errors.New("invalid whitelist limit")
	ErrInvalidNamespace      = errors.New("invalid rpc namespace")
)

// Config holds configuration for the QF VM.
type Config struct {
	// Proposal limits
	MaxTitleLength       int `json:"maxTitleLength"`       // Default: 256
	MaxDescriptionLength int `json:"maxDescriptionLength"` // Default: 8192
	MaxMetadataSize      int `json:"maxMetadataSize"`      // Default: 4096

	// Maximum entries in either whitelist
	MaxWhitelistSize int `json:"maxWhitelistSize"`

	// API configuration
	RPCNamespace   string `json:"rpcNamespace"`
	MetricsEnabled bool   `json:"metricsEnabled"`
}

// DefaultConfig returns a config with default values.
func DefaultConfig() Config {
	return Config{
		MaxTitleLength:       256,
		MaxDescriptionLength: 8192,
		MaxMetadataSize:      4096,
		MaxWhitelistSize:     10_000,
		RPCNamespace:         "qfvm",
		MetricsEnabled:       true,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, limit := range []int{c.MaxTitleLength, c.MaxDescriptionLength, c.MaxMetadataSize} {
		if limit <= 0 || limit > maxEncodedString {
			return ErrInvalidFieldLimit
		}
	}
	if c.MaxWhitelistSize <= 0 {
		return ErrInvalidWhitelistLimit
	}
	if c.RPCNamespace == "" {
		return ErrInvalidNamespace
	}
	return nil
}

// ParseConfig parses configuration from JSON bytes.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if len(data) == 0 {
		return cfg, nil
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
