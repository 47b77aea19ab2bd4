// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package serve

import (
	"os"
	"time"

	"github.com/spf13/pflag"
)

const (
	HTTPAddressKey    = "http-address"
	GenesisFileKey    = "genesis-file"
	ConfigFileKey     = "config-file"
	BlockIntervalKey  = "block-interval"
	AllowedOriginsKey = "allowed-origins"
)

func AddFlags(flags *pflag.FlagSet) {
	flags.String(HTTPAddressKey, "127.0.0.1:9650", "Address to serve the JSON-RPC API and metrics on")
	flags.String(GenesisFileKey, "", "Path to the round genesis JSON (required)")
	flags.String(ConfigFileKey, "", "Path to the VM config JSON")
	flags.Duration(BlockIntervalKey, 2*time.Second, "Interval at which the block height advances")
	flags.StringSlice(AllowedOriginsKey, []string{"*"}, "Origins allowed to make cross-origin requests")
}

type Config struct {
	HTTPAddress    string
	GenesisBytes   []byte
	ConfigBytes    []byte
	BlockInterval  time.Duration
	AllowedOrigins []string
}

func ParseFlags(flags *pflag.FlagSet, args []string) (*Config, error) {
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	httpAddress, err := flags.GetString(HTTPAddressKey)
	if err != nil {
		return nil, err
	}

	genesisFile, err := flags.GetString(GenesisFileKey)
	if err != nil {
		return nil, err
	}
	genesisBytes, err := os.ReadFile(genesisFile)
	if err != nil {
		return nil, err
	}

	configFile, err := flags.GetString(ConfigFileKey)
	if err != nil {
		return nil, err
	}
	var configBytes []byte
	if configFile != "" {
		configBytes, err = os.ReadFile(configFile)
		if err != nil {
			return nil, err
		}
	}

	blockInterval, err := flags.GetDuration(BlockIntervalKey)
	if err != nil {
		return nil, err
	}

	allowedOrigins, err := flags.GetStringSlice(AllowedOriginsKey)
	if err != nil {
		return nil, err
	}

	return &Config{
		HTTPAddress:    httpAddress,
		GenesisBytes:   genesisBytes,
		ConfigBytes:    configBytes,
		BlockInterval:  blockInterval,
		AllowedOrigins: allowedOrigins,
	}, nil
}
