// Copyright (C) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config loads the validator's configuration: the per-network
// RPC wiring (§6) and the node identity / P2P environment variables the
// orchestrator needs at startup.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// NetworkConfig describes one chain a driver will be constructed for
// (§6's configuration table).
type NetworkConfig struct {
	ID                string `mapstructure:"id"`
	Type              string `mapstructure:"type"`
	Name              string `mapstructure:"name"`
	RPC               string `mapstructure:"rpc"`
	RPCExec           string `mapstructure:"rpcExec"`
	Finality          int    `mapstructure:"finality"`
	ChunkSize         int    `mapstructure:"chunkSize"`
	Lookback          int    `mapstructure:"lookback"`
	LookbackDelay     int    `mapstructure:"lookbackDelay"`
	FreeGas           bool   `mapstructure:"freeGas"`
	GasOffset         int    `mapstructure:"gasOffset"`
	ForceLegacyGas    bool   `mapstructure:"forceLegacyGas"`
	ForceGasFeeAmount string `mapstructure:"forceGasFeeAmount"`

	// MessageContract is the configured message-contract address that
	// connect() validates is present before a driver is usable. Not
	// part of the wire config table (§6); read only from the
	// messageContract key, with no per-type default.
	MessageContract string `mapstructure:"messageContract"`
}

// Config is the root configuration loaded from file + env + flags.
type Config struct {
	LogLevel    string `mapstructure:"log-level"`
	APIPort     int    `mapstructure:"api-port"`
	MetricsPort int    `mapstructure:"metrics-port"`

	NodePrivateKey string `mapstructure:"node-private-key"`
	NodePublicKey  string `mapstructure:"node-public-key"`

	P2PPrivateKey   string `mapstructure:"p2p-private-key"`
	Bootnode        bool   `mapstructure:"bootnode"`
	BootstrapPeers  string `mapstructure:"bootstrap-peers"`
	AnnounceAddress string `mapstructure:"announce-address"`

	DataStreamPort int  `mapstructure:"data-stream-port"`
	Debug          bool `mapstructure:"debug"`

	Networks map[string]NetworkConfig `mapstructure:"networks"`
}

var (
	ErrNoPrivateKey = errors.New("config: NODE_PRIVATE_KEY is required")
	ErrNoPublicKey  = errors.New("config: NODE_PUBLIC_KEY is required")
	ErrNoNetworks   = errors.New("config: at least one network must be configured")
)

// New builds a viper instance bound to the recognized environment
// variables (§6) and an optional config file, layering file < env the
// way signature-aggregator/config/viper.go does. No command-line flags
// are bound here; the only flag is the config file path itself.
func New(configFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for env, key := range EnvVars {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("config: binding %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}
	return &cfg, nil
}

// Validate enforces the fatal-at-startup requirements in §6/§7: missing
// key material or an empty network set is a configuration failure, not
// a runtime one.
func (c *Config) Validate() error {
	if c.NodePrivateKey == "" {
		return ErrNoPrivateKey
	}
	if c.NodePublicKey == "" {
		return ErrNoPublicKey
	}
	if len(c.Networks) == 0 {
		return ErrNoNetworks
	}
	for label, n := range c.Networks {
		if n.ID == "" {
			return fmt.Errorf("config: network %q: missing id", label)
		}
		if n.Type == "" {
			return fmt.Errorf("config: network %q: missing type", label)
		}
		if n.RPC == "" {
			return fmt.Errorf("config: network %q: missing rpc", label)
		}
	}
	return nil
}

// BootstrapPeerList splits the comma-separated BOOTSTRAP_PEERS value
// into individual multiaddresses.
func (c *Config) BootstrapPeerList() []string {
	if c.BootstrapPeers == "" {
		return nil
	}
	parts := strings.Split(c.BootstrapPeers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
