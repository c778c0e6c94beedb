// Copyright (C) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

const (
	// Command line option keys
	ConfigFileKey = "config-file"
	VersionKey    = "version"
	HelpKey       = "help"

	// Top-level configuration keys
	LogLevelKey   = "log-level"
	NetworksKey   = "networks"
	APIPortKey    = "api-port"
	MetricsPortKey = "metrics-port"

	// Environment-recognized keys (§6)
	NodePrivateKeyKey  = "node-private-key"
	NodePublicKeyKey   = "node-public-key"
	P2PPrivateKeyKey   = "p2p-private-key"
	BootnodeKey        = "bootnode"
	BootstrapPeersKey  = "bootstrap-peers"
	AnnounceAddressKey = "announce-address"
	DataStreamPortKey  = "data-stream-port"
	DebugKey           = "debug"
)

// EnvVars maps the recognized environment variables (§6) to the viper
// key they're bound to.
var EnvVars = map[string]string{
	"NODE_PRIVATE_KEY":  NodePrivateKeyKey,
	"NODE_PUBLIC_KEY":   NodePublicKeyKey,
	"P2P_PRIVATE_KEY":   P2PPrivateKeyKey,
	"BOOTNODE":          BootnodeKey,
	"BOOTSTRAP_PEERS":   BootstrapPeersKey,
	"ANNOUNCE_ADDRESS":  AnnounceAddressKey,
	"DATA_STREAM_PORT":  DataStreamPortKey,
	"DEBUG":             DebugKey,
}
