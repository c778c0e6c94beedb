// Copyright (C) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package driver defines the polymorphic per-chain-family contract
// (§4.1): connect to a chain's RPC, decode event logs, verify that a
// peer-claimed request actually exists on-chain, and sign the canonical
// tuple under the destination chain's scheme. Concrete families live in
// driver/evm and driver/substrate.
package driver

import (
	"context"
	"errors"
	"math/big"

	"github.com/vladiator-network/core/config"
	"github.com/vladiator-network/core/message"
)

var (
	// ErrConnect is returned by Connect when the configured network has
	// no known message-contract address or the RPC session cannot be
	// opened.
	ErrConnect = errors.New("driver: connect failed")

	// ErrTransport covers RPC-unreachable and WS-disconnect failures
	// (§7's TransportError). Recovered locally by the coordinator
	// abandoning the lock entry; no emission.
	ErrTransport = errors.New("driver: transport error")

	// ErrConfirmationShortfall is returned when a confirmation wait ends
	// with observed confirmations below m.Values.Confirmations (§7's
	// ConfirmationShortfall).
	ErrConfirmationShortfall = errors.New("driver: confirmation shortfall")
)

// CanonicalTuple is the ordered field set hashed and signed per §6:
// (txId, sourceChainId, destChainId, sender, recipient, data).
type CanonicalTuple struct {
	TxID          string
	SourceChainID string
	DestChainID   string
	Sender        string
	Recipient     string
	Data          []byte
}

// Driver is the contract every chain-family implementation satisfies.
// A single Driver instance owns one chain id.
type Driver interface {
	// ChainID returns the numeric chain id this driver owns, as a
	// decimal string (§6's NetworkConfig.ID).
	ChainID() string

	// Connect validates the chain has a known message-contract address
	// and opens an RPC session. Fails with ErrConnect.
	Connect(ctx context.Context, cfg config.NetworkConfig) error

	// PopulateMessage fetches the on-chain transaction receipt referenced
	// by m.TransactionHash, parses logs, and overwrites m.Values (and
	// optional m.FeatureID/m.FeatureData) from authoritative on-chain
	// data. Peer-supplied fields are never trusted. Fails with
	// ErrTransport on transport failure; returns with m.Values left nil
	// if the expected event is not found.
	PopulateMessage(ctx context.Context, m *message.Message) error

	// IsMessageValid returns true iff there exists a log in the receipt
	// referenced by m.TransactionHash whose address equals the
	// configured message-contract address and whose decoded arguments
	// match claimed exactly, with at least m.Values.Confirmations
	// confirmations. claimed is the request's values exactly as a peer
	// supplied them in its REQUEST frame, captured before PopulateMessage
	// overwrote m.Values with the authoritative on-chain fetch — this is
	// what makes a lying peer's tattled claim detectable at all, rather
	// than comparing the on-chain fetch against itself. A nil claimed
	// means the peer asserted nothing to check, so only existence and
	// confirmations are verified.
	IsMessageValid(ctx context.Context, claimed *message.Values, m *message.Message) (bool, error)

	// IsMessageProcessed performs the view call processedTransfers(txId)
	// against the destination-chain message contract.
	IsMessageProcessed(ctx context.Context, txID string) (bool, error)

	// SignTransactionData signs the canonical tuple under this chain's
	// signature scheme and returns the signature hex string.
	SignTransactionData(ctx context.Context, tuple CanonicalTuple) (string, error)

	// GetChainsig returns the contract's current authoritative signer
	// address.
	GetChainsig(ctx context.Context) (string, error)

	// GetExsig returns the project-specific external signer address, if
	// any is configured for project.
	GetExsig(ctx context.Context, project string) (string, error)

	// GasPrice returns this chain's current gas price, in wei or the
	// chain-appropriate smallest unit. Used by fee-quoting features
	// such as GasRebateQuote.
	GasPrice(ctx context.Context) (*big.Int, error)
}

// Registry is the orchestrator-owned driver table (§9's re-architecture
// note: orchestrator owns drivers, not the reverse, avoiding the
// bidirectional reference the original source used).
type Registry struct {
	drivers map[string]Driver
}

func NewRegistry() *Registry {
	return &Registry{drivers: make(map[string]Driver)}
}

func (r *Registry) Register(d Driver) {
	r.drivers[d.ChainID()] = d
}

func (r *Registry) Get(chainID string) (Driver, bool) {
	d, ok := r.drivers[chainID]
	return d, ok
}

func (r *Registry) ChainIDs() []string {
	ids := make([]string, 0, len(r.drivers))
	for id := range r.drivers {
		ids = append(ids, id)
	}
	return ids
}
