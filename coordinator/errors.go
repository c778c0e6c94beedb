// Copyright (C) 2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package coordinator

import "errors"

var (
	// ErrValidation is returned when a driver's IsMessageValid rejects a
	// request outright (§4.2: emits MESSAGE:INVALID, drops the lock).
	ErrValidation = errors.New("coordinator: message failed on-chain validation")

	// ErrChainMiss is returned when a request's destination chain
	// (values.chain) names a driver not loaded on this node (§4.2:
	// emits PENALTY:CHAINMISS). Source-chain routing is the
	// orchestrator's own chain-miss check, not this one.
	ErrChainMiss = errors.New("coordinator: no driver for destination chain")

	// ErrFeatureFailure wraps any error surfaced by the feature registry
	// (§4.5: emits FEATURE:FAILED).
	ErrFeatureFailure = errors.New("coordinator: feature stage failed")

	// ErrRetryExhausted is logged (not returned) when a request is
	// dropped because its txId's retry counter has crossed maxRetries
	// (§9).
	ErrRetryExhausted = errors.New("coordinator: retry budget exhausted")

	// ErrAlreadyProcessed is returned when the destination chain reports
	// the transfer already processed, short-circuiting a redundant sign
	// (§4.2).
	ErrAlreadyProcessed = errors.New("coordinator: transfer already processed on destination chain")
)
