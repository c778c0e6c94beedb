// Copyright (C) 2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package coordinator implements the per-driver request state machine
// (§4.2): populate → validate → destination lookup → feature → sign,
// with at-most-once signing and idempotent replay of an already-signed
// reply, in the serialized-writer style of
// relayer/checkpoint/checkpoint.go — one coordinator owns one driver,
// and every state transition for that driver's txIds is committed from
// a single goroutine fed by a request queue.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/luxfi/log"
	"go.uber.org/zap"

	"github.com/vladiator-network/core/driver"
	"github.com/vladiator-network/core/feature"
	"github.com/vladiator-network/core/message"
	"github.com/vladiator-network/core/metrics"
)

// Emit publishes an outgoing frame to the bus under the given topic.
// The orchestrator supplies this as bus.Publish (optionally wrapped
// for metrics), keeping this package free of any transport dependency.
type Emit func(topic message.Topic, m *message.Message)

// DestinationLookup resolves a destination chain id (values.chain) to
// the driver that owns it. The orchestrator supplies its
// driver.Registry.Get, letting the coordinator enforce §4.2's
// destination chain-miss check without holding a direct reference back
// to the registry (§9's resolved back-reference note, applied to this
// narrower lookup too).
type DestinationLookup func(chainID string) (driver.Driver, bool)

// Coordinator owns one driver's signing state machine. All public
// methods are safe to call concurrently, but the actual phase
// transitions for a given txId happen one at a time, serialized through
// the request queue drained by Run.
type Coordinator struct {
	driver       driver.Driver
	destinations DestinationLookup
	features     *feature.Registry
	emit         Emit
	metrics      *metrics.Metrics
	logger       log.Logger

	cache   *signatureCache
	retries *retryCounter

	requests chan *message.Message
}

// New constructs a coordinator bound to a single driver. destinations
// resolves the driver that owns a request's destination chain; features
// may be nil, disabling the feature stage entirely; m may be nil when no
// metrics are wired (e.g. in tests).
func New(
	d driver.Driver,
	destinations DestinationLookup,
	features *feature.Registry,
	emit Emit,
	m *metrics.Metrics,
	logger log.Logger,
) *Coordinator {
	return &Coordinator{
		driver:       d,
		destinations: destinations,
		features:     features,
		emit:         emit,
		metrics:      m,
		logger:       logger,
		cache:        newSignatureCache(),
		retries:      newRetryCounter(),
		requests:     make(chan *message.Message, 256),
	}
}

// Submit enqueues an incoming MESSAGE:REQUEST frame for this
// coordinator's driver. It never blocks the caller on the actual
// state-machine work — only on queue backpressure.
func (c *Coordinator) Submit(m *message.Message) {
	c.requests <- m
}

// Run drains the request queue until ctx is canceled, handling each
// request in turn on a single goroutine — the single-writer discipline
// that makes the phase transitions in state.go race-free without a
// lock held across an RPC call.
func (c *Coordinator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-c.requests:
			c.handleRequest(ctx, m)
		}
	}
}

func (c *Coordinator) handleRequest(ctx context.Context, m *message.Message) {
	txID := requestTxID(m)
	if txID == "" {
		return
	}

	if state, ok := c.cache.get(txID); ok {
		switch state.phase {
		case phaseLocked:
			// Transition 1: a sign attempt for this txId is already
			// in flight. Duplicate REQUEST frames (retransmits,
			// multiple observers of the same source event) are
			// ignored outright.
			return
		case phaseSigned:
			// Transition 2: idempotent replay. The signature was
			// already computed; re-emit it verbatim rather than
			// re-deriving or re-signing anything (at-most-once
			// signing, §9).
			c.emitSigned(m, state.signature, state.featureReply)
			return
		}
	}

	if !c.acceptRetry(txID) {
		return
	}

	c.cache.lock(txID)

	if err := c.process(ctx, m, txID); err != nil {
		c.logger.Warn(
			"Request processing failed",
			zap.String("txId", txID),
			zap.Error(err),
		)
		c.cache.release(txID)
	}
}

// process runs the populate → validate → chain-lookup → feature → sign
// pipeline for a freshly locked txId (§4.2, transitions 3-6).
func (c *Coordinator) process(ctx context.Context, m *message.Message, txID string) error {
	// claimed is the peer's own assertion, taken before PopulateMessage
	// overwrites m.Values with the authoritative on-chain fetch — the
	// only way a lying peer's claim (§8 scenario 2) is still around to
	// check against, rather than comparing the on-chain fetch to itself.
	claimed := m.Values

	if err := c.driver.PopulateMessage(ctx, m); err != nil {
		return fmt.Errorf("populate: %w", err)
	}
	if m.Values == nil {
		c.emit(message.MessageInvalid, m)
		return fmt.Errorf("%w: no matching on-chain event for tx %s", ErrValidation, txID)
	}

	valid, err := c.driver.IsMessageValid(ctx, claimed, m)
	if err != nil {
		if errors.Is(err, driver.ErrConfirmationShortfall) {
			// Confirmation shortfall drops the lock and the cache
			// entry outright (§9's resolved open question) so a
			// later REQUEST, once confirmations catch up, starts
			// clean rather than replaying a stale rejection.
			return fmt.Errorf("confirmations: %w", err)
		}
		return fmt.Errorf("validate: %w", err)
	}
	if !valid {
		c.emit(message.MessageInvalid, m)
		return fmt.Errorf("%w: tx %s", ErrValidation, txID)
	}

	destDriver, ok := c.destinations(m.Values.Chain)
	if !ok {
		c.emit(message.PenaltyChainMiss, m)
		if c.metrics != nil {
			c.metrics.ObserveDropped(c.driver.ChainID(), "dest_chain_miss")
		}
		return fmt.Errorf("%w: destination chain %s", ErrChainMiss, m.Values.Chain)
	}

	processed, err := destDriver.IsMessageProcessed(ctx, txID)
	if err != nil {
		return fmt.Errorf("processed check: %w", err)
	}
	if processed {
		c.emit(message.MessageExists, m)
		return fmt.Errorf("%w: tx %s", ErrAlreadyProcessed, txID)
	}

	featureReply, err := c.runFeature(ctx, destDriver, m)
	if err != nil {
		m.FeatureFailed = true
		c.emit(message.FeatureFailed, m)
		return fmt.Errorf("%w: %v", ErrFeatureFailure, err)
	}
	if featureReply != nil {
		c.cache.setFeatureReply(txID, featureReply)
		m.FeatureReply = message.HexBytes(featureReply)
	}

	tuple := driver.CanonicalTuple{
		TxID:          m.Values.TxID,
		SourceChainID: c.driver.ChainID(),
		DestChainID:   m.Values.Chain,
		Sender:        m.Values.Sender,
		Recipient:     m.Values.Recipient,
		Data:          m.Values.EncodedData,
	}
	signature, err := destDriver.SignTransactionData(ctx, tuple)
	if err != nil {
		return fmt.Errorf("sign: %w", err)
	}

	c.cache.finalize(txID, signature)
	c.emitSigned(m, signature, featureReply)
	return nil
}

// runFeature executes the feature stage when the request names one,
// emitting the FEATURE:START/COMPLETED bracket around it (§4.5) against
// the destination driver, since features such as GasRebateQuote quote
// the destination chain's own state.
func (c *Coordinator) runFeature(ctx context.Context, destDriver driver.Driver, m *message.Message) ([]byte, error) {
	if m.FeatureID == nil || c.features == nil {
		return nil, nil
	}
	c.emit(message.FeatureStart, m)
	reply, err := c.features.Run(ctx, destDriver, m)
	outcome := "success"
	if err != nil {
		outcome = "failed"
	}
	if c.metrics != nil {
		c.metrics.ObserveFeature(strconv.Itoa(*m.FeatureID), outcome)
	}
	if err != nil {
		return nil, err
	}
	c.emit(message.FeatureCompleted, m)
	return reply, nil
}

func (c *Coordinator) emitSigned(m *message.Message, signature string, featureReply []byte) {
	out := *m
	out.Type = message.MessageSigned
	out.Signature = signature
	if featureReply != nil {
		out.FeatureReply = message.HexBytes(featureReply)
	}
	c.emit(message.MessageSigned, &out)
}

// acceptRetry increments txId's retry counter for this REQUEST
// acceptance attempt and reports whether it may proceed (§4.2
// transition rule 1: "increment retries[txId]; if > 3, drop. Otherwise
// mark locked, proceed"). Once the budget is exhausted the request is
// dropped before any lock is taken or any RPC is made — §9's preserved
// open question means the counter itself is never decremented, so a
// txId that crosses maxRetries stays dropped permanently.
func (c *Coordinator) acceptRetry(txID string) bool {
	n := c.retries.increment(txID)
	if c.metrics != nil {
		c.metrics.ObserveRetry(c.driver.ChainID())
	}
	if n > maxRetries {
		c.logger.Warn(
			"Retry budget exhausted, dropping request",
			zap.String("txId", txID),
			zap.Int("attempts", n),
			zap.Error(ErrRetryExhausted),
		)
		return false
	}
	return true
}

func requestTxID(m *message.Message) string {
	if m.Values != nil && m.Values.TxID != "" {
		return m.Values.TxID
	}
	return m.TransactionHash
}
