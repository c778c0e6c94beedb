// Copyright (C) 2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package coordinator

import "sync"

// txState is the tagged variant per §9's design note: a key is either
// absent, locked by an in-flight sign attempt, or signed with a
// finalized signature. Transitions are committed only from the
// coordinator's single-writer dispatch goroutine.
type txPhase int

const (
	phaseAbsent txPhase = iota
	phaseLocked
	phaseSigned
)

type txState struct {
	phase        txPhase
	signature    string
	featureReply []byte
}

// signatureCache is the per-driver SignatureCache from §3: keyed by
// txId, single-writer from the owning driver's coordinator.
type signatureCache struct {
	mu    sync.RWMutex
	state map[string]txState
}

func newSignatureCache() *signatureCache {
	return &signatureCache{state: make(map[string]txState)}
}

func (c *signatureCache) get(txID string) (txState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.state[txID]
	return s, ok
}

func (c *signatureCache) lock(txID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state[txID] = txState{phase: phaseLocked}
}

// release abandons the cache entry for txID, returning it to absent so a
// later REQUEST can re-enter the state machine. Used on RPC failure,
// validation failure, chain miss, feature failure, and confirmation
// shortfall (§9's resolved open question: shortfall releases the lock
// *and* drops the entry).
func (c *signatureCache) release(txID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.state, txID)
}

func (c *signatureCache) setFeatureReply(txID string, reply []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state[txID]
	s.featureReply = reply
	c.state[txID] = s
}

func (c *signatureCache) finalize(txID string, signature string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state[txID]
	s.phase = phaseSigned
	s.signature = signature
	c.state[txID] = s
}

// retryCounter is the per-driver RetryCounter from §3: incremented on
// each REQUEST acceptance attempt, never decremented (§9's preserved
// open question — a genuinely intermittent RPC failure quietly burns the
// budget; that is deliberate, not an oversight).
type retryCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func newRetryCounter() *retryCounter {
	return &retryCounter{counts: make(map[string]int)}
}

// increment bumps the counter for txID and returns the new value.
func (r *retryCounter) increment(txID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[txID]++
	return r.counts[txID]
}

const maxRetries = 3
