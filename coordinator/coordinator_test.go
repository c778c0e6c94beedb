// Copyright (C) 2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package coordinator

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"

	"github.com/vladiator-network/core/config"
	"github.com/vladiator-network/core/driver"
	"github.com/vladiator-network/core/feature"
	"github.com/vladiator-network/core/message"
)

// fakeDriver is a scriptable driver.Driver. Every hook defaults to a
// happy-path behavior when nil.
type fakeDriver struct {
	mu sync.Mutex

	chainID string

	populateErr   error
	populateNil   bool
	populateCalls int

	validErr   error
	valid      bool
	validCalls int

	processedErr error
	processed    bool

	signErr  error
	signFn   func(driver.CanonicalTuple) (string, error)
	signArgs []driver.CanonicalTuple
}

var _ driver.Driver = (*fakeDriver)(nil)

func (f *fakeDriver) ChainID() string { return f.chainID }

func (f *fakeDriver) Connect(ctx context.Context, cfg config.NetworkConfig) error { return nil }

// canonicalOnChainValues is the authoritative truth every fakeDriver
// populates m.Values with, regardless of what a caller (a peer's
// REQUEST) put there beforehand — mirroring the real drivers'
// "peer-supplied fields are never trusted" contract.
var canonicalOnChainValues = message.Values{
	TxID:          "42",
	Sender:        "0xAAAA000000000000000000000000000000AAAA",
	Recipient:     "0xBBBB000000000000000000000000000000BBBB",
	Chain:         "56",
	Confirmations: 10,
}

func (f *fakeDriver) PopulateMessage(ctx context.Context, m *message.Message) error {
	f.mu.Lock()
	f.populateCalls++
	f.mu.Unlock()
	if f.populateErr != nil {
		return f.populateErr
	}
	if f.populateNil {
		m.Values = nil
		return nil
	}
	vals := canonicalOnChainValues
	m.Values = &vals
	return nil
}

func (f *fakeDriver) IsMessageValid(ctx context.Context, claimed *message.Values, m *message.Message) (bool, error) {
	f.mu.Lock()
	f.validCalls++
	f.mu.Unlock()
	if f.validErr != nil {
		return false, f.validErr
	}
	if claimed != nil && !claimed.Equal(*m.Values) {
		return false, nil
	}
	return f.valid, nil
}

func (f *fakeDriver) IsMessageProcessed(ctx context.Context, txID string) (bool, error) {
	if f.processedErr != nil {
		return false, f.processedErr
	}
	return f.processed, nil
}

func (f *fakeDriver) SignTransactionData(ctx context.Context, tuple driver.CanonicalTuple) (string, error) {
	f.mu.Lock()
	f.signArgs = append(f.signArgs, tuple)
	f.mu.Unlock()
	if f.signErr != nil {
		return "", f.signErr
	}
	if f.signFn != nil {
		return f.signFn(tuple)
	}
	return "0xdeadbeef", nil
}

func (f *fakeDriver) GetChainsig(ctx context.Context) (string, error) { return "0xsigner", nil }
func (f *fakeDriver) GetExsig(ctx context.Context, project string) (string, error) {
	return "0xexsigner", nil
}
func (f *fakeDriver) GasPrice(ctx context.Context) (*big.Int, error) { return big.NewInt(1), nil }

// alwaysDriver returns a DestinationLookup that resolves any chain id to
// d, for tests where the destination driver's identity doesn't matter.
func alwaysDriver(d driver.Driver) DestinationLookup {
	return func(string) (driver.Driver, bool) { return d, true }
}

// lookupAmong returns a DestinationLookup resolving by chain id among
// the given drivers, for tests where source and destination must be
// distinct drivers.
func lookupAmong(ds ...*fakeDriver) DestinationLookup {
	byChain := make(map[string]driver.Driver, len(ds))
	for _, d := range ds {
		byChain[d.chainID] = d
	}
	return func(chainID string) (driver.Driver, bool) {
		d, ok := byChain[chainID]
		return d, ok
	}
}

// failingFeature always returns an error from Process.
type failingFeature struct{}

func (failingFeature) ID() int              { return 7 }
func (failingFeature) Name() string         { return "failing" }
func (failingFeature) Description() string  { return "always fails" }
func (failingFeature) IsMessageValid(ctx context.Context, d driver.Driver, m *message.Message) (bool, error) {
	return true, nil
}
func (failingFeature) Process(ctx context.Context, d driver.Driver, m *message.Message) ([]byte, error) {
	return nil, errors.New("boom")
}

// echoFeature returns the message's own encoded data as the reply.
type echoFeature struct{}

func (echoFeature) ID() int             { return 9 }
func (echoFeature) Name() string        { return "echo" }
func (echoFeature) Description() string { return "echoes encodedData" }
func (echoFeature) IsMessageValid(ctx context.Context, d driver.Driver, m *message.Message) (bool, error) {
	return true, nil
}
func (echoFeature) Process(ctx context.Context, d driver.Driver, m *message.Message) ([]byte, error) {
	return []byte("echoed"), nil
}

type emitted struct {
	topic message.Topic
	msg   *message.Message
}

type emitCollector struct {
	mu    sync.Mutex
	items []emitted
}

func (c *emitCollector) emit(topic message.Topic, m *message.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, emitted{topic: topic, msg: m})
}

func (c *emitCollector) all() []emitted {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]emitted(nil), c.items...)
}

func (c *emitCollector) topics() []message.Topic {
	var out []message.Topic
	for _, e := range c.all() {
		out = append(out, e.topic)
	}
	return out
}

func newBaseRequest() *message.Message {
	claimed := canonicalOnChainValues
	return &message.Message{
		Type:            message.MessageRequest,
		Author:          "peer-1",
		Source:          1,
		TransactionHash: "0xhash",
		Values:          &claimed,
	}
}

// runSync drives handleRequest directly rather than through Run/Submit,
// keeping every scenario single-threaded and deterministic.
func runSync(t *testing.T, c *Coordinator, m *message.Message) {
	t.Helper()
	c.handleRequest(context.Background(), m)
}

func TestHappyPathSignsAndEmits(t *testing.T) {
	d := &fakeDriver{chainID: "1", valid: true}
	collector := &emitCollector{}
	c := New(d, alwaysDriver(d), nil, collector.emit, nil, log.NoLog{})

	runSync(t, c, newBaseRequest())

	require.Equal(t, []message.Topic{message.MessageSigned}, collector.topics())
	require.Equal(t, "0xdeadbeef", collector.all()[0].msg.Signature)
}

func TestInvalidClaimEmitsInvalidNotSigned(t *testing.T) {
	d := &fakeDriver{chainID: "1", valid: false}
	collector := &emitCollector{}
	c := New(d, alwaysDriver(d), nil, collector.emit, nil, log.NoLog{})

	runSync(t, c, newBaseRequest())

	require.Equal(t, []message.Topic{message.MessageInvalid}, collector.topics())
}

func TestMismatchedPeerClaimEmitsInvalidNotSigned(t *testing.T) {
	// The driver reports valid=true for the on-chain truth it fetches
	// itself; the peer's REQUEST claims a different sender than that
	// truth. §8 scenario 2 requires this rejected as MESSAGE:INVALID,
	// not signed as if the claim had gone unchecked.
	d := &fakeDriver{chainID: "1", valid: true}
	collector := &emitCollector{}
	c := New(d, alwaysDriver(d), nil, collector.emit, nil, log.NoLog{})

	m := newBaseRequest()
	claimed := canonicalOnChainValues
	claimed.Sender = "0xCCCC000000000000000000000000000000CCCC"
	m.Values = &claimed

	runSync(t, c, m)

	require.Equal(t, []message.Topic{message.MessageInvalid}, collector.topics(),
		"a peer-claimed sender that disagrees with the on-chain log must be rejected even though the driver's own on-chain fetch is valid")
}

func TestAlreadyProcessedEmitsExists(t *testing.T) {
	d := &fakeDriver{chainID: "1", valid: true, processed: true}
	collector := &emitCollector{}
	c := New(d, alwaysDriver(d), nil, collector.emit, nil, log.NoLog{})

	runSync(t, c, newBaseRequest())

	require.Equal(t, []message.Topic{message.MessageExists}, collector.topics())
}

func TestFeatureFailureEmitsStartThenFailed(t *testing.T) {
	d := &fakeDriver{chainID: "1", valid: true}
	features := feature.NewRegistry()
	features.Register(failingFeature{})
	collector := &emitCollector{}
	c := New(d, alwaysDriver(d), features, collector.emit, nil, log.NoLog{})

	fid := 7
	m := newBaseRequest()
	m.FeatureID = &fid

	runSync(t, c, m)

	require.Equal(t, []message.Topic{message.FeatureStart, message.FeatureFailed}, collector.topics())
	require.True(t, collector.all()[1].msg.FeatureFailed, "the FEATURE:FAILED frame must carry featureFailed=true")

	// The lock was released on failure, so a retried REQUEST re-enters
	// the state machine rather than replaying a stale rejection.
	state, ok := c.cache.get("42")
	require.False(t, ok, "failed attempts must not leave a cache entry: %+v", state)
}

func TestFeatureSuccessEmitsStartCompletedThenSigned(t *testing.T) {
	d := &fakeDriver{chainID: "1", valid: true}
	features := feature.NewRegistry()
	features.Register(echoFeature{})
	collector := &emitCollector{}
	c := New(d, alwaysDriver(d), features, collector.emit, nil, log.NoLog{})

	fid := 9
	m := newBaseRequest()
	m.FeatureID = &fid

	runSync(t, c, m)

	require.Equal(t, []message.Topic{message.FeatureStart, message.FeatureCompleted, message.MessageSigned}, collector.topics())
	require.Equal(t, message.HexBytes("echoed"), collector.all()[2].msg.FeatureReply)
}

func TestAtMostOnceSignIgnoresInFlightDuplicate(t *testing.T) {
	d := &fakeDriver{chainID: "1", valid: true}
	collector := &emitCollector{}
	c := New(d, alwaysDriver(d), nil, collector.emit, nil, log.NoLog{})

	// Manually simulate an in-flight lock, as Run's goroutine would hold
	// while process() is still running.
	c.cache.lock("42")

	runSync(t, c, newBaseRequest())

	require.Empty(t, collector.topics(), "a locked txId must produce no emission")
}

func TestIdempotentReplayReusesCachedSignatureWithoutRePopulating(t *testing.T) {
	d := &fakeDriver{chainID: "1", valid: true}
	collector := &emitCollector{}
	c := New(d, alwaysDriver(d), nil, collector.emit, nil, log.NoLog{})

	runSync(t, c, newBaseRequest())
	require.Equal(t, 1, d.populateCalls)

	// A second, identical REQUEST 10s later (dedup window already
	// elapsed at the bus layer, so the coordinator sees it again).
	runSync(t, c, newBaseRequest())

	require.Equal(t, 1, d.populateCalls, "replay must not re-run populateMessage")
	require.Equal(t, []message.Topic{message.MessageSigned, message.MessageSigned}, collector.topics())
	first, second := collector.all()[0], collector.all()[1]
	require.Equal(t, first.msg.Signature, second.msg.Signature)
}

func TestConfirmationShortfallDropsLockAndEntry(t *testing.T) {
	d := &fakeDriver{chainID: "1", validErr: driver.ErrConfirmationShortfall}
	collector := &emitCollector{}
	c := New(d, alwaysDriver(d), nil, collector.emit, nil, log.NoLog{})

	runSync(t, c, newBaseRequest())

	require.Empty(t, collector.topics())
	_, ok := c.cache.get("42")
	require.False(t, ok, "confirmation shortfall must drop the cache entry so a later REQUEST re-enters cleanly")
}

func TestRetryExhaustionProducesNoEmissionOnFourthAttempt(t *testing.T) {
	d := &fakeDriver{chainID: "1", populateErr: driver.ErrTransport}
	collector := &emitCollector{}
	c := New(d, alwaysDriver(d), nil, collector.emit, nil, log.NoLog{})

	for i := 0; i < 4; i++ {
		runSync(t, c, newBaseRequest())
	}

	require.Equal(t, 3, d.populateCalls, "the 4th attempt must be dropped before any RPC, not just before any emission")
	require.Empty(t, collector.topics(), "a populate failure never emits, including on the 4th attempt")
	require.Equal(t, 4, c.retries.counts["42"])
}

func TestCanonicalTupleUsesOwnChainIDAsSourceAndValuesChainAsDest(t *testing.T) {
	source := &fakeDriver{chainID: "1", valid: true}
	dest := &fakeDriver{chainID: "56"}
	collector := &emitCollector{}
	c := New(source, lookupAmong(source, dest), nil, collector.emit, nil, log.NoLog{})

	runSync(t, c, newBaseRequest())

	require.Empty(t, source.signArgs, "signing must happen under the destination driver's scheme, not the source driver's")
	require.Len(t, dest.signArgs, 1)
	tuple := dest.signArgs[0]
	require.Equal(t, "1", tuple.SourceChainID, "source chain is the coordinator's own driver, not values.chain")
	require.Equal(t, "56", tuple.DestChainID, "dest chain is the destination chain embedded in the event")
}

func TestDestinationChainMissEmitsPenaltyAndNeverSigns(t *testing.T) {
	d := &fakeDriver{chainID: "1", valid: true}
	noDestinations := func(string) (driver.Driver, bool) { return nil, false }
	collector := &emitCollector{}
	c := New(d, noDestinations, nil, collector.emit, nil, log.NoLog{})

	runSync(t, c, newBaseRequest())

	require.Equal(t, []message.Topic{message.PenaltyChainMiss}, collector.topics())
	require.Empty(t, d.signArgs, "a chain miss must never reach the sign stage")
	_, ok := c.cache.get("42")
	require.False(t, ok, "a chain miss must drop the cache entry so a later REQUEST re-enters cleanly")
}

func TestRunProcessesQueuedRequestsUntilCanceled(t *testing.T) {
	d := &fakeDriver{chainID: "1", valid: true}
	collector := &emitCollector{}
	c := New(d, alwaysDriver(d), nil, collector.emit, nil, log.NoLog{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	c.Submit(newBaseRequest())

	require.Eventually(t, func() bool {
		return len(collector.topics()) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
