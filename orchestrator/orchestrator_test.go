// Copyright (C) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package orchestrator

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/vladiator-network/core/bus"
	"github.com/vladiator-network/core/config"
	"github.com/vladiator-network/core/driver"
	"github.com/vladiator-network/core/feature"
	"github.com/vladiator-network/core/message"
	"github.com/vladiator-network/core/metrics"
)

// fakeDriver is the minimal driver.Driver needed to exercise routing;
// its signing/validation methods are never reached by a chain-miss
// REQUEST.
type fakeDriver struct{ chainID string }

var _ driver.Driver = (*fakeDriver)(nil)

func (f *fakeDriver) ChainID() string                                          { return f.chainID }
func (f *fakeDriver) Connect(ctx context.Context, cfg config.NetworkConfig) error { return nil }
func (f *fakeDriver) PopulateMessage(ctx context.Context, m *message.Message) error {
	return nil
}
func (f *fakeDriver) IsMessageValid(ctx context.Context, claimed *message.Values, m *message.Message) (bool, error) {
	return true, nil
}
func (f *fakeDriver) IsMessageProcessed(ctx context.Context, txID string) (bool, error) {
	return false, nil
}
func (f *fakeDriver) SignTransactionData(ctx context.Context, tuple driver.CanonicalTuple) (string, error) {
	return "0x00", nil
}
func (f *fakeDriver) GetChainsig(ctx context.Context) (string, error) { return "", nil }
func (f *fakeDriver) GetExsig(ctx context.Context, project string) (string, error) {
	return "", nil
}
func (f *fakeDriver) GasPrice(ctx context.Context) (*big.Int, error) { return big.NewInt(0), nil }

// fakePublisher records every Publish call and discards Subscribe.
type fakePublisher struct {
	mu        sync.Mutex
	published []message.Topic
}

func (p *fakePublisher) Publish(topic message.Topic, m *message.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, topic)
}

func (p *fakePublisher) Subscribe(topic message.Topic, fn bus.Subscriber) {}

func (p *fakePublisher) topics() []message.Topic {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]message.Topic(nil), p.published...)
}

func TestRouteRequestChainMissEmitsPenaltyNoCoordinatorOwnsIt(t *testing.T) {
	drivers := driver.NewRegistry()
	drivers.Register(&fakeDriver{chainID: "1"})
	drivers.Register(&fakeDriver{chainID: "56"})

	pub := &fakePublisher{}
	v := New("node-a", drivers, feature.NewRegistry(), pub, metrics.New(prometheus.NewRegistry()), log.NoLog{})

	// source=137 has no registered driver.
	m := &message.Message{
		Type:   message.MessageRequest,
		Author: "peer-1",
		Source: 137,
	}
	v.routeRequest(m)

	require.Equal(t, []message.Topic{message.PenaltyChainMiss}, pub.topics())
}

func TestRouteRequestKnownChainReachesItsCoordinator(t *testing.T) {
	drivers := driver.NewRegistry()
	drivers.Register(&fakeDriver{chainID: "1"})

	pub := &fakePublisher{}
	v := New("node-a", drivers, feature.NewRegistry(), pub, nil, log.NoLog{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for _, c := range v.coordinators {
		go c.Run(ctx)
	}

	m := &message.Message{
		Type:            message.MessageRequest,
		Author:          "peer-1",
		Source:          1,
		TransactionHash: "0xhash",
	}
	v.routeRequest(m)

	require.Eventually(t, func() bool {
		return len(pub.topics()) == 1
	}, time.Second, 10*time.Millisecond)
}
