// Copyright (C) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package orchestrator implements the Vladiator node's three ingress
// responsibilities (§4.4): tap sinks, route requests to the owning
// driver's coordinator, and penalize requests whose source chain has no
// driver here,
// wired in the shape of relayer/main/main.go.
package orchestrator

import (
	"context"
	"strconv"

	"github.com/luxfi/log"
	"go.uber.org/zap"

	"github.com/vladiator-network/core/bus"
	"github.com/vladiator-network/core/coordinator"
	"github.com/vladiator-network/core/driver"
	"github.com/vladiator-network/core/feature"
	"github.com/vladiator-network/core/message"
	"github.com/vladiator-network/core/metrics"
	"github.com/vladiator-network/core/sink"
)

// Publisher is the subset of *bus.Bus the orchestrator depends on.
// Accepting the interface rather than the concrete type keeps this
// package testable with a fake and free of its own transport
// assumptions.
type Publisher interface {
	Publish(topic message.Topic, m *message.Message)
	Subscribe(topic message.Topic, fn bus.Subscriber)
}

// Vladiator owns the driver registry, feature registry, bus client,
// metrics, and sink list, and wires every inbound gossip frame to the
// right place (§4.4).
type Vladiator struct {
	author  string
	drivers *driver.Registry
	bus     Publisher
	metrics *metrics.Metrics
	logger  log.Logger

	coordinators map[string]*coordinator.Coordinator

	chatSinks       []sinkTap[sink.ChatSink]
	dataStreamSinks []sinkTap[sink.DataStreamSink]
}

type sinkTap[T any] struct {
	filter sink.Filter
	sink   T
}

// New constructs a Vladiator and a coordinator.Coordinator for every
// driver in drivers, wired to bus.Publish via each coordinator's Emit
// callback (§4.2/§4.4's ownership split).
func New(
	author string,
	drivers *driver.Registry,
	features *feature.Registry,
	b Publisher,
	m *metrics.Metrics,
	logger log.Logger,
) *Vladiator {
	v := &Vladiator{
		author:       author,
		drivers:      drivers,
		bus:          b,
		metrics:      m,
		logger:       logger,
		coordinators: make(map[string]*coordinator.Coordinator),
	}

	for _, chainID := range drivers.ChainIDs() {
		d, _ := drivers.Get(chainID)
		v.coordinators[chainID] = coordinator.New(d, drivers.Get, features, v.emit, m, logger)
	}
	return v
}

// RegisterChatSink adds a ChatSink tapped on every ingress frame that
// matches filter (§6.2).
func (v *Vladiator) RegisterChatSink(filter sink.Filter, s sink.ChatSink) {
	v.chatSinks = append(v.chatSinks, sinkTap[sink.ChatSink]{filter: filter, sink: s})
}

// RegisterDataStreamSink adds a DataStreamSink tapped the same way.
func (v *Vladiator) RegisterDataStreamSink(filter sink.Filter, s sink.DataStreamSink) {
	v.dataStreamSinks = append(v.dataStreamSinks, sinkTap[sink.DataStreamSink]{filter: filter, sink: s})
}

// Run starts every per-driver coordinator dispatch loop and subscribes
// to the closed topic set (§4.4/§4.2.1). Blocks until ctx is canceled.
func (v *Vladiator) Run(ctx context.Context) {
	for _, c := range v.coordinators {
		go c.Run(ctx)
	}
	for _, topic := range message.Topics {
		v.bus.Subscribe(topic, v.ingress)
	}
	<-ctx.Done()
}

// ingress is the single entry point for every inbound gossip frame
// (§4.4's three responsibilities): tap sinks, then route.
func (v *Vladiator) ingress(m *message.Message) {
	v.tapSinks(context.Background(), m)

	switch m.Type {
	case message.MessageRequest:
		v.routeRequest(m)
	case message.Heartbeat:
		// Heartbeats carry no routing obligation beyond the sink tap.
	default:
		// Every other topic (SIGNED, QUEUED, EXECUTION, penalties,
		// feature brackets) is observational from this node's
		// perspective once emitted by a coordinator; only REQUEST
		// triggers coordinator work.
	}
}

func (v *Vladiator) tapSinks(ctx context.Context, m *message.Message) {
	for _, t := range v.chatSinks {
		if t.filter.Match(m) {
			if err := t.sink.Send(ctx, m); err != nil {
				v.logger.Debug("Chat sink send failed", zap.Error(err))
			}
		}
	}
	for _, t := range v.dataStreamSinks {
		if t.filter.Match(m) {
			if err := t.sink.Send(ctx, *m); err != nil {
				v.logger.Debug("Data stream sink send failed", zap.Error(err))
			}
		}
	}
}

// routeRequest dispatches a MESSAGE:REQUEST to the coordinator owning
// its source chain, or emits PENALTY:CHAINMISS when no driver is
// registered for it (§4.2/§4.4).
func (v *Vladiator) routeRequest(m *message.Message) {
	chainID := sourceChainID(m)
	c, ok := v.coordinators[chainID]
	if !ok {
		v.emit(message.PenaltyChainMiss, m)
		if v.metrics != nil {
			v.metrics.ObserveDropped(chainID, "chain_miss")
		}
		return
	}
	c.Submit(m)
}

// sourceChainID reads the numeric source chain id every non-heartbeat
// frame carries in m.Source (§3), formatted to match driver.ChainID's
// decimal-string convention.
func sourceChainID(m *message.Message) string {
	return strconv.FormatUint(m.Source, 10)
}

// emit is the coordinator.Emit implementation: publish, stamp author,
// and record the emission metric.
func (v *Vladiator) emit(topic message.Topic, m *message.Message) {
	m.Author = v.author
	v.bus.Publish(topic, m)
	if v.metrics != nil {
		v.metrics.ObserveEmitted(string(topic))
	}
}
