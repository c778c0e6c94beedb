// Copyright (C) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package bus implements the gossip message bus (§4.3): a closed set
// of topics, a self-describing JSON frame, a 5-second dedup window, and
// a 2-minute heartbeat. Transport is a WebSocket connection mesh,
// adapted from BuiLeQuocHung-E2EEChat's server.HttpServer. Every inbound
// frame, local or from a peer, goes through the single dispatch method,
// so the transport details stay inside this package.
package bus

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/luxfi/log"
	"go.uber.org/zap"

	"github.com/vladiator-network/core/cache"
	"github.com/vladiator-network/core/message"
)

// Subscriber is invoked once per received frame on a subscribed topic.
type Subscriber func(m *message.Message)

// Bus is the publish/subscribe gossip fabric every node runs. One Bus
// per process; every node subscribes to the full closed topic set
// (§4.3).
type Bus struct {
	author string
	logger log.Logger
	dedup  *cache.DedupWindow

	mu    sync.RWMutex
	peers map[string]*websocket.Conn
	subs  map[message.Topic][]Subscriber

	upgrader websocket.Upgrader

	// OnDedupHit, if set, is called whenever dispatch suppresses a
	// duplicate frame (§4.3.2), whether it was published locally or read
	// from a peer. Optional — cmd/vladiator wires this to
	// metrics.ObserveDedupHit; nil means no observation.
	OnDedupHit func(topic message.Topic)
}

// DedupWindowTTL is the §4.3 5-second REQUEST/SIGNED suppression
// interval.
const DedupWindowTTL = 5 * time.Second

// New constructs a Bus. author is this node's identity, stamped on the
// HEARTBEAT frames RunHeartbeat publishes.
func New(author string, logger log.Logger) *Bus {
	return &Bus{
		author: author,
		logger: logger,
		dedup:  cache.NewDedupWindow(DedupWindowTTL),
		peers:  make(map[string]*websocket.Conn),
		subs:   make(map[message.Topic][]Subscriber),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Subscribe registers fn to be called for every inbound frame on
// topic. Multiple subscribers per topic are allowed; the orchestrator
// typically registers exactly one per topic (§4.4).
func (b *Bus) Subscribe(topic message.Topic, fn Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], fn)
}

// Publish encodes m, dispatches it to this node's own subscribers, and
// broadcasts it to every connected peer, following
// BuiLeQuocHung-E2EEChat's processWSMessage fan-out. §4.3's transport
// contract is explicit that a subscriber receives frames "pushed by any
// peer, including self" — a locally-originated frame never touches the
// wire to reach its own node's subscribers. The dedup window (§4.3.2)
// lives inside dispatch, so a REQUEST/SIGNED frame this node just
// published is suppressed the same way a duplicate arriving from a
// peer would be.
func (b *Bus) Publish(topic message.Topic, m *message.Message) {
	m.Type = topic
	if !b.dispatch(m) {
		return
	}

	frame, err := message.DefaultCodec.Marshal(m)
	if err != nil {
		b.logger.Warn("Failed to encode outgoing frame", zap.String("topic", string(topic)), zap.Error(err))
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for peerID, conn := range b.peers {
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			b.logger.Debug("Dropping unreachable peer write", zap.String("peer", peerID), zap.Error(err))
		}
	}
}

func (b *Bus) shouldDedup(topic message.Topic) bool {
	return topic == message.MessageRequest || topic == message.MessageSigned
}

func dedupKey(m *message.Message) cache.DedupKey {
	return cache.DedupKey{
		Type:            string(m.Type),
		Author:          m.Author,
		TransactionHash: m.TransactionHash,
	}
}

// dispatch applies the dedup window and routes m to every subscriber
// registered for its topic (§4.3's ingress contract and §4.3.2's dedup
// rule, kept together so a frame is deduped the same way regardless of
// whether it arrived over the wire from a peer or was just published
// locally). Reports whether m survived — Publish uses this to decide
// whether the frame should also go out to peers.
func (b *Bus) dispatch(m *message.Message) bool {
	if err := m.Validate(); err != nil {
		b.logger.Debug("Dropping malformed frame", zap.Error(err))
		return false
	}
	if b.shouldDedup(m.Type) && b.dedup.Seen(dedupKey(m)) {
		b.logger.Debug("Suppressing duplicate frame", zap.String("topic", string(m.Type)))
		if b.OnDedupHit != nil {
			b.OnDedupHit(m.Type)
		}
		return false
	}

	b.mu.RLock()
	fns := append([]Subscriber(nil), b.subs[m.Type]...)
	b.mu.RUnlock()
	for _, fn := range fns {
		fn(m)
	}
	return true
}

// readLoop drains conn until it closes, decoding and dispatching each
// frame, the same shape as processWSMessage's ReadMessage loop.
func (b *Bus) readLoop(peerID string, conn *websocket.Conn) {
	defer func() {
		b.mu.Lock()
		delete(b.peers, peerID)
		b.mu.Unlock()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			b.logger.Debug("Peer connection closed", zap.String("peer", peerID), zap.Error(err))
			return
		}
		m, err := message.DefaultCodec.Unmarshal(data)
		if err != nil {
			b.logger.Debug("Dropping undecodable frame", zap.String("peer", peerID), zap.Error(err))
			continue
		}
		b.dispatch(m)
	}
}

// Accept handles an inbound peer connection over HTTP upgrade. Used
// when BOOTNODE is set (§6) to accept dial-ins from other validators.
func (b *Bus) Accept(w http.ResponseWriter, r *http.Request) {
	peerID := r.URL.Query().Get("peerID")
	if peerID == "" {
		http.Error(w, "peerID is required", http.StatusBadRequest)
		return
	}
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("Failed to upgrade peer connection", zap.String("peer", peerID), zap.Error(err))
		return
	}
	b.addPeer(peerID, conn)
}

// Dial connects out to a bootstrap peer address (§6's BOOTSTRAP_PEERS).
func (b *Bus) Dial(ctx context.Context, peerAddr string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, peerAddr, nil)
	if err != nil {
		return err
	}
	b.addPeer(peerAddr, conn)
	return nil
}

func (b *Bus) addPeer(peerID string, conn *websocket.Conn) {
	b.mu.Lock()
	b.peers[peerID] = conn
	b.mu.Unlock()
	b.logger.Info("Peer connected", zap.String("peer", peerID))
	go b.readLoop(peerID, conn)
}

// PeerCount reports the number of live peer connections, used in
// heartbeat payloads (§4.3.3).
func (b *Bus) PeerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.peers)
}
