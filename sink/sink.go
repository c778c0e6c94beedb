// Copyright (C) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package sink defines the observability-sink interfaces the
// orchestrator taps on ingress (§6.2). Real chat/websocket backends
// are out of scope (§1's Non-goals); this package only owns the
// interface and the filterable no-op defaults.
package sink

import (
	"context"

	"github.com/vladiator-network/core/message"
)

// ChatSink receives a human-readable notification for a tapped frame.
type ChatSink interface {
	Send(ctx context.Context, m any) error
}

// DataStreamSink receives the structured frame itself, plus an escape
// hatch for raw payloads that don't fit message.Message.
type DataStreamSink interface {
	Send(ctx context.Context, m message.Message) error
	SendRaw(ctx context.Context, v any) error
}

// Filter is evaluated by the orchestrator before a sink's Send is
// called, so a concrete sink never sees traffic it filtered out (§6.2).
// A zero-value Filter matches everything.
type Filter struct {
	Author string
	Source uint64
	Sender string
}

// Match reports whether m passes the filter. An empty field in the
// filter is a wildcard for that dimension.
func (f Filter) Match(m *message.Message) bool {
	if f.Author != "" && f.Author != m.Author {
		return false
	}
	if f.Source != 0 && f.Source != m.Source {
		return false
	}
	if f.Sender != "" {
		if m.Values == nil || m.Values.Sender != f.Sender {
			return false
		}
	}
	return true
}

// NoopChat discards everything. The default ChatSink until a real chat
// backend is wired in by a separate project (§6).
type NoopChat struct{}

func (NoopChat) Send(ctx context.Context, m any) error { return nil }

// NoopDataStream discards everything. The default DataStreamSink.
type NoopDataStream struct{}

func (NoopDataStream) Send(ctx context.Context, m message.Message) error { return nil }
func (NoopDataStream) SendRaw(ctx context.Context, v any) error          { return nil }
