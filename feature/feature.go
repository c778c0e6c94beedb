// Copyright (C) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package feature implements the signer-feature plug-in registry
// (§4.5): an optional post-validation stage keyed by a message's
// featureId. A Registry maps featureId to a long-lived Feature whose
// methods are called once per message.
package feature

import (
	"context"
	"errors"
	"fmt"

	"github.com/vladiator-network/core/driver"
	"github.com/vladiator-network/core/message"
)

// ErrUnknownFeature is returned when a message carries a featureId with
// no registered Feature. The coordinator turns this into
// FEATURE:FAILED, not a dropped message (§4.5).
var ErrUnknownFeature = errors.New("feature: unknown feature id")

// Feature is a signer-side plug-in invoked after a request has passed
// on-chain validation but before it is signed (§4.5).
type Feature interface {
	ID() int
	Name() string
	Description() string

	// Process runs the feature's side computation against the driver
	// that owns the message's destination chain (values.chain), returning
	// the bytes to attach as featureReply. An error here becomes
	// FEATURE:FAILED.
	Process(ctx context.Context, d driver.Driver, m *message.Message) ([]byte, error)

	// IsMessageValid gives a feature a chance to reject a message beyond
	// the driver's own on-chain check (§4.5: most features return true
	// unconditionally).
	IsMessageValid(ctx context.Context, d driver.Driver, m *message.Message) (bool, error)
}

// Registry holds the features a node has opted into, keyed by
// featureId. Entries are added at startup and never removed.
type Registry struct {
	features map[int]Feature
}

func NewRegistry() *Registry {
	return &Registry{features: make(map[int]Feature)}
}

func (r *Registry) Register(f Feature) {
	r.features[f.ID()] = f
}

func (r *Registry) Get(featureID int) (Feature, bool) {
	f, ok := r.features[featureID]
	return f, ok
}

// Run executes the feature identified by m.FeatureID. It is a no-op
// returning (nil, nil) when the message carries no featureId — most
// requests have none and skip the feature stage entirely (§4.5).
func (r *Registry) Run(ctx context.Context, d driver.Driver, m *message.Message) ([]byte, error) {
	if m.FeatureID == nil {
		return nil, nil
	}
	f, ok := r.Get(*m.FeatureID)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFeature, *m.FeatureID)
	}
	valid, err := f.IsMessageValid(ctx, d, m)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, fmt.Errorf("feature %q rejected message for tx %s", f.Name(), messageTxID(m))
	}
	return f.Process(ctx, d, m)
}

func messageTxID(m *message.Message) string {
	if m.Values == nil {
		return ""
	}
	return m.Values.TxID
}
