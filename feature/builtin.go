// Copyright (C) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package feature

import (
	"context"
	"fmt"
	"math/big"

	"github.com/vladiator-network/core/driver"
	"github.com/vladiator-network/core/message"
)

// MemoRelay is featureId 1 (§4.5): an identity passthrough that echoes
// the request's own encoded data back as the feature reply, exercising
// the plug-in path without altering behavior.
type MemoRelay struct{}

func (MemoRelay) ID() int          { return 1 }
func (MemoRelay) Name() string     { return "memo-relay" }
func (MemoRelay) Description() string {
	return "echoes the request's encoded data back as the feature reply"
}

func (MemoRelay) IsMessageValid(ctx context.Context, d driver.Driver, m *message.Message) (bool, error) {
	return true, nil
}

func (MemoRelay) Process(ctx context.Context, d driver.Driver, m *message.Message) ([]byte, error) {
	if m.Values == nil {
		return nil, nil
	}
	return []byte(m.Values.EncodedData), nil
}

// GasRebateQuote is featureId 2 (§4.5): reads the destination driver's
// current gas price and returns it ABI-encoded as the feature reply,
// exercising a feature that depends on the driver handle rather than
// message data alone.
type GasRebateQuote struct{}

func (GasRebateQuote) ID() int      { return 2 }
func (GasRebateQuote) Name() string { return "gas-rebate-quote" }
func (GasRebateQuote) Description() string {
	return "quotes the destination chain's current gas price as the rebate reply"
}

func (GasRebateQuote) IsMessageValid(ctx context.Context, d driver.Driver, m *message.Message) (bool, error) {
	return m.Values != nil, nil
}

func (GasRebateQuote) Process(ctx context.Context, d driver.Driver, m *message.Message) ([]byte, error) {
	price, err := d.GasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas-rebate-quote: %w", err)
	}
	return encodeUint256(price), nil
}

// encodeUint256 left-pads v to the 32-byte word width ABI-encoded
// uint256 arguments use.
func encodeUint256(v *big.Int) []byte {
	out := make([]byte, 32)
	v.FillBytes(out)
	return out
}
