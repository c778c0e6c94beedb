// Copyright (C) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package evm

import (
	"context"
	"testing"

	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"

	"github.com/vladiator-network/core/driver"
)

const testPrivateKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func newTestDriver(t *testing.T) *Driver {
	t.Helper()
	d, err := NewDriver("1", testPrivateKeyHex, log.NoLog{})
	require.NoError(t, err)
	return d
}

func testTuple() driver.CanonicalTuple {
	return driver.CanonicalTuple{
		TxID:          "42",
		SourceChainID: "1",
		DestChainID:   "2",
		Sender:        "0x0000000000000000000000000000000000000001",
		Recipient:     "0x0000000000000000000000000000000000000002",
		Data:          []byte("payload"),
	}
}

func TestSignTransactionDataDeterministic(t *testing.T) {
	d := newTestDriver(t)
	tuple := testTuple()

	sig1, err := d.SignTransactionData(context.Background(), tuple)
	require.NoError(t, err)
	sig2, err := d.SignTransactionData(context.Background(), tuple)
	require.NoError(t, err)

	require.Equal(t, sig1, sig2, "the same key and tuple must produce a byte-identical signature")
}

func TestSignTransactionDataSensitiveToTuple(t *testing.T) {
	d := newTestDriver(t)
	tuple := testTuple()

	sig, err := d.SignTransactionData(context.Background(), tuple)
	require.NoError(t, err)

	tuple.TxID = "43"
	otherSig, err := d.SignTransactionData(context.Background(), tuple)
	require.NoError(t, err)

	require.NotEqual(t, sig, otherSig)
}

func TestSignTransactionDataRejectsMalformedChainID(t *testing.T) {
	d := newTestDriver(t)
	tuple := testTuple()
	tuple.SourceChainID = "not-a-number"

	_, err := d.SignTransactionData(context.Background(), tuple)
	require.Error(t, err)
}
