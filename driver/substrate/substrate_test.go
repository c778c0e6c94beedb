// Copyright (C) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package substrate

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"

	"github.com/vladiator-network/core/config"
	"github.com/vladiator-network/core/driver"
)

func newTestDriver(t *testing.T) *Driver {
	t.Helper()
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	d, err := NewDriver("1000", seed, log.NoLog{})
	require.NoError(t, err)
	return d
}

func testTuple() driver.CanonicalTuple {
	return driver.CanonicalTuple{
		TxID:          "42",
		SourceChainID: "1000",
		DestChainID:   "2000",
		Sender:        "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY",
		Recipient:     "5FHneW46xGXgs5mUiveU4sbTyGBzmstUspZC92UhjJM694ty",
		Data:          []byte("payload"),
	}
}

func TestNewDriverRejectsWrongSeedLength(t *testing.T) {
	_, err := NewDriver("1000", []byte("too-short"), log.NoLog{})
	require.Error(t, err)
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

	tuple.Data = []byte("different-payload")
	otherSig, err := d.SignTransactionData(context.Background(), tuple)
	require.NoError(t, err)

	require.NotEqual(t, sig, otherSig)
}

func TestSignTransactionDataVerifiesWithPublicKey(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	d, err := NewDriver("1000", seed, log.NoLog{})
	require.NoError(t, err)
	pub := d.privateKey.Public().(ed25519.PublicKey)

	tuple := testTuple()
	sigHex, err := d.SignTransactionData(context.Background(), tuple)
	require.NoError(t, err)
	require.True(t, len(sigHex) > 2 && sigHex[:2] == "0x")

	sig := hexDecode(t, sigHex[2:])
	require.True(t, ed25519.Verify(pub, canonicalDigest(tuple), sig))
}

func hexDecode(t *testing.T, s string) []byte {
	t.Helper()
	out := make([]byte, len(s)/2)
	for i := range out {
		hi := fromHexChar(s[i*2])
		lo := fromHexChar(s[i*2+1])
		out[i] = hi<<4 | lo
	}
	return out
}

func fromHexChar(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return 0
	}
}

func TestParseTransactionHash(t *testing.T) {
	block, idx, err := parseTransactionHash("1234-5")
	require.NoError(t, err)
	require.Equal(t, uint64(1234), block)
	require.Equal(t, uint32(5), idx)

	_, _, err = parseTransactionHash("malformed")
	require.Error(t, err)

	_, _, err = parseTransactionHash("abc-5")
	require.Error(t, err)
}

func TestConnectRejectsMissingMessageContract(t *testing.T) {
	d := newTestDriver(t)
	err := d.Connect(context.Background(), config.NetworkConfig{RPC: "ws://127.0.0.1:0"})
	require.ErrorIs(t, err, driver.ErrConnect)
}
