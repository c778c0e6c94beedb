// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package message

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessageValidate(t *testing.T) {
	m := &Message{}
	require.ErrorIs(t, m.Validate(), ErrMissingType)

	m.Type = MessageRequest
	require.ErrorIs(t, m.Validate(), ErrMissingAuthor)

	m.Author = "node-a"
	require.NoError(t, m.Validate())
}

func TestHeartbeatSentinel(t *testing.T) {
	m := &Message{Source: HeartbeatSentinel}
	require.True(t, m.IsHeartbeat())

	m.Source = 1
	require.False(t, m.IsHeartbeat())
}

func TestHexBytesRoundTrip(t *testing.T) {
	v := Values{EncodedData: HexBytes{0xde, 0xad, 0xbe, 0xef}}
	b, err := DefaultCodec.Marshal(&Message{Type: MessageRequest, Author: "a", Values: &v})
	require.NoError(t, err)

	out, err := DefaultCodec.Unmarshal(b)
	require.NoError(t, err)
	require.Equal(t, v.EncodedData, out.Values.EncodedData)
}

func TestValuesEqualCaseInsensitiveAddresses(t *testing.T) {
	a := Values{TxID: "42", Sender: "0xABCDEF", Recipient: "0x1234", Chain: "56", Confirmations: 3}
	b := Values{TxID: "42", Sender: "0xabcdef", Recipient: "0x1234", Chain: "56", Confirmations: 3}
	require.True(t, a.Equal(b))

	c := b
	c.Sender = "0xdifferent"
	require.False(t, a.Equal(c))
}

func TestValuesEqualBytesExactPayload(t *testing.T) {
	a := Values{TxID: "1", EncodedData: HexBytes{1, 2, 3}}
	b := Values{TxID: "1", EncodedData: HexBytes{1, 2, 3}}
	require.True(t, a.Equal(b))

	b.EncodedData = HexBytes{1, 2, 4}
	require.False(t, a.Equal(b))
}

func TestDecodeMalformedFrame(t *testing.T) {
	_, err := DefaultCodec.Unmarshal([]byte("not json"))
	require.Error(t, err)
}
