// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package message defines the self-describing gossip frame exchanged
// between validator nodes and the closed topic taxonomy it is published
// under.
package message

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// Topic is one of the closed set of gossip topics the bus carries.
type Topic string

const (
	Heartbeat          Topic = "HEARTBEAT"
	MessageRequest     Topic = "MESSAGE:REQUEST"
	MessageSigned      Topic = "MESSAGE:SIGNED"
	MessageQueued      Topic = "MESSAGE:QUEUED"
	MessageExecution   Topic = "MESSAGE:EXECUTION"
	MessageExists      Topic = "MESSAGE:EXISTS"
	MessageInvalid     Topic = "MESSAGE:INVALID"
	MessageReset       Topic = "MESSAGE:RESET"
	FeatureStart       Topic = "FEATURE:START"
	FeatureFailed      Topic = "FEATURE:FAILED"
	FeatureCompleted   Topic = "FEATURE:COMPLETED"
	PenaltyChainMiss   Topic = "PENALTY:CHAINMISS"
	PenaltyTattle      Topic = "PENALTY:TATTLE"
	PenaltySigned      Topic = "PENALTY:SIGNED"
	PenaltyExecution   Topic = "PENALTY:EXECUTION"
)

// Topics is the closed set of topics in subscription order. Every node
// subscribes to all of them.
var Topics = []Topic{
	Heartbeat,
	MessageRequest,
	MessageSigned,
	MessageQueued,
	MessageExecution,
	MessageExists,
	MessageInvalid,
	MessageReset,
	FeatureStart,
	FeatureFailed,
	FeatureCompleted,
	PenaltyChainMiss,
	PenaltyTattle,
	PenaltySigned,
	PenaltyExecution,
}

// HeartbeatSentinel is the magic source id carried by HEARTBEAT frames.
// Preserved on the wire for interop with existing peers; never a real
// chain id.
const HeartbeatSentinel = 1010101010

var (
	ErrMissingType   = errors.New("message: missing type")
	ErrMissingAuthor = errors.New("message: missing author")
)

// HexBytes round-trips a byte slice through JSON as a 0x-prefixed hex
// string, matching the wire representation of encodedData in §3.
type HexBytes []byte

func (h HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal("0x" + hex.EncodeToString(h))
}

func (h *HexBytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*h = nil
		return nil
	}
	s = trimHexPrefix(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("message: invalid hex bytes: %w", err)
	}
	*h = b
	return nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && (s[0:2] == "0x" || s[0:2] == "0X") {
		return s[2:]
	}
	return s
}

// Values carries the message-bearing payload attached to a REQUEST,
// SIGNED, or related frame. All fields are authoritative only once they
// have passed through a driver's populateMessage — peer-supplied values
// are claims, not facts, until verified on-chain.
type Values struct {
	TxID          string   `json:"txId"`
	Sender        string   `json:"sender"`
	Recipient     string   `json:"recipient"`
	Chain         string   `json:"chain"`
	Express       bool     `json:"express"`
	EncodedData   HexBytes `json:"encodedData,omitempty"`
	Confirmations int      `json:"confirmations"`
}

// Equal reports whether two Values describe the same canonical request,
// using case-insensitive address comparison and byte-exact payload
// comparison, as required by the isMessageValid contract in §4.1.
func (v Values) Equal(other Values) bool {
	return v.TxID == other.TxID &&
		equalFoldAddress(v.Sender, other.Sender) &&
		equalFoldAddress(v.Recipient, other.Recipient) &&
		v.Chain == other.Chain &&
		v.Express == other.Express &&
		bytesEqual(v.EncodedData, other.EncodedData)
}

func equalFoldAddress(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Message is the self-describing frame exchanged over the bus (§3).
type Message struct {
	Type            Topic    `json:"type"`
	Author          string   `json:"author"`
	Source          uint64   `json:"source"`
	TransactionHash string   `json:"transactionHash,omitempty"`
	Values          *Values  `json:"values,omitempty"`

	FeatureID      *int     `json:"featureId,omitempty"`
	FeatureData    HexBytes `json:"featureData,omitempty"`
	FeatureReply   HexBytes `json:"featureReply,omitempty"`
	FeatureFailed  bool     `json:"featureFailed,omitempty"`

	Signer    string `json:"signer,omitempty"`
	Signature string `json:"signature,omitempty"`
	Chainsig  string `json:"chainsig,omitempty"`
	Exsig     string `json:"exsig,omitempty"`

	// Payload carries the heartbeat's free-form body (§4.3.3). Content
	// is unconstrained; this repo reports uptime and peer count.
	Payload string `json:"payload,omitempty"`

	ExecutionHash    string `json:"executionHash,omitempty"`
	SourceGas        string `json:"sourceGas,omitempty"`
	DestGas          string `json:"destGas,omitempty"`
	DestGasRefund    string `json:"destGasRefund,omitempty"`
	TokenPrice       string `json:"tokenPrice,omitempty"`
	ValidatorBalance string `json:"validatorBalance,omitempty"`
}

// Validate checks the two fields every frame, regardless of topic, must
// carry (§4.3's wire frame contract).
func (m *Message) Validate() error {
	if m.Type == "" {
		return ErrMissingType
	}
	if m.Author == "" {
		return ErrMissingAuthor
	}
	return nil
}

// IsHeartbeat reports whether m.Source is the heartbeat sentinel.
func (m *Message) IsHeartbeat() bool {
	return m.Source == HeartbeatSentinel
}
