// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package message

import "encoding/json"

// Codec serializes/deserializes Message frames for the wire. §4.3 fixes
// the wire format to UTF-8 JSON, so unlike the RLP-based warp.Codec
// this has exactly one implementation.
type Codec struct{}

// DefaultCodec is the codec instance every bus client uses.
var DefaultCodec = &Codec{}

// Marshal serializes a Message to its wire form.
func (c *Codec) Marshal(m *Message) ([]byte, error) {
	return json.Marshal(m)
}

// Unmarshal deserializes a wire frame into a Message. Malformed frames
// are a DecodeError per §7 and are the caller's responsibility to drop.
func (c *Codec) Unmarshal(b []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
