// Copyright (C) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package evm

import (
	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/accounts/abi"
	"github.com/luxfi/geth/common"
)

// The five authoritative event signatures from §4.1. Topic hashes are
// computed once at package init time and compared byte-for-byte against
// log topics.
const (
	sendRequestedSig          = "SendRequested(uint256,address,address,uint256,bool,bytes,uint16)"
	sendProcessedSig          = "SendProcessed(uint256,uint256,address,address)"
	sendMessageWithFeatureSig = "SendMessageWithFeature(uint256,uint256,uint32,bytes)"
	successSig                = "Success(uint256,uint256,address,address,uint256)"
	setChainsigSig            = "SetChainsig(address)"
)

var (
	topicSendRequested          = common.Hash(crypto.Keccak256Hash([]byte(sendRequestedSig)))
	topicSendProcessed          = common.Hash(crypto.Keccak256Hash([]byte(sendProcessedSig)))
	topicSendMessageWithFeature = common.Hash(crypto.Keccak256Hash([]byte(sendMessageWithFeatureSig)))
	topicSuccess                = common.Hash(crypto.Keccak256Hash([]byte(successSig)))
	topicSetChainsig            = common.Hash(crypto.Keccak256Hash([]byte(setChainsigSig)))
)

func mustArgs(types ...string) abi.Arguments {
	args := make(abi.Arguments, len(types))
	for i, t := range types {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(err)
		}
		args[i] = abi.Argument{Type: typ}
	}
	return args
}

// None of these events mark any parameter indexed in §4.1, so every
// field is ABI-decoded from the log's data section, not its topics.
var (
	sendRequestedArgs          = mustArgs("uint256", "address", "address", "uint256", "bool", "bytes", "uint16")
	sendProcessedArgs          = mustArgs("uint256", "uint256", "address", "address")
	sendMessageWithFeatureArgs = mustArgs("uint256", "uint256", "uint32", "bytes")
	successArgs                = mustArgs("uint256", "uint256", "address", "address", "uint256")
	setChainsigArgs             = mustArgs("address")

	canonicalTupleArgs = mustArgs("uint256", "uint256", "uint256", "address", "address", "bytes")
)

// processedTransfersSelector / chainsigSelector / exsigSelector are the
// 4-byte function selectors for the view calls §4.1 names.
var (
	processedTransfersSelector = crypto.Keccak256([]byte("processedTransfers(uint256)"))[:4]
	chainsigSelector           = crypto.Keccak256([]byte("chainsig()"))[:4]
	exsigSelector              = crypto.Keccak256([]byte("exsig(string)"))[:4]
)

func sameAddress(a, b common.Address) bool {
	return a == b
}
