// Copyright (C) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package evm implements the EVM-family chain driver (§4.1): JSON-RPC
// over HTTP, receipt-hash transaction identity, and secp256k1
// personal-message signing, grounded on vms/evm/destination_client.go
// and vms/evm/subscriber.go.
package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/luxfi/crypto"
	ethereum "github.com/luxfi/geth"
	"github.com/luxfi/geth/accounts/abi"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"
	"github.com/luxfi/geth/ethclient"
	"github.com/luxfi/log"
	"go.uber.org/zap"

	"github.com/vladiator-network/core/cache"
	"github.com/vladiator-network/core/config"
	"github.com/vladiator-network/core/driver"
	"github.com/vladiator-network/core/message"
)

const (
	viewCallTimeout     = 10 * time.Second
	chainsigCacheTTL    = 30 * time.Second
	confirmationRetries = 5 * time.Second
)

// Driver implements driver.Driver for EVM-family chains.
type Driver struct {
	chainID         string
	messageContract common.Address
	client          *ethclient.Client
	privateKey      *ecdsa.PrivateKey
	signerAddress   common.Address
	logger          log.Logger

	chainsigCache *cache.TTLCache[string, common.Address]
}

var _ driver.Driver = (*Driver)(nil)

// NewDriver constructs an EVM driver for the given chain id. The node's
// private key is a configuration input (§1's Non-goals: no key
// management beyond that) used to sign outgoing SignTransactionData
// calls.
func NewDriver(chainID string, privateKeyHex string, logger log.Logger) (*Driver, error) {
	pk, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("evm: invalid node private key: %w", err)
	}
	return &Driver{
		chainID:       chainID,
		privateKey:    pk,
		signerAddress: common.Address(crypto.PubkeyToAddress(pk.PublicKey)),
		logger:        logger,
		chainsigCache: cache.NewTTLCache[string, common.Address](chainsigCacheTTL),
	}, nil
}

func (d *Driver) ChainID() string { return d.chainID }

// Connect validates the chain has a known message-contract address and
// opens an RPC session, per §4.1.
func (d *Driver) Connect(ctx context.Context, cfg config.NetworkConfig) error {
	if cfg.MessageContract == "" {
		return fmt.Errorf("%w: no message contract configured for chain %s", driver.ErrConnect, d.chainID)
	}
	client, err := ethclient.DialContext(ctx, cfg.RPC)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", driver.ErrConnect, cfg.RPC, err)
	}
	d.client = client
	d.messageContract = common.HexToAddress(cfg.MessageContract)
	d.logger.Info(
		"Connected EVM driver",
		zap.String("chainID", d.chainID),
		zap.String("messageContract", d.messageContract.Hex()),
	)
	return nil
}

type decodedEvent struct {
	values      message.Values
	featureID   *int
	featureData message.HexBytes
}

// fetchEvent decodes the receipt for txHash and extracts the
// authoritative Values (and optional feature fields) from its logs, or
// returns (nil, nil) if the expected event is not present.
func (d *Driver) fetchEvent(ctx context.Context, txHash string) (*decodedEvent, *types.Receipt, error) {
	hash := common.HexToHash(txHash)
	receipt, err := d.client.TransactionReceipt(ctx, hash)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", driver.ErrTransport, err)
	}

	var out *decodedEvent
	for _, l := range receipt.Logs {
		if !sameAddress(l.Address, d.messageContract) {
			continue
		}
		switch l.Topics[0] {
		case topicSendRequested:
			vals, err := decodeSendRequested(l.Data)
			if err != nil {
				return nil, receipt, fmt.Errorf("evm: decode SendRequested: %w", err)
			}
			if out == nil {
				out = &decodedEvent{}
			}
			out.values = vals
		case topicSendMessageWithFeature:
			fid, fdata, err := decodeSendMessageWithFeature(l.Data)
			if err != nil {
				return nil, receipt, fmt.Errorf("evm: decode SendMessageWithFeature: %w", err)
			}
			if out == nil {
				out = &decodedEvent{}
			}
			out.featureID = &fid
			out.featureData = fdata
		}
	}
	return out, receipt, nil
}

func decodeSendRequested(data []byte) (message.Values, error) {
	vals, err := sendRequestedArgs.Unpack(data)
	if err != nil {
		return message.Values{}, err
	}
	txID := vals[0].(*big.Int)
	sender := vals[1].(common.Address)
	recipient := vals[2].(common.Address)
	chain := vals[3].(*big.Int)
	express := vals[4].(bool)
	payload := vals[5].([]byte)
	confirmations := vals[6].(uint16)

	return message.Values{
		TxID:          txID.String(),
		Sender:        sender.Hex(),
		Recipient:     recipient.Hex(),
		Chain:         chain.String(),
		Express:       express,
		EncodedData:   payload,
		Confirmations: int(confirmations),
	}, nil
}

func decodeSendMessageWithFeature(data []byte) (int, message.HexBytes, error) {
	vals, err := sendMessageWithFeatureArgs.Unpack(data)
	if err != nil {
		return 0, nil, err
	}
	featureID := vals[2].(uint32)
	featureData := vals[3].([]byte)
	return int(featureID), featureData, nil
}

// PopulateMessage fetches the on-chain receipt and overwrites m.Values
// (and feature fields) from it. Peer-supplied fields are discarded.
func (d *Driver) PopulateMessage(ctx context.Context, m *message.Message) error {
	ev, _, err := d.fetchEvent(ctx, m.TransactionHash)
	if err != nil {
		return err
	}
	if ev == nil {
		m.Values = nil
		return nil
	}
	m.Values = &ev.values
	if ev.featureID != nil {
		m.FeatureID = ev.featureID
		m.FeatureData = ev.featureData
	}
	return nil
}

// IsMessageValid independently re-derives the on-chain truth and
// compares it against claimed — the peer's original assertion, not
// m.Values, which by this point already holds that same on-chain fetch
// via PopulateMessage and would make the comparison tautological.
func (d *Driver) IsMessageValid(ctx context.Context, claimed *message.Values, m *message.Message) (bool, error) {
	if m.Values == nil {
		return false, nil
	}
	ev, receipt, err := d.fetchEvent(ctx, m.TransactionHash)
	if err != nil {
		return false, err
	}
	if ev == nil {
		return false, nil
	}
	if claimed != nil && !ev.values.Equal(*claimed) {
		return false, nil
	}

	confirmations, err := d.confirmationsFor(ctx, receipt.BlockNumber)
	if err != nil {
		return false, err
	}
	if confirmations < uint64(m.Values.Confirmations) {
		return false, driver.ErrConfirmationShortfall
	}
	return true, nil
}

// confirmationsFor reads the chain head once and returns the number of
// confirmations blockNumber has at that head (0 if the head is behind
// it). A failing head lookup is retried with exponential backoff for up
// to confirmationRetries; it does not wait for further blocks, so a
// short count is returned as read.
func (d *Driver) confirmationsFor(ctx context.Context, blockNumber *big.Int) (uint64, error) {
	var latest uint64
	op := func() error {
		n, err := d.client.BlockNumber(ctx)
		if err != nil {
			return err
		}
		latest = n
		return nil
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = confirmationRetries
	if err := backoff.Retry(op, b); err != nil {
		return 0, fmt.Errorf("%w: %v", driver.ErrTransport, err)
	}
	if latest < blockNumber.Uint64() {
		return 0, nil
	}
	return latest - blockNumber.Uint64() + 1, nil
}

// IsMessageProcessed performs the view call processedTransfers(txId)
// against this driver's message contract.
func (d *Driver) IsMessageProcessed(ctx context.Context, txID string) (bool, error) {
	txIDBig, ok := new(big.Int).SetString(txID, 10)
	if !ok {
		return false, fmt.Errorf("evm: invalid txId %q", txID)
	}
	packed, err := packSelectorArgs(processedTransfersSelector, mustArgs("uint256"), txIDBig)
	if err != nil {
		return false, err
	}
	out, err := d.call(ctx, packed)
	if err != nil {
		return false, err
	}
	if len(out) == 0 {
		return false, nil
	}
	return new(big.Int).SetBytes(out).Sign() != 0, nil
}

// SignTransactionData ABI-encodes the canonical tuple, keccak-256s it,
// and signs the digest with personal-message framing so that on-chain
// ecrecover matches (§4.1, §6).
func (d *Driver) SignTransactionData(ctx context.Context, tuple driver.CanonicalTuple) (string, error) {
	txID, ok := new(big.Int).SetString(tuple.TxID, 10)
	if !ok {
		return "", fmt.Errorf("evm: invalid txId %q", tuple.TxID)
	}
	srcChain, ok := new(big.Int).SetString(tuple.SourceChainID, 10)
	if !ok {
		return "", fmt.Errorf("evm: invalid sourceChainId %q", tuple.SourceChainID)
	}
	destChain, ok := new(big.Int).SetString(tuple.DestChainID, 10)
	if !ok {
		return "", fmt.Errorf("evm: invalid destChainId %q", tuple.DestChainID)
	}

	packed, err := canonicalTupleArgs.Pack(
		txID,
		srcChain,
		destChain,
		common.HexToAddress(tuple.Sender),
		common.HexToAddress(tuple.Recipient),
		tuple.Data,
	)
	if err != nil {
		return "", fmt.Errorf("evm: pack canonical tuple: %w", err)
	}

	digest := crypto.Keccak256(packed)
	sig, err := crypto.Sign(personalMessageHash(digest), d.privateKey)
	if err != nil {
		return "", fmt.Errorf("evm: sign: %w", err)
	}
	return "0x" + common.Bytes2Hex(sig), nil
}

// personalMessageHash applies the "\x19Ethereum Signed Message:\n32"
// framing so that on-chain ecrecover over toEthSignedMessageHash matches
// the signature this driver produces.
func personalMessageHash(digest []byte) []byte {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(digest))
	return crypto.Keccak256([]byte(prefix), digest)
}

// GetChainsig returns the contract's current authoritative signer,
// cached briefly since it changes rarely.
func (d *Driver) GetChainsig(ctx context.Context) (string, error) {
	addr, err := d.chainsigCache.Get("chainsig", func(string) (common.Address, error) {
		out, err := d.call(ctx, chainsigSelector)
		if err != nil {
			return common.Address{}, err
		}
		vals, err := setChainsigArgs.Unpack(out)
		if err != nil || len(vals) == 0 {
			return common.Address{}, fmt.Errorf("evm: decode chainsig: %w", err)
		}
		return vals[0].(common.Address), nil
	}, false)
	if err != nil {
		return "", err
	}
	return addr.Hex(), nil
}

// GetExsig returns the external signer for project, cached briefly.
func (d *Driver) GetExsig(ctx context.Context, project string) (string, error) {
	key := "exsig:" + project
	addr, err := d.chainsigCache.Get(key, func(string) (common.Address, error) {
		args := mustArgs("string")
		packed, err := packSelectorArgs(exsigSelector, args, project)
		if err != nil {
			return common.Address{}, err
		}
		out, err := d.call(ctx, packed)
		if err != nil {
			return common.Address{}, err
		}
		vals, err := mustArgs("address").Unpack(out)
		if err != nil || len(vals) == 0 {
			return common.Address{}, fmt.Errorf("evm: decode exsig: %w", err)
		}
		return vals[0].(common.Address), nil
	}, false)
	if err != nil {
		return "", err
	}
	return addr.Hex(), nil
}

// GasPrice reports the chain's current suggested gas price via
// eth_gasPrice.
func (d *Driver) GasPrice(ctx context.Context) (*big.Int, error) {
	price, err := d.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", driver.ErrTransport, err)
	}
	return price, nil
}

func packSelectorArgs(selector []byte, args abi.Arguments, vs ...interface{}) ([]byte, error) {
	packed, err := args.Pack(vs...)
	if err != nil {
		return nil, err
	}
	return append(append([]byte{}, selector...), packed...), nil
}

func (d *Driver) call(ctx context.Context, data []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, viewCallTimeout)
	defer cancel()
	out, err := d.client.CallContract(ctx, ethereum.CallMsg{
		To:   &d.messageContract,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", driver.ErrTransport, err)
	}
	return out, nil
}
