// Copyright (C) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package substrate implements the optional substrate-family chain
// driver (§4.1): WebSocket JSON-RPC, block-walking receipt synthesis,
// and ed25519 signing. An additional driver variant need only satisfy
// the same populate/isValid/isProcessed contract as the EVM family;
// per-block fee bookkeeping the original substrate driver tracked is
// explicitly left out of the core (§9).
package substrate

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/luxfi/log"
	"go.uber.org/zap"

	"github.com/vladiator-network/core/config"
	"github.com/vladiator-network/core/driver"
	"github.com/vladiator-network/core/message"
)

// Driver implements driver.Driver for substrate-family chains. The
// wire-level JSON-RPC framing follows the raw gorilla/websocket idiom
// (the pack has no dedicated substrate client; this is the closest
// grounded analog for a hand-rolled JSON-RPC-over-WS client).
type Driver struct {
	chainID         string
	messageContract string
	conn            *websocket.Conn
	callMu          sync.Mutex
	privateKey      ed25519.PrivateKey
	logger          log.Logger
	nextRequestID   atomic.Int64
}

var _ driver.Driver = (*Driver)(nil)

// NewDriver constructs a substrate driver. privateKeySeed is a 32-byte
// ed25519 seed supplied by configuration (§1's Non-goals: no key
// management beyond config input). ed25519 stands in for the
// chain-appropriate scheme §4.1 asks for when no ecosystem sr25519
// library is available (see DESIGN.md).
func NewDriver(chainID string, privateKeySeed []byte, logger log.Logger) (*Driver, error) {
	if len(privateKeySeed) != ed25519.SeedSize {
		return nil, fmt.Errorf("substrate: private key seed must be %d bytes", ed25519.SeedSize)
	}
	return &Driver{
		chainID:    chainID,
		privateKey: ed25519.NewKeyFromSeed(privateKeySeed),
		logger:     logger,
	}, nil
}

func (d *Driver) ChainID() string { return d.chainID }

func (d *Driver) Connect(ctx context.Context, cfg config.NetworkConfig) error {
	if cfg.MessageContract == "" {
		return fmt.Errorf("%w: no message contract configured for chain %s", driver.ErrConnect, d.chainID)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.RPC, nil)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", driver.ErrConnect, cfg.RPC, err)
	}
	d.conn = conn
	d.messageContract = strings.ToLower(cfg.MessageContract)
	d.logger.Info(
		"Connected substrate driver",
		zap.String("chainID", d.chainID),
		zap.String("messageContract", d.messageContract),
	)
	return nil
}

// parseTransactionHash parses the "<block>-<extrinsicIndex>" transaction hash
// shape used by the substrate family (§4.1).
func parseTransactionHash(txHash string) (blockNumber uint64, extrinsicIndex uint32, err error) {
	parts := strings.SplitN(txHash, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("substrate: malformed transactionHash %q", txHash)
	}
	b, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("substrate: malformed block number in %q: %w", txHash, err)
	}
	i, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("substrate: malformed extrinsic index in %q: %w", txHash, err)
	}
	return b, uint32(i), nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// call issues a single JSON-RPC request and reads its response.
// gorilla/websocket allows at most one concurrent reader and one
// concurrent writer per connection (§5's "multiple
// processMessageRequest invocations may be in flight simultaneously"
// means this driver's own methods are called concurrently too), so
// callMu serializes every write+read pair over the one shared
// connection.
func (d *Driver) call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	id := d.nextRequestID.Add(1)
	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}

	d.callMu.Lock()
	defer d.callMu.Unlock()

	if err := d.conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("%w: %v", driver.ErrTransport, err)
	}

	var resp rpcResponse
	if err := d.conn.ReadJSON(&resp); err != nil {
		return nil, fmt.Errorf("%w: %v", driver.ErrTransport, err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("%w: %s", driver.ErrTransport, resp.Error.Message)
	}
	if resp.ID != id {
		return nil, fmt.Errorf("%w: response id %d does not match request id %d", driver.ErrTransport, resp.ID, id)
	}
	return resp.Result, nil
}

// blockLogEvent is a single EVM-shaped Log event embedded in a
// substrate block's event set (§4.1: "filtering Log events whose EVM
// address equals the message contract").
type blockLogEvent struct {
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	FeatureID   *int     `json:"featureId,omitempty"`
	FeatureData string   `json:"featureData,omitempty"`
	message.Values
}

// blockEvents synthesizes a receipt by walking the block's events for
// the given extrinsic index, filtering for Log events from the
// configured message contract.
func (d *Driver) blockEvents(ctx context.Context, blockNumber uint64, extrinsicIndex uint32) (*blockLogEvent, error) {
	raw, err := d.call(ctx, "state_getBlockEvents", blockNumber, extrinsicIndex)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var events []blockLogEvent
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, fmt.Errorf("substrate: decode block events: %w", err)
	}
	for i := range events {
		if strings.EqualFold(events[i].Address, d.messageContract) {
			return &events[i], nil
		}
	}
	return nil, nil
}

func (d *Driver) PopulateMessage(ctx context.Context, m *message.Message) error {
	blockNumber, extrinsicIndex, err := parseTransactionHash(m.TransactionHash)
	if err != nil {
		return err
	}
	ev, err := d.blockEvents(ctx, blockNumber, extrinsicIndex)
	if err != nil {
		return err
	}
	if ev == nil {
		m.Values = nil
		return nil
	}
	vals := ev.Values
	m.Values = &vals
	if ev.FeatureID != nil {
		m.FeatureID = ev.FeatureID
		m.FeatureData = message.HexBytes(ev.FeatureData)
	}
	return nil
}

// IsMessageValid walks the block's events for the authoritative log
// and compares it against claimed, the peer's original assertion —
// not m.Values, which PopulateMessage has already overwritten with
// this same on-chain fetch.
func (d *Driver) IsMessageValid(ctx context.Context, claimed *message.Values, m *message.Message) (bool, error) {
	if m.Values == nil {
		return false, nil
	}
	blockNumber, extrinsicIndex, err := parseTransactionHash(m.TransactionHash)
	if err != nil {
		return false, err
	}
	ev, err := d.blockEvents(ctx, blockNumber, extrinsicIndex)
	if err != nil {
		return false, err
	}
	if ev == nil {
		return false, nil
	}
	if claimed != nil && !ev.Values.Equal(*claimed) {
		return false, nil
	}

	latestRaw, err := d.call(ctx, "chain_getHeader")
	if err != nil {
		return false, err
	}
	var header struct {
		Number string `json:"number"`
	}
	if err := json.Unmarshal(latestRaw, &header); err != nil {
		return false, fmt.Errorf("substrate: decode header: %w", err)
	}
	latest, err := strconv.ParseUint(strings.TrimPrefix(header.Number, "0x"), 16, 64)
	if err != nil {
		return false, fmt.Errorf("substrate: parse block number: %w", err)
	}
	var confirmations uint64
	if latest >= blockNumber {
		confirmations = latest - blockNumber + 1
	}
	if confirmations < uint64(m.Values.Confirmations) {
		return false, driver.ErrConfirmationShortfall
	}
	return true, nil
}

func (d *Driver) IsMessageProcessed(ctx context.Context, txID string) (bool, error) {
	raw, err := d.call(ctx, "state_call", "MessageApi_processed_transfers", txID)
	if err != nil {
		return false, err
	}
	var processed bool
	if err := json.Unmarshal(raw, &processed); err != nil {
		return false, fmt.Errorf("substrate: decode processedTransfers result: %w", err)
	}
	return processed, nil
}

// SignTransactionData signs the canonical tuple's digest with ed25519,
// the same 32-byte-digest contract the EVM driver satisfies, just under
// a different scheme (§4.1: "an equivalent blockchain-appropriate
// scheme for others").
func (d *Driver) SignTransactionData(ctx context.Context, tuple driver.CanonicalTuple) (string, error) {
	digest := canonicalDigest(tuple)
	sig := ed25519.Sign(d.privateKey, digest)
	return "0x" + hexEncode(sig), nil
}

func canonicalDigest(tuple driver.CanonicalTuple) []byte {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s|", tuple.TxID, tuple.SourceChainID, tuple.DestChainID, tuple.Sender, tuple.Recipient)
	h.Write(tuple.Data)
	return h.Sum(nil)
}

func hexEncode(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hextable[c>>4]
		out[i*2+1] = hextable[c&0x0f]
	}
	return string(out)
}

func (d *Driver) GetChainsig(ctx context.Context) (string, error) {
	raw, err := d.call(ctx, "state_call", "MessageApi_chainsig")
	if err != nil {
		return "", err
	}
	var signer string
	if err := json.Unmarshal(raw, &signer); err != nil {
		return "", fmt.Errorf("substrate: decode chainsig: %w", err)
	}
	return signer, nil
}

func (d *Driver) GetExsig(ctx context.Context, project string) (string, error) {
	raw, err := d.call(ctx, "state_call", "MessageApi_exsig", project)
	if err != nil {
		return "", err
	}
	var signer string
	if err := json.Unmarshal(raw, &signer); err != nil {
		return "", fmt.Errorf("substrate: decode exsig: %w", err)
	}
	return signer, nil
}

// GasPrice calls the message pallet's own fee-per-weight view, the
// substrate-family equivalent of eth_gasPrice.
func (d *Driver) GasPrice(ctx context.Context) (*big.Int, error) {
	raw, err := d.call(ctx, "state_call", "MessageApi_gasPrice")
	if err != nil {
		return nil, err
	}
	var hexPrice string
	if err := json.Unmarshal(raw, &hexPrice); err != nil {
		return nil, fmt.Errorf("substrate: decode gasPrice: %w", err)
	}
	price, ok := new(big.Int).SetString(strings.TrimPrefix(hexPrice, "0x"), 16)
	if !ok {
		return nil, fmt.Errorf("substrate: malformed gasPrice %q", hexPrice)
	}
	return price, nil
}
