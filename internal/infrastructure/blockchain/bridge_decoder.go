package blockchain

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"bridge-flow-indexer/internal/domain/entity"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Bridge event names
const (
	EventBridgeTokens     = "BridgeTokens"
	EventMintBridgeTokens = "MintBridgeTokens"
)

// DefaultBridgeABI describes the two events emitted by the token bridge
const DefaultBridgeABI = `[
	{
		"type": "event",
		"name": "BridgeTokens",
		"anonymous": false,
		"inputs": [
			{"name": "tokenContractAddress", "type": "address", "indexed": true},
			{"name": "destinationBlockchainID", "type": "bytes32", "indexed": true},
			{"name": "teleporterMessageID", "type": "bytes32", "indexed": true},
			{"name": "destinationBridgeAddress", "type": "address", "indexed": false},
			{"name": "sender", "type": "address", "indexed": false},
			{"name": "recipient", "type": "address", "indexed": false},
			{"name": "amount", "type": "uint256", "indexed": false}
		]
	},
	{
		"type": "event",
		"name": "MintBridgeTokens",
		"anonymous": false,
		"inputs": [
			{"name": "wrappedTokenAddress", "type": "address", "indexed": true},
			{"name": "recipient", "type": "address", "indexed": false},
			{"name": "amount", "type": "uint256", "indexed": false}
		]
	}
]`

var errUnknownEvent = errors.New("unknown bridge event")

// BridgeDecoder turns raw bridge contract logs into transactions
type BridgeDecoder struct {
	abi      abi.ABI
	bridgeID common.Hash
	mintID   common.Hash
}

// NewBridgeDecoder parses the bridge ABI. An empty string selects DefaultBridgeABI.
func NewBridgeDecoder(abiJSON string) (*BridgeDecoder, error) {
	if strings.TrimSpace(abiJSON) == "" {
		abiJSON = DefaultBridgeABI
	}

	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse bridge ABI: %w", err)
	}

	bridge, ok := parsed.Events[EventBridgeTokens]
	if !ok {
		return nil, fmt.Errorf("bridge ABI has no %s event", EventBridgeTokens)
	}
	mint, ok := parsed.Events[EventMintBridgeTokens]
	if !ok {
		return nil, fmt.Errorf("bridge ABI has no %s event", EventMintBridgeTokens)
	}

	return &BridgeDecoder{
		abi:      parsed,
		bridgeID: bridge.ID,
		mintID:   mint.ID,
	}, nil
}

// Topics returns the topic0 values of the decoded events
func (d *BridgeDecoder) Topics() []common.Hash {
	return []common.Hash{d.bridgeID, d.mintID}
}

// Decode maps a log to a transaction. The timestamp is left to the caller.
//
// MintBridgeTokens is an outflow minted to the recipient with no sender, so its
// from is the zero address. BridgeTokens is an inflow from the sender.
func (d *BridgeDecoder) Decode(log types.Log) (*entity.Transaction, error) {
	if len(log.Topics) == 0 {
		return nil, errUnknownEvent
	}

	var (
		name     string
		flowType entity.FlowType
	)
	switch log.Topics[0] {
	case d.bridgeID:
		name, flowType = EventBridgeTokens, entity.FlowTypeInflow
	case d.mintID:
		name, flowType = EventMintBridgeTokens, entity.FlowTypeOutflow
	default:
		return nil, errUnknownEvent
	}

	fields := make(map[string]interface{})
	if err := d.abi.UnpackIntoMap(fields, name, log.Data); err != nil {
		return nil, fmt.Errorf("failed to unpack %s in tx %s: %w", name, log.TxHash.Hex(), err)
	}

	recipient, ok := fields["recipient"].(common.Address)
	if !ok {
		return nil, fmt.Errorf("%s in tx %s has no recipient", name, log.TxHash.Hex())
	}
	amount, ok := fields["amount"].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s in tx %s has no amount", name, log.TxHash.Hex())
	}

	from := entity.ZeroAddress
	if flowType == entity.FlowTypeInflow {
		sender, ok := fields["sender"].(common.Address)
		if !ok {
			return nil, fmt.Errorf("%s in tx %s has no sender", name, log.TxHash.Hex())
		}
		from = strings.ToLower(sender.Hex())
	}

	return &entity.Transaction{
		Hash:        log.TxHash.Hex(),
		From:        from,
		To:          strings.ToLower(recipient.Hex()),
		Value:       amount.String(),
		Type:        flowType,
		BlockNumber: log.BlockNumber,
	}, nil
}
