package classify

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"transferWatch/internal/model"
)

// TransferTopic is keccak256("Transfer(address,address,uint256)").
var TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// Shape of a standard ERC20 Transfer log: signature, indexed from, indexed
// to, and the value as the single non-indexed data word. ERC721 transfers
// index the token id and carry four topics.
const (
	transferTopicCount = 3
	transferFromTopic  = 1
	transferToTopic    = 2
	transferDataLength = 32
)

var transferValueArgs = abi.Arguments{{Name: "value", Type: mustNewType("uint256")}}

func mustNewType(name string) abi.Type {
	typ, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// TransferLog is a decoded ERC20 Transfer log.
type TransferLog struct {
	Token common.Address
	From  common.Address
	To    common.Address
	Value *big.Int
	Index uint
}

// IsTransferLog reports whether the log has the ERC20 Transfer shape.
func IsTransferLog(log model.Log) bool {
	return len(log.Topics) == transferTopicCount && log.Topics[0] == TransferTopic
}

// DecodeTransferLog decodes from, to and value from a Transfer-shaped log.
func DecodeTransferLog(log model.Log) (TransferLog, error) {
	if !IsTransferLog(log) {
		return TransferLog{}, fmt.Errorf("not a transfer log: %d topics", len(log.Topics))
	}

	from, err := topicAddress(log.Topics[transferFromTopic])
	if err != nil {
		return TransferLog{}, fmt.Errorf("from topic: %w", err)
	}
	to, err := topicAddress(log.Topics[transferToTopic])
	if err != nil {
		return TransferLog{}, fmt.Errorf("to topic: %w", err)
	}

	if len(log.Data) != transferDataLength {
		return TransferLog{}, fmt.Errorf("data length %d, want %d", len(log.Data), transferDataLength)
	}
	values, err := transferValueArgs.Unpack(log.Data)
	if err != nil {
		return TransferLog{}, fmt.Errorf("unpack value: %w", err)
	}
	value, ok := values[0].(*big.Int)
	if !ok {
		return TransferLog{}, fmt.Errorf("unexpected value type %T", values[0])
	}

	return TransferLog{
		Token: log.Address,
		From:  from,
		To:    to,
		Value: value,
		Index: log.Index,
	}, nil
}

func topicAddress(topic common.Hash) (common.Address, error) {
	for _, b := range topic[:common.HashLength-common.AddressLength] {
		if b != 0 {
			return common.Address{}, fmt.Errorf("dirty address padding in %s", topic.Hex())
		}
	}
	return common.BytesToAddress(topic[common.HashLength-common.AddressLength:]), nil
}
