package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Block is a fetched block with its full transaction objects.
type Block struct {
	Number uint64
	Hash   common.Hash
	// Bloom is nil when the node omitted logsBloom.
	Bloom        *types.Bloom
	Timestamp    uint64
	Transactions []Transaction
}

// Transaction carries the fields the classifier needs.
// To is nil for contract creation.
type Transaction struct {
	Hash  common.Hash
	From  *common.Address
	To    *common.Address
	Value *big.Int
}

// Receipt holds the logs emitted by a transaction.
type Receipt struct {
	TxHash common.Hash
	Logs   []Log
}

// Log is a single receipt log entry.
type Log struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
	Index   uint
}
