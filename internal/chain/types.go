package chain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"transferWatch/internal/model"
)

// Raw JSON-RPC shapes. Decoding only the fields we need keeps blocks with
// transaction types unknown to go-ethereum readable.

type rpcBlock struct {
	Number       hexutil.Uint64   `json:"number"`
	Hash         common.Hash      `json:"hash"`
	LogsBloom    *types.Bloom     `json:"logsBloom"`
	Timestamp    hexutil.Uint64   `json:"timestamp"`
	Transactions []rpcTransaction `json:"transactions"`
}

type rpcTransaction struct {
	Hash        common.Hash     `json:"hash"`
	BlockNumber *hexutil.Uint64 `json:"blockNumber"`
	From        *common.Address `json:"from"`
	To          *common.Address `json:"to"`
	Value       *hexutil.Big    `json:"value"`
}

type rpcReceipt struct {
	TransactionHash common.Hash `json:"transactionHash"`
	Logs            []rpcLog    `json:"logs"`
}

type rpcLog struct {
	Address  common.Address `json:"address"`
	Topics   []common.Hash  `json:"topics"`
	Data     hexutil.Bytes  `json:"data"`
	LogIndex hexutil.Uint   `json:"logIndex"`
}

func (b *rpcBlock) toModel() model.Block {
	txs := make([]model.Transaction, 0, len(b.Transactions))
	for _, tx := range b.Transactions {
		txs = append(txs, tx.toModel())
	}
	return model.Block{
		Number:       uint64(b.Number),
		Hash:         b.Hash,
		Bloom:        b.LogsBloom,
		Timestamp:    uint64(b.Timestamp),
		Transactions: txs,
	}
}

func (t rpcTransaction) toModel() model.Transaction {
	tx := model.Transaction{
		Hash: t.Hash,
		From: t.From,
		To:   t.To,
	}
	if t.Value != nil {
		tx.Value = t.Value.ToInt()
	}
	return tx
}

func (r *rpcReceipt) toModel() model.Receipt {
	logs := make([]model.Log, 0, len(r.Logs))
	for _, l := range r.Logs {
		logs = append(logs, model.Log{
			Address: l.Address,
			Topics:  l.Topics,
			Data:    l.Data,
			Index:   uint(l.LogIndex),
		})
	}
	return model.Receipt{TxHash: r.TransactionHash, Logs: logs}
}
