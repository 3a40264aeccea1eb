package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the movement direction relative to the tracked wallet.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// TransferKind distinguishes native value transfers from token transfers.
type TransferKind string

const (
	TransferNative TransferKind = "native"
	TransferToken  TransferKind = "token"
)

// TransferEvent is a classified transfer ready for notification.
type TransferEvent struct {
	Direction   Direction       `json:"direction"`
	Kind        TransferKind    `json:"kind"`
	Wallet      TrackedWallet   `json:"wallet"`
	Token       string          `json:"token,omitempty"`
	Symbol      string          `json:"symbol"`
	Decimals    uint8           `json:"decimals"`
	RawValue    string          `json:"raw_value"`
	Amount      decimal.Decimal `json:"amount"`
	TxHash      string          `json:"tx_hash"`
	BlockNumber uint64          `json:"block_number"`
	LogIndex    *uint           `json:"log_index,omitempty"`
	ObservedAt  time.Time       `json:"observed_at"`
}
