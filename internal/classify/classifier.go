package classify

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"transferWatch/internal/model"
)

// Outcome explains what happened to a transaction.
type Outcome string

const (
	OutcomeEmitted    Outcome = "emitted"
	OutcomeNoParties  Outcome = "no_parties"
	OutcomeUntracked  Outcome = "untracked"
	OutcomeZeroAmount Outcome = "zero_amount"
	OutcomeExcluded   Outcome = "excluded"
)

// rank orders suppression outcomes so a transaction reports the most
// specific reason any of its candidates was dropped.
var rank = map[Outcome]int{
	OutcomeUntracked:  0,
	OutcomeZeroAmount: 1,
	OutcomeExcluded:   2,
}

// LogDiagnostic records a Transfer log that could not be decoded.
type LogDiagnostic struct {
	LogIndex uint
	Token    common.Address
	Err      error
}

// Result is the classification of one transaction.
type Result struct {
	Event       *model.TransferEvent
	Outcome     Outcome
	Diagnostics []LogDiagnostic
}

// MetadataSource resolves token symbol and decimals.
type MetadataSource interface {
	Get(ctx context.Context, token common.Address) model.TokenMeta
}

// Config holds classification rules.
type Config struct {
	Wallets *model.WalletSet
	// Excluded suppresses outgoing transfers to this counterparty.
	Excluded       *common.Address
	NativeSymbol   string
	NativeDecimals uint8
}

// Classifier turns transactions and receipts into transfer events.
type Classifier struct {
	cfg    Config
	meta   MetadataSource
	logger *zap.Logger
	now    func() time.Time
}

func New(cfg Config, meta MetadataSource, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.NativeSymbol == "" {
		cfg.NativeSymbol = "ETH"
	}
	if cfg.NativeDecimals == 0 {
		cfg.NativeDecimals = 18
	}
	return &Classifier{
		cfg:    cfg,
		meta:   meta,
		logger: logger,
		now:    time.Now,
	}
}

// Classify returns at most one event for the transaction. Token transfers
// are checked first; the native value is only considered when no token
// transfer produced an event.
func (c *Classifier) Classify(ctx context.Context, blockNumber uint64, tx model.Transaction, receipt model.Receipt) Result {
	if tx.From == nil && tx.To == nil {
		return Result{Outcome: OutcomeNoParties}
	}

	result := Result{Outcome: OutcomeUntracked}

	for _, log := range receipt.Logs {
		if !IsTransferLog(log) {
			continue
		}

		transfer, err := DecodeTransferLog(log)
		if err != nil {
			c.logger.Warn("decode transfer log",
				zap.String("tx", tx.Hash.Hex()),
				zap.Uint("log_index", log.Index),
				zap.String("token", log.Address.Hex()),
				zap.Error(err),
			)
			result.Diagnostics = append(result.Diagnostics, LogDiagnostic{LogIndex: log.Index, Token: log.Address, Err: err})
			continue
		}

		wallet, direction, outcome := c.resolveDirection(&transfer.From, &transfer.To)
		if outcome != OutcomeEmitted {
			result.Outcome = worse(result.Outcome, outcome)
			continue
		}
		if transfer.Value.Sign() == 0 {
			result.Outcome = worse(result.Outcome, OutcomeZeroAmount)
			continue
		}

		meta := c.tokenMeta(ctx, transfer.Token)
		amount := scale(transfer.Value, meta.Decimals)
		if amount.IsZero() {
			result.Outcome = worse(result.Outcome, OutcomeZeroAmount)
			continue
		}

		index := transfer.Index
		result.Event = &model.TransferEvent{
			Direction:   direction,
			Kind:        model.TransferToken,
			Wallet:      wallet,
			Token:       transfer.Token.Hex(),
			Symbol:      meta.Symbol,
			Decimals:    meta.Decimals,
			RawValue:    transfer.Value.String(),
			Amount:      amount,
			TxHash:      tx.Hash.Hex(),
			BlockNumber: blockNumber,
			LogIndex:    &index,
			ObservedAt:  c.now().UTC(),
		}
		result.Outcome = OutcomeEmitted
		return result
	}

	wallet, direction, outcome := c.resolveDirection(tx.From, tx.To)
	if outcome != OutcomeEmitted {
		result.Outcome = worse(result.Outcome, outcome)
		return result
	}
	if tx.Value == nil || tx.Value.Sign() == 0 {
		result.Outcome = worse(result.Outcome, OutcomeZeroAmount)
		return result
	}

	result.Event = &model.TransferEvent{
		Direction:   direction,
		Kind:        model.TransferNative,
		Wallet:      wallet,
		Symbol:      c.cfg.NativeSymbol,
		Decimals:    c.cfg.NativeDecimals,
		RawValue:    tx.Value.String(),
		Amount:      scale(tx.Value, c.cfg.NativeDecimals),
		TxHash:      tx.Hash.Hex(),
		BlockNumber: blockNumber,
		ObservedAt:  c.now().UTC(),
	}
	result.Outcome = OutcomeEmitted
	return result
}

// resolveDirection prefers the receiving side; an outgoing transfer to the
// excluded counterparty is suppressed.
func (c *Classifier) resolveDirection(from, to *common.Address) (model.TrackedWallet, model.Direction, Outcome) {
	if to != nil {
		if wallet, ok := c.cfg.Wallets.Lookup(*to); ok {
			return wallet, model.DirectionIncoming, OutcomeEmitted
		}
	}
	if from != nil {
		if wallet, ok := c.cfg.Wallets.Lookup(*from); ok {
			if c.isExcluded(to) {
				return model.TrackedWallet{}, "", OutcomeExcluded
			}
			return wallet, model.DirectionOutgoing, OutcomeEmitted
		}
	}
	return model.TrackedWallet{}, "", OutcomeUntracked
}

func (c *Classifier) isExcluded(to *common.Address) bool {
	return c.cfg.Excluded != nil && to != nil && *to == *c.cfg.Excluded
}

func (c *Classifier) tokenMeta(ctx context.Context, token common.Address) model.TokenMeta {
	if c.meta == nil {
		return model.TokenMeta{Address: token.Hex(), Symbol: "UNKNOWN", Decimals: 18}
	}
	return c.meta.Get(ctx, token)
}

func scale(value *big.Int, decimals uint8) decimal.Decimal {
	if value == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(value, -int32(decimals))
}

func worse(current, next Outcome) Outcome {
	if rank[next] > rank[current] {
		return next
	}
	return current
}
