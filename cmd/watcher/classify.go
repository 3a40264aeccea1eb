package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"transferWatch/internal/classify"
	"transferWatch/internal/config"
	"transferWatch/internal/model"
	"transferWatch/internal/notify"
	"transferWatch/internal/token"
)

type classifyOutput struct {
	TxHash      string               `json:"tx_hash"`
	BlockNumber uint64               `json:"block_number"`
	Outcome     classify.Outcome     `json:"outcome"`
	Event       *model.TransferEvent `json:"event,omitempty"`
	Message     string               `json:"message,omitempty"`
	Diagnostics []diagnosticOutput   `json:"diagnostics,omitempty"`
}

type diagnosticOutput struct {
	LogIndex uint   `json:"log_index"`
	Token    string `json:"token"`
	Error    string `json:"error"`
}

func runClassify(cmd *cobra.Command, args []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		return err
	}
	raw, err := hexutil.Decode(args[0])
	if err != nil || len(raw) != common.HashLength {
		return fmt.Errorf("invalid transaction hash: %s", args[0])
	}
	txHash := common.BytesToHash(raw)

	wallets, err := cfg.WalletSet()
	if err != nil {
		return err
	}
	excluded, err := cfg.ExcludedAddress()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := newChainClient(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer chainClient.Close()

	tx, blockNumber, err := chainClient.TransactionByHash(ctx, txHash)
	if err != nil {
		return fmt.Errorf("get transaction: %w", err)
	}
	receipt, err := chainClient.ReceiptByHash(ctx, txHash)
	if err != nil {
		return fmt.Errorf("get receipt: %w", err)
	}

	classifier := classify.New(classify.Config{
		Wallets:      wallets,
		Excluded:     excluded,
		NativeSymbol: cfg.NativeSymbol,
	}, token.NewCache(chainClient, logger.Named("token")), logger.Named("classify"))

	result := classifier.Classify(ctx, blockNumber, tx, receipt)
	logger.Debug("classified", zap.String("tx", txHash.Hex()), zap.String("outcome", string(result.Outcome)))

	out := classifyOutput{
		TxHash:      txHash.Hex(),
		BlockNumber: blockNumber,
		Outcome:     result.Outcome,
		Event:       result.Event,
	}
	if result.Event != nil {
		out.Message = notify.Formatter{GlobalLabel: cfg.GlobalLabel, ExplorerURL: cfg.ExplorerURL}.Format(*result.Event)
	}
	for _, d := range result.Diagnostics {
		out.Diagnostics = append(out.Diagnostics, diagnosticOutput{LogIndex: d.LogIndex, Token: d.Token.Hex(), Error: d.Err.Error()})
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
