package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"transferWatch/internal/chain"
	"transferWatch/internal/classify"
	"transferWatch/internal/config"
	"transferWatch/internal/indexer"
	"transferWatch/internal/notify"
	"transferWatch/internal/status"
	"transferWatch/internal/token"
)

func main() {
	root := &cobra.Command{
		Use:          "watcher",
		Short:        "Wallet transfer watcher",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("rpc", "", "JSON-RPC URL")
	root.PersistentFlags().StringArray("wallet", nil, "tracked wallet as address=label (repeatable)")
	root.PersistentFlags().String("exclude", "", "counterparty whose outgoing transfers are ignored")
	root.PersistentFlags().String("global-label", "", "label appended to every message")
	root.PersistentFlags().String("native-symbol", "ETH", "symbol of the native currency")
	root.PersistentFlags().String("explorer-url", "https://etherscan.io/tx/", "transaction explorer URL prefix")
	root.PersistentFlags().Duration("rpc-timeout", 20*time.Second, "timeout per RPC attempt")
	root.PersistentFlags().Float64("rpc-rps", 0, "client side RPC requests per second, 0 disables")
	root.PersistentFlags().Int("rpc-burst", 1, "RPC rate limiter burst")
	root.PersistentFlags().Int("retry-attempts", 3, "attempts for transient RPC errors")
	root.PersistentFlags().Duration("retry-delay", 2*time.Second, "linear backoff step for transient RPC errors")
	root.PersistentFlags().Int("ratelimit-attempts", 6, "attempts for rate-limited RPC errors")
	root.PersistentFlags().Duration("ratelimit-cooldown", 15*time.Second, "initial cooldown after a rate limit")
	root.PersistentFlags().Duration("ratelimit-max-cooldown", 600*time.Second, "cooldown ceiling")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Scan new blocks and send transfer notifications",
		RunE:  runWatcher,
	}

	runCmd.Flags().Uint64("start-block", 0, "first block to scan, 0 starts at the current head")
	runCmd.Flags().Bool("use-bloom", true, "skip receipt fetches for blocks whose logsBloom rules out tracked transfers")
	runCmd.Flags().Duration("scan-interval", 60*time.Second, "delay between scan cycles")
	runCmd.Flags().Duration("error-sleep", 30*time.Second, "delay after a failed cycle")
	runCmd.Flags().Int("failure-threshold", 5, "consecutive failed cycles before the extended sleep")
	runCmd.Flags().Duration("extended-sleep", 10*time.Minute, "delay once the failure threshold is reached")
	runCmd.Flags().Uint64("max-blocks-per-cycle", 100, "maximum heights processed per cycle")
	runCmd.Flags().String("telegram-token", "", "Telegram bot token")
	runCmd.Flags().StringSlice("telegram-chat", nil, "Telegram chat ids or @channels")
	runCmd.Flags().String("cta-url", "", "URL of the call-to-action button")
	runCmd.Flags().String("animation", "", "animation file sent before each transfer message")
	runCmd.Flags().String("events-out", "", "append events to this JSONL file")
	runCmd.Flags().String("pg-dsn", "", "archive events in Postgres")
	runCmd.Flags().Int("notify-attempts", 3, "delivery attempts per message")
	runCmd.Flags().Duration("notify-backoff", 2*time.Second, "linear backoff step between deliveries")
	runCmd.Flags().Int("notify-backlog-warn", 256, "warn each time a destination backlog grows by this many messages")
	runCmd.Flags().Duration("notify-drain-timeout", 15*time.Second, "time allowed to deliver pending messages on shutdown")
	runCmd.Flags().Duration("status-interval", 0, "status report period, 0 disables")
	runCmd.Flags().String("http-addr", ":8080", "health and metrics listen address, empty disables")

	root.AddCommand(runCmd)

	classifyCmd := &cobra.Command{
		Use:   "classify <tx-hash>",
		Short: "Classify a single transaction and print the result",
		Args:  cobra.ExactArgs(1),
		RunE:  runClassify,
	}

	root.AddCommand(classifyCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runWatcher(cmd *cobra.Command, _ []string) error {
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

	chainID, err := chainClient.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}

	destinations, closeDestinations, err := buildDestinations(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeDestinations()

	cache := token.NewCache(chainClient, logger.Named("token"))
	classifier := classify.New(classify.Config{
		Wallets:      wallets,
		Excluded:     excluded,
		NativeSymbol: cfg.NativeSymbol,
	}, cache, logger.Named("classify"))

	dispatcher := notify.NewDispatcher(notify.Config{
		BacklogWarn:  cfg.NotifyBacklogWarn,
		Attempts:     cfg.NotifyAttempts,
		Backoff:      cfg.NotifyBackoff,
		DrainTimeout: cfg.NotifyDrainTimeout,
	}, notify.Formatter{
		GlobalLabel: cfg.GlobalLabel,
		ExplorerURL: cfg.ExplorerURL,
	}, logger.Named("notify"), destinations...)

	scanner := indexer.NewScanner(indexer.ScanConfig{
		Wallets:           wallets,
		StartBlock:        cfg.StartBlock,
		ScanInterval:      cfg.ScanInterval,
		ErrorSleep:        cfg.ErrorSleep,
		FailureThreshold:  cfg.FailureThreshold,
		ExtendedSleep:     cfg.ExtendedSleep,
		MaxBlocksPerCycle: cfg.MaxBlocksPerCycle,
		UseBloom:          cfg.UseBloom,
	}, chainClient, classifier, dispatcher, logger.Named("scanner"))

	collector := status.NewCollector(time.Now(), scanner, chainClient, cache)

	logger.Info("watcher start",
		zap.String("chain_id", chainID.String()),
		zap.Int("wallets", wallets.Len()),
		zap.Bool("exclude", excluded != nil),
		zap.Uint64("start_block", cfg.StartBlock),
		zap.Duration("scan_interval", cfg.ScanInterval),
		zap.Uint64("max_blocks_per_cycle", cfg.MaxBlocksPerCycle),
		zap.Int("destinations", len(destinations)),
		zap.String("http_addr", cfg.HTTPAddr),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return scanner.Run(gctx) })
	g.Go(func() error { return dispatcher.Run(gctx) })
	g.Go(func() error {
		return status.NewReporter(collector, dispatcher, cfg.StatusInterval, logger.Named("status")).Run(gctx)
	})
	if cfg.HTTPAddr != "" {
		g.Go(func() error { return status.NewServer(cfg.HTTPAddr, collector, logger.Named("http")).Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("watcher stopped", zap.Uint64("cursor", scanner.Cursor()))
	return nil
}

func newChainClient(ctx context.Context, cfg config.Config, logger *zap.Logger) (*chain.Client, error) {
	client, err := chain.NewClient(ctx, cfg.RPCURL, chain.Options{
		Retry: chain.RetryPolicy{
			Attempts:          cfg.RetryAttempts,
			Delay:             cfg.RetryDelay,
			RateLimitAttempts: cfg.RateLimitAttempts,
			Cooldown:          cfg.RateLimitCooldown,
			MaxCooldown:       cfg.RateLimitMaxCooldown,
			CallTimeout:       cfg.RPCTimeout,
		},
		RequestsPerSecond: cfg.RPCRequestsPerSecond,
		Burst:             cfg.RPCBurst,
		Logger:            logger.Named("chain"),
	})
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}
	return client, nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
