package indexer

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"transferWatch/internal/classify"
	"transferWatch/internal/metrics"
	"transferWatch/internal/model"
)

// ChainReader is the subset of the chain client the scanner needs.
type ChainReader interface {
	LatestHeight(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number uint64) (model.Block, error)
	ReceiptByHash(ctx context.Context, txHash common.Hash) (model.Receipt, error)
}

// TxClassifier turns one transaction into at most one event.
type TxClassifier interface {
	Classify(ctx context.Context, blockNumber uint64, tx model.Transaction, receipt model.Receipt) classify.Result
}

// Dispatcher accepts events for delivery and must not block.
type Dispatcher interface {
	Dispatch(ctx context.Context, event model.TransferEvent)
}

// ScanConfig holds scan loop settings.
type ScanConfig struct {
	Wallets *model.WalletSet
	// StartBlock is the first height to scan; zero follows the head.
	StartBlock        uint64
	ScanInterval      time.Duration
	ErrorSleep        time.Duration
	FailureThreshold  int
	ExtendedSleep     time.Duration
	MaxBlocksPerCycle uint64
	UseBloom          bool
}

func (c ScanConfig) withDefaults() ScanConfig {
	if c.ScanInterval <= 0 {
		c.ScanInterval = 60 * time.Second
	}
	if c.ErrorSleep <= 0 {
		c.ErrorSleep = 30 * time.Second
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.ExtendedSleep <= 0 {
		c.ExtendedSleep = 10 * time.Minute
	}
	if c.MaxBlocksPerCycle == 0 {
		c.MaxBlocksPerCycle = 100
	}
	return c
}

// Scanner walks the chain forward from its cursor and hands classified
// events to the dispatcher.
type Scanner struct {
	cfg        ScanConfig
	chain      ChainReader
	classifier TxClassifier
	dispatcher Dispatcher
	logger     *zap.Logger
	bloom      *bloomFilter

	cursor   atomic.Uint64
	head     atomic.Uint64
	ready    atomic.Bool
	failures int

	sleep func(ctx context.Context, d time.Duration) error
}

// NewScanner builds a Scanner with its dependencies.
func NewScanner(cfg ScanConfig, chainReader ChainReader, classifier TxClassifier, dispatcher Dispatcher, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	return &Scanner{
		cfg:        cfg,
		chain:      chainReader,
		classifier: classifier,
		dispatcher: dispatcher,
		logger:     logger,
		bloom:      newBloomFilter(cfg.Wallets),
		sleep:      sleepContext,
	}
}

// Cursor returns the last fully scanned height.
func (s *Scanner) Cursor() uint64 {
	return s.cursor.Load()
}

// ChainHeight returns the head observed by the latest cycle.
func (s *Scanner) ChainHeight() uint64 {
	return s.head.Load()
}

// Run executes scan cycles until ctx is cancelled.
func (s *Scanner) Run(ctx context.Context) error {
	if s.chain == nil {
		return fmt.Errorf("chain client is nil")
	}
	if s.classifier == nil {
		return fmt.Errorf("classifier is nil")
	}
	if s.dispatcher == nil {
		return fmt.Errorf("dispatcher is nil")
	}

	for {
		delay := s.cfg.ScanInterval
		if err := s.Cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			delay = s.onFailure(err)
		} else {
			s.failures = 0
		}

		if err := s.sleep(ctx, delay); err != nil {
			return nil
		}
	}
}

func (s *Scanner) onFailure(err error) time.Duration {
	metrics.CycleFailures.Inc()
	s.failures++
	s.logger.Error("scan cycle failed",
		zap.Error(err),
		zap.Uint64("cursor", s.Cursor()),
		zap.Int("consecutive_failures", s.failures),
	)

	if s.failures >= s.cfg.FailureThreshold {
		s.logger.Warn("failure threshold reached, backing off",
			zap.Int("threshold", s.cfg.FailureThreshold),
			zap.Duration("sleep", s.cfg.ExtendedSleep),
		)
		s.failures = 0
		return s.cfg.ExtendedSleep
	}
	return s.cfg.ErrorSleep
}

// Cycle runs one scan pass: fetch the head, process up to MaxBlocksPerCycle
// new heights in order, advancing the cursor after each completed height.
func (s *Scanner) Cycle(ctx context.Context) error {
	head, err := s.chain.LatestHeight(ctx)
	if err != nil {
		return fmt.Errorf("latest height: %w", err)
	}
	s.head.Store(head)
	metrics.ChainHeight.Set(float64(head))

	if !s.ready.Load() {
		s.initCursor(head)
	}

	blockRange, ok, err := NextRange(s.Cursor(), head, s.cfg.MaxBlocksPerCycle)
	if err != nil {
		return err
	}
	if !ok {
		s.logger.Debug("no new blocks", zap.Uint64("cursor", s.Cursor()), zap.Uint64("head", head))
		return nil
	}

	s.logger.Info("scan range",
		zap.Uint64("from", blockRange.From),
		zap.Uint64("to", blockRange.To),
		zap.Uint64("head", head),
	)

	for height := blockRange.From; height <= blockRange.To; height++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.processHeight(ctx, height); err != nil {
			return fmt.Errorf("block %d: %w", height, err)
		}
		s.advance(height)
	}

	return nil
}

// initCursor positions the cursor before StartBlock, or at the head so only
// new blocks are reported.
func (s *Scanner) initCursor(head uint64) {
	cursor := head
	if s.cfg.StartBlock > 0 {
		cursor = s.cfg.StartBlock - 1
		if cursor > head {
			cursor = head
		}
	}
	s.cursor.Store(cursor)
	metrics.CursorHeight.Set(float64(cursor))
	s.ready.Store(true)
	s.logger.Info("cursor initialised", zap.Uint64("cursor", cursor), zap.Uint64("head", head))
}

func (s *Scanner) advance(height uint64) {
	if height <= s.cursor.Load() {
		return
	}
	s.cursor.Store(height)
	metrics.CursorHeight.Set(float64(height))
	metrics.BlocksScanned.Inc()
}

func (s *Scanner) processHeight(ctx context.Context, height uint64) error {
	block, err := s.chain.BlockByNumber(ctx, height)
	if err != nil {
		return fmt.Errorf("fetch block: %w", err)
	}

	withReceipts := !s.cfg.UseBloom || s.bloom.mayMatch(block.Bloom)

	events := make([]model.TransferEvent, 0)
	for _, tx := range block.Transactions {
		receipt := model.Receipt{TxHash: tx.Hash}
		if withReceipts {
			fetched, err := s.chain.ReceiptByHash(ctx, tx.Hash)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				metrics.ReceiptErrors.Inc()
				s.logger.Warn("receipt fetch failed",
					zap.Uint64("block", height),
					zap.String("tx", tx.Hash.Hex()),
					zap.Error(err),
				)
			} else {
				receipt = fetched
			}
		}

		result := s.classifier.Classify(ctx, height, tx, receipt)
		if len(result.Diagnostics) > 0 {
			metrics.DecodeFailures.Add(float64(len(result.Diagnostics)))
		}
		if result.Outcome != classify.OutcomeUntracked {
			metrics.ClassifyOutcomes.WithLabelValues(string(result.Outcome)).Inc()
		}
		if result.Event == nil {
			continue
		}

		metrics.EventsEmitted.WithLabelValues(string(result.Event.Direction), string(result.Event.Kind)).Inc()
		s.logger.Info("transfer detected",
			zap.Uint64("block", height),
			zap.String("tx", result.Event.TxHash),
			zap.String("direction", string(result.Event.Direction)),
			zap.String("wallet", result.Event.Wallet.Label),
			zap.String("symbol", result.Event.Symbol),
			zap.String("amount", result.Event.Amount.String()),
		)
		events = append(events, *result.Event)
	}

	// Events are released only once the whole height is classified, so an
	// aborted height is never partially reported.
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, event := range events {
		s.dispatcher.Dispatch(ctx, event)
	}

	s.logger.Debug("block scanned",
		zap.Uint64("block", height),
		zap.Int("txs", len(block.Transactions)),
		zap.Bool("receipts", withReceipts),
		zap.Int("events", len(events)),
	)
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
