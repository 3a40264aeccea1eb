package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"transferWatch/internal/chain"
	"transferWatch/internal/classify"
	"transferWatch/internal/model"
)

var (
	tracked  = common.HexToAddress("0xd9aD5Acc883D8a67ab612B70C11abF33dD450A45")
	stranger = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

type fakeChain struct {
	mu       sync.Mutex
	head     uint64
	headErr  error
	blocks   map[uint64]model.Block
	failures map[uint64]int
	fetched  []uint64
	receipts int
}

func newFakeChain(head uint64) *fakeChain {
	return &fakeChain{head: head, blocks: make(map[uint64]model.Block), failures: make(map[uint64]int)}
}

func (f *fakeChain) LatestHeight(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, f.headErr
}

func (f *fakeChain) BlockByNumber(_ context.Context, number uint64) (model.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, number)
	if f.failures[number] > 0 {
		f.failures[number]--
		return model.Block{}, errors.New("upstream unavailable")
	}
	if block, ok := f.blocks[number]; ok {
		return block, nil
	}
	return model.Block{Number: number}, nil
}

func (f *fakeChain) ReceiptByHash(_ context.Context, hash common.Hash) (model.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receipts++
	return model.Receipt{TxHash: hash}, nil
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []model.TransferEvent
}

func (d *recordingDispatcher) Dispatch(_ context.Context, event model.TransferEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
}

func nativeTx(hash string, from, to common.Address, wei int64) model.Transaction {
	return model.Transaction{Hash: common.HexToHash(hash), From: &from, To: &to, Value: big.NewInt(wei)}
}

func newTestScanner(cfg ScanConfig, reader ChainReader, dispatcher Dispatcher) *Scanner {
	cfg.Wallets = model.NewWalletSet([]model.TrackedWallet{{Address: tracked, Label: "main"}})
	classifier := classify.New(classify.Config{Wallets: cfg.Wallets, NativeSymbol: "ETH"}, nil, zap.NewNop())
	return NewScanner(cfg, reader, classifier, dispatcher, zap.NewNop())
}

func TestScannerStartsAtHead(t *testing.T) {
	reader := newFakeChain(500)
	s := newTestScanner(ScanConfig{}, reader, &recordingDispatcher{})

	if err := s.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if s.Cursor() != 500 {
		t.Fatalf("expected cursor at head, got %d", s.Cursor())
	}
	if len(reader.fetched) != 0 {
		t.Fatalf("no blocks should be fetched on first cycle: %v", reader.fetched)
	}
}

func TestScannerProcessesHeightsInOrder(t *testing.T) {
	reader := newFakeChain(105)
	reader.blocks[103] = model.Block{Number: 103, Transactions: []model.Transaction{
		nativeTx("0x01", stranger, tracked, 1e18),
		nativeTx("0x02", stranger, stranger, 1e18),
	}}
	dispatcher := &recordingDispatcher{}
	s := newTestScanner(ScanConfig{StartBlock: 101}, reader, dispatcher)

	if err := s.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if s.Cursor() != 105 {
		t.Fatalf("expected cursor 105, got %d", s.Cursor())
	}
	want := []uint64{101, 102, 103, 104, 105}
	if len(reader.fetched) != len(want) {
		t.Fatalf("fetched mismatch: %v", reader.fetched)
	}
	for i := range want {
		if reader.fetched[i] != want[i] {
			t.Fatalf("fetched mismatch: %v", reader.fetched)
		}
	}
	if len(dispatcher.events) != 1 || dispatcher.events[0].BlockNumber != 103 {
		t.Fatalf("unexpected events: %+v", dispatcher.events)
	}
}

func TestScannerBlockFailureKeepsCursor(t *testing.T) {
	reader := newFakeChain(105)
	reader.failures[103] = 1
	reader.blocks[102] = model.Block{Number: 102, Transactions: []model.Transaction{nativeTx("0x01", tracked, stranger, 5)}}
	dispatcher := &recordingDispatcher{}
	s := newTestScanner(ScanConfig{StartBlock: 101}, reader, dispatcher)

	if err := s.Cycle(context.Background()); err == nil {
		t.Fatalf("expected cycle error")
	}
	if s.Cursor() != 102 {
		t.Fatalf("expected cursor 102 after failure, got %d", s.Cursor())
	}

	if err := s.Cycle(context.Background()); err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if s.Cursor() != 105 {
		t.Fatalf("expected cursor 105, got %d", s.Cursor())
	}

	seen := make(map[uint64]int)
	for _, h := range reader.fetched {
		seen[h]++
	}
	if seen[101] != 1 || seen[102] != 1 || seen[103] != 2 || seen[104] != 1 {
		t.Fatalf("unexpected fetch counts: %v", seen)
	}
	if len(dispatcher.events) != 1 {
		t.Fatalf("expected single event, got %d", len(dispatcher.events))
	}
}

func TestScannerCursorNeverDecreases(t *testing.T) {
	reader := newFakeChain(110)
	s := newTestScanner(ScanConfig{}, reader, &recordingDispatcher{})

	if err := s.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	reader.head = 105
	if err := s.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if s.Cursor() != 110 {
		t.Fatalf("cursor moved backwards: %d", s.Cursor())
	}
}

func TestScannerCapsBlocksPerCycle(t *testing.T) {
	reader := newFakeChain(1000)
	s := newTestScanner(ScanConfig{StartBlock: 1, MaxBlocksPerCycle: 10}, reader, &recordingDispatcher{})

	if err := s.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if s.Cursor() != 10 || len(reader.fetched) != 10 {
		t.Fatalf("expected 10 blocks, cursor=%d fetched=%d", s.Cursor(), len(reader.fetched))
	}
}

func TestScannerBloomSkipsReceipts(t *testing.T) {
	reader := newFakeChain(11)
	var empty types.Bloom
	reader.blocks[11] = model.Block{Number: 11, Bloom: &empty, Transactions: []model.Transaction{
		nativeTx("0x01", stranger, tracked, 7),
	}}
	dispatcher := &recordingDispatcher{}
	s := newTestScanner(ScanConfig{StartBlock: 11, UseBloom: true}, reader, dispatcher)

	if err := s.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if reader.receipts != 0 {
		t.Fatalf("expected no receipt fetches, got %d", reader.receipts)
	}
	if len(dispatcher.events) != 1 || dispatcher.events[0].Kind != model.TransferNative {
		t.Fatalf("expected native event, got %+v", dispatcher.events)
	}
}

func TestBloomFilterMatchesTrackedTransfer(t *testing.T) {
	wallets := model.NewWalletSet([]model.TrackedWallet{{Address: tracked}})
	f := newBloomFilter(wallets)

	var bloom types.Bloom
	bloom.Add(classify.TransferTopic.Bytes())
	if f.mayMatch(&bloom) {
		t.Fatalf("bloom without wallet topic should not match")
	}
	bloom.Add(common.BytesToHash(tracked.Bytes()).Bytes())
	if !f.mayMatch(&bloom) {
		t.Fatalf("bloom with transfer and wallet topics should match")
	}
	if !f.mayMatch(nil) {
		t.Fatalf("missing bloom should match")
	}
}

func TestScannerRunExtendedSleepAfterThreshold(t *testing.T) {
	reader := newFakeChain(0)
	reader.headErr = errors.New("connection refused")
	s := newTestScanner(ScanConfig{
		ScanInterval:     time.Minute,
		ErrorSleep:       30 * time.Second,
		FailureThreshold: 3,
		ExtendedSleep:    10 * time.Minute,
	}, reader, &recordingDispatcher{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var slept []time.Duration
	s.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		if len(slept) == 4 {
			cancel()
			return context.Canceled
		}
		return nil
	}

	if err := s.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []time.Duration{30 * time.Second, 30 * time.Second, 10 * time.Minute, 30 * time.Second}
	for i := range want {
		if slept[i] != want[i] {
			t.Fatalf("sleep %d: got %s want %s (%v)", i, slept[i], want[i], slept)
		}
	}
}

func TestScannerAdvancesAfterRateLimitedBlock(t *testing.T) {
	var mu sync.Mutex
	blockCalls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		var result string
		switch req.Method {
		case "eth_blockNumber":
			result = `"0x65"`
		case "eth_getBlockByNumber":
			mu.Lock()
			blockCalls++
			n := blockCalls
			mu.Unlock()
			if n == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			result = `{"number":"0x65","hash":"0x00000000000000000000000000000000000000000000000000000000000000aa","timestamp":"0x1","transactions":[]}`
		default:
			result = "null"
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"result":` + result + `}`))
	}))
	defer srv.Close()

	client, err := chain.NewClient(context.Background(), srv.URL, chain.Options{
		Retry: chain.RetryPolicy{
			Cooldown:    time.Millisecond,
			MaxCooldown: 5 * time.Millisecond,
			CallTimeout: 5 * time.Second,
		},
		Logger: zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer client.Close()

	s := newTestScanner(ScanConfig{StartBlock: 101}, client, &recordingDispatcher{})
	if err := s.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if s.Cursor() != 101 {
		t.Fatalf("expected cursor 101, got %d", s.Cursor())
	}
	if blockCalls != 2 {
		t.Fatalf("expected one retry, got %d calls", blockCalls)
	}
}
