package indexer

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"transferWatch/internal/classify"
	"transferWatch/internal/model"
)

// bloomFilter checks a block's logsBloom for Transfer logs that can involve
// a tracked wallet.
type bloomFilter struct {
	walletTopics [][]byte
}

func newBloomFilter(wallets *model.WalletSet) *bloomFilter {
	f := &bloomFilter{}
	for _, w := range wallets.Wallets() {
		f.walletTopics = append(f.walletTopics, common.BytesToHash(w.Address.Bytes()).Bytes())
	}
	return f
}

// mayMatch is false only when the bloom rules out every relevant log. A
// missing bloom matches everything.
func (f *bloomFilter) mayMatch(bloom *types.Bloom) bool {
	if bloom == nil {
		return true
	}
	if !bloom.Test(classify.TransferTopic.Bytes()) {
		return false
	}
	for _, topic := range f.walletTopics {
		if bloom.Test(topic) {
			return true
		}
	}
	return false
}
