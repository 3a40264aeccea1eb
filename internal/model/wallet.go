package model

import "github.com/ethereum/go-ethereum/common"

// TrackedWallet is an address whose movements are reported.
type TrackedWallet struct {
	Address common.Address `json:"address"`
	Label   string         `json:"label"`
}

// WalletSet is the immutable set of tracked wallets keyed by address.
type WalletSet struct {
	byAddress map[common.Address]TrackedWallet
	ordered   []TrackedWallet
}

// NewWalletSet builds a set; later duplicates overwrite the label of earlier ones.
func NewWalletSet(wallets []TrackedWallet) *WalletSet {
	set := &WalletSet{byAddress: make(map[common.Address]TrackedWallet, len(wallets))}
	for _, w := range wallets {
		if _, ok := set.byAddress[w.Address]; !ok {
			set.ordered = append(set.ordered, w)
		} else {
			for i := range set.ordered {
				if set.ordered[i].Address == w.Address {
					set.ordered[i] = w
				}
			}
		}
		set.byAddress[w.Address] = w
	}
	return set
}

// Lookup returns the wallet for an address, if tracked.
func (s *WalletSet) Lookup(address common.Address) (TrackedWallet, bool) {
	if s == nil {
		return TrackedWallet{}, false
	}
	w, ok := s.byAddress[address]
	return w, ok
}

// Contains reports whether the address is tracked.
func (s *WalletSet) Contains(address *common.Address) bool {
	if address == nil {
		return false
	}
	_, ok := s.Lookup(*address)
	return ok
}

// Len returns the number of tracked wallets.
func (s *WalletSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ordered)
}

// Wallets returns the wallets in load order.
func (s *WalletSet) Wallets() []TrackedWallet {
	if s == nil {
		return nil
	}
	out := make([]TrackedWallet, len(s.ordered))
	copy(out, s.ordered)
	return out
}
