package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"transferWatch/internal/model"
)

// ParseWallets converts "address=label" entries into tracked wallets. A
// missing label falls back to the checksummed address.
func ParseWallets(entries []string) ([]model.TrackedWallet, error) {
	wallets := make([]model.TrackedWallet, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		input, label, _ := strings.Cut(entry, "=")
		address, err := ParseAddress(input)
		if err != nil {
			return nil, fmt.Errorf("wallet %q: %w", entry, err)
		}
		label = strings.TrimSpace(label)
		if label == "" {
			label = address.Hex()
		}
		wallets = append(wallets, model.TrackedWallet{Address: address, Label: label})
	}
	return wallets, nil
}

// ParseAddress validates and converts a hex address.
func ParseAddress(input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid address: %s", input)
	}
	return common.HexToAddress(input), nil
}

// ParseOptionalAddress returns nil for empty input.
func ParseOptionalAddress(input string) (*common.Address, error) {
	if strings.TrimSpace(input) == "" {
		return nil, nil
	}
	address, err := ParseAddress(input)
	if err != nil {
		return nil, err
	}
	return &address, nil
}

// WalletSet builds the tracked wallet set.
func (c Config) WalletSet() (*model.WalletSet, error) {
	wallets, err := ParseWallets(c.Wallets)
	if err != nil {
		return nil, err
	}
	return model.NewWalletSet(wallets), nil
}

// ExcludedAddress returns the excluded counterparty, if configured.
func (c Config) ExcludedAddress() (*common.Address, error) {
	return ParseOptionalAddress(c.Exclude)
}
