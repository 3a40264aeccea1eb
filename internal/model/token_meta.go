package model

// TokenMeta captures ERC20 metadata.
// Resolved is false when either field fell back to its default.
type TokenMeta struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol"`
	Resolved bool   `json:"resolved"`
}
