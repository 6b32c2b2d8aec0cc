package model

import "github.com/ethereum/go-ethereum/common"

// TokenMeta is what the token contract reports about itself. Decimals falls back
// to 18 when the contract does not answer.
type TokenMeta struct {
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol,omitempty"`
	Name     string         `json:"name,omitempty"`
	Decimals uint8          `json:"decimals"`
	// Inferred is set when Decimals was assumed rather than read.
	Inferred bool `json:"inferred,omitempty"`
}

// Label is the symbol, or the address when the token has none.
func (m TokenMeta) Label() string {
	if m.Symbol != "" {
		return m.Symbol
	}
	if m.Address != (common.Address{}) {
		return m.Address.Hex()
	}
	return "TOKEN"
}
