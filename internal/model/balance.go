package model

import (
	"math/big"
	"time"
)

// BalanceSnapshot is the native and token balance of an address at one point of the run.
type BalanceSnapshot struct {
	Address     string    `json:"address"`
	Native      *big.Int  `json:"native"`
	Token       *big.Int  `json:"token"`
	BlockNumber uint64    `json:"block_number"`
	TakenAt     time.Time `json:"taken_at"`
}

// BalanceDelta is after minus before, in base units.
type BalanceDelta struct {
	Native *big.Int `json:"native"`
	Token  *big.Int `json:"token"`
}

// Diff computes after - before. Nil amounts count as zero.
func Diff(before, after BalanceSnapshot) BalanceDelta {
	return BalanceDelta{
		Native: new(big.Int).Sub(orZero(after.Native), orZero(before.Native)),
		Token:  new(big.Int).Sub(orZero(after.Token), orZero(before.Token)),
	}
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
