package report

import (
	"math/big"

	"forkswap/internal/model"
)

// Conservation compares the observed balance change with what the swap should have cost.
type Conservation struct {
	ExpectedNative *big.Int
	ActualNative   *big.Int
	// Discrepancy is actual minus expected native balance; zero when the books balance.
	Discrepancy *big.Int
	TokenGained *big.Int
	OK          bool
}

// CheckConservation verifies after.native == before.native - spent - gasCost and that the
// token balance did not shrink. All arithmetic is exact.
func CheckConservation(before, after model.BalanceSnapshot, spent, gasCost *big.Int) Conservation {
	delta := model.Diff(before, after)

	expected := new(big.Int).Set(orZero(before.Native))
	expected.Sub(expected, orZero(spent))
	expected.Sub(expected, orZero(gasCost))

	actual := new(big.Int).Set(orZero(after.Native))
	discrepancy := new(big.Int).Sub(actual, expected)

	return Conservation{
		ExpectedNative: expected,
		ActualNative:   actual,
		Discrepancy:    discrepancy,
		TokenGained:    delta.Token,
		OK:             discrepancy.Sign() == 0 && delta.Token.Sign() >= 0,
	}
}

// Fidelity compares a balance read on the fork with the live chain at the fork block.
type Fidelity struct {
	Block uint64
	Live  *big.Int
	Fork  *big.Int
}

func (f Fidelity) OK() bool {
	return orZero(f.Live).Cmp(orZero(f.Fork)) == 0
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
