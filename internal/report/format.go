package report

import (
	"math/big"

	"github.com/dustin/go-humanize"
)

// NativeDecimals is the precision of the chain's native currency.
const NativeDecimals = 18

// FormatAmount renders value in whole units with exactly decimals fractional digits.
func FormatAmount(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	if decimals == 0 {
		return value.String()
	}
	sign := value.Sign()
	abs := new(big.Int).Abs(value)
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	rat := new(big.Rat).SetFrac(abs, denom)
	text := rat.FloatString(int(decimals))
	if sign < 0 {
		return "-" + text
	}
	return text
}

// FormatSigned is FormatAmount with an explicit sign on positive values.
func FormatSigned(value *big.Int, decimals uint8) string {
	if value != nil && value.Sign() > 0 {
		return "+" + FormatAmount(value, decimals)
	}
	return FormatAmount(value, decimals)
}

// Units renders base units with thousands separators.
func Units(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return humanize.BigComma(new(big.Int).Set(value))
}
