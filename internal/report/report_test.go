package report

import (
	"bytes"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"forkswap/internal/model"
)

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		value    *big.Int
		decimals uint8
		want     string
	}{
		{nil, 18, "0"},
		{big.NewInt(123), 0, "123"},
		{big.NewInt(1_500_000), 6, "1.500000"},
		{big.NewInt(-25), 2, "-0.25"},
		{new(big.Int).Exp(big.NewInt(10), big.NewInt(17), nil), 18, "0.100000000000000000"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, FormatAmount(tt.value, tt.decimals))
	}
	require.Equal(t, "+0.25", FormatSigned(big.NewInt(25), 2))
	require.Equal(t, "-0.25", FormatSigned(big.NewInt(-25), 2))
}

func TestUnits(t *testing.T) {
	require.Equal(t, "100,000,000,000,000,000", Units(big.NewInt(1e17)))
	require.Equal(t, "0", Units(nil))
}

func TestCheckConservation(t *testing.T) {
	before := model.BalanceSnapshot{Native: big.NewInt(1_000_000), Token: big.NewInt(0)}
	after := model.BalanceSnapshot{Native: big.NewInt(1_000_000 - 1000 - 240), Token: big.NewInt(3_000_000)}

	c := CheckConservation(before, after, big.NewInt(1000), big.NewInt(240))
	require.True(t, c.OK)
	require.Equal(t, int64(0), c.Discrepancy.Int64())
	require.Equal(t, int64(3_000_000), c.TokenGained.Int64())

	after.Native = big.NewInt(1_000_000 - 1000 - 239)
	c = CheckConservation(before, after, big.NewInt(1000), big.NewInt(240))
	require.False(t, c.OK)
	require.Equal(t, int64(1), c.Discrepancy.Int64())

	after.Native = big.NewInt(1_000_000 - 1000 - 240)
	after.Token = big.NewInt(-1)
	require.False(t, CheckConservation(before, after, big.NewInt(1000), big.NewInt(240)).OK)
}

func TestCallTree(t *testing.T) {
	frames := []model.TraceFrame{
		{
			Type:         "call",
			Action:       model.TraceAction{CallType: "call", From: "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266", To: "0x7a250d5630b4cf539739df2c5dacb4c659f2488d", Value: "0x2386f26fc10000", Input: "0x7ff36ab50000"},
			Result:       &model.TraceResult{GasUsed: "0x16378"},
			Subtraces:    1,
			TraceAddress: []int{},
		},
		{
			Type:         "call",
			Action:       model.TraceAction{CallType: "staticcall", From: "0x7a250d5630b4cf539739df2c5dacb4c659f2488d", To: "0x6b175474e89094c44da98b954eedeac495271d0f", Input: "0x70a08231"},
			Error:        "execution reverted",
			TraceAddress: []int{0},
		},
	}
	lines := CallTree(frames)
	require.Len(t, lines, 2)
	require.Equal(t, "[CALL] 0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266 -> 0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D 0x7ff36ab5 value=10000000000000000 gasUsed=91000", lines[0])
	require.True(t, strings.HasPrefix(lines[1], "  [STATICCALL] "))
	require.Contains(t, lines[1], `error="execution reverted"`)
}

func TestPrint(t *testing.T) {
	var buf bytes.Buffer
	r := Report{
		Account:   common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"),
		ChainID:   big.NewInt(31337),
		ForkBlock: 19000000,
		Token:     model.TokenMeta{Address: common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"), Symbol: "DAI", Decimals: 18},
		Request: model.SwapRequest{
			AmountIn:     big.NewInt(1e17),
			AmountOutMin: big.NewInt(100),
			GasLimit:     200000,
		},
		Quote:  big.NewInt(3e17),
		Before: model.BalanceSnapshot{Native: big.NewInt(1e18), Token: big.NewInt(0)},
		After:  model.BalanceSnapshot{Native: big.NewInt(1e18 - 1e17 - 240_000_000_000_000), Token: big.NewInt(3e17)},
		Result: model.SwapResult{
			GasUsed:  120000,
			GasPrice: big.NewInt(2_000_000_000),
			GasCost:  big.NewInt(240_000_000_000_000),
		},
		Fidelity: &Fidelity{Block: 19000000, Live: big.NewInt(5), Fork: big.NewInt(5)},
		Trace: model.Trace{
			Method: "trace_transaction",
			Frames: []model.TraceFrame{{Type: "call", Action: model.TraceAction{CallType: "call", From: "0x01", To: "0x02"}}},
			Raw:    []byte(`[{"type":"call"}]`),
		},
	}
	r.Conservation = CheckConservation(r.Before, r.After, r.Request.AmountIn, r.Result.GasCost)

	require.NoError(t, NewPrinter(&buf).Print(r))
	out := buf.String()
	require.Contains(t, out, "fork block  19000000")
	require.Contains(t, out, "fidelity    ok")
	require.Contains(t, out, "token       0x6B175474E89094C44Da98b954EedeAC495271d0F (DAI, 18 decimals)")
	require.Contains(t, out, "-0.100240000000000000")
	require.Contains(t, out, "+0.300000000000000000")
	require.Contains(t, out, "delta ETH: -100,240,000,000,000,000 wei")
	require.Contains(t, out, "conservation: ok")
	require.Contains(t, out, "== trace (trace_transaction, 1 frames)")
	require.Contains(t, out, "[CALL] 0x01 -> 0x02")
	require.Contains(t, out, "\"type\": \"call\"")
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestPrintReturnsWriteError(t *testing.T) {
	err := NewPrinter(failWriter{}).Print(Report{})
	require.EqualError(t, err, "disk full")
}

func TestPrintSectionsSeparately(t *testing.T) {
	r := Report{
		ForkBlock: 19000000,
		Token:     model.TokenMeta{Symbol: "DAI", Decimals: 18},
		Before:    model.BalanceSnapshot{BlockNumber: 19000000, Native: big.NewInt(1e18), Token: big.NewInt(5)},
	}

	var buf bytes.Buffer
	p := NewPrinter(&buf)
	require.NoError(t, p.Fork(r))
	require.NoError(t, p.Before(r))

	out := buf.String()
	require.Contains(t, out, "fork block  19000000")
	require.Contains(t, out, "== balances before (block 19000000)")
	require.Contains(t, out, "ETH  1.000000000000000000")
	require.Contains(t, out, "(1,000,000,000,000,000,000 wei)")
	require.NotContains(t, out, "== swap")
	require.NotContains(t, out, "== trace")

	require.EqualError(t, NewPrinter(failWriter{}).Before(r), "disk full")
}
