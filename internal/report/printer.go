package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"strings"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"forkswap/internal/model"
)

// Report is everything one simulation run prints.
type Report struct {
	Account      common.Address
	ChainID      *big.Int
	ForkBlock    uint64
	NativeSymbol string
	Token        model.TokenMeta
	Request      model.SwapRequest
	// Quote is the router's expected output, nil when the quote failed.
	Quote        *big.Int
	Before       model.BalanceSnapshot
	After        model.BalanceSnapshot
	Result       model.SwapResult
	Conservation Conservation
	Fidelity     *Fidelity
	Trace        model.Trace
}

// Printer writes reports as plain text.
type Printer struct {
	w io.Writer
	// RawTrace appends the node's trace JSON, indented.
	RawTrace bool
}

func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, RawTrace: true}
}

// Print renders the whole of r. The first write error is returned.
func (p *Printer) Print(r Report) error {
	for _, section := range []func(Report) error{p.Fork, p.Swap, p.Balances, p.Trace} {
		if err := section(r); err != nil {
			return err
		}
	}
	return nil
}

// Fork writes the fork identity, the signer and the fidelity result.
func (p *Printer) Fork(r Report) error {
	ew := &errWriter{w: p.w}
	ew.printf("== fork\n")
	tw := tabwriter.NewWriter(ew, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "chain id\t%s\n", bigString(r.ChainID))
	fmt.Fprintf(tw, "fork block\t%d\n", r.ForkBlock)
	fmt.Fprintf(tw, "account\t%s\n", r.Account.Hex())
	if r.Token.Address != (common.Address{}) {
		decimals := fmt.Sprintf("%d decimals", r.Token.Decimals)
		if r.Token.Inferred {
			decimals += ", assumed"
		}
		fmt.Fprintf(tw, "token\t%s (%s, %s)\n", r.Token.Address.Hex(), r.Token.Label(), decimals)
	}
	if r.Fidelity != nil {
		status := "ok"
		if !r.Fidelity.OK() {
			status = "MISMATCH"
		}
		fmt.Fprintf(tw, "fidelity\t%s (live %s, fork %s at block %d)\n",
			status, Units(r.Fidelity.Live), Units(r.Fidelity.Fork), r.Fidelity.Block)
	}
	_ = tw.Flush()
	return ew.err
}

// Before writes the balances taken ahead of the swap.
func (p *Printer) Before(r Report) error {
	ew := &errWriter{w: p.w}
	ew.printf("\n== balances before (block %d)\n", r.Before.BlockNumber)
	tw := tabwriter.NewWriter(ew, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\t(%s wei)\n", nativeSymbol(r), FormatAmount(r.Before.Native, NativeDecimals), Units(r.Before.Native))
	fmt.Fprintf(tw, "%s\t%s\t(%s)\n", tokenSymbol(r), FormatAmount(r.Before.Token, r.Token.Decimals), Units(r.Before.Token))
	_ = tw.Flush()
	return ew.err
}

// Swap writes the request and the mined transaction.
func (p *Printer) Swap(r Report) error {
	ew := &errWriter{w: p.w}
	native, token := nativeSymbol(r), tokenSymbol(r)
	ew.printf("\n== swap\n")
	tw := tabwriter.NewWriter(ew, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "amount in\t%s %s\t(%s wei)\n", FormatAmount(r.Request.AmountIn, NativeDecimals), native, Units(r.Request.AmountIn))
	fmt.Fprintf(tw, "min out\t%s %s\t(%s)\n", FormatAmount(r.Request.AmountOutMin, r.Token.Decimals), token, Units(r.Request.AmountOutMin))
	if r.Quote != nil {
		fmt.Fprintf(tw, "quoted out\t%s %s\t(%s)\n", FormatAmount(r.Quote, r.Token.Decimals), token, Units(r.Quote))
	}
	fmt.Fprintf(tw, "path\t%s\t\n", joinAddresses(r.Request.Path))
	fmt.Fprintf(tw, "gas limit\t%d\t\n", r.Request.GasLimit)
	fmt.Fprintf(tw, "tx hash\t%s\t\n", r.Result.TxHash.Hex())
	if r.Result.Receipt != nil && r.Result.Receipt.BlockNumber != nil {
		fmt.Fprintf(tw, "mined in\t%s\t\n", r.Result.Receipt.BlockNumber)
	}
	fmt.Fprintf(tw, "gas used\t%d\t\n", r.Result.GasUsed)
	fmt.Fprintf(tw, "gas price\t%s wei\t\n", Units(r.Result.GasPrice))
	fmt.Fprintf(tw, "gas cost\t%s %s\t(%s wei)\n", FormatAmount(r.Result.GasCost, NativeDecimals), native, Units(r.Result.GasCost))
	_ = tw.Flush()
	return ew.err
}

// Balances writes before, after and delta with the conservation verdict.
func (p *Printer) Balances(r Report) error {
	ew := &errWriter{w: p.w}
	native, token := nativeSymbol(r), tokenSymbol(r)
	delta := model.Diff(r.Before, r.After)
	ew.printf("\n== balances\n")
	tw := tabwriter.NewWriter(ew, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "\tbefore\tafter\tdelta\t\n")
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", native,
		FormatAmount(r.Before.Native, NativeDecimals),
		FormatAmount(r.After.Native, NativeDecimals),
		FormatSigned(delta.Native, NativeDecimals))
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", token,
		FormatAmount(r.Before.Token, r.Token.Decimals),
		FormatAmount(r.After.Token, r.Token.Decimals),
		FormatSigned(delta.Token, r.Token.Decimals))
	_ = tw.Flush()
	ew.printf("delta %s: %s wei\n", native, Units(delta.Native))
	ew.printf("delta %s: %s base units\n", token, Units(delta.Token))

	c := r.Conservation
	if c.ExpectedNative != nil {
		if c.OK {
			ew.printf("conservation: ok (before - spent - gas = after)\n")
		} else {
			ew.printf("conservation: WARNING expected %s wei, got %s wei (off by %s), token change %s\n",
				Units(c.ExpectedNative), Units(c.ActualNative), Units(c.Discrepancy), Units(c.TokenGained))
		}
	}
	return ew.err
}

// Trace writes the call tree and, when RawTrace is set, the node's JSON.
func (p *Printer) Trace(r Report) error {
	ew := &errWriter{w: p.w}
	ew.printf("\n== trace (%s, %d frames)\n", r.Trace.Method, len(r.Trace.Frames))
	for _, line := range CallTree(r.Trace.Frames) {
		ew.printf("%s\n", line)
	}
	if p.RawTrace && len(r.Trace.Raw) > 0 {
		var buf bytes.Buffer
		if err := json.Indent(&buf, r.Trace.Raw, "", "  "); err != nil {
			buf.Reset()
			buf.Write(r.Trace.Raw)
		}
		ew.printf("\n== raw trace\n%s\n", buf.String())
	}
	return ew.err
}

func nativeSymbol(r Report) string {
	if r.NativeSymbol == "" {
		return "ETH"
	}
	return r.NativeSymbol
}

func tokenSymbol(r Report) string {
	if r.Token.Symbol == "" {
		return "TOKEN"
	}
	return r.Token.Symbol
}

// CallTree renders frames one per line, indented by depth.
func CallTree(frames []model.TraceFrame) []string {
	lines := make([]string, 0, len(frames))
	for _, f := range frames {
		var b strings.Builder
		b.WriteString(strings.Repeat("  ", len(f.TraceAddress)))
		callType := f.Action.CallType
		if callType == "" {
			callType = f.Type
		}
		fmt.Fprintf(&b, "[%s] %s -> %s", strings.ToUpper(callType), checksumAddr(f.Action.From), checksumAddr(f.Action.To))
		if sel := selector(f.Action.Input); sel != "" {
			fmt.Fprintf(&b, " %s", sel)
		}
		if v, err := hexutil.DecodeBig(f.Action.Value); err == nil && v.Sign() > 0 {
			fmt.Fprintf(&b, " value=%s", v)
		}
		if f.Result != nil {
			if used, err := hexutil.DecodeUint64(f.Result.GasUsed); err == nil {
				fmt.Fprintf(&b, " gasUsed=%d", used)
			}
		}
		if f.Error != "" {
			fmt.Fprintf(&b, " error=%q", f.Error)
		}
		lines = append(lines, b.String())
	}
	return lines
}

func selector(input string) string {
	if len(input) < 10 {
		return ""
	}
	return input[:10]
}

func checksumAddr(addr string) string {
	if addr == "" {
		return "?"
	}
	if !common.IsHexAddress(addr) {
		return addr
	}
	return common.HexToAddress(addr).Hex()
}

func joinAddresses(path []common.Address) string {
	parts := make([]string, len(path))
	for i, a := range path {
		parts[i] = a.Hex()
	}
	return strings.Join(parts, " -> ")
}

func bigString(v *big.Int) string {
	if v == nil {
		return "?"
	}
	return v.String()
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	e.err = err
	return n, err
}

func (e *errWriter) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(e, format, args...)
}
