package dex

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/stretchr/testify/require"

	"forkswap/internal/chain"
	"forkswap/internal/forktest"
	"forkswap/internal/simerr"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	routerABI, err := RouterV2ABI()
	require.NoError(t, err)
	router := NewBinding("router", forktest.DefaultRouter, routerABI, nil)

	amountOutMin := big.NewInt(100)
	path := []common.Address{forktest.DefaultWETH, forktest.DefaultToken}
	recipient := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	deadline := new(big.Int).Set(math.MaxBig256)

	data, err := router.Encode("swapExactETHForTokens", amountOutMin, path, recipient, deadline)
	require.NoError(t, err)
	require.Equal(t, routerABI.Methods["swapExactETHForTokens"].ID, data[:4])

	values, err := router.Decode("swapExactETHForTokens", data)
	require.NoError(t, err)
	require.Len(t, values, 4)
	require.Equal(t, 0, values[0].(*big.Int).Cmp(amountOutMin))
	require.Equal(t, path, values[1].([]common.Address))
	require.Equal(t, recipient, values[2].(common.Address))
	require.Equal(t, 0, values[3].(*big.Int).Cmp(deadline))
}

func TestEncodeMismatch(t *testing.T) {
	tokenABI, err := ERC20ABI()
	require.NoError(t, err)
	token := NewBinding("token", forktest.DefaultToken, tokenABI, nil)

	tests := []struct {
		name   string
		method string
		args   []interface{}
	}{
		{name: "unknown method", method: "mint", args: []interface{}{big.NewInt(1)}},
		{name: "arity", method: "balanceOf", args: nil},
		{name: "type", method: "balanceOf", args: []interface{}{"not an address"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := token.Encode(tt.method, tt.args...)
			require.ErrorIs(t, err, simerr.ErrEncoding)
		})
	}
}

func TestDecodeSelectorMismatch(t *testing.T) {
	tokenABI, err := ERC20ABI()
	require.NoError(t, err)
	token := NewBinding("token", forktest.DefaultToken, tokenABI, nil)

	data, err := token.Encode("totalSupply")
	require.NoError(t, err)

	_, err = token.Decode("balanceOf", data)
	require.ErrorIs(t, err, simerr.ErrEncoding)
}

func TestCallBalanceOf(t *testing.T) {
	node := forktest.New(big.NewInt(1e18))
	holder := common.HexToAddress("0x1111111111111111111111111111111111111111")
	node.SetTokenBalance(holder, big.NewInt(4200))

	client := chain.NewClientFromRPC("inproc", node.Client())
	defer client.Close()

	tokenABI, err := ERC20ABI()
	require.NoError(t, err)
	token := NewBinding("token", node.Token, tokenABI, client)

	balance, err := BalanceOf(context.Background(), token, holder)
	require.NoError(t, err)
	require.Equal(t, "4200", balance.String())
}

func TestCallRevertCarriesReason(t *testing.T) {
	node := forktest.New(big.NewInt(1e18))
	node.TokenRevert = "Pausable: paused"

	client := chain.NewClientFromRPC("inproc", node.Client())
	defer client.Close()

	tokenABI, err := ERC20ABI()
	require.NoError(t, err)
	token := NewBinding("token", node.Token, tokenABI, client)

	_, err = token.Call(context.Background(), "balanceOf", common.Address{})
	require.ErrorIs(t, err, simerr.ErrCallReverted)

	var revert *simerr.RevertError
	require.ErrorAs(t, err, &revert)
	require.Equal(t, "Pausable: paused", revert.Reason)
	require.Equal(t, "token.balanceOf", revert.Method)
}

func TestAmountsOut(t *testing.T) {
	node := forktest.New(big.NewInt(1e18))
	client := chain.NewClientFromRPC("inproc", node.Client())
	defer client.Close()

	routerABI, err := RouterV2ABI()
	require.NoError(t, err)
	router := NewBinding("router", node.Router, routerABI, client)

	amounts, err := AmountsOut(context.Background(), router, big.NewInt(10), []common.Address{node.WETH, node.Token})
	require.NoError(t, err)
	require.Len(t, amounts, 2)
	require.Equal(t, "30000", amounts[1].String())
}

func tokenBinding(t *testing.T, node *forktest.Node) *Binding {
	t.Helper()
	client := chain.NewClientFromRPC("inproc", node.Client())
	t.Cleanup(client.Close)

	tokenABI, err := ERC20ABI()
	require.NoError(t, err)
	return NewBinding("token", node.Token, tokenABI, client)
}

func TestFetchTokenMeta(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(n *forktest.Node)
		decimals uint8
		symbol   string
		inferred bool
		wantErr  bool
	}{
		{
			name:     "string symbol",
			setup:    func(n *forktest.Node) { n.TokenDecimals, n.TokenSymbol = 6, "USDC" },
			decimals: 6,
			symbol:   "USDC",
		},
		{
			name:     "bytes32 symbol",
			setup:    func(n *forktest.Node) { n.TokenSymbol, n.TokenSymbolBytes32 = "MKR", true },
			decimals: 18,
			symbol:   "MKR",
		},
		{
			name:     "decimals reverts",
			setup:    func(n *forktest.Node) { n.TokenDecimals, n.TokenRevert = 6, "paused" },
			decimals: DefaultDecimals,
			inferred: true,
			wantErr:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := forktest.New(big.NewInt(1e18))
			tt.setup(node)

			meta, err := FetchTokenMeta(context.Background(), tokenBinding(t, node), nil)
			if tt.wantErr {
				require.ErrorIs(t, err, simerr.ErrCallReverted)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, node.Token, meta.Address)
			require.Equal(t, tt.decimals, meta.Decimals)
			require.Equal(t, tt.symbol, meta.Symbol)
			require.Equal(t, tt.inferred, meta.Inferred)
			require.Empty(t, meta.Name)
		})
	}
}

func TestLoadABIFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "erc20.json")
	require.NoError(t, os.WriteFile(path, []byte(erc20ABIJSON), 0o644))

	parsed, err := LoadABIFile(path)
	require.NoError(t, err)
	require.Contains(t, parsed.Methods, "balanceOf")

	_, err = LoadABIFile(filepath.Join(dir, "missing.json"))
	require.Error(t, err)

	fallback, err := LoadABI("", RouterV2ABI)
	require.NoError(t, err)
	require.Contains(t, fallback.Methods, "swapExactETHForTokens")
}

func TestShippedABIDocuments(t *testing.T) {
	routerABI, err := LoadABIFile(filepath.Join("..", "..", "abi", "univ2.json"))
	require.NoError(t, err)
	require.Contains(t, routerABI.Methods, "swapExactETHForTokens")
	require.Contains(t, routerABI.Methods, "getAmountsOut")

	tokenABI, err := LoadABIFile(filepath.Join("..", "..", "abi", "erc20.json"))
	require.NoError(t, err)
	require.Contains(t, tokenABI.Methods, "balanceOf")
	require.Contains(t, tokenABI.Events, "Transfer")
}
