package trace

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"forkswap/internal/chain"
	"forkswap/internal/dex"
	"forkswap/internal/forktest"
	"forkswap/internal/model"
	"forkswap/internal/signer"
	"forkswap/internal/simerr"
	"forkswap/internal/swap"
)

// mineSwap submits one successful swap on node and returns its hash.
func mineSwap(t *testing.T, node *forktest.Node, client *chain.Client) common.Hash {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	key, err := signer.ParseKey(forktest.DevKeys[1])
	require.NoError(t, err)
	s, err := signer.New(client, key, node.ChainID, nil)
	require.NoError(t, err)
	routerABI, err := dex.RouterV2ABI()
	require.NoError(t, err)

	exec := swap.NewExecutor(dex.NewBinding("router", node.Router, routerABI, client), s, nil)
	res, err := exec.Execute(ctx, model.SwapRequest{
		AmountIn:     big.NewInt(1e15),
		AmountOutMin: big.NewInt(1),
		Path:         []common.Address{node.WETH, node.Token},
		Recipient:    s.Address(),
		GasLimit:     200_000,
	})
	require.NoError(t, err)
	return res.TxHash
}

func TestFetchParityTrace(t *testing.T) {
	node := forktest.New(big.NewInt(1e18))
	client := chain.NewClientFromRPC("inproc", node.Client())
	defer client.Close()
	hash := mineSwap(t, node, client)

	fetcher, err := NewRPCFetcher(client, "", nil)
	require.NoError(t, err)
	require.Equal(t, MethodParity, fetcher.Method())

	tr, err := fetcher.FetchTrace(context.Background(), hash)
	require.NoError(t, err)
	require.Equal(t, hash.Hex(), tr.TxHash)
	require.Len(t, tr.Frames, 3)
	require.Equal(t, 2, tr.Frames[0].Subtraces)
	require.Empty(t, tr.Frames[0].TraceAddress)
	require.Equal(t, []int{1}, tr.Frames[2].TraceAddress)
	require.NotEmpty(t, tr.Raw)
}

func TestFetchDebugTrace(t *testing.T) {
	node := forktest.New(big.NewInt(1e18))
	client := chain.NewClientFromRPC("inproc", node.Client())
	defer client.Close()
	hash := mineSwap(t, node, client)

	fetcher, err := NewRPCFetcher(client, MethodDebug, nil)
	require.NoError(t, err)

	tr, err := fetcher.FetchTrace(context.Background(), hash)
	require.NoError(t, err)
	require.Len(t, tr.Frames, 3)
	require.Equal(t, "call", tr.Frames[0].Action.CallType)
	require.Equal(t, 2, tr.Frames[0].Subtraces)
	require.Equal(t, []int{0}, tr.Frames[1].TraceAddress)
	require.Equal(t, "0xd0e30db0", tr.Frames[1].Action.Input)
}

func TestFetchUnknownHash(t *testing.T) {
	node := forktest.New(big.NewInt(1e18))
	client := chain.NewClientFromRPC("inproc", node.Client())
	defer client.Close()

	for _, method := range []string{MethodParity, MethodDebug} {
		fetcher, err := NewRPCFetcher(client, method, nil)
		require.NoError(t, err)
		_, err = fetcher.FetchTrace(context.Background(), common.HexToHash("0x01"))
		require.ErrorIs(t, err, simerr.ErrTraceUnavailable, method)
	}
}

func TestFetchMethodMissing(t *testing.T) {
	node := forktest.New(big.NewInt(1e18))
	node.DisableTrace = true
	client := chain.NewClientFromRPC("inproc", node.Client())
	defer client.Close()

	fetcher, err := NewRPCFetcher(client, MethodParity, nil)
	require.NoError(t, err)
	_, err = fetcher.FetchTrace(context.Background(), common.HexToHash("0x01"))
	require.ErrorIs(t, err, simerr.ErrTraceUnavailable)
	require.Contains(t, err.Error(), "not supported")
}

func TestNewRPCFetcherRejectsUnknownMethod(t *testing.T) {
	_, err := NewRPCFetcher(nil, "eth_getTransactionByHash", nil)
	require.Error(t, err)
}

func TestDecodeCallTracerNested(t *testing.T) {
	frames, err := decodeCallTracer([]byte(`{
		"type":"CALL","from":"0xa","to":"0xb","gas":"0x10","gasUsed":"0x8","input":"0x",
		"calls":[
			{"type":"DELEGATECALL","from":"0xb","to":"0xc","gas":"0x4","gasUsed":"0x2","input":"0x",
			 "calls":[{"type":"CREATE","from":"0xc","to":"0xd","gas":"0x1","gasUsed":"0x1","input":"0x"}]},
			{"type":"STATICCALL","from":"0xb","to":"0xe","gas":"0x2","input":"0x","error":"execution reverted"}
		]}`))
	require.NoError(t, err)
	require.Len(t, frames, 4)
	require.Equal(t, []int{0, 0}, frames[2].TraceAddress)
	require.Equal(t, "create", frames[2].Type)
	require.Equal(t, "delegatecall", frames[1].Action.CallType)
	require.Equal(t, []int{1}, frames[3].TraceAddress)
	require.Nil(t, frames[3].Result)
	require.Equal(t, "execution reverted", frames[3].Error)
}
