package snapshot

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"forkswap/internal/chain"
	"forkswap/internal/dex"
	"forkswap/internal/forktest"
	"forkswap/internal/simerr"
)

type clientNative struct {
	c *chain.Client
}

func (n clientNative) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	return n.c.BalanceAt(ctx, addr, nil)
}

func newTaker(t *testing.T, node *forktest.Node) *Taker {
	t.Helper()
	client := chain.NewClientFromRPC("inproc", node.Client())
	t.Cleanup(client.Close)

	tokenABI, err := dex.ERC20ABI()
	require.NoError(t, err)
	token := dex.NewBinding("token", node.Token, tokenABI, client)
	return NewTaker(clientNative{c: client}, client, token, nil)
}

func TestTake(t *testing.T) {
	node := forktest.New(big.NewInt(2e18))
	addr := common.HexToAddress("0x3333333333333333333333333333333333333333")
	node.SetBalance(addr, big.NewInt(777))
	node.SetTokenBalance(addr, big.NewInt(55))

	snap, err := newTaker(t, node).Take(context.Background(), "before", addr)
	require.NoError(t, err)
	require.Equal(t, addr.Hex(), snap.Address)
	require.Equal(t, "777", snap.Native.String())
	require.Equal(t, "55", snap.Token.String())
	require.Equal(t, node.BlockNumber, snap.BlockNumber)
	require.False(t, snap.TakenAt.IsZero())
}

func TestTakePropagatesRevert(t *testing.T) {
	node := forktest.New(big.NewInt(2e18))
	node.TokenRevert = "blacklisted"

	_, err := newTaker(t, node).Take(context.Background(), "before", common.Address{})
	require.ErrorIs(t, err, simerr.ErrCallReverted)
}

func TestTakePropagatesConnectivity(t *testing.T) {
	node := forktest.New(big.NewInt(2e18))
	client := chain.NewClientFromRPC("inproc", node.Client())
	tokenABI, err := dex.ERC20ABI()
	require.NoError(t, err)
	taker := NewTaker(clientNative{c: client}, nil, dex.NewBinding("token", node.Token, tokenABI, client), nil)
	client.Close()

	_, err = taker.Take(context.Background(), "after", common.Address{})
	require.ErrorIs(t, err, simerr.ErrConnectivity)
}
