// Package forktest runs an in-process JSON-RPC node that behaves like a freshly forked anvil
// instance: funded accounts, a constant-rate V2 router, one ERC20 token and trace_transaction.
package forktest

import (
	"bytes"
	"fmt"
	"math/big"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"

	"forkswap/internal/model"
)

// Well-known anvil development keys (mnemonic "test test ... junk").
var DevKeys = []string{
	"ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80",
	"59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d",
	"5de4111afa1a4b94908f83103eb1f1706367c2e68ca870fc3fb9a804cdab365a",
}

const (
	routerABIJSON = `[
  {"inputs":[],"name":"WETH","outputs":[{"type":"address"}],"stateMutability":"pure","type":"function"},
  {"inputs":[{"name":"amountIn","type":"uint256"},{"name":"path","type":"address[]"}],"name":"getAmountsOut","outputs":[{"name":"amounts","type":"uint256[]"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"name":"swapExactETHForTokens","outputs":[{"name":"amounts","type":"uint256[]"}],"stateMutability":"payable","type":"function"}
]`
	tokenABIJSON = `[
  {"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"decimals","outputs":[{"type":"uint8"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"symbol","outputs":[{"type":"string"}],"stateMutability":"view","type":"function"}
]`
)

var (
	routerABI = mustABI(routerABIJSON)
	tokenABI  = mustABI(tokenABIJSON)
)

// Default contract addresses, mirroring Ethereum mainnet.
var (
	DefaultRouter = common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	DefaultWETH   = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	DefaultToken  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
)

// Node is a fake forked chain. Zero-value fields are not usable; build with New.
type Node struct {
	mu sync.Mutex

	ChainID     *big.Int
	BlockNumber uint64
	Timestamp   uint64
	GasPrice    *big.Int

	Router common.Address
	WETH   common.Address
	Token  common.Address

	// Rate is the number of token base units paid per wei swapped.
	Rate          *big.Int
	SwapGas       uint64
	TokenDecimals uint8
	TokenSymbol   string
	// TokenSymbolBytes32 answers symbol() as bytes32, like MKR.
	TokenSymbolBytes32 bool
	// TokenRevert makes every token call revert with this reason when set.
	TokenRevert string
	// DisableTrace unregisters trace_transaction and debug_traceTransaction.
	DisableTrace bool

	balances map[common.Address]*big.Int
	tokens   map[common.Address]*big.Int
	nonces   map[common.Address]uint64
	receipts map[common.Hash]*types.Receipt
	traces   map[common.Hash][]model.TraceFrame
}

// New builds a node whose dev accounts each hold fund wei.
func New(fund *big.Int) *Node {
	n := &Node{
		ChainID:       big.NewInt(31337),
		BlockNumber:   19000000,
		Timestamp:     1700000000,
		GasPrice:      big.NewInt(2_000_000_000),
		Router:        DefaultRouter,
		WETH:          DefaultWETH,
		Token:         DefaultToken,
		Rate:          big.NewInt(3000),
		SwapGas:       120_000,
		TokenDecimals: 18,
		TokenSymbol:   "DAI",
		balances:      make(map[common.Address]*big.Int),
		tokens:        make(map[common.Address]*big.Int),
		nonces:        make(map[common.Address]uint64),
		receipts:      make(map[common.Hash]*types.Receipt),
		traces:        make(map[common.Hash][]model.TraceFrame),
	}
	for _, hexKey := range DevKeys {
		key, err := crypto.HexToECDSA(hexKey)
		if err != nil {
			panic(err)
		}
		n.balances[crypto.PubkeyToAddress(key.PublicKey)] = new(big.Int).Set(fund)
	}
	return n
}

// SetBalance overrides the native balance of addr.
func (n *Node) SetBalance(addr common.Address, amount *big.Int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.balances[addr] = new(big.Int).Set(amount)
}

// SetTokenBalance overrides the token balance of addr.
func (n *Node) SetTokenBalance(addr common.Address, amount *big.Int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tokens[addr] = new(big.Int).Set(amount)
}

// Balance returns the native balance of addr.
func (n *Node) Balance(addr common.Address) *big.Int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return new(big.Int).Set(n.balanceLocked(addr))
}

// TokenBalance returns the token balance of addr.
func (n *Node) TokenBalance(addr common.Address) *big.Int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return new(big.Int).Set(n.tokenLocked(addr))
}

// Server builds a JSON-RPC server exposing the node.
func (n *Node) Server() *rpc.Server {
	server := rpc.NewServer()
	if err := server.RegisterName("eth", &ethAPI{n: n}); err != nil {
		panic(err)
	}
	if !n.DisableTrace {
		if err := server.RegisterName("trace", &traceAPI{n: n}); err != nil {
			panic(err)
		}
		if err := server.RegisterName("debug", &debugAPI{n: n}); err != nil {
			panic(err)
		}
	}
	return server
}

// Client dials the node in-process.
func (n *Node) Client() *rpc.Client {
	return rpc.DialInProc(n.Server())
}

// HTTP serves the node over HTTP. Close the returned server when done.
func (n *Node) HTTP() *httptest.Server {
	return httptest.NewServer(n.Server())
}

func (n *Node) balanceLocked(addr common.Address) *big.Int {
	if b, ok := n.balances[addr]; ok {
		return b
	}
	b := new(big.Int)
	n.balances[addr] = b
	return b
}

func (n *Node) tokenLocked(addr common.Address) *big.Int {
	if b, ok := n.tokens[addr]; ok {
		return b
	}
	b := new(big.Int)
	n.tokens[addr] = b
	return b
}

func (n *Node) call(to common.Address, data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, nil
	}
	switch to {
	case n.Token:
		if n.TokenRevert != "" {
			return nil, newRevertError(n.TokenRevert)
		}
		method, err := tokenABI.MethodById(data[:4])
		if err != nil {
			return nil, newRevertError("")
		}
		switch method.Name {
		case "balanceOf":
			args, err := method.Inputs.Unpack(data[4:])
			if err != nil {
				return nil, newRevertError("")
			}
			return method.Outputs.Pack(new(big.Int).Set(n.tokenLocked(args[0].(common.Address))))
		case "decimals":
			return method.Outputs.Pack(n.TokenDecimals)
		case "symbol":
			if n.TokenSymbolBytes32 {
				var word [32]byte
				copy(word[:], n.TokenSymbol)
				return word[:], nil
			}
			return method.Outputs.Pack(n.TokenSymbol)
		}
	case n.Router:
		method, err := routerABI.MethodById(data[:4])
		if err != nil {
			return nil, newRevertError("")
		}
		switch method.Name {
		case "WETH":
			return method.Outputs.Pack(n.WETH)
		case "getAmountsOut":
			args, err := method.Inputs.Unpack(data[4:])
			if err != nil {
				return nil, newRevertError("")
			}
			amountIn := args[0].(*big.Int)
			path := args[1].([]common.Address)
			if len(path) < 2 {
				return nil, newRevertError("UniswapV2Library: INVALID_PATH")
			}
			return method.Outputs.Pack([]*big.Int{amountIn, new(big.Int).Mul(amountIn, n.Rate)})
		}
	}
	return nil, nil
}

func (n *Node) sendRawTransaction(raw []byte) (common.Hash, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return common.Hash{}, fmt.Errorf("rlp: %w", err)
	}
	sender, err := types.Sender(types.LatestSignerForChainID(n.ChainID), tx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid sender: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if nonce := n.nonces[sender]; tx.Nonce() != nonce {
		return common.Hash{}, fmt.Errorf("nonce mismatch: have %d, want %d", tx.Nonce(), nonce)
	}
	if tx.Gas() < 21000 {
		return common.Hash{}, fmt.Errorf("intrinsic gas too low: have %d, want 21000", tx.Gas())
	}
	gasPrice := tx.GasPrice()
	maxCost := new(big.Int).Mul(new(big.Int).SetUint64(tx.Gas()), gasPrice)
	maxCost.Add(maxCost, tx.Value())
	balance := n.balanceLocked(sender)
	if balance.Cmp(maxCost) < 0 {
		return common.Hash{}, fmt.Errorf("insufficient funds for gas * price + value: have %s want %s", balance, maxCost)
	}

	gasUsed, failure, frames := n.execute(sender, tx)

	balance.Sub(balance, new(big.Int).Mul(new(big.Int).SetUint64(gasUsed), gasPrice))
	if failure == "" && tx.Value().Sign() > 0 && tx.To() != nil {
		balance.Sub(balance, tx.Value())
		to := n.balanceLocked(*tx.To())
		to.Add(to, tx.Value())
	}
	n.nonces[sender]++
	n.BlockNumber++
	n.Timestamp += 12

	status := types.ReceiptStatusSuccessful
	if failure != "" {
		status = types.ReceiptStatusFailed
	}
	receipt := &types.Receipt{
		Type:              tx.Type(),
		Status:            status,
		CumulativeGasUsed: gasUsed,
		Logs:              []*types.Log{},
		TxHash:            tx.Hash(),
		GasUsed:           gasUsed,
		EffectiveGasPrice: new(big.Int).Set(gasPrice),
		BlockHash:         common.BigToHash(new(big.Int).SetUint64(n.BlockNumber)),
		BlockNumber:       new(big.Int).SetUint64(n.BlockNumber),
	}
	n.receipts[tx.Hash()] = receipt
	n.traces[tx.Hash()] = frames
	return tx.Hash(), nil
}

// execute applies tx and returns the gas used, a failure reason and the trace frames.
func (n *Node) execute(sender common.Address, tx *types.Transaction) (uint64, string, []model.TraceFrame) {
	top := model.TraceFrame{
		Type: "call",
		Action: model.TraceAction{
			CallType: "call",
			From:     strings.ToLower(sender.Hex()),
			Value:    hexBig(tx.Value()),
			Gas:      hexUint(tx.Gas()),
			Input:    "0x" + common.Bytes2Hex(tx.Data()),
		},
		TraceAddress: []int{},
	}
	if tx.To() != nil {
		top.Action.To = strings.ToLower(tx.To().Hex())
	}

	fail := func(gasUsed uint64, reason string) (uint64, string, []model.TraceFrame) {
		top.Error = reason
		return gasUsed, reason, []model.TraceFrame{top}
	}

	if tx.To() == nil || *tx.To() != n.Router || len(tx.Data()) < 4 {
		top.Result = &model.TraceResult{GasUsed: hexUint(0), Output: "0x"}
		return 21000, "", []model.TraceFrame{top}
	}

	method, err := routerABI.MethodById(tx.Data()[:4])
	if err != nil || method.Name != "swapExactETHForTokens" {
		return fail(21000+5000, "Reverted")
	}
	if tx.Gas() < n.SwapGas {
		return fail(tx.Gas(), "out of gas")
	}
	args, err := method.Inputs.Unpack(tx.Data()[4:])
	if err != nil {
		return fail(21000+5000, "Reverted")
	}
	amountOutMin := args[0].(*big.Int)
	path := args[1].([]common.Address)
	recipient := args[2].(common.Address)
	deadline := args[3].(*big.Int)

	if deadline.Cmp(new(big.Int).SetUint64(n.Timestamp)) < 0 {
		return fail(n.SwapGas/4, "UniswapV2Router: EXPIRED")
	}
	if len(path) < 2 || path[0] != n.WETH || path[len(path)-1] != n.Token {
		return fail(n.SwapGas/4, "UniswapV2Router: INVALID_PATH")
	}
	out := new(big.Int).Mul(tx.Value(), n.Rate)
	if out.Cmp(amountOutMin) < 0 {
		return fail(n.SwapGas/2, "UniswapV2Router: INSUFFICIENT_OUTPUT_AMOUNT")
	}

	holder := n.tokenLocked(recipient)
	holder.Add(holder, out)

	output, _ := method.Outputs.Pack([]*big.Int{tx.Value(), out})
	top.Result = &model.TraceResult{GasUsed: hexUint(n.SwapGas - 21000), Output: "0x" + common.Bytes2Hex(output)}
	top.Subtraces = 2
	router := strings.ToLower(n.Router.Hex())
	deposit := model.TraceFrame{
		Type: "call",
		Action: model.TraceAction{
			CallType: "call",
			From:     router,
			To:       strings.ToLower(n.WETH.Hex()),
			Value:    hexBig(tx.Value()),
			Gas:      hexUint(40000),
			Input:    "0xd0e30db0",
		},
		Result:       &model.TraceResult{GasUsed: hexUint(23974), Output: "0x"},
		TraceAddress: []int{0},
	}
	transfer := model.TraceFrame{
		Type: "call",
		Action: model.TraceAction{
			CallType: "call",
			From:     router,
			To:       strings.ToLower(n.Token.Hex()),
			Value:    "0x0",
			Gas:      hexUint(30000),
			Input:    "0xa9059cbb",
		},
		Result:       &model.TraceResult{GasUsed: hexUint(29962), Output: "0x"},
		TraceAddress: []int{1},
	}
	return n.SwapGas, "", []model.TraceFrame{top, deposit, transfer}
}

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(bytes.NewReader([]byte(raw)))
	if err != nil {
		panic(err)
	}
	return parsed
}

func hexUint(v uint64) string {
	return fmt.Sprintf("0x%x", v)
}

func hexBig(v *big.Int) string {
	if v == nil {
		return "0x0"
	}
	return "0x" + v.Text(16)
}
