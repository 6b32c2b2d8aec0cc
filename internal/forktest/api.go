package forktest

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"

	"forkswap/internal/model"
)

// revertError mirrors the execution-reverted error shape geth and anvil return from eth_call.
type revertError struct {
	reason string
	data   string
}

func newRevertError(reason string) *revertError {
	data := "0x"
	if reason != "" {
		stringType, _ := abi.NewType("string", "", nil)
		packed, _ := abi.Arguments{{Type: stringType}}.Pack(reason)
		data = hexutil.Encode(append(common.FromHex("0x08c379a0"), packed...))
	}
	return &revertError{reason: reason, data: data}
}

func (e *revertError) Error() string {
	if e.reason == "" {
		return "execution reverted"
	}
	return "execution reverted: " + e.reason
}

func (e *revertError) ErrorCode() int { return 3 }

func (e *revertError) ErrorData() interface{} { return e.data }

type callArgs struct {
	From  *common.Address `json:"from"`
	To    *common.Address `json:"to"`
	Input *hexutil.Bytes  `json:"input"`
	Data  *hexutil.Bytes  `json:"data"`
	Value *hexutil.Big    `json:"value"`
}

func (a callArgs) data() []byte {
	if a.Input != nil {
		return *a.Input
	}
	if a.Data != nil {
		return *a.Data
	}
	return nil
}

type ethAPI struct {
	n *Node
}

func (api *ethAPI) ChainId() *hexutil.Big {
	return (*hexutil.Big)(new(big.Int).Set(api.n.ChainID))
}

func (api *ethAPI) BlockNumber() hexutil.Uint64 {
	api.n.mu.Lock()
	defer api.n.mu.Unlock()
	return hexutil.Uint64(api.n.BlockNumber)
}

func (api *ethAPI) GasPrice() *hexutil.Big {
	return (*hexutil.Big)(new(big.Int).Set(api.n.GasPrice))
}

func (api *ethAPI) GetBalance(addr common.Address, _ rpc.BlockNumberOrHash) *hexutil.Big {
	return (*hexutil.Big)(api.n.Balance(addr))
}

func (api *ethAPI) GetCode(addr common.Address, _ rpc.BlockNumberOrHash) hexutil.Bytes {
	if addr == api.n.Router || addr == api.n.Token || addr == api.n.WETH {
		return hexutil.Bytes{0x60, 0x80}
	}
	return hexutil.Bytes{}
}

func (api *ethAPI) GetTransactionCount(addr common.Address, _ rpc.BlockNumberOrHash) hexutil.Uint64 {
	api.n.mu.Lock()
	defer api.n.mu.Unlock()
	return hexutil.Uint64(api.n.nonces[addr])
}

func (api *ethAPI) Call(args callArgs, _ *rpc.BlockNumberOrHash) (hexutil.Bytes, error) {
	if args.To == nil {
		return nil, fmt.Errorf("contract creation not supported")
	}
	api.n.mu.Lock()
	defer api.n.mu.Unlock()
	out, err := api.n.call(*args.To, args.data())
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (api *ethAPI) SendRawTransaction(input hexutil.Bytes) (common.Hash, error) {
	return api.n.sendRawTransaction(input)
}

func (api *ethAPI) GetTransactionReceipt(hash common.Hash) *types.Receipt {
	api.n.mu.Lock()
	defer api.n.mu.Unlock()
	return api.n.receipts[hash]
}

type traceAPI struct {
	n *Node
}

// Transaction serves trace_transaction; unknown hashes yield null, as anvil does.
func (api *traceAPI) Transaction(_ context.Context, hash common.Hash) []model.TraceFrame {
	api.n.mu.Lock()
	defer api.n.mu.Unlock()
	frames, ok := api.n.traces[hash]
	if !ok {
		return nil
	}
	out := make([]model.TraceFrame, len(frames))
	copy(out, frames)
	return out
}

type debugAPI struct {
	n *Node
}

type callFrame struct {
	Type    string      `json:"type"`
	From    string      `json:"from"`
	To      string      `json:"to,omitempty"`
	Value   string      `json:"value,omitempty"`
	Gas     string      `json:"gas"`
	GasUsed string      `json:"gasUsed"`
	Input   string      `json:"input"`
	Output  string      `json:"output,omitempty"`
	Error   string      `json:"error,omitempty"`
	Calls   []callFrame `json:"calls,omitempty"`
}

// TraceTransaction serves debug_traceTransaction with the callTracer layout.
func (api *debugAPI) TraceTransaction(_ context.Context, hash common.Hash, _ map[string]interface{}) (json.RawMessage, error) {
	api.n.mu.Lock()
	frames, ok := api.n.traces[hash]
	api.n.mu.Unlock()
	if !ok || len(frames) == 0 {
		return nil, fmt.Errorf("transaction %s not found", hash.Hex())
	}

	toCall := func(f model.TraceFrame) callFrame {
		c := callFrame{
			Type:  strings.ToUpper(f.Action.CallType),
			From:  f.Action.From,
			To:    f.Action.To,
			Value: f.Action.Value,
			Gas:   f.Action.Gas,
			Input: f.Action.Input,
			Error: f.Error,
		}
		if f.Result != nil {
			c.GasUsed = f.Result.GasUsed
			c.Output = f.Result.Output
		}
		return c
	}
	root := toCall(frames[0])
	for _, f := range frames[1:] {
		root.Calls = append(root.Calls, toCall(f))
	}
	return json.Marshal(root)
}
