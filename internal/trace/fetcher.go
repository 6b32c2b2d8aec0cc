package trace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"forkswap/internal/model"
	"forkswap/internal/simerr"
)

const step = "trace reporter"

// Supported trace methods.
const (
	MethodParity = "trace_transaction"
	MethodDebug  = "debug_traceTransaction"
)

// methodNotFound is the JSON-RPC code for an unknown method.
const methodNotFound = -32601

// Fetcher retrieves the execution trace of a mined transaction.
type Fetcher interface {
	FetchTrace(ctx context.Context, txHash common.Hash) (model.Trace, error)
}

// Caller issues raw JSON-RPC requests.
type Caller interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// RPCFetcher fetches traces through a node's diagnostic namespace.
type RPCFetcher struct {
	caller Caller
	method string
	logger *zap.Logger
}

// NewRPCFetcher builds a fetcher. An empty method selects trace_transaction.
func NewRPCFetcher(caller Caller, method string, logger *zap.Logger) (*RPCFetcher, error) {
	switch method {
	case "":
		method = MethodParity
	case MethodParity, MethodDebug:
	default:
		return nil, fmt.Errorf("unsupported trace method %q", method)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RPCFetcher{caller: caller, method: method, logger: logger}, nil
}

func (f *RPCFetcher) Method() string {
	return f.method
}

// FetchTrace returns the frames of txHash. Unknown hashes, empty results and nodes without the
// method all report simerr.ErrTraceUnavailable.
func (f *RPCFetcher) FetchTrace(ctx context.Context, txHash common.Hash) (model.Trace, error) {
	out := model.Trace{TxHash: txHash.Hex(), Method: f.method}

	var raw json.RawMessage
	var err error
	if f.method == MethodDebug {
		err = f.caller.CallContext(ctx, &raw, f.method, txHash, map[string]interface{}{"tracer": "callTracer"})
	} else {
		err = f.caller.CallContext(ctx, &raw, f.method, txHash)
	}
	if err != nil {
		var rpcErr rpc.Error
		switch {
		case errors.As(err, &rpcErr) && rpcErr.ErrorCode() == methodNotFound:
			err = fmt.Errorf("%s not supported by node: %w", f.method, err)
		case errors.As(err, &rpcErr):
			err = fmt.Errorf("%s: %w", f.method, err)
		default:
			err = simerr.Wrap(f.method, simerr.ErrConnectivity, err)
		}
		return out, simerr.Tag(step, simerr.ErrTraceUnavailable, err)
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return out, simerr.New(step, simerr.ErrTraceUnavailable, "no trace for %s", txHash.Hex())
	}
	out.Raw = raw

	var frames []model.TraceFrame
	if f.method == MethodDebug {
		frames, err = decodeCallTracer(trimmed)
	} else {
		err = json.Unmarshal(trimmed, &frames)
	}
	if err != nil {
		return out, simerr.Tag(step, simerr.ErrTraceUnavailable, fmt.Errorf("decode %s: %w", f.method, err))
	}
	if len(frames) == 0 {
		return out, simerr.New(step, simerr.ErrTraceUnavailable, "empty trace for %s", txHash.Hex())
	}
	out.Frames = frames

	f.logger.Info("trace fetched",
		zap.String("hash", txHash.Hex()),
		zap.String("method", f.method),
		zap.Int("frames", len(frames)),
	)
	return out, nil
}

// callFrame is the nested layout produced by geth's callTracer.
type callFrame struct {
	Type    string      `json:"type"`
	From    string      `json:"from"`
	To      string      `json:"to"`
	Value   string      `json:"value"`
	Gas     string      `json:"gas"`
	GasUsed string      `json:"gasUsed"`
	Input   string      `json:"input"`
	Output  string      `json:"output"`
	Error   string      `json:"error"`
	Calls   []callFrame `json:"calls"`
}

// decodeCallTracer flattens a callTracer tree into trace_transaction frames, depth first.
func decodeCallTracer(data []byte) ([]model.TraceFrame, error) {
	var root callFrame
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if root.Type == "" && root.From == "" {
		return nil, nil
	}
	var frames []model.TraceFrame
	var walk func(c callFrame, addr []int)
	walk = func(c callFrame, addr []int) {
		frame := model.TraceFrame{
			Type: frameType(c.Type),
			Action: model.TraceAction{
				CallType: strings.ToLower(c.Type),
				From:     c.From,
				To:       c.To,
				Value:    c.Value,
				Gas:      c.Gas,
				Input:    c.Input,
			},
			Error:        c.Error,
			Subtraces:    len(c.Calls),
			TraceAddress: addr,
		}
		if c.Error == "" {
			frame.Result = &model.TraceResult{GasUsed: c.GasUsed, Output: c.Output}
		}
		frames = append(frames, frame)
		for i, child := range c.Calls {
			next := make([]int, len(addr)+1)
			copy(next, addr)
			next[len(addr)] = i
			walk(child, next)
		}
	}
	walk(root, []int{})
	return frames, nil
}

func frameType(callType string) string {
	switch strings.ToUpper(callType) {
	case "CREATE", "CREATE2":
		return "create"
	case "SELFDESTRUCT":
		return "suicide"
	default:
		return "call"
	}
}
