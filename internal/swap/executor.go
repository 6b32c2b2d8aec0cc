package swap

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"go.uber.org/zap"

	"forkswap/internal/dex"
	"forkswap/internal/model"
	"forkswap/internal/signer"
	"forkswap/internal/simerr"
)

const (
	step        = "swap executor"
	swapMethod  = "swapExactETHForTokens"
	quoteMethod = "getAmountsOut"
)

// DefaultGas is the gas ceiling used when a request does not set one.
const DefaultGas = uint64(200_000)

// Sender submits signed transactions.
type Sender interface {
	SendTransaction(ctx context.Context, req signer.TxRequest) (*signer.Pending, error)
}

// Executor swaps native currency for tokens through a V2-style router.
type Executor struct {
	router *dex.Binding
	sender Sender
	logger *zap.Logger
}

func NewExecutor(router *dex.Binding, sender Sender, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{router: router, sender: sender, logger: logger}
}

// UnconstrainedDeadline is the maximum uint256, which disables the router's deadline check.
func UnconstrainedDeadline() *big.Int {
	return new(big.Int).Set(math.MaxBig256)
}

// Encode builds the router call data for req.
func (e *Executor) Encode(req model.SwapRequest) ([]byte, error) {
	deadline := req.Deadline
	if deadline == nil {
		deadline = UnconstrainedDeadline()
	}
	amountOutMin := req.AmountOutMin
	if amountOutMin == nil {
		amountOutMin = new(big.Int)
	}
	return e.router.Encode(swapMethod, amountOutMin, req.Path, req.Recipient, deadline)
}

// Quote asks the router how many tokens amountIn buys along path.
func (e *Executor) Quote(ctx context.Context, amountIn *big.Int, path []common.Address) (*big.Int, error) {
	amounts, err := dex.AmountsOut(ctx, e.router, amountIn, path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", quoteMethod, err)
	}
	if len(amounts) == 0 {
		return nil, fmt.Errorf("%s: no amounts", quoteMethod)
	}
	return amounts[len(amounts)-1], nil
}

// Execute submits the swap with the explicit gas limit and waits for it to be mined.
// Nothing is retried: a rejection, revert or out-of-gas ends the call with an error.
func (e *Executor) Execute(ctx context.Context, req model.SwapRequest) (model.SwapResult, error) {
	if req.AmountIn == nil || req.AmountIn.Sign() <= 0 {
		return model.SwapResult{}, simerr.New(step, simerr.ErrEncoding, "amount in must be positive")
	}
	if len(req.Path) < 2 {
		return model.SwapResult{}, simerr.New(step, simerr.ErrEncoding, "path needs at least two tokens")
	}
	gasLimit := req.GasLimit
	if gasLimit == 0 {
		gasLimit = DefaultGas
	}

	data, err := e.Encode(req)
	if err != nil {
		return model.SwapResult{}, err
	}

	e.logger.Info("swap submit",
		zap.String("router", e.router.Address().Hex()),
		zap.String("amount_in", req.AmountIn.String()),
		zap.Stringer("amount_out_min", req.AmountOutMin),
		zap.Int("path_len", len(req.Path)),
		zap.String("recipient", req.Recipient.Hex()),
		zap.Uint64("gas_limit", gasLimit),
	)

	pending, err := e.sender.SendTransaction(ctx, signer.TxRequest{
		To:       e.router.Address(),
		Value:    req.AmountIn,
		Data:     data,
		GasLimit: gasLimit,
	})
	if err != nil {
		return model.SwapResult{}, simerr.Wrap(step, simerr.ErrSubmission, err)
	}

	receipt, err := pending.Wait(ctx)
	if err != nil {
		res := model.SwapResult{TxHash: pending.Hash(), Receipt: receipt}
		return res, simerr.Wrap(step, simerr.ErrSubmission, err)
	}

	gasPrice := receipt.EffectiveGasPrice
	if gasPrice == nil {
		gasPrice = pending.Transaction().GasPrice()
	}
	res := model.SwapResult{
		TxHash:   receipt.TxHash,
		Receipt:  receipt,
		GasUsed:  receipt.GasUsed,
		GasPrice: new(big.Int).Set(gasPrice),
		GasCost:  new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), gasPrice),
	}

	e.logger.Info("swap mined",
		zap.String("hash", res.TxHash.Hex()),
		zap.Uint64("block", receipt.BlockNumber.Uint64()),
		zap.Uint64("gas_used", res.GasUsed),
		zap.String("gas_cost", res.GasCost.String()),
	)
	return res, nil
}
