package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// SwapRequest holds the swapExactETHForTokens parameters plus the value and gas limit of the
// transaction carrying it.
type SwapRequest struct {
	AmountIn     *big.Int
	AmountOutMin *big.Int
	Path         []common.Address
	Recipient    common.Address
	Deadline     *big.Int
	GasLimit     uint64
}

// SwapResult is a mined swap transaction.
type SwapResult struct {
	TxHash   common.Hash
	Receipt  *types.Receipt
	GasUsed  uint64
	GasPrice *big.Int
	// GasCost is GasUsed * GasPrice in wei.
	GasCost *big.Int
}
