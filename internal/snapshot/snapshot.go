package snapshot

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"forkswap/internal/dex"
	"forkswap/internal/model"
)

// NativeReader reads native balances.
type NativeReader interface {
	Balance(ctx context.Context, addr common.Address) (*big.Int, error)
}

// HeadReader reports the current block height.
type HeadReader interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
}

// Taker captures balance snapshots for one token.
type Taker struct {
	native NativeReader
	head   HeadReader
	token  *dex.Binding
	logger *zap.Logger
}

// NewTaker builds a Taker. head may be nil, in which case snapshots carry no block number.
func NewTaker(native NativeReader, head HeadReader, token *dex.Binding, logger *zap.Logger) *Taker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Taker{native: native, head: head, token: token, logger: logger}
}

// Take reads the native balance and the token balance of addr.
// The two reads are independent; both happen at the same point of the workflow.
func (t *Taker) Take(ctx context.Context, label string, addr common.Address) (model.BalanceSnapshot, error) {
	snap := model.BalanceSnapshot{Address: addr.Hex()}

	if t.head != nil {
		block, err := t.head.LatestBlockNumber(ctx)
		if err != nil {
			return snap, fmt.Errorf("snapshot %s: %w", label, err)
		}
		snap.BlockNumber = block
	}

	native, err := t.native.Balance(ctx, addr)
	if err != nil {
		return snap, fmt.Errorf("snapshot %s native: %w", label, err)
	}
	token, err := dex.BalanceOf(ctx, t.token, addr)
	if err != nil {
		return snap, fmt.Errorf("snapshot %s token: %w", label, err)
	}

	snap.Native = native
	snap.Token = token
	snap.TakenAt = time.Now().UTC()

	t.logger.Info("balance snapshot",
		zap.String("label", label),
		zap.String("address", snap.Address),
		zap.Uint64("block", snap.BlockNumber),
		zap.String("native", native.String()),
		zap.String("token", token.String()),
	)
	return snap, nil
}
