package dex

import (
	"bytes"
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"forkswap/internal/model"
)

// DefaultDecimals is assumed for tokens that do not answer decimals().
const DefaultDecimals = 18

// FetchTokenMeta reads decimals, symbol and name through the token binding. Only a
// failed decimals call is an error; the returned meta then carries DefaultDecimals.
func FetchTokenMeta(ctx context.Context, token *Binding, logger *zap.Logger) (model.TokenMeta, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	meta := model.TokenMeta{Address: token.Address(), Decimals: DefaultDecimals}

	values, err := token.Call(ctx, "decimals")
	if err != nil {
		meta.Inferred = true
		return meta, err
	}
	if meta.Decimals, err = asUint8(values[0]); err != nil {
		meta.Inferred = true
		return meta, err
	}

	meta.Symbol = readText(ctx, token, "symbol", logger)
	meta.Name = readText(ctx, token, "name", logger)
	return meta, nil
}

// readText calls a string getter, retrying with the bytes32 signature legacy tokens use.
func readText(ctx context.Context, token *Binding, method string, logger *zap.Logger) string {
	values, err := token.Call(ctx, method)
	if err == nil {
		if text, ok := values[0].(string); ok {
			return text
		}
	}

	legacy, abiErr := erc20Bytes32Texts.get()
	if abiErr != nil {
		return ""
	}
	values, legacyErr := NewBinding(token.Name(), token.Address(), legacy, token.caller).Call(ctx, method)
	if legacyErr == nil {
		if text, ok := bytes32ToString(values[0]); ok {
			return text
		}
	}
	logger.Debug("token text unavailable",
		zap.String("token", token.Address().Hex()),
		zap.String("method", method),
		zap.Error(err),
	)
	return ""
}

// BalanceOf reads the ERC20 balance of owner through the token binding.
func BalanceOf(ctx context.Context, token *Binding, owner common.Address) (*big.Int, error) {
	values, err := token.Call(ctx, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("balanceOf: empty result")
	}
	return asBigInt(values[0])
}

// AmountsOut quotes a swap through the router's getAmountsOut.
func AmountsOut(ctx context.Context, router *Binding, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	values, err := router.Call(ctx, "getAmountsOut", amountIn, path)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("getAmountsOut: empty result")
	}
	amounts, ok := values[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("getAmountsOut: unsupported result type %T", values[0])
	}
	return amounts, nil
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case *big.Int:
		if !v.IsUint64() || v.Uint64() > 255 {
			return 0, fmt.Errorf("decimals %s out of range", v)
		}
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported decimals type %T", value)
	}
}
