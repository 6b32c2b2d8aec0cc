package signer

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"forkswap/internal/simerr"
)

const step = "signing client"

// Backend is the node surface the signer needs.
type Backend interface {
	bind.DeployBackend
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// TxRequest describes an unsigned transaction. Nil GasPrice means the node's suggestion.
type TxRequest struct {
	To       common.Address
	Value    *big.Int
	Data     []byte
	GasLimit uint64
	GasPrice *big.Int
}

// Signer signs every outgoing transaction with one key bound to a chain ID.
type Signer struct {
	backend Backend
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	signer  types.Signer
	logger  *zap.Logger
}

// New binds key to chainID on backend.
func New(backend Backend, key *ecdsa.PrivateKey, chainID *big.Int, logger *zap.Logger) (*Signer, error) {
	if key == nil {
		return nil, simerr.New(step, simerr.ErrSigning, "private key is nil")
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, simerr.New(step, simerr.ErrSigning, "invalid chain id %v", chainID)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Signer{
		backend: backend,
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: new(big.Int).Set(chainID),
		signer:  types.LatestSignerForChainID(chainID),
		logger:  logger,
	}, nil
}

// ParseKey decodes a hex private key with or without the 0x prefix.
func ParseKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, simerr.Wrap(step, simerr.ErrSigning, err)
	}
	return key, nil
}

func (s *Signer) Address() common.Address {
	return s.address
}

func (s *Signer) ChainID() *big.Int {
	return new(big.Int).Set(s.chainID)
}

// Balance returns the native balance of addr at the latest block.
func (s *Signer) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	return s.backend.BalanceAt(ctx, addr, nil)
}

// SendTransaction fills nonce and gas price, signs req and submits it.
func (s *Signer) SendTransaction(ctx context.Context, req TxRequest) (*Pending, error) {
	if req.GasLimit == 0 {
		return nil, simerr.New(step, simerr.ErrSubmission, "gas limit is required")
	}

	nonce, err := s.backend.PendingNonceAt(ctx, s.address)
	if err != nil {
		return nil, simerr.Wrap("pending nonce", simerr.ErrConnectivity, err)
	}
	gasPrice := req.GasPrice
	if gasPrice == nil {
		gasPrice, err = s.backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, simerr.Wrap("gas price", simerr.ErrConnectivity, err)
		}
	}
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	to := req.To
	tx, err := types.SignNewTx(s.key, s.signer, &types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      req.GasLimit,
		To:       &to,
		Value:    value,
		Data:     req.Data,
	})
	if err != nil {
		return nil, simerr.Wrap(step, simerr.ErrSigning, err)
	}

	if err := s.backend.SendTransaction(ctx, tx); err != nil {
		return nil, simerr.Wrap(step, simerr.ErrSubmission, err)
	}

	s.logger.Info("transaction sent",
		zap.String("hash", tx.Hash().Hex()),
		zap.String("from", s.address.Hex()),
		zap.String("to", to.Hex()),
		zap.String("value", value.String()),
		zap.Uint64("gas_limit", req.GasLimit),
		zap.String("gas_price", gasPrice.String()),
		zap.Uint64("nonce", nonce),
	)
	return &Pending{backend: s.backend, tx: tx}, nil
}

// Pending is a submitted transaction that resolves to its receipt once mined.
type Pending struct {
	backend bind.DeployBackend
	tx      *types.Transaction
}

func (p *Pending) Hash() common.Hash {
	return p.tx.Hash()
}

func (p *Pending) Transaction() *types.Transaction {
	return p.tx
}

// Wait blocks until the transaction is mined. A failed receipt is a submission error.
func (p *Pending) Wait(ctx context.Context) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, p.backend, p.tx)
	if err != nil {
		return nil, simerr.Wrap("wait mined", simerr.ErrConnectivity, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		reason := "execution reverted"
		if receipt.GasUsed >= p.tx.Gas() {
			reason = "out of gas"
		}
		return receipt, simerr.New(step, simerr.ErrSubmission,
			"transaction %s failed: %s (gas used %d of %d)", p.tx.Hash().Hex(), reason, receipt.GasUsed, p.tx.Gas())
	}
	return receipt, nil
}
