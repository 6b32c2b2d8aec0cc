package dex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"forkswap/internal/simerr"
)

// Binding is a deployed contract paired with its interface definition.
type Binding struct {
	name    string
	address common.Address
	abi     abi.ABI
	caller  ethereum.ContractCaller
}

// NewBinding binds parsed to address. caller may be nil for encode-only use.
func NewBinding(name string, address common.Address, parsed abi.ABI, caller ethereum.ContractCaller) *Binding {
	return &Binding{
		name:    name,
		address: address,
		abi:     parsed,
		caller:  caller,
	}
}

func (b *Binding) Name() string {
	return b.name
}

func (b *Binding) Address() common.Address {
	return b.address
}

func (b *Binding) ABI() abi.ABI {
	return b.abi
}

// Encode packs a call to method with args.
func (b *Binding) Encode(method string, args ...interface{}) ([]byte, error) {
	if _, ok := b.abi.Methods[method]; !ok {
		return nil, simerr.New("encode "+b.name, simerr.ErrEncoding, "method %q not in abi", method)
	}
	data, err := b.abi.Pack(method, args...)
	if err != nil {
		return nil, simerr.Wrap(fmt.Sprintf("encode %s.%s", b.name, method), simerr.ErrEncoding, err)
	}
	return data, nil
}

// Decode unpacks call data produced by Encode back into typed arguments.
func (b *Binding) Decode(method string, data []byte) ([]interface{}, error) {
	m, ok := b.abi.Methods[method]
	if !ok {
		return nil, simerr.New("decode "+b.name, simerr.ErrEncoding, "method %q not in abi", method)
	}
	if len(data) < 4 || !bytes.Equal(data[:4], m.ID) {
		return nil, simerr.New("decode "+b.name, simerr.ErrEncoding, "selector mismatch for %s", method)
	}
	values, err := m.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, simerr.Wrap(fmt.Sprintf("decode %s.%s", b.name, method), simerr.ErrEncoding, err)
	}
	return values, nil
}

// Call performs a read-only invocation of method against latest state.
func (b *Binding) Call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	if b.caller == nil {
		return nil, fmt.Errorf("%s: contract caller is nil", b.name)
	}
	data, err := b.Encode(method, args...)
	if err != nil {
		return nil, err
	}

	msg := ethereum.CallMsg{To: &b.address, Data: data}
	resp, err := b.caller.CallContract(ctx, msg, nil)
	if err != nil {
		if revert, ok := revertFromError(b.name+"."+method, err); ok {
			return nil, revert
		}
		return nil, simerr.Wrap(fmt.Sprintf("call %s.%s", b.name, method), simerr.ErrConnectivity, err)
	}

	values, err := b.abi.Unpack(method, resp)
	if err != nil {
		return nil, simerr.Wrap(fmt.Sprintf("unpack %s.%s", b.name, method), simerr.ErrEncoding, err)
	}
	return values, nil
}

// revertFromError recognizes execution reverts in eth_call errors and decodes the reason.
func revertFromError(method string, err error) (*simerr.RevertError, bool) {
	revert := &simerr.RevertError{Method: method}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if hexData, ok := dataErr.ErrorData().(string); ok {
			if data, decodeErr := hexutil.Decode(hexData); decodeErr == nil {
				revert.Data = data
				if reason, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
					revert.Reason = reason
				}
			}
		}
	}

	msg := err.Error()
	if !strings.Contains(msg, "revert") && revert.Data == nil {
		return nil, false
	}
	if revert.Reason == "" {
		if _, after, found := strings.Cut(msg, "execution reverted: "); found {
			revert.Reason = after
		}
	}
	return revert, true
}
