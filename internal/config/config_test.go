package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func runFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	fs.String("rpc", "", "")
	fs.Uint64("block", 0, "")
	fs.StringSlice("path", nil, "")
	fs.String("amount-in", "100000000000000000", "")
	fs.String("deadline", "0", "")
	fs.Uint64("gas-limit", 200000, "")
	fs.Int("key-index", 0, "")
	fs.String("trace-method", "trace_transaction", "")
	return fs
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", runFlags())
	require.NoError(t, err)

	require.Equal(t, "http://127.0.0.1:8545", cfg.RPCURL)
	require.Equal(t, common.HexToAddress(DefaultRouter), cfg.Router)
	require.Equal(t, []common.Address{common.HexToAddress(DefaultWETH), common.HexToAddress(DefaultToken)}, cfg.Path)
	require.Equal(t, "100000000000000000", cfg.AmountIn.String())
	require.Equal(t, "100", cfg.AmountOutMin.String())
	require.Nil(t, cfg.Deadline)
	require.Equal(t, uint64(200000), cfg.GasLimit)
	require.Equal(t, 30*time.Second, cfg.StartupTimeout)
	require.Equal(t, "./abi/univ2.json", cfg.RouterABI)
	require.Equal(t, cfg.WETH, cfg.FidelityAddress)
	require.Equal(t, "trace_transaction", cfg.TraceMethod)
}

func TestLoadFlagsAndEnv(t *testing.T) {
	t.Setenv("FORKSWAP_GAS_LIMIT", "300000")
	t.Setenv("FORKSWAP_MIN_OUT", "42")

	fs := runFlags()
	require.NoError(t, fs.Parse([]string{"--rpc", "http://node:8545", "--deadline", "1700000000", "--block", "19000000"}))

	cfg, err := Load("", fs)
	require.NoError(t, err)
	require.Equal(t, "http://node:8545", cfg.RPCURL)
	require.Equal(t, uint64(19000000), cfg.Block)
	require.Equal(t, "1700000000", cfg.Deadline.String())
	require.Equal(t, uint64(300000), cfg.GasLimit)
	require.Equal(t, "42", cfg.AmountOutMin.String())
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forkswap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rpc: http://archive:8545
token: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
path:
  - "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
  - "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
fidelity-check: true
`), 0o644))

	cfg, err := Load(path, runFlags())
	require.NoError(t, err)
	require.Equal(t, "http://archive:8545", cfg.RPCURL)
	require.True(t, cfg.FidelityCheck)
	require.Len(t, cfg.Path, 2)
	require.Equal(t, common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), cfg.Token)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "amount", args: []string{"--amount-in", "0.1"}},
		{name: "zero amount", args: []string{"--amount-in", "0"}},
		{name: "negative deadline", args: []string{"--deadline", "-5"}},
		{name: "gas", args: []string{"--gas-limit", "0"}},
		{name: "key index", args: []string{"--key-index", "-1"}},
		{name: "path address", args: []string{"--path", "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2,nope"}},
		{name: "path end", args: []string{"--path", "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2,0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"}},
		{name: "trace method", args: []string{"--trace-method", "eth_getLogs"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := runFlags()
			require.NoError(t, fs.Parse(tt.args))
			_, err := Load("", fs)
			require.Error(t, err)
		})
	}
}

func TestParseTxHash(t *testing.T) {
	hash, err := ParseTxHash("0xab" + strings.Repeat("00", 31))
	require.NoError(t, err)
	require.Equal(t, byte(0xab), hash[0])

	_, err = ParseTxHash("0x1234")
	require.Error(t, err)
	_, err = ParseTxHash("hash")
	require.Error(t, err)
}

func TestLoadTraceRequiresRPC(t *testing.T) {
	fs := pflag.NewFlagSet("trace", pflag.ContinueOnError)
	fs.String("rpc", "", "")
	require.NoError(t, fs.Parse([]string{"--rpc", ""}))

	_, err := LoadTrace("", fs)
	require.Error(t, err)
}
