package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Mainnet Uniswap V2 router, WETH and DAI.
const (
	DefaultRouter = "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"
	DefaultWETH   = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
	DefaultToken  = "0x6B175474E89094C44Da98b954EedeAC495271d0F"
)

const envPrefix = "FORKSWAP"

// Config holds the simulation settings loaded from flags, env, or config file.
type Config struct {
	RPCURL          string
	Block           uint64
	Anvil           string
	AnvilMinVersion string
	ForkPort        int
	ForkChainID     uint64
	StartupTimeout  time.Duration
	KeyIndex        int
	PrivateKey      string
	Router          common.Address
	WETH            common.Address
	Token           common.Address
	Path            []common.Address
	Recipient       common.Address
	RouterABI       string
	TokenABI        string
	AmountIn        *big.Int
	AmountOutMin    *big.Int
	// Deadline is nil when unconstrained.
	Deadline        *big.Int
	GasLimit        uint64
	TraceMethod     string
	FidelityCheck   bool
	FidelityAddress common.Address
	Progress        bool
	OTLPEndpoint    string
	LogLevel        string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags, func(v *viper.Viper) {
		v.SetDefault("rpc", "http://127.0.0.1:8545")
		v.SetDefault("anvil", "anvil")
		v.SetDefault("startup-timeout", 30*time.Second)
		v.SetDefault("router", DefaultRouter)
		v.SetDefault("weth", DefaultWETH)
		v.SetDefault("token", DefaultToken)
		v.SetDefault("router-abi", "./abi/univ2.json")
		v.SetDefault("token-abi", "./abi/erc20.json")
		v.SetDefault("amount-in", "100000000000000000")
		v.SetDefault("min-out", "100")
		v.SetDefault("deadline", "0")
		v.SetDefault("gas-limit", uint64(200000))
		v.SetDefault("trace-method", "trace_transaction")
		v.SetDefault("progress", true)
		v.SetDefault("log-level", "info")
	})
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		RPCURL:          v.GetString("rpc"),
		Block:           v.GetUint64("block"),
		Anvil:           v.GetString("anvil"),
		AnvilMinVersion: v.GetString("anvil-min-version"),
		ForkPort:        v.GetInt("fork-port"),
		ForkChainID:     v.GetUint64("fork-chain-id"),
		StartupTimeout:  v.GetDuration("startup-timeout"),
		KeyIndex:        v.GetInt("key-index"),
		PrivateKey:      v.GetString("private-key"),
		RouterABI:       v.GetString("router-abi"),
		TokenABI:        v.GetString("token-abi"),
		GasLimit:        v.GetUint64("gas-limit"),
		TraceMethod:     v.GetString("trace-method"),
		FidelityCheck:   v.GetBool("fidelity-check"),
		Progress:        v.GetBool("progress"),
		OTLPEndpoint:    v.GetString("otlp-endpoint"),
		LogLevel:        v.GetString("log-level"),
	}

	if cfg.Router, err = ParseAddress("router", v.GetString("router")); err != nil {
		return Config{}, err
	}
	if cfg.WETH, err = ParseAddress("weth", v.GetString("weth")); err != nil {
		return Config{}, err
	}
	if cfg.Token, err = ParseAddress("token", v.GetString("token")); err != nil {
		return Config{}, err
	}
	if raw := strings.TrimSpace(v.GetString("recipient")); raw != "" {
		if cfg.Recipient, err = ParseAddress("recipient", raw); err != nil {
			return Config{}, err
		}
	}
	cfg.FidelityAddress = cfg.WETH
	if raw := strings.TrimSpace(v.GetString("fidelity-address")); raw != "" {
		if cfg.FidelityAddress, err = ParseAddress("fidelity-address", raw); err != nil {
			return Config{}, err
		}
	}

	cfg.Path, err = ParseAddresses(getStringSlice(v, "path"))
	if err != nil {
		return Config{}, err
	}
	if len(cfg.Path) == 0 {
		cfg.Path = []common.Address{cfg.WETH, cfg.Token}
	}

	if cfg.AmountIn, err = ParseAmount("amount-in", v.GetString("amount-in")); err != nil {
		return Config{}, err
	}
	if cfg.AmountOutMin, err = ParseAmount("min-out", v.GetString("min-out")); err != nil {
		return Config{}, err
	}
	deadline, err := ParseAmount("deadline", v.GetString("deadline"))
	if err != nil {
		return Config{}, err
	}
	if deadline.Sign() > 0 {
		cfg.Deadline = deadline
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings that cannot be defaulted.
func (c Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if c.AmountIn == nil || c.AmountIn.Sign() <= 0 {
		return fmt.Errorf("amount-in must be positive")
	}
	if c.GasLimit == 0 {
		return fmt.Errorf("gas-limit must be positive")
	}
	if c.KeyIndex < 0 {
		return fmt.Errorf("key-index must not be negative")
	}
	if len(c.Path) < 2 {
		return fmt.Errorf("path needs at least two addresses")
	}
	if c.Path[len(c.Path)-1] != c.Token {
		return fmt.Errorf("path must end at token %s", c.Token.Hex())
	}
	switch c.TraceMethod {
	case "trace_transaction", "debug_traceTransaction":
	default:
		return fmt.Errorf("unsupported trace-method %q", c.TraceMethod)
	}
	return nil
}

func newViper(cfgFile string, flags *pflag.FlagSet, defaults func(v *viper.Viper)) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if defaults != nil {
		defaults(v)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("forkswap")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
