package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// HeadConfig holds configuration for the head command.
type HeadConfig struct {
	RPCURL   string
	LogLevel string
}

// LoadHead merges config file, environment variables, and flags into HeadConfig.
func LoadHead(cfgFile string, flags *pflag.FlagSet) (HeadConfig, error) {
	v, err := newViper(cfgFile, flags, func(v *viper.Viper) {
		v.SetDefault("rpc", "http://127.0.0.1:8545")
		v.SetDefault("log-level", "info")
	})
	if err != nil {
		return HeadConfig{}, err
	}
	cfg := HeadConfig{
		RPCURL:   v.GetString("rpc"),
		LogLevel: v.GetString("log-level"),
	}
	if cfg.RPCURL == "" {
		return HeadConfig{}, fmt.Errorf("rpc url is required")
	}
	return cfg, nil
}

// TraceConfig holds configuration for the trace command.
type TraceConfig struct {
	RPCURL      string
	TraceMethod string
	Raw         bool
	LogLevel    string
}

// LoadTrace merges config file, environment variables, and flags into TraceConfig.
func LoadTrace(cfgFile string, flags *pflag.FlagSet) (TraceConfig, error) {
	v, err := newViper(cfgFile, flags, func(v *viper.Viper) {
		v.SetDefault("rpc", "http://127.0.0.1:8545")
		v.SetDefault("trace-method", "trace_transaction")
		v.SetDefault("raw", true)
		v.SetDefault("log-level", "info")
	})
	if err != nil {
		return TraceConfig{}, err
	}
	cfg := TraceConfig{
		RPCURL:      v.GetString("rpc"),
		TraceMethod: v.GetString("trace-method"),
		Raw:         v.GetBool("raw"),
		LogLevel:    v.GetString("log-level"),
	}
	if cfg.RPCURL == "" {
		return TraceConfig{}, fmt.Errorf("rpc url is required")
	}
	return cfg, nil
}
