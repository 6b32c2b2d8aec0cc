package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"forkswap/internal/config"
	"forkswap/internal/fork"
	"forkswap/internal/simulate"
	"forkswap/internal/telemetry"
)

func main() {
	root := &cobra.Command{
		Use:          "forkswap",
		Short:        "Simulate a DEX swap on a local fork of a live chain",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Fork the chain, swap native currency for tokens and print balances and trace",
		RunE:  runSimulation,
	}

	runCmd.Flags().String("rpc", "http://127.0.0.1:8545", "live chain RPC URL")
	runCmd.Flags().Uint64("block", 0, "fork block, 0 means latest")
	runCmd.Flags().String("anvil", "anvil", "anvil binary")
	runCmd.Flags().String("anvil-min-version", "", "minimum anvil version (e.g. 0.2.0)")
	runCmd.Flags().Int("fork-port", 0, "fork listen port, 0 picks a free port")
	runCmd.Flags().Uint64("fork-chain-id", 0, "override the fork chain id")
	runCmd.Flags().Duration("startup-timeout", 30*time.Second, "maximum time to wait for the fork")
	runCmd.Flags().Int("key-index", 0, "index of the pre-funded fork account to sign with")
	runCmd.Flags().String("private-key", "", "hex private key to sign with instead of a fork account")
	runCmd.Flags().String("router", config.DefaultRouter, "router address")
	runCmd.Flags().String("weth", config.DefaultWETH, "wrapped native token address")
	runCmd.Flags().String("token", config.DefaultToken, "token to buy")
	runCmd.Flags().StringSlice("path", nil, "swap path (comma-separated), defaults to weth,token")
	runCmd.Flags().String("recipient", "", "token recipient, defaults to the signer")
	runCmd.Flags().String("router-abi", "./abi/univ2.json", "router ABI document")
	runCmd.Flags().String("token-abi", "./abi/erc20.json", "token ABI document")
	runCmd.Flags().String("amount-in", "100000000000000000", "native amount to spend in wei")
	runCmd.Flags().String("min-out", "100", "minimum token output in base units")
	runCmd.Flags().String("deadline", "0", "swap deadline (unix seconds), 0 means unconstrained")
	runCmd.Flags().Uint64("gas-limit", 200000, "gas limit of the swap transaction")
	runCmd.Flags().String("trace-method", "trace_transaction", "trace method (trace_transaction or debug_traceTransaction)")
	runCmd.Flags().Bool("fidelity-check", false, "compare a fork balance with the live chain at the fork block")
	runCmd.Flags().String("fidelity-address", "", "address used by the fidelity check, defaults to weth")
	runCmd.Flags().Bool("progress", true, "show a spinner on terminals")
	runCmd.Flags().String("otlp-endpoint", "", "OTLP/HTTP endpoint for step spans")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	headCmd := &cobra.Command{
		Use:   "head",
		Short: "Print the head block number of a chain",
		RunE:  runHead,
	}

	headCmd.Flags().String("rpc", "http://127.0.0.1:8545", "chain RPC URL")
	headCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(headCmd)

	traceCmd := &cobra.Command{
		Use:   "trace <tx-hash>",
		Short: "Fetch and print the execution trace of a mined transaction",
		Args:  cobra.ExactArgs(1),
		RunE:  runTrace,
	}

	traceCmd.Flags().String("rpc", "http://127.0.0.1:8545", "node RPC URL")
	traceCmd.Flags().String("trace-method", "trace_transaction", "trace method (trace_transaction or debug_traceTransaction)")
	traceCmd.Flags().Bool("raw", true, "print the raw trace JSON")
	traceCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(traceCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runSimulation(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := telemetry.Setup(ctx, telemetry.Config{Endpoint: cfg.OTLPEndpoint}, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	deps := simulate.Deps{
		Forks:  fork.NewProvisioner(logger),
		Tracer: provider.Tracer(),
		Logger: logger,
		Out:    cmd.OutOrStdout(),
	}
	if cfg.Progress {
		if sp := newSpinner(os.Stderr); sp != nil {
			defer sp.Finish()
			deps.Progress = sp
		}
	}

	logger.Info("simulation start",
		zap.String("rpc", cfg.RPCURL),
		zap.Uint64("block", cfg.Block),
		zap.String("router", cfg.Router.Hex()),
		zap.String("token", cfg.Token.Hex()),
		zap.String("amount_in", cfg.AmountIn.String()),
		zap.String("min_out", cfg.AmountOutMin.String()),
		zap.Uint64("gas_limit", cfg.GasLimit),
		zap.String("trace_method", cfg.TraceMethod),
	)

	if _, err := simulate.NewRunner(cfg, deps).Run(ctx); err != nil {
		return fmt.Errorf("simulation failed: %w", err)
	}
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
