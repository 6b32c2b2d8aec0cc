package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"forkswap/internal/chain"
	"forkswap/internal/config"
	"forkswap/internal/report"
	"forkswap/internal/trace"
)

func runHead(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadHead(cfgFile, cmd.Flags())
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

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	head, err := chainClient.LatestBlockNumber(ctx)
	if err != nil {
		return err
	}
	logger.Debug("head", zap.String("rpc", cfg.RPCURL), zap.Uint64("block", head))
	fmt.Fprintln(cmd.OutOrStdout(), head)
	return nil
}

func runTrace(cmd *cobra.Command, args []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadTrace(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	txHash, err := config.ParseTxHash(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	fetcher, err := trace.NewRPCFetcher(chainClient, cfg.TraceMethod, logger)
	if err != nil {
		return err
	}
	tr, err := fetcher.FetchTrace(ctx, txHash)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s, %d frames)\n", tr.TxHash, tr.Method, len(tr.Frames))
	for _, line := range report.CallTree(tr.Frames) {
		fmt.Fprintln(out, line)
	}
	if cfg.Raw {
		fmt.Fprintf(out, "%s\n", tr.Raw)
	}
	return nil
}
