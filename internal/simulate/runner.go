// Package simulate wires the fork, the signer, the bindings and the reporters into one
// sequential swap simulation.
package simulate

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"forkswap/internal/chain"
	"forkswap/internal/config"
	"forkswap/internal/dex"
	"forkswap/internal/fork"
	"forkswap/internal/model"
	"forkswap/internal/report"
	"forkswap/internal/signer"
	"forkswap/internal/simerr"
	"forkswap/internal/snapshot"
	"forkswap/internal/swap"
	"forkswap/internal/telemetry"
	tracer "forkswap/internal/trace"
)

// Dialer connects to a JSON-RPC endpoint.
type Dialer func(ctx context.Context, url string) (*chain.Client, error)

// ForkStarter provisions a forked chain.
type ForkStarter interface {
	Start(ctx context.Context, opts fork.Options) (*fork.Fork, error)
}

// TraceSource builds the trace capability for the fork connection.
type TraceSource func(caller tracer.Caller, method string) (tracer.Fetcher, error)

// Progress receives a short description of the step being run.
type Progress interface {
	Describe(step string)
}

// Deps are the collaborators of a run. Nil fields get working defaults except Forks.
type Deps struct {
	Dial     Dialer
	Forks    ForkStarter
	Traces   TraceSource
	Tracer   trace.Tracer
	Logger   *zap.Logger
	Out      io.Writer
	Progress Progress
}

// Runner executes one simulation.
type Runner struct {
	cfg  config.Config
	deps Deps
}

func NewRunner(cfg config.Config, deps Deps) *Runner {
	if deps.Dial == nil {
		deps.Dial = chain.NewClient
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Out == nil {
		deps.Out = io.Discard
	}
	if deps.Traces == nil {
		logger := deps.Logger
		deps.Traces = func(caller tracer.Caller, method string) (tracer.Fetcher, error) {
			return tracer.NewRPCFetcher(caller, method, logger)
		}
	}
	return &Runner{cfg: cfg, deps: deps}
}

// run holds the values produced by earlier steps.
type run struct {
	live       *chain.Client
	head       uint64
	fork       *fork.Fork
	forkClient *chain.Client
	signer     *signer.Signer
	router     *dex.Binding
	token      *dex.Binding
	rep        report.Report
}

// Run performs the simulation, printing each report section once its step succeeds.
// The first failing step aborts the run and leaves the sections already printed.
func (r *Runner) Run(ctx context.Context) (report.Report, error) {
	if r.deps.Forks == nil {
		return report.Report{}, fmt.Errorf("fork starter is required")
	}
	st := &run{}
	defer st.close()

	out := report.NewPrinter(r.deps.Out)
	steps := []struct {
		name  string
		fn    func(ctx context.Context, st *run) error
		print func(report.Report) error
	}{
		{"connect", r.connect, nil},
		{"fork", r.startFork, nil},
		{"identity", r.bindSigner, nil},
		{"bindings", r.loadBindings, nil},
		{"fidelity", r.checkFidelity, out.Fork},
		{"snapshot before", r.snapshotBefore, out.Before},
		{"swap", r.swap, out.Swap},
		{"snapshot after", r.snapshotAfter, out.Balances},
		{"trace", r.fetchTrace, out.Trace},
	}
	for i, s := range steps {
		if r.deps.Progress != nil {
			r.deps.Progress.Describe(s.name)
		}
		err := telemetry.Span(ctx, r.deps.Tracer, s.name, func(ctx context.Context) error {
			return s.fn(ctx, st)
		}, attribute.Int("step.index", i))
		if err != nil {
			r.deps.Logger.Error("step failed", zap.String("step", s.name), zap.Error(err))
			return st.rep, fmt.Errorf("%s: %w", s.name, err)
		}
		if s.print == nil {
			continue
		}
		if err := s.print(st.rep); err != nil {
			return st.rep, fmt.Errorf("print report: %w", err)
		}
	}
	return st.rep, nil
}

func (st *run) close() {
	if st.forkClient != nil {
		st.forkClient.Close()
	}
	if st.fork != nil {
		_ = st.fork.Close()
	}
	if st.live != nil {
		st.live.Close()
	}
}

func (r *Runner) connect(ctx context.Context, st *run) error {
	live, err := r.deps.Dial(ctx, r.cfg.RPCURL)
	if err != nil {
		return err
	}
	st.live = live

	st.head = r.cfg.Block
	if st.head == 0 {
		head, err := live.LatestBlockNumber(ctx)
		if err != nil {
			return err
		}
		st.head = head
	}
	r.deps.Logger.Info("live head", zap.String("rpc", r.cfg.RPCURL), zap.Uint64("block", st.head))
	return nil
}

func (r *Runner) startFork(ctx context.Context, st *run) error {
	f, err := r.deps.Forks.Start(ctx, fork.Options{
		Binary:         r.cfg.Anvil,
		ForkURL:        r.cfg.RPCURL,
		BlockNumber:    st.head,
		Port:           r.cfg.ForkPort,
		ChainID:        r.cfg.ForkChainID,
		StartupTimeout: r.cfg.StartupTimeout,
		MinVersion:     r.cfg.AnvilMinVersion,
	})
	if err != nil {
		return err
	}
	st.fork = f
	st.rep.ForkBlock = f.BlockNumber
	return nil
}

func (r *Runner) bindSigner(ctx context.Context, st *run) error {
	client, err := r.deps.Dial(ctx, st.fork.Endpoint)
	if err != nil {
		return err
	}
	st.forkClient = client

	key, err := r.selectKey(st.fork)
	if err != nil {
		return err
	}
	chainID := st.fork.ChainID
	if chainID == nil {
		if chainID, err = client.GetChainID(ctx); err != nil {
			return err
		}
	}
	s, err := signer.New(client, key, chainID, r.deps.Logger)
	if err != nil {
		return err
	}
	st.signer = s
	st.rep.Account = s.Address()
	st.rep.ChainID = s.ChainID()
	r.deps.Logger.Info("identity bound",
		zap.String("address", s.Address().Hex()),
		zap.String("chain_id", chainID.String()),
	)
	return nil
}

func (r *Runner) selectKey(f *fork.Fork) (*ecdsa.PrivateKey, error) {
	if r.cfg.PrivateKey != "" {
		return signer.ParseKey(r.cfg.PrivateKey)
	}
	if r.cfg.KeyIndex >= len(f.Keys) {
		return nil, simerr.New("signing client", simerr.ErrSigning,
			"key index %d out of range, fork has %d accounts", r.cfg.KeyIndex, len(f.Keys))
	}
	return f.Keys[r.cfg.KeyIndex], nil
}

func (r *Runner) loadBindings(ctx context.Context, st *run) error {
	routerABI, err := r.loadABI(r.cfg.RouterABI, dex.RouterV2ABI)
	if err != nil {
		return err
	}
	tokenABI, err := r.loadABI(r.cfg.TokenABI, dex.ERC20ABI)
	if err != nil {
		return err
	}
	st.router = dex.NewBinding("router", r.cfg.Router, routerABI, st.forkClient)
	st.token = dex.NewBinding("token", r.cfg.Token, tokenABI, st.forkClient)

	meta, err := dex.FetchTokenMeta(ctx, st.token, r.deps.Logger)
	if err != nil {
		r.deps.Logger.Warn("token metadata unavailable, assuming default decimals",
			zap.String("token", r.cfg.Token.Hex()),
			zap.Int("decimals", dex.DefaultDecimals),
			zap.Error(err),
		)
	}
	st.rep.Token = meta
	return nil
}

// loadABI reads path, falling back to the embedded document when the file does not exist.
func (r *Runner) loadABI(path string, embedded func() (abi.ABI, error)) (abi.ABI, error) {
	if path != "" {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			r.deps.Logger.Warn("abi file missing, using embedded definition", zap.String("path", path))
			path = ""
		}
	}
	parsed, err := dex.LoadABI(path, embedded)
	if err != nil {
		return abi.ABI{}, simerr.Wrap("load abi", simerr.ErrEncoding, err)
	}
	return parsed, nil
}

func (r *Runner) checkFidelity(ctx context.Context, st *run) error {
	if !r.cfg.FidelityCheck {
		return nil
	}
	block := new(big.Int).SetUint64(st.fork.BlockNumber)
	live, err := st.live.BalanceAt(ctx, r.cfg.FidelityAddress, block)
	if err != nil {
		return err
	}
	forked, err := st.forkClient.BalanceAt(ctx, r.cfg.FidelityAddress, block)
	if err != nil {
		return err
	}
	f := &report.Fidelity{Block: st.fork.BlockNumber, Live: live, Fork: forked}
	st.rep.Fidelity = f
	if !f.OK() {
		r.deps.Logger.Warn("fork diverges from live chain",
			zap.String("address", r.cfg.FidelityAddress.Hex()),
			zap.String("live", live.String()),
			zap.String("fork", forked.String()),
		)
	}
	return nil
}

func (r *Runner) taker(st *run) *snapshot.Taker {
	return snapshot.NewTaker(st.signer, st.forkClient, st.token, r.deps.Logger)
}

func (r *Runner) snapshotBefore(ctx context.Context, st *run) error {
	snap, err := r.taker(st).Take(ctx, "before", st.signer.Address())
	if err != nil {
		return err
	}
	st.rep.Before = snap
	return nil
}

func (r *Runner) swap(ctx context.Context, st *run) error {
	exec := swap.NewExecutor(st.router, st.signer, r.deps.Logger)

	recipient := r.cfg.Recipient
	if recipient == (common.Address{}) {
		recipient = st.signer.Address()
	}
	req := model.SwapRequest{
		AmountIn:     r.cfg.AmountIn,
		AmountOutMin: r.cfg.AmountOutMin,
		Path:         r.cfg.Path,
		Recipient:    recipient,
		Deadline:     r.cfg.Deadline,
		GasLimit:     r.cfg.GasLimit,
	}
	if req.Deadline == nil {
		req.Deadline = swap.UnconstrainedDeadline()
	}
	st.rep.Request = req

	quote, err := exec.Quote(ctx, req.AmountIn, req.Path)
	if err != nil {
		r.deps.Logger.Warn("quote failed", zap.Error(err))
	} else {
		st.rep.Quote = quote
	}

	res, err := exec.Execute(ctx, req)
	st.rep.Result = res
	return err
}

func (r *Runner) snapshotAfter(ctx context.Context, st *run) error {
	snap, err := r.taker(st).Take(ctx, "after", st.signer.Address())
	if err != nil {
		return err
	}
	st.rep.After = snap

	c := report.CheckConservation(st.rep.Before, st.rep.After, st.rep.Request.AmountIn, st.rep.Result.GasCost)
	st.rep.Conservation = c
	if !c.OK {
		r.deps.Logger.Warn("balance conservation mismatch",
			zap.String("expected_native", c.ExpectedNative.String()),
			zap.String("actual_native", c.ActualNative.String()),
			zap.String("token_gained", c.TokenGained.String()),
		)
	}
	return nil
}

func (r *Runner) fetchTrace(ctx context.Context, st *run) error {
	fetcher, err := r.deps.Traces(st.forkClient, r.cfg.TraceMethod)
	if err != nil {
		return simerr.Tag("trace reporter", simerr.ErrTraceUnavailable, err)
	}
	tr, err := fetcher.FetchTrace(ctx, st.rep.Result.TxHash)
	if err != nil {
		return err
	}
	st.rep.Trace = tr
	return nil
}
