package fork

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hashicorp/go-version"
	"go.uber.org/zap"

	"forkswap/internal/chain"
	"forkswap/internal/simerr"
)

const step = "fork provisioner"

// Options configures one anvil fork.
type Options struct {
	Binary         string
	ForkURL        string
	BlockNumber    uint64
	Host           string
	Port           int
	ChainID        uint64
	StartupTimeout time.Duration
	// MinVersion rejects older anvil binaries when set (e.g. "0.2.0").
	MinVersion string
}

// Fork is a running anvil instance pinned to a block of the source chain.
type Fork struct {
	Endpoint    string
	ChainID     *big.Int
	BlockNumber uint64
	Keys        []*ecdsa.PrivateKey

	cmd    *exec.Cmd
	done   chan struct{}
	once   sync.Once
	logger *zap.Logger
}

// Close stops the anvil process.
func (f *Fork) Close() error {
	var err error
	f.once.Do(func() {
		if f.cmd == nil || f.cmd.Process == nil {
			return
		}
		if killErr := f.cmd.Process.Kill(); killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
			err = killErr
		}
		<-f.done
		f.logger.Debug("fork stopped", zap.String("endpoint", f.Endpoint))
	})
	return err
}

// Provisioner starts anvil forks.
type Provisioner struct {
	logger *zap.Logger
}

func NewProvisioner(logger *zap.Logger) *Provisioner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provisioner{logger: logger}
}

// Start launches anvil forked from opts.ForkURL at opts.BlockNumber and waits until it serves RPC.
func (p *Provisioner) Start(ctx context.Context, opts Options) (*Fork, error) {
	if opts.ForkURL == "" {
		return nil, simerr.New(step, simerr.ErrForkStartup, "fork url is required")
	}
	if opts.Binary == "" {
		opts.Binary = "anvil"
	}
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.StartupTimeout <= 0 {
		opts.StartupTimeout = 30 * time.Second
	}

	if opts.MinVersion != "" {
		if err := p.checkVersion(ctx, opts.Binary, opts.MinVersion); err != nil {
			return nil, err
		}
	}

	port := opts.Port
	if port == 0 {
		free, err := freePort(opts.Host)
		if err != nil {
			return nil, simerr.Wrap(step, simerr.ErrForkStartup, err)
		}
		port = free
	}

	args := []string{
		"--fork-url", opts.ForkURL,
		"--fork-block-number", strconv.FormatUint(opts.BlockNumber, 10),
		"--host", opts.Host,
		"--port", strconv.Itoa(port),
	}
	if opts.ChainID != 0 {
		args = append(args, "--chain-id", strconv.FormatUint(opts.ChainID, 10))
	}

	cmd := exec.Command(opts.Binary, args...)
	stdout, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	p.logger.Info("fork start",
		zap.String("binary", opts.Binary),
		zap.Uint64("block", opts.BlockNumber),
		zap.Int("port", port),
	)
	if err := cmd.Start(); err != nil {
		return nil, simerr.Wrap(step, simerr.ErrForkStartup, fmt.Errorf("start %s: %w", opts.Binary, err))
	}

	f := &Fork{
		BlockNumber: opts.BlockNumber,
		cmd:         cmd,
		done:        make(chan struct{}),
		logger:      p.logger,
	}

	banner := make(chan bannerResult, 1)
	go func() {
		banner <- readBanner(stdout, p.logger)
		// keep draining so anvil never blocks on a full pipe
		_, _ = io.Copy(io.Discard, stdout)
	}()
	go func() {
		_ = cmd.Wait()
		pw.Close()
		close(f.done)
	}()

	timer := time.NewTimer(opts.StartupTimeout)
	defer timer.Stop()

	var res bannerResult
	select {
	case <-ctx.Done():
		_ = f.Close()
		return nil, simerr.Wrap(step, simerr.ErrForkStartup, ctx.Err())
	case <-timer.C:
		_ = f.Close()
		return nil, simerr.New(step, simerr.ErrForkStartup, "anvil did not start within %s", opts.StartupTimeout)
	case <-f.done:
		select {
		case res = <-banner:
			if res.err != nil {
				return nil, simerr.Wrap(step, simerr.ErrForkStartup, res.err)
			}
		case <-time.After(time.Second):
		}
		return nil, simerr.New(step, simerr.ErrForkStartup, "anvil exited during startup")
	case res = <-banner:
	}
	if res.err != nil {
		_ = f.Close()
		return nil, simerr.Wrap(step, simerr.ErrForkStartup, res.err)
	}

	keys, err := parseKeys(res.keys)
	if err != nil {
		_ = f.Close()
		return nil, simerr.Wrap(step, simerr.ErrForkStartup, err)
	}
	f.Keys = keys
	f.Endpoint = "http://" + res.listen
	if res.listen == "" {
		f.Endpoint = fmt.Sprintf("http://%s:%d", opts.Host, port)
	}

	client, err := chain.NewClient(ctx, f.Endpoint)
	if err != nil {
		_ = f.Close()
		return nil, simerr.Tag(step, simerr.ErrForkStartup, err)
	}
	defer client.Close()

	chainID, err := client.GetChainID(ctx)
	if err != nil {
		_ = f.Close()
		return nil, simerr.Tag(step, simerr.ErrForkStartup, err)
	}
	f.ChainID = chainID

	p.logger.Info("fork ready",
		zap.String("endpoint", f.Endpoint),
		zap.String("chain_id", chainID.String()),
		zap.Int("accounts", len(keys)),
	)
	return f, nil
}

func (p *Provisioner) checkVersion(ctx context.Context, binary, minVersion string) error {
	want, err := version.NewVersion(minVersion)
	if err != nil {
		return simerr.Wrap(step, simerr.ErrForkStartup, fmt.Errorf("parse min version: %w", err))
	}
	out, err := exec.CommandContext(ctx, binary, "--version").Output()
	if err != nil {
		return simerr.Wrap(step, simerr.ErrForkStartup, fmt.Errorf("%s --version: %w", binary, err))
	}
	have, err := ParseVersion(string(out))
	if err != nil {
		return simerr.Wrap(step, simerr.ErrForkStartup, err)
	}
	if have.LessThan(want) {
		return simerr.New(step, simerr.ErrForkStartup, "anvil %s is older than required %s", have, want)
	}
	p.logger.Debug("anvil version", zap.String("version", have.String()))
	return nil
}

var versionPattern = regexp.MustCompile(`\d+\.\d+\.\d+(-[0-9A-Za-z.-]+)?`)

// ParseVersion extracts the semantic version from `anvil --version` output,
// e.g. "anvil 0.2.0 (f7ad9d5 2024-05-01T00:16:46.574446000Z)".
func ParseVersion(output string) (*version.Version, error) {
	match := versionPattern.FindString(output)
	if match == "" {
		return nil, fmt.Errorf("no version in %q", strings.TrimSpace(output))
	}
	return version.NewVersion(match)
}

func freePort(host string) (int, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, fmt.Errorf("find free port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

func parseKeys(hexKeys []string) ([]*ecdsa.PrivateKey, error) {
	if len(hexKeys) == 0 {
		return nil, fmt.Errorf("anvil banner has no private keys")
	}
	keys := make([]*ecdsa.PrivateKey, 0, len(hexKeys))
	for i, hexKey := range hexKeys {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("private key %d: %w", i, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}
