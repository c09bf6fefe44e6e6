// Package faucet drips small testnet amounts so demo buyers can fund a
// wallet: a USDC transfer plus a best-effort pinch of ETH for gas.
package faucet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// DefaultInterval is the per-address cooldown between drips.
	DefaultInterval = 10 * time.Minute
	// DefaultMaxDrips caps the faucet's lifetime output.
	DefaultMaxDrips = 200
)

// Drip amounts. USDC carries 6 decimals, ETH 18.
var (
	usdcDrip = big.NewInt(10_000)              // 0.01 USDC
	ethDrip  = big.NewInt(100_000_000_000_000) // 0.0001 ETH
)

var (
	ErrInvalidAddress = errors.New("valid ethereum address required")
	ErrDepleted       = errors.New("faucet depleted")
)

// RateLimitedError reports how long the caller must wait before the
// address is eligible again.
type RateLimitedError struct {
	Wait time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, try again in %ds", int(e.Wait.Seconds()+0.999))
}

// Sender moves testnet funds. The chain-backed implementation lives in
// ChainSender; tests substitute a fake.
type Sender interface {
	TransferUSDC(ctx context.Context, to common.Address, amount *big.Int) (string, error)
	TransferETH(ctx context.Context, to common.Address, amount *big.Int) (string, error)
}

// Receipt describes one completed drip.
type Receipt struct {
	USDCAmount string
	ETHAmount  string
	USDCTxHash string
	ETHTxHash  string
	Remaining  int
}

// Dripper rate-limits drips per address and over its lifetime. All
// accounting is in-memory; a restart resets it, which is fine for a
// testnet convenience.
type Dripper struct {
	Sender   Sender
	Interval time.Duration
	MaxDrips int
	Now      func() time.Time

	mu    sync.Mutex
	last  map[string]time.Time
	total int
}

func New(sender Sender) *Dripper {
	return &Dripper{
		Sender:   sender,
		Interval: DefaultInterval,
		MaxDrips: DefaultMaxDrips,
		Now:      time.Now,
		last:     make(map[string]time.Time),
	}
}

// Drip sends USDC plus best-effort ETH to address. The USDC transfer is
// the one that matters for paying queries; a failed ETH top-up does not
// fail the drip.
func (d *Dripper) Drip(ctx context.Context, address string) (*Receipt, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	to := common.HexToAddress(address)
	normalized := strings.ToLower(to.Hex())

	if err := d.reserve(normalized); err != nil {
		return nil, err
	}

	usdcTx, err := d.Sender.TransferUSDC(ctx, to, usdcDrip)
	if err != nil {
		return nil, fmt.Errorf("usdc transfer: %w", err)
	}

	ethTx, ethAmount := "", "0"
	if tx, err := d.Sender.TransferETH(ctx, to, ethDrip); err == nil {
		ethTx, ethAmount = tx, "0.0001"
	}

	remaining := d.record(normalized)
	return &Receipt{
		USDCAmount: "0.01",
		ETHAmount:  ethAmount,
		USDCTxHash: usdcTx,
		ETHTxHash:  ethTx,
		Remaining:  remaining,
	}, nil
}

// reserve checks the lifetime cap and the per-address cooldown.
func (d *Dripper) reserve(addr string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.total >= d.MaxDrips {
		return fmt.Errorf("%w: max lifetime drips reached", ErrDepleted)
	}
	if lastAt, ok := d.last[addr]; ok {
		if wait := d.Interval - d.Now().Sub(lastAt); wait > 0 {
			return &RateLimitedError{Wait: wait}
		}
	}
	return nil
}

func (d *Dripper) record(addr string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last[addr] = d.Now()
	d.total++
	return d.MaxDrips - d.total
}
