package faucet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type fakeSender struct {
	mu       sync.Mutex
	usdc     int
	eth      int
	usdcErr  error
	ethErr   error
	lastUSDC *big.Int
}

func (f *fakeSender) TransferUSDC(_ context.Context, _ common.Address, amount *big.Int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.usdcErr != nil {
		return "", f.usdcErr
	}
	f.usdc++
	f.lastUSDC = new(big.Int).Set(amount)
	return fmt.Sprintf("0xusdc%d", f.usdc), nil
}

func (f *fakeSender) TransferETH(_ context.Context, _ common.Address, _ *big.Int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ethErr != nil {
		return "", f.ethErr
	}
	f.eth++
	return fmt.Sprintf("0xeth%d", f.eth), nil
}

const addr1 = "0x1111111111111111111111111111111111111111"
const addr2 = "0x2222222222222222222222222222222222222222"

func TestDrip(t *testing.T) {
	sender := &fakeSender{}
	d := New(sender)

	rec, err := d.Drip(context.Background(), addr1)
	if err != nil {
		t.Fatalf("drip: %v", err)
	}
	if rec.USDCAmount != "0.01" || rec.USDCTxHash != "0xusdc1" {
		t.Fatalf("receipt %+v", rec)
	}
	if rec.ETHAmount != "0.0001" || rec.ETHTxHash != "0xeth1" {
		t.Fatalf("eth receipt %+v", rec)
	}
	if rec.Remaining != DefaultMaxDrips-1 {
		t.Fatalf("remaining %d", rec.Remaining)
	}
	if sender.lastUSDC.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("usdc amount %s, want 10000 units", sender.lastUSDC)
	}
}

func TestDripRejectsBadAddress(t *testing.T) {
	d := New(&fakeSender{})
	for _, addr := range []string{"", "0x123", "not-an-address", addr1 + "00"} {
		if _, err := d.Drip(context.Background(), addr); !errors.Is(err, ErrInvalidAddress) {
			t.Fatalf("addr %q: err %v", addr, err)
		}
	}
}

func TestDripRateLimitsPerAddress(t *testing.T) {
	sender := &fakeSender{}
	d := New(sender)
	now := time.Unix(1_700_000_000, 0)
	d.Now = func() time.Time { return now }

	if _, err := d.Drip(context.Background(), addr1); err != nil {
		t.Fatalf("first drip: %v", err)
	}

	// Same address, case-shuffled, still limited.
	_, err := d.Drip(context.Background(), "0X1111111111111111111111111111111111111111")
	var rl *RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("expected rate limit, got %v", err)
	}
	if rl.Wait <= 0 || rl.Wait > DefaultInterval {
		t.Fatalf("wait %v", rl.Wait)
	}

	// A different address is unaffected.
	if _, err := d.Drip(context.Background(), addr2); err != nil {
		t.Fatalf("other address: %v", err)
	}

	// After the cooldown the first address drips again.
	now = now.Add(DefaultInterval + time.Second)
	if _, err := d.Drip(context.Background(), addr1); err != nil {
		t.Fatalf("post-cooldown drip: %v", err)
	}
	if sender.usdc != 3 {
		t.Fatalf("usdc transfers %d, want 3", sender.usdc)
	}
}

func TestDripLifetimeCap(t *testing.T) {
	d := New(&fakeSender{})
	d.MaxDrips = 2

	for i, addr := range []string{addr1, addr2} {
		rec, err := d.Drip(context.Background(), addr)
		if err != nil {
			t.Fatalf("drip %d: %v", i, err)
		}
		if rec.Remaining != 1-i {
			t.Fatalf("drip %d remaining %d", i, rec.Remaining)
		}
	}
	_, err := d.Drip(context.Background(), "0x3333333333333333333333333333333333333333")
	if !errors.Is(err, ErrDepleted) {
		t.Fatalf("expected depleted, got %v", err)
	}
}

func TestDripUSDCFailureDoesNotBurnQuota(t *testing.T) {
	sender := &fakeSender{usdcErr: errors.New("wallet empty")}
	d := New(sender)

	if _, err := d.Drip(context.Background(), addr1); err == nil {
		t.Fatal("expected error")
	}

	// The failed attempt consumed neither the cooldown nor the cap.
	sender.usdcErr = nil
	rec, err := d.Drip(context.Background(), addr1)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if rec.Remaining != DefaultMaxDrips-1 {
		t.Fatalf("remaining %d", rec.Remaining)
	}
}

func TestDripETHFailureIsBestEffort(t *testing.T) {
	sender := &fakeSender{ethErr: errors.New("low on gas")}
	d := New(sender)

	rec, err := d.Drip(context.Background(), addr1)
	if err != nil {
		t.Fatalf("drip: %v", err)
	}
	if rec.USDCTxHash == "" {
		t.Fatal("usdc tx missing")
	}
	if rec.ETHTxHash != "" || rec.ETHAmount != "0" {
		t.Fatalf("eth should be skipped: %+v", rec)
	}
}
