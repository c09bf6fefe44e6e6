// Package gateway wraps an encrypt/decrypt capability with automatic
// fallback between a threshold-encryption chain backend and a local
// demonstration backend.
package gateway

import (
	"context"
	"fmt"
	"log"
	"sync"

	"ciphermarket/internal/config"
)

// Mode names the bound backend.
type Mode string

const (
	ModeReal Mode = "real"
	ModeMock Mode = "mock"
)

// Result is the outcome of a decrypt. TxHash is set only by the threshold
// backend (the on-chain decryption transaction).
type Result struct {
	Plaintext string
	TxHash    string
}

// Backend is the narrow contract both encryption backends implement.
// Payloads cross the boundary as 0x-prefixed hex.
type Backend interface {
	Name() string
	Encrypt(ctx context.Context, dataHex string) (string, error)
	Decrypt(ctx context.Context, ciphertext string) (backendResult, error)
}

type backendResult struct {
	DataHex string
	TxHash  string
}

// Gateway binds one backend at a time. The binding is written during
// startup probing or a failure-triggered demotion and read on every call;
// demotion is one-way and idempotent.
type Gateway struct {
	mu      sync.RWMutex
	backend Backend
	local   Backend
	mode    Mode
}

// New probes the threshold backend when one is configured and binds it on
// success; otherwise it binds the local backend. SelfTest must pass before
// the gateway serves traffic.
func New(ctx context.Context, cfg *config.Config) *Gateway {
	local := newLocalBackend()
	g := &Gateway{backend: local, local: local, mode: ModeMock}
	if cfg.Threshold.RPC == "" {
		log.Printf("gateway: no threshold rpc configured, using local backend")
		return g
	}
	tb, err := newThresholdBackend(cfg)
	if err != nil {
		log.Printf("gateway: threshold backend unavailable, using local backend: %v", err)
		return g
	}
	if err := tb.Probe(ctx); err != nil {
		log.Printf("gateway: threshold probe failed, using local backend: %v", err)
		return g
	}
	g.backend = tb
	g.mode = ModeReal
	log.Printf("gateway: threshold backend connected (%s)", cfg.Threshold.RPC)
	return g
}

// NewWithBackends builds a gateway over explicit backends. The fallback
// backend must round-trip locally.
func NewWithBackends(primary, fallback Backend, mode Mode) *Gateway {
	return &Gateway{backend: primary, local: fallback, mode: mode}
}

// Mode returns the current binding.
func (g *Gateway) Mode() Mode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.mode
}

func (g *Gateway) current() Backend {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.backend
}

// Demote rebinds to the local backend for the remainder of the process.
// This weakens confidentiality from threshold-cooperative to a locally
// held key, so it is an operator-visible alarm, not a debug line.
func (g *Gateway) Demote(cause error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.mode == ModeMock {
		return
	}
	g.backend = g.local
	g.mode = ModeMock
	log.Printf("ALERT: encryption gateway demoted to local mock backend; threshold confidentiality lost for the rest of this process: %v", cause)
}

// Encrypt transcodes plaintext to hex and encrypts it with the bound
// backend. A threshold-backend failure demotes and retries locally once,
// since nothing encrypted yet depends on the threshold envelope.
func (g *Gateway) Encrypt(ctx context.Context, plaintext string) (string, error) {
	dataHex := TextToHex(plaintext)
	out, err := g.current().Encrypt(ctx, dataHex)
	if err != nil {
		if g.Mode() == ModeReal {
			g.Demote(err)
			return g.current().Encrypt(ctx, dataHex)
		}
		return "", err
	}
	return out, nil
}

// Decrypt recovers plaintext from a ciphertext envelope. No demotion here:
// a threshold envelope is not redeemable by the local backend, so a failed
// decrypt surfaces to the caller.
func (g *Gateway) Decrypt(ctx context.Context, ciphertext string) (Result, error) {
	res, err := g.current().Decrypt(ctx, ciphertext)
	if err != nil {
		return Result{}, err
	}
	plaintext, err := HexToText(res.DataHex)
	if err != nil {
		return Result{}, fmt.Errorf("decode decrypted payload: %w", err)
	}
	return Result{Plaintext: plaintext, TxHash: res.TxHash}, nil
}

const selfTestMessage = "Hello Ciphermarket!"

// SelfTest encrypts a known string and decrypts it back. A failed
// threshold round trip demotes to the local backend and re-verifies; if
// that also fails there is no usable encryption backend and startup must
// abort. Mandatory before accepting traffic.
func (g *Gateway) SelfTest(ctx context.Context) error {
	if err := g.roundTrip(ctx); err != nil {
		if g.Mode() == ModeReal {
			g.Demote(err)
			if err2 := g.roundTrip(ctx); err2 != nil {
				return fmt.Errorf("no usable encryption backend: %w", err2)
			}
			log.Printf("gateway: local backend round-trip ok after demotion")
			return nil
		}
		return fmt.Errorf("no usable encryption backend: %w", err)
	}
	log.Printf("gateway: %s round-trip ok", g.current().Name())
	return nil
}

func (g *Gateway) roundTrip(ctx context.Context) error {
	enc, err := g.Encrypt(ctx, selfTestMessage)
	if err != nil {
		return fmt.Errorf("self-test encrypt: %w", err)
	}
	res, err := g.Decrypt(ctx, enc)
	if err != nil {
		return fmt.Errorf("self-test decrypt: %w", err)
	}
	if res.Plaintext != selfTestMessage {
		return fmt.Errorf("self-test mismatch: got %q", res.Plaintext)
	}
	return nil
}
