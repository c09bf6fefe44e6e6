package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestHexRoundTrip(t *testing.T) {
	cases := []string{
		"hello",
		"",
		"Hello Ciphermarket!",
		`{"city":"Tokyo"}`,
		"températures à Paris — 東京",
	}
	for _, c := range cases {
		hex := TextToHex(c)
		if !strings.HasPrefix(hex, "0x") {
			t.Fatalf("TextToHex(%q) = %q, want 0x prefix", c, hex)
		}
		back, err := HexToText(hex)
		if err != nil {
			t.Fatalf("HexToText(%q): %v", hex, err)
		}
		if back != c {
			t.Fatalf("round trip %q -> %q", c, back)
		}
	}
}

func TestHexToTextOddLength(t *testing.T) {
	// Odd-length hex is left zero-padded, not rejected.
	got, err := HexToText("0xf48656c6c6f")
	if err != nil {
		t.Fatalf("HexToText odd: %v", err)
	}
	if !strings.HasSuffix(got, "Hello") {
		t.Fatalf("got %q, want suffix Hello", got)
	}
	if _, err := HexToText("0xzz"); err == nil {
		t.Fatal("expected error for invalid hex")
	}
}

func TestLocalBackendRoundTrip(t *testing.T) {
	g := NewWithBackends(newLocalBackend(), newLocalBackend(), ModeMock)
	ctx := context.Background()
	for _, msg := range []string{"hello", "", `{"tokens":["BTC","ETH"]}`} {
		enc, err := g.Encrypt(ctx, msg)
		if err != nil {
			t.Fatalf("encrypt %q: %v", msg, err)
		}
		if enc == msg && msg != "" {
			t.Fatalf("ciphertext equals plaintext for %q", msg)
		}
		res, err := g.Decrypt(ctx, enc)
		if err != nil {
			t.Fatalf("decrypt: %v", err)
		}
		if res.Plaintext != msg {
			t.Fatalf("round trip %q -> %q", msg, res.Plaintext)
		}
		if res.TxHash != "" {
			t.Fatalf("local backend returned tx hash %q", res.TxHash)
		}
	}
}

func TestLocalDecryptRejectsGarbage(t *testing.T) {
	g := NewWithBackends(newLocalBackend(), newLocalBackend(), ModeMock)
	for _, bad := range []string{"", "0x00", "0xdeadbeef", "not hex at all"} {
		if _, err := g.Decrypt(context.Background(), bad); err == nil {
			t.Fatalf("expected decrypt error for %q", bad)
		}
	}
}

// failingBackend errors on every call, standing in for an unreachable
// threshold chain.
type failingBackend struct{}

func (f *failingBackend) Name() string { return "failing" }
func (f *failingBackend) Encrypt(context.Context, string) (string, error) {
	return "", errors.New("chain unavailable")
}
func (f *failingBackend) Decrypt(context.Context, string) (backendResult, error) {
	return backendResult{}, errors.New("chain unavailable")
}

// garblingBackend encrypts to a value that does not decrypt back,
// reproducing a committee mismatch.
type garblingBackend struct{ localBackend }

func (g *garblingBackend) Name() string { return "garbling" }
func (g *garblingBackend) Encrypt(context.Context, string) (string, error) {
	return "0x4741524241474521", nil
}

func TestEncryptDemotesOnPrimaryFailure(t *testing.T) {
	g := NewWithBackends(&failingBackend{}, newLocalBackend(), ModeReal)
	enc, err := g.Encrypt(context.Background(), "hello")
	if err != nil {
		t.Fatalf("encrypt after demotion: %v", err)
	}
	if g.Mode() != ModeMock {
		t.Fatalf("mode = %s, want mock after demotion", g.Mode())
	}
	res, err := g.Decrypt(context.Background(), enc)
	if err != nil || res.Plaintext != "hello" {
		t.Fatalf("local decrypt after demotion: %v %q", err, res.Plaintext)
	}
}

func TestDecryptDoesNotDemote(t *testing.T) {
	g := NewWithBackends(&failingBackend{}, newLocalBackend(), ModeReal)
	if _, err := g.Decrypt(context.Background(), "0x00"); err == nil {
		t.Fatal("expected decrypt error")
	}
	if g.Mode() != ModeReal {
		t.Fatalf("mode = %s, decrypt failure must not demote", g.Mode())
	}
}

func TestSelfTestDemotesOnMismatch(t *testing.T) {
	g := NewWithBackends(&garblingBackend{}, newLocalBackend(), ModeReal)
	if err := g.SelfTest(context.Background()); err != nil {
		t.Fatalf("self-test should recover via demotion: %v", err)
	}
	if g.Mode() != ModeMock {
		t.Fatalf("mode = %s, want mock", g.Mode())
	}
}

func TestSelfTestFailsWhenBothBackendsBroken(t *testing.T) {
	g := NewWithBackends(&failingBackend{}, &failingBackend{}, ModeReal)
	err := g.SelfTest(context.Background())
	if err == nil {
		t.Fatal("expected self-test failure")
	}
	if !strings.Contains(err.Error(), "no usable encryption backend") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDemoteIsOneWayAndIdempotent(t *testing.T) {
	g := NewWithBackends(&failingBackend{}, newLocalBackend(), ModeReal)
	g.Demote(errors.New("first"))
	g.Demote(errors.New("second"))
	if g.Mode() != ModeMock {
		t.Fatalf("mode = %s", g.Mode())
	}
	if _, err := g.Encrypt(context.Background(), "still works"); err != nil {
		t.Fatalf("encrypt after double demote: %v", err)
	}
}

func TestLocalEncryptInteropsWithGateway(t *testing.T) {
	enc, err := LocalEncrypt(`{"city":"Tokyo"}`)
	if err != nil {
		t.Fatalf("LocalEncrypt: %v", err)
	}
	g := NewWithBackends(newLocalBackend(), newLocalBackend(), ModeMock)
	res, err := g.Decrypt(context.Background(), enc)
	if err != nil {
		t.Fatalf("decrypt client envelope: %v", err)
	}
	if res.Plaintext != `{"city":"Tokyo"}` {
		t.Fatalf("got %q", res.Plaintext)
	}
}
