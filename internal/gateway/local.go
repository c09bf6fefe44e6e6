package gateway

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// Local envelope layout, hex encoded with a 0x prefix:
//
//	[1-byte version][32-byte AES key][12-byte nonce][AES-256-GCM sealed payload]
//
// The key travels inside the envelope, so this offers demonstration-only
// confidentiality: anyone holding the envelope can open it. It exists to
// keep the full flow runnable when the threshold chain is unreachable.
const (
	localVersion  = 0x01
	localKeySize  = 32
	localIVSize   = 12
	localOverhead = 1 + localKeySize + localIVSize
)

type localBackend struct{}

func newLocalBackend() *localBackend { return &localBackend{} }

func (l *localBackend) Name() string { return "local" }

func (l *localBackend) Encrypt(_ context.Context, dataHex string) (string, error) {
	payload, err := hex.DecodeString(padHex(strings.TrimPrefix(dataHex, "0x")))
	if err != nil {
		return "", fmt.Errorf("invalid payload hex: %w", err)
	}
	key := make([]byte, localKeySize)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	nonce := make([]byte, localIVSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	sealed := gcm.Seal(nil, nonce, payload, nil)
	envelope := make([]byte, 0, localOverhead+len(sealed))
	envelope = append(envelope, localVersion)
	envelope = append(envelope, key...)
	envelope = append(envelope, nonce...)
	envelope = append(envelope, sealed...)
	return "0x" + hex.EncodeToString(envelope), nil
}

func (l *localBackend) Decrypt(_ context.Context, ciphertext string) (backendResult, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(ciphertext, "0x"))
	if err != nil {
		return backendResult{}, fmt.Errorf("invalid envelope hex: %w", err)
	}
	if len(raw) < localOverhead {
		return backendResult{}, fmt.Errorf("envelope too short (%d bytes)", len(raw))
	}
	if raw[0] != localVersion {
		return backendResult{}, fmt.Errorf("unknown envelope version 0x%02x", raw[0])
	}
	key := raw[1 : 1+localKeySize]
	nonce := raw[1+localKeySize : localOverhead]
	sealed := raw[localOverhead:]
	gcm, err := newGCM(key)
	if err != nil {
		return backendResult{}, err
	}
	payload, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return backendResult{}, fmt.Errorf("envelope authentication failed: %w", err)
	}
	return backendResult{DataHex: hex.EncodeToString(payload)}, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// LocalEncrypt encrypts plaintext with the local envelope format without a
// gateway. Used by buyer-side clients to produce ciphertext the server can
// open in mock mode.
func LocalEncrypt(plaintext string) (string, error) {
	return newLocalBackend().Encrypt(context.Background(), TextToHex(plaintext))
}
