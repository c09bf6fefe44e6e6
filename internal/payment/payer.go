package payment

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// DefaultMaxWait caps the client-side payment wait; beyond it the request
// is treated as failed, not retried.
const DefaultMaxWait = 60 * time.Second

// Payer is the buyer-side counterpart of the gate: it retries a 402
// response once with signed payment evidence.
type Payer struct {
	key        *ecdsa.PrivateKey
	address    common.Address
	HTTPClient *http.Client
	MaxWait    time.Duration
}

// NewPayer builds a payer from a hex-encoded private key.
func NewPayer(hexKey string) (*Payer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse buyer key: %w", err)
	}
	return &Payer{
		key:        key,
		address:    crypto.PubkeyToAddress(key.PublicKey),
		HTTPClient: &http.Client{Timeout: DefaultMaxWait},
		MaxWait:    DefaultMaxWait,
	}, nil
}

// Address returns the paying wallet address.
func (p *Payer) Address() string { return p.address.Hex() }

// Get fetches url, satisfying one payment challenge along the way. The
// caller owns the returned response body.
func (p *Payer) Get(ctx context.Context, url string) (*http.Response, error) {
	maxWait := p.MaxWait
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	ctx, cancel := context.WithTimeout(ctx, maxWait)
	res, err := p.get(ctx, url, "")
	if err != nil {
		cancel()
		return nil, err
	}
	if res.StatusCode != http.StatusPaymentRequired {
		res.Body = &cancelOnClose{ReadCloser: res.Body, cancel: cancel}
		return res, nil
	}
	var required RequiredResponse
	decodeErr := json.NewDecoder(io.LimitReader(res.Body, 1<<16)).Decode(&required)
	res.Body.Close()
	if decodeErr != nil {
		cancel()
		return nil, fmt.Errorf("parse payment requirements: %w", decodeErr)
	}
	if len(required.Accepts) == 0 {
		cancel()
		return nil, fmt.Errorf("402 without payment requirements")
	}
	header, err := p.evidenceFor(required.Accepts[0])
	if err != nil {
		cancel()
		return nil, err
	}
	paid, err := p.get(ctx, url, header)
	if err != nil {
		cancel()
		return nil, err
	}
	paid.Body = &cancelOnClose{ReadCloser: paid.Body, cancel: cancel}
	return paid, nil
}

func (p *Payer) get(ctx context.Context, url, paymentHeader string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if paymentHeader != "" {
		req.Header.Set(PaymentHeader, paymentHeader)
	}
	return p.HTTPClient.Do(req)
}

// evidenceFor signs an authorization satisfying the given requirements.
func (p *Payer) evidenceFor(reqs Requirements) (string, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	now := time.Now().Unix()
	validity := int64(reqs.MaxTimeoutSeconds)
	if validity <= 0 {
		validity = 600
	}
	auth := Authorization{
		From:        p.address.Hex(),
		To:          reqs.PayTo,
		Value:       reqs.MaxAmountRequired,
		ValidAfter:  now - 60,
		ValidBefore: now + validity,
		Nonce:       hexutil.Encode(nonce),
	}
	digest, err := authorizationDigest(reqs, auth)
	if err != nil {
		return "", err
	}
	sig, err := crypto.Sign(digest, p.key)
	if err != nil {
		return "", fmt.Errorf("sign payment authorization: %w", err)
	}
	return EncodeEvidence(Evidence{
		X402Version: Version,
		Scheme:      reqs.Scheme,
		Network:     reqs.Network,
		Payload: Payload{
			Signature:     hexutil.Encode(sig),
			Authorization: auth,
		},
	})
}

// authorizationDigest hashes the authorization together with the payment
// terms it satisfies, binding the signature to scheme, network and asset.
func authorizationDigest(reqs Requirements, auth Authorization) ([]byte, error) {
	bound := struct {
		Scheme        string        `json:"scheme"`
		Network       string        `json:"network"`
		Asset         string        `json:"asset"`
		Authorization Authorization `json:"authorization"`
	}{reqs.Scheme, reqs.Network, reqs.Asset, auth}
	data, err := json.Marshal(bound)
	if err != nil {
		return nil, err
	}
	return crypto.Keccak256(data), nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
