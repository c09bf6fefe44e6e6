// Package ciphermarketsdk is a minimal buyer-side client for the
// Ciphermarket HTTP API: browse sellers, submit encrypted queries, and
// pay for results through the x402 gate.
package ciphermarketsdk

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ciphermarket/internal/gateway"
	"ciphermarket/internal/payment"
)

// Client is a Ciphermarket HTTP API client. A nil Payer limits the
// client to ungated servers.
type Client struct {
	BaseURL    string
	Payer      *payment.Payer
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 30 * time.Second,
	}
}

// NewPaying creates a client that settles payment challenges with the
// given buyer key.
func NewPaying(baseURL, buyerKey string) (*Client, error) {
	payer, err := payment.NewPayer(buyerKey)
	if err != nil {
		return nil, err
	}
	c := New(baseURL)
	c.Payer = payer
	return c, nil
}

// Seller is the catalog view of one data provider.
type Seller struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	Category       string         `json:"category"`
	PriceUSD       string         `json:"priceUsd"`
	Params         map[string]any `json:"params"`
	SampleResponse any            `json:"sampleResponse,omitempty"`
}

// Submission points at a paid pickup.
type Submission struct {
	ResponseID       string `json:"responseId"`
	SellerID         string `json:"sellerId"`
	SellerName       string `json:"sellerName"`
	EncryptedPreview string `json:"encryptedPreview"`
	PriceUSD         string `json:"priceUsd"`
	PaymentURL       string `json:"paymentUrl"`
}

// Result is the settled, decrypted answer.
type Result struct {
	Data   any
	TxHash string
}

// Health reports server status and operating modes.
type Health struct {
	Status     string `json:"status"`
	Sellers    int    `json:"sellers"`
	X402       bool   `json:"x402"`
	Encryption string `json:"encryption"`
	Explorers  struct {
		Payment   string `json:"payment"`
		Threshold string `json:"threshold"`
	} `json:"explorers"`
}

// FaucetReceipt reports a testnet drip.
type FaucetReceipt struct {
	Success        bool   `json:"success"`
	USDCAmount     string `json:"usdcAmount"`
	ETHAmount      string `json:"ethAmount"`
	USDCTxHash     string `json:"usdcTxHash"`
	ETHTxHash      string `json:"ethTxHash"`
	RemainingDrips int    `json:"remainingDrips"`
}

// Event is one lifecycle record from the event stream.
type Event struct {
	ID        string         `json:"id"`
	Timestamp int64          `json:"timestamp"`
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// ListSellers returns the seller catalog.
func (c *Client) ListSellers(ctx context.Context) ([]Seller, error) {
	var resp struct {
		Sellers []Seller `json:"sellers"`
	}
	err := c.do(ctx, http.MethodGet, "v0/registry", nil, &resp)
	return resp.Sellers, err
}

// GetSeller fetches one seller by id.
func (c *Client) GetSeller(ctx context.Context, id string) (Seller, error) {
	var resp Seller
	err := c.do(ctx, http.MethodGet, "v0/registry/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// GetHealth fetches server health.
func (c *Client) GetHealth(ctx context.Context) (Health, error) {
	var resp Health
	err := c.do(ctx, http.MethodGet, "v0/health", nil, &resp)
	return resp, err
}

// Faucet requests a testnet drip for the given wallet address. When the
// client has a payer and address is empty, the payer's own wallet is
// topped up.
func (c *Client) Faucet(ctx context.Context, address string) (FaucetReceipt, error) {
	if address == "" && c.Payer != nil {
		address = c.Payer.Address()
	}
	var resp FaucetReceipt
	err := c.do(ctx, http.MethodPost, "v0/faucet", map[string]any{"address": address}, &resp)
	return resp, err
}

// SubmitEncrypted posts a pre-encrypted query.
func (c *Client) SubmitEncrypted(ctx context.Context, sellerID, encryptedQuery, buyerAddress string) (Submission, error) {
	body := map[string]any{
		"sellerId":       sellerID,
		"encryptedQuery": encryptedQuery,
	}
	if buyerAddress != "" {
		body["buyerAddress"] = buyerAddress
	}
	var resp Submission
	err := c.do(ctx, http.MethodPost, "v0/query", body, &resp)
	return resp, err
}

// Submit encrypts queryText client-side and posts it. The server never
// sees the plaintext on the wire.
func (c *Client) Submit(ctx context.Context, sellerID, queryText string) (Submission, error) {
	encrypted, err := gateway.LocalEncrypt(queryText)
	if err != nil {
		return Submission{}, fmt.Errorf("encrypt query: %w", err)
	}
	buyer := ""
	if c.Payer != nil {
		buyer = c.Payer.Address()
	}
	return c.SubmitEncrypted(ctx, sellerID, encrypted, buyer)
}

// Settle pays for and retrieves a submitted result.
func (c *Client) Settle(ctx context.Context, sub Submission) (Result, error) {
	dataURL := c.base() + sub.PaymentURL
	var (
		res *http.Response
		err error
	)
	if c.Payer != nil {
		res, err = c.Payer.Get(ctx, dataURL)
	} else {
		var req *http.Request
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, dataURL, nil)
		if err != nil {
			return Result{}, err
		}
		res, err = c.client().Do(req)
	}
	if err != nil {
		return Result{}, err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 1<<16))
		return Result{}, &APIError{StatusCode: res.StatusCode, Body: string(b)}
	}
	var payload struct {
		Data any `json:"data"`
		Meta struct {
			TxHash string `json:"txHash"`
		} `json:"_meta"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return Result{}, err
	}
	return Result{Data: payload.Data, TxHash: payload.Meta.TxHash}, nil
}

// Query runs the whole buyer flow: encrypt, submit, pay, decrypt.
func (c *Client) Query(ctx context.Context, sellerID, queryText string) (Result, error) {
	sub, err := c.Submit(ctx, sellerID, queryText)
	if err != nil {
		return Result{}, err
	}
	return c.Settle(ctx, sub)
}

// Events streams lifecycle events into the given callback until ctx is
// done or the server closes the stream.
func (c *Client) Events(ctx context.Context, fn func(Event)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base()+"/v0/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	// Streaming: no client timeout, the context bounds the read.
	client := &http.Client{}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 1<<16))
		return &APIError{StatusCode: res.StatusCode, Body: string(b)}
	}
	return readEventStream(res.Body, fn)
}

func readEventStream(r io.Reader, fn func(Event)) error {
	dec := bufio.NewScanner(r)
	dec.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for dec.Scan() {
		line := dec.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var evt Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &evt); err != nil {
			continue
		}
		fn(evt)
	}
	return dec.Err()
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	u := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) client() *http.Client {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	return c.HTTPClient
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
